package config

import (
	"flag"
	"os"

	"codeberg.org/mutker/cpupowerctl/internal/errors"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel    = "info"
	defaultIdleTimeout = 60  // seconds
	defaultAuthTimeout = 120 // seconds, long enough for interactive credential entry

	defaultSysfsRoot        = "/sys/devices/system/cpu"
	defaultHistoryDB        = "/var/lib/cpupowerd/history.db"
	defaultSystemProfileDir = "/etc/cpupowerctl.d"
)

type Config struct {
	Debug    bool
	Verbose  bool
	LogLevel string `mapstructure:"log_level"`

	// Helper service
	IdleTimeout int    `mapstructure:"idle_timeout"`
	AuthTimeout int    `mapstructure:"auth_timeout"`
	SysfsRoot   string `mapstructure:"sysfs_root"`

	// Applied-settings history
	History   bool   `mapstructure:"history"`
	HistoryDB string `mapstructure:"history_db"`

	// Profiles
	SystemProfileDir string `mapstructure:"system_profile_dir"`
	UserProfileDir   string `mapstructure:"user_profile_dir"`
}

// Load reads configuration from the config file, environment and the given
// command-line arguments, in increasing order of precedence.
func Load(args []string) (*Config, error) {
	errFactory := errors.New()
	config := &Config{}

	fs := flag.NewFlagSet("cpupowerctl", flag.ContinueOnError)
	fs.Bool("debug", false, "Enable debugging mode")
	fs.Bool("verbose", false, "Enable verbose logging")
	fs.Int("idle-timeout", defaultIdleTimeout, "Seconds of inactivity before the helper exits (0 disables)")
	fs.Bool("history", false, "Record applied settings to the history database")
	fs.String("history-db", defaultHistoryDB, "Path to the history database")

	if err := fs.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	v := viper.New()
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("idle_timeout", defaultIdleTimeout)
	v.SetDefault("auth_timeout", defaultAuthTimeout)
	v.SetDefault("sysfs_root", defaultSysfsRoot)
	v.SetDefault("history", false)
	v.SetDefault("history_db", defaultHistoryDB)
	v.SetDefault("system_profile_dir", defaultSystemProfileDir)
	v.SetDefault("user_profile_dir", "")

	// CPUPOWERCTL_CONFIG pins an explicit config file, otherwise /etc is searched
	if path := os.Getenv("CPUPOWERCTL_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("cpupowerctl")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	// Command-line flags override config file values
	fs.Visit(func(f *flag.Flag) {
		key := f.Name
		switch key {
		case "idle-timeout":
			key = "idle_timeout"
		case "history-db":
			key = "history_db"
		}
		v.Set(key, f.Value.String())
	})

	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	errFactory := errors.New()

	switch c.LogLevel {
	case "debug", "info", "warning", "error":
	default:
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	if c.IdleTimeout < 0 {
		return errFactory.WithData(errors.ErrInvalidTimeout, c.IdleTimeout)
	}

	if c.AuthTimeout <= 0 {
		return errFactory.WithData(errors.ErrInvalidTimeout, c.AuthTimeout)
	}

	if c.History && c.HistoryDB == "" {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "history enabled without a database path")
	}

	return nil
}
