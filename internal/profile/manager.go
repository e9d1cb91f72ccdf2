package profile

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"codeberg.org/mutker/cpupowerctl/internal/errors"
	"codeberg.org/mutker/cpupowerctl/internal/logger"
	"codeberg.org/mutker/cpupowerctl/internal/sysfs"
)

const (
	DefaultSystemDir = "/etc/cpupowerctl.d"

	fileSuffix = ".profile"
)

// DefaultUserDir returns the per-user profile directory.
func DefaultUserDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "cpupowerctl")
}

// Manager owns the profile set: generated builtins, system profiles and
// user profiles, loaded in that order so later sources override earlier
// ones by name.
type Manager struct {
	sysfs     *sysfs.Accessor
	systemDir string
	userDir   string
	profiles  map[string]*Profile
}

func NewManager(accessor *sysfs.Accessor, systemDir, userDir string) *Manager {
	m := &Manager{
		sysfs:     accessor,
		systemDir: systemDir,
		userDir:   userDir,
	}
	m.Reload()
	return m
}

// Reload rebuilds the profile set from scratch.
func (m *Manager) Reload() {
	m.profiles = make(map[string]*Profile)
	m.generateBuiltins()
	m.loadDir(m.systemDir, true)
	m.loadDir(m.userDir, false)
}

// Names returns all profile names, sorted.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.profiles))
	for name := range m.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the named profile.
func (m *Manager) Get(name string) (*Profile, error) {
	prof, ok := m.profiles[name]
	if !ok {
		return nil, errors.New().WithData(ErrProfileNotFound, name)
	}
	return prof, nil
}

// Create saves a user profile. System and builtin profiles cannot be
// overwritten; the file name is derived from the profile name with spaces
// turned into dashes.
func (m *Manager) Create(name string, entries []Entry) error {
	errFactory := errors.New()

	if name == "" {
		return errFactory.New(ErrEmptyName)
	}
	if existing, ok := m.profiles[name]; ok && !existing.Deletable() {
		return errFactory.WithData(ErrProtected, name)
	}

	if err := os.MkdirAll(m.userDir, 0o755); err != nil {
		return errFactory.Wrap(ErrWriteProfile, err)
	}

	safeName := strings.ReplaceAll(name, " ", "-")
	prof := &Profile{
		Name:     name,
		FilePath: filepath.Join(m.userDir, "cpg-"+safeName+fileSuffix),
		Settings: make(map[int]Entry),
	}
	for _, entry := range entries {
		prof.Settings[entry.CPU] = entry
	}

	if err := prof.write(); err != nil {
		return errFactory.Wrap(ErrWriteProfile, err)
	}

	m.profiles[name] = prof
	logger.Info().Str("name", name).Str("path", prof.FilePath).Msg("Profile saved")
	return nil
}

// Delete removes a user profile and its file.
func (m *Manager) Delete(name string) error {
	errFactory := errors.New()

	prof, ok := m.profiles[name]
	if !ok {
		return errFactory.WithData(ErrProfileNotFound, name)
	}
	if !prof.Deletable() {
		return errFactory.WithData(ErrProtected, name)
	}

	if prof.FilePath != "" {
		if err := os.Remove(prof.FilePath); err != nil && !os.IsNotExist(err) {
			return errFactory.Wrap(ErrDeleteProfile, err)
		}
	}

	delete(m.profiles, name)
	return nil
}

func (m *Manager) loadDir(dir string, system bool) {
	if dir == "" {
		return
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	names := make([]string, 0, len(files))
	for _, f := range files {
		if f.Type().IsRegular() && strings.HasSuffix(f.Name(), fileSuffix) {
			names = append(names, f.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		prof, err := parseFile(m.sysfs, path, system)
		if err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("Skipping unreadable profile file")
			continue
		}
		if !prof.valid() {
			logger.Warn().Str("path", path).Msg("Skipping profile with no usable entries")
			continue
		}
		m.profiles[prof.Name] = prof
	}
}

// generateBuiltins derives one profile per available governor plus a
// "Balanced" profile picking the most suitable governor the hardware
// offers. All of them run every available CPU at full hardware range.
func (m *Manager) generateBuiltins() {
	if m.sysfs == nil {
		return
	}

	governors := m.sysfs.AvailableGovernors(0)
	if len(governors) == 0 {
		return
	}

	cpus := m.sysfs.AvailableCPUs()

	balanced := ""
	for _, candidate := range []string{"schedutil", "ondemand", "powersave"} {
		if containsString(governors, candidate) {
			balanced = candidate
			break
		}
	}
	if balanced != "" {
		m.profiles["Balanced"] = m.builtinProfile("Balanced", balanced, cpus)
	}

	for _, governor := range governors {
		if governor == "userspace" {
			continue
		}
		name := strings.ToUpper(governor[:1]) + governor[1:]
		if _, ok := m.profiles[name]; ok {
			continue
		}
		m.profiles[name] = m.builtinProfile(name, governor, cpus)
	}
}

func (m *Manager) builtinProfile(name, governor string, cpus []int) *Profile {
	prof := &Profile{
		Name:     name,
		Builtin:  true,
		Settings: make(map[int]Entry),
	}
	for _, cpu := range cpus {
		hwMin, hwMax := m.sysfs.FreqLimits(cpu)
		prof.Settings[cpu] = Entry{
			CPU:      cpu,
			FreqMin:  hwMin,
			FreqMax:  hwMax,
			Governor: governor,
			Online:   true,
		}
	}
	return prof
}

func containsString(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
