package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/cpupowerctl/internal/config"
	"codeberg.org/mutker/cpupowerctl/internal/helper"
	"codeberg.org/mutker/cpupowerctl/internal/history"
	"codeberg.org/mutker/cpupowerctl/internal/logger"
	"codeberg.org/mutker/cpupowerctl/internal/sysfs"
	"github.com/godbus/dbus/v5"
)

var cfg *config.Config

func init() {
	var err error
	cfg, err = config.Load(os.Args[1:])
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Debug, cfg.Verbose, logger.IsService())
	logger.Debug().Msg("Config loaded")
}

func main() {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to the system bus")
	}
	defer conn.Close()

	historyCfg := history.DefaultConfig()
	historyCfg.Enabled = cfg.History
	historyCfg.DBPath = cfg.HistoryDB
	recorder, err := history.NewService(historyCfg, logger.Default())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize history recorder")
	}
	defer func() {
		if err := recorder.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close history recorder")
		}
	}()

	authorizer := helper.NewAuthorizer(
		helper.NewPolkitAuthority(conn),
		time.Duration(cfg.AuthTimeout)*time.Second,
	)

	service := helper.NewService(
		sysfs.NewWithRoot(cfg.SysfsRoot),
		authorizer,
		recorder,
		time.Duration(cfg.IdleTimeout)*time.Second,
	)

	if err := service.Register(conn); err != nil {
		logger.Fatal().Err(err).Msg("failed to register helper service")
	}

	go handleSignals(service)

	<-service.Done()
	logger.Info().Msg("Helper service stopped")
}

func handleSignals(service *helper.Service) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	service.Shutdown()
}
