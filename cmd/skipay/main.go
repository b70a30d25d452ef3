package main

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"time"

	"github.com/caarlos0/env/v6"

	"github.com/devkekops/skipay/internal/app/config"
	"github.com/devkekops/skipay/internal/app/logger"
	"github.com/devkekops/skipay/internal/app/server"
	"github.com/devkekops/skipay/internal/app/settings"
	"github.com/devkekops/skipay/internal/app/sweeper"
)

func main() {
	randBytes := make([]byte, 32)
	if _, err := rand.Read(randBytes); err != nil {
		logger.Logger.Fatal().Err(err).Msg("generate secret key")
	}

	cfg := config.Config{
		RunAddress:      "localhost:8080",
		SecretKey:       hex.EncodeToString(randBytes),
		TokenTTL:        24 * time.Hour,
		SweepInterval:   sweeper.DefaultInterval,
		SettingsTimeout: settings.DefaultTimeout,
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        "info",
	}

	if err := env.Parse(&cfg); err != nil {
		logger.Logger.Fatal().Err(err).Msg("parse environment")
	}

	flag.StringVar(&cfg.RunAddress, "a", cfg.RunAddress, "run address")
	flag.StringVar(&cfg.DatabaseURI, "d", cfg.DatabaseURI, "database URI: empty for memory, sqlite://path or a postgres DSN")
	flag.StringVar(&cfg.SecretKey, "s", cfg.SecretKey, "JWT signing key")
	flag.DurationVar(&cfg.SweepInterval, "i", cfg.SweepInterval, "expiry sweep interval")
	flag.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	flag.Parse()

	logger.Initialize(cfg.LogLevel, cfg.LogPretty)

	if err := server.Serve(&cfg); err != nil {
		logger.Logger.Fatal().Err(err).Msg("server stopped")
	}
}
