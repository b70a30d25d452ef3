package config

import "time"

type Config struct {
	RunAddress      string        `env:"RUN_ADDRESS"`
	DatabaseURI     string        `env:"DATABASE_URI"`
	SecretKey       string        `env:"SECRET_KEY"`
	TokenTTL        time.Duration `env:"TOKEN_TTL"`
	SweepInterval   time.Duration `env:"SWEEP_INTERVAL"`
	SettingsTimeout time.Duration `env:"SETTINGS_TIMEOUT"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"`
	LogLevel        string        `env:"LOG_LEVEL"`
	LogPretty       bool          `env:"LOG_PRETTY"`
	// AdminLogin and AdminPassword seed an admin account at startup when both are set.
	AdminLogin    string `env:"ADMIN_LOGIN"`
	AdminPassword string `env:"ADMIN_PASSWORD"`
}
