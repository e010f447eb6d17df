// Package config содержит логику чтения конфигурации сервиса выдачи книг.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса выдачи книг.
type Config struct {
	RunAddress           string        `env:"RUN_ADDRESS"`
	DatabaseURI          string        `env:"DATABASE_URI"`
	UserServiceAddress   string        `env:"USER_SERVICE_ADDRESS"`
	BookServiceAddress   string        `env:"BOOK_SERVICE_ADDRESS"`
	OverdueSweepInterval time.Duration `env:"OVERDUE_SWEEP_INTERVAL"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envUserAddress := cfg.UserServiceAddress
	envBookAddress := cfg.BookServiceAddress
	envSweepInterval := cfg.OverdueSweepInterval

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8083", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.UserServiceAddress, "u", "", "user service address")
	flag.StringVar(&cfg.BookServiceAddress, "b", "", "book service address")
	flag.DurationVar(&cfg.OverdueSweepInterval, "i", time.Hour, "interval between overdue sweeps")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envUserAddress != "" {
		cfg.UserServiceAddress = envUserAddress
	}
	if envBookAddress != "" {
		cfg.BookServiceAddress = envBookAddress
	}
	if envSweepInterval != 0 {
		cfg.OverdueSweepInterval = envSweepInterval
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8083"
	}

	return cfg, nil
}
