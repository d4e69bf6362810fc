package main

import (
	"github.com/ilyakaznacheev/cleanenv"
)

type (
	ServiceConfig struct {
		Environment string `env:"TREESCOPE_ENVIRONMENT" env-default:"development"`
		Port        int    `env:"TREESCOPE_PORT" env-default:"8080"`

		SentryDSN string `env:"SENTRY_DSN"`
		JSONLog   bool   `env:"TREESCOPE_JSON_LOG" env-default:"false"`
	}
)

func loadConfig() (ServiceConfig, error) {
	var config ServiceConfig
	err := cleanenv.ReadEnv(&config)
	return config, err
}
