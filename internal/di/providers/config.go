// Package providers contains the dependency injection providers.
package providers

import (
	"log/slog"
	"time"

	"github.com/samber/do/v2"

	"github.com/theLastOfCats/anishelf/internal/auth"
	"github.com/theLastOfCats/anishelf/internal/config"
	"github.com/theLastOfCats/anishelf/internal/logger"
)

const shutdownTimeout = 10 * time.Second

// ConfigProvider loads configuration from args and the environment, and
// initialises token signing with the configured secret.
func ConfigProvider(args []string) func(do.Injector) (*config.Config, error) {
	return func(i do.Injector) (*config.Config, error) {
		cfg, err := config.Load(args)
		if err != nil {
			return nil, err
		}
		auth.Init(cfg.Auth.JWTSecret)
		return cfg, nil
	}
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*slog.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
	})
	slog.SetDefault(log)

	log.Info("Starting anishelf",
		"environment", cfg.App.Environment,
		"log_level", cfg.App.LogLevel,
		"auth_mode", cfg.Auth.Mode,
	)
	return log, nil
}
