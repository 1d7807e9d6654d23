// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"errors"

	"github.com/dalemusser/coachhub/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built. It applies
// timeout overrides and starts the background jobs.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if deps.Services == nil {
		return errors.New("services not initialized")
	}
	if n := timeouts.ConfigureFromEnv(); n > 0 {
		logger.Info("timeout overrides applied", zap.Int("count", n))
	}
	deps.Services.Runner.Start()
	logger.Info("background jobs started")
	return nil
}
