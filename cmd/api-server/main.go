// Command api-server serves the sales ledger HTTP API.
package main

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	server "github.com/xenking/sales-ledger/internal/app"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		cfg, err := server.LoadConfig()
		if err != nil {
			return errors.Wrap(err, "config")
		}
		lg.Info("Configuration loaded",
			zap.Bool("report_cache", cfg.Redis.Addr != ""),
			zap.Bool("release_on_cancel", cfg.Ledger.ReleaseOnCancel),
			zap.Duration("lock_timeout", cfg.Ledger.LockTimeout),
		)
		return server.Run(ctx, lg, m, cfg)
	})
}
