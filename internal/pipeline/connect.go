package pipeline

import (
	"context"

	"arrivals_etl/internal/config"
	"arrivals_etl/internal/logger"
	"arrivals_etl/internal/notify"
	"arrivals_etl/internal/storage"
)

// Connect opens the optional mirrors and run-summary publisher named in
// cfg. Connection failures are logged and the component is left out; the
// returned func releases whatever was opened.
func Connect(ctx context.Context, cfg config.Config, log logger.Logger) (storage.Mirrors, notify.Publisher, func()) {
	mirrors, errs := storage.OpenMirrors(ctx, storage.MirrorConfig{
		Postgres: storage.PostgresConfig{DSN: cfg.Postgres.DSN},
		ClickHouse: storage.ClickHouseConfig{
			Addr:     cfg.ClickHouse.Addr,
			Database: cfg.ClickHouse.Database,
			User:     cfg.ClickHouse.User,
			Password: cfg.ClickHouse.Password,
		},
	})
	for name, err := range errs {
		log.Warn("mirror unavailable", "mirror", name, "error", err)
	}

	var pub notify.Publisher
	if cfg.NATS.URL != "" {
		n, err := notify.Connect(cfg.NATS.URL, cfg.NATS.Subject)
		if err != nil {
			log.Warn("nats unavailable", "url", cfg.NATS.URL, "error", err)
		} else {
			pub = n
		}
	}

	return mirrors, pub, func() {
		if err := mirrors.Close(); err != nil {
			log.Warn("close mirrors", "error", err)
		}
		if pub != nil {
			pub.Close()
		}
	}
}
