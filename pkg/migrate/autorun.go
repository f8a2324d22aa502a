package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/settlement-engine/pkg/config"
	"github.com/angelmondragon/settlement-engine/pkg/db"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
)

// MaybeRunDev applies pending migrations on startup, but only in dev with
// SETTLEMENT_AUTO_MIGRATE set.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":          cfg.App.Env,
		"service_kind": cfg.Service.Kind,
	})
	logg.Info(ctx, "applying embedded migrations")
	if err := Run(ctx, sqlDB, "up"); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	logg.Info(ctx, "migrations applied")
	return nil
}
