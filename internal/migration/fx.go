package migration

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/agentdesk/internal/authorization"
	"github.com/smallbiznis/agentdesk/internal/config"
	"github.com/smallbiznis/agentdesk/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, node *snowflake.Node, authz authorization.Service, log *zap.Logger) error {
		if err := Apply(conn); err != nil {
			return err
		}

		ctx := context.Background()
		if err := seed.EnsureLedgerAccounts(ctx, conn, node); err != nil {
			return err
		}
		if cfg.Bootstrap.AdminID != "" {
			if err := seed.EnsureBootstrapAdmin(ctx, authz, cfg.Bootstrap.AdminID); err != nil {
				return err
			}
			log.Info("bootstrap admin ensured", zap.String("actor_id", cfg.Bootstrap.AdminID))
		}
		return nil
	}),
)
