package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/agentdesk/internal/artifact"
	"github.com/smallbiznis/agentdesk/internal/audit"
	"github.com/smallbiznis/agentdesk/internal/authorization"
	"github.com/smallbiznis/agentdesk/internal/clock"
	"github.com/smallbiznis/agentdesk/internal/config"
	"github.com/smallbiznis/agentdesk/internal/fee"
	"github.com/smallbiznis/agentdesk/internal/ledger"
	"github.com/smallbiznis/agentdesk/internal/migration"
	"github.com/smallbiznis/agentdesk/internal/observability"
	"github.com/smallbiznis/agentdesk/internal/ratelimit"
	"github.com/smallbiznis/agentdesk/internal/receipt"
	"github.com/smallbiznis/agentdesk/internal/server"
	"github.com/smallbiznis/agentdesk/internal/servicerequest"
	"github.com/smallbiznis/agentdesk/internal/wallet"
	"github.com/smallbiznis/agentdesk/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Admin needs the whole lifecycle plus bookkeeping
		authorization.Module,
		audit.Module,
		ledger.Module,
		wallet.Module,
		fee.Module,
		ratelimit.Module,
		artifact.Module,
		receipt.Module,
		servicerequest.Module,
		migration.Module,

		server.Module,
		fx.Invoke(func(s *server.Server) {
			s.RegisterAdminRoutes()
		}),
		fx.Invoke(server.RunHTTP),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(3)
	if err != nil {
		panic(err)
	}
	return node
}
