package audit

import (
	"github.com/smallbiznis/agentdesk/internal/audit/repository"
	"github.com/smallbiznis/agentdesk/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
