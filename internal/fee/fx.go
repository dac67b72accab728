package fee

import (
	"github.com/smallbiznis/agentdesk/internal/config"
	feedomain "github.com/smallbiznis/agentdesk/internal/fee/domain"
	"github.com/smallbiznis/agentdesk/internal/fee/service"
	"go.uber.org/fx"
)

var Module = fx.Module("fee.service",
	fx.Provide(provideScheduleSource),
	fx.Provide(service.NewService),
)

func provideScheduleSource(holder *config.FeeScheduleHolder) feedomain.ScheduleSource {
	return holder
}
