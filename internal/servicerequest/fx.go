package servicerequest

import (
	"github.com/smallbiznis/agentdesk/internal/ratelimit"
	servicerequestdomain "github.com/smallbiznis/agentdesk/internal/servicerequest/domain"
	"github.com/smallbiznis/agentdesk/internal/servicerequest/repository"
	"github.com/smallbiznis/agentdesk/internal/servicerequest/service"
	"go.uber.org/fx"
)

var Module = fx.Module("servicerequest.service",
	fx.Provide(repository.Provide),
	fx.Provide(provideLocker),
	fx.Provide(service.NewService),
)

func provideLocker(limiter *ratelimit.Limiter) servicerequestdomain.Locker {
	if !limiter.Enabled() {
		return nil
	}
	return limiter
}
