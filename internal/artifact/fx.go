package artifact

import "go.uber.org/fx"

var Module = fx.Module("artifact.service",
	fx.Provide(NewPresigner),
	fx.Provide(NewService),
)
