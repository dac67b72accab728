package receipt

import "go.uber.org/fx"

var Module = fx.Module("receipt.provider",
	fx.Provide(New),
)
