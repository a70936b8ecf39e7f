package order

import "go.uber.org/fx"

// Module provides the order partition store to Fx.
var Module = fx.Provide(NewRepository)
