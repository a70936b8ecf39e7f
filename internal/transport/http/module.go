package http

import (
	"go.uber.org/fx"

	authtransport "github.com/Additional-Code/orderdesk/internal/transport/http/auth"
	ordertransport "github.com/Additional-Code/orderdesk/internal/transport/http/order"
)

// Module aggregates all HTTP transport handlers.
var Module = fx.Options(
	ordertransport.Module,
	authtransport.Module,
)
