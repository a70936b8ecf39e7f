package app

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/orderdesk/internal/cache"
	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/database"
	"github.com/Additional-Code/orderdesk/internal/logger"
	"github.com/Additional-Code/orderdesk/internal/messaging"
	"github.com/Additional-Code/orderdesk/internal/notify"
	"github.com/Additional-Code/orderdesk/internal/observability"
	repositoryorder "github.com/Additional-Code/orderdesk/internal/repository/order"
	repositoryuser "github.com/Additional-Code/orderdesk/internal/repository/user"
	grpcserver "github.com/Additional-Code/orderdesk/internal/server/grpc"
	httpserver "github.com/Additional-Code/orderdesk/internal/server/http"
	serviceorder "github.com/Additional-Code/orderdesk/internal/service/order"
	serviceverification "github.com/Additional-Code/orderdesk/internal/service/verification"
	transporthttp "github.com/Additional-Code/orderdesk/internal/transport/http"
	"github.com/Additional-Code/orderdesk/internal/worker"
	workerorder "github.com/Additional-Code/orderdesk/internal/worker/order"
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	config.Module,
	cache.Module,
	database.Module,
	logger.Module,
	messaging.Module,
	observability.Module,
	repositoryorder.Module,
	repositoryuser.Module,
	serviceorder.Module,
)

// HTTP wires the HTTP and gRPC health transports on top of the core modules.
var HTTP = fx.Options(
	Core,
	notify.Module,
	serviceverification.Module,
	httpserver.Module,
	grpcserver.Module,
	transporthttp.Module,
)

// Worker exposes background worker processing.
var Worker = fx.Options(
	Core,
	worker.Module,
	workerorder.Module,
)

// Module is the default application wiring (HTTP only).
var Module = HTTP
