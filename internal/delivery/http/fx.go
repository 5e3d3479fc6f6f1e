package http

import (
	"context"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/solitack2/sender-service/config"
	"github.com/solitack2/sender-service/internal/infrastructure/http/server"
)

// Module provides the HTTP delivery layer
var Module = fx.Module(
	"http",
	fx.Provide(
		NewJobHandler,
		NewPoolHandler,
		NewHealthHandler,
		NewRouter,
	),
	fx.Invoke(registerServerLifecycle),
)

func registerServerLifecycle(
	lc fx.Lifecycle,
	cfg *config.ServiceConfig,
	router *Router,
	logger zerolog.Logger,
) {
	srv := server.NewServer(cfg.Name, cfg.Port, logger.With().Str("component", "http_server").Logger())
	router.RegisterRoutes(srv.Router)
	srv.RegisterMetrics()

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			return srv.Start()
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
