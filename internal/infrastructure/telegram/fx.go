package telegram

import (
	"context"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/solitack2/sender-service/config"
	"github.com/solitack2/sender-service/internal/domain"
)

// Module provides the MTProto connection manager
var Module = fx.Module(
	"telegram",
	fx.Provide(NewConnManagerFx),
)

// NewConnManagerFx wires the connection manager into the fx lifecycle so
// every session still held at shutdown is disconnected.
func NewConnManagerFx(
	lc fx.Lifecycle,
	cfg *config.TelegramConfig,
	registry domain.AccountRepository,
	proxies domain.ProxyRepository,
	logger zerolog.Logger,
) domain.ConnectionManager {
	manager := NewConnManager(cfg, registry, proxies, logger)

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			manager.ReleaseAll()
			return nil
		},
	})

	return manager
}
