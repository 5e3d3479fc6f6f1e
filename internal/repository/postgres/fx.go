package postgres

import (
	"go.uber.org/fx"
)

// Module provides all postgres repositories
var Module = fx.Module(
	"repository",
	fx.Provide(
		NewAccountRepository,
		NewCategoryRepository,
		NewProxyRepository,
		NewMemberRepository,
		NewMessageRepository,
		NewJobRepository,
		NewSettingsRepository,
	),
)
