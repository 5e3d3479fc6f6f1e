package app

import (
	"go.uber.org/fx"

	"github.com/solitack2/sender-service/config"
	deliveryhttp "github.com/solitack2/sender-service/internal/delivery/http"
	"github.com/solitack2/sender-service/internal/infrastructure/database"
	"github.com/solitack2/sender-service/internal/infrastructure/kafka"
	"github.com/solitack2/sender-service/internal/infrastructure/logger"
	"github.com/solitack2/sender-service/internal/infrastructure/telegram"
	"github.com/solitack2/sender-service/internal/repository/postgres"
	"github.com/solitack2/sender-service/internal/usecase"
)

// CreateApp creates the fx application with all dependencies
func CreateApp() fx.Option {
	return fx.Options(
		fx.Provide(config.Out),
		fx.Provide(logger.NewLogger),
		fx.Provide(database.NewPostgresDB),
		fx.Invoke(database.RunMigrations),
		postgres.Module,
		kafka.Module,
		telegram.Module,
		usecase.Module,
		deliveryhttp.Module,
	)
}
