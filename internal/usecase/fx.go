package usecase

import (
	"context"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/solitack2/sender-service/internal/domain"
)

// Module provides the scheduler use cases
var Module = fx.Module(
	"usecase",
	fx.Provide(
		NewProxyAllocator,
		NewDispatchUseCase,
		NewExtractUseCase,
		NewAccountUseCase,
		NewSupervisorFx,
	),
)

// NewSupervisorFx wires the supervisor into the fx lifecycle so running jobs
// are cancelled and settled on shutdown.
func NewSupervisorFx(
	lc fx.Lifecycle,
	jobs domain.JobRepository,
	producer domain.EventProducer,
	dispatch domain.DispatchRunner,
	extraction domain.ExtractionRunner,
	logger zerolog.Logger,
) domain.JobSupervisor {
	supervisor := NewSupervisor(jobs, producer, dispatch, extraction, logger)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			supervisor.Shutdown(ctx)
			return nil
		},
	})

	return supervisor
}
