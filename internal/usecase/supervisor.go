package usecase

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/solitack2/sender-service/internal/domain"
	"github.com/solitack2/sender-service/internal/infrastructure/metrics"
)

// runningJob is the cancellation handle of one in-flight job.
type runningJob struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Supervisor tracks exactly one cancellable unit of execution per active
// job. Job rows are persisted before the run starts, settled with the
// terminal state afterwards, and every terminal transition is published as
// a lifecycle event.
type Supervisor struct {
	mu      sync.Mutex
	running map[uint]*runningJob

	jobs       domain.JobRepository
	producer   domain.EventProducer
	dispatch   domain.DispatchRunner
	extraction domain.ExtractionRunner
	logger     zerolog.Logger
	metrics    *metrics.Metrics
}

// NewSupervisor creates the job supervisor
func NewSupervisor(
	jobs domain.JobRepository,
	producer domain.EventProducer,
	dispatch domain.DispatchRunner,
	extraction domain.ExtractionRunner,
	logger zerolog.Logger,
) *Supervisor {
	return &Supervisor{
		running:    make(map[uint]*runningJob),
		jobs:       jobs,
		producer:   producer,
		dispatch:   dispatch,
		extraction: extraction,
		logger:     logger.With().Str("component", "supervisor").Logger(),
		metrics:    metrics.GetDefaultMetrics(),
	}
}

// StartDispatch validates and persists a dispatch job, then runs it in the
// background. The returned job is a snapshot in the running state; the live
// struct belongs to the background run from here on.
func (s *Supervisor) StartDispatch(ctx context.Context, req domain.DispatchRequest) (*domain.Job, error) {
	if req.Text == "" && req.MediaPath == "" {
		return nil, fmt.Errorf("dispatch job needs a payload")
	}
	if len(req.Recipients) == 0 {
		return nil, fmt.Errorf("dispatch job needs recipients")
	}

	job := &domain.Job{
		Kind:       domain.JobKindDispatch,
		CategoryID: req.CategoryID,
		Text:       req.Text,
		MediaPath:  req.MediaPath,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	snapshot := *job
	s.launch(job, func(jobCtx context.Context) error {
		report, err := s.dispatch.RunDispatch(jobCtx, job, req)
		job.Attempted = report.Attempted
		job.Sent = report.Sent
		job.Failed = report.Failed
		job.Skipped = report.Skipped
		return err
	})

	return &snapshot, nil
}

// StartExtraction validates and persists an extraction job, then runs it in
// the background.
func (s *Supervisor) StartExtraction(ctx context.Context, req domain.ExtractionRequest) (*domain.Job, error) {
	if req.Chat == "" {
		return nil, domain.ErrInvalidChatIdentifier
	}

	accountID := req.AccountID
	job := &domain.Job{
		Kind:       domain.JobKindExtraction,
		AccountID:  &accountID,
		TargetChat: req.Chat,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	snapshot := *job
	s.launch(job, func(jobCtx context.Context) error {
		extracted, err := s.extraction.RunExtraction(jobCtx, job)
		job.Extracted = extracted
		return err
	})

	return &snapshot, nil
}

// launch runs the job body on its own goroutine with a cancellable context
// detached from the caller's request. The goroutine is the sole writer of
// the job struct from this point: the body mutates its counters and launch
// settles the terminal status, persists it and publishes the event.
func (s *Supervisor) launch(job *domain.Job, body func(ctx context.Context) error) {
	jobCtx, cancel := context.WithCancel(context.Background())
	handle := &runningJob{cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	s.running[job.ID] = handle
	s.mu.Unlock()

	logger := s.logger.With().Uint("job_id", job.ID).Str("kind", string(job.Kind)).Logger()
	logger.Info().Msg("job started")

	go func() {
		defer close(handle.done)
		defer cancel()
		defer func() {
			s.mu.Lock()
			delete(s.running, job.ID)
			s.mu.Unlock()
		}()

		defer func() {
			if r := recover(); r != nil {
				logger.Error().
					Interface("panic", r).
					Str("stack", string(debug.Stack())).
					Msg("job panic recovered")
				job.Status = domain.JobStatusFailed
				job.LastError = fmt.Sprintf("panic: %v", r)
				s.settle(job, logger)
			}
		}()

		err := body(jobCtx)
		switch {
		case err == nil:
			job.Status = domain.JobStatusCompleted
		case errors.Is(err, context.Canceled):
			job.Status = domain.JobStatusCancelled
		default:
			job.Status = domain.JobStatusFailed
			job.LastError = err.Error()
		}

		s.settle(job, logger)
	}()
}

// settle persists the job's terminal state and publishes the lifecycle
// event. Both are best-effort: a reporting failure never resurrects a job.
func (s *Supervisor) settle(job *domain.Job, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.jobs.Finish(ctx, job); err != nil {
		logger.Error().Err(err).Msg("failed to persist job result")
	}

	event := domain.JobEvent{
		JobID:     job.ID,
		Kind:      job.Kind,
		Status:    job.Status,
		Attempted: job.Attempted,
		Sent:      job.Sent,
		Failed:    job.Failed,
		Skipped:   job.Skipped,
		Extracted: job.Extracted,
		Error:     job.LastError,
		Timestamp: time.Now(),
	}
	if err := s.producer.PublishJobEvent(ctx, event); err != nil {
		logger.Warn().Err(err).Msg("failed to publish job event")
	}

	s.metrics.RecordJob(string(job.Kind), string(job.Status))
	logger.Info().
		Str("status", string(job.Status)).
		Int("sent", job.Sent).
		Int("failed", job.Failed).
		Int("skipped", job.Skipped).
		Int("extracted", job.Extracted).
		Msg("job finished")
}

// Cancel signals the job's cooperative loop to stop at its next suspension
// point. Jobs that already finished are not cancellable.
func (s *Supervisor) Cancel(jobID uint) error {
	s.mu.Lock()
	handle, ok := s.running[jobID]
	s.mu.Unlock()

	if !ok {
		return domain.ErrJobNotFound
	}

	handle.cancel()
	return nil
}

// Status retrieves the persisted job state
func (s *Supervisor) Status(ctx context.Context, jobID uint) (*domain.Job, error) {
	return s.jobs.GetByID(ctx, jobID)
}

// List retrieves the most recent jobs
func (s *Supervisor) List(ctx context.Context, limit int) ([]domain.Job, error) {
	return s.jobs.List(ctx, limit)
}

// Shutdown cancels every running job and waits for them to settle, bounded
// by the context.
func (s *Supervisor) Shutdown(ctx context.Context) {
	s.mu.Lock()
	handles := make([]*runningJob, 0, len(s.running))
	for _, h := range s.running {
		h.cancel()
		handles = append(handles, h)
	}
	s.mu.Unlock()

	for _, h := range handles {
		select {
		case <-h.done:
		case <-ctx.Done():
			return
		}
	}
}

var _ domain.JobSupervisor = (*Supervisor)(nil)
