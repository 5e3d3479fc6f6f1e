package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/solitack2/sender-service/internal/domain"
)

// jobRepository implements domain.JobRepository
type jobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new job repository
func NewJobRepository(db *gorm.DB) domain.JobRepository {
	return &jobRepository{
		db: db,
	}
}

// Create persists a new running job
func (r *jobRepository) Create(ctx context.Context, job *domain.Job) error {
	job.Status = domain.JobStatusRunning
	if result := r.db.WithContext(ctx).Create(job); result.Error != nil {
		return domain.ErrDatabaseOperation
	}
	return nil
}

// GetByID retrieves a job by id
func (r *jobRepository) GetByID(ctx context.Context, id uint) (*domain.Job, error) {
	var job domain.Job
	result := r.db.WithContext(ctx).First(&job, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domain.ErrJobNotFound
		}
		return nil, domain.ErrDatabaseOperation
	}
	return &job, nil
}

// Finish records the job's terminal state and counters
func (r *jobRepository) Finish(ctx context.Context, job *domain.Job) error {
	now := time.Now()
	job.FinishedAt = &now

	result := r.db.WithContext(ctx).
		Model(&domain.Job{}).
		Where("id = ?", job.ID).
		Updates(map[string]interface{}{
			"status":      job.Status,
			"attempted":   job.Attempted,
			"sent":        job.Sent,
			"failed":      job.Failed,
			"skipped":     job.Skipped,
			"extracted":   job.Extracted,
			"last_error":  job.LastError,
			"finished_at": now,
		})

	if result.Error != nil {
		return domain.ErrDatabaseOperation
	}
	if result.RowsAffected == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

// List retrieves the most recent jobs
func (r *jobRepository) List(ctx context.Context, limit int) ([]domain.Job, error) {
	var jobs []domain.Job
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	if result := query.Find(&jobs); result.Error != nil {
		return nil, domain.ErrDatabaseOperation
	}
	return jobs, nil
}
