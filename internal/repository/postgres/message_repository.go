package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/solitack2/sender-service/internal/domain"
)

// messageRepository implements domain.MessageRepository
type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *gorm.DB) domain.MessageRepository {
	return &messageRepository{
		db: db,
	}
}

// Append records a pending send attempt
func (r *messageRepository) Append(ctx context.Context, msg *domain.Message) error {
	msg.Status = domain.MessageStatusPending
	if result := r.db.WithContext(ctx).Create(msg); result.Error != nil {
		return domain.ErrDatabaseOperation
	}
	return nil
}

// MarkSent transitions one pending message to sent. The pending guard makes
// the transition single-shot.
func (r *messageRepository) MarkSent(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id = ? AND status = ?", id, domain.MessageStatusPending).
		Updates(map[string]interface{}{
			"status":  domain.MessageStatusSent,
			"sent_at": time.Now(),
		})

	if result.Error != nil {
		return domain.ErrDatabaseOperation
	}
	return nil
}

// MarkFailed transitions one pending message to failed with its reason
func (r *messageRepository) MarkFailed(ctx context.Context, id uint, reason string) error {
	result := r.db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id = ? AND status = ?", id, domain.MessageStatusPending).
		Updates(map[string]interface{}{
			"status":     domain.MessageStatusFailed,
			"error_text": reason,
		})

	if result.Error != nil {
		return domain.ErrDatabaseOperation
	}
	return nil
}

// ListByStatus retrieves messages in a status within a creation time range
func (r *messageRepository) ListByStatus(ctx context.Context, status domain.MessageStatus, from, to time.Time) ([]domain.Message, error) {
	var messages []domain.Message
	query := r.db.WithContext(ctx).Where("status = ?", status)
	if !from.IsZero() {
		query = query.Where("created_at >= ?", from)
	}
	if !to.IsZero() {
		query = query.Where("created_at < ?", to)
	}

	if result := query.Order("created_at ASC").Find(&messages); result.Error != nil {
		return nil, domain.ErrDatabaseOperation
	}
	return messages, nil
}
