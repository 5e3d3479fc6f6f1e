package postgres

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/solitack2/sender-service/internal/domain"
)

// memberRepository implements domain.MemberRepository
type memberRepository struct {
	db *gorm.DB
}

// NewMemberRepository creates a new member repository
func NewMemberRepository(db *gorm.DB) domain.MemberRepository {
	return &memberRepository{
		db: db,
	}
}

// Upsert inserts the member or refreshes its attributes when the same
// (telegram_id, source_chat_id) pair was extracted before.
func (r *memberRepository) Upsert(ctx context.Context, member *domain.Member) error {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "telegram_id"}, {Name: "source_chat_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"access_hash", "username", "first_name", "last_name",
			"source_title", "extracted_by", "extracted_at",
		}),
	}).Create(member)

	if result.Error != nil {
		return domain.ErrDatabaseOperation
	}
	return nil
}

// ListByChat retrieves every member extracted from one source chat
func (r *memberRepository) ListByChat(ctx context.Context, chatID int64) ([]domain.Member, error) {
	var members []domain.Member
	result := r.db.WithContext(ctx).
		Where("source_chat_id = ?", chatID).
		Order("id ASC").
		Find(&members)

	if result.Error != nil {
		return nil, domain.ErrDatabaseOperation
	}
	return members, nil
}

// AccessHashes resolves the stored access hashes for a recipient id set.
// Ids never extracted are simply absent from the result.
func (r *memberRepository) AccessHashes(ctx context.Context, telegramIDs []int64) (map[int64]int64, error) {
	hashes := make(map[int64]int64, len(telegramIDs))
	if len(telegramIDs) == 0 {
		return hashes, nil
	}

	type row struct {
		TelegramID int64
		AccessHash int64
	}
	var rows []row
	result := r.db.WithContext(ctx).
		Model(&domain.Member{}).
		Select("telegram_id, access_hash").
		Where("telegram_id IN ?", telegramIDs).
		Scan(&rows)

	if result.Error != nil {
		return nil, domain.ErrDatabaseOperation
	}

	for _, r := range rows {
		hashes[r.TelegramID] = r.AccessHash
	}
	return hashes, nil
}
