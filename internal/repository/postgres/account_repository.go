package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/solitack2/sender-service/internal/domain"
)

// accountRepository implements domain.AccountRepository
type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *gorm.DB) domain.AccountRepository {
	return &accountRepository{
		db: db,
	}
}

// List retrieves accounts, optionally scoped to one category, in stable
// id order. Category names and proxy hosts are resolved for display.
func (r *accountRepository) List(ctx context.Context, categoryID *uint) ([]domain.Account, error) {
	var accounts []domain.Account
	query := r.db.WithContext(ctx).Order("id ASC")
	if categoryID != nil {
		query = query.Where("category_id = ?", *categoryID)
	}

	if result := query.Find(&accounts); result.Error != nil {
		return nil, domain.ErrDatabaseOperation
	}

	if err := r.resolveDisplayFields(ctx, accounts); err != nil {
		return nil, err
	}

	return accounts, nil
}

func (r *accountRepository) resolveDisplayFields(ctx context.Context, accounts []domain.Account) error {
	categoryIDs := make([]uint, 0)
	proxyIDs := make([]uint, 0)
	for _, a := range accounts {
		if a.CategoryID != nil {
			categoryIDs = append(categoryIDs, *a.CategoryID)
		}
		if a.ProxyID != nil {
			proxyIDs = append(proxyIDs, *a.ProxyID)
		}
	}

	categoryNames := make(map[uint]string)
	if len(categoryIDs) > 0 {
		var categories []domain.Category
		if result := r.db.WithContext(ctx).Where("id IN ?", categoryIDs).Find(&categories); result.Error != nil {
			return domain.ErrDatabaseOperation
		}
		for _, c := range categories {
			categoryNames[c.ID] = c.Name
		}
	}

	proxyHosts := make(map[uint]string)
	if len(proxyIDs) > 0 {
		var proxies []domain.Proxy
		if result := r.db.WithContext(ctx).Where("id IN ?", proxyIDs).Find(&proxies); result.Error != nil {
			return domain.ErrDatabaseOperation
		}
		for _, p := range proxies {
			proxyHosts[p.ID] = p.Host
		}
	}

	for i := range accounts {
		if accounts[i].CategoryID != nil {
			accounts[i].CategoryName = categoryNames[*accounts[i].CategoryID]
		}
		if accounts[i].ProxyID != nil {
			accounts[i].ProxyHost = proxyHosts[*accounts[i].ProxyID]
		}
	}
	return nil
}

// GetByID retrieves an account by id
func (r *accountRepository) GetByID(ctx context.Context, id uint) (*domain.Account, error) {
	var account domain.Account
	result := r.db.WithContext(ctx).First(&account, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, domain.ErrDatabaseOperation
	}
	return &account, nil
}

// Create registers a new account
func (r *accountRepository) Create(ctx context.Context, account *domain.Account) error {
	result := r.db.WithContext(ctx).Create(account)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return domain.ErrAccountAlreadyExists
		}
		return domain.ErrDatabaseOperation
	}
	return nil
}

// SetStatus updates the account's health state and last error in a single
// statement. Leaving flood_wait clears the stored deadline.
func (r *accountRepository) SetStatus(ctx context.Context, id uint, status domain.AccountStatus, lastError string) error {
	updates := map[string]interface{}{
		"status":     status,
		"last_error": lastError,
		"last_used":  time.Now(),
	}
	if status != domain.AccountStatusFloodWait {
		updates["flood_wait_until"] = nil
	}

	result := r.db.WithContext(ctx).
		Model(&domain.Account{}).
		Where("id = ?", id).
		Updates(updates)

	if result.Error != nil {
		return domain.ErrDatabaseOperation
	}
	if result.RowsAffected == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// SetFloodWait quarantines the account until the provider's resume time
func (r *accountRepository) SetFloodWait(ctx context.Context, id uint, until time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&domain.Account{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":           domain.AccountStatusFloodWait,
			"flood_wait_until": until,
		})

	if result.Error != nil {
		return domain.ErrDatabaseOperation
	}
	if result.RowsAffected == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// RecordUsage bumps the account's send counters and last-used timestamp
// atomically.
func (r *accountRepository) RecordUsage(ctx context.Context, id uint, success bool) error {
	updates := map[string]interface{}{
		"total_sent": gorm.Expr("total_sent + 1"),
		"last_used":  time.Now(),
	}
	if success {
		updates["successful_sent"] = gorm.Expr("successful_sent + 1")
	} else {
		updates["failed_sent"] = gorm.Expr("failed_sent + 1")
	}

	result := r.db.WithContext(ctx).
		Model(&domain.Account{}).
		Where("id = ?", id).
		Updates(updates)

	if result.Error != nil {
		return domain.ErrDatabaseOperation
	}
	if result.RowsAffected == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// AssignCategory moves the account into a category; nil detaches it
func (r *accountRepository) AssignCategory(ctx context.Context, id uint, categoryID *uint) error {
	result := r.db.WithContext(ctx).
		Model(&domain.Account{}).
		Where("id = ?", id).
		Update("category_id", categoryID)

	if result.Error != nil {
		return domain.ErrDatabaseOperation
	}
	if result.RowsAffected == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// AssignProxy binds the account to an egress proxy; nil means direct
func (r *accountRepository) AssignProxy(ctx context.Context, id uint, proxyID *uint) error {
	result := r.db.WithContext(ctx).
		Model(&domain.Account{}).
		Where("id = ?", id).
		Update("proxy_id", proxyID)

	if result.Error != nil {
		return domain.ErrDatabaseOperation
	}
	if result.RowsAffected == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}
