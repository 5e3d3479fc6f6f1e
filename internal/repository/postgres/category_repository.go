package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/solitack2/sender-service/internal/domain"
)

// categoryRepository implements domain.CategoryRepository
type categoryRepository struct {
	db *gorm.DB
}

// NewCategoryRepository creates a new category repository
func NewCategoryRepository(db *gorm.DB) domain.CategoryRepository {
	return &categoryRepository{
		db: db,
	}
}

// List retrieves all categories with their account counts
func (r *categoryRepository) List(ctx context.Context) ([]domain.Category, error) {
	var categories []domain.Category
	if result := r.db.WithContext(ctx).Order("id ASC").Find(&categories); result.Error != nil {
		return nil, domain.ErrDatabaseOperation
	}

	type countRow struct {
		CategoryID uint
		Count      int64
	}
	var counts []countRow
	result := r.db.WithContext(ctx).
		Model(&domain.Account{}).
		Select("category_id, COUNT(*) AS count").
		Where("category_id IS NOT NULL").
		Group("category_id").
		Scan(&counts)
	if result.Error != nil {
		return nil, domain.ErrDatabaseOperation
	}

	byID := make(map[uint]int64, len(counts))
	for _, c := range counts {
		byID[c.CategoryID] = c.Count
	}
	for i := range categories {
		categories[i].AccountCount = byID[categories[i].ID]
	}

	return categories, nil
}

// Create creates a new category
func (r *categoryRepository) Create(ctx context.Context, category *domain.Category) error {
	result := r.db.WithContext(ctx).Create(category)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return domain.ErrCategoryAlreadyExists
		}
		return domain.ErrDatabaseOperation
	}
	return nil
}

// GetByID retrieves a category by id
func (r *categoryRepository) GetByID(ctx context.Context, id uint) (*domain.Category, error) {
	var category domain.Category
	result := r.db.WithContext(ctx).First(&category, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCategoryNotFound
		}
		return nil, domain.ErrDatabaseOperation
	}
	return &category, nil
}
