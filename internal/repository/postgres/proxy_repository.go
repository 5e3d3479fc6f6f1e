package postgres

import (
	"context"
	"errors"
	"sort"

	"gorm.io/gorm"

	"github.com/solitack2/sender-service/internal/domain"
)

// proxyRepository implements domain.ProxyRepository
type proxyRepository struct {
	db *gorm.DB
}

// NewProxyRepository creates a new proxy repository
func NewProxyRepository(db *gorm.DB) domain.ProxyRepository {
	return &proxyRepository{
		db: db,
	}
}

// ListActive retrieves active proxies annotated with their current
// occupancy, least-loaded first with id as the tiebreaker. The ordering is
// what makes proxy allocation deterministic.
func (r *proxyRepository) ListActive(ctx context.Context) ([]domain.Proxy, error) {
	var proxies []domain.Proxy
	result := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("id ASC").
		Find(&proxies)
	if result.Error != nil {
		return nil, domain.ErrDatabaseOperation
	}

	type countRow struct {
		ProxyID uint
		Count   int64
	}
	var counts []countRow
	result = r.db.WithContext(ctx).
		Model(&domain.Account{}).
		Select("proxy_id, COUNT(*) AS count").
		Where("proxy_id IS NOT NULL").
		Group("proxy_id").
		Scan(&counts)
	if result.Error != nil {
		return nil, domain.ErrDatabaseOperation
	}

	byID := make(map[uint]int64, len(counts))
	for _, c := range counts {
		byID[c.ProxyID] = c.Count
	}
	for i := range proxies {
		proxies[i].Occupancy = byID[proxies[i].ID]
	}

	// Equal occupancy keeps id order from the query.
	sort.SliceStable(proxies, func(i, j int) bool {
		return proxies[i].Occupancy < proxies[j].Occupancy
	})

	return proxies, nil
}

// GetByID retrieves a proxy by id
func (r *proxyRepository) GetByID(ctx context.Context, id uint) (*domain.Proxy, error) {
	var p domain.Proxy
	result := r.db.WithContext(ctx).First(&p, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domain.ErrProxyNotFound
		}
		return nil, domain.ErrDatabaseOperation
	}
	return &p, nil
}

// Create registers a new proxy
func (r *proxyRepository) Create(ctx context.Context, proxy *domain.Proxy) error {
	if result := r.db.WithContext(ctx).Create(proxy); result.Error != nil {
		return domain.ErrDatabaseOperation
	}
	return nil
}
