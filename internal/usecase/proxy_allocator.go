package usecase

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/solitack2/sender-service/internal/domain"
)

// ProxyAllocator balances account egress across proxies by occupancy.
// Allocation is advisory: an account keeps its proxy until reassigned, and
// accounts may legitimately run proxy-less.
type ProxyAllocator struct {
	proxies  domain.ProxyRepository
	accounts domain.AccountRepository
	logger   zerolog.Logger
}

// NewProxyAllocator creates a new proxy allocator
func NewProxyAllocator(
	proxies domain.ProxyRepository,
	accounts domain.AccountRepository,
	logger zerolog.Logger,
) *ProxyAllocator {
	return &ProxyAllocator{
		proxies:  proxies,
		accounts: accounts,
		logger:   logger.With().Str("component", "proxy_allocator").Logger(),
	}
}

// PickLeastLoaded selects the active proxy with occupancy strictly below
// maxPerProxy. The repository lists proxies occupancy-ascending with id as
// the tiebreaker, so the first fit is the deterministic choice. Returns nil
// without error when every proxy is saturated or none exist.
func (a *ProxyAllocator) PickLeastLoaded(ctx context.Context, maxPerProxy int) (*domain.Proxy, error) {
	proxies, err := a.proxies.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list proxies: %w", err)
	}

	for i := range proxies {
		if proxies[i].Occupancy < int64(maxPerProxy) {
			return &proxies[i], nil
		}
	}

	return nil, nil
}

// AutoAssign gives every unproxied account a least-loaded proxy, stopping
// when the pool saturates. Returns the number of accounts assigned.
func (a *ProxyAllocator) AutoAssign(ctx context.Context, maxPerProxy int) (int, error) {
	accounts, err := a.accounts.List(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("list accounts: %w", err)
	}

	proxies, err := a.proxies.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list proxies: %w", err)
	}

	assigned := 0
	for _, account := range accounts {
		if account.ProxyID != nil {
			continue
		}

		// Occupancy is tracked locally so each assignment is visible to
		// the next pick without re-querying.
		var pick *domain.Proxy
		for i := range proxies {
			if proxies[i].Occupancy >= int64(maxPerProxy) {
				continue
			}
			if pick == nil || proxies[i].Occupancy < pick.Occupancy {
				pick = &proxies[i]
			}
		}
		if pick == nil {
			a.logger.Warn().Int("assigned", assigned).Msg("proxy pool saturated, remaining accounts stay direct")
			break
		}

		if err := a.accounts.AssignProxy(ctx, account.ID, &pick.ID); err != nil {
			return assigned, fmt.Errorf("assign proxy to account %d: %w", account.ID, err)
		}
		pick.Occupancy++
		assigned++

		a.logger.Info().
			Uint("account_id", account.ID).
			Uint("proxy_id", pick.ID).
			Msg("proxy assigned")
	}

	return assigned, nil
}
