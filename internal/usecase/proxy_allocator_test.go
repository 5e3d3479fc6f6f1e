package usecase

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/solitack2/sender-service/internal/domain"
)

func TestPickLeastLoaded(t *testing.T) {
	proxies := &fakeProxyRepo{proxies: []domain.Proxy{
		{ID: 1, Host: "p1", Occupancy: 2},
		{ID: 2, Host: "p2", Occupancy: 2},
		{ID: 3, Host: "p3", Occupancy: 3},
	}}
	allocator := NewProxyAllocator(proxies, newFakeAccountRepo(), zerolog.Nop())

	pick, err := allocator.PickLeastLoaded(context.Background(), 3)
	if err != nil {
		t.Fatalf("PickLeastLoaded failed: %v", err)
	}
	if pick == nil || pick.ID != 1 {
		t.Errorf("Expected proxy 1 (lowest occupancy, lowest id), got %+v", pick)
	}
}

func TestPickLeastLoaded_Saturated(t *testing.T) {
	proxies := &fakeProxyRepo{proxies: []domain.Proxy{
		{ID: 1, Occupancy: 3},
		{ID: 2, Occupancy: 3},
	}}
	allocator := NewProxyAllocator(proxies, newFakeAccountRepo(), zerolog.Nop())

	pick, err := allocator.PickLeastLoaded(context.Background(), 3)
	if err != nil {
		t.Fatalf("PickLeastLoaded failed: %v", err)
	}
	if pick != nil {
		t.Errorf("Expected nil when all proxies saturated, got %+v", pick)
	}
}

func TestPickLeastLoaded_NoProxies(t *testing.T) {
	allocator := NewProxyAllocator(&fakeProxyRepo{}, newFakeAccountRepo(), zerolog.Nop())

	pick, err := allocator.PickLeastLoaded(context.Background(), 3)
	if err != nil {
		t.Fatalf("PickLeastLoaded failed: %v", err)
	}
	if pick != nil {
		t.Errorf("Expected nil with an empty proxy table, got %+v", pick)
	}
}

func TestAutoAssign(t *testing.T) {
	proxyID := uint(9)
	accounts := newFakeAccountRepo(
		domain.Account{ID: 1, Status: domain.AccountStatusActive},
		domain.Account{ID: 2, Status: domain.AccountStatusActive, ProxyID: &proxyID},
		domain.Account{ID: 3, Status: domain.AccountStatusActive},
		domain.Account{ID: 4, Status: domain.AccountStatusActive},
	)
	proxies := &fakeProxyRepo{proxies: []domain.Proxy{
		{ID: 1, Occupancy: 0},
		{ID: 2, Occupancy: 0},
	}}
	allocator := NewProxyAllocator(proxies, accounts, zerolog.Nop())

	assigned, err := allocator.AutoAssign(context.Background(), 2)
	if err != nil {
		t.Fatalf("AutoAssign failed: %v", err)
	}
	if assigned != 3 {
		t.Errorf("Expected 3 assignments, got %d", assigned)
	}

	// Already-proxied account keeps its proxy.
	if got := accounts.assigned[2]; got != nil {
		t.Errorf("Account 2 must not be reassigned, got %v", got)
	}

	// Local occupancy tracking spreads assignments: 1 -> p1, 3 -> p2, 4 -> p1.
	if pid := accounts.assigned[1]; pid == nil || *pid != 1 {
		t.Errorf("Account 1: expected proxy 1, got %v", pid)
	}
	if pid := accounts.assigned[3]; pid == nil || *pid != 2 {
		t.Errorf("Account 3: expected proxy 2, got %v", pid)
	}
	if pid := accounts.assigned[4]; pid == nil || *pid != 1 {
		t.Errorf("Account 4: expected proxy 1, got %v", pid)
	}
}

func TestAutoAssign_StopsWhenSaturated(t *testing.T) {
	accounts := newFakeAccountRepo(
		domain.Account{ID: 1, Status: domain.AccountStatusActive},
		domain.Account{ID: 2, Status: domain.AccountStatusActive},
		domain.Account{ID: 3, Status: domain.AccountStatusActive},
	)
	proxies := &fakeProxyRepo{proxies: []domain.Proxy{{ID: 1, Occupancy: 0}}}
	allocator := NewProxyAllocator(proxies, accounts, zerolog.Nop())

	assigned, err := allocator.AutoAssign(context.Background(), 2)
	if err != nil {
		t.Fatalf("AutoAssign failed: %v", err)
	}
	if assigned != 2 {
		t.Errorf("Expected 2 assignments before saturation, got %d", assigned)
	}
	if accounts.assigned[3] != nil {
		t.Error("Account 3 must stay direct once the pool saturates")
	}
}
