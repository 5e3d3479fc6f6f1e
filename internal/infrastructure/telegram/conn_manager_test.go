package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/solitack2/sender-service/config"
	"github.com/solitack2/sender-service/internal/domain"
)

// mockTelegramClient is a test mock that implements domain.TelegramClient
type mockTelegramClient struct {
	accountID  uint
	connectErr error
	mu         sync.RWMutex
	connected  bool
	closed     int
}

func (m *mockTelegramClient) Connect(ctx context.Context) error {
	if m.connectErr != nil {
		return m.connectErr
	}
	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()
	return nil
}

func (m *mockTelegramClient) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	m.closed++
	return nil
}

func (m *mockTelegramClient) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

func (m *mockTelegramClient) AccountID() uint { return m.accountID }

func (m *mockTelegramClient) SendText(ctx context.Context, to domain.Recipient, text string) domain.SendResult {
	return domain.SendResult{Outcome: domain.SendOK}
}

func (m *mockTelegramClient) SendMedia(ctx context.Context, to domain.Recipient, path, caption string) domain.SendResult {
	return domain.SendResult{Outcome: domain.SendOK}
}

func (m *mockTelegramClient) ResolveChat(ctx context.Context, identifier string) (*domain.ChatRef, error) {
	return nil, nil
}

func (m *mockTelegramClient) Participants(ctx context.Context, chat domain.ChatRef, offset, limit int) (*domain.MemberPage, error) {
	return &domain.MemberPage{}, nil
}

func (m *mockTelegramClient) closeCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// mockAccountRegistry records status transitions applied by the manager
type mockAccountRegistry struct {
	mu         sync.Mutex
	statuses   map[uint]domain.AccountStatus
	lastErrors map[uint]string
	floodUntil map[uint]time.Time
}

func newMockAccountRegistry() *mockAccountRegistry {
	return &mockAccountRegistry{
		statuses:   make(map[uint]domain.AccountStatus),
		lastErrors: make(map[uint]string),
		floodUntil: make(map[uint]time.Time),
	}
}

func (r *mockAccountRegistry) List(ctx context.Context, categoryID *uint) ([]domain.Account, error) {
	return nil, nil
}

func (r *mockAccountRegistry) GetByID(ctx context.Context, id uint) (*domain.Account, error) {
	return nil, domain.ErrAccountNotFound
}

func (r *mockAccountRegistry) Create(ctx context.Context, account *domain.Account) error { return nil }

func (r *mockAccountRegistry) SetStatus(ctx context.Context, id uint, status domain.AccountStatus, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[id] = status
	r.lastErrors[id] = lastError
	return nil
}

func (r *mockAccountRegistry) SetFloodWait(ctx context.Context, id uint, until time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[id] = domain.AccountStatusFloodWait
	r.floodUntil[id] = until
	return nil
}

func (r *mockAccountRegistry) RecordUsage(ctx context.Context, id uint, success bool) error {
	return nil
}

func (r *mockAccountRegistry) AssignCategory(ctx context.Context, id uint, categoryID *uint) error {
	return nil
}

func (r *mockAccountRegistry) AssignProxy(ctx context.Context, id uint, proxyID *uint) error {
	return nil
}

func (r *mockAccountRegistry) statusOf(id uint) domain.AccountStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statuses[id]
}

// mockProxyRepo serves a fixed proxy table
type mockProxyRepo struct {
	proxies map[uint]*domain.Proxy
}

func (r *mockProxyRepo) ListActive(ctx context.Context) ([]domain.Proxy, error) { return nil, nil }

func (r *mockProxyRepo) GetByID(ctx context.Context, id uint) (*domain.Proxy, error) {
	p, ok := r.proxies[id]
	if !ok {
		return nil, domain.ErrProxyNotFound
	}
	return p, nil
}

func (r *mockProxyRepo) Create(ctx context.Context, proxy *domain.Proxy) error { return nil }

func newTestConnManager(factory ClientFactory) (*ConnManager, *mockAccountRegistry) {
	registry := newMockAccountRegistry()
	manager := NewConnManager(
		&config.TelegramConfig{APIID: 1, APIHash: "hash", SessionDir: "/tmp/sessions"},
		registry,
		&mockProxyRepo{proxies: map[uint]*domain.Proxy{}},
		zerolog.Nop(),
	)
	manager.factory = factory
	return manager, registry
}

func testAccount(id uint) *domain.Account {
	return &domain.Account{ID: id, Phone: "+1234567890", Status: domain.AccountStatusActive}
}

func TestAcquire(t *testing.T) {
	manager, registry := newTestConnManager(func(cfg ClientConfig) (domain.TelegramClient, error) {
		return &mockTelegramClient{accountID: cfg.Account.ID}, nil
	})

	client, err := manager.Acquire(context.Background(), testAccount(1))
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if client == nil {
		t.Fatal("Expected non-nil client")
	}
	if !client.IsConnected() {
		t.Error("Expected client to be connected after Acquire")
	}
	if registry.statusOf(1) != domain.AccountStatusActive {
		t.Errorf("Expected account marked active, got %s", registry.statusOf(1))
	}
}

func TestAcquire_AlreadyClaimed(t *testing.T) {
	manager, _ := newTestConnManager(func(cfg ClientConfig) (domain.TelegramClient, error) {
		return &mockTelegramClient{accountID: cfg.Account.ID}, nil
	})

	if _, err := manager.Acquire(context.Background(), testAccount(1)); err != nil {
		t.Fatalf("First Acquire failed: %v", err)
	}

	_, err := manager.Acquire(context.Background(), testAccount(1))
	if !errors.Is(err, domain.ErrAccountBusy) {
		t.Errorf("Expected ErrAccountBusy, got %v", err)
	}
}

func TestAcquire_ClaimFreedOnConnectFailure(t *testing.T) {
	attempts := 0
	manager, registry := newTestConnManager(func(cfg ClientConfig) (domain.TelegramClient, error) {
		attempts++
		if attempts == 1 {
			return &mockTelegramClient{accountID: cfg.Account.ID, connectErr: errors.New("dial tcp: timeout")}, nil
		}
		return &mockTelegramClient{accountID: cfg.Account.ID}, nil
	})

	_, err := manager.Acquire(context.Background(), testAccount(1))
	if err == nil {
		t.Fatal("Expected error from failed connect")
	}
	if registry.statusOf(1) != domain.AccountStatusError {
		t.Errorf("Expected account marked error, got %s", registry.statusOf(1))
	}

	// The failed claim must not block a retry.
	if _, err := manager.Acquire(context.Background(), testAccount(1)); err != nil {
		t.Errorf("Acquire after failed connect should succeed, got %v", err)
	}
}

func TestAcquire_FloodWaitQuarantinesAccount(t *testing.T) {
	manager, registry := newTestConnManager(func(cfg ClientConfig) (domain.TelegramClient, error) {
		return &mockTelegramClient{
			accountID:  cfg.Account.ID,
			connectErr: &domain.FloodWaitError{Wait: 30 * time.Second},
		}, nil
	})

	before := time.Now()
	_, err := manager.Acquire(context.Background(), testAccount(1))
	if !errors.Is(err, domain.ErrFloodWait) {
		t.Fatalf("Expected flood wait error, got %v", err)
	}

	if registry.statusOf(1) != domain.AccountStatusFloodWait {
		t.Errorf("Expected account quarantined, got %s", registry.statusOf(1))
	}

	registry.mu.Lock()
	until := registry.floodUntil[1]
	registry.mu.Unlock()
	if until.Before(before.Add(29 * time.Second)) {
		t.Errorf("Flood wait deadline too early: %v", until)
	}
}

func TestAcquire_AuthFailureMarksError(t *testing.T) {
	manager, registry := newTestConnManager(func(cfg ClientConfig) (domain.TelegramClient, error) {
		return &mockTelegramClient{
			accountID:  cfg.Account.ID,
			connectErr: domain.ErrAuthenticationRequired,
		}, nil
	})

	_, err := manager.Acquire(context.Background(), testAccount(1))
	if !errors.Is(err, domain.ErrAuthenticationRequired) {
		t.Fatalf("Expected ErrAuthenticationRequired, got %v", err)
	}

	if registry.statusOf(1) != domain.AccountStatusError {
		t.Errorf("Expected account marked error, got %s", registry.statusOf(1))
	}

	registry.mu.Lock()
	lastError := registry.lastErrors[1]
	registry.mu.Unlock()
	if lastError == "" {
		t.Error("Expected last_error recorded for auth failure")
	}
}

func TestRelease(t *testing.T) {
	var created *mockTelegramClient
	manager, _ := newTestConnManager(func(cfg ClientConfig) (domain.TelegramClient, error) {
		created = &mockTelegramClient{accountID: cfg.Account.ID}
		return created, nil
	})

	if _, err := manager.Acquire(context.Background(), testAccount(1)); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	manager.Release(1)
	if created.closeCount() != 1 {
		t.Errorf("Expected 1 disconnect, got %d", created.closeCount())
	}

	// Released account can be acquired again.
	if _, err := manager.Acquire(context.Background(), testAccount(1)); err != nil {
		t.Errorf("Acquire after Release failed: %v", err)
	}
}

func TestRelease_Idempotent(t *testing.T) {
	var created *mockTelegramClient
	manager, _ := newTestConnManager(func(cfg ClientConfig) (domain.TelegramClient, error) {
		created = &mockTelegramClient{accountID: cfg.Account.ID}
		return created, nil
	})

	if _, err := manager.Acquire(context.Background(), testAccount(1)); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	manager.Release(1)
	manager.Release(1)
	manager.Release(42) // never acquired

	if created.closeCount() != 1 {
		t.Errorf("Expected exactly 1 disconnect, got %d", created.closeCount())
	}
}

func TestReleaseAll(t *testing.T) {
	clients := make(map[uint]*mockTelegramClient)
	var mu sync.Mutex
	manager, _ := newTestConnManager(func(cfg ClientConfig) (domain.TelegramClient, error) {
		c := &mockTelegramClient{accountID: cfg.Account.ID}
		mu.Lock()
		clients[cfg.Account.ID] = c
		mu.Unlock()
		return c, nil
	})

	for id := uint(1); id <= 3; id++ {
		if _, err := manager.Acquire(context.Background(), testAccount(id)); err != nil {
			t.Fatalf("Acquire %d failed: %v", id, err)
		}
	}

	manager.ReleaseAll()

	for id, c := range clients {
		if c.closeCount() != 1 {
			t.Errorf("Account %d: expected 1 disconnect, got %d", id, c.closeCount())
		}
	}

	// All accounts are claimable again.
	for id := uint(1); id <= 3; id++ {
		if _, err := manager.Acquire(context.Background(), testAccount(id)); err != nil {
			t.Errorf("Acquire %d after ReleaseAll failed: %v", id, err)
		}
	}
}

func TestConnManager_ConcurrentAcquire(t *testing.T) {
	manager, _ := newTestConnManager(func(cfg ClientConfig) (domain.TelegramClient, error) {
		return &mockTelegramClient{accountID: cfg.Account.ID}, nil
	})

	const goroutines = 20
	var wg sync.WaitGroup
	successes := make(chan uint, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := manager.Acquire(context.Background(), testAccount(7)); err == nil {
				successes <- 7
			}
		}()
	}

	wg.Wait()
	close(successes)

	count := 0
	for range successes {
		count++
	}
	if count != 1 {
		t.Errorf("Expected exactly 1 successful claim for a single account, got %d", count)
	}
}

func TestConnManager_ConcurrentAcquireRelease(t *testing.T) {
	manager, _ := newTestConnManager(func(cfg ClientConfig) (domain.TelegramClient, error) {
		return &mockTelegramClient{accountID: cfg.Account.ID}, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		id := uint(i%3 + 1)
		go func(accountID uint) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if _, err := manager.Acquire(context.Background(), testAccount(accountID)); err == nil {
					manager.Release(accountID)
				}
			}
		}(id)
	}

	wg.Wait()

	// Manager must still be functional afterwards.
	if _, err := manager.Acquire(context.Background(), testAccount(1)); err != nil {
		t.Errorf("Acquire after concurrent churn failed: %v", err)
	}
}
