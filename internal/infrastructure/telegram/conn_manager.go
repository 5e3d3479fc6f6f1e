package telegram

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/solitack2/sender-service/config"
	"github.com/solitack2/sender-service/internal/domain"
	"github.com/solitack2/sender-service/internal/infrastructure/metrics"
	"github.com/solitack2/sender-service/internal/utils"
)

const disconnectTimeout = 10 * time.Second

// ClientFactory is a function type for creating Telegram clients
// (can be overridden for testing).
type ClientFactory func(cfg ClientConfig) (domain.TelegramClient, error)

// defaultClientFactory creates real MTProtoClient instances
func defaultClientFactory(cfg ClientConfig) (domain.TelegramClient, error) {
	return NewMTProtoClient(cfg)
}

// ConnManager owns every live protocol session, keyed by account id. It is
// the single bridge between registry state and the external client: every
// acquire records the resulting status transition in the registry, and a
// job holds an exclusive claim on an account until it releases it.
type ConnManager struct {
	mu      sync.Mutex
	clients map[uint]domain.TelegramClient

	registry domain.AccountRepository
	proxies  domain.ProxyRepository

	factory ClientFactory
	metrics *metrics.Metrics

	apiID      int
	apiHash    string
	sessionDir string

	logger zerolog.Logger
}

// NewConnManager creates a connection manager backed by real MTProto clients.
func NewConnManager(
	cfg *config.TelegramConfig,
	registry domain.AccountRepository,
	proxies domain.ProxyRepository,
	logger zerolog.Logger,
) *ConnManager {
	return &ConnManager{
		clients:    make(map[uint]domain.TelegramClient),
		registry:   registry,
		proxies:    proxies,
		factory:    defaultClientFactory,
		metrics:    metrics.GetDefaultMetrics(),
		apiID:      cfg.APIID,
		apiHash:    cfg.APIHash,
		sessionDir: cfg.SessionDir,
		logger:     logger.With().Str("component", "conn_manager").Logger(),
	}
}

// Acquire opens a session for the account and claims it exclusively. On
// failure the error is classified and the registry status updated: flood
// waits quarantine the account until the provider's resume time, an
// unattended-auth failure marks it error pending front-end intervention,
// and anything else marks it error for one more try on the next job.
func (m *ConnManager) Acquire(ctx context.Context, account *domain.Account) (domain.TelegramClient, error) {
	m.mu.Lock()
	if _, claimed := m.clients[account.ID]; claimed {
		m.mu.Unlock()
		return nil, domain.ErrAccountBusy
	}
	// Reserve the slot before connecting so no second job can claim the
	// account while the connect is in flight.
	m.clients[account.ID] = nil
	m.mu.Unlock()

	client, err := m.connect(ctx, account)
	if err != nil {
		m.mu.Lock()
		delete(m.clients, account.ID)
		m.mu.Unlock()
		return nil, err
	}

	m.mu.Lock()
	m.clients[account.ID] = client
	m.mu.Unlock()

	m.metrics.ActiveConnections.Inc()
	return client, nil
}

func (m *ConnManager) connect(ctx context.Context, account *domain.Account) (domain.TelegramClient, error) {
	logger := m.logger.With().
		Uint("account_id", account.ID).
		Str("phone", utils.MaskPhoneNumber(account.Phone)).
		Logger()

	var proxyCfg *domain.Proxy
	if account.ProxyID != nil {
		p, err := m.proxies.GetByID(ctx, *account.ProxyID)
		if err != nil {
			// A stale proxy assignment must not ground the account.
			logger.Warn().Err(err).Uint("proxy_id", *account.ProxyID).Msg("assigned proxy unavailable, connecting directly")
		} else if p.IsActive {
			proxyCfg = p
		}
	}

	client, err := m.factory(ClientConfig{
		APIID:      m.apiID,
		APIHash:    m.apiHash,
		SessionDir: m.sessionDir,
		Account:    *account,
		Proxy:      proxyCfg,
		Logger:     m.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	if err := client.Connect(ctx); err != nil {
		m.classifyAndRecord(ctx, account.ID, err, logger)
		return nil, err
	}

	if err := m.registry.SetStatus(ctx, account.ID, domain.AccountStatusActive, ""); err != nil {
		logger.Warn().Err(err).Msg("failed to mark account active")
	}

	logger.Info().Msg("account connected")
	return client, nil
}

// classifyAndRecord turns a connect failure into the matching registry
// transition.
func (m *ConnManager) classifyAndRecord(ctx context.Context, accountID uint, err error, logger zerolog.Logger) {
	var floodWait *domain.FloodWaitError
	switch {
	case errors.As(err, &floodWait):
		until := time.Now().Add(floodWait.Wait)
		m.metrics.FloodWaits.Inc()
		m.metrics.ConnectFailures.WithLabelValues("flood_wait").Inc()
		if rerr := m.registry.SetFloodWait(ctx, accountID, until); rerr != nil {
			logger.Warn().Err(rerr).Msg("failed to record flood wait")
		}
		logger.Warn().Dur("wait", floodWait.Wait).Msg("account flood-waited on connect")

	case errors.Is(err, domain.ErrAuthenticationRequired):
		m.metrics.ConnectFailures.WithLabelValues("auth").Inc()
		if rerr := m.registry.SetStatus(ctx, accountID, domain.AccountStatusError,
			"requires re-authentication: "+err.Error()); rerr != nil {
			logger.Warn().Err(rerr).Msg("failed to record auth failure")
		}
		logger.Error().Err(err).Msg("account requires interactive re-authentication")

	default:
		m.metrics.ConnectFailures.WithLabelValues("transient").Inc()
		if rerr := m.registry.SetStatus(ctx, accountID, domain.AccountStatusError, err.Error()); rerr != nil {
			logger.Warn().Err(rerr).Msg("failed to record connect error")
		}
		logger.Warn().Err(err).Msg("account failed to connect")
	}
}

// Release closes the account's session if open. Idempotent; close failures
// are logged and swallowed so job shutdown never blocks on cleanup.
func (m *ConnManager) Release(accountID uint) {
	m.mu.Lock()
	client, ok := m.clients[accountID]
	if ok {
		delete(m.clients, accountID)
	}
	m.mu.Unlock()

	if !ok || client == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()

	if err := client.Disconnect(ctx); err != nil {
		m.logger.Warn().Err(err).Uint("account_id", accountID).Msg("failed to close connection")
	}
	m.metrics.ActiveConnections.Dec()
}

// ReleaseAll closes every live session. Called once at process shutdown;
// each close is isolated so one failure cannot keep others open.
func (m *ConnManager) ReleaseAll() {
	m.mu.Lock()
	ids := make([]uint, 0, len(m.clients))
	for id := range m.clients {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Release(id)
	}

	m.logger.Info().Int("released", len(ids)).Msg("all connections released")
}

// Ensure ConnManager implements domain.ConnectionManager
var _ domain.ConnectionManager = (*ConnManager)(nil)
