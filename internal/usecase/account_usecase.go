package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/solitack2/sender-service/config"
	"github.com/solitack2/sender-service/internal/domain"
	"github.com/solitack2/sender-service/internal/utils"
)

// AddAccountRequest carries the credential reference collected by the
// front end for one new account.
type AddAccountRequest struct {
	Phone      string
	SessionRef string
	FirstName  string
	LastName   string
	Username   string
	CategoryID *uint
}

// AccountUseCase covers pool management outside the job loop: registering
// accounts, listing them with analytics, proxy self-balancing.
type AccountUseCase struct {
	accounts    domain.AccountRepository
	messages    domain.MessageRepository
	connections domain.ConnectionManager
	allocator   *ProxyAllocator
	defaults    *config.DispatchConfig
	logger      zerolog.Logger
}

// NewAccountUseCase creates the account use case
func NewAccountUseCase(
	accounts domain.AccountRepository,
	messages domain.MessageRepository,
	connections domain.ConnectionManager,
	allocator *ProxyAllocator,
	defaults *config.DispatchConfig,
	logger zerolog.Logger,
) *AccountUseCase {
	return &AccountUseCase{
		accounts:    accounts,
		messages:    messages,
		connections: connections,
		allocator:   allocator,
		defaults:    defaults,
		logger:      logger.With().Str("component", "accounts").Logger(),
	}
}

// AddAccount registers a new account: allocates a least-loaded proxy when
// one is available, persists the row, then validates the credential with a
// one-shot connect. The account is kept even when validation fails — its
// status records what went wrong and the front end can re-run the flow.
func (u *AccountUseCase) AddAccount(ctx context.Context, req AddAccountRequest) (*domain.Account, error) {
	if req.Phone == "" || req.SessionRef == "" {
		return nil, fmt.Errorf("account needs a phone and a credential reference")
	}

	account := &domain.Account{
		Phone:      req.Phone,
		SessionRef: req.SessionRef,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Username:   req.Username,
		Status:     domain.AccountStatusActive,
		CategoryID: req.CategoryID,
	}

	proxy, err := u.allocator.PickLeastLoaded(ctx, u.defaults.ProxyMaxOccupancy)
	if err != nil {
		u.logger.Warn().Err(err).Msg("proxy allocation failed, account runs direct")
	} else if proxy != nil {
		account.ProxyID = &proxy.ID
	}

	if err := u.accounts.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	logger := u.logger.With().
		Uint("account_id", account.ID).
		Str("phone", utils.MaskPhoneNumber(account.Phone)).
		Logger()

	// One-shot connect validates the credential. Acquire records the
	// resulting status transition either way.
	if _, err := u.connections.Acquire(ctx, account); err != nil {
		logger.Warn().Err(err).Msg("account registered but failed validation")
		if fresh, gerr := u.accounts.GetByID(ctx, account.ID); gerr == nil {
			return fresh, err
		}
		return account, err
	}
	u.connections.Release(account.ID)

	logger.Info().Msg("account registered")
	account.Status = domain.AccountStatusActive
	return account, nil
}

// List retrieves accounts annotated for display, optionally scoped to one
// category.
func (u *AccountUseCase) List(ctx context.Context, categoryID *uint) ([]domain.Account, error) {
	return u.accounts.List(ctx, categoryID)
}

// AssignCategory moves an account between categories
func (u *AccountUseCase) AssignCategory(ctx context.Context, accountID uint, categoryID *uint) error {
	return u.accounts.AssignCategory(ctx, accountID, categoryID)
}

// AutoAssignProxies gives every unproxied account a least-loaded proxy
func (u *AccountUseCase) AutoAssignProxies(ctx context.Context) (int, error) {
	return u.allocator.AutoAssign(ctx, u.defaults.ProxyMaxOccupancy)
}

// MessagesByStatus reports send attempts in a status within a date range,
// for the reporting surface.
func (u *AccountUseCase) MessagesByStatus(ctx context.Context, status domain.MessageStatus, from, to time.Time) ([]domain.Message, error) {
	return u.messages.ListByStatus(ctx, status, from, to)
}
