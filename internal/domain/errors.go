package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAccountNotFound is returned when account is not found
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountAlreadyExists is returned when account already exists
	ErrAccountAlreadyExists = errors.New("account already exists")

	// ErrAccountBusy is returned when another job holds the account's connection
	ErrAccountBusy = errors.New("account connection already claimed")

	// ErrCategoryNotFound is returned when category is not found
	ErrCategoryNotFound = errors.New("category not found")

	// ErrCategoryAlreadyExists is returned when a category name is taken
	ErrCategoryAlreadyExists = errors.New("category already exists")

	// ErrProxyNotFound is returned when proxy is not found
	ErrProxyNotFound = errors.New("proxy not found")

	// ErrNoUsableAccounts is returned when a job cannot start because the
	// eligible, connected account set is empty
	ErrNoUsableAccounts = errors.New("no usable accounts")

	// ErrJobNotFound is returned when job is not found
	ErrJobNotFound = errors.New("job not found")

	// ErrAuthenticationRequired is returned when a session needs an
	// interactive step (code or 2FA password) the service cannot complete
	ErrAuthenticationRequired = errors.New("authentication required")

	// ErrConnectionFailed is returned when connection to Telegram fails
	ErrConnectionFailed = errors.New("connection failed")

	// ErrNotConnected is returned when operation requires connection
	ErrNotConnected = errors.New("not connected to Telegram")

	// ErrFloodWait is returned when the provider demands a rate-limit wait
	ErrFloodWait = errors.New("flood wait required")

	// ErrInvalidChatIdentifier is returned when a chat reference cannot be parsed
	ErrInvalidChatIdentifier = errors.New("invalid chat identifier")

	// ErrDatabaseOperation is returned when a database operation fails
	ErrDatabaseOperation = errors.New("database operation failed")
)

// FloodWaitError carries the provider-specified wait duration of a rate
// limit penalty. It unwraps to ErrFloodWait.
type FloodWaitError struct {
	Wait time.Duration
}

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("flood wait: %s", e.Wait)
}

func (e *FloodWaitError) Is(target error) bool {
	return target == ErrFloodWait
}
