package domain

import (
	"context"
	"time"
)

// SendOutcome classifies the result of one send attempt. Exactly one of the
// four classes applies to every error the protocol client can produce.
type SendOutcome int

const (
	// SendOK means the message was accepted by the provider.
	SendOK SendOutcome = iota
	// SendRecipientError means the target cannot receive the message
	// (privacy settings, invalid peer). Non-punitive for the account.
	SendRecipientError
	// SendRateLimited means the provider issued a flood wait; the account
	// must be quarantined until the wait elapses.
	SendRateLimited
	// SendTransientError covers everything else; treated conservatively as
	// an account-side failure.
	SendTransientError
)

// SendResult is the typed outcome of a send, propagated through ordinary
// control flow instead of error unwinding.
type SendResult struct {
	Outcome    SendOutcome
	RetryAfter time.Duration // set when Outcome is SendRateLimited
	Reason     string        // provider error code, empty on success
}

// MemberPage is one batch of a chat's participant roster.
type MemberPage struct {
	Members []Member
	Total   int
}

// TelegramClient is the protocol client for a single account. Internals
// (encryption, session persistence, transport) are opaque; implementations
// live in infrastructure.
type TelegramClient interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool
	AccountID() uint

	SendText(ctx context.Context, to Recipient, text string) SendResult
	SendMedia(ctx context.Context, to Recipient, path, caption string) SendResult

	ResolveChat(ctx context.Context, identifier string) (*ChatRef, error)
	// Participants returns one page of the chat roster. Enumeration is
	// restartable from scratch, not resumable mid-stream.
	Participants(ctx context.Context, chat ChatRef, offset, limit int) (*MemberPage, error)
}

// ConnectionManager owns every live protocol session. A job claims an
// account exclusively for its duration; a second Acquire for the same
// account fails with ErrAccountBusy until Release.
type ConnectionManager interface {
	Acquire(ctx context.Context, account *Account) (TelegramClient, error)
	Release(accountID uint)
	ReleaseAll()
}

// AccountRepository is the durable account registry. All mutations are
// single atomic statements; the registry never calls out to the network.
type AccountRepository interface {
	List(ctx context.Context, categoryID *uint) ([]Account, error)
	GetByID(ctx context.Context, id uint) (*Account, error)
	Create(ctx context.Context, account *Account) error
	SetStatus(ctx context.Context, id uint, status AccountStatus, lastError string) error
	SetFloodWait(ctx context.Context, id uint, until time.Time) error
	RecordUsage(ctx context.Context, id uint, success bool) error
	AssignCategory(ctx context.Context, id uint, categoryID *uint) error
	AssignProxy(ctx context.Context, id uint, proxyID *uint) error
}

// CategoryRepository manages account groupings.
type CategoryRepository interface {
	List(ctx context.Context) ([]Category, error)
	Create(ctx context.Context, category *Category) error
	GetByID(ctx context.Context, id uint) (*Category, error)
}

// ProxyRepository manages egress proxies. ListActive annotates each proxy
// with its current occupancy.
type ProxyRepository interface {
	ListActive(ctx context.Context) ([]Proxy, error)
	GetByID(ctx context.Context, id uint) (*Proxy, error)
	Create(ctx context.Context, proxy *Proxy) error
}

// MessageRepository is the append-only send attempt log.
type MessageRepository interface {
	Append(ctx context.Context, msg *Message) error
	MarkSent(ctx context.Context, id uint) error
	MarkFailed(ctx context.Context, id uint, reason string) error
	ListByStatus(ctx context.Context, status MessageStatus, from, to time.Time) ([]Message, error)
}

// MemberRepository stores extracted recipients.
type MemberRepository interface {
	Upsert(ctx context.Context, member *Member) error
	ListByChat(ctx context.Context, chatID int64) ([]Member, error)
	AccessHashes(ctx context.Context, telegramIDs []int64) (map[int64]int64, error)
}

// JobRepository persists job runs for auditing and status queries.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, id uint) (*Job, error)
	Finish(ctx context.Context, job *Job) error
	List(ctx context.Context, limit int) ([]Job, error)
}

// SettingsRepository is key-value storage for job-tunable configuration.
type SettingsRepository interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	All(ctx context.Context) (map[string]string, error)
}

// EventProducer publishes job lifecycle events for downstream reporting.
type EventProducer interface {
	PublishJobEvent(ctx context.Context, event JobEvent) error
	IsHealthy() bool
	Close() error
}

// DispatchRequest describes one bulk dispatch run. The optional overrides
// take precedence over the settings table and the env defaults.
type DispatchRequest struct {
	CategoryID *uint
	Recipients []int64
	Text       string
	MediaPath  string

	SendLimit *int
	DelayMin  *time.Duration
	DelayMax  *time.Duration
}

// ExtractionRequest describes one member extraction run.
type ExtractionRequest struct {
	AccountID uint
	Chat      string
}

// DispatchRunner executes the rotation loop of one dispatch job.
type DispatchRunner interface {
	RunDispatch(ctx context.Context, job *Job, req DispatchRequest) (*DispatchReport, error)
}

// ExtractionRunner streams one chat's roster into storage and returns the
// number of members extracted, which is valid even on a cancelled run.
type ExtractionRunner interface {
	RunExtraction(ctx context.Context, job *Job) (int, error)
}

// JobSupervisor tracks one cancellable unit of execution per active job and
// is the scheduler's entire surface toward the front end.
type JobSupervisor interface {
	StartDispatch(ctx context.Context, req DispatchRequest) (*Job, error)
	StartExtraction(ctx context.Context, req ExtractionRequest) (*Job, error)
	Cancel(jobID uint) error
	Status(ctx context.Context, jobID uint) (*Job, error)
	List(ctx context.Context, limit int) ([]Job, error)
}
