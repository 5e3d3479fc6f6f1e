package domain

import "time"

// AccountStatus is the health state of a messaging account.
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "active"
	AccountStatusError     AccountStatus = "error"
	AccountStatusFloodWait AccountStatus = "flood_wait"
	AccountStatusResting   AccountStatus = "resting"
)

// Account represents one Telegram identity managed by the pool.
//
// Status transitions are driven by the connection manager and the dispatch
// scheduler: a successful connect or send makes the account active, a
// provider rate limit quarantines it until FloodWaitUntil, other connect
// failures mark it error. Accounts are never hard-deleted while referenced
// by message history.
type Account struct {
	ID             uint          `gorm:"primaryKey"`
	Phone          string        `gorm:"size:20;uniqueIndex;not null"`
	SessionRef     string        `gorm:"size:100;not null"` // opaque credential reference for the protocol client
	FirstName      string        `gorm:"size:100"`
	LastName       string        `gorm:"size:100"`
	Username       string        `gorm:"size:100"`
	Status         AccountStatus `gorm:"size:20;default:active;index"`
	FloodWaitUntil *time.Time
	CategoryID     *uint `gorm:"index"`
	ProxyID        *uint `gorm:"index"`
	TotalSent      int64 `gorm:"default:0"`
	SuccessfulSent int64 `gorm:"default:0"`
	FailedSent     int64 `gorm:"default:0"`
	LastError      string
	LastUsed       *time.Time
	CreatedAt      time.Time

	// Resolved for display only, never persisted.
	CategoryName string `gorm:"-"`
	ProxyHost    string `gorm:"-"`
}

// FloodWaitElapsed reports whether a flood-waited account may be offered
// another connect attempt. Reinstatement is lazy: the status itself only
// changes on the next successful connect or send.
func (a *Account) FloodWaitElapsed(now time.Time) bool {
	return a.Status == AccountStatusFloodWait &&
		a.FloodWaitUntil != nil && now.After(*a.FloodWaitUntil)
}

// Category is a named grouping of accounts scoping one dispatch job.
type Category struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"size:100;uniqueIndex;not null"`
	CreatedAt time.Time

	AccountCount int64 `gorm:"-"`
}

// Proxy is a network egress definition assigned to accounts.
type Proxy struct {
	ID        uint   `gorm:"primaryKey"`
	Scheme    string `gorm:"size:10;not null"` // socks5 only for now
	Host      string `gorm:"size:255;not null"`
	Port      int    `gorm:"not null"`
	Username  string `gorm:"size:100"`
	Password  string `gorm:"size:100"`
	IsActive  bool   `gorm:"default:true;index"`
	CreatedAt time.Time

	// Occupancy is the number of accounts currently assigned, resolved at
	// query time. Assignment is advisory: an account keeps its proxy until
	// reassigned.
	Occupancy int64 `gorm:"-"`
}

// JobKind discriminates dispatch and extraction runs.
type JobKind string

const (
	JobKindDispatch   JobKind = "dispatch"
	JobKindExtraction JobKind = "extraction"
)

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusCancelled JobStatus = "cancelled"
	JobStatusFailed    JobStatus = "failed"
)

// Job is one dispatch or extraction run. Each job owns exactly one
// cancellable unit of execution registered with the supervisor.
type Job struct {
	ID         uint    `gorm:"primaryKey"`
	Kind       JobKind `gorm:"size:20;not null;index"`
	CategoryID *uint
	AccountID  *uint  // extraction jobs run on a single account
	TargetChat string `gorm:"size:255"` // extraction target identifier
	Text       string
	MediaPath  string    `gorm:"size:255"`
	Status     JobStatus `gorm:"size:20;default:running;index"`
	Attempted  int       `gorm:"default:0"`
	Sent       int       `gorm:"default:0"`
	Failed     int       `gorm:"default:0"`
	Skipped    int       `gorm:"default:0"`
	Extracted  int       `gorm:"default:0"`
	LastError  string
	CreatedAt  time.Time
	FinishedAt *time.Time
}

// MessageStatus is the state of one send attempt.
type MessageStatus string

const (
	MessageStatusPending MessageStatus = "pending"
	MessageStatusSent    MessageStatus = "sent"
	MessageStatusFailed  MessageStatus = "failed"
)

// Message is one outbound send attempt. Rows are append-only: a message
// transitions out of pending exactly once and is never overwritten.
type Message struct {
	ID        uint          `gorm:"primaryKey"`
	JobID     uint          `gorm:"index;not null"`
	AccountID uint          `gorm:"index;not null"`
	TargetID  int64         `gorm:"not null"`
	Text      string        // payload snapshot
	MediaPath string        `gorm:"size:255"`
	Status    MessageStatus `gorm:"size:20;default:pending;index"`
	ErrorText string
	CreatedAt time.Time
	SentAt    *time.Time
}

// Member is one recipient discovered in a source chat. Upsert semantics are
// keyed by (TelegramID, SourceChatID): re-extraction refreshes attributes
// rather than duplicating rows.
type Member struct {
	ID           uint  `gorm:"primaryKey"`
	TelegramID   int64 `gorm:"not null;uniqueIndex:idx_member_chat"`
	AccessHash   int64
	Username     string `gorm:"size:100"`
	FirstName    string `gorm:"size:100"`
	LastName     string `gorm:"size:100"`
	SourceChatID int64  `gorm:"not null;uniqueIndex:idx_member_chat"`
	SourceTitle  string `gorm:"size:255"`
	ExtractedBy  uint   `gorm:"index"`
	ExtractedAt  time.Time
}

// Setting is a free-form key-value configuration entry.
type Setting struct {
	Key       string `gorm:"primaryKey;size:50"`
	Value     string
	UpdatedAt time.Time
}

// Settings keys understood by the scheduler.
const (
	SettingSendLimit         = "send_limit"
	SettingDelayMin          = "delay_min"
	SettingDelayMax          = "delay_max"
	SettingAccountRest       = "account_rest"
	SettingProxyMaxOccupancy = "proxy_max_occupancy"
)

// Recipient identifies one send target for the protocol client.
type Recipient struct {
	ID         int64
	AccessHash int64
}

// ChatRef is a resolved chat usable for member enumeration.
type ChatRef struct {
	ID         int64
	AccessHash int64
	Title      string
}

// DispatchReport summarizes a dispatch run. For an uncancelled run
// Sent+Failed+Skipped equals the number of requested recipients.
type DispatchReport struct {
	Attempted int
	Sent      int
	Failed    int
	Skipped   int
	Reasons   map[string]int // failure reason -> count
}

// JobEvent is published to Kafka when a job changes lifecycle state.
type JobEvent struct {
	JobID     uint      `json:"job_id"`
	Kind      JobKind   `json:"kind"`
	Status    JobStatus `json:"status"`
	Attempted int       `json:"attempted"`
	Sent      int       `json:"sent"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
	Extracted int       `json:"extracted"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
