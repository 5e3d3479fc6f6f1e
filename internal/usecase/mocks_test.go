package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/solitack2/sender-service/internal/domain"
)

// fakeAccountRepo is an in-memory account registry
type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts []domain.Account
	assigned map[uint]*uint // account id -> proxy id
	usage    map[uint][2]int
}

func newFakeAccountRepo(accounts ...domain.Account) *fakeAccountRepo {
	return &fakeAccountRepo{
		accounts: accounts,
		assigned: make(map[uint]*uint),
		usage:    make(map[uint][2]int),
	}
}

func (r *fakeAccountRepo) List(ctx context.Context, categoryID *uint) ([]domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		if categoryID != nil && (a.CategoryID == nil || *a.CategoryID != *categoryID) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *fakeAccountRepo) GetByID(ctx context.Context, id uint) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.accounts {
		if r.accounts[i].ID == id {
			a := r.accounts[i]
			return &a, nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

func (r *fakeAccountRepo) Create(ctx context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account.ID = uint(len(r.accounts) + 1)
	r.accounts = append(r.accounts, *account)
	return nil
}

func (r *fakeAccountRepo) SetStatus(ctx context.Context, id uint, status domain.AccountStatus, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.accounts {
		if r.accounts[i].ID == id {
			r.accounts[i].Status = status
			r.accounts[i].LastError = lastError
			return nil
		}
	}
	return domain.ErrAccountNotFound
}

func (r *fakeAccountRepo) SetFloodWait(ctx context.Context, id uint, until time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.accounts {
		if r.accounts[i].ID == id {
			r.accounts[i].Status = domain.AccountStatusFloodWait
			u := until
			r.accounts[i].FloodWaitUntil = &u
			return nil
		}
	}
	return domain.ErrAccountNotFound
}

func (r *fakeAccountRepo) RecordUsage(ctx context.Context, id uint, success bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := r.usage[id]
	if success {
		u[0]++
	} else {
		u[1]++
	}
	r.usage[id] = u
	return nil
}

func (r *fakeAccountRepo) AssignCategory(ctx context.Context, id uint, categoryID *uint) error {
	return nil
}

func (r *fakeAccountRepo) AssignProxy(ctx context.Context, id uint, proxyID *uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assigned[id] = proxyID
	for i := range r.accounts {
		if r.accounts[i].ID == id {
			r.accounts[i].ProxyID = proxyID
		}
	}
	return nil
}

func (r *fakeAccountRepo) statusOf(id uint) domain.AccountStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.accounts {
		if r.accounts[i].ID == id {
			return r.accounts[i].Status
		}
	}
	return ""
}

func (r *fakeAccountRepo) floodUntil(id uint) *time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.accounts {
		if r.accounts[i].ID == id {
			return r.accounts[i].FloodWaitUntil
		}
	}
	return nil
}

// fakeMemberRepo serves access hashes and records upserts
type fakeMemberRepo struct {
	mu      sync.Mutex
	hashes  map[int64]int64
	upserts []domain.Member
}

func newFakeMemberRepo() *fakeMemberRepo {
	return &fakeMemberRepo{hashes: make(map[int64]int64)}
}

func (r *fakeMemberRepo) Upsert(ctx context.Context, member *domain.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts = append(r.upserts, *member)
	return nil
}

func (r *fakeMemberRepo) ListByChat(ctx context.Context, chatID int64) ([]domain.Member, error) {
	return nil, nil
}

func (r *fakeMemberRepo) AccessHashes(ctx context.Context, telegramIDs []int64) (map[int64]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[int64]int64)
	for _, id := range telegramIDs {
		if h, ok := r.hashes[id]; ok {
			out[id] = h
		}
	}
	return out, nil
}

// fakeMessageRepo is an in-memory append-only message log
type fakeMessageRepo struct {
	mu        sync.Mutex
	nextID    uint
	messages  []domain.Message
	appendErr error
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{}
}

func (r *fakeMessageRepo) Append(ctx context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.appendErr != nil {
		return r.appendErr
	}
	r.nextID++
	msg.ID = r.nextID
	msg.Status = domain.MessageStatusPending
	r.messages = append(r.messages, *msg)
	return nil
}

func (r *fakeMessageRepo) MarkSent(ctx context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.messages {
		if r.messages[i].ID == id && r.messages[i].Status == domain.MessageStatusPending {
			r.messages[i].Status = domain.MessageStatusSent
		}
	}
	return nil
}

func (r *fakeMessageRepo) MarkFailed(ctx context.Context, id uint, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.messages {
		if r.messages[i].ID == id && r.messages[i].Status == domain.MessageStatusPending {
			r.messages[i].Status = domain.MessageStatusFailed
			r.messages[i].ErrorText = reason
		}
	}
	return nil
}

func (r *fakeMessageRepo) ListByStatus(ctx context.Context, status domain.MessageStatus, from, to time.Time) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Message
	for _, m := range r.messages {
		if m.Status == status {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeMessageRepo) all() []domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// fakeSettingsRepo is an in-memory key-value table
type fakeSettingsRepo struct {
	mu     sync.Mutex
	values map[string]string
}

func newFakeSettingsRepo() *fakeSettingsRepo {
	return &fakeSettingsRepo{values: make(map[string]string)}
}

func (r *fakeSettingsRepo) Get(ctx context.Context, key string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.values[key]
	return v, ok, nil
}

func (r *fakeSettingsRepo) Set(ctx context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[key] = value
	return nil
}

func (r *fakeSettingsRepo) All(ctx context.Context) (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out, nil
}

// fakeProxyRepo serves a fixed proxy listing
type fakeProxyRepo struct {
	proxies []domain.Proxy
}

func (r *fakeProxyRepo) ListActive(ctx context.Context) ([]domain.Proxy, error) {
	out := make([]domain.Proxy, len(r.proxies))
	copy(out, r.proxies)
	return out, nil
}

func (r *fakeProxyRepo) GetByID(ctx context.Context, id uint) (*domain.Proxy, error) {
	for i := range r.proxies {
		if r.proxies[i].ID == id {
			return &r.proxies[i], nil
		}
	}
	return nil, domain.ErrProxyNotFound
}

func (r *fakeProxyRepo) Create(ctx context.Context, proxy *domain.Proxy) error { return nil }

// fakeJobRepo is an in-memory job store
type fakeJobRepo struct {
	mu     sync.Mutex
	nextID uint
	jobs   map[uint]domain.Job
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: make(map[uint]domain.Job)}
}

func (r *fakeJobRepo) Create(ctx context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	job.ID = r.nextID
	job.Status = domain.JobStatusRunning
	r.jobs[job.ID] = *job
	return nil
}

func (r *fakeJobRepo) GetByID(ctx context.Context, id uint) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return &job, nil
}

func (r *fakeJobRepo) Finish(ctx context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	job.FinishedAt = &now
	r.jobs[job.ID] = *job
	return nil
}

func (r *fakeJobRepo) List(ctx context.Context, limit int) ([]domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j)
	}
	return out, nil
}

// fakeProducer records published job events
type fakeProducer struct {
	mu     sync.Mutex
	events []domain.JobEvent
}

func (p *fakeProducer) PublishJobEvent(ctx context.Context, event domain.JobEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakeProducer) IsHealthy() bool { return true }
func (p *fakeProducer) Close() error    { return nil }

func (p *fakeProducer) published() []domain.JobEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.JobEvent, len(p.events))
	copy(out, p.events)
	return out
}

// scriptedClient replays a per-recipient send script
type scriptedClient struct {
	accountID uint
	// results maps recipient id to the scripted outcome; recipients not
	// listed succeed.
	results map[int64]domain.SendResult
	// onSend, when set, observes every send in order
	onSend func(accountID uint, recipientID int64)

	mu    sync.Mutex
	sends []int64
	pages []domain.MemberPage
	chat  *domain.ChatRef
}

func (c *scriptedClient) Connect(ctx context.Context) error    { return nil }
func (c *scriptedClient) Disconnect(ctx context.Context) error { return nil }
func (c *scriptedClient) IsConnected() bool                    { return true }
func (c *scriptedClient) AccountID() uint                      { return c.accountID }

func (c *scriptedClient) SendText(ctx context.Context, to domain.Recipient, text string) domain.SendResult {
	return c.send(to)
}

func (c *scriptedClient) SendMedia(ctx context.Context, to domain.Recipient, path, caption string) domain.SendResult {
	return c.send(to)
}

func (c *scriptedClient) send(to domain.Recipient) domain.SendResult {
	c.mu.Lock()
	c.sends = append(c.sends, to.ID)
	c.mu.Unlock()
	if c.onSend != nil {
		c.onSend(c.accountID, to.ID)
	}
	if r, ok := c.results[to.ID]; ok {
		return r
	}
	return domain.SendResult{Outcome: domain.SendOK}
}

func (c *scriptedClient) ResolveChat(ctx context.Context, identifier string) (*domain.ChatRef, error) {
	if c.chat == nil {
		return nil, domain.ErrInvalidChatIdentifier
	}
	return c.chat, nil
}

func (c *scriptedClient) Participants(ctx context.Context, chat domain.ChatRef, offset, limit int) (*domain.MemberPage, error) {
	total := 0
	for _, p := range c.pages {
		total += len(p.Members)
	}
	served := 0
	for _, p := range c.pages {
		if served == offset {
			page := p
			page.Total = total
			return &page, nil
		}
		served += len(p.Members)
	}
	return &domain.MemberPage{Total: total}, nil
}

// fakeConnManager hands out scripted clients and counts releases
type fakeConnManager struct {
	mu       sync.Mutex
	clients  map[uint]domain.TelegramClient
	errs     map[uint]error
	acquired map[uint]int
	released map[uint]int
}

func newFakeConnManager() *fakeConnManager {
	return &fakeConnManager{
		clients:  make(map[uint]domain.TelegramClient),
		errs:     make(map[uint]error),
		acquired: make(map[uint]int),
		released: make(map[uint]int),
	}
}

func (m *fakeConnManager) Acquire(ctx context.Context, account *domain.Account) (domain.TelegramClient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.errs[account.ID]; ok {
		return nil, err
	}
	client, ok := m.clients[account.ID]
	if !ok {
		client = &scriptedClient{accountID: account.ID}
		m.clients[account.ID] = client
	}
	m.acquired[account.ID]++
	return client, nil
}

func (m *fakeConnManager) Release(accountID uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released[accountID]++
}

func (m *fakeConnManager) ReleaseAll() {}

func (m *fakeConnManager) releaseCount(accountID uint) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released[accountID]
}
