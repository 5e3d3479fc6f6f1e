package telegram

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/telegram/message/styling"
	"github.com/gotd/td/telegram/uploader"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/solitack2/sender-service/internal/domain"
	"github.com/solitack2/sender-service/internal/utils"
)

// recipientErrorCodes are provider errors caused by the target, not the
// sending account. They never affect account health.
var recipientErrorCodes = []string{
	"USER_PRIVACY_RESTRICTED",
	"PEER_ID_INVALID",
	"USER_IS_BLOCKED",
	"INPUT_USER_DEACTIVATED",
	"USER_DELETED",
}

// MTProtoClient implements domain.TelegramClient using gotd/td library
type MTProtoClient struct {
	client *telegram.Client

	apiID   int
	apiHash string

	accountID  uint
	phone      string
	sessionRef string

	sessionStorage *FileSessionStorage
	proxyCfg       *domain.Proxy

	connected     bool
	disconnecting bool
	mu            sync.RWMutex
	cancelFunc    context.CancelFunc
	runDone       chan struct{} // Signals when client.Run() completes

	logger zerolog.Logger

	api    *tg.Client
	sender *message.Sender

	// Rate limiter for API calls
	rateLimiter *rate.Limiter
}

// ClientConfig holds configuration for MTProtoClient
type ClientConfig struct {
	APIID      int
	APIHash    string
	SessionDir string
	Account    domain.Account
	Proxy      *domain.Proxy
	Logger     zerolog.Logger
}

// NewMTProtoClient creates a new MTProto client instance
func NewMTProtoClient(cfg ClientConfig) (*MTProtoClient, error) {
	if cfg.APIID == 0 {
		return nil, fmt.Errorf("APIID is required")
	}
	if cfg.APIHash == "" {
		return nil, fmt.Errorf("APIHash is required")
	}
	if cfg.Account.SessionRef == "" {
		return nil, fmt.Errorf("account session reference is required")
	}
	if cfg.SessionDir == "" {
		cfg.SessionDir = "./sessions"
	}

	sessionStorage, err := NewFileSessionStorage(cfg.SessionDir, cfg.Account.SessionRef)
	if err != nil {
		return nil, fmt.Errorf("failed to create session storage: %w", err)
	}

	maskedPhone := utils.MaskPhoneNumber(cfg.Account.Phone)

	client := &MTProtoClient{
		apiID:          cfg.APIID,
		apiHash:        cfg.APIHash,
		accountID:      cfg.Account.ID,
		phone:          cfg.Account.Phone,
		sessionRef:     cfg.Account.SessionRef,
		sessionStorage: sessionStorage,
		proxyCfg:       cfg.Proxy,
		logger: cfg.Logger.With().
			Str("component", "mtproto_client").
			Uint("account_id", cfg.Account.ID).
			Str("phone", maskedPhone).
			Logger(),
		rateLimiter: rate.NewLimiter(rate.Every(time.Second), 10), // 10 requests per second
	}

	return client, nil
}

// Connect opens the MTProto session. The service runs unattended: if the
// stored session is missing or needs an interactive step (login code, 2FA
// password), Connect fails with domain.ErrAuthenticationRequired and the
// account must go through the add-account flow again.
func (c *MTProtoClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		c.logger.Debug().Msg("already connected")
		return nil
	}
	if c.disconnecting {
		c.mu.Unlock()
		return fmt.Errorf("disconnect in progress, cannot connect")
	}
	// Keep the lock to prevent concurrent connection attempts
	defer c.mu.Unlock()

	c.logger.Info().Msg("connecting to Telegram")

	resolver, err := resolverForProxy(c.proxyCfg)
	if err != nil {
		return fmt.Errorf("failed to configure proxy: %w", err)
	}

	c.client = telegram.NewClient(c.apiID, c.apiHash, telegram.Options{
		SessionStorage: c.sessionStorage,
		Resolver:       resolver,
	})

	clientCtx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel

	readyChan := make(chan struct{})
	errChan := make(chan error, 1)
	started := make(chan struct{})
	c.runDone = make(chan struct{})

	go func() {
		defer close(c.runDone)
		close(started)
		err := c.client.Run(clientCtx, func(ctx context.Context) error {
			c.api = c.client.API()
			c.sender = message.NewSender(c.api)

			status, err := c.client.Auth().Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to check auth status: %w", err)
			}

			if !status.Authorized {
				c.logger.Warn().Msg("session not authorized, re-authentication required")
				return domain.ErrAuthenticationRequired
			}

			c.connected = true
			c.logger.Info().Msg("session restored, connected to Telegram")

			close(readyChan)

			// Keep connection alive
			<-ctx.Done()
			return ctx.Err()
		})
		select {
		case errChan <- err:
		default:
		}
	}()

	<-started

	select {
	case <-readyChan:
		return nil
	case err := <-errChan:
		cancel()
		if err != nil {
			return classifyConnectError(err)
		}
		return nil
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

// classifyConnectError maps a raw connect failure to the scheduler's error
// taxonomy: authentication-required, flood wait, or transient.
func classifyConnectError(err error) error {
	if wait, ok := tgerr.AsFloodWait(err); ok {
		return &domain.FloodWaitError{Wait: wait}
	}
	if errors.Is(err, domain.ErrAuthenticationRequired) {
		return err
	}
	if tgerr.Is(err, "SESSION_PASSWORD_NEEDED") ||
		tgerr.Is(err, "SESSION_REVOKED") ||
		tgerr.Is(err, "AUTH_KEY_UNREGISTERED") ||
		tgerr.Is(err, "PHONE_NUMBER_BANNED") {
		return fmt.Errorf("%w: %s", domain.ErrAuthenticationRequired, err)
	}
	return fmt.Errorf("%w: %s", domain.ErrConnectionFailed, err)
}

// Disconnect closes the session. Multiple calls are safe and return nil if
// already disconnected. Safe for concurrent use.
func (c *MTProtoClient) Disconnect(ctx context.Context) error {
	c.mu.Lock()

	if c.disconnecting {
		c.mu.Unlock()
		c.logger.Debug().Msg("disconnect already in progress")
		return nil
	}

	if !c.connected {
		c.mu.Unlock()
		c.logger.Debug().Msg("already disconnected")
		return nil
	}

	c.logger.Info().Msg("disconnecting from Telegram")

	c.disconnecting = true
	cancelFunc := c.cancelFunc
	runDone := c.runDone
	c.mu.Unlock()

	if cancelFunc != nil {
		cancelFunc()

		if runDone != nil {
			select {
			case <-runDone:
				c.logger.Debug().Msg("client stopped gracefully")
			case <-ctx.Done():
				c.logger.Warn().Msg("disconnect timeout reached while waiting for client shutdown")
			}
		}
	}

	c.mu.Lock()
	c.client = nil
	c.api = nil
	c.sender = nil
	c.connected = false
	c.cancelFunc = nil
	c.runDone = nil
	c.disconnecting = false
	c.mu.Unlock()

	c.logger.Info().Msg("disconnected from Telegram")
	return nil
}

// IsConnected checks if client is connected to Telegram
func (c *MTProtoClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// AccountID returns the registry id of the owning account
func (c *MTProtoClient) AccountID() uint {
	return c.accountID
}

// SendText sends a plain text private message. Every provider error is
// folded into exactly one SendResult class.
func (c *MTProtoClient) SendText(ctx context.Context, to domain.Recipient, text string) domain.SendResult {
	c.mu.RLock()
	if !c.connected || c.sender == nil {
		c.mu.RUnlock()
		return domain.SendResult{Outcome: domain.SendTransientError, Reason: domain.ErrNotConnected.Error()}
	}
	sender := c.sender
	c.mu.RUnlock()

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return domain.SendResult{Outcome: domain.SendTransientError, Reason: "rate limit wait cancelled"}
	}

	peer := &tg.InputPeerUser{UserID: to.ID, AccessHash: to.AccessHash}
	_, err := sender.To(peer).Text(ctx, text)
	if err != nil {
		c.logger.Debug().Err(err).Int64("target_id", to.ID).Msg("send failed")
		return classifySendError(err)
	}

	return domain.SendResult{Outcome: domain.SendOK}
}

// SendMedia uploads a local file and sends it with a caption. Images go as
// photos, everything else as a document.
func (c *MTProtoClient) SendMedia(ctx context.Context, to domain.Recipient, path, caption string) domain.SendResult {
	c.mu.RLock()
	if !c.connected || c.api == nil || c.sender == nil {
		c.mu.RUnlock()
		return domain.SendResult{Outcome: domain.SendTransientError, Reason: domain.ErrNotConnected.Error()}
	}
	api := c.api
	sender := c.sender
	c.mu.RUnlock()

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return domain.SendResult{Outcome: domain.SendTransientError, Reason: "rate limit wait cancelled"}
	}

	file, err := uploader.NewUploader(api).FromPath(ctx, path)
	if err != nil {
		c.logger.Warn().Err(err).Str("path", path).Msg("media upload failed")
		return classifySendError(err)
	}

	var media message.MediaOption
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".gif":
		media = message.UploadedPhoto(file, styling.Plain(caption))
	default:
		media = message.UploadedDocument(file, styling.Plain(caption))
	}

	peer := &tg.InputPeerUser{UserID: to.ID, AccessHash: to.AccessHash}
	if _, err := sender.To(peer).Media(ctx, media); err != nil {
		c.logger.Debug().Err(err).Int64("target_id", to.ID).Msg("media send failed")
		return classifySendError(err)
	}

	return domain.SendResult{Outcome: domain.SendOK}
}

// classifySendError folds a raw send failure into the typed result the
// dispatch scheduler consumes.
func classifySendError(err error) domain.SendResult {
	if wait, ok := tgerr.AsFloodWait(err); ok {
		return domain.SendResult{
			Outcome:    domain.SendRateLimited,
			RetryAfter: wait,
			Reason:     "FLOOD_WAIT",
		}
	}

	for _, code := range recipientErrorCodes {
		if tgerr.Is(err, code) {
			return domain.SendResult{Outcome: domain.SendRecipientError, Reason: code}
		}
	}

	return domain.SendResult{Outcome: domain.SendTransientError, Reason: err.Error()}
}

// ResolveChat resolves a chat identifier (@handle, t.me URL or numeric id)
// to a reference usable for member enumeration.
func (c *MTProtoClient) ResolveChat(ctx context.Context, identifier string) (*domain.ChatRef, error) {
	c.mu.RLock()
	if !c.connected || c.api == nil {
		c.mu.RUnlock()
		return nil, domain.ErrNotConnected
	}
	api := c.api
	c.mu.RUnlock()

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, domain.ErrInvalidChatIdentifier
	}

	// t.me links reduce to the username form.
	if strings.HasPrefix(identifier, "https://t.me/") || strings.HasPrefix(identifier, "t.me/") {
		parts := strings.Split(strings.TrimRight(identifier, "/"), "/")
		identifier = "@" + parts[len(parts)-1]
	}

	if strings.HasPrefix(identifier, "@") {
		username := strings.TrimPrefix(identifier, "@")
		resolved, err := api.ContactsResolveUsername(ctx, username)
		if err != nil {
			c.logger.Error().Err(err).Str("chat", identifier).Msg("failed to resolve chat")
			return nil, fmt.Errorf("failed to resolve chat: %w", err)
		}

		for _, chat := range resolved.Chats {
			if channel, ok := chat.(*tg.Channel); ok {
				return &domain.ChatRef{
					ID:         channel.ID,
					AccessHash: channel.AccessHash,
					Title:      channel.Title,
				}, nil
			}
		}
		return nil, fmt.Errorf("%w: %s is not a channel or supergroup", domain.ErrInvalidChatIdentifier, identifier)
	}

	chatID, err := strconv.ParseInt(identifier, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidChatIdentifier, identifier)
	}

	// A bare numeric id carries no access hash; the provider accepts it only
	// for peers this session has already seen.
	result, err := api.ChannelsGetChannels(ctx, []tg.InputChannelClass{
		&tg.InputChannel{ChannelID: chatID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve chat by id: %w", err)
	}

	for _, chat := range result.GetChats() {
		if channel, ok := chat.(*tg.Channel); ok && channel.ID == chatID {
			return &domain.ChatRef{
				ID:         channel.ID,
				AccessHash: channel.AccessHash,
				Title:      channel.Title,
			}, nil
		}
	}

	return nil, fmt.Errorf("%w: chat %d not found", domain.ErrInvalidChatIdentifier, chatID)
}

// Participants returns one page of a chat's member roster.
func (c *MTProtoClient) Participants(ctx context.Context, chat domain.ChatRef, offset, limit int) (*domain.MemberPage, error) {
	c.mu.RLock()
	if !c.connected || c.api == nil {
		c.mu.RUnlock()
		return nil, domain.ErrNotConnected
	}
	api := c.api
	c.mu.RUnlock()

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	result, err := api.ChannelsGetParticipants(ctx, &tg.ChannelsGetParticipantsRequest{
		Channel: &tg.InputChannel{ChannelID: chat.ID, AccessHash: chat.AccessHash},
		Filter:  &tg.ChannelParticipantsRecent{},
		Offset:  offset,
		Limit:   limit,
	})
	if err != nil {
		if wait, ok := tgerr.AsFloodWait(err); ok {
			return nil, &domain.FloodWaitError{Wait: wait}
		}
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}

	participants, ok := result.(*tg.ChannelsChannelParticipants)
	if !ok {
		return nil, fmt.Errorf("unexpected participants response type %T", result)
	}

	page := &domain.MemberPage{
		Total:   participants.Count,
		Members: make([]domain.Member, 0, len(participants.Users)),
	}

	now := time.Now()
	for _, u := range participants.Users {
		user, ok := u.(*tg.User)
		if ok && !user.Bot && !user.Deleted {
			page.Members = append(page.Members, domain.Member{
				TelegramID:   user.ID,
				AccessHash:   user.AccessHash,
				Username:     user.Username,
				FirstName:    user.FirstName,
				LastName:     user.LastName,
				SourceChatID: chat.ID,
				SourceTitle:  chat.Title,
				ExtractedBy:  c.accountID,
				ExtractedAt:  now,
			})
		}
	}

	return page, nil
}

// Ensure MTProtoClient implements domain.TelegramClient interface
var _ domain.TelegramClient = (*MTProtoClient)(nil)
