package usecase

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/solitack2/sender-service/config"
	"github.com/solitack2/sender-service/internal/domain"
	"github.com/solitack2/sender-service/internal/infrastructure/metrics"
)

// JitterFunc draws one inter-message delay from [min, max]. Injectable so
// tests run without sleeping.
type JitterFunc func(min, max time.Duration) time.Duration

func defaultJitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

// rotationSlot is one connected account participating in a dispatch run.
type rotationSlot struct {
	account domain.Account
	client  domain.TelegramClient
	sent    int
	dropped bool
}

// dispatchUseCase implements domain.DispatchRunner
type dispatchUseCase struct {
	accounts    domain.AccountRepository
	members     domain.MemberRepository
	messages    domain.MessageRepository
	settings    domain.SettingsRepository
	connections domain.ConnectionManager
	defaults    *config.DispatchConfig
	jitter      JitterFunc
	logger      zerolog.Logger
	metrics     *metrics.Metrics
}

// NewDispatchUseCase creates the dispatch scheduler
func NewDispatchUseCase(
	accounts domain.AccountRepository,
	members domain.MemberRepository,
	messages domain.MessageRepository,
	settings domain.SettingsRepository,
	connections domain.ConnectionManager,
	defaults *config.DispatchConfig,
	logger zerolog.Logger,
) domain.DispatchRunner {
	return &dispatchUseCase{
		accounts:    accounts,
		members:     members,
		messages:    messages,
		settings:    settings,
		connections: connections,
		defaults:    defaults,
		jitter:      defaultJitter,
		logger:      logger.With().Str("component", "dispatch").Logger(),
		metrics:     metrics.GetDefaultMetrics(),
	}
}

// RunDispatch executes one dispatch job: connect the eligible accounts up
// front, then walk the recipients in input order rotating accounts on quota
// exhaustion. Recipient-side failures never punish the account; a flood wait
// quarantines exactly the account that received it and rotation moves on.
// Every acquired connection is released on every exit path.
//
// The returned report is always populated. On cancellation the error is the
// context's and the report covers the work finished before the stop.
func (u *dispatchUseCase) RunDispatch(ctx context.Context, job *domain.Job, req domain.DispatchRequest) (*domain.DispatchReport, error) {
	start := time.Now()
	defer func() {
		u.metrics.DispatchDuration.Observe(time.Since(start).Seconds())
	}()

	logger := u.logger.With().Uint("job_id", job.ID).Logger()
	report := &domain.DispatchReport{Reasons: make(map[string]int)}

	sendLimit := u.resolveInt(ctx, req.SendLimit, domain.SettingSendLimit, u.defaults.SendLimit)
	delayMin := u.resolveDuration(ctx, req.DelayMin, domain.SettingDelayMin, u.defaults.DelayMin)
	delayMax := u.resolveDuration(ctx, req.DelayMax, domain.SettingDelayMax, u.defaults.DelayMax)
	if delayMax < delayMin {
		delayMax = delayMin
	}
	// Advisory only: quota is job-scoped, the rest period is logged but a
	// spent account is fully eligible again in the next job.
	accountRest := u.resolveDuration(ctx, nil, domain.SettingAccountRest, 0)

	rotation, err := u.connectEligible(ctx, job.CategoryID, logger)
	if err != nil {
		return report, err
	}
	if len(rotation) == 0 {
		return report, domain.ErrNoUsableAccounts
	}
	defer func() {
		for _, slot := range rotation {
			u.connections.Release(slot.account.ID)
		}
	}()

	hashes, err := u.members.AccessHashes(ctx, req.Recipients)
	if err != nil {
		return report, fmt.Errorf("resolve recipients: %w", err)
	}

	logger.Info().
		Int("accounts", len(rotation)).
		Int("recipients", len(req.Recipients)).
		Int("send_limit", sendLimit).
		Msg("dispatch started")

	cursor := 0
	for i, recipientID := range req.Recipients {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		slot, ok := nextSlot(rotation, cursor, sendLimit)
		if !ok {
			// Quota across the whole rotation is spent; the rest of the
			// recipients are left unattempted.
			report.Skipped = len(req.Recipients) - i
			u.metrics.MessagesSkipped.Add(float64(report.Skipped))
			logger.Info().Int("skipped", report.Skipped).Msg("rotation exhausted")
			break
		}
		cursor = slot

		recipient := domain.Recipient{ID: recipientID, AccessHash: hashes[recipientID]}
		outcome, err := u.attempt(ctx, job, rotation[slot], recipient, req, logger)
		if err != nil {
			return report, err
		}
		report.Attempted++

		switch outcome.Outcome {
		case domain.SendOK:
			report.Sent++
			rotation[slot].sent++
			if rotation[slot].sent >= sendLimit {
				logger.Debug().
					Uint("account_id", rotation[slot].account.ID).
					Str("state", string(domain.AccountStatusResting)).
					Dur("rest", accountRest).
					Msg("account quota spent, resting until the job ends")
			}

		case domain.SendRecipientError:
			report.Failed++
			report.Reasons[outcome.Reason]++

		case domain.SendRateLimited:
			report.Failed++
			report.Reasons[outcome.Reason]++
			rotation[slot].dropped = true
			u.quarantine(ctx, rotation[slot].account.ID, outcome.RetryAfter, logger)
			continue // next recipient starts on the next account, no pause

		case domain.SendTransientError:
			report.Failed++
			report.Reasons[outcome.Reason]++
			rotation[slot].dropped = true
			u.ground(ctx, rotation[slot].account.ID, outcome.Reason, logger)
			continue
		}

		if i < len(req.Recipients)-1 {
			if err := u.pause(ctx, u.jitter(delayMin, delayMax)); err != nil {
				return report, err
			}
		}
	}

	logger.Info().
		Int("sent", report.Sent).
		Int("failed", report.Failed).
		Int("skipped", report.Skipped).
		Msg("dispatch finished")

	return report, nil
}

// connectEligible resolves the job's account list and acquires connections
// for every eligible account. Accounts that fail to connect are dropped from
// this job's rotation, not retried mid-job.
func (u *dispatchUseCase) connectEligible(ctx context.Context, categoryID *uint, logger zerolog.Logger) ([]*rotationSlot, error) {
	accounts, err := u.accounts.List(ctx, categoryID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	now := time.Now()
	rotation := make([]*rotationSlot, 0, len(accounts))
	for _, account := range accounts {
		eligible := account.Status == domain.AccountStatusActive ||
			account.Status == domain.AccountStatusError ||
			account.FloodWaitElapsed(now)
		if !eligible {
			continue
		}

		if ctx.Err() != nil {
			for _, slot := range rotation {
				u.connections.Release(slot.account.ID)
			}
			return nil, ctx.Err()
		}

		client, err := u.connections.Acquire(ctx, &account)
		if err != nil {
			logger.Warn().Err(err).Uint("account_id", account.ID).Msg("account dropped from rotation")
			continue
		}
		rotation = append(rotation, &rotationSlot{account: account, client: client})
	}

	return rotation, nil
}

// nextSlot finds the first slot at or after cursor, circularly, that is
// still connected and under quota.
func nextSlot(rotation []*rotationSlot, cursor, sendLimit int) (int, bool) {
	for i := 0; i < len(rotation); i++ {
		idx := (cursor + i) % len(rotation)
		if rotation[idx].dropped || rotation[idx].sent >= sendLimit {
			continue
		}
		return idx, true
	}
	return 0, false
}

// attempt records a pending message, performs the send and settles the
// message row to its terminal state. A failure to record the message is a
// storage problem, not an account problem, and fails the whole attempt.
func (u *dispatchUseCase) attempt(ctx context.Context, job *domain.Job, slot *rotationSlot, recipient domain.Recipient, req domain.DispatchRequest, logger zerolog.Logger) (domain.SendResult, error) {
	msg := &domain.Message{
		JobID:     job.ID,
		AccountID: slot.account.ID,
		TargetID:  recipient.ID,
		Text:      req.Text,
		MediaPath: req.MediaPath,
	}
	if err := u.messages.Append(ctx, msg); err != nil {
		return domain.SendResult{}, fmt.Errorf("record pending message for %d: %w", recipient.ID, err)
	}

	var result domain.SendResult
	if req.MediaPath != "" {
		result = slot.client.SendMedia(ctx, recipient, req.MediaPath, req.Text)
	} else {
		result = slot.client.SendText(ctx, recipient, req.Text)
	}

	if result.Outcome == domain.SendOK {
		if err := u.messages.MarkSent(ctx, msg.ID); err != nil {
			logger.Error().Err(err).Uint("message_id", msg.ID).Msg("failed to mark message sent")
		}
		if err := u.accounts.RecordUsage(ctx, slot.account.ID, true); err != nil {
			logger.Warn().Err(err).Uint("account_id", slot.account.ID).Msg("failed to record usage")
		}
		u.metrics.RecordSend()
		return result, nil
	}

	if err := u.messages.MarkFailed(ctx, msg.ID, result.Reason); err != nil {
		logger.Error().Err(err).Uint("message_id", msg.ID).Msg("failed to mark message failed")
	}
	if err := u.accounts.RecordUsage(ctx, slot.account.ID, false); err != nil {
		logger.Warn().Err(err).Uint("account_id", slot.account.ID).Msg("failed to record usage")
	}
	u.metrics.RecordFailure(result.Reason)

	logger.Debug().
		Uint("account_id", slot.account.ID).
		Int64("target_id", recipient.ID).
		Str("reason", result.Reason).
		Msg("send failed")

	return result, nil
}

func (u *dispatchUseCase) quarantine(ctx context.Context, accountID uint, wait time.Duration, logger zerolog.Logger) {
	u.metrics.FloodWaits.Inc()
	until := time.Now().Add(wait)
	if err := u.accounts.SetFloodWait(ctx, accountID, until); err != nil {
		logger.Error().Err(err).Uint("account_id", accountID).Msg("failed to quarantine account")
		return
	}
	logger.Warn().
		Uint("account_id", accountID).
		Dur("wait", wait).
		Msg("account flood-waited, removed from rotation")
}

func (u *dispatchUseCase) ground(ctx context.Context, accountID uint, reason string, logger zerolog.Logger) {
	if err := u.accounts.SetStatus(ctx, accountID, domain.AccountStatusError, reason); err != nil {
		logger.Error().Err(err).Uint("account_id", accountID).Msg("failed to record account error")
		return
	}
	logger.Warn().
		Uint("account_id", accountID).
		Str("reason", reason).
		Msg("account errored, removed from rotation")
}

// pause sleeps for d or until the context is cancelled.
func (u *dispatchUseCase) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// resolveInt returns, in precedence order: the per-job override, the
// settings table value, the env default.
func (u *dispatchUseCase) resolveInt(ctx context.Context, override *int, key string, fallback int) int {
	if override != nil {
		return *override
	}
	if raw, ok, err := u.settings.Get(ctx, key); err == nil && ok {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	return fallback
}

func (u *dispatchUseCase) resolveDuration(ctx context.Context, override *time.Duration, key string, fallback time.Duration) time.Duration {
	if override != nil {
		return *override
	}
	if raw, ok, err := u.settings.Get(ctx, key); err == nil && ok {
		// Settings store plain seconds; full duration strings also work.
		if secs, err := strconv.Atoi(raw); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
		if d, err := time.ParseDuration(raw); err == nil && d >= 0 {
			return d
		}
	}
	return fallback
}
