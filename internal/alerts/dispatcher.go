package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/subwatch/subwatch/internal/domain"
)

// SubscriptionSource provides read access to subscriptions due on a date.
type SubscriptionSource interface {
	FindDueOn(ctx context.Context, date time.Time) ([]domain.Subscription, error)
}

// UserSource provides read access to subscription owners.
type UserSource interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
}

// DispatcherConfig contains dispatcher configuration.
type DispatcherConfig struct {
	// Offsets is the raw comma-separated offset list. It is resolved at the
	// start of every run; invalid values fall back to DefaultOffsets.
	Offsets string
}

// Dispatcher scans subscriptions and sends renewal alerts at the configured
// offsets, deduplicating through the ledger. Each (subscription, offset,
// channel) triple is an independent unit of work: its failure is logged and
// never aborts the rest of the run.
type Dispatcher struct {
	config  DispatcherConfig
	subs    SubscriptionSource
	users   UserSource
	ledger  Ledger
	senders map[domain.AlertChannel]Sender
	now     func() time.Time

	// runMu serializes runs. The ledger's uniqueness constraint only
	// prevents duplicate records, not duplicate sends, so overlapping runs
	// are rejected outright instead of racing check-then-act.
	runMu sync.Mutex
}

// NewDispatcher creates a new alert dispatcher.
func NewDispatcher(config DispatcherConfig, subs SubscriptionSource, users UserSource, ledger Ledger, senders ...Sender) *Dispatcher {
	senderMap := make(map[domain.AlertChannel]Sender)
	for _, s := range senders {
		senderMap[s.Type()] = s
	}
	return &Dispatcher{
		config:  config,
		subs:    subs,
		users:   users,
		ledger:  ledger,
		senders: senderMap,
		now:     time.Now,
	}
}

// WithClock overrides the dispatcher's time source. Used in tests.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// RunOnce executes a single dispatch run. Returns ErrRunInProgress if
// another run is still executing.
func (d *Dispatcher) RunOnce(ctx context.Context) error {
	if !d.runMu.TryLock() {
		return ErrRunInProgress
	}
	defer d.runMu.Unlock()

	start := d.now()
	today := truncateToDate(start)
	offsets := ResolveOffsets(d.config.Offsets)
	runID := uuid.NewString()

	logger := slog.With("run_id", runID)
	logger.Info("dispatch run started",
		"today", today.Format(dateFormat),
		"offsets", offsets,
	)

	for _, offset := range offsets {
		if err := ctx.Err(); err != nil {
			recordDispatchRun("cancelled", d.now().Sub(start))
			return fmt.Errorf("dispatch run cancelled: %w", err)
		}
		d.processOffset(ctx, logger, today, offset)
	}

	recordDispatchRun("completed", d.now().Sub(start))
	logger.Info("dispatch run finished", "duration", d.now().Sub(start))
	return nil
}

func (d *Dispatcher) processOffset(ctx context.Context, logger *slog.Logger, today time.Time, offset int) {
	target := today.AddDate(0, 0, offset)

	due, err := d.subs.FindDueOn(ctx, target)
	if err != nil {
		logger.Error("failed to query due subscriptions",
			"offset", offset,
			"target", target.Format(dateFormat),
			"error", err,
		)
		return
	}

	logger.Info("due subscriptions found",
		"offset", offset,
		"target", target.Format(dateFormat),
		"count", len(due),
	)

	for i := range due {
		d.processSubscription(ctx, logger, &due[i], offset)
	}
}

// processSubscription is a failure-isolation boundary: a panic while
// handling one subscription must not take down the rest of the run.
func (d *Dispatcher) processSubscription(ctx context.Context, logger *slog.Logger, sub *domain.Subscription, offset int) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while processing subscription",
				"subscription_id", sub.ID,
				"offset", offset,
				"panic", r,
			)
		}
	}()

	user, err := d.users.GetUser(ctx, sub.UserID)
	if err != nil {
		// The owner may have vanished between query and processing.
		logger.Info("skipping subscription, owner lookup failed",
			"subscription_id", sub.ID,
			"user_id", sub.UserID,
			"error", err,
		)
		return
	}

	for _, channel := range eligibleChannels(user) {
		d.processChannel(ctx, logger, sub, user, offset, channel)
	}
}

func (d *Dispatcher) processChannel(ctx context.Context, logger *slog.Logger, sub *domain.Subscription, user *domain.User, offset int, channel domain.AlertChannel) {
	sent, err := d.ledger.HasSent(ctx, sub.ID, offset, channel)
	if err != nil {
		logger.Error("ledger check failed",
			"subscription_id", sub.ID,
			"offset", offset,
			"channel", channel,
			"error", err,
		)
		return
	}
	if sent {
		logger.Debug("alert already sent, skipping",
			"subscription_id", sub.ID,
			"offset", offset,
			"channel", channel,
		)
		return
	}

	sender, ok := d.senders[channel]
	if !ok {
		// No transport for this channel. Deliberately no ledger write: a
		// stale dedup record would suppress the alert forever once a real
		// sender is registered.
		logger.Debug("no sender registered for channel, skipping",
			"subscription_id", sub.ID,
			"channel", channel,
		)
		return
	}

	subject, body := BuildMessage(sub, user, offset)
	notification := Notification{
		To:      channelTarget(user, channel),
		Subject: subject,
		Body:    body,
	}

	start := d.now()
	if err := sender.Send(ctx, notification); err != nil {
		// No ledger write on failure; the triple becomes eligible again on
		// the next run. At-least-once, not exactly-once.
		logger.Warn("alert send failed",
			"subscription_id", sub.ID,
			"offset", offset,
			"channel", channel,
			"to", notification.To,
			"error", err,
		)
		recordAlertSent(string(channel), "failed")
		return
	}
	recordAlertDuration(string(channel), d.now().Sub(start))

	if err := d.ledger.RecordSent(ctx, sub.ID, offset, channel); err != nil {
		if errors.Is(err, ErrAlertAlreadyRecorded) {
			// Lost a race against a concurrent run; the alert went out twice
			// but the ledger stays consistent.
			logger.Warn("alert already recorded by another run",
				"subscription_id", sub.ID,
				"offset", offset,
				"channel", channel,
			)
			recordAlertSent(string(channel), "duplicate")
			return
		}
		logger.Error("failed to record sent alert",
			"subscription_id", sub.ID,
			"offset", offset,
			"channel", channel,
			"error", err,
		)
		recordAlertSent(string(channel), "record_failed")
		return
	}

	recordAlertSent(string(channel), "success")
	logger.Info("alert sent",
		"subscription_id", sub.ID,
		"offset", offset,
		"channel", channel,
		"to", notification.To,
	)
}

// SendManual sends an immediate email alert for one subscription, outside
// the offset schedule and without touching the ledger.
func (d *Dispatcher) SendManual(ctx context.Context, sub *domain.Subscription, user *domain.User) error {
	sender, ok := d.senders[domain.AlertChannelEmail]
	if !ok {
		return ErrChannelUnavailable
	}
	if user.Email == "" {
		return ErrNoContactAddress
	}

	subject, body := BuildManualMessage(sub, user)
	if err := sender.Send(ctx, Notification{To: user.Email, Subject: subject, Body: body}); err != nil {
		return fmt.Errorf("send manual alert: %w", err)
	}

	slog.Info("manual alert sent",
		"subscription_id", sub.ID,
		"to", user.Email,
	)
	return nil
}

// eligibleChannels returns the channels a user can be alerted on: email when
// an address is present and email alerts are enabled, whatsapp when a phone
// number is present.
func eligibleChannels(user *domain.User) []domain.AlertChannel {
	channels := make([]domain.AlertChannel, 0, 2)
	if user.Email != "" && user.EmailAlertsEnabled {
		channels = append(channels, domain.AlertChannelEmail)
	}
	if user.HasPhone() {
		channels = append(channels, domain.AlertChannelWhatsApp)
	}
	return channels
}

func channelTarget(user *domain.User, channel domain.AlertChannel) string {
	switch channel {
	case domain.AlertChannelEmail:
		return user.Email
	case domain.AlertChannelWhatsApp:
		if user.Phone != nil {
			return *user.Phone
		}
	}
	return ""
}

// truncateToDate drops the time component, keeping a midnight UTC date.
func truncateToDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
