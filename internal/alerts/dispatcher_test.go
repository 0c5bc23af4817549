package alerts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subwatch/subwatch/internal/domain"
)

type fakeSubscriptionSource struct {
	mu   sync.Mutex
	subs []domain.Subscription
	err  error
}

func (f *fakeSubscriptionSource) FindDueOn(_ context.Context, date time.Time) ([]domain.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var due []domain.Subscription
	for _, sub := range f.subs {
		if sub.RenewalDate.Equal(date) {
			due = append(due, sub)
		}
	}
	return due, nil
}

type fakeUserSource struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func (f *fakeUserSource) GetUser(_ context.Context, id string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return nil, errors.New("user not found")
	}
	return user, nil
}

type memLedger struct {
	mu      sync.Mutex
	entries map[string]bool
}

func newMemLedger() *memLedger {
	return &memLedger{entries: make(map[string]bool)}
}

func ledgerKey(subscriptionID string, offset int, channel domain.AlertChannel) string {
	return fmt.Sprintf("%s|%d|%s", subscriptionID, offset, channel)
}

func (l *memLedger) HasSent(_ context.Context, subscriptionID string, offset int, channel domain.AlertChannel) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries[ledgerKey(subscriptionID, offset, channel)], nil
}

func (l *memLedger) RecordSent(_ context.Context, subscriptionID string, offset int, channel domain.AlertChannel) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := ledgerKey(subscriptionID, offset, channel)
	if l.entries[key] {
		return ErrAlertAlreadyRecorded
	}
	l.entries[key] = true
	return nil
}

func (l *memLedger) ListByUser(_ context.Context, _ string) ([]domain.AlertLogEntry, error) {
	return nil, nil
}

func (l *memLedger) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *memLedger) has(subscriptionID string, offset int, channel domain.AlertChannel) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries[ledgerKey(subscriptionID, offset, channel)]
}

type fakeSender struct {
	mu        sync.Mutex
	channel   domain.AlertChannel
	sent      []Notification
	failFor   map[string]bool
	block     chan struct{}
	entered   chan struct{}
	enterOnce sync.Once
}

func newFakeSender(channel domain.AlertChannel) *fakeSender {
	return &fakeSender{channel: channel, failFor: make(map[string]bool)}
}

func (s *fakeSender) Type() domain.AlertChannel {
	return s.channel
}

func (s *fakeSender) Send(_ context.Context, n Notification) error {
	if s.entered != nil {
		s.enterOnce.Do(func() { close(s.entered) })
	}
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor[n.To] {
		return errors.New("transport down")
	}
	s.sent = append(s.sent, n)
	return nil
}

func (s *fakeSender) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func (s *fakeSender) sentTo() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	to := make([]string, 0, len(s.sent))
	for _, n := range s.sent {
		to = append(to, n.To)
	}
	return to
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func strPtr(s string) *string { return &s }

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDispatcher_RunOnce_SendsDueAlert(t *testing.T) {
	subs := &fakeSubscriptionSource{subs: []domain.Subscription{
		{ID: "sub-1", UserID: "user-1", Name: "Streaming Plus", RenewalDate: date(2025, 1, 31)},
	}}
	users := &fakeUserSource{users: map[string]*domain.User{
		"user-1": {ID: "user-1", Email: "u@x.com", EmailAlertsEnabled: true},
	}}
	ledger := newMemLedger()
	email := newFakeSender(domain.AlertChannelEmail)

	d := NewDispatcher(DispatcherConfig{Offsets: "30"}, subs, users, ledger, email).
		WithClock(fixedClock(time.Date(2025, 1, 1, 8, 30, 0, 0, time.UTC)))

	require.NoError(t, d.RunOnce(context.Background()))

	require.Len(t, email.sent, 1)
	assert.Equal(t, "u@x.com", email.sent[0].To)
	assert.Equal(t, "Reminder: 'Streaming Plus' renews in 30 day(s)", email.sent[0].Subject)
	assert.True(t, ledger.has("sub-1", 30, domain.AlertChannelEmail))
}

func TestDispatcher_RunOnce_DedupAcrossRuns(t *testing.T) {
	subs := &fakeSubscriptionSource{subs: []domain.Subscription{
		{ID: "sub-1", UserID: "user-1", Name: "Streaming Plus", RenewalDate: date(2025, 1, 31)},
	}}
	users := &fakeUserSource{users: map[string]*domain.User{
		"user-1": {ID: "user-1", Email: "u@x.com", EmailAlertsEnabled: true},
	}}
	ledger := newMemLedger()
	email := newFakeSender(domain.AlertChannelEmail)

	d := NewDispatcher(DispatcherConfig{Offsets: "30"}, subs, users, ledger, email).
		WithClock(fixedClock(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)))

	for i := 0; i < 5; i++ {
		require.NoError(t, d.RunOnce(context.Background()))
	}

	assert.Equal(t, 1, email.sentCount())
	assert.Equal(t, 1, ledger.size())
}

func TestDispatcher_RunOnce_OffsetsIndependent(t *testing.T) {
	// One subscription hits offset 30 today and offset 25 five days later.
	subs := &fakeSubscriptionSource{subs: []domain.Subscription{
		{ID: "sub-1", UserID: "user-1", Name: "Gym", RenewalDate: date(2025, 1, 31)},
	}}
	users := &fakeUserSource{users: map[string]*domain.User{
		"user-1": {ID: "user-1", Email: "u@x.com", EmailAlertsEnabled: true},
	}}
	ledger := newMemLedger()
	email := newFakeSender(domain.AlertChannelEmail)

	d := NewDispatcher(DispatcherConfig{}, subs, users, ledger, email).
		WithClock(fixedClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, d.RunOnce(context.Background()))

	d.WithClock(fixedClock(time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, d.RunOnce(context.Background()))

	assert.True(t, ledger.has("sub-1", 30, domain.AlertChannelEmail))
	assert.True(t, ledger.has("sub-1", 25, domain.AlertChannelEmail))
	assert.Equal(t, 2, email.sentCount())
}

func TestDispatcher_RunOnce_FailureIsolation(t *testing.T) {
	subs := &fakeSubscriptionSource{subs: []domain.Subscription{
		{ID: "sub-a", UserID: "user-a", Name: "A", RenewalDate: date(2025, 2, 10)},
		{ID: "sub-b", UserID: "user-b", Name: "B", RenewalDate: date(2025, 2, 10)},
	}}
	users := &fakeUserSource{users: map[string]*domain.User{
		"user-a": {ID: "user-a", Email: "a@x.com", EmailAlertsEnabled: true},
		"user-b": {ID: "user-b", Email: "b@x.com", EmailAlertsEnabled: true},
	}}
	ledger := newMemLedger()
	email := newFakeSender(domain.AlertChannelEmail)
	email.failFor["a@x.com"] = true

	d := NewDispatcher(DispatcherConfig{Offsets: "10"}, subs, users, ledger, email).
		WithClock(fixedClock(time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)))

	require.NoError(t, d.RunOnce(context.Background()))

	// B delivered and recorded; A failed, not recorded.
	assert.Equal(t, []string{"b@x.com"}, email.sentTo())
	assert.False(t, ledger.has("sub-a", 10, domain.AlertChannelEmail))
	assert.True(t, ledger.has("sub-b", 10, domain.AlertChannelEmail))

	// Once the transport recovers, the failed triple fires on the next run.
	email.mu.Lock()
	email.failFor["a@x.com"] = false
	email.mu.Unlock()

	require.NoError(t, d.RunOnce(context.Background()))
	assert.True(t, ledger.has("sub-a", 10, domain.AlertChannelEmail))
	assert.Equal(t, 2, email.sentCount())
}

func TestDispatcher_RunOnce_ChannelEligibility(t *testing.T) {
	subs := &fakeSubscriptionSource{subs: []domain.Subscription{
		{ID: "sub-1", UserID: "muted", Name: "A", RenewalDate: date(2025, 2, 10)},
		{ID: "sub-2", UserID: "phoned", Name: "B", RenewalDate: date(2025, 2, 10)},
	}}
	users := &fakeUserSource{users: map[string]*domain.User{
		"muted":  {ID: "muted", Email: "muted@x.com", EmailAlertsEnabled: false},
		"phoned": {ID: "phoned", Email: "p@x.com", EmailAlertsEnabled: true, Phone: strPtr("+123")},
	}}
	ledger := newMemLedger()
	email := newFakeSender(domain.AlertChannelEmail)
	whatsapp := newFakeSender(domain.AlertChannelWhatsApp)

	d := NewDispatcher(DispatcherConfig{Offsets: "10"}, subs, users, ledger, email, whatsapp).
		WithClock(fixedClock(time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)))

	require.NoError(t, d.RunOnce(context.Background()))

	// Muted user gets nothing, phoned user gets both channels.
	assert.Equal(t, []string{"p@x.com"}, email.sentTo())
	assert.Equal(t, []string{"+123"}, whatsapp.sentTo())
	assert.False(t, ledger.has("sub-1", 10, domain.AlertChannelEmail))
	assert.True(t, ledger.has("sub-2", 10, domain.AlertChannelEmail))
	assert.True(t, ledger.has("sub-2", 10, domain.AlertChannelWhatsApp))
}

func TestDispatcher_RunOnce_NoSenderNoLedgerEntry(t *testing.T) {
	subs := &fakeSubscriptionSource{subs: []domain.Subscription{
		{ID: "sub-1", UserID: "user-1", Name: "A", RenewalDate: date(2025, 2, 10)},
	}}
	users := &fakeUserSource{users: map[string]*domain.User{
		"user-1": {ID: "user-1", Email: "u@x.com", EmailAlertsEnabled: true, Phone: strPtr("+123")},
	}}
	ledger := newMemLedger()
	email := newFakeSender(domain.AlertChannelEmail)

	// No whatsapp sender registered.
	d := NewDispatcher(DispatcherConfig{Offsets: "10"}, subs, users, ledger, email).
		WithClock(fixedClock(time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)))

	require.NoError(t, d.RunOnce(context.Background()))

	assert.True(t, ledger.has("sub-1", 10, domain.AlertChannelEmail))
	assert.False(t, ledger.has("sub-1", 10, domain.AlertChannelWhatsApp))
	assert.Equal(t, 1, ledger.size())
}

func TestDispatcher_RunOnce_FailedSendNoLedgerEntry(t *testing.T) {
	subs := &fakeSubscriptionSource{subs: []domain.Subscription{
		{ID: "sub-1", UserID: "user-1", Name: "A", RenewalDate: date(2025, 2, 10)},
	}}
	users := &fakeUserSource{users: map[string]*domain.User{
		"user-1": {ID: "user-1", Email: "u@x.com", EmailAlertsEnabled: true, Phone: strPtr("+123")},
	}}
	ledger := newMemLedger()
	email := newFakeSender(domain.AlertChannelEmail)
	whatsapp := newFakeSender(domain.AlertChannelWhatsApp)
	whatsapp.failFor["+123"] = true

	d := NewDispatcher(DispatcherConfig{Offsets: "10"}, subs, users, ledger, email, whatsapp).
		WithClock(fixedClock(time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)))

	require.NoError(t, d.RunOnce(context.Background()))

	// The whatsapp transport reported failure, so only the delivered email
	// channel may be recorded. Recording the failed channel would suppress
	// the alert forever.
	assert.True(t, ledger.has("sub-1", 10, domain.AlertChannelEmail))
	assert.False(t, ledger.has("sub-1", 10, domain.AlertChannelWhatsApp))
	assert.Equal(t, 1, ledger.size())
}

func TestDispatcher_RunOnce_MissingOwnerSkipped(t *testing.T) {
	subs := &fakeSubscriptionSource{subs: []domain.Subscription{
		{ID: "sub-1", UserID: "gone", Name: "A", RenewalDate: date(2025, 2, 10)},
		{ID: "sub-2", UserID: "user-2", Name: "B", RenewalDate: date(2025, 2, 10)},
	}}
	users := &fakeUserSource{users: map[string]*domain.User{
		"user-2": {ID: "user-2", Email: "b@x.com", EmailAlertsEnabled: true},
	}}
	ledger := newMemLedger()
	email := newFakeSender(domain.AlertChannelEmail)

	d := NewDispatcher(DispatcherConfig{Offsets: "10"}, subs, users, ledger, email).
		WithClock(fixedClock(time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)))

	require.NoError(t, d.RunOnce(context.Background()))

	assert.Equal(t, []string{"b@x.com"}, email.sentTo())
	assert.Equal(t, 1, ledger.size())
}

func TestDispatcher_RunOnce_RejectsOverlap(t *testing.T) {
	subs := &fakeSubscriptionSource{subs: []domain.Subscription{
		{ID: "sub-1", UserID: "user-1", Name: "A", RenewalDate: date(2025, 2, 10)},
	}}
	users := &fakeUserSource{users: map[string]*domain.User{
		"user-1": {ID: "user-1", Email: "u@x.com", EmailAlertsEnabled: true},
	}}
	ledger := newMemLedger()
	email := newFakeSender(domain.AlertChannelEmail)
	email.block = make(chan struct{})
	email.entered = make(chan struct{})

	d := NewDispatcher(DispatcherConfig{Offsets: "10"}, subs, users, ledger, email).
		WithClock(fixedClock(time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)))

	done := make(chan error, 1)
	go func() { done <- d.RunOnce(context.Background()) }()

	// Wait for the first run to park inside the sender, then try to overlap.
	<-email.entered
	assert.ErrorIs(t, d.RunOnce(context.Background()), ErrRunInProgress)

	close(email.block)
	require.NoError(t, <-done)
	assert.Equal(t, 1, email.sentCount())
}

func TestDispatcher_RunOnce_QueryFailureDoesNotAbortRun(t *testing.T) {
	subs := &fakeSubscriptionSource{err: errors.New("db down")}
	ledger := newMemLedger()
	email := newFakeSender(domain.AlertChannelEmail)

	d := NewDispatcher(DispatcherConfig{}, subs, &fakeUserSource{}, ledger, email).
		WithClock(fixedClock(time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)))

	require.NoError(t, d.RunOnce(context.Background()))
	assert.Equal(t, 0, ledger.size())
}

func TestDispatcher_RunOnce_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDispatcher(DispatcherConfig{}, &fakeSubscriptionSource{}, &fakeUserSource{}, newMemLedger())

	err := d.RunOnce(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDispatcher_SendManual(t *testing.T) {
	sub := &domain.Subscription{ID: "sub-1", Name: "Gym", RenewalDate: date(2025, 3, 1)}
	user := &domain.User{ID: "user-1", Email: "u@x.com"}

	ledger := newMemLedger()
	email := newFakeSender(domain.AlertChannelEmail)
	d := NewDispatcher(DispatcherConfig{}, &fakeSubscriptionSource{}, &fakeUserSource{}, ledger, email)

	require.NoError(t, d.SendManual(context.Background(), sub, user))

	require.Len(t, email.sent, 1)
	assert.Equal(t, "Subscription Renewal Alert: Gym", email.sent[0].Subject)
	// Manual sends never touch the ledger.
	assert.Equal(t, 0, ledger.size())
}

func TestDispatcher_SendManual_NoEmailSender(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{}, &fakeSubscriptionSource{}, &fakeUserSource{}, newMemLedger())

	err := d.SendManual(context.Background(), &domain.Subscription{}, &domain.User{Email: "u@x.com"})
	assert.ErrorIs(t, err, ErrChannelUnavailable)
}

func TestDispatcher_SendManual_NoContactAddress(t *testing.T) {
	email := newFakeSender(domain.AlertChannelEmail)
	d := NewDispatcher(DispatcherConfig{}, &fakeSubscriptionSource{}, &fakeUserSource{}, newMemLedger(), email)

	err := d.SendManual(context.Background(), &domain.Subscription{}, &domain.User{})
	assert.ErrorIs(t, err, ErrNoContactAddress)
}
