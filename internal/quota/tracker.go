// Package quota accounts for characters sent to the premium synthesis
// provider against daily and monthly limits.
package quota

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"

	"github.com/dgnsrekt/versecast/internal/events"
)

const (
	// DefaultDailyLimit is the default number of characters per day.
	DefaultDailyLimit int64 = 100_000
	// DefaultMonthlyLimit is the default number of characters per month.
	DefaultMonthlyLimit int64 = 2_000_000

	// DefaultResetSchedule fires just after local midnight.
	DefaultResetSchedule = "0 5 0 * * *"

	// Windows named in quota events.
	WindowDaily   = "daily"
	WindowMonthly = "monthly"
)

// ErrInvalidLimits is returned when a limit is not positive.
var ErrInvalidLimits = errors.New("quota limits must be positive")

// Limits bounds the characters synthesized per window.
type Limits struct {
	Daily   int64
	Monthly int64
}

// DefaultLimits returns the default limits.
func DefaultLimits() Limits {
	return Limits{Daily: DefaultDailyLimit, Monthly: DefaultMonthlyLimit}
}

// Validate checks the limits.
func (l Limits) Validate() error {
	if l.Daily <= 0 || l.Monthly <= 0 {
		return fmt.Errorf("%w: daily=%d monthly=%d", ErrInvalidLimits, l.Daily, l.Monthly)
	}
	return nil
}

// Counters is the persisted usage state. The reset dates hold the start of
// the window the counters belong to.
type Counters struct {
	Daily            int64
	Monthly          int64
	DailyResetDate   time.Time
	MonthlyResetDate time.Time
}

// Store persists counters between runs.
type Store interface {
	LoadUsage(ctx context.Context) (Counters, bool, error)
	SaveUsage(ctx context.Context, c Counters) error
}

// Publisher receives quota notifications.
type Publisher interface {
	Publish(events.Event)
}

// Usage is a read-only view of the tracker.
type Usage struct {
	Counters
	Limits Limits
}

// DailyRemaining returns the characters left today.
func (u Usage) DailyRemaining() int64 {
	return max(u.Limits.Daily-u.Daily, 0)
}

// MonthlyRemaining returns the characters left this month.
func (u Usage) MonthlyRemaining() int64 {
	return max(u.Limits.Monthly-u.Monthly, 0)
}

// Exhausted reports whether either window is used up.
func (u Usage) Exhausted() bool {
	return u.Daily >= u.Limits.Daily || u.Monthly >= u.Limits.Monthly
}

// Tracker is safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	limits   Limits
	counters Counters

	store     Store
	publisher Publisher
	logger    *log.Logger
	now       func() time.Time

	cron *cron.Cron
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithStore persists counters after every change.
func WithStore(s Store) Option {
	return func(t *Tracker) { t.store = s }
}

// WithPublisher sends limit and reset notifications.
func WithPublisher(p Publisher) Option {
	return func(t *Tracker) { t.publisher = p }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// NewTracker creates a tracker, restoring counters from the store if one is
// configured.
func NewTracker(ctx context.Context, limits Limits, opts ...Option) (*Tracker, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}

	t := &Tracker{
		limits: limits,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = log.Default().WithPrefix("quota")
	}

	now := t.now()
	t.counters = Counters{
		DailyResetDate:   startOfDay(now),
		MonthlyResetDate: startOfMonth(now),
	}

	if t.store != nil {
		c, ok, err := t.store.LoadUsage(ctx)
		if err != nil {
			return nil, fmt.Errorf("load usage: %w", err)
		}
		if ok {
			t.counters = c
		}
	}

	return t, nil
}

// CanConsume reports whether n more characters fit in both windows.
func (t *Tracker) CanConsume(n int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetIfNeededLocked()

	c := int64(n)
	return t.counters.Daily+c <= t.limits.Daily &&
		t.counters.Monthly+c <= t.limits.Monthly
}

// Record adds n characters to both windows.
func (t *Tracker) Record(n int) error {
	if n <= 0 {
		return nil
	}

	t.mu.Lock()
	t.resetIfNeededLocked()

	c := int64(n)
	beforeDaily, beforeMonthly := t.counters.Daily, t.counters.Monthly
	t.counters.Daily += c
	t.counters.Monthly += c
	counters := t.counters
	limits := t.limits
	t.mu.Unlock()

	if beforeDaily < limits.Daily && counters.Daily >= limits.Daily {
		t.logger.Info("daily limit reached", "used", counters.Daily, "limit", limits.Daily)
		t.publish(events.Event{Kind: events.QuotaLimitReached, Window: WindowDaily})
	}
	if beforeMonthly < limits.Monthly && counters.Monthly >= limits.Monthly {
		t.logger.Info("monthly limit reached", "used", counters.Monthly, "limit", limits.Monthly)
		t.publish(events.Event{Kind: events.QuotaLimitReached, Window: WindowMonthly})
	}

	return t.save(counters)
}

// Usage returns the current counters and limits.
func (t *Tracker) Usage() Usage {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetIfNeededLocked()
	return Usage{Counters: t.counters, Limits: t.limits}
}

// SetLimits replaces the limits.
func (t *Tracker) SetLimits(l Limits) error {
	if err := l.Validate(); err != nil {
		return err
	}
	t.mu.Lock()
	t.limits = l
	t.mu.Unlock()
	return nil
}

// CheckReset runs the window check on its own. Resets that happen are
// published and persisted.
func (t *Tracker) CheckReset() {
	t.mu.Lock()
	changed := t.resetIfNeededLocked()
	counters := t.counters
	t.mu.Unlock()

	if changed {
		if err := t.save(counters); err != nil {
			t.logger.Warn("failed to save usage after reset", "err", err)
		}
	}
}

// StartResetSchedule runs CheckReset on a cron schedule so reset
// notifications arrive even when nothing is being synthesized.
func (t *Tracker) StartResetSchedule(spec string) error {
	if spec == "" {
		spec = DefaultResetSchedule
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cron != nil {
		return nil
	}

	c := cron.New(cron.WithSeconds())
	if _, err := c.AddFunc(spec, t.CheckReset); err != nil {
		return fmt.Errorf("invalid reset schedule %q: %w", spec, err)
	}
	c.Start()
	t.cron = c
	return nil
}

// Stop halts the reset schedule.
func (t *Tracker) Stop(ctx context.Context) error {
	t.mu.Lock()
	c := t.cron
	t.cron = nil
	t.mu.Unlock()

	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// resetIfNeededLocked zeroes each window whose boundary the clock has
// crossed. Each window is independent. Caller holds t.mu.
func (t *Tracker) resetIfNeededLocked() bool {
	now := t.now()
	changed := false

	if day := startOfDay(now); !day.Equal(startOfDay(t.counters.DailyResetDate.In(now.Location()))) {
		t.counters.Daily = 0
		t.counters.DailyResetDate = day
		changed = true
		t.publish(events.Event{Kind: events.QuotaReset, Window: WindowDaily})
	}

	if month := startOfMonth(now); !month.Equal(startOfMonth(t.counters.MonthlyResetDate.In(now.Location()))) {
		t.counters.Monthly = 0
		t.counters.MonthlyResetDate = month
		changed = true
		t.publish(events.Event{Kind: events.QuotaReset, Window: WindowMonthly})
	}

	if changed {
		t.logger.Debug("usage window reset", "daily", t.counters.DailyResetDate, "monthly", t.counters.MonthlyResetDate)
	}
	return changed
}

func (t *Tracker) publish(ev events.Event) {
	if t.publisher != nil {
		t.publisher.Publish(ev)
	}
}

func (t *Tracker) save(c Counters) error {
	if t.store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.store.SaveUsage(ctx, c); err != nil {
		return fmt.Errorf("save usage: %w", err)
	}
	return nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func startOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}
