package quota

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/versecast/internal/events"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ev events.Event) {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
}

func (p *recordingPublisher) count(kind events.Kind, window string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ev := range p.events {
		if ev.Kind == kind && ev.Window == window {
			n++
		}
	}
	return n
}

type memStore struct {
	mu       sync.Mutex
	counters Counters
	saved    bool
	saves    int
	loadErr  error
}

func (s *memStore) LoadUsage(ctx context.Context) (Counters, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters, s.saved, s.loadErr
}

func (s *memStore) SaveUsage(ctx context.Context, c Counters) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters = c
	s.saved = true
	s.saves++
	return nil
}

func newTestTracker(t *testing.T, limits Limits, clock *fakeClock, opts ...Option) *Tracker {
	t.Helper()
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	tr, err := NewTracker(context.Background(), limits, opts...)
	if err != nil {
		t.Fatalf("NewTracker failed: %v", err)
	}
	return tr
}

func TestTracker_DailyLimitBoundary(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	tr := newTestTracker(t, Limits{Daily: 100, Monthly: 2_000_000}, clock)

	if !tr.CanConsume(60) {
		t.Fatal("CanConsume(60) = false, want true")
	}
	if err := tr.Record(60); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if tr.CanConsume(50) {
		t.Error("CanConsume(50) = true after 60 used, want false")
	}
	if !tr.CanConsume(40) {
		t.Error("CanConsume(40) = false after 60 used, want true")
	}
}

func TestTracker_MonthlyLimit(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	tr := newTestTracker(t, Limits{Daily: 1000, Monthly: 1500}, clock)

	_ = tr.Record(900)
	clock.Set(clock.Now().Add(24 * time.Hour))

	if !tr.CanConsume(600) {
		t.Error("CanConsume(600) = false, want true (daily reset, monthly 900)")
	}
	if tr.CanConsume(601) {
		t.Error("CanConsume(601) = true, want false (monthly would exceed)")
	}
}

func TestTracker_LimitReachedEvent(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	pub := &recordingPublisher{}
	tr := newTestTracker(t, Limits{Daily: 100, Monthly: 1000}, clock, WithPublisher(pub))

	_ = tr.Record(99)
	if n := pub.count(events.QuotaLimitReached, WindowDaily); n != 0 {
		t.Fatalf("limit event before limit met: %d", n)
	}
	_ = tr.Record(1)
	if n := pub.count(events.QuotaLimitReached, WindowDaily); n != 1 {
		t.Errorf("daily limit events = %d, want 1", n)
	}
	_ = tr.Record(5)
	if n := pub.count(events.QuotaLimitReached, WindowDaily); n != 1 {
		t.Errorf("limit event repeated after crossing: %d", n)
	}
	if !tr.Usage().Exhausted() {
		t.Error("Usage().Exhausted() = false, want true")
	}
}

func TestTracker_WindowResets(t *testing.T) {
	tests := []struct {
		name        string
		advanceTo   time.Time
		wantDaily   int64
		wantMonthly int64
	}{
		{
			name:        "same day",
			advanceTo:   time.Date(2026, 3, 31, 23, 59, 0, 0, time.UTC),
			wantDaily:   50,
			wantMonthly: 50,
		},
		{
			name:        "day boundary",
			advanceTo:   time.Date(2026, 3, 31, 23, 59, 0, 0, time.UTC).Add(2 * time.Minute),
			wantDaily:   0,
			wantMonthly: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fakeClock{now: time.Date(2026, 3, 31, 8, 0, 0, 0, time.UTC)}
			tr := newTestTracker(t, DefaultLimits(), clock)
			_ = tr.Record(50)

			clock.Set(tt.advanceTo)
			u := tr.Usage()
			if u.Daily != tt.wantDaily {
				t.Errorf("Daily = %d, want %d", u.Daily, tt.wantDaily)
			}
			if u.Monthly != tt.wantMonthly {
				t.Errorf("Monthly = %d, want %d", u.Monthly, tt.wantMonthly)
			}
		})
	}
}

func TestTracker_DayBoundaryKeepsMonthly(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)}
	pub := &recordingPublisher{}
	tr := newTestTracker(t, DefaultLimits(), clock, WithPublisher(pub))
	_ = tr.Record(70)

	clock.Set(time.Date(2026, 3, 11, 0, 0, 1, 0, time.UTC))
	u := tr.Usage()
	if u.Daily != 0 {
		t.Errorf("Daily = %d, want 0", u.Daily)
	}
	if u.Monthly != 70 {
		t.Errorf("Monthly = %d, want 70", u.Monthly)
	}

	// the reset is idempotent
	tr.CheckReset()
	_ = tr.CanConsume(1)
	if n := pub.count(events.QuotaReset, WindowDaily); n != 1 {
		t.Errorf("daily reset events = %d, want 1", n)
	}
	if n := pub.count(events.QuotaReset, WindowMonthly); n != 0 {
		t.Errorf("monthly reset events = %d, want 0", n)
	}
}

func TestTracker_PersistsAndRestores(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)}
	store := &memStore{}

	tr := newTestTracker(t, DefaultLimits(), clock, WithStore(store))
	if err := tr.Record(1234); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if store.saves != 1 {
		t.Errorf("saves = %d, want 1", store.saves)
	}

	restored := newTestTracker(t, DefaultLimits(), clock, WithStore(store))
	if got := restored.Usage().Daily; got != 1234 {
		t.Errorf("restored Daily = %d, want 1234", got)
	}
}

func TestTracker_LoadError(t *testing.T) {
	store := &memStore{loadErr: errors.New("disk on fire")}
	_, err := NewTracker(context.Background(), DefaultLimits(), WithStore(store))
	if err == nil {
		t.Fatal("expected load error")
	}
}

func TestTracker_InvalidLimits(t *testing.T) {
	_, err := NewTracker(context.Background(), Limits{Daily: 0, Monthly: 10})
	if !errors.Is(err, ErrInvalidLimits) {
		t.Errorf("err = %v, want ErrInvalidLimits", err)
	}
}

func TestTracker_ResetSchedule(t *testing.T) {
	tr := newTestTracker(t, DefaultLimits(), &fakeClock{now: time.Now()})

	if err := tr.StartResetSchedule("not a schedule"); err == nil {
		t.Error("expected error for invalid schedule")
	}
	if err := tr.StartResetSchedule(""); err != nil {
		t.Fatalf("StartResetSchedule failed: %v", err)
	}
	// second start is a no-op
	if err := tr.StartResetSchedule(""); err != nil {
		t.Fatalf("second StartResetSchedule failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := tr.Stop(ctx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}

func TestUsage_Remaining(t *testing.T) {
	u := Usage{
		Counters: Counters{Daily: 120, Monthly: 500},
		Limits:   Limits{Daily: 100, Monthly: 1000},
	}
	if got := u.DailyRemaining(); got != 0 {
		t.Errorf("DailyRemaining = %d, want 0", got)
	}
	if got := u.MonthlyRemaining(); got != 500 {
		t.Errorf("MonthlyRemaining = %d, want 500", got)
	}
}
