// Package scheduler owns the wall-clock timers behind a match's
// deposit and round deadlines. Exactly one timer exists per slot; the
// slot is re-armed (cancelling the previous timer first) whenever the
// deadline it tracks changes, and a fire against a stale deadline is
// swallowed here before it ever reaches the match.
package scheduler

import (
	"sync"
	"time"

	"nftflip/internal/domain"
)

// Slot names a deadline the scheduler tracks.
type Slot string

const (
	SlotDeposit Slot = "deposit"
	SlotChoice  Slot = "choice"
	SlotCharge  Slot = "charge"
)

type timer interface {
	Stop() bool
}

type Scheduler struct {
	mu        sync.Mutex
	timers    map[Slot]timer
	deadlines map[Slot]time.Time

	fire     func(Slot)
	now      func() time.Time
	newTimer func(d time.Duration, f func()) timer
}

// Option customizes a Scheduler, used by tests to inject a virtual
// clock and hand-fired timers.
type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func WithTimerFactory(f func(d time.Duration, fn func()) timer) Option {
	return func(s *Scheduler) { s.newTimer = f }
}

// New returns a scheduler that calls fire(slot) when an armed deadline
// elapses. fire runs on a timer goroutine; the caller is expected to
// funnel it back into the match's single-writer loop.
func New(fire func(Slot), opts ...Option) *Scheduler {
	s := &Scheduler{
		timers:    make(map[Slot]timer),
		deadlines: make(map[Slot]time.Time),
		fire:      fire,
		now:       time.Now,
		newTimer: func(d time.Duration, fn func()) timer {
			return time.AfterFunc(d, fn)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync diffs the match's current deadlines against the armed slots:
// changed deadlines re-arm, vanished deadlines cancel, terminal phases
// cancel everything. Call it after every applied action.
func (s *Scheduler) Sync(m *domain.Match) {
	if m.Terminal() {
		s.CancelAll()
		return
	}

	s.reconcile(SlotDeposit, depositDeadline(m))
	s.reconcile(SlotChoice, roundDeadline(m, domain.RoundChoosing))
	s.reconcile(SlotCharge, roundDeadline(m, domain.RoundCharging))
}

// Remaining reports whole seconds until the slot's deadline, clamped at
// zero. This is the single source of truth for "seconds remaining":
// clients only ever render it, never count down themselves.
func (s *Scheduler) Remaining(slot Slot) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deadline, ok := s.deadlines[slot]
	if !ok {
		return 0, false
	}
	left := int(deadline.Sub(s.now()).Seconds())
	if left < 0 {
		left = 0
	}
	return left, true
}

// CancelAll stops every armed timer. Used on terminal phases so no
// scheduled work leaks past the end of a match.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for slot := range s.timers {
		s.cancelLocked(slot)
	}
}

func (s *Scheduler) reconcile(slot Slot, deadline *time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	armed, ok := s.deadlines[slot]
	if deadline == nil {
		if ok {
			s.cancelLocked(slot)
		}
		return
	}
	if ok && armed.Equal(*deadline) {
		return
	}

	// cancel before arming: one timer per slot, always
	s.cancelLocked(slot)
	at := *deadline
	s.deadlines[slot] = at
	s.timers[slot] = s.newTimer(at.Sub(s.now()), func() {
		s.fired(slot, at)
	})
}

func (s *Scheduler) fired(slot Slot, at time.Time) {
	s.mu.Lock()
	armed, ok := s.deadlines[slot]
	if !ok || !armed.Equal(at) {
		// slot was re-armed or cancelled after this timer was set
		s.mu.Unlock()
		return
	}
	delete(s.timers, slot)
	delete(s.deadlines, slot)
	s.mu.Unlock()

	s.fire(slot)
}

func (s *Scheduler) cancelLocked(slot Slot) {
	if t, ok := s.timers[slot]; ok {
		t.Stop()
		delete(s.timers, slot)
	}
	delete(s.deadlines, slot)
}

func depositDeadline(m *domain.Match) *time.Time {
	if m.Phase == domain.PhaseAwaitingDeposit {
		return m.DepositDeadline
	}
	return nil
}

func roundDeadline(m *domain.Match, phase domain.RoundPhase) *time.Time {
	if m.Phase == domain.PhaseActive && m.Round.Phase == phase {
		return m.Round.Deadline
	}
	return nil
}
