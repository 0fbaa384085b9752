package syncproto

import (
	"errors"
	"sync"
	"time"
)

// DefaultTimeout bounds how long a pending action waits for confirmation
// before the lock clears on its own, so the remote UI never sticks.
const DefaultTimeout = 2 * time.Second

// ErrActionInFlight is returned when a command is issued while another
// is still awaiting confirmation. The second command is rejected
// outright, never queued.
var ErrActionInFlight = errors.New("another action is awaiting confirmation")

// ActionType classifies an optimistic remote action.
type ActionType string

const (
	ActionScoreP1   ActionType = "p1Score"
	ActionScoreP2   ActionType = "p2Score"
	ActionHighlight ActionType = "highlight"
)

// Action maps a command to its optimistic action type. Commands without
// local optimistic feedback (endGame, endMatch, requestSync) return
// ok=false and take no pending-action slot.
func (c Command) Action() (ActionType, bool) {
	switch c {
	case CmdIncrementP1:
		return ActionScoreP1, true
	case CmdIncrementP2:
		return ActionScoreP2, true
	case CmdHighlight:
		return ActionHighlight, true
	}
	return "", false
}

// PendingAction is the single optimistic lock slot on the secondary
// device: it exists from command issue until confirmation or timeout.
type PendingAction struct {
	Type     ActionType
	IssuedAt time.Time

	// baseline is the relevant counter value when the action was
	// issued; a snapshot showing a strictly greater value confirms it.
	baseline int
}

// ClearReason says why the pending-action lock was released.
type ClearReason string

const (
	ClearConfirmed ClearReason = "confirmed"
	ClearTimeout   ClearReason = "timeout"
)

// Session is one device's half of the sync state machine.
//
// The authoritative device (phone) applies actions locally and
// synchronously; Begin is a no-op for it. The secondary device (watch)
// holds at most one PendingAction at a time, cleared by a confirming
// snapshot, an explicit confirmation, or the timeout.
//
// Every observed snapshot replaces the cached state wholesale - last
// snapshot wins, regardless of pending-action state. Duplicate delivery
// is therefore idempotent.
//
// Thread-safety: all methods are safe for concurrent use; the timeout
// fires on a timer goroutine.
type Session struct {
	mu            sync.Mutex
	authoritative bool
	timeout       time.Duration
	now           func() time.Time

	pending *PendingAction
	timer   *time.Timer
	gen     uint64 // invalidates stale timer firings

	cached  *Snapshot
	onClear func(ClearReason)
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithTimeout overrides the pending-action timeout. Tests use short
// values; production keeps DefaultTimeout.
func WithTimeout(d time.Duration) SessionOption {
	return func(s *Session) { s.timeout = d }
}

// WithClock overrides the wall-clock source for IssuedAt stamps.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

// WithClearHook registers a callback invoked (outside the lock) when
// the pending action clears. Used by the watch UI to release its
// optimistic indicator.
func WithClearHook(fn func(ClearReason)) SessionOption {
	return func(s *Session) { s.onClear = fn }
}

// NewSession creates a protocol session for one device.
func NewSession(authoritative bool, opts ...SessionOption) *Session {
	s := &Session{
		authoritative: authoritative,
		timeout:       DefaultTimeout,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authoritative reports whether this device owns the event log.
func (s *Session) Authoritative() bool { return s.authoritative }

// Begin claims the pending-action slot for a command about to be sent.
// Returns ErrActionInFlight if another action is still outstanding.
// Authoritative devices apply actions locally and never hold the slot.
//
// Issuing a new action replaces the prior timer; only one timer is ever
// live.
func (s *Session) Begin(a ActionType) error {
	if s.authoritative {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending != nil {
		return ErrActionInFlight
	}

	s.pending = &PendingAction{
		Type:     a,
		IssuedAt: s.now(),
		baseline: s.relevantCounterLocked(a),
	}

	s.gen++
	gen := s.gen
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.timeout, func() { s.expire(gen) })

	return nil
}

// ObserveSnapshot applies an inbound snapshot: the cached state is
// replaced wholesale, then the pending action is reconciled against it.
// The action clears when its relevant counter strictly increased versus
// the value cached at issue time.
func (s *Session) ObserveSnapshot(snap Snapshot) {
	s.mu.Lock()
	s.cached = &snap

	var cleared bool
	if s.pending != nil &&
		counterFor(s.pending.Type, &snap) > s.pending.baseline {
		s.clearLocked()
		cleared = true
	}
	hook := s.onClear
	s.mu.Unlock()

	if cleared && hook != nil {
		hook(ClearConfirmed)
	}
}

// ObserveConfirmation applies the highlight fast-path confirmation.
// It clears a pending highlight action and folds the new count into the
// cached snapshot when one exists.
func (s *Session) ObserveConfirmation(highlightCount int) {
	s.mu.Lock()
	if s.cached != nil {
		s.cached.HighlightCount = highlightCount
	}

	var cleared bool
	if s.pending != nil && s.pending.Type == ActionHighlight {
		s.clearLocked()
		cleared = true
	}
	hook := s.onClear
	s.mu.Unlock()

	if cleared && hook != nil {
		hook(ClearConfirmed)
	}
}

// Pending returns a copy of the outstanding action, or nil when idle.
func (s *Session) Pending() *PendingAction {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return nil
	}
	p := *s.pending
	return &p
}

// Idle reports whether no action is awaiting confirmation.
func (s *Session) Idle() bool {
	return s.Pending() == nil
}

// Cached returns a copy of the last observed snapshot, or nil before
// the first one arrives.
func (s *Session) Cached() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached == nil {
		return nil
	}
	snap := *s.cached
	return &snap
}

// expire is the timer callback. The generation check makes a stale
// firing (after the action already cleared or a new one started) a
// no-op, so firing is idempotent.
func (s *Session) expire(gen uint64) {
	s.mu.Lock()
	if s.gen != gen || s.pending == nil {
		s.mu.Unlock()
		return
	}
	s.clearLocked()
	hook := s.onClear
	s.mu.Unlock()

	if hook != nil {
		hook(ClearTimeout)
	}
}

// clearLocked releases the slot. Clearing an already-clear slot is a
// no-op. Caller holds s.mu.
func (s *Session) clearLocked() {
	s.pending = nil
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) relevantCounterLocked(a ActionType) int {
	if s.cached == nil {
		return 0
	}
	return counterFor(a, s.cached)
}

func counterFor(a ActionType, snap *Snapshot) int {
	switch a {
	case ActionScoreP1:
		return snap.PlayerOneScore
	case ActionScoreP2:
		return snap.PlayerTwoScore
	case ActionHighlight:
		return snap.HighlightCount
	default:
		return 0
	}
}
