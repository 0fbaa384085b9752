package controller

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/sstrand/matchpoint/internal/event"
	"github.com/sstrand/matchpoint/internal/projection"
	"github.com/sstrand/matchpoint/internal/serving"
	"github.com/sstrand/matchpoint/internal/store"
	"github.com/sstrand/matchpoint/internal/syncproto"
	"github.com/sstrand/matchpoint/internal/undo"
)

// SnapshotListener receives the projected state after every successful
// mutation. Called from the owner goroutine; implementations must not
// block (hand off to their own goroutine for slow delivery).
type SnapshotListener func(projection.State)

// Controller is the authoritative per-device match orchestrator.
//
// All mutations of the event log and the live state happen on the
// single-writer Run loop goroutine; public methods enqueue work and
// block for the result. Inbound remote commands go through the same
// queue, so no two commands are ever processed concurrently and
// sequence numbers cannot race.
//
// A failed append never advances in-memory state: the live state is
// only folded forward after the store accepts the event.
//
// The controller additionally owns transient session state that is not
// replayable from the log: the wall-clock start of the current game and
// the id of an outstanding pending highlight.
type Controller struct {
	store *store.Store
	undo  *undo.Service
	ids   event.IDGenerator
	now   func() time.Time
	rng   *rand.Rand

	queue *taskQueue

	// Owner-goroutine state. Never touched off the Run loop.
	state              projection.State
	match              *store.Match
	pendingHighlightID string
	gameStartedAt      time.Time

	listeners []SnapshotListener
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock overrides the wall-clock source (tests).
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithRand overrides the randomness source used for the initial-server
// coin toss (tests).
func WithRand(rng *rand.Rand) Option {
	return func(c *Controller) { c.rng = rng }
}

// New creates a controller over the given store. Call Restore before
// Run to rebuild state from a previous session, then Run on exactly one
// goroutine.
func New(st *store.Store, ids event.IDGenerator, opts ...Option) *Controller {
	c := &Controller{
		store: st,
		ids:   ids,
		now:   time.Now,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		queue: newTaskQueue(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.undo = undo.New(st, ids, c.now)
	return c
}

// OnSnapshot registers a listener for post-mutation snapshots.
// Must be called before Run starts.
func (c *Controller) OnSnapshot(fn SnapshotListener) {
	c.listeners = append(c.listeners, fn)
}

// Restore rebuilds in-memory state from storage: completed-match
// history always, plus a full replay of the active match's log if one
// exists. Safe to call only before Run.
func (c *Controller) Restore(ctx context.Context) error {
	history, err := c.loadHistory(ctx)
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	c.state = projection.State{History: history}

	active, err := c.store.ActiveMatch(ctx)
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	if active == nil {
		return nil
	}

	events, err := c.store.Events(ctx, active.ID, false)
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}

	c.match = active
	c.state = projection.Project(events, history)
	c.pendingHighlightID = pendingID(c.state)
	c.gameStartedAt = c.now()

	slog.Info("restored active match",
		"match", active.ID,
		"events", len(events),
		"game", c.state.CurrentGameNumber(),
	)
	return nil
}

// Run starts the single-writer loop. Blocks until ctx is cancelled or
// Stop is called. Must be called from exactly one goroutine.
func (c *Controller) Run(ctx context.Context) error {
	slog.Info("controller starting")

	for {
		t, ok := c.queue.TryDequeue()
		if ok {
			t.reply <- t.fn(ctx)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("controller stopping: context cancelled")
			c.queue.Close()
			c.queue.drain()
			return ctx.Err()

		case <-c.queue.Wait():
			if c.queue.Len() == 0 {
				if !c.queue.Closed() {
					// Stale wakeup: the token was left by an enqueue
					// whose task was already dequeued mid-execution.
					continue
				}
				slog.Info("controller stopping: queue closed")
				c.queue.Close()
				c.queue.drain()
				return nil
			}
		}
	}
}

// Stop gracefully shuts down the Run loop.
func (c *Controller) Stop() {
	c.queue.Close()
}

// do serializes fn onto the owner goroutine and waits for its result.
func (c *Controller) do(fn func(ctx context.Context) error) error {
	t := &task{fn: fn, reply: make(chan error, 1)}
	if !c.queue.Enqueue(t) {
		return ErrStopped
	}
	return <-t.reply
}

// Snapshot returns a copy of the current projected state.
func (c *Controller) Snapshot() (projection.State, error) {
	var snap projection.State
	err := c.do(func(context.Context) error {
		snap = c.state
		return nil
	})
	return snap, err
}

// StartMatch creates a new active match and appends MatchStarted with
// the persisted initial server. Fails with ErrMatchActive while another
// match is live.
func (c *Controller) StartMatch(name, playerOne, playerTwo string) error {
	return c.do(func(ctx context.Context) error {
		if c.match != nil {
			return ErrMatchActive
		}

		now := c.now()
		m := store.Match{
			ID:        c.ids.NewID(),
			Name:      name,
			PlayerOne: playerOne,
			PlayerTwo: playerTwo,
			StartedAt: now,
			IsActive:  true,
		}
		if err := c.store.CreateMatch(ctx, m); err != nil {
			return err
		}

		first := serving.InitialServer(outcomes(c.state.History), c.rng)
		ev := event.Event{
			ID:        c.ids.NewID(),
			MatchID:   m.ID,
			Seq:       0,
			Type:      event.TypeMatchStarted,
			Timestamp: now,
			Payload: event.MatchStarted{
				PlayerOne:     event.CanonicalName(playerOne),
				PlayerTwo:     event.CanonicalName(playerTwo),
				InitialServer: first,
			},
		}
		if err := c.store.AppendEvent(ctx, ev); err != nil {
			return err
		}

		c.match = &m
		c.state.Apply(ev)
		c.pendingHighlightID = ""
		c.gameStartedAt = now
		c.publish()

		slog.Info("match started", "match", m.ID, "first_server", first)
		return nil
	})
}

// ScorePoint records a rally won by the given player. If a highlight is
// pending, the point attributes it: the controller enforces that a mark
// never survives past the next point unattributed.
func (c *Controller) ScorePoint(player event.Player) error {
	if !player.Valid() {
		return fmt.Errorf("invalid player %d", player)
	}
	return c.do(func(ctx context.Context) error {
		if c.match == nil {
			return ErrNoActiveMatch
		}

		now := c.now()
		ev, err := c.append(ctx, event.PointScored{
			Player:         player,
			GameNumber:     c.state.CurrentGameNumber(),
			VideoTimestamp: c.elapsed(now),
		}, now)
		if err != nil {
			return err
		}
		c.state.Apply(ev)

		if c.pendingHighlightID != "" {
			attr, err := c.append(ctx, event.HighlightAttributed{
				HighlightEventID: c.pendingHighlightID,
				Player:           player,
			}, now)
			if err != nil {
				return err
			}
			c.state.Apply(attr)
			c.pendingHighlightID = ""
		}

		c.publish()
		return nil
	})
}

// MarkHighlight flags the current moment for clipping. Refused while
// not recording or while a prior mark awaits attribution.
func (c *Controller) MarkHighlight() error {
	return c.do(func(ctx context.Context) error {
		if c.match == nil {
			return ErrNoActiveMatch
		}
		if !c.state.IsRecording {
			return ErrNotRecording
		}
		if c.pendingHighlightID != "" || c.state.PendingHighlight != nil {
			return ErrHighlightPending
		}

		now := c.now()
		ev, err := c.append(ctx, event.HighlightMarked{
			VideoTimestamp: c.elapsed(now),
		}, now)
		if err != nil {
			return err
		}
		c.state.Apply(ev)
		c.pendingHighlightID = ev.ID

		c.publish()
		return nil
	})
}

// EndGame finalizes the current game: winner from current scores,
// duration since the game started, first server rotated for the next
// game, point scores reset.
func (c *Controller) EndGame() error {
	return c.do(func(ctx context.Context) error {
		if err := c.endGame(ctx); err != nil {
			return err
		}
		c.publish()
		return nil
	})
}

func (c *Controller) endGame(ctx context.Context) error {
	if c.match == nil {
		return ErrNoActiveMatch
	}
	if len(c.state.CurrentGamePoints) == 0 {
		return ErrNoPointsInGame
	}

	winner := c.state.Leader()
	if winner == event.PlayerNone {
		return ErrGameTied
	}

	now := c.now()
	ev, err := c.append(ctx, event.GameEnded{
		GameNumber:     c.state.CurrentGameNumber(),
		PlayerOneScore: c.state.PlayerOneScore,
		PlayerTwoScore: c.state.PlayerTwoScore,
		Winner:         winner,
		Duration:       now.Sub(c.gameStartedAt).Seconds(),
		FirstServer:    c.state.CurrentGameFirstServer,
	}, now)
	if err != nil {
		return err
	}
	c.state.Apply(ev)
	c.gameStartedAt = now

	c.match.PlayerOneGames = c.state.PlayerOneGames
	c.match.PlayerTwoGames = c.state.PlayerTwoGames
	if err := c.store.UpdateMatch(ctx, *c.match); err != nil {
		return err
	}

	slog.Info("game ended",
		"match", c.match.ID,
		"winner", winner,
		"games", fmt.Sprintf("%d-%d", c.state.PlayerOneGames, c.state.PlayerTwoGames),
	)
	return nil
}

// EndMatch closes the active match. An unfinished game with points on
// the board is force-ended first (a tied partial game is dropped).
// The result is archived into history and match-scoped state resets.
func (c *Controller) EndMatch() error {
	return c.do(func(ctx context.Context) error {
		if c.match == nil {
			return ErrNoActiveMatch
		}

		if len(c.state.CurrentGamePoints) > 0 && c.state.Leader() != event.PlayerNone {
			if err := c.endGame(ctx); err != nil {
				return err
			}
		}

		winner := event.PlayerNone
		switch {
		case c.state.PlayerOneGames > c.state.PlayerTwoGames:
			winner = event.PlayerOne
		case c.state.PlayerTwoGames > c.state.PlayerOneGames:
			winner = event.PlayerTwo
		}

		now := c.now()
		ev, err := c.append(ctx, event.MatchEnded{
			Winner:         winner,
			PlayerOneGames: c.state.PlayerOneGames,
			PlayerTwoGames: c.state.PlayerTwoGames,
		}, now)
		if err != nil {
			return err
		}
		c.state.Apply(ev)

		m := *c.match
		m.IsActive = false
		m.EndedAt = &now
		m.Winner = winner
		m.PlayerOneGames = c.state.PlayerOneGames
		m.PlayerTwoGames = c.state.PlayerTwoGames
		if err := c.store.UpdateMatch(ctx, m); err != nil {
			return err
		}

		result := projection.MatchResult{
			MatchID:        m.ID,
			Name:           m.Name,
			PlayerOne:      c.state.PlayerOneName,
			PlayerTwo:      c.state.PlayerTwoName,
			PlayerOneGames: c.state.PlayerOneGames,
			PlayerTwoGames: c.state.PlayerTwoGames,
			Winner:         winner,
			EndedAt:        now,
		}
		history := append(c.state.History, result)

		c.match = nil
		c.pendingHighlightID = ""
		c.state = projection.State{History: history}
		c.publish()

		slog.Info("match ended", "match", m.ID, "winner", winner)
		return nil
	})
}

// CancelMatch aborts the active match: the match row and every one of
// its events are deleted. Nothing is archived.
func (c *Controller) CancelMatch() error {
	return c.do(func(ctx context.Context) error {
		if c.match == nil {
			return ErrNoActiveMatch
		}

		id := c.match.ID
		if err := c.store.DeleteMatch(ctx, id); err != nil {
			return err
		}

		history := c.state.History
		c.match = nil
		c.pendingHighlightID = ""
		c.state = projection.State{History: history}
		c.publish()

		slog.Info("match cancelled", "match", id)
		return nil
	})
}

// UndoLastPoint reverses the most recent point of the current game via
// the undo service, then rebuilds state by full replay.
func (c *Controller) UndoLastPoint() error {
	return c.do(func(ctx context.Context) error {
		if c.match == nil {
			return ErrNoActiveMatch
		}
		if _, err := c.undo.UndoLastPoint(ctx, c.match.ID); err != nil {
			return err
		}
		return c.replay(ctx)
	})
}

// UndoLastHighlight reverses the most recent highlight mark of the
// current game.
func (c *Controller) UndoLastHighlight() error {
	return c.do(func(ctx context.Context) error {
		if c.match == nil {
			return ErrNoActiveMatch
		}
		if _, err := c.undo.UndoLastHighlight(ctx, c.match.ID); err != nil {
			return err
		}
		return c.replay(ctx)
	})
}

// CanUndo reports whether a point undo is currently possible.
func (c *Controller) CanUndo() (bool, error) {
	var can bool
	err := c.do(func(ctx context.Context) error {
		if c.match == nil {
			return nil
		}
		var err error
		can, err = c.undo.CanUndo(ctx, c.match.ID)
		return err
	})
	return can, err
}

// HandleRemote applies a command from the secondary device. Commands in
// an invalid context are no-ops from the peer's perspective: the error
// is logged here and swallowed, per the protocol the watch recovers
// from the next snapshot or its timeout.
func (c *Controller) HandleRemote(cmd syncproto.Command) error {
	var err error
	switch cmd {
	case syncproto.CmdIncrementP1:
		err = c.ScorePoint(event.PlayerOne)
	case syncproto.CmdIncrementP2:
		err = c.ScorePoint(event.PlayerTwo)
	case syncproto.CmdHighlight:
		err = c.MarkHighlight()
	case syncproto.CmdEndGame:
		err = c.EndGame()
	case syncproto.CmdEndMatch:
		err = c.EndMatch()
	case syncproto.CmdRequestSync:
		err = c.do(func(context.Context) error {
			c.publish()
			return nil
		})
	default:
		slog.Warn("ignoring unknown remote command", "command", string(cmd))
		return nil
	}

	if err != nil {
		slog.Warn("remote command rejected", "command", string(cmd), "error", err)
	}
	return err
}

// append reserves the next sequence number, persists the event, and
// returns it. The caller folds it into state only after success.
func (c *Controller) append(ctx context.Context, p event.Payload, now time.Time) (event.Event, error) {
	seq, err := c.store.NextSeq(ctx, c.match.ID)
	if err != nil {
		return event.Event{}, err
	}

	ev := event.Event{
		ID:        c.ids.NewID(),
		MatchID:   c.match.ID,
		Seq:       seq,
		Type:      p.EventType(),
		Timestamp: now,
		Payload:   p,
	}
	if err := c.store.AppendEvent(ctx, ev); err != nil {
		return event.Event{}, err
	}
	return ev, nil
}

// replay rebuilds the live state from the full log. Used after undo,
// where the incremental path cannot apply.
func (c *Controller) replay(ctx context.Context) error {
	events, err := c.store.Events(ctx, c.match.ID, false)
	if err != nil {
		return err
	}
	c.state = projection.Project(events, c.state.History)
	c.pendingHighlightID = pendingID(c.state)
	c.publish()
	return nil
}

// publish hands the post-mutation state to every listener.
func (c *Controller) publish() {
	for _, fn := range c.listeners {
		fn(c.state)
	}
}

// elapsed returns seconds of recording time at now.
func (c *Controller) elapsed(now time.Time) float64 {
	if c.state.RecordingStartedAt.IsZero() {
		return 0
	}
	return now.Sub(c.state.RecordingStartedAt).Seconds()
}

func (c *Controller) loadHistory(ctx context.Context) ([]projection.MatchResult, error) {
	matches, err := c.store.Matches(ctx)
	if err != nil {
		return nil, err
	}

	// Matches lists newest first; history reads oldest first.
	var history []projection.MatchResult
	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		if m.IsActive || m.EndedAt == nil {
			continue
		}
		history = append(history, projection.MatchResult{
			MatchID:        m.ID,
			Name:           m.Name,
			PlayerOne:      m.PlayerOne,
			PlayerTwo:      m.PlayerTwo,
			PlayerOneGames: m.PlayerOneGames,
			PlayerTwoGames: m.PlayerTwoGames,
			Winner:         m.Winner,
			EndedAt:        *m.EndedAt,
		})
	}
	return history, nil
}

func outcomes(history []projection.MatchResult) []serving.MatchOutcome {
	out := make([]serving.MatchOutcome, 0, len(history))
	for _, r := range history {
		if r.Winner.Valid() {
			out = append(out, serving.MatchOutcome{Winner: r.Winner})
		}
	}
	return out
}

func pendingID(s projection.State) string {
	if s.PendingHighlight == nil {
		return ""
	}
	return s.PendingHighlight.ID
}
