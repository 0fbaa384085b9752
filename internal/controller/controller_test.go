package controller

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sstrand/matchpoint/internal/event"
	"github.com/sstrand/matchpoint/internal/projection"
	"github.com/sstrand/matchpoint/internal/store"
	"github.com/sstrand/matchpoint/internal/syncproto"
	"github.com/sstrand/matchpoint/internal/undo"
)

var testTime = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// zeroSource pins the initial-server toss to player one.
type zeroSource struct{}

func (zeroSource) Int63() int64 { return 0 }
func (zeroSource) Seed(int64)   {}

func newTestController(t *testing.T) (*Controller, *store.Store) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "ctrl.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	c := New(st, event.NewFixedGenerator(),
		WithClock(func() time.Time { return testTime }),
		WithRand(rand.New(zeroSource{})),
	)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, c.Restore(ctx))
	go func() { _ = c.Run(ctx) }()

	return c, st
}

func startMatch(t *testing.T, c *Controller) {
	t.Helper()
	require.NoError(t, c.StartMatch("test match", "Anna", "Bjorn"))
}

func snapshot(t *testing.T, c *Controller) projection.State {
	t.Helper()
	s, err := c.Snapshot()
	require.NoError(t, err)
	return s
}

func TestStartMatch(t *testing.T) {
	c, st := newTestController(t)
	startMatch(t, c)

	s := snapshot(t, c)
	assert.Equal(t, "Anna", s.PlayerOneName)
	assert.True(t, s.IsRecording)
	assert.Equal(t, event.PlayerOne, s.ServingPlayer)

	m, err := st.ActiveMatch(context.Background())
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "test match", m.Name)

	events, err := st.Events(context.Background(), m.ID, false)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, event.TypeMatchStarted, events[0].Type)
	assert.EqualValues(t, 0, events[0].Seq)
}

func TestStartMatchWhileActive(t *testing.T) {
	c, _ := newTestController(t)
	startMatch(t, c)

	err := c.StartMatch("second", "C", "D")
	assert.ErrorIs(t, err, ErrMatchActive)
}

func TestScorePoint(t *testing.T) {
	c, _ := newTestController(t)
	startMatch(t, c)

	require.NoError(t, c.ScorePoint(event.PlayerOne))
	require.NoError(t, c.ScorePoint(event.PlayerOne))
	require.NoError(t, c.ScorePoint(event.PlayerTwo))

	s := snapshot(t, c)
	assert.Equal(t, 2, s.PlayerOneScore)
	assert.Equal(t, 1, s.PlayerTwoScore)
	assert.Equal(t, event.PlayerTwo, s.ServingPlayer)
}

func TestScorePointNoMatch(t *testing.T) {
	c, _ := newTestController(t)

	err := c.ScorePoint(event.PlayerOne)
	assert.ErrorIs(t, err, ErrNoActiveMatch)
}

func TestScorePointInvalidPlayer(t *testing.T) {
	c, _ := newTestController(t)
	startMatch(t, c)

	assert.Error(t, c.ScorePoint(event.PlayerNone))
}

func TestMarkHighlightAttributedByNextPoint(t *testing.T) {
	c, _ := newTestController(t)
	startMatch(t, c)

	require.NoError(t, c.ScorePoint(event.PlayerOne))
	require.NoError(t, c.MarkHighlight())

	s := snapshot(t, c)
	require.NotNil(t, s.PendingHighlight)
	assert.Nil(t, s.PendingHighlight.Player)

	require.NoError(t, c.ScorePoint(event.PlayerTwo))

	s = snapshot(t, c)
	assert.Nil(t, s.PendingHighlight)
	require.Len(t, s.HighlightClips, 1)
	assert.Equal(t, event.PlayerTwo, s.HighlightClips[0].Player)
}

func TestMarkHighlightSecondMarkRejected(t *testing.T) {
	c, _ := newTestController(t)
	startMatch(t, c)

	require.NoError(t, c.MarkHighlight())
	assert.ErrorIs(t, c.MarkHighlight(), ErrHighlightPending)
}

func TestMarkHighlightNoMatch(t *testing.T) {
	c, _ := newTestController(t)
	assert.ErrorIs(t, c.MarkHighlight(), ErrNoActiveMatch)
}

func TestEndGame(t *testing.T) {
	c, _ := newTestController(t)
	startMatch(t, c)

	require.NoError(t, c.ScorePoint(event.PlayerOne))
	require.NoError(t, c.ScorePoint(event.PlayerOne))
	require.NoError(t, c.EndGame())

	s := snapshot(t, c)
	assert.Equal(t, 1, s.PlayerOneGames)
	assert.Equal(t, 0, s.PlayerOneScore)
	require.Len(t, s.CompletedGames, 1)
	assert.Equal(t, event.PlayerOne, s.CompletedGames[0].Winner)
	// First server alternates into game two.
	assert.Equal(t, event.PlayerTwo, s.ServingPlayer)
}

func TestEndGameNoPoints(t *testing.T) {
	c, _ := newTestController(t)
	startMatch(t, c)

	assert.ErrorIs(t, c.EndGame(), ErrNoPointsInGame)
}

func TestEndGameTied(t *testing.T) {
	c, _ := newTestController(t)
	startMatch(t, c)

	require.NoError(t, c.ScorePoint(event.PlayerOne))
	require.NoError(t, c.ScorePoint(event.PlayerTwo))

	assert.ErrorIs(t, c.EndGame(), ErrGameTied)
}

func TestEndMatch(t *testing.T) {
	c, st := newTestController(t)
	startMatch(t, c)

	require.NoError(t, c.ScorePoint(event.PlayerOne))
	require.NoError(t, c.ScorePoint(event.PlayerOne))
	require.NoError(t, c.EndGame())
	require.NoError(t, c.ScorePoint(event.PlayerTwo))
	require.NoError(t, c.EndMatch())

	s := snapshot(t, c)
	assert.False(t, s.IsRecording)
	assert.Empty(t, s.MatchID)
	require.Len(t, s.History, 1)
	// The partial second game had a leader, so it was force-ended.
	assert.Equal(t, 1, s.History[0].PlayerOneGames)
	assert.Equal(t, 1, s.History[0].PlayerTwoGames)
	assert.Equal(t, event.PlayerNone, s.History[0].Winner)

	m, err := st.ActiveMatch(context.Background())
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestEndMatchNextStartsWithLoserServing(t *testing.T) {
	c, _ := newTestController(t)
	startMatch(t, c)

	require.NoError(t, c.ScorePoint(event.PlayerOne))
	require.NoError(t, c.EndGame())
	require.NoError(t, c.EndMatch())

	// Anna won; the next match opens with Bjorn serving.
	startMatch(t, c)
	s := snapshot(t, c)
	assert.Equal(t, event.PlayerTwo, s.ServingPlayer)
}

func TestCancelMatchLeavesNoTrace(t *testing.T) {
	c, st := newTestController(t)
	startMatch(t, c)
	require.NoError(t, c.ScorePoint(event.PlayerOne))

	require.NoError(t, c.CancelMatch())

	s := snapshot(t, c)
	assert.Empty(t, s.MatchID)
	assert.Empty(t, s.History)

	matches, err := st.Matches(context.Background())
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestUndoLastPointFullReplay(t *testing.T) {
	c, st := newTestController(t)
	startMatch(t, c)

	require.NoError(t, c.ScorePoint(event.PlayerOne))
	require.NoError(t, c.ScorePoint(event.PlayerTwo))
	require.NoError(t, c.UndoLastPoint())

	s := snapshot(t, c)
	assert.Equal(t, 1, s.PlayerOneScore)
	assert.Equal(t, 0, s.PlayerTwoScore)
	assert.Equal(t, event.PlayerOne, s.ServingPlayer)

	// Append-only: the log kept the undone point plus a compensation.
	all, err := st.Events(context.Background(), s.MatchID, true)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestUndoLastPointNothingScored(t *testing.T) {
	c, _ := newTestController(t)
	startMatch(t, c)

	assert.ErrorIs(t, c.UndoLastPoint(), undo.ErrNothingToUndo)
}

func TestUndoPointKeepsAttributedHighlight(t *testing.T) {
	c, _ := newTestController(t)
	startMatch(t, c)

	require.NoError(t, c.MarkHighlight())
	require.NoError(t, c.ScorePoint(event.PlayerOne))

	// The attribution event is its own log entry: undoing the point
	// that triggered it does not unwind the clip on replay.
	require.NoError(t, c.UndoLastPoint())

	s := snapshot(t, c)
	assert.Equal(t, 0, s.PlayerOneScore)
	require.Len(t, s.HighlightClips, 1)
	assert.Equal(t, event.PlayerOne, s.HighlightClips[0].Player)
	assert.Nil(t, s.PendingHighlight)

	// No stale pending id: the next point attributes nothing.
	require.NoError(t, c.ScorePoint(event.PlayerTwo))
	s = snapshot(t, c)
	require.Len(t, s.HighlightClips, 1)
}

func TestCanUndo(t *testing.T) {
	c, _ := newTestController(t)

	can, err := c.CanUndo()
	require.NoError(t, err)
	assert.False(t, can)

	startMatch(t, c)
	require.NoError(t, c.ScorePoint(event.PlayerOne))

	can, err = c.CanUndo()
	require.NoError(t, err)
	assert.True(t, can)
}

func TestRestoreReplaysActiveMatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ctrl.db")

	st, err := store.Open(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	c := New(st, event.NewFixedGenerator(),
		WithClock(func() time.Time { return testTime }),
		WithRand(rand.New(zeroSource{})),
	)
	require.NoError(t, c.Restore(ctx))
	go func() { _ = c.Run(ctx) }()

	startMatch(t, c)
	require.NoError(t, c.ScorePoint(event.PlayerOne))
	require.NoError(t, c.ScorePoint(event.PlayerOne))
	require.NoError(t, c.MarkHighlight())

	cancel()
	require.NoError(t, st.Close())

	// Reopen: a fresh controller rebuilds the same projected state.
	st2, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st2.Close() })

	ctx2, cancel2 := context.WithCancel(context.Background())
	t.Cleanup(cancel2)
	c2 := New(st2, event.NewFixedGenerator(),
		WithClock(func() time.Time { return testTime }),
	)
	require.NoError(t, c2.Restore(ctx2))
	go func() { _ = c2.Run(ctx2) }()

	s := snapshot(t, c2)
	assert.Equal(t, 2, s.PlayerOneScore)
	assert.Equal(t, "Anna", s.PlayerOneName)
	require.NotNil(t, s.PendingHighlight)

	// The restored pending mark attributes on the next point.
	require.NoError(t, c2.ScorePoint(event.PlayerTwo))
	s = snapshot(t, c2)
	require.Len(t, s.HighlightClips, 1)
}

func TestSnapshotListenerPublishes(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "ctrl.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	c := New(st, event.NewFixedGenerator(),
		WithClock(func() time.Time { return testTime }),
		WithRand(rand.New(zeroSource{})),
	)

	var got []projection.State
	c.OnSnapshot(func(s projection.State) { got = append(got, s) })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, c.Restore(ctx))
	go func() { _ = c.Run(ctx) }()

	startMatch(t, c)
	require.NoError(t, c.ScorePoint(event.PlayerOne))

	// One snapshot per accepted mutation, in order.
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].PlayerOneScore)
	assert.Equal(t, 1, got[1].PlayerOneScore)
}

func TestHandleRemoteCommands(t *testing.T) {
	c, _ := newTestController(t)
	startMatch(t, c)

	require.NoError(t, c.HandleRemote(syncproto.CmdIncrementP1))
	require.NoError(t, c.HandleRemote(syncproto.CmdIncrementP2))
	require.NoError(t, c.HandleRemote(syncproto.CmdHighlight))
	require.NoError(t, c.HandleRemote(syncproto.CmdIncrementP1))

	s := snapshot(t, c)
	assert.Equal(t, 2, s.PlayerOneScore)
	assert.Equal(t, 1, s.PlayerTwoScore)
	require.Len(t, s.HighlightClips, 1)
	assert.Equal(t, event.PlayerOne, s.HighlightClips[0].Player)
}

func TestHandleRemoteRejectionSurfaces(t *testing.T) {
	c, _ := newTestController(t)

	err := c.HandleRemote(syncproto.CmdIncrementP1)
	assert.ErrorIs(t, err, ErrNoActiveMatch)
}

func TestHandleRemoteUnknownIgnored(t *testing.T) {
	c, _ := newTestController(t)
	assert.NoError(t, c.HandleRemote(syncproto.Command("teleport")))
}

func TestStoppedControllerRejectsWork(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "ctrl.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	c := New(st, event.NewFixedGenerator())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { _ = c.Run(ctx); close(done) }()

	cancel()
	<-done

	err = c.StartMatch("x", "A", "B")
	assert.ErrorIs(t, err, ErrStopped)
}

func TestRunSurvivesEnqueueDuringTask(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "ctrl.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	c := New(st, event.NewFixedGenerator())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	runDone := make(chan error, 1)
	go func() { runDone <- c.Run(ctx) }()

	// Park the owner loop inside a task, then enqueue a second task
	// while the first is still executing. The second enqueue leaves a
	// wakeup token that outlives its own dequeue.
	entered := make(chan struct{})
	release := make(chan struct{})
	firstDone := make(chan error, 1)
	go func() {
		firstDone <- c.do(func(context.Context) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	secondDone := make(chan error, 1)
	go func() {
		_, err := c.Snapshot()
		secondDone <- err
	}()
	require.Eventually(t, func() bool { return c.queue.Len() == 1 },
		time.Second, time.Millisecond)

	close(release)
	require.NoError(t, <-firstDone)
	require.NoError(t, <-secondDone)

	// The stale token must read as a spurious wakeup, not a shutdown.
	select {
	case err := <-runDone:
		t.Fatalf("run loop exited: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	_, err = c.Snapshot()
	require.NoError(t, err)

	c.Stop()
	require.NoError(t, <-runDone)
}
