package undo

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sstrand/matchpoint/internal/event"
	"github.com/sstrand/matchpoint/internal/store"
)

var testTime = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store *store.Store
	svc   *Service
	seq   int64
	ids   *event.FixedGenerator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "undo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.CreateMatch(context.Background(), store.Match{
		ID: "m1", Name: "test", PlayerOne: "Anna", PlayerTwo: "Bjorn",
		StartedAt: testTime, IsActive: true,
	}))

	ids := event.NewFixedGenerator()
	return &fixture{
		store: st,
		svc:   New(st, ids, func() time.Time { return testTime }),
		ids:   ids,
	}
}

func (f *fixture) append(t *testing.T, p event.Payload) event.Event {
	t.Helper()
	ev := event.Event{
		ID:        f.ids.NewID(),
		MatchID:   "m1",
		Seq:       f.seq,
		Type:      p.EventType(),
		Timestamp: testTime.Add(time.Duration(f.seq) * time.Second),
		Payload:   p,
	}
	require.NoError(t, f.store.AppendEvent(context.Background(), ev))
	f.seq++
	return ev
}

func (f *fixture) scorePoints(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		f.append(t, event.PointScored{Player: event.PlayerOne, GameNumber: 1})
	}
}

func TestUndoLastPoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.append(t, event.MatchStarted{PlayerOne: "Anna", PlayerTwo: "Bjorn", InitialServer: event.PlayerOne})
	target := f.append(t, event.PointScored{Player: event.PlayerTwo, GameNumber: 1})

	undone, err := f.svc.UndoLastPoint(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, target.ID, undone.ID)

	// The log grew by one compensating event; nothing was deleted.
	all, err := f.store.Events(ctx, "m1", true)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[1].IsUndone)
	assert.Equal(t, event.TypeEventUndone, all[2].Type)

	comp := all[2].Payload.(event.Undone)
	assert.Equal(t, target.ID, comp.UndoneEventID)
	assert.Equal(t, event.ReasonUserUndo, comp.Reason)
}

func TestUndoLastPointNothingToUndo(t *testing.T) {
	f := newFixture(t)

	f.append(t, event.MatchStarted{InitialServer: event.PlayerOne})

	_, err := f.svc.UndoLastPoint(context.Background(), "m1")
	assert.ErrorIs(t, err, ErrNothingToUndo)
}

func TestUndoLastPointSkipsAlreadyUndone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.append(t, event.PointScored{Player: event.PlayerOne, GameNumber: 1})
	f.append(t, event.PointScored{Player: event.PlayerTwo, GameNumber: 1})

	_, err := f.svc.UndoLastPoint(ctx, "m1")
	require.NoError(t, err)

	undone, err := f.svc.UndoLastPoint(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, undone.ID)
}

func TestUndoDepthBound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.scorePoints(t, MaxDepth+1)

	// Ten consecutive undos stay inside the window.
	for i := 0; i < MaxDepth; i++ {
		_, err := f.svc.UndoLastPoint(ctx, "m1")
		require.NoError(t, err, "undo %d should succeed", i+1)
	}

	// The eleventh target is 11 positions back counting undone points.
	_, err := f.svc.UndoLastPoint(ctx, "m1")
	assert.ErrorIs(t, err, ErrExceedsMaxDepth)

	// The failing undo changed nothing: still one live point.
	n, err := f.svc.UndoableCount(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestUndoDepthCountsUndonePoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.scorePoints(t, MaxDepth)

	for i := 0; i < MaxDepth; i++ {
		_, err := f.svc.UndoLastPoint(ctx, "m1")
		require.NoError(t, err)
	}

	_, err := f.svc.UndoLastPoint(ctx, "m1")
	assert.ErrorIs(t, err, ErrNothingToUndo)
}

func TestUndoWindowResetsPerGame(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.scorePoints(t, 15)
	f.append(t, event.GameEnded{GameNumber: 1, PlayerOneScore: 15, Winner: event.PlayerOne, FirstServer: event.PlayerOne})
	f.append(t, event.PointScored{Player: event.PlayerTwo, GameNumber: 2})

	// Only the new game's single point is in scope.
	n, err := f.svc.UndoableCount(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = f.svc.UndoLastPoint(ctx, "m1")
	require.NoError(t, err)

	_, err = f.svc.UndoLastPoint(ctx, "m1")
	assert.ErrorIs(t, err, ErrNothingToUndo)
}

func TestUndoLastHighlight(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.append(t, event.PointScored{Player: event.PlayerOne, GameNumber: 1})
	mark := f.append(t, event.HighlightMarked{VideoTimestamp: 30})

	undone, err := f.svc.UndoLastHighlight(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, mark.ID, undone.ID)

	_, err = f.svc.UndoLastHighlight(ctx, "m1")
	assert.ErrorIs(t, err, ErrNothingToUndo)
}

func TestUndoLastHighlightLeavesPointsAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	point := f.append(t, event.PointScored{Player: event.PlayerOne, GameNumber: 1})
	f.append(t, event.HighlightMarked{VideoTimestamp: 30})

	_, err := f.svc.UndoLastHighlight(ctx, "m1")
	require.NoError(t, err)

	got, err := f.store.Event(ctx, point.ID)
	require.NoError(t, err)
	assert.False(t, got.IsUndone)
}

func TestCanUndo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok, err := f.svc.CanUndo(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, ok)

	f.scorePoints(t, 1)

	ok, err = f.svc.CanUndo(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUndoableCountBounded(t *testing.T) {
	f := newFixture(t)

	f.scorePoints(t, 14)

	n, err := f.svc.UndoableCount(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, MaxDepth, n)
}

func TestUndoDescription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	desc, err := f.svc.UndoDescription(ctx, "m1")
	require.NoError(t, err)
	assert.Empty(t, desc)

	f.append(t, event.PointScored{Player: event.PlayerTwo, GameNumber: 1})

	desc, err = f.svc.UndoDescription(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "undo point for player2", desc)
}
