// Package undo implements bounded, append-only undo over the event log.
//
// Undo never rewrites or deletes events. It marks the target event's
// is_undone bit and appends a compensating EventUndone record with a
// freshly reserved sequence number, so the full audit history survives
// and replay stays deterministic.
package undo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sstrand/matchpoint/internal/event"
	"github.com/sstrand/matchpoint/internal/store"
)

// MaxDepth bounds how far back the undo window reaches: only the last
// 10 scored points of the current game may ever be undone. Positions
// are counted over all point events of the game, undone ones included -
// undoing does not widen the window.
const MaxDepth = 10

// ErrNothingToUndo is returned when the current game holds no undoable
// event of the requested kind.
var ErrNothingToUndo = errors.New("nothing to undo")

// ErrExceedsMaxDepth is returned when the undo target sits outside the
// bounded window. State is unchanged.
var ErrExceedsMaxDepth = errors.New("undo exceeds max depth")

// Service performs undo operations against a store.
type Service struct {
	store *store.Store
	ids   event.IDGenerator
	now   func() time.Time
}

// New creates an undo service. now may be nil, defaulting to time.Now.
func New(st *store.Store, ids event.IDGenerator, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: st, ids: ids, now: now}
}

// UndoLastPoint undoes the most recent non-undone PointScored of the
// current game. Returns the undone event on success.
//
// Fails with ErrNothingToUndo when the current game has no live point,
// and with ErrExceedsMaxDepth when the target is more than MaxDepth
// positions back from the newest point of the game.
func (s *Service) UndoLastPoint(ctx context.Context, matchID string) (*event.Event, error) {
	slice, err := s.currentGameSlice(ctx, matchID)
	if err != nil {
		return nil, err
	}

	points := filterType(slice, event.TypePointScored)
	target, depth := lastLive(points)
	if target == nil {
		return nil, ErrNothingToUndo
	}
	if depth > MaxDepth {
		return nil, fmt.Errorf("target is %d points back (max %d): %w",
			depth, MaxDepth, ErrExceedsMaxDepth)
	}

	if err := s.undo(ctx, matchID, target); err != nil {
		return nil, err
	}
	return target, nil
}

// UndoLastHighlight undoes the most recent non-undone HighlightMarked of
// the current game. No depth bound applies to highlight marks.
func (s *Service) UndoLastHighlight(ctx context.Context, matchID string) (*event.Event, error) {
	slice, err := s.currentGameSlice(ctx, matchID)
	if err != nil {
		return nil, err
	}

	marks := filterType(slice, event.TypeHighlightMarked)
	target, _ := lastLive(marks)
	if target == nil {
		return nil, ErrNothingToUndo
	}

	if err := s.undo(ctx, matchID, target); err != nil {
		return nil, err
	}
	return target, nil
}

// CanUndo reports whether UndoLastPoint would currently succeed.
func (s *Service) CanUndo(ctx context.Context, matchID string) (bool, error) {
	n, err := s.UndoableCount(ctx, matchID)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UndoableCount returns how many points of the current game can still be
// undone: live points inside the bounded window.
func (s *Service) UndoableCount(ctx context.Context, matchID string) (int, error) {
	slice, err := s.currentGameSlice(ctx, matchID)
	if err != nil {
		return 0, err
	}

	points := filterType(slice, event.TypePointScored)
	count := 0
	for i, ev := range points {
		if ev.IsUndone {
			continue
		}
		if len(points)-i <= MaxDepth {
			count++
		}
	}
	return count, nil
}

// UndoDescription returns a human-readable label for the next undo
// target, or "" when nothing is undoable. Read-only.
func (s *Service) UndoDescription(ctx context.Context, matchID string) (string, error) {
	slice, err := s.currentGameSlice(ctx, matchID)
	if err != nil {
		return "", err
	}

	points := filterType(slice, event.TypePointScored)
	target, depth := lastLive(points)
	if target == nil || depth > MaxDepth {
		return "", nil
	}

	p := target.Payload.(event.PointScored)
	return fmt.Sprintf("undo point for %s", p.Player), nil
}

// undo marks the target undone and appends the compensating record.
func (s *Service) undo(ctx context.Context, matchID string, target *event.Event) error {
	if err := s.store.MarkEventUndone(ctx, target.ID); err != nil {
		return fmt.Errorf("undo %s: %w", target.Type, err)
	}

	seq, err := s.store.NextSeq(ctx, matchID)
	if err != nil {
		return fmt.Errorf("undo %s: %w", target.Type, err)
	}

	comp := event.Event{
		ID:        s.ids.NewID(),
		MatchID:   matchID,
		Seq:       seq,
		Type:      event.TypeEventUndone,
		Timestamp: s.now(),
		Payload: event.Undone{
			UndoneEventID: target.ID,
			Reason:        event.ReasonUserUndo,
		},
	}
	if err := s.store.AppendEvent(ctx, comp); err != nil {
		return fmt.Errorf("undo %s: append compensation: %w", target.Type, err)
	}

	return nil
}

// currentGameSlice returns the events of the current game including
// undone ones, so depth accounting sees every point ever scored in the
// game. The slice starts strictly after the last non-undone GameEnded.
func (s *Service) currentGameSlice(ctx context.Context, matchID string) ([]event.Event, error) {
	all, err := s.store.Events(ctx, matchID, true)
	if err != nil {
		return nil, err
	}

	start := 0
	for i, ev := range all {
		if ev.Type == event.TypeGameEnded && !ev.IsUndone {
			start = i + 1
		}
	}
	return all[start:], nil
}

// filterType keeps events of one type, preserving order.
func filterType(events []event.Event, t event.Type) []event.Event {
	var out []event.Event
	for _, ev := range events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// lastLive returns the newest non-undone event and its 1-based position
// from the end of the list (undone entries included in the distance).
func lastLive(events []event.Event) (*event.Event, int) {
	for i := len(events) - 1; i >= 0; i-- {
		if !events[i].IsUndone {
			ev := events[i]
			return &ev, len(events) - i
		}
	}
	return nil, 0
}
