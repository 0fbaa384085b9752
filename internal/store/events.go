package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/sstrand/matchpoint/internal/event"
)

// AppendEvent persists an event. The caller supplies a pre-reserved
// sequence number from NextSeq; the store never allocates one implicitly.
// The write is atomic - on error no partial event is applied.
func (s *Store) AppendEvent(ctx context.Context, ev event.Event) error {
	payload, err := event.MarshalPayload(ev.Payload)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events
		(id, match_id, seq, type, timestamp, payload, is_undone)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		ev.ID,
		ev.MatchID,
		ev.Seq,
		string(ev.Type),
		ev.Timestamp.UnixMilli(),
		payload,
		boolToInt(ev.IsUndone),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return fmt.Errorf("append event seq %d: %w", ev.Seq, ErrDuplicateSeq)
		}
		return fmt.Errorf("append event: %w", err)
	}

	return nil
}

// NextSeq returns the next sequence number for a match: one past the
// highest existing seq including undone events, or 0 for an empty log.
// Undone events keep their seq; a number is never handed out twice.
func (s *Store) NextSeq(ctx context.Context, matchID string) (int64, error) {
	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(seq) FROM events WHERE match_id = ?
	`, matchID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("next seq: %w", err)
	}
	if !max.Valid {
		return 0, nil
	}
	return max.Int64 + 1, nil
}

// Events returns all events for a match ordered by sequence number.
// When includeUndone is false, soft-deleted events are filtered out -
// this is the ordering every projection replays.
func (s *Store) Events(ctx context.Context, matchID string, includeUndone bool) ([]event.Event, error) {
	query := `
		SELECT id, match_id, seq, type, timestamp, payload, is_undone
		FROM events
		WHERE match_id = ?
	`
	if !includeUndone {
		query += " AND is_undone = 0"
	}
	query += " ORDER BY seq ASC, id COLLATE BINARY ASC"

	rows, err := s.db.QueryContext(ctx, query, matchID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// CurrentGameEvents returns the suffix of non-undone events strictly
// after the last non-undone GameEnded, or the whole sequence if no game
// has ended yet. This is the slice the undo service and the fast-path
// projection operate on.
func (s *Store) CurrentGameEvents(ctx context.Context, matchID string) ([]event.Event, error) {
	var lastGameEnd sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(seq) FROM events
		WHERE match_id = ? AND type = ? AND is_undone = 0
	`, matchID, string(event.TypeGameEnded)).Scan(&lastGameEnd)
	if err != nil {
		return nil, fmt.Errorf("current game events: %w", err)
	}

	after := int64(-1)
	if lastGameEnd.Valid {
		after = lastGameEnd.Int64
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, match_id, seq, type, timestamp, payload, is_undone
		FROM events
		WHERE match_id = ? AND is_undone = 0 AND seq > ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, matchID, after)
	if err != nil {
		return nil, fmt.Errorf("current game events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// Event retrieves a single event by id.
// Returns ErrNotFound if it does not exist.
func (s *Store) Event(ctx context.Context, id string) (event.Event, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, match_id, seq, type, timestamp, payload, is_undone
		FROM events
		WHERE id = ?
	`, id)

	ev, err := scanEventRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return event.Event{}, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	return ev, err
}

// MarkEventUndone flips the soft-delete bit on a stored event.
// The row's bytes are otherwise unchanged; its seq stays reserved.
// Returns ErrNotFound if no such event exists.
func (s *Store) MarkEventUndone(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE events SET is_undone = 1 WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("mark event undone: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark event undone: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("mark event undone %s: %w", id, ErrNotFound)
	}

	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvents(rows *sql.Rows) ([]event.Event, error) {
	var events []event.Event
	for rows.Next() {
		ev, err := scanEventRow(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	// Return empty slice instead of nil
	if events == nil {
		events = []event.Event{}
	}

	return events, nil
}

func scanEventRow(row rowScanner) (event.Event, error) {
	var (
		ev        event.Event
		typ       string
		tsMillis  int64
		payload   string
		undoneInt int
	)
	if err := row.Scan(&ev.ID, &ev.MatchID, &ev.Seq, &typ, &tsMillis, &payload, &undoneInt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return event.Event{}, err
		}
		return event.Event{}, fmt.Errorf("scan event: %w", err)
	}

	ev.Type = event.Type(typ)
	ev.Timestamp = time.UnixMilli(tsMillis).UTC()
	ev.IsUndone = undoneInt != 0

	p, err := event.UnmarshalPayload(ev.Type, payload)
	if err != nil {
		return event.Event{}, fmt.Errorf("scan event %s: %w", ev.ID, err)
	}
	ev.Payload = p

	return ev, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
