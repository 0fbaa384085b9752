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

// Match is the aggregate metadata row for one match. Game counts and
// winner are denormalized from the event log for fast listing; the log
// remains the source of truth.
type Match struct {
	ID             string
	Name           string
	PlayerOne      string
	PlayerTwo      string
	StartedAt      time.Time
	EndedAt        *time.Time
	IsActive       bool
	PlayerOneGames int
	PlayerTwoGames int
	Winner         event.Player
	VideoPath      string
	Summary        string
}

// CreateMatch inserts a new active match. Player names are stored in
// canonical form. Returns ErrActiveMatchExists if another match is still
// active - the one-active-match invariant is enforced here, not by the
// caller.
func (s *Store) CreateMatch(ctx context.Context, m Match) error {
	var endedAt any
	if m.EndedAt != nil {
		endedAt = m.EndedAt.UnixMilli()
	}

	var winner any
	if m.Winner.Valid() {
		winner = int(m.Winner)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO matches
		(id, name, player_one, player_two, started_at, ended_at, is_active,
		 player_one_games, player_two_games, winner, video_path, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		m.ID,
		event.CanonicalName(m.Name),
		event.CanonicalName(m.PlayerOne),
		event.CanonicalName(m.PlayerTwo),
		m.StartedAt.UnixMilli(),
		endedAt,
		boolToInt(m.IsActive),
		m.PlayerOneGames,
		m.PlayerTwoGames,
		winner,
		nullIfEmpty(m.VideoPath),
		nullIfEmpty(m.Summary),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return fmt.Errorf("create match: %w", ErrActiveMatchExists)
		}
		return fmt.Errorf("create match: %w", err)
	}

	return nil
}

// Match retrieves a match by id. Returns ErrNotFound if it doesn't exist.
func (s *Store) Match(ctx context.Context, id string) (Match, error) {
	row := s.db.QueryRowContext(ctx, matchSelect+" WHERE id = ?", id)

	m, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Match{}, fmt.Errorf("match %s: %w", id, ErrNotFound)
	}
	return m, err
}

// ActiveMatch returns the currently active match, or (nil, nil) when no
// match is active. The schema guarantees at most one row qualifies.
func (s *Store) ActiveMatch(ctx context.Context) (*Match, error) {
	row := s.db.QueryRowContext(ctx, matchSelect+" WHERE is_active = 1")

	m, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Matches returns all matches, most recently started first.
func (s *Store) Matches(ctx context.Context) ([]Match, error) {
	rows, err := s.db.QueryContext(ctx, matchSelect+" ORDER BY started_at DESC, id COLLATE BINARY ASC")
	if err != nil {
		return nil, fmt.Errorf("query matches: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matches: %w", err)
	}

	if matches == nil {
		matches = []Match{}
	}

	return matches, nil
}

// UpdateMatch persists mutable metadata fields for an existing match.
// Returns ErrNotFound if the match does not exist.
func (s *Store) UpdateMatch(ctx context.Context, m Match) error {
	var endedAt any
	if m.EndedAt != nil {
		endedAt = m.EndedAt.UnixMilli()
	}

	var winner any
	if m.Winner.Valid() {
		winner = int(m.Winner)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE matches SET
			name = ?, player_one = ?, player_two = ?, ended_at = ?,
			is_active = ?, player_one_games = ?, player_two_games = ?,
			winner = ?, video_path = ?, summary = ?
		WHERE id = ?
	`,
		event.CanonicalName(m.Name),
		event.CanonicalName(m.PlayerOne),
		event.CanonicalName(m.PlayerTwo),
		endedAt,
		boolToInt(m.IsActive),
		m.PlayerOneGames,
		m.PlayerTwoGames,
		winner,
		nullIfEmpty(m.VideoPath),
		nullIfEmpty(m.Summary),
		m.ID,
	)
	if err != nil {
		return fmt.Errorf("update match: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update match: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("update match %s: %w", m.ID, ErrNotFound)
	}

	return nil
}

// DeleteMatch removes a match and all of its events in one transaction.
// This is the abort path (cancelMatch) - a deleted match leaves no trace.
func (s *Store) DeleteMatch(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete match: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE match_id = ?`, id); err != nil {
		return fmt.Errorf("delete match events: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM matches WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete match: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete match: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("delete match %s: %w", id, ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete match: commit: %w", err)
	}

	return nil
}

const matchSelect = `
	SELECT id, name, player_one, player_two, started_at, ended_at,
	       is_active, player_one_games, player_two_games, winner,
	       video_path, summary
	FROM matches`

func scanMatch(row rowScanner) (Match, error) {
	var (
		m         Match
		startedAt int64
		endedAt   sql.NullInt64
		active    int
		winner    sql.NullInt64
		videoPath sql.NullString
		summary   sql.NullString
	)
	err := row.Scan(
		&m.ID, &m.Name, &m.PlayerOne, &m.PlayerTwo, &startedAt, &endedAt,
		&active, &m.PlayerOneGames, &m.PlayerTwoGames, &winner,
		&videoPath, &summary,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Match{}, err
		}
		return Match{}, fmt.Errorf("scan match: %w", err)
	}

	m.StartedAt = time.UnixMilli(startedAt).UTC()
	if endedAt.Valid {
		t := time.UnixMilli(endedAt.Int64).UTC()
		m.EndedAt = &t
	}
	m.IsActive = active != 0
	if winner.Valid {
		m.Winner = event.Player(winner.Int64)
	}
	m.VideoPath = videoPath.String
	m.Summary = summary.String

	return m, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
