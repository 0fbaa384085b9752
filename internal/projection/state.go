// Package projection derives live score state from the event log.
//
// State is never stored: at any moment it equals the left fold of all
// non-undone events of the match in sequence order. Folding is pure, so
// replaying the same log twice - or on another device - yields identical
// state.
package projection

import (
	"time"

	"github.com/sstrand/matchpoint/internal/event"
)

// PointRecord is one rally inside a game, as seen by the projection.
type PointRecord struct {
	Player         event.Player `json:"player"`
	WasServing     bool         `json:"was_serving"`
	VideoTimestamp float64      `json:"video_timestamp"`
}

// HighlightClip is an attributed highlight window within the recording.
type HighlightClip struct {
	ID             string       `json:"id"`
	Player         event.Player `json:"player"`
	StartTimestamp float64      `json:"start_timestamp"`
	EndTimestamp   float64      `json:"end_timestamp"`
}

// PendingHighlight is a marked but not yet attributed highlight. At most
// one exists per match; the next scored point (or an explicit
// attribution) resolves it.
type PendingHighlight struct {
	ID             string        `json:"id"`
	StartTimestamp float64       `json:"start_timestamp"`
	EndTimestamp   float64       `json:"end_timestamp"`
	Player         *event.Player `json:"player,omitempty"`
}

// GameResult is a finalized game within the current match.
type GameResult struct {
	GameNumber     int           `json:"game_number"`
	PlayerOneScore int           `json:"player_one_score"`
	PlayerTwoScore int           `json:"player_two_score"`
	Winner         event.Player  `json:"winner"`
	Duration       float64       `json:"duration"`
	Points         []PointRecord `json:"points"`
	FirstServer    event.Player  `json:"first_server"`
}

// MatchResult is an archived completed match.
type MatchResult struct {
	MatchID        string       `json:"match_id"`
	Name           string       `json:"name"`
	PlayerOne      string       `json:"player_one"`
	PlayerTwo      string       `json:"player_two"`
	PlayerOneGames int          `json:"player_one_games"`
	PlayerTwoGames int          `json:"player_two_games"`
	Winner         event.Player `json:"winner"`
	EndedAt        time.Time    `json:"ended_at"`
}

// State is the derived score state of the active match plus the match
// history list. It is a value type: copying it snapshots it.
type State struct {
	MatchID       string `json:"match_id"`
	PlayerOneName string `json:"player_one_name"`
	PlayerTwoName string `json:"player_two_name"`

	PlayerOneScore int `json:"player_one_score"`
	PlayerTwoScore int `json:"player_two_score"`
	PlayerOneGames int `json:"player_one_games"`
	PlayerTwoGames int `json:"player_two_games"`

	CurrentGamePoints []PointRecord     `json:"current_game_points"`
	CompletedGames    []GameResult      `json:"completed_games"`
	HighlightClips    []HighlightClip   `json:"highlight_clips"`
	PendingHighlight  *PendingHighlight `json:"pending_highlight,omitempty"`

	ServingPlayer          event.Player `json:"serving_player"`
	CurrentGameFirstServer event.Player `json:"current_game_first_server"`

	IsRecording        bool      `json:"is_recording"`
	RecordingStartedAt time.Time `json:"recording_started_at"`

	History []MatchResult `json:"history"`
}

// CurrentGameNumber returns the 1-based index of the in-progress game.
func (s *State) CurrentGameNumber() int {
	return len(s.CompletedGames) + 1
}

// Score returns the point score for the given player.
func (s *State) Score(p event.Player) int {
	if p == event.PlayerOne {
		return s.PlayerOneScore
	}
	return s.PlayerTwoScore
}

// GamesWon returns the game count for the given player.
func (s *State) GamesWon(p event.Player) int {
	if p == event.PlayerOne {
		return s.PlayerOneGames
	}
	return s.PlayerTwoGames
}

// Leader returns the player with more points in the current game, or
// PlayerNone on a tie.
func (s *State) Leader() event.Player {
	switch {
	case s.PlayerOneScore > s.PlayerTwoScore:
		return event.PlayerOne
	case s.PlayerTwoScore > s.PlayerOneScore:
		return event.PlayerTwo
	default:
		return event.PlayerNone
	}
}
