package event

import (
	"fmt"
	"time"
)

// Player identifies one of the two match participants.
type Player int

const (
	// PlayerNone is the zero value; used where a player is not yet known.
	PlayerNone Player = 0
	// PlayerOne is the first named player.
	PlayerOne Player = 1
	// PlayerTwo is the second named player.
	PlayerTwo Player = 2
)

// Opponent returns the other player.
// Panics on PlayerNone - callers must hold a concrete player.
func (p Player) Opponent() Player {
	switch p {
	case PlayerOne:
		return PlayerTwo
	case PlayerTwo:
		return PlayerOne
	default:
		panic(fmt.Sprintf("no opponent for player %d", p))
	}
}

// Valid reports whether p names a concrete player.
func (p Player) Valid() bool {
	return p == PlayerOne || p == PlayerTwo
}

func (p Player) String() string {
	switch p {
	case PlayerOne:
		return "player1"
	case PlayerTwo:
		return "player2"
	default:
		return "none"
	}
}

// Type discriminates event payload variants.
type Type string

const (
	TypeMatchStarted        Type = "MatchStarted"
	TypePointScored         Type = "PointScored"
	TypeHighlightMarked     Type = "HighlightMarked"
	TypeHighlightAttributed Type = "HighlightAttributed"
	TypeGameEnded           Type = "GameEnded"
	TypeMatchEnded          Type = "MatchEnded"
	TypeEventUndone         Type = "EventUndone"
)

// Event is the stored envelope for one recorded fact.
//
// Seq is a per-match logical sequence number: strictly increasing,
// gap-free at append time, and never reused. An undone event keeps its
// sequence number - undo shadows a seq, it never frees one.
type Event struct {
	ID        string
	MatchID   string
	Seq       int64
	Type      Type
	Timestamp time.Time
	IsUndone  bool
	Payload   Payload
}

// Payload is the tagged union of domain fields per event variant.
// Implementations are value types; an Event's payload is immutable
// once appended.
type Payload interface {
	// EventType returns the discriminant for this payload.
	EventType() Type
}

// MatchStarted opens a match. InitialServer is persisted here so that
// replay on another device reproduces identical serving state - the
// projector never recomputes it.
type MatchStarted struct {
	PlayerOne     string `json:"player_one"`
	PlayerTwo     string `json:"player_two"`
	InitialServer Player `json:"initial_server"`
}

func (MatchStarted) EventType() Type { return TypeMatchStarted }

// PointScored records one rally won.
// VideoTimestamp is elapsed recording time in seconds at the moment the
// point was scored.
type PointScored struct {
	Player         Player  `json:"player"`
	GameNumber     int     `json:"game_number"`
	VideoTimestamp float64 `json:"video_timestamp"`
}

func (PointScored) EventType() Type { return TypePointScored }

// HighlightMarked flags a moment worth clipping. Player is nil for the
// two-phase flow (attribution arrives with the next point) and set for
// immediate attribution.
type HighlightMarked struct {
	Player         *Player `json:"player,omitempty"`
	VideoTimestamp float64 `json:"video_timestamp"`
}

func (HighlightMarked) EventType() Type { return TypeHighlightMarked }

// HighlightAttributed resolves a pending highlight to the player who won
// the point that followed the mark.
type HighlightAttributed struct {
	HighlightEventID string `json:"highlight_event_id"`
	Player           Player `json:"player"`
}

func (HighlightAttributed) EventType() Type { return TypeHighlightAttributed }

// GameEnded finalizes one game. Duration is wall-clock seconds from the
// first rally of the game.
type GameEnded struct {
	GameNumber     int     `json:"game_number"`
	PlayerOneScore int     `json:"player_one_score"`
	PlayerTwoScore int     `json:"player_two_score"`
	Winner         Player  `json:"winner"`
	Duration       float64 `json:"duration"`
	FirstServer    Player  `json:"first_server"`
}

func (GameEnded) EventType() Type { return TypeGameEnded }

// MatchEnded closes a match normally. Cancellation is not an event -
// a cancelled match is deleted along with its log.
type MatchEnded struct {
	Winner         Player `json:"winner"`
	PlayerOneGames int    `json:"player_one_games"`
	PlayerTwoGames int    `json:"player_two_games"`
}

func (MatchEnded) EventType() Type { return TypeMatchEnded }

// Undone is the compensating record appended by an undo. The target
// event additionally has its IsUndone bit set; this record preserves the
// audit trail of the undo itself.
type Undone struct {
	UndoneEventID string `json:"undone_event_id"`
	Reason        string `json:"reason"`
}

func (Undone) EventType() Type { return TypeEventUndone }

// ReasonUserUndo is the reason recorded for user-initiated undo.
const ReasonUserUndo = "user_undo"
