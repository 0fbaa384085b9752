package projection

import (
	"github.com/sstrand/matchpoint/internal/event"
	"github.com/sstrand/matchpoint/internal/serving"
)

// Project folds non-undone events in sequence order into a State.
// history is the list of previously completed matches (from metadata),
// carried through untouched.
//
// Project is pure: identical input yields identical State.
func Project(events []event.Event, history []MatchResult) State {
	s := State{History: history}
	for _, ev := range events {
		s.Apply(ev)
	}
	return s
}

// Apply folds one event into the state. The controller uses the same
// method for its incremental update after an append, so the live state
// and a full replay can never disagree on a variant's effect.
//
// Undone events and unknown variants have no effect.
func (s *State) Apply(ev event.Event) {
	if ev.IsUndone {
		return
	}

	switch p := ev.Payload.(type) {
	case event.MatchStarted:
		s.MatchID = ev.MatchID
		s.PlayerOneName = p.PlayerOne
		s.PlayerTwoName = p.PlayerTwo
		s.IsRecording = true
		s.RecordingStartedAt = ev.Timestamp
		// Persisted initial server, never recomputed: replay on another
		// device reproduces identical serving state.
		s.ServingPlayer = p.InitialServer
		s.CurrentGameFirstServer = p.InitialServer

	case event.PointScored:
		s.applyPointScored(p)

	case event.HighlightMarked:
		s.applyHighlightMarked(ev.ID, p)

	case event.HighlightAttributed:
		s.applyHighlightAttributed(p)

	case event.GameEnded:
		s.applyGameEnded(p)

	case event.MatchEnded:
		s.IsRecording = false
	}
}

func (s *State) applyPointScored(p event.PointScored) {
	// Serving status is judged against the pre-increment server.
	wasServing := serving.ScoredOnServe(p.Player, s.ServingPlayer)

	if p.Player == event.PlayerOne {
		s.PlayerOneScore++
	} else {
		s.PlayerTwoScore++
	}

	s.CurrentGamePoints = append(s.CurrentGamePoints, PointRecord{
		Player:         p.Player,
		WasServing:     wasServing,
		VideoTimestamp: p.VideoTimestamp,
	})

	s.ServingPlayer = serving.CurrentServer(
		s.CurrentGameFirstServer, s.PlayerOneScore, s.PlayerTwoScore)
}

func (s *State) applyHighlightMarked(eventID string, p event.HighlightMarked) {
	start := s.lastPointTimestamp()

	if p.Player != nil {
		// Immediate attribution: straight to the clip list.
		s.HighlightClips = append(s.HighlightClips, HighlightClip{
			ID:             eventID,
			Player:         *p.Player,
			StartTimestamp: start,
			EndTimestamp:   p.VideoTimestamp,
		})
		return
	}

	s.PendingHighlight = &PendingHighlight{
		ID:             eventID,
		StartTimestamp: start,
		EndTimestamp:   p.VideoTimestamp,
	}
}

func (s *State) applyHighlightAttributed(p event.HighlightAttributed) {
	pending := s.PendingHighlight
	if pending == nil || pending.ID != p.HighlightEventID {
		return
	}

	// Recompute the window start as the latest point strictly before
	// the mark; the point that attributes the highlight has already
	// been appended by the time this event folds.
	start := 0.0
	for _, pt := range s.CurrentGamePoints {
		if pt.VideoTimestamp < pending.EndTimestamp && pt.VideoTimestamp > start {
			start = pt.VideoTimestamp
		}
	}

	s.HighlightClips = append(s.HighlightClips, HighlightClip{
		ID:             pending.ID,
		Player:         p.Player,
		StartTimestamp: start,
		EndTimestamp:   pending.EndTimestamp,
	})
	s.PendingHighlight = nil
}

func (s *State) applyGameEnded(p event.GameEnded) {
	points := make([]PointRecord, len(s.CurrentGamePoints))
	copy(points, s.CurrentGamePoints)

	s.CompletedGames = append(s.CompletedGames, GameResult{
		GameNumber:     p.GameNumber,
		PlayerOneScore: p.PlayerOneScore,
		PlayerTwoScore: p.PlayerTwoScore,
		Winner:         p.Winner,
		Duration:       p.Duration,
		Points:         points,
		FirstServer:    p.FirstServer,
	})

	if p.Winner == event.PlayerOne {
		s.PlayerOneGames++
	} else {
		s.PlayerTwoGames++
	}

	s.CurrentGameFirstServer = s.CurrentGameFirstServer.Opponent()
	s.ServingPlayer = s.CurrentGameFirstServer
	s.PlayerOneScore = 0
	s.PlayerTwoScore = 0
	s.CurrentGamePoints = nil
}

func (s *State) lastPointTimestamp() float64 {
	if len(s.CurrentGamePoints) == 0 {
		return 0
	}
	return s.CurrentGamePoints[len(s.CurrentGamePoints)-1].VideoTimestamp
}

// CurrentGame is the fast-path projection of the in-progress game,
// folded from only the event suffix since the last GameEnded.
type CurrentGame struct {
	PlayerOneScore   int
	PlayerTwoScore   int
	Points           []PointRecord
	ServingPlayer    event.Player
	PendingHighlight *PendingHighlight
}

// ProjectCurrentGame folds the current-game suffix without a full-match
// replay. firstServer is the first server of this game. The result must
// equal the corresponding slice of a full Project over the whole log.
func ProjectCurrentGame(firstServer event.Player, suffix []event.Event) CurrentGame {
	s := State{
		ServingPlayer:          firstServer,
		CurrentGameFirstServer: firstServer,
	}
	for _, ev := range suffix {
		switch ev.Payload.(type) {
		case event.PointScored, event.HighlightMarked, event.HighlightAttributed:
			s.Apply(ev)
		}
	}
	return CurrentGame{
		PlayerOneScore:   s.PlayerOneScore,
		PlayerTwoScore:   s.PlayerTwoScore,
		Points:           s.CurrentGamePoints,
		ServingPlayer:    s.ServingPlayer,
		PendingHighlight: s.PendingHighlight,
	}
}
