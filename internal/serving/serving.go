// Package serving implements the table-tennis service rotation rules.
//
// Everything here is a pure function of a score tuple - no replay of
// point-by-point history is needed, which lets the same functions drive
// live scoring, projection replay, and after-the-fact statistics.
package serving

import (
	"math/rand"

	"github.com/sstrand/matchpoint/internal/event"
)

// pointsPerTurn is how many consecutive points one player serves before
// rotation, until deuce.
const pointsPerTurn = 2

// deuceThreshold is the score both players must reach before service
// rotates every single point.
const deuceThreshold = 10

// MatchOutcome is the slice of match history the initial-server rule
// needs: who won the most recent match.
type MatchOutcome struct {
	Winner event.Player
}

// InitialServer picks the first server of a new match: uniformly random
// when there is no history, otherwise the loser of the most recent match.
func InitialServer(history []MatchOutcome, rng *rand.Rand) event.Player {
	if len(history) == 0 {
		if rng.Intn(2) == 0 {
			return event.PlayerOne
		}
		return event.PlayerTwo
	}

	last := history[len(history)-1]
	return last.Winner.Opponent()
}

// CurrentServer derives who serves at the given score.
//
// Before both scores reach 10, service rotates every 2 points. Once both
// are at 10 or more (deuce), it rotates every point. Idempotent and
// side-effect-free: re-derivable from any score tuple.
func CurrentServer(firstServer event.Player, p1Score, p2Score int) event.Player {
	total := p1Score + p2Score

	if p1Score >= deuceThreshold && p2Score >= deuceThreshold {
		if total%2 == 1 {
			return firstServer.Opponent()
		}
		return firstServer
	}

	serviceTurns := total / pointsPerTurn
	if serviceTurns%2 == 1 {
		return firstServer.Opponent()
	}
	return firstServer
}

// ScoredOnServe reports whether the scorer won the point on their own
// serve.
func ScoredOnServe(scorer, server event.Player) bool {
	return scorer == server
}

// ServeCounts tallies how many serves each player delivered over a game,
// by replaying every intermediate score of the game's point sequence.
// points lists the scorer of each rally in order.
func ServeCounts(firstServer event.Player, points []event.Player) (p1Serves, p2Serves int) {
	p1, p2 := 0, 0
	for _, scorer := range points {
		server := CurrentServer(firstServer, p1, p2)
		if server == event.PlayerOne {
			p1Serves++
		} else {
			p2Serves++
		}

		if scorer == event.PlayerOne {
			p1++
		} else {
			p2++
		}
	}
	return p1Serves, p2Serves
}
