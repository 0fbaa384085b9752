package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlayerOpponent(t *testing.T) {
	assert.Equal(t, PlayerTwo, PlayerOne.Opponent())
	assert.Equal(t, PlayerOne, PlayerTwo.Opponent())
}

func TestPlayerOpponentPanicsOnNone(t *testing.T) {
	assert.Panics(t, func() { PlayerNone.Opponent() })
}

func TestPlayerValid(t *testing.T) {
	assert.True(t, PlayerOne.Valid())
	assert.True(t, PlayerTwo.Valid())
	assert.False(t, PlayerNone.Valid())
	assert.False(t, Player(3).Valid())
}

func TestPlayerString(t *testing.T) {
	assert.Equal(t, "player1", PlayerOne.String())
	assert.Equal(t, "player2", PlayerTwo.String())
	assert.Equal(t, "none", PlayerNone.String())
}

func TestPayloadEventTypes(t *testing.T) {
	cases := []struct {
		payload Payload
		want    Type
	}{
		{MatchStarted{}, TypeMatchStarted},
		{PointScored{}, TypePointScored},
		{HighlightMarked{}, TypeHighlightMarked},
		{HighlightAttributed{}, TypeHighlightAttributed},
		{GameEnded{}, TypeGameEnded},
		{MatchEnded{}, TypeMatchEnded},
		{Undone{}, TypeEventUndone},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.payload.EventType())
	}
}

func TestCanonicalName(t *testing.T) {
	assert.Equal(t, "Anna", CanonicalName("  Anna "))
	// NFC: e + combining acute composes to a single rune.
	assert.Equal(t, "André", CanonicalName("André"))
}
