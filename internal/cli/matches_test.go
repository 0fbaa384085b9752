package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchesEmptyDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.db")

	out, err := runCommand(t, "matches", "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, "No matches found")
}

func TestMatchesListing(t *testing.T) {
	path := seedDB(t)

	out, err := runCommand(t, "matches", "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, "friendly")
	assert.Contains(t, out, "Anna vs Bjorn")
	assert.Contains(t, out, "games 1-0")
	assert.Contains(t, out, "winner player1")
}

func TestMatchesStats(t *testing.T) {
	path := seedDB(t)

	out, err := runCommand(t, "matches", "--db", path, "--stats", "--format", "json")
	require.NoError(t, err)

	var summaries []MatchSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summaries))
	require.Len(t, summaries, 1)

	s := summaries[0]
	assert.Equal(t, "friendly", s.Name)
	assert.False(t, s.Active)
	require.Len(t, s.Stats, 1)

	g := s.Stats[0]
	assert.Equal(t, 1, g.GameNumber)
	assert.Equal(t, "3-0", g.Score)
	// Serve rotates after every two points: the opener serves twice.
	assert.Equal(t, 3, g.PlayerOneServes+g.PlayerTwoServes)
}
