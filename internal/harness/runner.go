package harness

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sstrand/matchpoint/internal/controller"
	"github.com/sstrand/matchpoint/internal/event"
	"github.com/sstrand/matchpoint/internal/projection"
	"github.com/sstrand/matchpoint/internal/store"
)

// fixedSource is a math/rand source that always yields zero, pinning
// the initial-server coin toss to player one.
type fixedSource struct{}

func (fixedSource) Int63() int64 { return 0 }
func (fixedSource) Seed(int64)   {}

// fixedClock pins every event timestamp so traces are reproducible.
var fixedClock = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// Run executes a scenario against a real store and controller and
// returns the formatted trace. Flow steps marked fails must be
// rejected; all others must succeed. Assertions are checked against
// the final projected state.
func Run(t *testing.T, scenario *Scenario) []byte {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), scenario.Name+".db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ctrl := controller.New(st, event.NewFixedGenerator(),
		controller.WithClock(func() time.Time { return fixedClock }),
		controller.WithRand(rand.New(fixedSource{})),
	)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	require.NoError(t, ctrl.Restore(ctx))
	go func() { _ = ctrl.Run(ctx) }()

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "scenario: %s\n", scenario.Name)

	require.NoError(t, ctrl.StartMatch(scenario.Name, scenario.PlayerOne, scenario.PlayerTwo))
	snap, err := ctrl.Snapshot()
	require.NoError(t, err)
	fmt.Fprintf(&buf, "match: %s vs %s first_server=%s\n",
		scenario.PlayerOne, scenario.PlayerTwo, snap.CurrentGameFirstServer)

	for i, step := range scenario.Flow {
		err := execute(ctrl, step)
		if step.Fails {
			require.Error(t, err, "flow[%d] %s should be rejected", i, step.Action)
		} else {
			require.NoError(t, err, "flow[%d] %s", i, step.Action)
		}

		snap, snapErr := ctrl.Snapshot()
		require.NoError(t, snapErr)
		writeStep(&buf, i+1, step, snap)
	}

	final, err := ctrl.Snapshot()
	require.NoError(t, err)
	fmt.Fprintf(&buf, "final: recording=%v history=%d\n", final.IsRecording, len(final.History))

	checkAssertions(t, scenario.Assertions, final)
	return buf.Bytes()
}

// RunWithGolden executes the scenario at path and compares the trace
// against testdata/golden/{name}.golden. Regenerate with go test -update.
func RunWithGolden(t *testing.T, path string) {
	t.Helper()

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	trace := Run(t, scenario)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, trace)
}

func execute(ctrl *controller.Controller, step Step) error {
	switch step.Action {
	case ActionPoint:
		p := event.PlayerOne
		if step.Player == "player2" {
			p = event.PlayerTwo
		}
		return ctrl.ScorePoint(p)
	case ActionHighlight:
		return ctrl.MarkHighlight()
	case ActionUndoPoint:
		return ctrl.UndoLastPoint()
	case ActionUndoHighlight:
		return ctrl.UndoLastHighlight()
	case ActionEndGame:
		return ctrl.EndGame()
	case ActionEndMatch:
		return ctrl.EndMatch()
	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}
}

func writeStep(buf *bytes.Buffer, n int, step Step, snap projection.State) {
	desc := step.Action
	if step.Player != "" {
		desc += " " + step.Player
	}

	fmt.Fprintf(buf, "%02d %-15s score=%d-%d games=%d-%d serving=%s highlights=%d",
		n, desc,
		snap.PlayerOneScore, snap.PlayerTwoScore,
		snap.PlayerOneGames, snap.PlayerTwoGames,
		snap.ServingPlayer, len(snap.HighlightClips))
	if step.Fails {
		buf.WriteString(" rejected")
	}
	if snap.PendingHighlight != nil {
		buf.WriteString(" pending-highlight")
	}
	buf.WriteByte('\n')
}

func checkAssertions(t *testing.T, assertions []Assertion, final projection.State) {
	t.Helper()

	for i, a := range assertions {
		switch a.Type {
		case AssertScore:
			assert.Equal(t, a.PlayerOne, final.PlayerOneScore, "assertions[%d]: player one score", i)
			assert.Equal(t, a.PlayerTwo, final.PlayerTwoScore, "assertions[%d]: player two score", i)
		case AssertGames:
			assert.Equal(t, a.PlayerOne, final.PlayerOneGames, "assertions[%d]: player one games", i)
			assert.Equal(t, a.PlayerTwo, final.PlayerTwoGames, "assertions[%d]: player two games", i)
		case AssertServing:
			assert.Equal(t, a.Player, final.ServingPlayer.String(), "assertions[%d]: serving player", i)
		case AssertHighlights:
			assert.Len(t, final.HighlightClips, a.Count, "assertions[%d]: highlight count", i)
		case AssertHistory:
			assert.Len(t, final.History, a.Count, "assertions[%d]: history length", i)
		}
	}
}
