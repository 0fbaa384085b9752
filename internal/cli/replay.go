package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/spf13/cobra"

	"github.com/sstrand/matchpoint/internal/event"
	"github.com/sstrand/matchpoint/internal/projection"
	"github.com/sstrand/matchpoint/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	MatchID  string // optional - specific match only
}

// ReplayMatchResult holds the replay result for a single match.
type ReplayMatchResult struct {
	MatchID       string `json:"match_id"`
	Name          string `json:"name"`
	Events        int    `json:"events"`
	UndoneEvents  int    `json:"undone_events"`
	GamesP1       int    `json:"games_p1"`
	GamesP2       int    `json:"games_p2"`
	ScoreP1       int    `json:"score_p1"`
	ScoreP2       int    `json:"score_p2"`
	Deterministic bool   `json:"deterministic"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Matches          []ReplayMatchResult `json:"matches"`
	TotalMatches     int                 `json:"total_matches"`
	AllDeterministic bool                `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay match event logs and verify determinism",
		Long: `Re-project stored match event logs and verify determinism.

Each match's log is folded into score state twice; the two projections
must match exactly. Reports per-match statistics including event counts
and the projected final score.

Exit codes:
  0 - All projections are deterministic
  1 - Determinism verification failed
  2 - Command error (database not found, etc.)

Examples:
  matchpoint replay --db ./matchpoint.db
  matchpoint replay --db ./matchpoint.db --match 0198a3f2-...
  matchpoint replay --db ./matchpoint.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.MatchID, "match", "", "replay a specific match only")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	var matches []store.Match
	if opts.MatchID != "" {
		m, err := st.Match(ctx, opts.MatchID)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("match %s not found", opts.MatchID), err)
		}
		matches = []store.Match{m}
	} else {
		matches, err = st.Matches(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list matches", err)
		}
	}

	result := ReplayResult{
		Matches:          make([]ReplayMatchResult, 0, len(matches)),
		TotalMatches:     len(matches),
		AllDeterministic: true,
	}

	for _, m := range matches {
		mr, err := replayAndVerifyMatch(ctx, st, m)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay match %s", m.ID), err)
		}
		result.Matches = append(result.Matches, mr)
		if !mr.Deterministic {
			result.AllDeterministic = false
		}
	}

	if opts.Format == "json" {
		if err := json.NewEncoder(cmd.OutOrStdout()).Encode(result); err != nil {
			return WrapExitError(ExitCommandError, "failed to encode output", err)
		}
	} else {
		outputReplayText(cmd, result)
	}

	if !result.AllDeterministic {
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

// replayAndVerifyMatch projects a match's log twice and compares.
func replayAndVerifyMatch(ctx context.Context, st *store.Store, m store.Match) (ReplayMatchResult, error) {
	all, err := st.Events(ctx, m.ID, true)
	if err != nil {
		return ReplayMatchResult{}, err
	}

	live := make([]event.Event, 0, len(all))
	undone := 0
	for _, ev := range all {
		if ev.IsUndone {
			undone++
			continue
		}
		live = append(live, ev)
	}

	first := projection.Project(live, nil)
	second := projection.Project(live, nil)

	return ReplayMatchResult{
		MatchID:       m.ID,
		Name:          m.Name,
		Events:        len(all),
		UndoneEvents:  undone,
		GamesP1:       first.PlayerOneGames,
		GamesP2:       first.PlayerTwoGames,
		ScoreP1:       first.PlayerOneScore,
		ScoreP2:       first.PlayerTwoScore,
		Deterministic: reflect.DeepEqual(first, second),
	}, nil
}

func outputReplayText(cmd *cobra.Command, result ReplayResult) {
	out := cmd.OutOrStdout()

	if result.TotalMatches == 0 {
		fmt.Fprintln(out, "No matches found in database.")
		return
	}

	for _, m := range result.Matches {
		status := "ok"
		if !m.Deterministic {
			status = "MISMATCH"
		}
		fmt.Fprintf(out, "%s  %-20s  events=%d (undone=%d)  games=%d-%d  score=%d-%d  [%s]\n",
			m.MatchID, m.Name, m.Events, m.UndoneEvents,
			m.GamesP1, m.GamesP2, m.ScoreP1, m.ScoreP2, status)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\n%d match(es), deterministic: %v\n",
		result.TotalMatches, result.AllDeterministic)
}
