package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sstrand/matchpoint/internal/event"
	"github.com/sstrand/matchpoint/internal/projection"
	"github.com/sstrand/matchpoint/internal/serving"
	"github.com/sstrand/matchpoint/internal/store"
)

// MatchesOptions holds flags for the matches command.
type MatchesOptions struct {
	*RootOptions
	Database string
	Stats    bool
}

// MatchSummary is one row of the matches listing.
type MatchSummary struct {
	MatchID   string      `json:"match_id"`
	Name      string      `json:"name"`
	PlayerOne string      `json:"player_one"`
	PlayerTwo string      `json:"player_two"`
	Games     string      `json:"games"`
	Winner    string      `json:"winner,omitempty"`
	StartedAt time.Time   `json:"started_at"`
	Active    bool        `json:"active"`
	Stats     []GameStats `json:"stats,omitempty"`
}

// GameStats holds per-game serve statistics.
type GameStats struct {
	GameNumber      int    `json:"game_number"`
	Score           string `json:"score"`
	FirstServer     string `json:"first_server"`
	PlayerOneServes int    `json:"player_one_serves"`
	PlayerTwoServes int    `json:"player_two_serves"`
}

// NewMatchesCommand creates the matches command.
func NewMatchesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MatchesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "matches",
		Short: "List stored matches",
		Long: `List stored matches, newest first.

With --stats, each match's event log is re-projected to report per-game
serve counts.

Examples:
  matchpoint matches --db ./matchpoint.db
  matchpoint matches --db ./matchpoint.db --stats --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMatches(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().BoolVar(&opts.Stats, "stats", false, "include per-game serve statistics")

	return cmd
}

func runMatches(opts *MatchesOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	matches, err := st.Matches(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list matches", err)
	}

	summaries := make([]MatchSummary, 0, len(matches))
	for _, m := range matches {
		s := MatchSummary{
			MatchID:   m.ID,
			Name:      m.Name,
			PlayerOne: m.PlayerOne,
			PlayerTwo: m.PlayerTwo,
			Games:     fmt.Sprintf("%d-%d", m.PlayerOneGames, m.PlayerTwoGames),
			StartedAt: m.StartedAt,
			Active:    m.IsActive,
		}
		if m.Winner != event.PlayerNone {
			s.Winner = m.Winner.String()
		}
		if opts.Stats {
			stats, err := matchStats(ctx, st, m.ID)
			if err != nil {
				return WrapExitError(ExitCommandError, fmt.Sprintf("failed to compute stats for %s", m.ID), err)
			}
			s.Stats = stats
		}
		summaries = append(summaries, s)
	}

	if opts.Format == "json" {
		if err := json.NewEncoder(cmd.OutOrStdout()).Encode(summaries); err != nil {
			return WrapExitError(ExitCommandError, "failed to encode output", err)
		}
		return nil
	}

	out := cmd.OutOrStdout()
	if len(summaries) == 0 {
		fmt.Fprintln(out, "No matches found in database.")
		return nil
	}
	for _, s := range summaries {
		marker := " "
		if s.Active {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %s  %-20s  %s vs %s  games %s", marker, s.MatchID, s.Name, s.PlayerOne, s.PlayerTwo, s.Games)
		if s.Winner != "" {
			fmt.Fprintf(out, "  winner %s", s.Winner)
		}
		fmt.Fprintln(out)
		for _, g := range s.Stats {
			fmt.Fprintf(out, "    game %d: %s, first server %s, serves %d-%d\n",
				g.GameNumber, g.Score, g.FirstServer, g.PlayerOneServes, g.PlayerTwoServes)
		}
	}
	return nil
}

// matchStats re-projects the match and derives serve counts per game,
// including the in-progress game for an active match.
func matchStats(ctx context.Context, st *store.Store, matchID string) ([]GameStats, error) {
	events, err := st.Events(ctx, matchID, false)
	if err != nil {
		return nil, err
	}
	state := projection.Project(events, nil)

	stats := make([]GameStats, 0, len(state.CompletedGames)+1)
	for _, g := range state.CompletedGames {
		p1, p2 := serving.ServeCounts(g.FirstServer, pointScorers(g.Points))
		stats = append(stats, GameStats{
			GameNumber:      g.GameNumber,
			Score:           fmt.Sprintf("%d-%d", g.PlayerOneScore, g.PlayerTwoScore),
			FirstServer:     g.FirstServer.String(),
			PlayerOneServes: p1,
			PlayerTwoServes: p2,
		})
	}
	if len(state.CurrentGamePoints) > 0 {
		p1, p2 := serving.ServeCounts(state.CurrentGameFirstServer, pointScorers(state.CurrentGamePoints))
		stats = append(stats, GameStats{
			GameNumber:      state.CurrentGameNumber(),
			Score:           fmt.Sprintf("%d-%d", state.PlayerOneScore, state.PlayerTwoScore),
			FirstServer:     state.CurrentGameFirstServer.String(),
			PlayerOneServes: p1,
			PlayerTwoServes: p2,
		})
	}
	return stats, nil
}

func pointScorers(points []projection.PointRecord) []event.Player {
	players := make([]event.Player, len(points))
	for i, p := range points {
		players[i] = p.Player
	}
	return players
}
