package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sstrand/matchpoint/internal/config"
	"github.com/sstrand/matchpoint/internal/relay"
	"github.com/sstrand/matchpoint/internal/syncproto"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	PhoneURL string
}

// watchCommands maps console input to wire commands.
var watchCommands = map[string]syncproto.Command{
	"p1":        syncproto.CmdIncrementP1,
	"p2":        syncproto.CmdIncrementP2,
	"highlight": syncproto.CmdHighlight,
	"endgame":   syncproto.CmdEndGame,
	"endmatch":  syncproto.CmdEndMatch,
	"sync":      syncproto.CmdRequestSync,
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run an interactive watch-side client",
		Long: `Connect to a scoring server as a secondary (watch) device.

The client mirrors the server's snapshots and issues commands typed on
stdin. It holds no authoritative state: every displayed score comes from
the last snapshot the server delivered.

Commands: p1, p2, highlight, endgame, endmatch, sync, score, quit

Example:
  matchpoint watch --phone http://10.0.0.4:8484`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.PhoneURL, "phone", "", "scoring server base URL (overrides config)")

	return cmd
}

func runWatch(opts *WatchOptions, cmd *cobra.Command) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.PhoneURL != "" {
		cfg.PhoneURL = opts.PhoneURL
	}

	logLevel, err := cfg.Level()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	client := relay.NewClient(cfg.PhoneURL)
	if err := client.Connect(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to connect", err)
	}
	defer client.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Connected to %s. Commands: p1 p2 highlight endgame endmatch sync score quit\n", cfg.PhoneURL)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			lines <- strings.ToLower(strings.TrimSpace(scanner.Text()))
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			switch line {
			case "", "score":
				printCachedScore(out, client.Session())
			case "quit", "exit":
				return nil
			default:
				wire, known := watchCommands[line]
				if !known {
					fmt.Fprintf(out, "unknown command %q\n", line)
					continue
				}
				if err := client.SendCommand(ctx, wire); err != nil {
					if errors.Is(err, syncproto.ErrActionInFlight) {
						fmt.Fprintln(out, "previous action still pending, try again shortly")
						continue
					}
					fmt.Fprintf(out, "send failed: %v\n", err)
				}
			}
		}
	}
}

// printCachedScore renders the last observed snapshot, if any.
func printCachedScore(out io.Writer, session *syncproto.Session) {
	snap := session.Cached()
	if snap == nil {
		fmt.Fprintln(out, "no snapshot received yet")
		return
	}

	p1, p2 := snap.PlayerOneName, snap.PlayerTwoName
	if p1 == "" {
		p1 = "player 1"
	}
	if p2 == "" {
		p2 = "player 2"
	}

	fmt.Fprintf(out, "%s %d - %d %s (games %d-%d)",
		p1, snap.PlayerOneScore, snap.PlayerTwoScore, p2,
		snap.PlayerOneGames, snap.PlayerTwoGames)
	if snap.IsRecording {
		fmt.Fprintf(out, " serving: %s", snap.ServingPlayer)
	}
	if snap.HasPendingHighlight {
		fmt.Fprint(out, " [highlight pending]")
	}
	fmt.Fprintln(out)
}
