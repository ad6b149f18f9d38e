package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wicaksana/slidesense/internal/match"
	"github.com/wicaksana/slidesense/pkg/control"
)

// errConsoleClosed signals a clean console exit (EOF or /quit).
var errConsoleClosed = errors.New("app: console closed")

// defaultConsoleUser is the user id used until /user switches it.
const defaultConsoleUser = "console"

// runConsole reads utterances line by line and routes them through the
// session manager, printing each decision. Lines starting with "/" are
// commands:
//
//	/user <id>       switch the active speaker
//	/correct <id>    redirect the last decision to a command
//	/stats [id]      print folded analytics aggregates
//	/quit            exit
func (a *App) runConsole(ctx context.Context) error {
	out := a.consoleOut
	fmt.Fprintln(out, "slidesense console — speak a command, /quit to exit")

	// Scanning happens in its own goroutine so a blocked read cannot keep
	// the run group alive past cancellation.
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(a.consoleIn)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	userID := defaultConsoleUser
	for {
		var raw string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("app: read console: %w", err)
					}
				default:
				}
				return errConsoleClosed
			}
			raw = l
		}

		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := a.consoleCommand(ctx, line, &userID)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
			if quit {
				return errConsoleClosed
			}
			continue
		}

		res, err := a.sessions.Handle(ctx, userID, control.Transcript{Text: line})
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		switch {
		case res.CoolingDown:
			fmt.Fprintln(out, "… (cooldown)")
		case res.AwaitingConfirmation:
			fmt.Fprintf(out, "did you mean %q? say yes to confirm\n", res.Decision.CommandID)
		case res.Decision.Outcome == match.OutcomeRejected:
			fmt.Fprintln(out, "didn't catch that")
		default:
			fmt.Fprintf(out, "%s (%.2f via %s)\n",
				res.Decision.CommandID, res.Decision.Confidence, res.Decision.Source)
		}
	}
}

func (a *App) consoleCommand(ctx context.Context, line string, userID *string) (quit bool, err error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true, nil

	case "/user":
		if len(fields) != 2 {
			return false, errors.New("usage: /user <id>")
		}
		*userID = fields[1]
		fmt.Fprintf(a.consoleOut, "speaking as %s\n", *userID)

	case "/correct":
		if len(fields) != 2 {
			return false, errors.New("usage: /correct <command_id>")
		}
		if !a.sessions.Correct(ctx, *userID, fields[1]) {
			return false, errors.New("nothing to correct yet")
		}
		fmt.Fprintf(a.consoleOut, "corrected to %s\n", fields[1])

	case "/stats":
		if a.recorder == nil {
			return false, errors.New("analytics disabled")
		}
		commandID := ""
		if len(fields) == 2 {
			commandID = fields[1]
		}
		s, err := a.recorder.Stats(ctx, commandID)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(a.consoleOut, "attempts=%d accepted=%d hit_rate=%.2f mean_confidence=%.2f mean_latency=%s\n",
			s.Attempts, s.Accepted, s.HitRate, s.MeanConfidence, s.MeanLatency)

	default:
		return false, fmt.Errorf("unknown command %s", fields[0])
	}
	return false, nil
}
