package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/hupe1980/agentdesk/core"
	"github.com/hupe1980/agentdesk/supervisor"
	"github.com/spf13/cobra"
)

var (
	sessionID string
	showTrace bool
)

var askCmd = &cobra.Command{
	Use:   "ask <request>",
	Short: "Answer a single request",
	Long: `Run one request through the supervisor and print the final answer.

Example:
  agentdesk ask "what is due this week, and block an hour tomorrow for it"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&sessionID, "session", "", "session id to continue (default: new session)")
	askCmd.Flags().BoolVar(&showTrace, "trace", false, "print supervisor and worker messages")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	desk, _, err := openDesk(ctx)
	if err != nil {
		return err
	}
	defer desk.Close()

	if sessionID == "" {
		sessionID = core.NewID()
	}

	res, err := desk.Ask(ctx, sessionID, strings.Join(args, " "))
	if showTrace {
		printTrace(res)
	}
	if err != nil {
		return err
	}

	printAnswer(res)
	return nil
}

func printAnswer(res supervisor.Result) {
	if res.Reason == supervisor.TerminationMaxCycles {
		fmt.Println(color.YellowString(res.Answer))
		return
	}
	fmt.Println(res.Answer)
}

// printTrace writes the run's intermediate messages to stderr so stdout
// carries only the answer.
func printTrace(res supervisor.Result) {
	if res.RunID == "" {
		return
	}

	supervisorColor := color.New(color.FgCyan)
	workerColor := color.New(color.FgYellow)

	for _, m := range res.Messages {
		author := m.Author()
		c := workerColor
		if author == supervisor.Name {
			c = supervisorColor
		}
		fmt.Fprintf(os.Stderr, "%s %s\n", c.Sprintf("[%s]", author), m.Text())
	}
	fmt.Fprintln(os.Stderr, color.New(color.Faint).Sprintf(
		"run %s: %d cycles, %d worker calls, %s", res.RunID, res.Cycles, res.WorkerCalls, res.Duration.Round(time.Millisecond)))
}
