package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/hupe1980/agentdesk/core"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive session",
	Long: `Read requests from stdin and answer each one. The whole conversation
shares one session, so later requests can refer to earlier answers.
Type "exit" or press Ctrl-D to leave.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&sessionID, "session", "", "session id to continue (default: new session)")
	chatCmd.Flags().BoolVar(&showTrace, "trace", false, "print supervisor and worker messages")
}

func runChat(cmd *cobra.Command, _ []string) error {
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

	prompt := color.New(color.FgGreen, color.Bold)
	fmt.Printf("session %s, workers: %s\n", sessionID, strings.Join(desk.Workers().Names(), ", "))

	scanner := bufio.NewScanner(os.Stdin)
	for {
		prompt.Print("you> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}

		text := strings.TrimSpace(scanner.Text())
		switch text {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		res, err := desk.Ask(ctx, sessionID, text)
		if showTrace {
			printTrace(res)
		}
		if err != nil {
			if errors.Is(err, ctx.Err()) {
				return nil
			}
			fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
			continue
		}
		printAnswer(res)
	}
}
