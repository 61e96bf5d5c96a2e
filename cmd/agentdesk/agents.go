package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/hupe1980/agentdesk/agent"
	"github.com/spf13/cobra"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the loaded workers",
	Long: `Load the agents file and show every worker with its tools, followed by
the entries that were skipped and why.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		desk, cfg, err := openDesk(cmd.Context())
		if err != nil {
			return err
		}
		defer desk.Close()

		workers := desk.Workers()
		fmt.Printf("%s (%d workers)\n", cfg.AgentsFile, workers.Len())

		for _, w := range workers.List() {
			fmt.Printf("  %s  %s\n", color.CyanString(w.Name()), w.Description())
			if ma, ok := w.(*agent.ModelAgent); ok && len(ma.Tools()) > 0 {
				for _, t := range ma.Tools() {
					fmt.Printf("      - %s\n", t)
				}
			}
		}

		if skipped := workers.Skipped(); len(skipped) > 0 {
			fmt.Println(color.YellowString("skipped:"))
			for _, d := range skipped {
				fmt.Printf("  %s\n", d)
			}
		}
		return nil
	},
}
