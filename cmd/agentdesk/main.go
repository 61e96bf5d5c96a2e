// Command agentdesk routes natural-language requests to Google Tasks and
// Google Calendar workers through a supervisor model.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
