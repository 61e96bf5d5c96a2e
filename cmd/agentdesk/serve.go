package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/hupe1980/agentdesk/server"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Long: `Start an HTTP server exposing POST /v1/ask, GET /v1/agents,
GET /v1/sessions/{id}/messages, GET /healthz and GET /metrics.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		desk, cfg, err := openDesk(ctx)
		if err != nil {
			return err
		}
		defer desk.Close()

		addr := cfg.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}

		srv := server.New(desk, func(o *server.Options) {
			o.Workers = desk.Workers().Names()
			o.Store = desk.Store()
			o.Metrics = desk.Metrics()
			o.Logger = desk.Logger()
		})

		return srv.ListenAndServe(ctx, addr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
}
