package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dman-os/townframe-sub000/crdtjson/crdtstorage"
	"github.com/dman-os/townframe-sub000/internal/server"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the documents over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = rootOpts.config.HTTPAddr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return rootOpts.withStorage(ctx, func(storage crdtstorage.Storage) error {
				cfg := rootOpts.config.Storage
				logger.Infow("serving documents",
					"addr", addr, "pubsub", cfg.PubSub, "persistence", cfg.Persistence)
				return server.New(storage, addr).Run(ctx)
			})
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address (overrides config)")
	return cmd
}
