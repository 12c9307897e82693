// Package cli implements the crdtjson command.
package cli

import (
	"context"
	"fmt"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"

	"github.com/dman-os/townframe-sub000/crdtjson/crdtstorage"
	"github.com/dman-os/townframe-sub000/internal/config"
)

var logger = logging.Logger("cli")

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	EnvFile    string
	LogLevel   string

	// config is loaded by PersistentPreRunE.
	config *config.Config
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "crdtjson",
		Short: "Replicated JSON documents",
		Long: `Store JSON values in replicated documents. Every write is reconciled against the
current document so that only the changed fields are written and list items keep
their identity.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.ConfigPath, opts.EnvFile)
			if err != nil {
				return err
			}
			if opts.LogLevel != "" {
				cfg.LogLevel = opts.LogLevel
			}
			if err := cfg.ApplyLogLevel(); err != nil {
				return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
			}
			opts.config = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env", ".env", "path to a .env file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (overrides config)")

	cmd.AddCommand(NewPutCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

// withStorage opens the configured storage, runs fn and closes the storage.
func (o *RootOptions) withStorage(ctx context.Context, fn func(crdtstorage.Storage) error) error {
	storage, err := crdtstorage.NewStorage(ctx, o.config.StorageOptions())
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}

	runErr := fn(storage)
	if err := storage.Close(); err != nil {
		logger.Warnf("failed to close storage: %v", err)
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}
