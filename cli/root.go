// Package cli provides the termstore command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/stevemurr/termstore/config"
	"github.com/stevemurr/termstore/document"
	"github.com/stevemurr/termstore/engine"
	"github.com/stevemurr/termstore/logging"
)

// Version is set at build time with -ldflags "-X".
var Version = "dev"

type rootOptions struct {
	configPath string
	logLevel   string
}

// NewRootCmd creates the root command for the termstore CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "termstore",
		Short: "Document store with exact-match term indexes",
		Long: `termstore keeps schemaless documents in named collections and maintains
term indexes that answer exact-match lookups on a fixed set of fields.

Run 'termstore serve' to start the HTTP API, or use the document commands
to work on the configured store directly.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.SetVersionTemplate("termstore version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to config file (default: ./"+config.DefaultFile+" if present)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newCreateCmd(opts))
	cmd.AddCommand(newGetCmd(opts))
	cmd.AddCommand(newUpdateCmd(opts))
	cmd.AddCommand(newDeleteCmd(opts))
	cmd.AddCommand(newListCmd(opts))
	cmd.AddCommand(newMatchCmd(opts))
	cmd.AddCommand(newReindexCmd(opts))
	cmd.AddCommand(newVerifyCmd(opts))
	cmd.AddCommand(newConfigCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// load resolves the configuration and a logger writing to the command's
// error stream.
func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	logger, err := logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// open loads the configuration and opens the engine it describes. The caller
// closes the engine.
func (o *rootOptions) open(cmd *cobra.Command) (*engine.Engine, error) {
	cfg, logger, err := o.load(cmd)
	if err != nil {
		return nil, err
	}
	return engine.Open(cmd.Context(), cfg, logger)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parsePayload(arg string) (document.Payload, error) {
	var p document.Payload
	if err := json.Unmarshal([]byte(arg), &p); err != nil {
		return nil, fmt.Errorf("invalid JSON payload: %w", err)
	}
	return p, nil
}
