// Package cli implements the salesdash command line: the HTTP server, file
// exports and cache warmup.
package cli

import (
	"errors"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/salesdash/salesdash/internal/app"
)

var version = "dev"

// runtime carries what every subcommand needs after PersistentPreRunE.
type runtime struct {
	cfg    *app.Config
	logger *slog.Logger
}

// NewRootCommand builds the salesdash command tree.
func NewRootCommand() *cobra.Command {
	rt := &runtime{}
	var envFile string

	root := &cobra.Command{
		Use:   "salesdash",
		Short: "Sales reporting dashboard over the Odoo ledger",
		Long: `salesdash reads invoices and sales orders from Odoo over XML-RPC and serves
sales listings, line dashboards with goal tracking, and spreadsheet exports.

Configuration comes from the environment; a .env file is loaded first when present.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			rt.cfg = cfg
			rt.logger = app.NewLogger(cfg)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file loaded before reading configuration")

	root.AddCommand(newServeCommand(rt), newExportCommand(rt), newWarmupCommand(rt), newJobsCommand(rt))
	return root
}
