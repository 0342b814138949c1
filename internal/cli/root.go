// Package cli holds the notaryd command tree.
package cli

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/gogotex/gogotex/backend/notary-service/internal/config"
	"github.com/gogotex/gogotex/backend/notary-service/pkg/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Pretty bool
}

// NewRootCommand creates the notaryd root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "notaryd",
		Short: "Document notarization coordinator",
		Long: `notaryd registers documents, coordinates notaries and their stakes
against the ledger, and serves verification over HTTP.

Configuration comes from the environment and an optional .env file.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.Pretty {
				logger.SetPretty()
			}
		},
	}
	cmd.PersistentFlags().BoolVar(&opts.Pretty, "pretty", false, "human-readable console logs")

	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewVerifyCommand())
	cmd.AddCommand(NewReputationCommand())
	cmd.AddCommand(NewDevLedgerCommand())
	cmd.AddCommand(NewTokenCommand())
	return cmd
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger.Init(cfg.LogLevel)
	return cfg, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
