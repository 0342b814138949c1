package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gogotex/gogotex/backend/notary-service/internal/app"
)

// connect builds the app and waits for the ledger to bind.
func connect(ctx context.Context) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := a.BindLedger(ctx); err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("ledger: %w", err)
	}
	return a, nil
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "verify <fingerprint>...",
		Short: "Verify documents against their content and the ledger",
		Long: `Verify recomputes each document's fingerprint from stored content,
checks its notarization on the ledger, and records the verification time.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			a, err := connect(ctx)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())
			return printJSON(cmd.OutOrStdout(), a.Documents.BatchVerify(ctx, args))
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall deadline")
	return cmd
}

// NewReputationCommand creates the reputation command.
func NewReputationCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reputation <address>",
		Short: "Show a notary's stake state and reputation score",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			a, err := connect(ctx)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())
			st, err := a.Notaries.Statistics(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), st)
		},
	}
	return cmd
}
