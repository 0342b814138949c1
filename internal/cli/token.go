package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gogotex/gogotex/backend/notary-service/internal/tokens"
)

// NewTokenCommand creates the token command, which mints an operator token
// signed with OPERATOR_JWT_SECRET.
func NewTokenCommand() *cobra.Command {
	var (
		subject string
		issuer  string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an operator bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("OPERATOR_JWT_SECRET")
			if secret == "" {
				return errors.New("OPERATOR_JWT_SECRET is not set")
			}
			iss, err := tokens.NewIssuer(secret, issuer)
			if err != nil {
				return err
			}
			tok, err := iss.Issue(subject, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject")
	cmd.Flags().StringVar(&issuer, "issuer", "notaryd", "token issuer, must match OPERATOR_JWT_ISSUER")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
