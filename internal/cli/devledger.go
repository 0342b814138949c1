package cli

import (
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/gogotex/gogotex/backend/notary-service/internal/ledger"
	"github.com/gogotex/gogotex/backend/notary-service/pkg/logger"
)

// NewDevLedgerCommand creates the devledger command, a JSON-RPC ledger backed
// by the in-process simulator for local stacks and integration tests.
func NewDevLedgerCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "devledger",
		Short: "Serve a simulated ledger over JSON-RPC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			srv := &http.Server{
				Addr:              addr,
				Handler:           ledger.RPCHandler(ledger.NewSimulator()),
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				<-cmd.Context().Done()
				_ = srv.Close()
			}()
			logger.Warnf("devledger: simulated ledger on %s, state is lost on exit", addr)
			if err := srv.ListenAndServe(); err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:26657", "listen address")
	return cmd
}
