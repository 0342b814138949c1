// Package ledger is the typed boundary to the external ledger. The ledger is a
// black box reached by request/response: Call submits a state change and
// returns a receipt, Query reads state.
package ledger

import (
	"context"
	"time"

	"github.com/gogotex/gogotex/backend/notary-service/internal/models"
)

// Ledger method names.
const (
	MethodRequiredStake   = "required-stake"
	MethodSlashPercentage = "slash-percentage"
	MethodDocument        = "document"
	MethodNotary          = "notary"
	MethodUserDocuments   = "user-documents"

	MethodRegisterNotary   = "register-notary"
	MethodRegisterDocument = "register-document"
	MethodNotarizeDocument = "notarize-document"
	MethodSlashNotary      = "slash-notary"
	MethodWithdrawStake    = "withdraw-stake"
	MethodAddStake         = "add-stake"
	MethodDeactivateNotary = "deactivate-notary"
)

// Request is one state-changing submission. Value carries the attached stake
// for payable methods and is empty otherwise.
type Request struct {
	Method string   `json:"method"`
	Args   []string `json:"args"`
	From   string   `json:"from,omitempty"`
	Value  string   `json:"value,omitempty"`
}

// Receipt is the ledger's answer to an accepted submission.
type Receipt struct {
	Success bool   `json:"success"`
	TxHash  string `json:"txHash"`
	Height  int64  `json:"height"`
}

// Gateway is implemented by the JSON-RPC transport and the in-process simulator.
type Gateway interface {
	Call(ctx context.Context, req Request) (*Receipt, error)
	Query(ctx context.Context, method string, args []string, out interface{}) error
}

// DocumentRecord is the ledger view of a document.
type DocumentRecord struct {
	Exists         bool      `json:"exists"`
	ContentAddress string    `json:"contentAddress"`
	Name           string    `json:"name"`
	Owner          string    `json:"owner"`
	Timestamp      time.Time `json:"timestamp"`
	Notarized      bool      `json:"notarized"`
	Notaries       []string  `json:"notaries"`
}

// NotaryRecord is the ledger view of a notary.
type NotaryRecord struct {
	Registered              bool          `json:"registered"`
	Address                 string        `json:"address"`
	Name                    string        `json:"name"`
	Active                  bool          `json:"active"`
	Stake                   models.Amount `json:"stake"`
	SuccessfulNotarizations int64         `json:"successfulNotarizations"`
	SlashedCount            int64         `json:"slashedCount"`
	RegisteredAt            time.Time     `json:"registeredAt"`
}
