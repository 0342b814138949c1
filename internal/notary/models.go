package notary

import (
	"time"

	"github.com/gogotex/gogotex/backend/notary-service/internal/apperr"
	"github.com/gogotex/gogotex/backend/notary-service/internal/models"
)

// Notary is the cache projection of a staked notary.
type Notary struct {
	Address                 string        `json:"address" bson:"_id"`
	Name                    string        `json:"name" bson:"name"`
	Active                  bool          `json:"active" bson:"active"`
	StakeAmount             models.Amount `json:"stakeAmount" bson:"stakeAmount"`
	SuccessfulNotarizations int64         `json:"successfulNotarizations" bson:"successfulNotarizations"`
	SlashedCount            int64         `json:"slashedCount" bson:"slashedCount"`
	RegisteredAt            time.Time     `json:"registeredAt" bson:"registeredAt"`
	UpdatedAt               time.Time     `json:"updatedAt" bson:"updatedAt"`
}

func (n *Notary) Clone() *Notary {
	c := *n
	return &c
}

// State names the lifecycle position derived from the record.
type State string

const (
	StateUnregistered State = "unregistered"
	StateActive       State = "active"
	StateInactive     State = "inactive"
	StateWithdrawn    State = "withdrawn"
)

func StateOf(n *Notary) State {
	switch {
	case n == nil:
		return StateUnregistered
	case n.Active:
		return StateActive
	case n.StakeAmount.IsZero():
		return StateWithdrawn
	}
	return StateInactive
}

// Reason is the audit annotation attached to a slash.
type Reason string

const (
	ReasonDoubleNotarization Reason = "DOUBLE_NOTARIZATION"
	ReasonIntegrityViolation Reason = "INTEGRITY_VIOLATION"
	ReasonOperatorAction     Reason = "OPERATOR_ACTION"
)

// ParseReason accepts only the enumerated reasons.
func ParseReason(s string) (Reason, error) {
	switch r := Reason(s); r {
	case ReasonDoubleNotarization, ReasonIntegrityViolation, ReasonOperatorAction:
		return r, nil
	}
	return "", apperr.Wrap(apperr.ErrUnknownSlashReason, "%q", s)
}

// SlashEvent is the audit record of one applied slash.
type SlashEvent struct {
	ID             string        `json:"id" bson:"_id"`
	Notary         string        `json:"notary" bson:"notary"`
	ContentAddress string        `json:"contentAddress" bson:"contentAddress"`
	Reason         Reason        `json:"reason" bson:"reason"`
	StakeBefore    models.Amount `json:"stakeBefore" bson:"stakeBefore"`
	StakeAfter     models.Amount `json:"stakeAfter" bson:"stakeAfter"`
	Deactivated    bool          `json:"deactivated" bson:"deactivated"`
	TxHash         string        `json:"txHash" bson:"txHash"`
	At             time.Time     `json:"at" bson:"at"`
}

// Statistics is the read model served to callers.
type Statistics struct {
	Notary
	State           State   `json:"state"`
	ReputationScore float64 `json:"reputationScore"`
}
