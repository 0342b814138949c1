package document

import "time"

// Document is the cache projection of a registered document. The ledger record
// keyed by ContentAddress is authoritative; this copy adds the fingerprint index
// and verification bookkeeping.
type Document struct {
	Fingerprint      string     `json:"fingerprint" bson:"_id"`
	ContentAddress   string     `json:"contentAddress" bson:"contentAddress"`
	Owner            string     `json:"owner" bson:"owner"`
	Name             string     `json:"name" bson:"name"`
	RegisteredAt     time.Time  `json:"registeredAt" bson:"registeredAt"`
	Notarized        bool       `json:"notarized" bson:"notarized"`
	NotaryIdentities []string   `json:"notaryIdentities" bson:"notaryIdentities"`
	LastVerifiedAt   *time.Time `json:"lastVerifiedAt,omitempty" bson:"lastVerifiedAt,omitempty"`
	TxHash           string     `json:"txHash,omitempty" bson:"txHash,omitempty"`
}

// HasNotary reports whether addr already notarized the document.
func (d *Document) HasNotary(addr string) bool {
	for _, n := range d.NotaryIdentities {
		if n == addr {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to hand out of a repository.
func (d *Document) Clone() *Document {
	c := *d
	c.NotaryIdentities = append([]string(nil), d.NotaryIdentities...)
	if d.LastVerifiedAt != nil {
		t := *d.LastVerifiedAt
		c.LastVerifiedAt = &t
	}
	return &c
}

// VerificationStatus is the outcome of the three independent checks. A failed
// check degrades its field to false and records why in the matching *Error.
type VerificationStatus struct {
	Fingerprint       string    `json:"fingerprint"`
	ContentAddress    string    `json:"contentAddress"`
	Name              string    `json:"name"`
	NotaryCount       int       `json:"notaryCount"`
	HashMatches       bool      `json:"hashMatches"`
	NotarizedOnChain  bool      `json:"notarizedOnChain"`
	ContentAvailable  bool      `json:"contentAvailable"`
	HashError         string    `json:"hashError,omitempty"`
	ChainError        string    `json:"chainError,omitempty"`
	AvailabilityError string    `json:"availabilityError,omitempty"`
	CheckedAt         time.Time `json:"checkedAt"`
}

// Partial is true when at least one check could not be completed.
func (s VerificationStatus) Partial() bool {
	return s.HashError != "" || s.ChainError != "" || s.AvailabilityError != ""
}

// Verified is the aggregate answer: availability is informational only.
func (s VerificationStatus) Verified() bool {
	return s.NotarizedOnChain && s.HashMatches
}

// VerificationResult is one entry of a batch verification.
type VerificationResult struct {
	Fingerprint string              `json:"fingerprint"`
	Verified    bool                `json:"verified"`
	Message     string              `json:"message"`
	Status      *VerificationStatus `json:"status,omitempty"`
}
