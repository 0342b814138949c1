package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies failures for retry and transport mapping.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindState
	KindUpstream
	KindIntegrity
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindState:
		return "state"
	case KindUpstream:
		return "upstream"
	case KindIntegrity:
		return "integrity"
	}
	return "unknown"
}

// Error carries a Kind and an optional cause.
type Error struct {
	Kind Kind
	Code string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by code so wrapped copies compare equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

var byCode = map[string]*Error{}

func newSentinel(k Kind, code, msg string) *Error {
	e := &Error{Kind: k, Code: code, Msg: msg}
	byCode[code] = e
	return e
}

// FromCode rebuilds a sentinel-backed error from a code received over the wire.
// Unknown codes yield nil.
func FromCode(code, detail string) error {
	s, ok := byCode[code]
	if !ok {
		return nil
	}
	detail = strings.TrimPrefix(detail, s.Msg)
	detail = strings.TrimPrefix(detail, ": ")
	if detail == "" {
		return s
	}
	return Wrap(s, "%s", detail)
}

var (
	ErrInvalidAddressFormat = newSentinel(KindValidation, "INVALID_ADDRESS_FORMAT", "invalid content address format")
	ErrInvalidInput         = newSentinel(KindValidation, "INVALID_INPUT", "invalid input")
	ErrUnknownSlashReason   = newSentinel(KindValidation, "UNKNOWN_SLASH_REASON", "unknown slash reason")

	ErrStakeMismatch        = newSentinel(KindConflict, "STAKE_MISMATCH", "stake must equal the required stake")
	ErrAlreadyRegistered    = newSentinel(KindConflict, "ALREADY_REGISTERED", "notary already registered")
	ErrDuplicateFingerprint = newSentinel(KindConflict, "DUPLICATE_FINGERPRINT", "document already registered")
	ErrDoubleNotarization   = newSentinel(KindConflict, "DOUBLE_NOTARIZATION", "repeat notarization inside detection window")

	ErrNotaryNotFound   = newSentinel(KindNotFound, "NOTARY_NOT_FOUND", "notary not found")
	ErrDocumentNotFound = newSentinel(KindNotFound, "DOCUMENT_NOT_FOUND", "document not found")
	ErrContentNotFound  = newSentinel(KindNotFound, "CONTENT_NOT_FOUND", "content not found on any mirror")

	ErrNotaryInactive    = newSentinel(KindState, "NOTARY_INACTIVE", "notary is not active")
	ErrNotaryActive      = newSentinel(KindState, "NOTARY_ACTIVE", "active notaries cannot withdraw stake")
	ErrNoStakeToWithdraw = newSentinel(KindState, "NO_STAKE_TO_WITHDRAW", "no stake available to withdraw")

	ErrLedgerNotReady    = newSentinel(KindUpstream, "LEDGER_NOT_READY", "ledger gateway not ready")
	ErrLedgerUnavailable = newSentinel(KindUpstream, "LEDGER_UNAVAILABLE", "ledger gateway failed to initialize")

	ErrFingerprintMismatch = newSentinel(KindIntegrity, "FINGERPRINT_MISMATCH", "content fingerprint does not match")
)

// Wrap attaches detail to a sentinel while keeping errors.Is and KindOf working.
func Wrap(sentinel *Error, format string, args ...interface{}) error {
	return &Error{
		Kind: sentinel.Kind,
		Code: sentinel.Code,
		Msg:  sentinel.Msg + ": " + fmt.Sprintf(format, args...),
	}
}

// Upstream marks err as a ledger or content-store failure for op.
func Upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) && ae.Kind != KindUnknown {
		return err
	}
	return &Error{Kind: KindUpstream, Code: "UPSTREAM", Msg: op, Err: err}
}

// KindOf reports the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// CodeOf reports the machine-readable code of err, if any.
func CodeOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// Retryable is true only for upstream failures; everything else is deterministic.
func Retryable(err error) bool {
	return KindOf(err) == KindUpstream
}

// HTTPStatus maps err to a response code.
func HTTPStatus(err error) int {
	if errors.Is(err, ErrLedgerNotReady) || errors.Is(err, ErrLedgerUnavailable) {
		return http.StatusServiceUnavailable
	}
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindState:
		return http.StatusConflict
	case KindIntegrity:
		return http.StatusUnprocessableEntity
	case KindUpstream:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
