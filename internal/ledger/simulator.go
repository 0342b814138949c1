package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gogotex/gogotex/backend/notary-service/internal/apperr"
	"github.com/gogotex/gogotex/backend/notary-service/internal/models"
)

// DefaultRequiredStake is one whole coin in its smallest unit (10^18).
var DefaultRequiredStake = models.NewAmount(1_000_000_000_000_000_000)

const DefaultSlashPercentage = 10

// Simulator is an in-process ledger applying the notary contract rules. It
// backs LEDGER_DEV mode and the package tests across the module.
type Simulator struct {
	mu        sync.Mutex
	stake     models.Amount
	slashPct  int64
	height    int64
	documents map[string]*DocumentRecord
	userDocs  map[string][]string
	notaries  map[string]*NotaryRecord
	failures  map[string][]error
	calls     map[string]int
	now       func() time.Time
}

func NewSimulator() *Simulator {
	return &Simulator{
		stake:     DefaultRequiredStake,
		slashPct:  DefaultSlashPercentage,
		documents: make(map[string]*DocumentRecord),
		userDocs:  make(map[string][]string),
		notaries:  make(map[string]*NotaryRecord),
		failures:  make(map[string][]error),
		calls:     make(map[string]int),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// FailNext makes the next call to method return err before touching state.
func (s *Simulator) FailNext(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = append(s.failures[method], err)
}

// Calls reports how many times method reached the simulator.
func (s *Simulator) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func (s *Simulator) injected(method string) error {
	s.calls[method]++
	q := s.failures[method]
	if len(q) == 0 {
		return nil
	}
	s.failures[method] = q[1:]
	return q[0]
}

func (s *Simulator) Call(ctx context.Context, req Request) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.Upstream(req.Method, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(req.Method); err != nil {
		return nil, err
	}
	if err := s.apply(req); err != nil {
		return nil, err
	}
	s.height++
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d/%s/%v/%s", s.height, req.Method, req.Args, req.From)))
	return &Receipt{Success: true, TxHash: "0x" + hex.EncodeToString(sum[:]), Height: s.height}, nil
}

func (s *Simulator) apply(req Request) error {
	arg := func(i int) string {
		if i < len(req.Args) {
			return req.Args[i]
		}
		return ""
	}
	switch req.Method {
	case MethodRegisterNotary:
		value, err := models.ParseAmount(req.Value)
		if err != nil {
			return apperr.Wrap(apperr.ErrInvalidInput, "stake value: %v", err)
		}
		if !value.Equal(s.stake) {
			return apperr.Wrap(apperr.ErrStakeMismatch, "sent %s, required %s", value, s.stake)
		}
		if n, ok := s.notaries[req.From]; ok && n.Active {
			return apperr.Wrap(apperr.ErrAlreadyRegistered, "%s", req.From)
		}
		s.notaries[req.From] = &NotaryRecord{Registered: true, Address: req.From, Name: arg(0), Active: true, Stake: value, RegisteredAt: s.now()}

	case MethodRegisterDocument:
		cid := arg(0)
		if cid == "" {
			return apperr.Wrap(apperr.ErrInvalidInput, "content address required")
		}
		if _, ok := s.documents[cid]; ok {
			return apperr.Wrap(apperr.ErrDuplicateFingerprint, "%s", cid)
		}
		s.documents[cid] = &DocumentRecord{Exists: true, ContentAddress: cid, Name: arg(1), Owner: req.From, Timestamp: s.now()}
		s.userDocs[req.From] = append(s.userDocs[req.From], cid)

	case MethodNotarizeDocument:
		d, ok := s.documents[arg(0)]
		if !ok {
			return apperr.Wrap(apperr.ErrDocumentNotFound, "%s", arg(0))
		}
		n, ok := s.notaries[req.From]
		if !ok || !n.Active {
			return apperr.Wrap(apperr.ErrNotaryInactive, "%s", req.From)
		}
		d.Notarized = true
		if !contains(d.Notaries, req.From) {
			d.Notaries = append(d.Notaries, req.From)
		}
		n.SuccessfulNotarizations++

	case MethodSlashNotary:
		n, ok := s.notaries[arg(0)]
		if !ok {
			return apperr.Wrap(apperr.ErrNotaryNotFound, "%s", arg(0))
		}
		if !n.Active {
			return apperr.Wrap(apperr.ErrNotaryInactive, "%s", arg(0))
		}
		n.Stake = n.Stake.ReduceByPercent(s.slashPct)
		n.SlashedCount++
		if n.Stake.Less(s.stake.Half()) {
			n.Active = false
		}

	case MethodWithdrawStake:
		n, ok := s.notaries[req.From]
		if !ok {
			return apperr.Wrap(apperr.ErrNotaryNotFound, "%s", req.From)
		}
		if n.Active {
			return apperr.Wrap(apperr.ErrNotaryActive, "%s", req.From)
		}
		if n.Stake.IsZero() {
			return apperr.Wrap(apperr.ErrNoStakeToWithdraw, "%s", req.From)
		}
		n.Stake = models.Amount{}

	case MethodAddStake:
		n, ok := s.notaries[req.From]
		if !ok {
			return apperr.Wrap(apperr.ErrNotaryNotFound, "%s", req.From)
		}
		value, err := models.ParseAmount(req.Value)
		if err != nil || value.IsZero() {
			return apperr.Wrap(apperr.ErrInvalidInput, "top-up value %q", req.Value)
		}
		n.Stake = n.Stake.Add(value)
		if !n.Stake.Less(s.stake) {
			n.Active = true
		}

	case MethodDeactivateNotary:
		n, ok := s.notaries[req.From]
		if !ok {
			return apperr.Wrap(apperr.ErrNotaryNotFound, "%s", req.From)
		}
		n.Active = false

	default:
		return apperr.Wrap(apperr.ErrInvalidInput, "unknown ledger method %q", req.Method)
	}
	return nil
}

func (s *Simulator) Query(ctx context.Context, method string, args []string, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return apperr.Upstream(method, err)
	}
	s.mu.Lock()
	if err := s.injected(method); err != nil {
		s.mu.Unlock()
		return err
	}
	v, err := s.read(method, args)
	var raw []byte
	if err == nil {
		// encode under the lock so callers never alias simulator state
		raw, err = json.Marshal(v)
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (s *Simulator) read(method string, args []string) (interface{}, error) {
	arg0 := ""
	if len(args) > 0 {
		arg0 = args[0]
	}
	switch method {
	case MethodRequiredStake:
		return s.stake, nil
	case MethodSlashPercentage:
		return strconv.FormatInt(s.slashPct, 10), nil
	case MethodDocument:
		if d, ok := s.documents[arg0]; ok {
			return d, nil
		}
		return DocumentRecord{ContentAddress: arg0}, nil
	case MethodNotary:
		if n, ok := s.notaries[arg0]; ok {
			return n, nil
		}
		return NotaryRecord{Address: arg0}, nil
	case MethodUserDocuments:
		return append([]string{}, s.userDocs[arg0]...), nil
	}
	return nil, apperr.Wrap(apperr.ErrInvalidInput, "unknown ledger query %q", method)
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
