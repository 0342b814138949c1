// Package service is the document coordination engine: registration,
// notarization with double-notarization detection, and multi-source
// verification.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gogotex/gogotex/backend/notary-service/internal/apperr"
	"github.com/gogotex/gogotex/backend/notary-service/internal/document"
	"github.com/gogotex/gogotex/backend/notary-service/internal/document/attempts"
	"github.com/gogotex/gogotex/backend/notary-service/internal/document/repository"
	"github.com/gogotex/gogotex/backend/notary-service/internal/fingerprint"
	"github.com/gogotex/gogotex/backend/notary-service/internal/ledger"
	"github.com/gogotex/gogotex/backend/notary-service/internal/notary"
	"github.com/gogotex/gogotex/backend/notary-service/internal/reconcile"
	"github.com/gogotex/gogotex/backend/notary-service/pkg/logger"
	"github.com/gogotex/gogotex/backend/notary-service/pkg/metrics"
)

const entity = "document"

// Ledger is the part of the ledger client this engine calls.
type Ledger interface {
	Document(ctx context.Context, cid string) (*ledger.DocumentRecord, error)
	UserDocuments(ctx context.Context, owner string) ([]string, error)
	RegisterDocument(ctx context.Context, owner, cid, name string) (*ledger.Receipt, error)
	NotarizeDocument(ctx context.Context, notary, cid string) (*ledger.Receipt, error)
}

// ContentStore holds the document bytes.
type ContentStore interface {
	Put(ctx context.Context, b []byte) (string, error)
	Get(ctx context.Context, addr string) ([]byte, error)
	Available(ctx context.Context, addr string) (bool, error)
}

// Notaries is the stake and slash engine as seen from here.
type Notaries interface {
	RequireActive(ctx context.Context, addr string) error
	RecordSuccess(ctx context.Context, addr string)
	Slash(ctx context.Context, addr, contentAddress string, reason notary.Reason) (*notary.SlashEvent, error)
}

type Options struct {
	// Quorum is the identity count at which the cached notarized flag flips.
	// 1 means the first successful notarization decides.
	Quorum int
	// StaleAfter is how old a verification may be before the document is due again.
	StaleAfter time.Duration
	// CheckTimeout bounds each verification sub-check.
	CheckTimeout time.Duration
	// BatchParallelism bounds concurrent items in BatchVerify.
	BatchParallelism int
}

type Service struct {
	ledger   Ledger
	store    ContentStore
	notaries Notaries
	repo     repository.Repository
	attempts attempts.Tracker
	rec      *reconcile.Reconciler
	opts     Options
	now      func() time.Time
}

func New(l Ledger, store ContentStore, notaries Notaries, repo repository.Repository, tracker attempts.Tracker, rec *reconcile.Reconciler, opts Options) *Service {
	if opts.Quorum < 1 {
		opts.Quorum = 1
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 24 * time.Hour
	}
	if opts.CheckTimeout <= 0 {
		opts.CheckTimeout = 30 * time.Second
	}
	if opts.BatchParallelism <= 0 {
		opts.BatchParallelism = 4
	}
	return &Service{
		ledger:   l,
		store:    store,
		notaries: notaries,
		repo:     repo,
		attempts: tracker,
		rec:      rec,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func parseFingerprint(fp string) (string, error) {
	d := fingerprint.Normalize(fp)
	if !fingerprint.ValidDigest(d) {
		return "", apperr.Wrap(apperr.ErrInvalidInput, "fingerprint %q is not a hex sha-256 digest", fp)
	}
	return string(d), nil
}

// Register stores content, registers its address on the ledger and caches the
// new document. content must hash to fp.
func (s *Service) Register(ctx context.Context, fp string, content []byte, name, owner string) (*document.Document, error) {
	fp, err := parseFingerprint(fp)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" || strings.TrimSpace(owner) == "" {
		return nil, apperr.Wrap(apperr.ErrInvalidInput, "name and owner are required")
	}
	if !fingerprint.Matches(fingerprint.Digest(fp), content) {
		return nil, apperr.Wrap(apperr.ErrFingerprintMismatch, "content does not hash to %s", fp)
	}
	release, err := s.rec.Lock(ctx, entity, fp)
	if err != nil {
		return nil, apperr.Upstream("register document", err)
	}
	defer release()

	if _, err := s.repo.Get(ctx, fp); err == nil {
		return nil, apperr.Wrap(apperr.ErrDuplicateFingerprint, "%s", fp)
	}

	cid, err := s.store.Put(ctx, content)
	if err != nil {
		return nil, err
	}
	if err := fingerprint.Validate(cid); err != nil {
		return nil, err
	}

	// a cache miss is not proof of absence; the ledger decides
	onChain, err := s.ledger.Document(ctx, cid)
	switch {
	case err == nil:
		s.healFromLedger(ctx, &document.Document{Fingerprint: fp, ContentAddress: cid, Owner: onChain.Owner, Name: onChain.Name, RegisteredAt: onChain.Timestamp}, onChain, false)
		return nil, apperr.Wrap(apperr.ErrDuplicateFingerprint, "%s already on ledger as %s", fp, cid)
	case apperr.KindOf(err) != apperr.KindNotFound:
		return nil, err
	}

	d := &document.Document{
		Fingerprint:      fp,
		ContentAddress:   cid,
		Owner:            owner,
		Name:             name,
		RegisteredAt:     s.now(),
		NotaryIdentities: []string{},
	}
	err = s.rec.WriteThrough(ctx, reconcile.Key(entity, fp), "register document",
		func(ctx context.Context) error {
			rc, err := s.ledger.RegisterDocument(ctx, owner, cid, name)
			if err == nil {
				d.TxHash = rc.TxHash
			}
			return err
		},
		s.mergeFunc(d))
	if err != nil {
		return nil, err
	}
	logger.Infof("document: registered %s as %s for %s", fp, cid, owner)
	return d.Clone(), nil
}

// Notarize records notaryAddr's notarization of fp. content, when given, must
// hash to fp. A repeat by the same notary inside the detection window slashes
// the notary and is rejected.
func (s *Service) Notarize(ctx context.Context, fp, notaryAddr string, content []byte) (*document.Document, error) {
	fp, err := parseFingerprint(fp)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(notaryAddr) == "" {
		return nil, apperr.Wrap(apperr.ErrInvalidInput, "notary address required")
	}
	if content != nil && !fingerprint.Matches(fingerprint.Digest(fp), content) {
		return nil, apperr.Wrap(apperr.ErrFingerprintMismatch, "supplied content does not hash to %s", fp)
	}
	release, err := s.rec.Lock(ctx, entity, fp)
	if err != nil {
		return nil, apperr.Upstream("notarize document", err)
	}
	defer release()

	doc, err := s.resolve(ctx, fp, content)
	if err != nil {
		return nil, err
	}
	cid := doc.ContentAddress
	if err := fingerprint.Validate(cid); err != nil {
		return nil, err
	}
	if err := s.notaries.RequireActive(ctx, notaryAddr); err != nil {
		return nil, err
	}

	repeat, err := s.attempts.Record(ctx, cid, notaryAddr)
	if err != nil {
		return nil, apperr.Upstream("record notarization attempt", err)
	}
	if repeat {
		logger.Warnf("document: %s notarized %s again inside the detection window, slashing", notaryAddr, cid)
		if _, serr := s.notaries.Slash(ctx, notaryAddr, cid, notary.ReasonDoubleNotarization); serr != nil {
			logger.Errorf("document: slashing %s for double notarization of %s failed: %v", notaryAddr, cid, serr)
			return nil, apperr.Wrap(apperr.ErrDoubleNotarization, "%s on %s (slash failed: %v)", notaryAddr, cid, serr)
		}
		return nil, apperr.Wrap(apperr.ErrDoubleNotarization, "%s on %s", notaryAddr, cid)
	}

	if _, err := s.ledger.NotarizeDocument(ctx, notaryAddr, cid); err != nil {
		// the ledger never accepted it, so a retry must not count as a repeat
		if ferr := s.attempts.Forget(ctx, cid, notaryAddr); ferr != nil {
			logger.Warnf("document: forget attempt %s/%s: %v", cid, notaryAddr, ferr)
		}
		return nil, err
	}

	out := doc.Clone()
	if !out.HasNotary(notaryAddr) {
		out.NotaryIdentities = append(out.NotaryIdentities, notaryAddr)
	}
	if len(out.NotaryIdentities) >= s.opts.Quorum {
		out.Notarized = true
	}
	first := true
	s.rec.Heal(ctx, reconcile.Key(entity, fp), "notarize document", func(ctx context.Context) error {
		if first {
			first = false
			_, err := s.repo.AddNotary(ctx, fp, notaryAddr, s.opts.Quorum)
			return err
		}
		return s.mergeFromLedger(ctx, doc)
	})
	s.notaries.RecordSuccess(ctx, notaryAddr)
	logger.Infof("document: %s notarized by %s (%d identities, notarized=%t)", fp, notaryAddr, len(out.NotaryIdentities), out.Notarized)
	return out, nil
}

// resolve finds the cached document; with content at hand a cache miss is
// healed from the ledger through the derived content address.
func (s *Service) resolve(ctx context.Context, fp string, content []byte) (*document.Document, error) {
	doc, err := s.repo.Get(ctx, fp)
	if err == nil || content == nil {
		return doc, err
	}
	cid, cerr := fingerprint.ContentAddress(content)
	if cerr != nil {
		return nil, err
	}
	onChain, lerr := s.ledger.Document(ctx, cid)
	if lerr != nil {
		return nil, err
	}
	healed := &document.Document{Fingerprint: fp, ContentAddress: cid, Owner: onChain.Owner, Name: onChain.Name, RegisteredAt: onChain.Timestamp}
	return s.healFromLedger(ctx, healed, onChain, false), nil
}

// healFromLedger folds the ledger's notarization state into the cache.
// inCache says whether cached was read from the repository or rebuilt.
func (s *Service) healFromLedger(ctx context.Context, cached *document.Document, onChain *ledger.DocumentRecord, inCache bool) *document.Document {
	want := s.project(cached, onChain)
	if inCache && sameNotaries(cached.NotaryIdentities, want.NotaryIdentities) && cached.Notarized == want.Notarized {
		return cached
	}
	if inCache {
		logger.Warnf("document: cache for %s diverged from ledger (%d -> %d identities), merging",
			cached.Fingerprint, len(cached.NotaryIdentities), len(want.NotaryIdentities))
	}
	s.rec.Heal(ctx, reconcile.Key(entity, want.Fingerprint), "heal document", s.mergeFunc(want))
	return want.Clone()
}

// project returns base with the ledger's identities unioned in. notarized
// never goes back to false.
func (s *Service) project(base *document.Document, onChain *ledger.DocumentRecord) *document.Document {
	want := base.Clone()
	want.NotaryIdentities = append([]string{}, base.NotaryIdentities...)
	for _, n := range onChain.Notaries {
		if !want.HasNotary(n) {
			want.NotaryIdentities = append(want.NotaryIdentities, n)
		}
	}
	want.Notarized = base.Notarized || (onChain.Notarized && len(want.NotaryIdentities) >= s.opts.Quorum)
	if want.RegisteredAt.IsZero() {
		want.RegisteredAt = onChain.Timestamp
	}
	if want.RegisteredAt.IsZero() {
		want.RegisteredAt = s.now()
	}
	return want
}

// mergeFunc merges d now. Queued retries re-read the ledger instead of
// replaying d.
func (s *Service) mergeFunc(d *document.Document) func(context.Context) error {
	first := true
	return func(ctx context.Context) error {
		if first {
			first = false
			_, err := s.repo.Merge(ctx, d, s.opts.Quorum)
			return err
		}
		return s.mergeFromLedger(ctx, d)
	}
}

// mergeFromLedger merges the current ledger view of base's content address.
// Only identity fields of base are used; its notary list is dropped.
func (s *Service) mergeFromLedger(ctx context.Context, base *document.Document) error {
	onChain, err := s.ledger.Document(ctx, base.ContentAddress)
	if err != nil {
		return err
	}
	b := base.Clone()
	b.NotaryIdentities = nil
	b.Notarized = false
	_, err = s.repo.Merge(ctx, s.project(b, onChain), s.opts.Quorum)
	return err
}

func sameNotaries(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Verify runs the hash, ledger and availability checks concurrently. A failing
// check degrades its own field and is recorded; it never aborts the others.
func (s *Service) Verify(ctx context.Context, fp string) (*document.VerificationStatus, error) {
	fp, err := parseFingerprint(fp)
	if err != nil {
		return nil, err
	}
	doc, err := s.repo.Get(ctx, fp)
	if err != nil {
		return nil, err
	}
	st := &document.VerificationStatus{
		Fingerprint:    doc.Fingerprint,
		ContentAddress: doc.ContentAddress,
		Name:           doc.Name,
		NotaryCount:    len(doc.NotaryIdentities),
	}
	var onChain *ledger.DocumentRecord

	var g errgroup.Group
	g.Go(func() error {
		cctx, cancel := context.WithTimeout(ctx, s.opts.CheckTimeout)
		defer cancel()
		b, err := s.store.Get(cctx, doc.ContentAddress)
		if err != nil {
			st.HashError = err.Error()
			return nil
		}
		st.HashMatches = fingerprint.Matches(fingerprint.Digest(doc.Fingerprint), b)
		return nil
	})
	g.Go(func() error {
		cctx, cancel := context.WithTimeout(ctx, s.opts.CheckTimeout)
		defer cancel()
		rec, err := s.ledger.Document(cctx, doc.ContentAddress)
		if err != nil {
			st.ChainError = err.Error()
			return nil
		}
		onChain = rec
		st.NotarizedOnChain = rec.Notarized
		return nil
	})
	g.Go(func() error {
		cctx, cancel := context.WithTimeout(ctx, s.opts.CheckTimeout)
		defer cancel()
		ok, err := s.store.Available(cctx, doc.ContentAddress)
		if err != nil {
			st.AvailabilityError = err.Error()
			return nil
		}
		st.ContentAvailable = ok
		return nil
	})
	_ = g.Wait()
	st.CheckedAt = s.now()

	if onChain != nil {
		healed := s.healFromLedger(ctx, doc, onChain, true)
		st.NotaryCount = len(healed.NotaryIdentities)
	}

	switch {
	case st.Partial():
		metrics.Verifications.WithLabelValues("partial").Inc()
		logger.Warnf("document: partial verification of %s: hash=%q chain=%q availability=%q",
			fp, st.HashError, st.ChainError, st.AvailabilityError)
	case st.Verified():
		metrics.Verifications.WithLabelValues("verified").Inc()
	default:
		metrics.Verifications.WithLabelValues("unverified").Inc()
	}
	return st, nil
}

// ManualVerify verifies fp and stamps lastVerifiedAt.
func (s *Service) ManualVerify(ctx context.Context, fp string) (*document.VerificationResult, error) {
	st, err := s.Verify(ctx, fp)
	if err != nil {
		return nil, err
	}
	at := st.CheckedAt
	s.rec.Heal(ctx, reconcile.Key(entity, st.Fingerprint), "stamp verification", func(ctx context.Context) error {
		return s.repo.SetLastVerified(ctx, st.Fingerprint, at)
	})
	return &document.VerificationResult{
		Fingerprint: st.Fingerprint,
		Verified:    st.Verified(),
		Message:     describe(st),
		Status:      st,
	}, nil
}

func describe(st *document.VerificationStatus) string {
	if st.Verified() {
		if !st.ContentAvailable {
			return "verified; content currently unavailable"
		}
		return "verified"
	}
	var why []string
	switch {
	case st.HashError != "":
		why = append(why, "content check failed: "+st.HashError)
	case !st.HashMatches:
		why = append(why, "content fingerprint does not match")
	}
	switch {
	case st.ChainError != "":
		why = append(why, "ledger check failed: "+st.ChainError)
	case !st.NotarizedOnChain:
		why = append(why, "not notarized on ledger")
	}
	return strings.Join(why, "; ")
}

// BatchVerify manual-verifies each fingerprint independently.
func (s *Service) BatchVerify(ctx context.Context, fps []string) []document.VerificationResult {
	out := make([]document.VerificationResult, len(fps))
	var g errgroup.Group
	g.SetLimit(s.opts.BatchParallelism)
	for i, fp := range fps {
		i, fp := i, fp
		g.Go(func() error {
			res, err := s.ManualVerify(ctx, fp)
			if err != nil {
				out[i] = document.VerificationResult{Fingerprint: fp, Message: err.Error()}
				return nil
			}
			out[i] = *res
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// AuditIntegrity manual-verifies fp and, when the stored bytes no longer hash
// to the registered fingerprint, slashes every notary that vouched for it.
func (s *Service) AuditIntegrity(ctx context.Context, fp string) (*document.VerificationResult, []string, error) {
	res, err := s.ManualVerify(ctx, fp)
	if err != nil {
		return nil, nil, err
	}
	st := res.Status
	if st.HashError != "" || st.HashMatches {
		return res, nil, nil
	}
	doc, err := s.repo.Get(ctx, st.Fingerprint)
	if err != nil {
		return res, nil, err
	}
	logger.Errorf("document: integrity violation on %s (%s), slashing %d notaries", doc.Fingerprint, doc.ContentAddress, len(doc.NotaryIdentities))
	var slashed []string
	for _, n := range doc.NotaryIdentities {
		if _, err := s.notaries.Slash(ctx, n, doc.ContentAddress, notary.ReasonIntegrityViolation); err != nil {
			logger.Warnf("document: integrity slash of %s skipped: %v", n, err)
			continue
		}
		slashed = append(slashed, n)
	}
	return res, slashed, nil
}

// DocumentsNeedingVerification lists documents never verified or verified too long ago.
func (s *Service) DocumentsNeedingVerification(ctx context.Context) ([]*document.Document, error) {
	return s.repo.ListStale(ctx, s.now().Add(-s.opts.StaleAfter))
}

func (s *Service) Get(ctx context.Context, fp string) (*document.Document, error) {
	fp, err := parseFingerprint(fp)
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, fp)
}

func (s *Service) GetByContentAddress(ctx context.Context, cid string) (*document.Document, error) {
	if err := fingerprint.Validate(cid); err != nil {
		return nil, err
	}
	return s.repo.GetByContentAddress(ctx, cid)
}

// ContentAddressOf resolves an internal fingerprint to the ledger key.
func (s *Service) ContentAddressOf(ctx context.Context, fp string) (string, error) {
	d, err := s.Get(ctx, fp)
	if err != nil {
		return "", err
	}
	return d.ContentAddress, nil
}

func (s *Service) List(ctx context.Context) ([]*document.Document, error) {
	return s.repo.List(ctx)
}

func (s *Service) ListByOwner(ctx context.Context, owner string) ([]*document.Document, error) {
	return s.repo.ListByOwner(ctx, owner)
}

func (s *Service) ListByNotarized(ctx context.Context, notarized bool) ([]*document.Document, error) {
	return s.repo.ListByNotarized(ctx, notarized)
}

func (s *Service) ListByNotary(ctx context.Context, notaryAddr string) ([]*document.Document, error) {
	return s.repo.ListByNotary(ctx, notaryAddr)
}

// Rename changes local display metadata only.
func (s *Service) Rename(ctx context.Context, fp, name string) (*document.Document, error) {
	fp, err := parseFingerprint(fp)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" {
		return nil, apperr.Wrap(apperr.ErrInvalidInput, "name required")
	}
	release, err := s.rec.Lock(ctx, entity, fp)
	if err != nil {
		return nil, apperr.Upstream("rename document", err)
	}
	defer release()
	if err := s.repo.UpdateName(ctx, fp, name); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, fp)
}

// Delete removes the cached projection; ledger history is untouched.
func (s *Service) Delete(ctx context.Context, fp string) error {
	fp, err := parseFingerprint(fp)
	if err != nil {
		return err
	}
	release, err := s.rec.Lock(ctx, entity, fp)
	if err != nil {
		return apperr.Upstream("delete document", err)
	}
	defer release()
	if err := s.repo.Delete(ctx, fp); err != nil {
		return err
	}
	logger.Infof("document: removed cached projection of %s", fp)
	return nil
}

// Content downloads the document bytes and refuses bytes that fail the fingerprint.
func (s *Service) Content(ctx context.Context, fp string) ([]byte, *document.Document, error) {
	doc, err := s.Get(ctx, fp)
	if err != nil {
		return nil, nil, err
	}
	b, err := s.store.Get(ctx, doc.ContentAddress)
	if err != nil {
		return nil, nil, err
	}
	if !fingerprint.Matches(fingerprint.Digest(doc.Fingerprint), b) {
		return nil, nil, apperr.Wrap(apperr.ErrFingerprintMismatch, "stored content for %s was altered", doc.Fingerprint)
	}
	return b, doc, nil
}

// OwnerDocuments lists owner's documents as the ledger knows them, filling
// cache gaps along the way. Entries that cannot be resolved are skipped.
func (s *Service) OwnerDocuments(ctx context.Context, owner string) ([]*document.Document, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, apperr.Wrap(apperr.ErrInvalidInput, "owner required")
	}
	cids, err := s.ledger.UserDocuments(ctx, owner)
	if err != nil {
		return nil, err
	}
	out := make([]*document.Document, 0, len(cids))
	for _, cid := range cids {
		d, err := s.ownerDocument(ctx, cid)
		if err != nil {
			logger.Warnf("document: owner %s entry %s unresolved: %v", owner, cid, err)
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *Service) ownerDocument(ctx context.Context, cid string) (*document.Document, error) {
	onChain, err := s.ledger.Document(ctx, cid)
	if err != nil {
		return nil, err
	}
	if d, err := s.repo.GetByContentAddress(ctx, cid); err == nil {
		return s.healFromLedger(ctx, d, onChain, true), nil
	}
	b, err := s.store.Get(ctx, cid)
	if err != nil {
		return nil, fmt.Errorf("fingerprint unknown and content unavailable: %w", err)
	}
	d := &document.Document{
		Fingerprint:    string(fingerprint.Of(b)),
		ContentAddress: cid,
		Owner:          onChain.Owner,
		Name:           onChain.Name,
		RegisteredAt:   onChain.Timestamp,
	}
	return s.healFromLedger(ctx, d, onChain, false), nil
}
