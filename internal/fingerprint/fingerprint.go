// Package fingerprint computes document digests and content addresses.
// Everything here is pure: no I/O, safe to call before any network round trip.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"github.com/gogotex/gogotex/backend/notary-service/internal/apperr"
)

// Digest is the lowercase hex SHA-256 of a document's bytes.
type Digest string

// Accepted content-address scheme prefixes: CIDv0 and base32 CIDv1 (dag-pb and raw).
var addressPrefixes = []string{"Qm", "bafy", "bafk"}

// Of returns the fingerprint of b.
func Of(b []byte) Digest {
	sum := sha256.Sum256(b)
	return Digest(hex.EncodeToString(sum[:]))
}

// Matches reports whether b hashes to d.
func Matches(d Digest, b []byte) bool {
	return Of(b) == Normalize(string(d))
}

// Normalize lowercases and trims a caller-supplied fingerprint.
func Normalize(s string) Digest {
	return Digest(strings.ToLower(strings.TrimSpace(s)))
}

// ValidDigest checks d is 64 hex characters.
func ValidDigest(d Digest) bool {
	if len(d) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(string(d))
	return err == nil
}

// Validate rejects empty or malformed content addresses.
func Validate(addr string) error {
	if strings.TrimSpace(addr) != addr || addr == "" {
		return apperr.Wrap(apperr.ErrInvalidAddressFormat, "%q", addr)
	}
	ok := false
	for _, p := range addressPrefixes {
		if strings.HasPrefix(addr, p) {
			ok = true
			break
		}
	}
	if !ok {
		return apperr.Wrap(apperr.ErrInvalidAddressFormat, "%q has no accepted scheme prefix", addr)
	}
	if _, err := cid.Decode(addr); err != nil {
		return apperr.Wrap(apperr.ErrInvalidAddressFormat, "%q: %v", addr, err)
	}
	return nil
}

// ContentAddress derives the CIDv1 (raw codec, sha2-256) for b. Mirrors that key
// objects by content use this so every mirror agrees on the address.
func ContentAddress(b []byte) (string, error) {
	mh, err := multihash.Sum(b, multihash.SHA2_256, -1)
	if err != nil {
		return "", err
	}
	return cid.NewCidV1(cid.Raw, mh).String(), nil
}
