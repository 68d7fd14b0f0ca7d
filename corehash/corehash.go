// Package corehash implements the 32-byte digest primitive (Hash) used
// by witnesses. It backs the digest with SHA3-256, the "standard
// full-round construction" option the spec leaves open — see
// SPEC_FULL.md's Open Question decision.
package corehash

import (
	"crypto/subtle"

	"golang.org/x/crypto/sha3"
)

// Size is the digest length in bytes.
const Size = 32

// Digest is a 32-byte cryptographic digest.
type Digest [Size]byte

// Sum computes the digest of d. Deterministic across processes on the
// same architecture; length-sensitive (appending or truncating a byte
// changes the digest with overwhelming probability).
func Sum(d []byte) Digest {
	h := sha3.New256()
	_, _ = h.Write(d)
	var out Digest
	copy(out[:], h.Sum(nil))
	return out
}

// Equal performs a constant-time comparison of two digests, as required
// whenever digests are compared for witness verification.
func Equal(a, b Digest) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
