// Package witness implements the 48-byte witness record (Wit): binding
// a digest, a monotonic timestamp, and a resonance class to the data
// that produced it, plus chaining and merging of witnesses.
package witness

import (
	"encoding/binary"

	"github.com/resonantlabs/coreruntime/conservation"
	"github.com/resonantlabs/coreruntime/coreerr"
	"github.com/resonantlabs/coreruntime/corehash"
	"github.com/resonantlabs/coreruntime/entropy"
)

// WireSize is the encoded witness record size in bytes (§6 layout).
const WireSize = 48

// FlagMerged is set on witnesses produced by Merge.
const FlagMerged uint8 = 1 << 0

// Witness is an immutable record binding a digest, timestamp, and
// resonance class to the data that produced it. The zero value is not
// a valid witness; construct one with Generate or Merge.
type Witness struct {
	digest    corehash.Digest
	timestamp uint64
	class     uint8
	flags     uint8
	length    int // length of the data Generate was called with; not wire-encoded
}

// Generate computes digest = Hash(d), class = Sum(d) mod 96, and a
// fresh monotonic timestamp, and binds them into a new Witness.
func Generate(d []byte) (*Witness, error) {
	if len(d) == 0 {
		return nil, coreerr.New(coreerr.Invalid, "witness.Generate", "data must be non-empty")
	}
	return &Witness{
		digest:    corehash.Sum(d),
		timestamp: entropy.Global().NextCounter(),
		class:     conservation.Sum(d),
		length:    len(d),
	}, nil
}

// Verify reports whether w certifies d: the length recorded at
// Generate matches len(d), the digest matches under constant-time
// comparison, and the conservation class matches.
func Verify(w *Witness, d []byte) (bool, error) {
	if w == nil {
		return false, coreerr.New(coreerr.Witness, "witness.Verify", "nil witness")
	}
	if w.length != len(d) {
		return false, coreerr.New(coreerr.Witness, "witness.Verify", "length mismatch: generated=%d current=%d", w.length, len(d))
	}
	if !corehash.Equal(corehash.Sum(d), w.digest) {
		return false, coreerr.New(coreerr.Witness, "witness.Verify", "digest mismatch")
	}
	if conservation.Sum(d) != w.class {
		return false, coreerr.New(coreerr.Conservation, "witness.Verify", "class mismatch")
	}
	return true, nil
}

// Destroy zeroes w's fields before it is released, matching the
// spec's "zero the 48 bytes before releasing them" requirement.
func Destroy(w *Witness) {
	if w == nil {
		return
	}
	*w = Witness{}
}

// Digest returns w's digest, or the zero digest if w is nil.
func (w *Witness) Digest() corehash.Digest {
	if w == nil {
		return corehash.Digest{}
	}
	return w.digest
}

// Timestamp returns w's monotonic timestamp, or 0 if w is nil.
func (w *Witness) Timestamp() uint64 {
	if w == nil {
		return 0
	}
	return w.timestamp
}

// Resonance returns w's resonance class, or 0 if w is nil.
func (w *Witness) Resonance() uint8 {
	if w == nil {
		return 0
	}
	return w.class
}

// IsMerged reports whether w was produced by Merge.
func (w *Witness) IsMerged() bool {
	if w == nil {
		return false
	}
	return w.flags&FlagMerged != 0
}

// Encode serializes w into the 48-byte little-endian wire layout.
func (w *Witness) Encode() [WireSize]byte {
	var out [WireSize]byte
	if w == nil {
		return out
	}
	copy(out[0:32], w.digest[:])
	binary.LittleEndian.PutUint64(out[32:40], w.timestamp)
	out[40] = w.class
	out[41] = w.flags
	// out[42:48] stays reserved-zero.
	return out
}

// Decode parses a 48-byte wire record produced by Encode. The decoded
// witness has length=0 (the wire format does not carry it), so Verify
// against it will only succeed for zero-length data; callers that need
// Verify semantics across a wire boundary should use DecodeWithLength
// and track the original length out-of-band.
func Decode(b []byte) (*Witness, error) {
	if len(b) != WireSize {
		return nil, coreerr.New(coreerr.Invalid, "witness.Decode", "want %d bytes, got %d", WireSize, len(b))
	}
	for _, r := range b[42:48] {
		if r != 0 {
			return nil, coreerr.New(coreerr.Invalid, "witness.Decode", "reserved bytes must be zero")
		}
	}
	w := &Witness{
		timestamp: binary.LittleEndian.Uint64(b[32:40]),
		class:     b[40],
		flags:     b[41],
	}
	copy(w.digest[:], b[0:32])
	return w, nil
}

// DecodeWithLength is Decode plus an explicit, out-of-band record of
// the length the witness was originally generated against, so the
// result is usable with Verify across a wire boundary. length must be
// non-negative.
func DecodeWithLength(b []byte, length int) (*Witness, error) {
	if length < 0 {
		return nil, coreerr.New(coreerr.Invalid, "witness.DecodeWithLength", "length must be >= 0, got %d", length)
	}
	w, err := Decode(b)
	if err != nil {
		return nil, err
	}
	w.length = length
	return w, nil
}

// Node is a singly linked witness chain node.
type Node struct {
	Witness  Witness
	Previous *Node
	Depth    uint32
}

// Chain builds a fresh node owning a copy of current, linked to
// previous, with Depth = depth(previous) + 1.
func Chain(current *Witness, previous *Node) *Node {
	if current == nil {
		return nil
	}
	return &Node{
		Witness:  *current,
		Previous: previous,
		Depth:    Depth(previous) + 1,
	}
}

// Depth returns n.Depth, or 0 if n is nil.
func Depth(n *Node) uint32 {
	if n == nil {
		return 0
	}
	return n.Depth
}

// Merge combines ws into a single witness: the merged digest is
// Hash(concat of constituent digests in input order); the merged
// timestamp is the maximum over constituents; the merged class is the
// sum of constituent classes mod 96; FlagMerged is set. Nil
// constituents are skipped with no effect on digest order. Requires
// len(ws) >= 1 (counting nils).
func Merge(ws []*Witness) (*Witness, error) {
	if len(ws) == 0 {
		return nil, coreerr.New(coreerr.Invalid, "witness.Merge", "at least one constituent required")
	}
	buf := make([]byte, 0, corehash.Size*len(ws))
	var classSum int
	var maxTs uint64
	for _, w := range ws {
		if w == nil {
			continue
		}
		buf = append(buf, w.digest[:]...)
		classSum = (classSum + int(w.class)) % conservation.Modulus
		if w.timestamp > maxTs {
			maxTs = w.timestamp
		}
	}
	return &Witness{
		digest:    corehash.Sum(buf),
		timestamp: maxTs,
		class:     uint8(classSum),
		flags:     FlagMerged,
		length:    len(buf),
	}, nil
}
