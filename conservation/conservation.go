// Package conservation implements the mod-96 conservation arithmetic
// (Cons) that every other package in this module builds on: domains,
// witnesses, and resonance clusters are all defined in terms of the
// fold this package computes.
package conservation

import (
	"github.com/resonantlabs/coreruntime/coreerr"
	"golang.org/x/sys/cpu"
)

// Modulus is the conservation arithmetic's ring size. Every class,
// budget cell low bits, and resonance value is a residue in [0, Modulus).
const Modulus = 96

// vectorThreshold is the minimum slice length at which the lane-folded
// fast path is used instead of the plain scalar loop.
const vectorThreshold = 64

// lanes is the number of independent accumulators used by the
// vector-folded fast path, chosen to meet the spec's 16-lane floor.
const lanes = 16

// Sum computes S(d) = (sum of d) mod Modulus. It is total: the empty
// slice sums to 0.
func Sum(d []byte) uint8 {
	return uint8(foldBytes(d) % Modulus)
}

// Check reports whether d's conservation sum is zero.
func Check(d []byte) bool {
	return Sum(d) == 0
}

// Delta returns (Sum(b) - Sum(a)) mod Modulus for equal-length a, b.
// Underflow is handled by adding Modulus before the single final
// reduction, never by a signed subtraction.
func Delta(a, b []byte) (uint8, error) {
	if len(a) != len(b) {
		return 0, coreerr.New(coreerr.Invalid, "conservation.Delta", "length mismatch: len(a)=%d len(b)=%d", len(a), len(b))
	}
	sa := uint64(Sum(a))
	sb := uint64(Sum(b))
	return uint8((sb + Modulus - sa) % Modulus), nil
}

// WindowStreamingCheck reports whether every length-w sliding window of
// d satisfies Check. If w is larger than len(d), it falls back to
// checking d as a whole.
func WindowStreamingCheck(d []byte, w int) bool {
	if w <= 0 || w > len(d) {
		return Check(d)
	}
	// Maintain a running sum in [0, Modulus) via incremental add/drop,
	// avoiding an O(n*w) re-fold per window.
	running := int(Sum(d[:w]))
	if running != 0 {
		return false
	}
	for i := 0; i+w < len(d); i++ {
		add := int(d[i+w])
		drop := int(d[i])
		running = ((running+add-drop)%Modulus + Modulus) % Modulus
		if running != 0 {
			return false
		}
	}
	return true
}

// BatchUpdate writes Sum(buffers[i]) to out[i] for every i. len(out)
// must equal len(buffers).
func BatchUpdate(buffers [][]byte, out []uint8) error {
	if len(out) != len(buffers) {
		return coreerr.New(coreerr.Invalid, "conservation.BatchUpdate", "len(out)=%d != len(buffers)=%d", len(out), len(buffers))
	}
	for i, b := range buffers {
		out[i] = Sum(b)
	}
	return nil
}

// foldBytes returns the plain unsigned sum of d; Sum reduces it modulo
// Modulus only once, at the very end, to avoid partial-reduction bias.
// Intermediate lane accumulators are never reduced.
func foldBytes(d []byte) uint64 {
	if len(d) >= vectorThreshold {
		return foldVector(d)
	}
	return foldScalar(d)
}

func foldScalar(d []byte) uint64 {
	var acc uint64
	for _, b := range d {
		acc += uint64(b)
	}
	return acc
}

// foldVector sums d using `lanes` independent accumulators so that,
// on a superscalar or auto-vectorizing compiler, the lane additions
// have no inter-iteration dependency. The reduction across lanes
// happens only once, after the main loop.
func foldVector(d []byte) uint64 {
	var acc [lanes]uint64
	n := len(d)
	full := n - n%lanes
	for i := 0; i < full; i += lanes {
		for l := 0; l < lanes; l++ {
			acc[l] += uint64(d[i+l])
		}
	}
	var total uint64
	for _, a := range acc {
		total += a
	}
	for i := full; i < n; i++ {
		total += uint64(d[i])
	}
	return total
}

// IsOptimized reports whether the running CPU exposes the wide
// integer/SIMD-friendly features (AVX2 on amd64, ASIMD on arm64) that
// the lane-folded fast path is designed to exploit. It is informational
// only — the fold above runs identically either way, since Go has no
// portable intrinsics for this; the flag is exposed via the §6 runtime
// discovery surface for callers that want to report deployment
// characteristics.
func IsOptimized() bool {
	if cpu.X86.HasAVX2 {
		return true
	}
	if cpu.ARM64.HasASIMD {
		return true
	}
	return false
}
