// Package schedule implements the harmonic scheduler (Sched): pure,
// deterministic functions returning the next instant at which a given
// resonance class is admissible.
package schedule

import "github.com/resonantlabs/coreruntime/conservation"

const modulus = int64(conservation.Modulus)

// euclidMod returns x mod modulus in [0, modulus), even for negative x.
func euclidMod(x int64) int64 {
	m := x % modulus
	if m < 0 {
		m += modulus
	}
	return m
}

// ScheduleNextWindow returns the smallest t >= now such that
// (t + r) mod 96 == 0. Always satisfies t - now in [0, 95].
func ScheduleNextWindow(now int64, r uint8) int64 {
	return now + euclidMod(modulus-euclidMod(now+int64(r)))
}

// Policy controls NextHarmonicWindowFrom's enrichment, if any. The
// zero Policy reproduces ScheduleNextWindow exactly, which is the
// minimal correct contract the spec requires (see SPEC_FULL.md's Open
// Question decision on "richer harmonic analysis").
type Policy struct {
	// ExtraPeriods delays the result by this many additional full
	// harmonic periods (96 ticks each), e.g. to align with a
	// lower-priority class without violating the admission law.
	ExtraPeriods int
}

// NextHarmonicWindowFrom returns a t >= now with (t + r) mod 96 == 0,
// optionally delayed by policy.ExtraPeriods full periods beyond the
// minimal ScheduleNextWindow result.
func NextHarmonicWindowFrom(now int64, r uint8, policy Policy) int64 {
	t := ScheduleNextWindow(now, r)
	if policy.ExtraPeriods > 0 {
		t += int64(policy.ExtraPeriods) * modulus
	}
	return t
}

// Harmonizes reports whether r1 and r2 sum to zero mod 96.
func Harmonizes(r1, r2 uint8) bool {
	return euclidMod(int64(r1)+int64(r2)) == 0
}

// HarmonicConjugate returns the class that sums with r to zero mod 96.
func HarmonicConjugate(r uint8) uint8 {
	return uint8(euclidMod(modulus - int64(r)))
}
