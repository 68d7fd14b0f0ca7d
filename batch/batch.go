// Package batch implements the batched execution ABI (Batch): bridging
// multi-call workloads to the conservation, delta, and witness
// primitives under one descriptor-array pass, with process-wide
// counters and a cache-aware batch-size heuristic.
package batch

import (
	"sync/atomic"

	"github.com/resonantlabs/coreruntime/conservation"
	"github.com/resonantlabs/coreruntime/coreerr"
	"github.com/resonantlabs/coreruntime/witness"
)

// MaxDescriptors bounds a single batch call.
const MaxDescriptors = 256

// CheckDescriptor is an input-only descriptor for a batched
// conservation check.
type CheckDescriptor struct {
	Data   []byte
	Status coreerr.Kind
}

// DeltaDescriptor computes the conservation delta between Before and
// After, writing the result to OutDelta.
type DeltaDescriptor struct {
	Before   []byte
	After    []byte
	OutDelta uint8
	Status   coreerr.Kind
}

// WitnessDescriptor generates a witness for Data, writing it to
// OutWitness.
type WitnessDescriptor struct {
	Data       []byte
	OutWitness *witness.Witness
	Status     coreerr.Kind
}

// NewDeltaDescriptors builds n zero-initialized DeltaDescriptor
// values: OutDelta and Status (the "reserved" output fields) always
// start at their zero value, per §9's zero-initialization requirement.
func NewDeltaDescriptors(n int) []DeltaDescriptor {
	return make([]DeltaDescriptor, n)
}

// NewWitnessDescriptors builds n zero-initialized WitnessDescriptor
// values, OutWitness starting nil.
func NewWitnessDescriptors(n int) []WitnessDescriptor {
	return make([]WitnessDescriptor, n)
}

func validateCount(op string, n int) error {
	if n < 1 || n > MaxDescriptors {
		return coreerr.New(coreerr.Invalid, op, "count must be in [1,%d], got %d", MaxDescriptors, n)
	}
	return nil
}

// RunCheck processes descs in order, setting each descriptor's Status
// to Ok or the specific failure kind. Returns nil iff every descriptor
// processed with Status == Ok.
func RunCheck(descs []CheckDescriptor) error {
	if err := validateCount("batch.RunCheck", len(descs)); err != nil {
		return err
	}
	var failures int
	for i := range descs {
		d := &descs[i]
		if len(d.Data) == 0 {
			d.Status = coreerr.Invalid
			failures++
			continue
		}
		if conservation.Check(d.Data) {
			d.Status = coreerr.Ok
		} else {
			d.Status = coreerr.Conservation
			failures++
		}
	}
	conservedCalls.Add(1)
	totalBuffers.Add(uint64(len(descs)))
	if failures > 0 {
		return coreerr.New(coreerr.Conservation, "batch.RunCheck", "%d of %d descriptors failed", failures, len(descs))
	}
	return nil
}

// RunDelta processes descs in order, writing Cons.Delta(Before,After)
// to OutDelta and setting Status.
func RunDelta(descs []DeltaDescriptor) error {
	if err := validateCount("batch.RunDelta", len(descs)); err != nil {
		return err
	}
	var failures int
	for i := range descs {
		d := &descs[i]
		delta, err := conservation.Delta(d.Before, d.After)
		if err != nil {
			d.Status = coreerr.Of(err)
			failures++
			continue
		}
		d.OutDelta = delta
		d.Status = coreerr.Ok
	}
	deltaCalls.Add(1)
	totalBuffers.Add(uint64(len(descs)))
	if failures > 0 {
		return coreerr.New(coreerr.Invalid, "batch.RunDelta", "%d of %d descriptors failed", failures, len(descs))
	}
	return nil
}

// RunWitnessGenerate processes descs in order, generating a witness
// for Data into OutWitness and setting Status.
func RunWitnessGenerate(descs []WitnessDescriptor) error {
	if err := validateCount("batch.RunWitnessGenerate", len(descs)); err != nil {
		return err
	}
	var failures int
	for i := range descs {
		d := &descs[i]
		w, err := witness.Generate(d.Data)
		if err != nil {
			d.Status = coreerr.Of(err)
			failures++
			continue
		}
		d.OutWitness = w
		d.Status = coreerr.Ok
	}
	witnessCalls.Add(1)
	totalBuffers.Add(uint64(len(descs)))
	if failures > 0 {
		return coreerr.New(coreerr.Invalid, "batch.RunWitnessGenerate", "%d of %d descriptors failed", failures, len(descs))
	}
	return nil
}

var (
	conservedCalls atomic.Uint64
	deltaCalls     atomic.Uint64
	witnessCalls   atomic.Uint64
	totalBuffers   atomic.Uint64
)

// Statistics is a snapshot of the four process-wide batch counters.
type Statistics struct {
	ConservedCalls uint64
	DeltaCalls     uint64
	WitnessCalls   uint64
	TotalBuffers   uint64
}

// Stats returns a snapshot of the current process-wide counters.
func Stats() Statistics {
	return Statistics{
		ConservedCalls: conservedCalls.Load(),
		DeltaCalls:     deltaCalls.Load(),
		WitnessCalls:   witnessCalls.Load(),
		TotalBuffers:   totalBuffers.Load(),
	}
}

// ResetStatistics atomically zeroes all four counters.
func ResetStatistics() {
	conservedCalls.Store(0)
	deltaCalls.Store(0)
	witnessCalls.Store(0)
	totalBuffers.Store(0)
}

// l1Bytes is the assumed L1 data cache size used by OptimalBatchSize.
const l1Bytes = 32 * 1024

// Policy tunes OptimalBatchSize's cache-aware heuristic for deployments
// whose cache geometry or descriptor bounds differ from the defaults.
type Policy struct {
	L1Bytes  int
	MinBatch int
	MaxBatch int
}

// DefaultPolicy returns the Policy implicitly used by OptimalBatchSize.
func DefaultPolicy() Policy {
	return Policy{L1Bytes: l1Bytes, MinBatch: 8, MaxBatch: MaxDescriptors}
}

// ValidatePolicy reports whether p is usable by OptimalBatchSizeWithPolicy.
func ValidatePolicy(p Policy) error {
	if p.L1Bytes <= 0 {
		return coreerr.New(coreerr.Invalid, "batch.ValidatePolicy", "L1Bytes must be > 0, got %d", p.L1Bytes)
	}
	if p.MinBatch <= 0 || p.MinBatch > p.MaxBatch {
		return coreerr.New(coreerr.Invalid, "batch.ValidatePolicy", "MinBatch must be in (0,MaxBatch], got MinBatch=%d MaxBatch=%d", p.MinBatch, p.MaxBatch)
	}
	if p.MaxBatch > MaxDescriptors {
		return coreerr.New(coreerr.Invalid, "batch.ValidatePolicy", "MaxBatch must be <= %d, got %d", MaxDescriptors, p.MaxBatch)
	}
	return nil
}

// OptimalBatchSize returns a cache-aware heuristic batch size for
// buffers of the given size, using DefaultPolicy.
func OptimalBatchSize(bufferSize int) int {
	return OptimalBatchSizeWithPolicy(bufferSize, DefaultPolicy())
}

// OptimalBatchSizeWithPolicy is OptimalBatchSize parameterized by an
// explicit, pre-validated Policy. An invalid policy falls back to
// DefaultPolicy rather than producing a nonsensical size.
func OptimalBatchSizeWithPolicy(bufferSize int, p Policy) int {
	if ValidatePolicy(p) != nil {
		p = DefaultPolicy()
	}
	switch {
	case bufferSize <= 64:
		return p.MaxBatch
	case bufferSize <= 1024:
		return clamp(p.L1Bytes/(4*bufferSize), p.MinBatch, p.MaxBatch)
	case bufferSize <= 16*1024:
		return clamp(16, p.MinBatch, p.MaxBatch)
	default:
		return p.MinBatch
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
