// Package domain implements the domain lifecycle and budget (Dom): an
// exclusive owner of runtime metadata over an externally borrowed byte
// region, whose every valid state satisfies the mod-96 conservation
// invariant enforced by package conservation.
package domain

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/resonantlabs/coreruntime/conservation"
	"github.com/resonantlabs/coreruntime/coreerr"
	"github.com/resonantlabs/coreruntime/witness"
)

// State is the domain's visible lifecycle state. Destroyed is not a
// member: it is represented by magic-tag invalidation, not a value
// here, matching the spec's "terminal sink ... detected via magic-tag
// mismatch" design.
type State int32

const (
	Open State = iota
	Committed
)

func (s State) String() string {
	switch s {
	case Open:
		return "Open"
	case Committed:
		return "Committed"
	default:
		return "Unknown"
	}
}

// validMagic marks a live domain handle. destroy clears it, so any
// later call through the same *Domain observes it as destroyed.
const validMagic uint32 = 0xD0_AA_11_D0

// goldenRatio32 is the golden-ratio multiplier (2^32/phi, rounded),
// used only to spread isolation proofs across the id space for hash
// distribution; it carries no cryptographic meaning.
const goldenRatio32 uint64 = 0x9E3779B9

var idCounter atomic.Uint64

// Domain owns runtime metadata over an externally borrowed byte
// region. The region itself is never owned: Domain never frees or
// mutates it.
type Domain struct {
	magic atomic.Uint32
	id    uint64

	state  atomic.Int32
	budget atomic.Uint32 // low 7 bits = value in [0,95]; upper bits reserved

	initialBytes   int
	isolationProof uint64

	mu       sync.Mutex
	base     []byte // borrowed; never freed here
	attached bool
	sum      uint8
	wit      *witness.Witness
}

// Create allocates a new domain in the Open state with no attachment.
// bytes must be positive and class must be in [0,95].
func Create(bytes int, class uint8) (*Domain, error) {
	if bytes <= 0 {
		return nil, coreerr.New(coreerr.Invalid, "domain.Create", "bytes must be > 0, got %d", bytes)
	}
	if int(class) >= conservation.Modulus {
		return nil, coreerr.New(coreerr.Invalid, "domain.Create", "class must be in [0,%d), got %d", conservation.Modulus, class)
	}
	id := idCounter.Add(1)
	d := &Domain{
		id:             id,
		initialBytes:   bytes,
		isolationProof: id * goldenRatio32,
	}
	d.magic.Store(validMagic)
	d.state.Store(int32(Open))
	d.budget.Store(uint32(class))
	return d, nil
}

// ID returns the domain's process-unique id.
func (d *Domain) ID() uint64 { return d.id }

// IsolationProof returns the domain's deterministic isolation proof.
func (d *Domain) IsolationProof() uint64 { return d.isolationProof }

// State returns the domain's current visible state.
func (d *Domain) State() State {
	return State(d.state.Load())
}

func (d *Domain) checkAlive(op string) error {
	if d == nil || d.magic.Load() != validMagic {
		return coreerr.New(coreerr.Destroyed, op, "domain handle is destroyed or invalid")
	}
	return nil
}

// Attach records the borrowed region's base and length and caches its
// conservation sum. Requires state == Open and no prior attachment.
func (d *Domain) Attach(data []byte) error {
	if err := d.checkAlive("domain.Attach"); err != nil {
		return err
	}
	if len(data) == 0 {
		return coreerr.New(coreerr.Invalid, "domain.Attach", "data must be non-empty")
	}
	if d.State() != Open {
		return coreerr.New(coreerr.State, "domain.Attach", "attach requires Open state, got %s", d.State())
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.attached {
		return coreerr.New(coreerr.State, "domain.Attach", "already attached")
	}
	d.base = data
	d.sum = conservation.Sum(data)
	d.attached = true
	return nil
}

// Verify is read-only and safe to call concurrently. It succeeds iff
// the handle is alive, memory is attached, the attached region
// currently conserves (sums to zero), the live sum still matches the
// sum cached at Attach, and — if a witness is bound — the witness
// still verifies against the region.
func (d *Domain) Verify() error {
	if err := d.checkAlive("domain.Verify"); err != nil {
		return err
	}
	d.mu.Lock()
	base := d.base
	attached := d.attached
	cachedSum := d.sum
	wit := d.wit
	d.mu.Unlock()

	if !attached {
		return coreerr.New(coreerr.State, "domain.Verify", "no memory attached")
	}
	if !conservation.Check(base) {
		return coreerr.New(coreerr.Conservation, "domain.Verify", "attached region does not conserve")
	}
	if conservation.Sum(base) != cachedSum {
		return coreerr.New(coreerr.Conservation, "domain.Verify", "live sum diverged from cached sum")
	}
	if wit != nil {
		ok, err := witness.Verify(wit, base)
		if !ok {
			if err != nil {
				return err
			}
			return coreerr.New(coreerr.Witness, "domain.Verify", "bound witness failed to verify")
		}
	}
	return nil
}

// Commit requires a successful Verify, then atomically transitions
// Open -> Committed. If no witness is bound yet, it generates one for
// the attached region and binds it; if generation fails, the state is
// rolled back to Open.
func (d *Domain) Commit() error {
	if err := d.checkAlive("domain.Commit"); err != nil {
		return err
	}
	if err := d.Verify(); err != nil {
		return err
	}
	if !d.state.CompareAndSwap(int32(Open), int32(Committed)) {
		return coreerr.New(coreerr.State, "domain.Commit", "state was not Open at commit time")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.wit == nil {
		w, err := witness.Generate(d.base)
		if err != nil {
			d.state.Store(int32(Open))
			slog.Default().Warn("domain commit rolled back", "domain_id", d.id, "error", err.Error())
			return coreerr.New(coreerr.Memory, "domain.Commit", "witness generation failed: %v", err)
		}
		d.wit = w
	}
	slog.Default().Info("domain committed", "domain_id", d.id, "from", Open.String(), "to", Committed.String())
	return nil
}

// Witness returns the domain's bound witness, or nil if none is bound.
func (d *Domain) Witness() *witness.Witness {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.wit
}

// Destroy drops the bound witness, invalidates the magic tag, and
// releases the domain record. The borrowed bytes are left untouched.
// Safe to call with d == nil (no-op); not safe to call concurrently
// with any other operation on the same handle.
func Destroy(d *Domain) {
	if d == nil {
		return
	}
	if d.wit != nil {
		witness.Destroy(d.wit)
		d.wit = nil
	}
	d.magic.Store(0)
}

// Alloc subtracts amt from the budget's low 7 bits, failing with
// E_BUDGET if the current value is less than amt. Safe under
// concurrent callers on the same domain.
func (d *Domain) Alloc(amt uint8) error {
	if err := d.checkAlive("domain.Alloc"); err != nil {
		return err
	}
	if int(amt) >= conservation.Modulus {
		return coreerr.New(coreerr.Invalid, "domain.Alloc", "amt must be in [0,%d), got %d", conservation.Modulus, amt)
	}
	for {
		cur := d.budget.Load()
		low7 := uint8(cur & 0x7F)
		if low7 < amt {
			return coreerr.New(coreerr.Budget, "domain.Alloc", "budget %d < requested %d", low7, amt)
		}
		next := (cur &^ 0x7F) | uint32((low7-amt)%uint8(conservation.Modulus))
		if d.budget.CompareAndSwap(cur, next) {
			return nil
		}
	}
}

// Release adds amt to the budget's low 7 bits modulo 96. The sum wraps
// instead of failing; only an amt outside [0,95] is rejected, with
// E_INVALID. Safe under concurrent callers on the same domain.
func (d *Domain) Release(amt uint8) error {
	if err := d.checkAlive("domain.Release"); err != nil {
		return err
	}
	if int(amt) >= conservation.Modulus {
		return coreerr.New(coreerr.Invalid, "domain.Release", "amt must be in [0,%d), got %d", conservation.Modulus, amt)
	}
	for {
		cur := d.budget.Load()
		low7 := uint8(cur & 0x7F)
		next7 := (uint32(low7) + uint32(amt)) % uint32(conservation.Modulus)
		next := (cur &^ 0x7F) | next7
		if d.budget.CompareAndSwap(cur, next) {
			return nil
		}
	}
}

// Budget returns the budget cell's low-7-bit value in [0,95].
func (d *Domain) Budget() uint8 {
	return uint8(d.budget.Load() & 0x7F)
}
