package domain

import (
	"sync"
	"testing"

	"github.com/resonantlabs/coreruntime/conservation"
	"github.com/resonantlabs/coreruntime/coreerr"
)

func zeroSumRegion(n int) []byte {
	// A region whose bytes sum to a multiple of 96: n-1 arbitrary
	// bytes plus one balancing byte.
	d := make([]byte, n)
	var sum int
	for i := 0; i < n-1; i++ {
		d[i] = byte((i * 37) % 256)
		sum += int(d[i])
	}
	d[n-1] = byte((96 - sum%96) % 96)
	return d
}

func TestCreateValidation(t *testing.T) {
	if _, err := Create(0, 1); err == nil {
		t.Fatalf("expected error for zero bytes")
	}
	if _, err := Create(10, 96); err == nil {
		t.Fatalf("expected error for class out of range")
	}
	d, err := Create(12288, 42)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if d.State() != Open {
		t.Fatalf("new domain state = %v, want Open", d.State())
	}
	if d.Budget() != 42 {
		t.Fatalf("new domain budget = %d, want 42", d.Budget())
	}
}

func TestLifecycleScenario(t *testing.T) {
	d, err := Create(12288, 42)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	region := zeroSumRegion(12288)
	if !conservation.Check(region) {
		t.Fatalf("test fixture region does not conserve")
	}
	if err := d.Attach(region); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if err := d.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if err := d.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if d.State() != Committed {
		t.Fatalf("state after commit = %v, want Committed", d.State())
	}
	w := d.Witness()
	if w == nil {
		t.Fatalf("commit did not bind a witness")
	}
	if w.Resonance() != 0 {
		t.Fatalf("bound witness class = %d, want 0 (region conserves)", w.Resonance())
	}
}

func TestAttachRequiresOpenAndOnce(t *testing.T) {
	d, _ := Create(8, 1)
	region := zeroSumRegion(8)
	if err := d.Attach(region); err != nil {
		t.Fatalf("first Attach: %v", err)
	}
	if err := d.Attach(region); err == nil {
		t.Fatalf("expected error on second Attach")
	}
}

func TestVerifyFailsWithoutAttachment(t *testing.T) {
	d, _ := Create(8, 1)
	if err := d.Verify(); err == nil {
		t.Fatalf("expected error verifying unattached domain")
	}
}

func TestVerifyDetectsNonConservingRegion(t *testing.T) {
	d, _ := Create(4, 1)
	region := []byte{1, 2, 3, 4} // sum=10, not a multiple of 96
	if err := d.Attach(region); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if err := d.Verify(); coreerr.Of(err) != coreerr.Conservation {
		t.Fatalf("Verify kind = %v, want Conservation", coreerr.Of(err))
	}
}

func TestVerifyDetectsExternalMutation(t *testing.T) {
	d, _ := Create(8, 1)
	region := zeroSumRegion(8)
	if err := d.Attach(region); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	region[0]++ // racing external writer mutates the borrowed bytes
	if err := d.Verify(); err == nil {
		t.Fatalf("expected Verify to detect mutation")
	}
}

func TestBudgetScenario(t *testing.T) {
	d, _ := Create(8, 10)
	if err := d.Alloc(7); err != nil {
		t.Fatalf("Alloc(7): %v", err)
	}
	if d.Budget() != 3 {
		t.Fatalf("budget after Alloc(7) = %d, want 3", d.Budget())
	}
	if err := d.Alloc(5); coreerr.Of(err) != coreerr.Budget {
		t.Fatalf("Alloc(5) kind = %v, want Budget", coreerr.Of(err))
	}
	if err := d.Release(100 % 96); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if d.Budget() != 7 {
		t.Fatalf("budget after release = %d, want 7", d.Budget())
	}
}

func TestBudgetConcurrentAllocRelease(t *testing.T) {
	d, _ := Create(8, 50)
	var wg sync.WaitGroup
	const n = 100
	wg.Add(2 * n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_ = d.Alloc(1)
		}()
		go func() {
			defer wg.Done()
			_ = d.Release(1)
		}()
	}
	wg.Wait()
	// Net effect should still be a valid residue in [0,95]; the exact
	// value depends on interleaving of successful allocs, but it must
	// never go out of range.
	if d.Budget() >= conservation.Modulus {
		t.Fatalf("budget out of range after concurrent access: %d", d.Budget())
	}
}

func TestDestroyThenOperationsFailDestroyed(t *testing.T) {
	d, _ := Create(8, 1)
	region := zeroSumRegion(8)
	_ = d.Attach(region)
	Destroy(d)
	if err := d.Verify(); coreerr.Of(err) != coreerr.Destroyed {
		t.Fatalf("Verify after destroy kind = %v, want Destroyed", coreerr.Of(err))
	}
	if err := d.Alloc(1); coreerr.Of(err) != coreerr.Destroyed {
		t.Fatalf("Alloc after destroy kind = %v, want Destroyed", coreerr.Of(err))
	}
}

func TestDestroyNilIsNoop(t *testing.T) {
	Destroy(nil) // must not panic
}

func TestCommitRequiresVerify(t *testing.T) {
	d, _ := Create(4, 1)
	region := []byte{1, 2, 3, 4} // does not conserve
	_ = d.Attach(region)
	if err := d.Commit(); err == nil {
		t.Fatalf("expected Commit to fail when Verify would fail")
	}
	if d.State() != Open {
		t.Fatalf("state after failed commit = %v, want Open", d.State())
	}
}

func TestIDsAreUnique(t *testing.T) {
	d1, _ := Create(1, 0)
	d2, _ := Create(1, 0)
	if d1.ID() == d2.ID() {
		t.Fatalf("domain ids collided: %d", d1.ID())
	}
}
