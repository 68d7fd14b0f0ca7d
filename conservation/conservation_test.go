package conservation

import (
	"math/rand"
	"testing"
)

func TestSumBasicCheck(t *testing.T) {
	d := []byte{48, 48}
	if got := Sum(d); got != 0 {
		t.Fatalf("Sum(%v) = %d, want 0", d, got)
	}
	if !Check(d) {
		t.Fatalf("Check(%v) = false, want true", d)
	}
}

func TestSumClosure(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		n := r.Intn(300)
		d := make([]byte, n)
		r.Read(d)
		s := Sum(d)
		if s >= Modulus {
			t.Fatalf("Sum out of range: %d for len=%d", s, n)
		}
	}
}

func TestDeltaLiteralCases(t *testing.T) {
	d, err := Delta([]byte{0}, []byte{5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != 5 {
		t.Fatalf("Delta([0],[5]) = %d, want 5", d)
	}

	d, err = Delta([]byte{95}, []byte{0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != 1 {
		t.Fatalf("Delta([95],[0]) = %d, want 1", d)
	}
}

func TestDeltaAlgebra(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	for i := 0; i < 500; i++ {
		n := r.Intn(200) + 1
		a := make([]byte, n)
		b := make([]byte, n)
		r.Read(a)
		r.Read(b)
		delta, err := Delta(a, b)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got := (int(Sum(a)) + int(delta)) % Modulus
		if got != int(Sum(b)) {
			t.Fatalf("delta algebra violated: Sum(a)=%d delta=%d Sum(b)=%d", Sum(a), delta, Sum(b))
		}
	}
}

func TestDeltaLengthMismatch(t *testing.T) {
	if _, err := Delta([]byte{1, 2}, []byte{1}); err == nil {
		t.Fatalf("expected error for length mismatch")
	}
}

func TestWindowStreamingCheckSoundness(t *testing.T) {
	d := make([]byte, 40)
	for i := range d {
		d[i] = byte(i)
	}
	w := 8
	ok := WindowStreamingCheck(d, w)
	if ok {
		for i := 0; i+w <= len(d); i++ {
			if !Check(d[i : i+w]) {
				t.Fatalf("window at %d fails Check despite WindowStreamingCheck=true", i)
			}
		}
	}
}

func TestWindowStreamingCheckFallsBackWhenWiderThanData(t *testing.T) {
	d := []byte{48, 48}
	if WindowStreamingCheck(d, 10) != Check(d) {
		t.Fatalf("fallback behavior mismatch")
	}
}

func TestWindowStreamingCheckAllZeroWindows(t *testing.T) {
	// Every length-4 window of the data built below sums to 0 mod 96.
	d := []byte{96 % 96, 0, 0, 0, 24, 24, 24, 24, 0, 0, 0, 0}
	// Construct data whose 4-byte windows are each internally balanced.
	d = make([]byte, 16)
	for i := 0; i < 16; i += 4 {
		d[i] = 10
		d[i+1] = 86 // 10+86 = 96 = 0 mod 96
		d[i+2] = 5
		d[i+3] = 91 // 5+91 = 96 = 0 mod 96
	}
	if !WindowStreamingCheck(d, 4) {
		t.Fatalf("expected all-zero windows to pass")
	}
}

func TestBatchUpdate(t *testing.T) {
	buffers := [][]byte{{48, 48}, {1, 2, 3}, {}}
	out := make([]uint8, len(buffers))
	if err := BatchUpdate(buffers, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, b := range buffers {
		if out[i] != Sum(b) {
			t.Fatalf("out[%d] = %d, want %d", i, out[i], Sum(b))
		}
	}
}

func TestBatchUpdateLengthMismatch(t *testing.T) {
	if err := BatchUpdate([][]byte{{1}}, nil); err == nil {
		t.Fatalf("expected error for mismatched output length")
	}
}

func TestVectorAndScalarAgree(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	for _, n := range []int{0, 1, 63, 64, 65, 127, 128, 500} {
		d := make([]byte, n)
		r.Read(d)

		var scalarSum uint64
		for _, b := range d {
			scalarSum += uint64(b)
		}
		if foldBytes(d) != scalarSum {
			t.Fatalf("foldBytes mismatch for len=%d: got %d want %d", n, foldBytes(d), scalarSum)
		}
		if foldVector(d) != scalarSum {
			t.Fatalf("foldVector mismatch for len=%d: got %d want %d", n, foldVector(d), scalarSum)
		}
	}
}
