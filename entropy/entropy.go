// Package entropy implements the process-wide entropy pool and
// monotonic counter shared by the witness subsystem. Besides this pool,
// the only process-scoped mutable state in this module is the domain id
// counter in package domain and the statistics counters in package
// batch.
package entropy

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Config controls construction of a non-global Pool via NewPool. The
// global Pool returned by Global always uses DefaultConfig.
type Config struct {
	// MinSeedBytes is the minimum acceptable size of the entropy buffer
	// read from crypto/rand. Pool always reads exactly 32 bytes; this
	// field exists so Validate can reject a misconfigured caller before
	// any read happens.
	MinSeedBytes int
}

// DefaultConfig returns the Config used by the process-wide Global pool.
func DefaultConfig() Config {
	return Config{MinSeedBytes: 32}
}

// Validate reports whether cfg is usable by NewPool.
func Validate(cfg Config) error {
	if cfg.MinSeedBytes <= 0 {
		return fmt.Errorf("entropy: MinSeedBytes must be > 0, got %d", cfg.MinSeedBytes)
	}
	if cfg.MinSeedBytes > 32 {
		return fmt.Errorf("entropy: MinSeedBytes must be <= 32, got %d", cfg.MinSeedBytes)
	}
	return nil
}

// Pool is a 32-byte entropy buffer plus a monotonic rolling counter.
// It is lazily initialized on first use under a double-checked lock,
// as required by spec §3/§9 ("Global mutable state").
type Pool struct {
	mu          sync.Mutex
	initialized atomic.Bool
	seed        [32]byte
	counter     atomic.Uint64
	cfg         Config
}

// global is the process-wide pool singleton. There is exactly one per
// process; tests may construct their own *Pool to avoid cross-test
// interference with the monotonic counter.
var global = &Pool{cfg: DefaultConfig()}

// Global returns the process-wide entropy pool, initializing it on
// first call.
func Global() *Pool {
	global.ensureInit()
	return global
}

// NewPool constructs an independent, unstarted entropy pool governed by
// cfg. Useful for tests or callers that need a counter isolated from
// the process-wide Global pool.
func NewPool(cfg Config) (*Pool, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return &Pool{cfg: cfg}, nil
}

func (p *Pool) ensureInit() {
	if p.initialized.Load() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initialized.Load() {
		return
	}
	if _, err := rand.Read(p.seed[:]); err != nil {
		// Entropy failure is fatal: a silently zeroed seed would make
		// every witness in the process indistinguishable by origin.
		slog.Default().Error("entropy pool init failed", "error", err.Error())
		panic("entropy: crypto/rand unavailable: " + err.Error())
	}
	p.initialized.Store(true)
	slog.Default().Info("entropy pool initialized")
}

// Seed returns a copy of the pool's 32-byte entropy buffer, initializing
// the pool if needed.
func (p *Pool) Seed() [32]byte {
	p.ensureInit()
	return p.seed
}

// NextCounter atomically increments and returns the pool's rolling
// counter. Two concurrent callers always observe distinct values.
func (p *Pool) NextCounter() uint64 {
	p.ensureInit()
	return p.counter.Add(1)
}

// IsInitialized reports whether the pool has completed its one-shot
// initialization.
func (p *Pool) IsInitialized() bool {
	return p.initialized.Load()
}
