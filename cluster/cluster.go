// Package cluster implements resonance clustering (Clus): scanning
// fixed 256-byte pages, computing each page's conservation class, and
// producing a CSR grouping class -> [page indices].
package cluster

import (
	"github.com/resonantlabs/coreruntime/conservation"
	"github.com/resonantlabs/coreruntime/coreerr"
)

// PageSize is the fixed page unit the clustering layer scans.
const PageSize = 256

// numClasses is the number of resonance classes, and also the size of
// the CSR offsets array minus one (offsets has numClasses+1 entries so
// that offsets[k+1]-offsets[k] gives class k's page count).
const numClasses = conservation.Modulus

// Cluster is a CSR grouping of page indices by resonance class.
// offsets has numClasses+1 entries; offsets[96] equals the total page
// count. indices is a permutation of [0,total) grouped by ascending
// class.
type Cluster struct {
	offsets [numClasses + 1]uint32
	indices []uint32
	total   int
}

// Build scans base as a concatenation of PageSize-byte pages (pageCount
// of them) and builds the CSR grouping. base must be at least
// pageCount*PageSize bytes.
func Build(base []byte, pageCount int) (*Cluster, error) {
	if base == nil || pageCount <= 0 {
		return nil, coreerr.New(coreerr.Invalid, "cluster.Build", "base must be non-nil and pageCount must be > 0")
	}
	if len(base) < pageCount*PageSize {
		return nil, coreerr.New(coreerr.Invalid, "cluster.Build", "base too short: need %d bytes, have %d", pageCount*PageSize, len(base))
	}

	classes := make([]uint8, pageCount)
	for p := 0; p < pageCount; p++ {
		page := base[p*PageSize : (p+1)*PageSize]
		classes[p] = conservation.Sum(page)
	}

	var offsets [numClasses + 1]uint32
	for p := 0; p < pageCount; p++ {
		offsets[classes[p]+1]++
	}
	for k := 1; k <= numClasses; k++ {
		offsets[k] += offsets[k-1]
	}

	indices := make([]uint32, pageCount)
	cursor := offsets // copy: writing positions advance independently
	for p := 0; p < pageCount; p++ {
		k := classes[p]
		indices[cursor[k]] = uint32(p)
		cursor[k]++
	}

	return &Cluster{offsets: offsets, indices: indices, total: pageCount}, nil
}

// CountFor returns the number of pages in class k.
func (c *Cluster) CountFor(k uint8) int {
	if int(k) >= numClasses {
		return 0
	}
	return int(c.offsets[k+1] - c.offsets[k])
}

// PagesFor returns the page indices belonging to class k, a view into
// the cluster's shared indices arena (not a copy).
func (c *Cluster) PagesFor(k uint8) []uint32 {
	if int(k) >= numClasses {
		return nil
	}
	return c.indices[c.offsets[k]:c.offsets[k+1]]
}

// Stats returns the total page count, the number of classes with at
// least one page, and the size of the largest class.
func (c *Cluster) Stats() (total, nonEmptyClasses, largestClassSize int) {
	total = c.total
	for k := 0; k < numClasses; k++ {
		n := c.CountFor(uint8(k))
		if n > 0 {
			nonEmptyClasses++
		}
		if n > largestClassSize {
			largestClassSize = n
		}
	}
	return total, nonEmptyClasses, largestClassSize
}

// Validate checks the CSR well-formedness invariants: offsets[0]=0,
// offsets[96]=total, offsets monotonic non-decreasing, and every index
// in [0,total).
func (c *Cluster) Validate() error {
	if c.offsets[0] != 0 {
		return coreerr.New(coreerr.Invalid, "cluster.Validate", "offsets[0] = %d, want 0", c.offsets[0])
	}
	if int(c.offsets[numClasses]) != c.total {
		return coreerr.New(coreerr.Invalid, "cluster.Validate", "offsets[%d] = %d, want total %d", numClasses, c.offsets[numClasses], c.total)
	}
	for k := 1; k <= numClasses; k++ {
		if c.offsets[k] < c.offsets[k-1] {
			return coreerr.New(coreerr.Invalid, "cluster.Validate", "offsets not monotonic at %d", k)
		}
	}
	for _, idx := range c.indices {
		if int(idx) >= c.total {
			return coreerr.New(coreerr.Invalid, "cluster.Validate", "index %d out of range [0,%d)", idx, c.total)
		}
	}
	return nil
}

// Destroy releases the cluster's CSR arena as a single unit.
func Destroy(c *Cluster) {
	if c == nil {
		return
	}
	c.indices = nil
	c.total = 0
}

// PageHistogram reports, for a single PageSize-byte page, the count of
// each byte's value-mod-96 class occurring in the page. This is the
// optional per-page histogram the spec allows alongside the page's own
// single conservation class.
func PageHistogram(page []byte) [numClasses]uint32 {
	var hist [numClasses]uint32
	for _, b := range page {
		hist[int(b)%numClasses]++
	}
	return hist
}
