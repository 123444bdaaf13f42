package verification

import (
	"fmt"
	"math"
	"sort"
)

// Convergence is the outcome of a three-grid discretisation study.
type Convergence struct {
	ObservedOrder float64 `json:"observed_order"`
	Extrapolated  float64 `json:"extrapolated"`
	// GCIFine is the grid convergence index of the finest grid, as a fraction.
	GCIFine float64 `json:"gci_fine"`
}

// safetyFactor is the usual GCI factor for three-grid studies.
const safetyFactor = 1.25

// Richardson estimates the observed order of convergence and the extrapolated
// value from the three finest of the given element sizes h and results f. The
// refinement ratio need not be constant; the order is found by fixed-point
// iteration.
func Richardson(h, f []float64) (Convergence, error) {
	if len(h) != len(f) {
		return Convergence{}, fmt.Errorf("length mismatch: %d sizes, %d values", len(h), len(f))
	}
	if len(h) < 3 {
		return Convergence{}, fmt.Errorf("need at least three grids, got %d", len(h))
	}
	idx := make([]int, len(h))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return h[idx[a]] < h[idx[b]] })
	h1, h2, h3 := h[idx[0]], h[idx[1]], h[idx[2]]
	f1, f2, f3 := f[idx[0]], f[idx[1]], f[idx[2]]
	if h1 <= 0 || h1 == h2 || h2 == h3 {
		return Convergence{}, fmt.Errorf("element sizes must be positive and distinct")
	}

	e21, e32 := f2-f1, f3-f2
	if e21 == 0 || e32 == 0 {
		return Convergence{}, fmt.Errorf("results do not change between grids")
	}
	r21, r32 := h2/h1, h3/h2
	s := math.Copysign(1, e32/e21)

	p := 1.0
	for i := 0; i < 100; i++ {
		q := math.Log((math.Pow(r21, p) - s) / (math.Pow(r32, p) - s))
		next := math.Abs(math.Log(math.Abs(e32/e21))+q) / math.Log(r21)
		if math.IsNaN(next) || math.IsInf(next, 0) {
			return Convergence{}, fmt.Errorf("observed order did not converge")
		}
		if math.Abs(next-p) < 1e-10 {
			p = next
			break
		}
		p = next
	}

	rp := math.Pow(r21, p)
	c := Convergence{
		ObservedOrder: p,
		Extrapolated:  (rp*f1 - f2) / (rp - 1),
	}
	if f1 != 0 {
		c.GCIFine = safetyFactor * math.Abs((f1-f2)/f1) / (rp - 1)
	}
	return c, nil
}
