// Package verification compares extracted solver results against reference
// data and analytical solutions.
package verification

import (
	"fmt"
	"math"
)

// Metrics are the discrepancies between a simulated and a reference series.
type Metrics struct {
	L2Relative   float64 `json:"l2_relative"`
	MaxAbsolute  float64 `json:"max_absolute"`
	MeanAbsolute float64 `json:"mean_absolute"`
	Points       int     `json:"points"`
}

// Compare computes the error metrics of simulated against reference. Both
// series must be non-empty and the same length. When the reference norm is
// zero the L2 error is absolute rather than relative.
func Compare(simulated, reference []float64) (Metrics, error) {
	if len(simulated) == 0 {
		return Metrics{}, fmt.Errorf("empty simulated series")
	}
	if len(simulated) != len(reference) {
		return Metrics{}, fmt.Errorf("series length mismatch: simulated %d, reference %d", len(simulated), len(reference))
	}
	var diffSq, refSq, sumAbs, maxAbs float64
	for i := range simulated {
		d := simulated[i] - reference[i]
		diffSq += d * d
		refSq += reference[i] * reference[i]
		a := math.Abs(d)
		sumAbs += a
		maxAbs = math.Max(maxAbs, a)
	}
	l2 := math.Sqrt(diffSq)
	if refSq > 0 {
		l2 /= math.Sqrt(refSq)
	}
	return Metrics{
		L2Relative:   l2,
		MaxAbsolute:  maxAbs,
		MeanAbsolute: sumAbs / float64(len(simulated)),
		Points:       len(simulated),
	}, nil
}

// Verdict passes when the relative L2 error is within tolerance.
func Verdict(m Metrics, tolerance float64) bool {
	return m.L2Relative <= tolerance
}

// xTolerance is the relative distance under which two abscissae are the same
// sample point.
const xTolerance = 1e-9

// CompareCurves compares simulated against reference by abscissa. Both curves
// are sorted by x first. When they share their sample points the values are
// compared directly; otherwise the reference is linearly interpolated onto the
// simulated points, which must lie inside the reference range.
func CompareCurves(simulated, reference *Curve) (Metrics, error) {
	sim, err := simulated.Sorted()
	if err != nil {
		return Metrics{}, fmt.Errorf("simulated: %w", err)
	}
	ref, err := reference.Sorted()
	if err != nil {
		return Metrics{}, fmt.Errorf("reference: %w", err)
	}
	if sameAbscissae(sim.X, ref.X) {
		return Compare(sim.Y, ref.Y)
	}
	values, err := ref.Interpolate(sim.X)
	if err != nil {
		return Metrics{}, err
	}
	return Compare(sim.Y, values)
}

func sameAbscissae(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !closeTo(a[i], b[i]) {
			return false
		}
	}
	return true
}

func closeTo(a, b float64) bool {
	return math.Abs(a-b) <= xTolerance*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}
