package verification

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Curve is a sampled series, for example a velocity profile along a line.
type Curve struct {
	X []float64
	Y []float64
}

// Sorted returns a copy of c ordered by increasing x.
func (c *Curve) Sorted() (*Curve, error) {
	if c == nil || len(c.X) == 0 {
		return nil, fmt.Errorf("empty curve")
	}
	if len(c.X) != len(c.Y) {
		return nil, fmt.Errorf("curve has %d x values and %d y values", len(c.X), len(c.Y))
	}
	idx := make([]int, len(c.X))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return c.X[idx[a]] < c.X[idx[b]] })
	out := &Curve{X: make([]float64, len(idx)), Y: make([]float64, len(idx))}
	for i, j := range idx {
		out.X[i] = c.X[j]
		out.Y[i] = c.Y[j]
	}
	return out, nil
}

// Interpolate evaluates the piecewise linear curve at each x. c must be sorted
// by x, and every x must lie within its range.
func (c *Curve) Interpolate(xs []float64) ([]float64, error) {
	lo, hi := c.X[0], c.X[len(c.X)-1]
	out := make([]float64, len(xs))
	for i, x := range xs {
		switch {
		case closeTo(x, lo):
			out[i] = c.Y[0]
			continue
		case closeTo(x, hi):
			out[i] = c.Y[len(c.Y)-1]
			continue
		case x < lo || x > hi:
			return nil, fmt.Errorf("x = %g is outside the reference range [%g, %g]", x, lo, hi)
		}
		j := sort.SearchFloat64s(c.X, x)
		x0, x1 := c.X[j-1], c.X[j]
		y0, y1 := c.Y[j-1], c.Y[j]
		if x1 == x0 {
			out[i] = y0
			continue
		}
		out[i] = y0 + (y1-y0)*(x-x0)/(x1-x0)
	}
	return out, nil
}

// CouetteProfile is the analytical plane Couette velocity u(y) = uWall*y/height
// evaluated at each y.
func CouetteProfile(y []float64, uWall, height float64) ([]float64, error) {
	if height <= 0 {
		return nil, fmt.Errorf("channel height must be positive, got %g", height)
	}
	u := make([]float64, len(y))
	for i, yi := range y {
		u[i] = uWall * yi / height
	}
	return u, nil
}

// ReadCurve reads a two-column file. Columns are separated by whitespace or a
// comma; blank lines, lines starting with '#' and a non-numeric header row are
// skipped.
func ReadCurve(path string) (*Curve, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening curve: %w", err)
	}
	defer f.Close()

	c := &Curve{}
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.FieldsFunc(text, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t' || r == ';'
		})
		if len(fields) < 2 {
			return nil, fmt.Errorf("%s:%d: expected two columns, got %d", path, line, len(fields))
		}
		x, errX := strconv.ParseFloat(fields[0], 64)
		y, errY := strconv.ParseFloat(fields[1], 64)
		if errX != nil || errY != nil {
			if len(c.X) == 0 {
				continue // header
			}
			return nil, fmt.Errorf("%s:%d: invalid number in %q", path, line, text)
		}
		c.X = append(c.X, x)
		c.Y = append(c.Y, y)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading curve: %w", err)
	}
	if len(c.X) == 0 {
		return nil, fmt.Errorf("%s: no data", path)
	}
	return c, nil
}
