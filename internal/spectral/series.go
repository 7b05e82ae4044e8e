// Package spectral fits a bounded oscillatory model to a window of a measured
// power spectrum by exhaustive grid search. No iterative refinement happens
// beyond the grid, so the outcome is fully auditable from the grid
// specification alone.
package spectral

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"veriphase/internal/fault"
)

// Sample is one measured point of a power spectrum.
type Sample struct {
	K     int     `json:"k"`
	Power float64 `json:"power"`
}

// Series is an ordered power spectrum with strictly increasing wavenumbers.
type Series []Sample

// check enforces strict monotonicity; duplicates and inversions are input
// errors, never silently reordered.
func (s Series) check() error {
	for i := 1; i < len(s); i++ {
		if s[i].K <= s[i-1].K {
			return fault.Inputf("series not strictly increasing at index %d (k=%d after k=%d)", i, s[i].K, s[i-1].K)
		}
	}
	for i, smp := range s {
		if smp.K < 0 {
			return fault.Inputf("negative wavenumber %d at index %d", smp.K, i)
		}
	}
	return nil
}

// Window returns the sub-series with kMin <= k <= kMax.
func (s Series) Window(kMin, kMax int) Series {
	var out Series
	for _, smp := range s {
		if smp.K >= kMin && smp.K <= kMax {
			out = append(out, smp)
		}
	}
	return out
}

// ParseSeries reads a two-column numeric table: wavenumber then power, one
// sample per line. Blank lines and '#' comments are skipped.
func ParseSeries(r io.Reader) (Series, error) {
	var s Series
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 2 {
			return nil, fault.Inputf("line %d: want two columns, got %d", line, len(fields))
		}
		k, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fault.Inputf("line %d: wavenumber %q: %v", line, fields[0], err)
		}
		power, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fault.Inputf("line %d: power %q: %v", line, fields[1], err)
		}
		s = append(s, Sample{K: k, Power: power})
	}
	if err := sc.Err(); err != nil {
		return nil, fault.IOf("read series: %v", err)
	}
	if len(s) == 0 {
		return nil, fault.Inputf("series is empty")
	}
	if err := s.check(); err != nil {
		return nil, err
	}
	return s, nil
}
