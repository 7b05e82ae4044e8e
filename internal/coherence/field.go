// Package coherence tests whether the phase difference between two channels
// at specified wavevectors is concentrated beyond chance. The statistic is
// circular (gamma, mean direction, von Mises concentration) and significance
// comes from a seeded label-shuffling permutation test, so every p-value is
// reproducible bit-for-bit by a third party from the same inputs and seed.
package coherence

import (
	"encoding/json"
	"math"
	"os"

	"veriphase/internal/fault"
)

// Wavevector is a discrete 2-D Fourier index.
type Wavevector struct {
	KX int `yaml:"kx" json:"kx"`
	KY int `yaml:"ky" json:"ky"`
}

// Grid is one scalar realization map, row-major: Data[y*NX+x].
type Grid struct {
	NX   int
	NY   int
	Data []float64
}

func (g Grid) check() error {
	if g.NX < 1 || g.NY < 1 {
		return fault.Inputf("grid dimensions %dx%d invalid", g.NX, g.NY)
	}
	if len(g.Data) != g.NX*g.NY {
		return fault.Inputf("grid data length %d does not match %dx%d", len(g.Data), g.NX, g.NY)
	}
	return nil
}

// inRange reports whether k is a resolvable wavevector for this grid.
// Negative indices mirror the usual DFT convention up to the Nyquist index.
func (g Grid) inRange(k Wavevector) bool {
	return abs(k.KX) <= g.NX/2 && abs(k.KY) <= g.NY/2
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// PhaseAt projects the map onto the single Fourier mode k and returns the
// phase of the coefficient, in (-pi, pi]. Only the requested mode is
// evaluated; the full-spectrum transform stays an external collaborator.
func PhaseAt(g Grid, k Wavevector) (float64, error) {
	if err := g.check(); err != nil {
		return 0, err
	}
	if !g.inRange(k) {
		return 0, fault.Inputf("wavevector (%d,%d) outside range of %dx%d grid", k.KX, k.KY, g.NX, g.NY)
	}
	var re, im float64
	for y := 0; y < g.NY; y++ {
		for x := 0; x < g.NX; x++ {
			theta := 2 * math.Pi * (float64(k.KX)*float64(x)/float64(g.NX) + float64(k.KY)*float64(y)/float64(g.NY))
			v := g.Data[y*g.NX+x]
			re += v * math.Cos(theta)
			im -= v * math.Sin(theta)
		}
	}
	return math.Atan2(im, re), nil
}

// SampleAt extracts one phase per realization, preserving realization order.
// This is the sampling unit the analyzer consumes: two equal-length ordered
// phase sequences.
func SampleAt(grids []Grid, k Wavevector) ([]float64, error) {
	if len(grids) == 0 {
		return nil, fault.Inputf("no realizations")
	}
	phases := make([]float64, len(grids))
	for i, g := range grids {
		p, err := PhaseAt(g, k)
		if err != nil {
			return nil, err
		}
		phases[i] = p
	}
	return phases, nil
}

// mapFile is the persisted form of a realization stack.
type mapFile struct {
	NX           int         `json:"nx"`
	NY           int         `json:"ny"`
	Realizations [][]float64 `json:"realizations"`
}

// LoadMaps reads a realization stack from a JSON map file.
func LoadMaps(path string) ([]Grid, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.IOf("read map file %s: %v", path, err)
	}
	var mf mapFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, fault.Configf("parse map file %s: %v", path, err)
	}
	if len(mf.Realizations) == 0 {
		return nil, fault.Inputf("map file %s has no realizations", path)
	}
	grids := make([]Grid, len(mf.Realizations))
	for i, r := range mf.Realizations {
		grids[i] = Grid{NX: mf.NX, NY: mf.NY, Data: r}
		if err := grids[i].check(); err != nil {
			return nil, fault.Inputf("map file %s realization %d: %v", path, i, err)
		}
	}
	return grids, nil
}
