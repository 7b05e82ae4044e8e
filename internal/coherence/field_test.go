package coherence

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"veriphase/internal/fault"
)

// planeWave builds a map holding a single Fourier mode at k with phase phi0.
func planeWave(nx, ny int, k Wavevector, phi0 float64) Grid {
	data := make([]float64, nx*ny)
	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			theta := 2 * math.Pi * (float64(k.KX)*float64(x)/float64(nx) + float64(k.KY)*float64(y)/float64(ny))
			data[y*nx+x] = math.Cos(theta + phi0)
		}
	}
	return Grid{NX: nx, NY: ny, Data: data}
}

func TestPhaseAtRecoversInjectedPhase(t *testing.T) {
	k := Wavevector{KX: 3, KY: 2}
	for _, phi0 := range []float64{0, 0.5, -1.2, 2.9} {
		g := planeWave(16, 16, k, phi0)
		got, err := PhaseAt(g, k)
		require.NoError(t, err)
		require.InDelta(t, phi0, got, 1e-9, "phi0=%f", phi0)
	}
}

func TestPhaseAtRejectsOutOfRangeWavevector(t *testing.T) {
	g := planeWave(8, 8, Wavevector{KX: 1, KY: 1}, 0)
	_, err := PhaseAt(g, Wavevector{KX: 5, KY: 0})
	require.True(t, fault.IsInput(err), "got %v", err)
}

func TestSampleAtOnePhasePerRealization(t *testing.T) {
	k := Wavevector{KX: 2, KY: 1}
	grids := []Grid{
		planeWave(12, 12, k, 0.3),
		planeWave(12, 12, k, -0.8),
		planeWave(12, 12, k, 1.1),
	}
	phases, err := SampleAt(grids, k)
	require.NoError(t, err)
	require.Len(t, phases, 3)
	require.InDelta(t, 0.3, phases[0], 1e-9)
	require.InDelta(t, -0.8, phases[1], 1e-9)
	require.InDelta(t, 1.1, phases[2], 1e-9)
}

func TestLoadMapsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	k := Wavevector{KX: 1, KY: 0}
	g1 := planeWave(8, 8, k, 0.2)
	g2 := planeWave(8, 8, k, 0.9)
	body, err := json.Marshal(map[string]any{
		"nx":           8,
		"ny":           8,
		"realizations": [][]float64{g1.Data, g2.Data},
	})
	require.NoError(t, err)
	p := filepath.Join(dir, "maps.json")
	require.NoError(t, os.WriteFile(p, body, 0o644))

	grids, err := LoadMaps(p)
	require.NoError(t, err)
	require.Len(t, grids, 2)
	require.Equal(t, g1.Data, grids[0].Data)
}

func TestLoadMapsErrors(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing_file", func(t *testing.T) {
		_, err := LoadMaps(filepath.Join(dir, "absent.json"))
		require.True(t, fault.IsIO(err), "got %v", err)
	})
	t.Run("malformed_json", func(t *testing.T) {
		p := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(p, []byte("nx: 8"), 0o644))
		_, err := LoadMaps(p)
		require.True(t, fault.IsConfig(err), "got %v", err)
	})
	t.Run("dimension_mismatch", func(t *testing.T) {
		p := filepath.Join(dir, "dims.json")
		require.NoError(t, os.WriteFile(p, []byte(`{"nx":4,"ny":4,"realizations":[[1,2,3]]}`), 0o644))
		_, err := LoadMaps(p)
		require.True(t, fault.IsInput(err), "got %v", err)
	})
}
