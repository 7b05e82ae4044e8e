package spectral

import (
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"veriphase/internal/fault"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// syntheticSeries generates samples exactly from the reference model.
func syntheticSeries(kLo, kHi int, centerK, d, tau, amp float64) Series {
	var s Series
	model := DampedOscillator{}
	for k := kLo; k <= kHi; k++ {
		s = append(s, Sample{K: k, Power: amp * model.Evaluate(float64(k), centerK, d, tau)})
	}
	return s
}

func referenceGrid() GridSpec {
	return GridSpec{
		CenterK:       Axis{Min: 135, Max: 139, Step: 1},
		DiffusionD:    Axis{Min: 0.03, Max: 0.07, Step: 0.01},
		DispersionTau: Axis{Min: 1.0, Max: 1.4, Step: 0.1},
	}
}

func TestFitRecoversGeneratorParameters(t *testing.T) {
	series := syntheticSeries(120, 154, 137, 0.05, 1.2, 10)

	res, err := FitCluster(series, 120, 154, referenceGrid(), DampedOscillator{}, 1)
	require.NoError(t, err)

	require.InDelta(t, 137, res.CenterK, 1e-12)
	require.InDelta(t, 0.05, res.DiffusionD, 1e-9)
	require.InDelta(t, 1.2, res.DispersionTau, 1e-9)
	require.InDelta(t, 10, res.Amplitude, 1e-6)
	require.Less(t, res.ChiSquare, 1e-12)
	require.Equal(t, len(series)-fittedParams, res.DegreesOfFreedom)
}

func TestFitParallelMatchesSequential(t *testing.T) {
	series := syntheticSeries(100, 180, 137, 0.05, 1.2, 10)
	// Perturb so the surface has structure away from the optimum.
	for i := range series {
		series[i].Power += 0.25 * math.Sin(float64(series[i].K))
	}
	grid := GridSpec{
		CenterK:       Axis{Min: 130, Max: 144, Step: 0.5},
		DiffusionD:    Axis{Min: 0.01, Max: 0.09, Step: 0.005},
		DispersionTau: Axis{Min: 0.8, Max: 1.6, Step: 0.05},
	}

	seq, err := FitCluster(series, 110, 170, grid, DampedOscillator{}, 1)
	require.NoError(t, err)

	for _, workers := range []int{2, 3, 7, 16} {
		par, err := FitCluster(series, 110, 170, grid, DampedOscillator{}, workers)
		require.NoError(t, err)
		if diff := cmp.Diff(seq, par); diff != "" {
			t.Fatalf("workers=%d diverged from sequential (-seq +par):\n%s", workers, diff)
		}
	}
}

// flatModel yields a degenerate all-zero surface: every grid point ties.
type flatModel struct{}

func (flatModel) Evaluate(k, centerK, diffusionD, dispersionTau float64) float64 { return 0 }

func TestFitTieBreaksByFirstGridIndex(t *testing.T) {
	series := syntheticSeries(120, 140, 130, 0.05, 1.0, 5)
	grid := referenceGrid()

	res, err := FitCluster(series, 120, 140, grid, flatModel{}, 4)
	require.NoError(t, err)

	// Every point has identical chi-square, so the first point in row-major
	// iteration order (all axis minima) must win.
	require.Equal(t, grid.CenterK.Min, res.CenterK)
	require.Equal(t, grid.DiffusionD.Min, res.DiffusionD)
	require.Equal(t, grid.DispersionTau.Min, res.DispersionTau)
	require.Zero(t, res.Amplitude)
}

// nanModel poisons a single evaluation region.
type nanModel struct{}

func (nanModel) Evaluate(k, centerK, diffusionD, dispersionTau float64) float64 {
	if centerK > 138 {
		return math.NaN()
	}
	return 1
}

func TestFitInputErrors(t *testing.T) {
	series := syntheticSeries(120, 154, 137, 0.05, 1.2, 10)

	t.Run("too_few_samples", func(t *testing.T) {
		_, err := FitCluster(series, 137, 139, referenceGrid(), DampedOscillator{}, 1)
		require.True(t, fault.IsInput(err), "got %v", err)
	})

	t.Run("empty_window", func(t *testing.T) {
		_, err := FitCluster(series, 150, 140, referenceGrid(), DampedOscillator{}, 1)
		require.True(t, fault.IsInput(err), "got %v", err)
	})

	t.Run("non_monotonic_series", func(t *testing.T) {
		bad := append(Series{}, series...)
		bad[3].K = bad[2].K
		_, err := FitCluster(bad, 120, 154, referenceGrid(), DampedOscillator{}, 1)
		require.True(t, fault.IsInput(err), "got %v", err)
	})

	t.Run("non_finite_model", func(t *testing.T) {
		_, err := FitCluster(series, 120, 154, referenceGrid(), nanModel{}, 1)
		require.True(t, fault.IsInput(err), "got %v", err)
	})

	t.Run("bad_grid_step", func(t *testing.T) {
		grid := referenceGrid()
		grid.DiffusionD.Step = 0
		_, err := FitCluster(series, 120, 154, grid, DampedOscillator{}, 1)
		require.True(t, fault.IsInput(err), "got %v", err)
	})
}

func TestAxisValuesIncludeEndpoints(t *testing.T) {
	vals := Axis{Min: 1.0, Max: 1.4, Step: 0.1}.Values()
	require.Len(t, vals, 5)
	require.InDelta(t, 1.0, vals[0], 1e-12)
	require.InDelta(t, 1.4, vals[4], 1e-9)
}

func TestParseSeries(t *testing.T) {
	input := `# wavenumber power
2 1201.5

3 1187.2
5 990.0
`
	s, err := ParseSeries(strings.NewReader(input))
	require.NoError(t, err)
	require.Equal(t, Series{{K: 2, Power: 1201.5}, {K: 3, Power: 1187.2}, {K: 5, Power: 990}}, s)
}

func TestParseSeriesRejectsBadInput(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{name: "one_column", input: "5\n"},
		{name: "non_numeric", input: "a b\n"},
		{name: "duplicate_k", input: "3 1.0\n3 2.0\n"},
		{name: "decreasing_k", input: "5 1.0\n4 2.0\n"},
		{name: "empty", input: "# only comments\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseSeries(strings.NewReader(tc.input))
			require.Error(t, err)
			require.True(t, fault.IsInput(err), "got %v", err)
		})
	}
}
