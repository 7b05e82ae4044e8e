package spectral

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/sync/errgroup"

	"veriphase/internal/fault"
)

// fittedParams is the number of model parameters consumed by the fit:
// center_k, diffusion_D, dispersion_tau, and the closed-form amplitude.
const fittedParams = 4

// Axis is one inclusive parameter range of the search grid.
type Axis struct {
	Min  float64 `yaml:"min" json:"min"`
	Max  float64 `yaml:"max" json:"max"`
	Step float64 `yaml:"step" json:"step"`
}

// Values materializes the axis. Max is included when it lands on the step
// raster (within a relative tolerance), matching how the grid is registered.
func (a Axis) Values() []float64 {
	if a.Step <= 0 || a.Max < a.Min {
		return nil
	}
	n := int(math.Floor((a.Max-a.Min)/a.Step+1e-9)) + 1
	out := make([]float64, n)
	for i := range out {
		out[i] = a.Min + float64(i)*a.Step
	}
	return out
}

// GridSpec is the Cartesian search grid, iterated row-major with CenterK
// slowest and DispersionTau fastest. Iteration order is load-bearing: ties in
// chi-square are broken by the first flat index.
type GridSpec struct {
	CenterK       Axis `yaml:"center_k" json:"center_k"`
	DiffusionD    Axis `yaml:"diffusion_d" json:"diffusion_d"`
	DispersionTau Axis `yaml:"dispersion_tau" json:"dispersion_tau"`
}

func (g GridSpec) check() error {
	for _, ax := range []struct {
		name string
		axis Axis
	}{
		{"center_k", g.CenterK},
		{"diffusion_d", g.DiffusionD},
		{"dispersion_tau", g.DispersionTau},
	} {
		if ax.axis.Step <= 0 {
			return fault.Inputf("grid axis %s: step must be positive, got %g", ax.name, ax.axis.Step)
		}
		if ax.axis.Max < ax.axis.Min {
			return fault.Inputf("grid axis %s: max %g below min %g", ax.name, ax.axis.Max, ax.axis.Min)
		}
		if ax.axis.Min < 0 && ax.name != "center_k" {
			return fault.Inputf("grid axis %s: must be non-negative, min %g", ax.name, ax.axis.Min)
		}
	}
	return nil
}

// FitResult is the immutable outcome of one grid search.
type FitResult struct {
	CenterK          float64 `json:"center_k"`
	DiffusionD       float64 `json:"diffusion_d"`
	DispersionTau    float64 `json:"dispersion_tau"`
	Amplitude        float64 `json:"amplitude"`
	ChiSquare        float64 `json:"chi_square"`
	DegreesOfFreedom int     `json:"degrees_of_freedom"`
	WindowKMin       int     `json:"window_k_min"`
	WindowKMax       int     `json:"window_k_max"`
}

// ReducedChiSquare is chi-square per degree of freedom, the fit-quality
// figure compared against the pre-registered acceptance band.
func (r *FitResult) ReducedChiSquare() float64 {
	return r.ChiSquare / float64(r.DegreesOfFreedom)
}

// Format renders the textual fit report.
func (r *FitResult) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "window            [%d, %d]\n", r.WindowKMin, r.WindowKMax)
	fmt.Fprintf(&b, "center_k          %.6g\n", r.CenterK)
	fmt.Fprintf(&b, "diffusion_D       %.6g\n", r.DiffusionD)
	fmt.Fprintf(&b, "dispersion_tau    %.6g\n", r.DispersionTau)
	fmt.Fprintf(&b, "amplitude         %.6g\n", r.Amplitude)
	fmt.Fprintf(&b, "chi_square        %.6g\n", r.ChiSquare)
	fmt.Fprintf(&b, "dof               %d\n", r.DegreesOfFreedom)
	fmt.Fprintf(&b, "chi_square/dof    %.6g\n", r.ReducedChiSquare())
	return b.String()
}

// pointFit is the evaluation of a single grid point.
type pointFit struct {
	index     int
	amplitude float64
	chiSquare float64
}

// FitCluster restricts series to [kMin, kMax] and scans every grid point for
// the minimal residual sum of squares, with the amplitude solved in closed
// form at each point. workers > 1 parallelizes the scan; the reduction merges
// per-worker minima in ascending flat-index order, so the result is identical
// at any parallelism degree.
func FitCluster(series Series, kMin, kMax int, grid GridSpec, model Model, workers int) (*FitResult, error) {
	if model == nil {
		return nil, fault.Inputf("nil model")
	}
	if err := series.check(); err != nil {
		return nil, err
	}
	if kMax < kMin {
		return nil, fault.Inputf("window [%d, %d] is empty", kMin, kMax)
	}
	if err := grid.check(); err != nil {
		return nil, err
	}

	win := series.Window(kMin, kMax)
	if len(win) < fittedParams {
		return nil, fault.Inputf("window [%d, %d] keeps %d samples, need at least %d", kMin, kMax, len(win), fittedParams)
	}
	dof := len(win) - fittedParams
	if dof < 1 {
		return nil, fault.Inputf("window [%d, %d] leaves no degrees of freedom", kMin, kMax)
	}

	centers := grid.CenterK.Values()
	diffusions := grid.DiffusionD.Values()
	taus := grid.DispersionTau.Values()
	total := len(centers) * len(diffusions) * len(taus)
	if total == 0 {
		return nil, fault.Inputf("grid is empty")
	}

	evalPoint := func(idx int) (pointFit, error) {
		it := idx % len(taus)
		rest := idx / len(taus)
		id := rest % len(diffusions)
		ic := rest / len(diffusions)
		c, d, tau := centers[ic], diffusions[id], taus[it]

		var sumFY, sumFF float64
		shapes := make([]float64, len(win))
		for j, smp := range win {
			f := model.Evaluate(float64(smp.K), c, d, tau)
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return pointFit{}, fault.Inputf("model not finite at k=%d, center_k=%g, D=%g, tau=%g", smp.K, c, d, tau)
			}
			shapes[j] = f
			sumFY += f * smp.Power
			sumFF += f * f
		}
		var amp float64
		if sumFF > 0 {
			amp = sumFY / sumFF
		}
		var chi2 float64
		for j, smp := range win {
			r := smp.Power - amp*shapes[j]
			chi2 += r * r
		}
		return pointFit{index: idx, amplitude: amp, chiSquare: chi2}, nil
	}

	best, err := scanGrid(total, workers, evalPoint)
	if err != nil {
		return nil, err
	}

	it := best.index % len(taus)
	rest := best.index / len(taus)
	id := rest % len(diffusions)
	ic := rest / len(diffusions)
	return &FitResult{
		CenterK:          centers[ic],
		DiffusionD:       diffusions[id],
		DispersionTau:    taus[it],
		Amplitude:        best.amplitude,
		ChiSquare:        best.chiSquare,
		DegreesOfFreedom: dof,
		WindowKMin:       kMin,
		WindowKMax:       kMax,
	}, nil
}

// scanGrid evaluates every flat index and returns the minimum, tie-broken by
// lowest index. Workers each scan a contiguous index block; partial minima
// are merged block-by-block in ascending order, keeping the reduction
// independent of scheduling.
func scanGrid(total, workers int, eval func(int) (pointFit, error)) (pointFit, error) {
	if workers < 2 || total < workers {
		return scanRange(0, total, eval)
	}

	partials := make([]pointFit, workers)
	var g errgroup.Group
	chunk := (total + workers - 1) / workers
	for w := 0; w < workers; w++ {
		w := w
		lo := w * chunk
		hi := lo + chunk
		if hi > total {
			hi = total
		}
		if lo >= hi {
			partials[w] = pointFit{index: -1}
			continue
		}
		g.Go(func() error {
			p, err := scanRange(lo, hi, eval)
			if err != nil {
				return err
			}
			partials[w] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return pointFit{}, err
	}

	best := pointFit{index: -1}
	for _, p := range partials {
		if p.index < 0 {
			continue
		}
		if best.index < 0 || p.chiSquare < best.chiSquare {
			best = p
		}
	}
	return best, nil
}

func scanRange(lo, hi int, eval func(int) (pointFit, error)) (pointFit, error) {
	best := pointFit{index: -1}
	for i := lo; i < hi; i++ {
		p, err := eval(i)
		if err != nil {
			return pointFit{}, err
		}
		if best.index < 0 || p.chiSquare < best.chiSquare {
			best = p
		}
	}
	return best, nil
}
