package spectral

import "math"

// Model evaluates the dimensionless shape of a spectral cluster at wavenumber
// k for a given parameter triple. Implementations must be finite and
// real-valued over the supplied grid ranges and must carry no state between
// evaluations, which is what makes the grid search trivially parallelizable.
type Model interface {
	Evaluate(k, centerK, diffusionD, dispersionTau float64) float64
}

// DampedOscillator is the reference model: a cosine in (k - k0) scaled by
// dispersionTau, under a Gaussian envelope controlled by diffusionD.
type DampedOscillator struct{}

func (DampedOscillator) Evaluate(k, centerK, diffusionD, dispersionTau float64) float64 {
	dk := k - centerK
	return math.Exp(-diffusionD*dk*dk) * math.Cos(dispersionTau*dk)
}

// ModelByName resolves the model names accepted in analysis plans.
func ModelByName(name string) (Model, bool) {
	switch name {
	case "", "damped-oscillator":
		return DampedOscillator{}, true
	default:
		return nil, false
	}
}
