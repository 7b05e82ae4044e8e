// Package protocol sequences the pipeline under pre-registration discipline:
// every analysis parameter and decision threshold is frozen in a plan before
// any data is touched, manifests gate all downstream work, and the terminal
// artifact is an immutable report in which a NULL or ABORTED outcome is as
// valid and permanent as CONFIRMED.
package protocol

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"

	"gopkg.in/yaml.v3"

	"veriphase/internal/coherence"
	"veriphase/internal/fault"
	"veriphase/internal/spectral"
)

// DefaultManifestCandidates is the ordered fallback chain tried when a
// plan's manifest path does not exist: the dataset-standardized name first,
// then the generic legacy name.
var DefaultManifestCandidates = []string{"MANIFEST.sha256.json", "manifest.json"}

// ManifestRef names one required manifest. Path is relative to the run root;
// when it does not exist the candidates are tried in order, and using one is
// always logged, never silent.
type ManifestRef struct {
	Path       string   `yaml:"path" json:"path"`
	Candidates []string `yaml:"candidates,omitempty" json:"candidates,omitempty"`
}

// FitPlan freezes the spectral fit parameters.
type FitPlan struct {
	SeriesFile string            `yaml:"series_file" json:"series_file"`
	KMin       int               `yaml:"k_min" json:"k_min"`
	KMax       int               `yaml:"k_max" json:"k_max"`
	Model      string            `yaml:"model,omitempty" json:"model,omitempty"`
	Grid       spectral.GridSpec `yaml:"grid" json:"grid"`
}

// CoherencePlan freezes the cross-channel analysis parameters.
type CoherencePlan struct {
	MapA         string               `yaml:"map_a" json:"map_a"`
	MapB         string               `yaml:"map_b" json:"map_b"`
	KA           coherence.Wavevector `yaml:"k_a" json:"k_a"`
	KB           coherence.Wavevector `yaml:"k_b" json:"k_b"`
	Permutations int                  `yaml:"permutations" json:"permutations"`
	Seed         int64                `yaml:"seed" json:"seed"`
}

// Thresholds is the frozen classification rule. It is part of the plan so
// the verdict can never be chosen after seeing results.
type Thresholds struct {
	Alpha                float64 `yaml:"alpha" json:"alpha"`
	MinGamma             float64 `yaml:"min_gamma" json:"min_gamma"`
	ReducedChiSquareMin  float64 `yaml:"reduced_chi_square_min" json:"reduced_chi_square_min"`
	ReducedChiSquareMax  float64 `yaml:"reduced_chi_square_max" json:"reduced_chi_square_max"`
	ReplicationConfirmed bool    `yaml:"replication_confirmed" json:"replication_confirmed"`
}

// Plan is the frozen analysis plan. It is validated once at load time and
// treated as read-only thereafter; there is no setter surface.
type Plan struct {
	Name       string        `yaml:"name" json:"name"`
	Manifests  []ManifestRef `yaml:"manifests" json:"manifests"`
	Fit        FitPlan       `yaml:"fit" json:"fit"`
	Coherence  CoherencePlan `yaml:"coherence" json:"coherence"`
	Thresholds Thresholds    `yaml:"thresholds" json:"thresholds"`
}

// LoadPlan reads and validates a plan file.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.Configf("read plan %s: %v", path, err)
	}
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fault.Configf("parse plan %s: %v", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the plan is complete enough to freeze.
func (p *Plan) Validate() error {
	if p.Name == "" {
		return fault.Configf("plan: name required")
	}
	if len(p.Manifests) == 0 {
		return fault.Configf("plan: at least one manifest required")
	}
	for i, m := range p.Manifests {
		if m.Path == "" && len(m.Candidates) == 0 {
			return fault.Configf("plan: manifest %d has neither path nor candidates", i)
		}
	}
	if p.Fit.SeriesFile == "" {
		return fault.Configf("plan: fit.series_file required")
	}
	if p.Fit.KMax < p.Fit.KMin {
		return fault.Configf("plan: fit window [%d, %d] is empty", p.Fit.KMin, p.Fit.KMax)
	}
	if _, ok := spectral.ModelByName(p.Fit.Model); !ok {
		return fault.Configf("plan: unknown model %q", p.Fit.Model)
	}
	if p.Coherence.MapA == "" || p.Coherence.MapB == "" {
		return fault.Configf("plan: coherence.map_a and coherence.map_b required")
	}
	if p.Coherence.Permutations < 1 {
		return fault.Configf("plan: coherence.permutations must be positive, got %d", p.Coherence.Permutations)
	}
	if p.Thresholds.Alpha <= 0 || p.Thresholds.Alpha >= 1 {
		return fault.Configf("plan: thresholds.alpha must lie in (0,1), got %g", p.Thresholds.Alpha)
	}
	if p.Thresholds.ReducedChiSquareMax < p.Thresholds.ReducedChiSquareMin {
		return fault.Configf("plan: reduced chi-square band [%g, %g] is empty",
			p.Thresholds.ReducedChiSquareMin, p.Thresholds.ReducedChiSquareMax)
	}
	if p.Thresholds.MinGamma < 0 || p.Thresholds.MinGamma > 1 {
		return fault.Configf("plan: thresholds.min_gamma must lie in [0,1], got %g", p.Thresholds.MinGamma)
	}
	return nil
}

// ManifestCandidates returns the effective candidate chain for one ref.
func (m ManifestRef) ManifestCandidates() []string {
	names := make([]string, 0, 1+len(m.Candidates)+len(DefaultManifestCandidates))
	if m.Path != "" {
		names = append(names, m.Path)
	}
	names = append(names, m.Candidates...)
	if len(m.Candidates) == 0 {
		names = append(names, DefaultManifestCandidates...)
	}
	return names
}

// Hash returns the sha256 of the canonical plan encoding. It identifies the
// run: identical plans over identical data produce byte-identical reports.
func (p *Plan) Hash() string {
	canonical, err := json.Marshal(p)
	if err != nil {
		// Plan structs contain only marshalable fields.
		panic(err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}
