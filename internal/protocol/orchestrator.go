package protocol

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"veriphase/internal/coherence"
	"veriphase/internal/fault"
	"veriphase/internal/logging"
	"veriphase/internal/manifest"
	"veriphase/internal/spectral"
)

func openRel(root, rel string) (*os.File, error) {
	f, err := os.Open(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return nil, fault.IOf("open %s: %v", rel, err)
	}
	return f, nil
}

// Orchestrator runs one frozen plan to its terminal state. The plan is fixed
// at construction, before any data is touched; nothing can be tuned mid-run.
type Orchestrator struct {
	plan    *Plan
	root    string
	logger  *zap.Logger
	workers int
	state   State

	// Stage hooks, replaceable in tests to observe invocation.
	fitFn func() (*spectral.FitResult, error)
	cohFn func() (*coherence.Result, error)
}

// New registers a plan against a repository root. Workers tunes the parallel
// grid scan and permutation loop; results are identical at any degree.
func New(plan *Plan, root string, logger *zap.Logger, workers int) *Orchestrator {
	o := &Orchestrator{
		plan:    plan,
		root:    root,
		logger:  logging.OrNop(logger).Named("protocol"),
		workers: workers,
		state:   StateRegistered,
	}
	o.fitFn = o.runFit
	o.cohFn = o.runCoherence
	return o
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State { return o.state }

// Run validates every registered manifest, then (and only then) executes the
// fit and coherence stages with the frozen parameters, and classifies the
// outcome. A failed validation yields a complete ABORTED report, not an
// error: integrity failure is an expected first-class result.
func (o *Orchestrator) Run() (*AnalysisReport, error) {
	if err := o.transition(StateRegistered, StateValidating); err != nil {
		return nil, err
	}

	report := &AnalysisReport{
		RunID:    o.plan.Hash(),
		PlanName: o.plan.Name,
	}

	allPass := true
	for _, ref := range o.plan.Manifests {
		check, err := o.validateOne(ref)
		if err != nil {
			return nil, err
		}
		report.ManifestChecks = append(report.ManifestChecks, *check)
		if !check.Report.Pass {
			allPass = false
		}
	}

	if !allPass {
		if err := o.transition(StateValidating, StateAborted); err != nil {
			return nil, err
		}
		report.Verdict = VerdictAborted
		o.logger.Warn("manifest validation failed, run aborted",
			zap.String("run_id", report.RunID))
		return report, nil
	}

	if err := o.transition(StateValidating, StateRunning); err != nil {
		return nil, err
	}

	fit, err := o.fitFn()
	if err != nil {
		return nil, err
	}
	coh, err := o.cohFn()
	if err != nil {
		return nil, err
	}
	report.Fit = fit
	report.Coherence = coh
	report.Verdict = classify(o.plan.Thresholds, fit, coh)

	if err := o.transition(StateRunning, StateReported); err != nil {
		return nil, err
	}
	o.logger.Info("run reported",
		zap.String("run_id", report.RunID),
		zap.String("verdict", string(report.Verdict)))
	return report, nil
}

// validateOne resolves a manifest through its candidate chain and validates
// the dataset against it. A fallback resolution is always logged.
func (o *Orchestrator) validateOne(ref ManifestRef) (*ManifestCheck, error) {
	candidates := ref.ManifestCandidates()
	path, idx, err := manifest.ResolvePath(o.root, candidates)
	if err != nil {
		return nil, err
	}
	if idx > 0 {
		o.logger.Warn("manifest resolved through fallback candidate",
			zap.String("wanted", candidates[0]),
			zap.String("used", path))
	}
	m, err := manifest.Load(path)
	if err != nil {
		return nil, err
	}
	vr, err := manifest.Validate(m, o.root)
	if err != nil {
		return nil, err
	}
	rel, relErr := filepath.Rel(o.root, path)
	if relErr != nil {
		rel = path
	}
	vr.ManifestPath = filepath.ToSlash(rel)
	return &ManifestCheck{
		ResolvedPath: filepath.ToSlash(rel),
		UsedFallback: idx > 0,
		Report:       vr,
	}, nil
}

func (o *Orchestrator) runFit() (*spectral.FitResult, error) {
	f, err := openRel(o.root, o.plan.Fit.SeriesFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	series, err := spectral.ParseSeries(f)
	if err != nil {
		return nil, err
	}
	model, _ := spectral.ModelByName(o.plan.Fit.Model)
	return spectral.FitCluster(series, o.plan.Fit.KMin, o.plan.Fit.KMax, o.plan.Fit.Grid, model, o.workers)
}

func (o *Orchestrator) runCoherence() (*coherence.Result, error) {
	cp := o.plan.Coherence
	gridsA, err := coherence.LoadMaps(filepath.Join(o.root, filepath.FromSlash(cp.MapA)))
	if err != nil {
		return nil, err
	}
	gridsB, err := coherence.LoadMaps(filepath.Join(o.root, filepath.FromSlash(cp.MapB)))
	if err != nil {
		return nil, err
	}
	phasesA, err := coherence.SampleAt(gridsA, cp.KA)
	if err != nil {
		return nil, err
	}
	phasesB, err := coherence.SampleAt(gridsB, cp.KB)
	if err != nil {
		return nil, err
	}
	return coherence.Compute(phasesA, phasesB, cp.Permutations, cp.Seed, o.workers)
}
