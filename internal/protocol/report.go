package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"veriphase/internal/coherence"
	"veriphase/internal/manifest"
	"veriphase/internal/spectral"
)

// Verdict classifies a completed run under the frozen thresholds.
type Verdict string

const (
	VerdictConfirmed Verdict = "CONFIRMED"
	VerdictNull      Verdict = "NULL"
	VerdictCandidate Verdict = "CANDIDATE"
	VerdictAborted   Verdict = "ABORTED"
)

// ManifestCheck is one manifest validation outcome, including which candidate
// resolved and whether it was a fallback.
type ManifestCheck struct {
	ResolvedPath string                     `json:"resolved_path"`
	UsedFallback bool                       `json:"used_fallback"`
	Report       *manifest.ValidationReport `json:"report"`
}

// AnalysisReport is the terminal artifact: written once, never revised.
// It carries no wall-clock fields, so reruns with identical plan and data
// emit byte-identical reports. RunID is the sha256 of the canonical plan.
type AnalysisReport struct {
	RunID          string              `json:"run_id"`
	PlanName       string              `json:"plan_name"`
	Verdict        Verdict             `json:"verdict"`
	ManifestChecks []ManifestCheck     `json:"manifest_checks"`
	Fit            *spectral.FitResult `json:"fit_result"`
	Coherence      *coherence.Result   `json:"coherence_result"`
}

// Encode renders the report as deterministic indented JSON with a trailing
// newline.
func (r *AnalysisReport) Encode() ([]byte, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// Format renders the human-readable run summary.
func (r *AnalysisReport) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run      %s\n", r.RunID)
	fmt.Fprintf(&b, "plan     %s\n", r.PlanName)
	fmt.Fprintf(&b, "verdict  %s\n", r.Verdict)
	for _, mc := range r.ManifestChecks {
		fmt.Fprintf(&b, "\nmanifest %s", mc.ResolvedPath)
		if mc.UsedFallback {
			b.WriteString(" (fallback)")
		}
		b.WriteString("\n")
		b.WriteString(mc.Report.Format())
	}
	if r.Fit != nil {
		b.WriteString("\nfit\n")
		b.WriteString(r.Fit.Format())
	}
	if r.Coherence != nil {
		b.WriteString("\ncoherence\n")
		b.WriteString(r.Coherence.Format())
	}
	return b.String()
}

// classify applies the frozen decision rule. Significance requires the
// p-value below alpha and gamma at or above the registered floor; the fit
// must land inside the reduced chi-square acceptance band. Passing both with
// a confirmed independent replication is CONFIRMED; passing both without it
// is CANDIDATE; anything else is NULL.
func classify(t Thresholds, fit *spectral.FitResult, coh *coherence.Result) Verdict {
	significant := coh.PValue < t.Alpha && coh.Gamma >= t.MinGamma
	if !significant {
		return VerdictNull
	}
	red := fit.ReducedChiSquare()
	if red < t.ReducedChiSquareMin || red > t.ReducedChiSquareMax {
		return VerdictNull
	}
	if !t.ReplicationConfirmed {
		return VerdictCandidate
	}
	return VerdictConfirmed
}
