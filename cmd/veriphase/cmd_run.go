package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"veriphase/internal/manifest"
	"veriphase/internal/protocol"
	"veriphase/internal/store"
)

var (
	runPlanPath string
	runRoot     string
	runOut      string
	runArchive  string
	runWorkers  int
)

// runCmd executes a frozen analysis plan end to end.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a pre-registered analysis plan",
	Long: `Validates every manifest the plan registers, and only if all tracked
files match runs the fit and coherence stages with the frozen parameters.

A failed validation aborts the run before any analysis and still writes a
complete report: ABORTED and NULL are as permanent an outcome as CONFIRMED.
Exit code 0 for a reported run, 1 for an aborted one.`,
	RunE: runPlanCmd,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runPlanPath, "plan", "", "analysis plan file (yaml)")
	f.StringVar(&runRoot, "root", "", "repository root (default: discovered)")
	f.StringVar(&runOut, "out", "", "write the report JSON to this file")
	f.StringVar(&runArchive, "archive", "", "append the run to this sqlite archive")
	f.IntVar(&runWorkers, "workers", 1, "parallel workers (results identical at any degree)")
	_ = runCmd.MarkFlagRequired("plan")
}

func runPlanCmd(cmd *cobra.Command, args []string) error {
	plan, err := protocol.LoadPlan(runPlanPath)
	if err != nil {
		return err
	}

	root := runRoot
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		root, err = manifest.DiscoverRoot(cwd)
		if err != nil {
			return err
		}
		logger.Debug("discovered repository root", zap.String("root", root))
	}

	report, err := protocol.New(plan, root, logger, runWorkers).Run()
	if err != nil {
		return err
	}

	encoded, err := report.Encode()
	if err != nil {
		return err
	}
	if runOut != "" {
		if err := os.WriteFile(runOut, encoded, 0o644); err != nil {
			return fmt.Errorf("write report %s: %w", runOut, err)
		}
	}
	if runArchive != "" {
		a, err := store.Open(runArchive)
		if err != nil {
			return err
		}
		defer a.Close()
		id, err := a.Record(report.RunID, report.PlanName, string(report.Verdict), encoded)
		if err != nil {
			return err
		}
		logger.Info("run archived", zap.String("record_id", id), zap.String("verdict", string(report.Verdict)))
	}

	fmt.Fprint(cmd.OutOrStdout(), report.Format())
	if report.Verdict == protocol.VerdictAborted {
		return exitWith(1, fmt.Errorf("run aborted: manifest validation failed"))
	}
	return nil
}
