package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"veriphase/internal/logging"
)

var (
	// Global flags
	verbose bool

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "veriphase",
	Short: "veriphase - forensic verification pipeline for observational datasets",
	Long: `veriphase proves a dataset was not altered since registration, fits a
bounded oscillatory model to a spectral window, and tests cross-channel phase
coherence against a permutation null - all under a pre-registered, fail-fast
protocol that forbids post-hoc parameter tuning.

Every operation is a deterministic function of its inputs: with the same
files, plan, and seed, every digest, chi-square, and p-value is reproducible
bit-for-bit.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// exitError carries a specific process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitWith(code int, err error) error {
	return &exitError{code: code, err: err}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(hashDatasetCmd)
	rootCmd.AddCommand(validateManifestCmd)
	rootCmd.AddCommand(fitClusterCmd)
	rootCmd.AddCommand(coherenceCmd)
	rootCmd.AddCommand(runCmd)
}

func main() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "veriphase: %v\n", err)
	var ee *exitError
	if errors.As(err, &ee) {
		os.Exit(ee.code)
	}
	os.Exit(2)
}
