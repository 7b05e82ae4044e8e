package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"veriphase/internal/manifest"
)

var (
	relativeTo string
	baseDir    string
)

// hashDatasetCmd registers a dataset: it digests every input file and writes
// the manifest to stdout.
var hashDatasetCmd = &cobra.Command{
	Use:   "hash-dataset <file>...",
	Short: "Compute a cryptographic manifest over dataset files",
	Long: `Streams each file through sha256 and writes a manifest to stdout with
paths stored relative to the repository root, so the manifest stays portable
across working directories.

The root defaults to the nearest ancestor directory holding a repository
marker; override it with --relative-to.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runHashDataset,
}

// validateManifestCmd checks a dataset against a registered manifest.
var validateManifestCmd = &cobra.Command{
	Use:   "validate-manifest <manifest-file>",
	Short: "Validate dataset files against a registered manifest",
	Long: `Recomputes the digest of every tracked file and prints a per-file
MATCH / MISSING / MISMATCH report.

Exit code 0 only when every tracked file is present and matches; exit code 1
on any missing or mismatching file, or on an empty or malformed manifest.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidateManifest,
}

func init() {
	hashDatasetCmd.Flags().StringVar(&relativeTo, "relative-to", "", "repository root for relative paths (default: discovered)")
	validateManifestCmd.Flags().StringVar(&baseDir, "base-dir", "", "directory tracked paths resolve against (default: manifest directory)")
}

func runHashDataset(cmd *cobra.Command, args []string) error {
	root := relativeTo
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

	m, err := manifest.Compute(args, root)
	if err != nil {
		return err
	}
	data, err := m.Encode()
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runValidateManifest(cmd *cobra.Command, args []string) error {
	manifestPath := args[0]
	root := baseDir
	if root == "" {
		root = filepath.Dir(manifestPath)
	}

	m, err := manifest.Load(manifestPath)
	if err != nil {
		// A malformed or empty manifest is a validation failure, exit code 1.
		return exitWith(1, err)
	}
	report, err := manifest.Validate(m, root)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), report.Format())
	if !report.Pass {
		match, missing, mismatch := report.Counts()
		return exitWith(1, fmt.Errorf("validation failed: %d match, %d missing, %d mismatch", match, missing, mismatch))
	}
	return nil
}
