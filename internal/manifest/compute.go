package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"veriphase/internal/fault"
)

// digestChunkSize bounds per-read memory so file size is unbounded.
const digestChunkSize = 64 * 1024

// maxDigestWorkers caps concurrent file digesting. Files are digested
// concurrently, but a single file is only ever read by one goroutine.
const maxDigestWorkers = 8

// rootMarkers identify a repository root, checked in order at each ancestor.
var rootMarkers = []string{".git", "go.mod", "MANIFEST.sha256.json"}

// Compute digests each input file and returns a manifest whose entries match
// the input order, with paths stored POSIX-relative to root. Any unreadable
// file aborts the whole call; no partial manifest is ever produced.
func Compute(paths []string, root string) (*Manifest, error) {
	if len(paths) == 0 {
		return nil, fault.Inputf("no files to register")
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fault.Configf("resolve root %s: %v", root, err)
	}

	files := make([]FileDigest, len(paths))
	var g errgroup.Group
	g.SetLimit(maxDigestWorkers)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			rel, err := relativePath(absRoot, p)
			if err != nil {
				return err
			}
			sum, size, err := DigestFile(p)
			if err != nil {
				return err
			}
			files[i] = FileDigest{Path: rel, SHA256: sum, Size: size}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	m := &Manifest{
		Version: Version,
		Created: time.Now().UTC().Format(time.RFC3339),
		Files:   files,
	}
	return m, m.check()
}

// DigestFile streams one file through sha256 in bounded chunks and returns
// the hex digest and byte count. Identical bytes always yield identical
// digests; this is the load-bearing invariant for reproducibility.
func DigestFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fault.IOf("open %s: %v", path, err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, digestChunkSize)
	n, err := io.CopyBuffer(h, f, buf)
	if err != nil {
		return "", 0, fault.IOf("read %s: %v", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// relativePath converts p to a POSIX-style path relative to absRoot. Paths
// escaping the root are rejected so manifests stay portable across checkouts.
func relativePath(absRoot, p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fault.Configf("resolve %s: %v", p, err)
	}
	rel, err := filepath.Rel(absRoot, abs)
	if err != nil {
		return "", fault.Configf("relativize %s against %s: %v", p, absRoot, err)
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fault.Configf("file %s lies outside root %s", p, absRoot)
	}
	return rel, nil
}

// DiscoverRoot returns the nearest ancestor of start (inclusive) containing a
// recognized repository marker. It is pure: call it once at the CLI top level
// and thread the result down explicitly, never from ambient state.
func DiscoverRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fault.Configf("resolve %s: %v", start, err)
	}
	for {
		for _, marker := range rootMarkers {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fault.Configf("no repository marker found above %s", start)
		}
		dir = parent
	}
}
