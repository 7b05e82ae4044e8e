// Package manifest implements the data-provenance trust anchor: cryptographic
// manifests over named byte files, plus validation of a dataset against a
// previously registered manifest. Every downstream claim of reproducibility
// rests on the digest determinism guaranteed here.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"veriphase/internal/fault"
)

// Version is the only schema version this package reads or writes.
const Version = "1.0"

// FileDigest is one tracked file: its path relative to the repository root,
// the sha256 of its bytes, and its size. Immutable once written.
type FileDigest struct {
	Path   string
	SHA256 string
	Size   int64
}

// Manifest is an immutable, versioned record of file digests. Entries keep
// the order in which the files were registered. A manifest is created once;
// changing a dataset means creating a new manifest, never editing in place.
type Manifest struct {
	Version string
	Created string // ISO-8601, informational only
	Files   []FileDigest
}

// Lookup returns the digest for a relative path, if tracked.
func (m *Manifest) Lookup(relPath string) (FileDigest, bool) {
	for _, fd := range m.Files {
		if fd.Path == relPath {
			return fd, true
		}
	}
	return FileDigest{}, false
}

// check verifies structural invariants: non-empty file set, no duplicate
// paths, known schema version, 64-hex digests.
func (m *Manifest) check() error {
	if m.Version != Version {
		return fault.Configf("unsupported manifest_version %q", m.Version)
	}
	if len(m.Files) == 0 {
		return fault.Configf("manifest tracks no files")
	}
	seen := make(map[string]struct{}, len(m.Files))
	for _, fd := range m.Files {
		if fd.Path == "" {
			return fault.Configf("manifest entry with empty path")
		}
		if _, dup := seen[fd.Path]; dup {
			return fault.Configf("duplicate manifest path %q", fd.Path)
		}
		seen[fd.Path] = struct{}{}
		if len(fd.SHA256) != 64 {
			return fault.Configf("entry %q: sha256 must be 64 hex chars, got %d", fd.Path, len(fd.SHA256))
		}
		if fd.Size < 0 {
			return fault.Configf("entry %q: negative size %d", fd.Path, fd.Size)
		}
	}
	return nil
}

// fileEntry is the persisted per-file object.
type fileEntry struct {
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// MarshalJSON writes the persisted form, preserving file order inside the
// "files" object. Path keys are always POSIX-style relative paths.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"manifest_version":`)
	writeJSONString(&buf, m.Version)
	buf.WriteString(`,"created":`)
	writeJSONString(&buf, m.Created)
	buf.WriteString(`,"files":{`)
	for i, fd := range m.Files {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeJSONString(&buf, fd.Path)
		buf.WriteByte(':')
		entry, err := json.Marshal(fileEntry{SHA256: fd.SHA256, Size: fd.Size})
		if err != nil {
			return nil, err
		}
		buf.Write(entry)
	}
	buf.WriteString("}}")
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the persisted form with a token decoder so the on-disk
// file order survives the round trip.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("manifest: expected object, got %v", tok)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("manifest: expected key, got %v", keyTok)
		}
		switch key {
		case "manifest_version":
			if err := dec.Decode(&m.Version); err != nil {
				return err
			}
		case "created":
			if err := dec.Decode(&m.Created); err != nil {
				return err
			}
		case "files":
			if err := m.decodeFiles(dec); err != nil {
				return err
			}
		default:
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return err
			}
		}
	}
	_, err = dec.Token() // closing brace
	return err
}

func (m *Manifest) decodeFiles(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("manifest: files must be an object, got %v", tok)
	}
	m.Files = nil
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		path, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("manifest: expected path key, got %v", keyTok)
		}
		var entry fileEntry
		if err := dec.Decode(&entry); err != nil {
			return err
		}
		m.Files = append(m.Files, FileDigest{Path: path, SHA256: entry.SHA256, Size: entry.Size})
	}
	_, err = dec.Token() // closing brace
	return err
}

func writeJSONString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}

// Encode renders the manifest as indented JSON with a trailing newline,
// suitable for writing to a registration file or stdout.
func (m *Manifest) Encode() ([]byte, error) {
	raw, err := json.Marshal(m)
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

// Load reads and structurally validates a manifest file. A manifest that
// cannot be parsed or fails its invariants is a configuration error.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.Configf("read manifest %s: %v", path, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fault.Configf("parse manifest %s: %v", path, err)
	}
	if err := m.check(); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return &m, nil
}

// ResolvePath walks an explicit ordered candidate list under dir and returns
// the first existing file plus its index in the list. Callers must warn when
// the index is nonzero: fallback resolution is the one implicit behavior the
// pipeline permits, and it is never silent.
func ResolvePath(dir string, candidates []string) (string, int, error) {
	if len(candidates) == 0 {
		return "", -1, fault.Configf("no manifest candidates configured for %s", dir)
	}
	for i, name := range candidates {
		p := filepath.Join(dir, name)
		info, err := os.Stat(p)
		if err == nil && !info.IsDir() {
			return p, i, nil
		}
	}
	return "", -1, fault.Configf("no manifest found under %s (tried %v)", dir, candidates)
}
