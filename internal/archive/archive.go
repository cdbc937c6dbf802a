// Package archive serializes an engine credential-bundle directory to a
// single compressed blob and back, so a login session can cross process
// boundaries through an external store.
package archive

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrEmptyDirectory is returned by Snapshot when the directory does not
// exist or contains no regular files. Callers should skip persistence.
var ErrEmptyDirectory = errors.New("credential directory missing or empty")

const envelopeVersion = 1

// envelope is the serialized form: a versioned {relative path -> bytes} map.
// json marshals []byte values as base64, then the whole envelope is gzipped.
type envelope struct {
	Version int               `json:"version"`
	Files   map[string][]byte `json:"files"`
}

// Snapshot reads every regular file under dir (recursively, preserving
// relative paths) and returns the compressed archive blob.
func Snapshot(dir string) ([]byte, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, ErrEmptyDirectory
	}

	files := make(map[string][]byte)
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = data
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	if len(files) == 0 {
		return nil, ErrEmptyDirectory
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := json.NewEncoder(gz).Encode(envelope{Version: envelopeVersion, Files: files}); err != nil {
		return nil, fmt.Errorf("encode archive: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("compress archive: %w", err)
	}
	return buf.Bytes(), nil
}

// Restore decompresses data and writes every entry under dir, creating parent
// directories as needed. Existing files are overwritten. Returns false (not
// an error) when the archive is absent or malformed so the caller can fall
// back to a fresh login flow. The envelope is decoded fully before any file
// is written, so a corrupt archive never leaves partial files behind.
func Restore(data []byte, dir string) bool {
	if len(data) == 0 {
		return false
	}
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return false
	}
	var env envelope
	if err := json.NewDecoder(gz).Decode(&env); err != nil {
		return false
	}
	if err := gz.Close(); err != nil {
		return false
	}
	if env.Version != envelopeVersion || len(env.Files) == 0 {
		return false
	}

	for rel, content := range env.Files {
		target := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(target), 0700); err != nil {
			return false
		}
		if err := os.WriteFile(target, content, 0600); err != nil {
			return false
		}
	}
	return true
}
