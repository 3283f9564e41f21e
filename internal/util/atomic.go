// Package util provides common file utilities for xlaude.
package util

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// AtomicWriteJSON writes v as indented JSON to path atomically.
// Readers in other processes observe either the previous document or the
// new one, never a partial write.
func AtomicWriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return AtomicWriteFile(path, data, 0644)
}

// EnsureDirAndWriteJSON creates parent directories if needed, then atomically writes JSON.
func EnsureDirAndWriteJSON(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return AtomicWriteJSON(path, v)
}

// AtomicWriteFile writes data to a temp file beside path, syncs it and
// renames it over path. The rename is atomic on POSIX systems.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	// Unique temp name so concurrent writers never share a temp file.
	f, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := f.Name()

	cleanup := func(err error) error {
		f.Close()
		os.Remove(tmpName)
		return err
	}

	if _, err := f.Write(data); err != nil {
		return cleanup(err)
	}
	if err := f.Sync(); err != nil {
		return cleanup(err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	// CreateTemp uses 0600.
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
