// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package variant

import (
	"io/fs"
	"os"
	"path/filepath"
)

// Source is the interface that provides WGSL source
// text to a Manager.
type Source interface {
	// Load returns the current text and its version.
	Load() (text string, version int64, err error)

	// Version returns the current version without
	// loading the text.
	Version() (int64, error)
}

// Static is a Source whose text never changes.
type Static string

// Load implements Source.
func (s Static) Load() (string, int64, error) { return string(s), 0, nil }

// Version implements Source.
func (s Static) Version() (int64, error) { return 0, nil }

// FS returns a Static source with the contents of a
// file in fsys (e.g., an embed.FS).
func FS(fsys fs.FS, name string) (Static, error) {
	b, err := fs.ReadFile(fsys, name)
	if err != nil {
		return "", err
	}
	return Static(b), nil
}

// File is a Source backed by a file on disk.
// Its version is the file's modification time.
type File string

// Dir returns the File named name in directory dir.
func Dir(dir, name string) File { return File(filepath.Join(dir, name)) }

// Load implements Source.
func (f File) Load() (string, int64, error) {
	st, err := os.Stat(string(f))
	if err != nil {
		return "", 0, err
	}
	b, err := os.ReadFile(string(f))
	if err != nil {
		return "", 0, err
	}
	return string(b), st.ModTime().UnixNano(), nil
}

// Version implements Source.
func (f File) Version() (int64, error) {
	st, err := os.Stat(string(f))
	if err != nil {
		return 0, err
	}
	return st.ModTime().UnixNano(), nil
}
