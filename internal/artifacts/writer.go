package artifacts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultSuffix is appended to transcript filenames.
const DefaultSuffix = "transcript"

// BaseName strips the directory and final extension from an original filename.
func BaseName(displayName string) string {
	base := filepath.Base(strings.TrimSpace(displayName))
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	if ext := filepath.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	return strings.TrimSpace(base)
}

// TranscriptName builds "<basename>-<suffix>.txt" for an original filename.
func TranscriptName(displayName, suffix string) string {
	base := BaseName(displayName)
	if base == "" {
		base = "transcript"
	}
	suffix = strings.TrimSpace(suffix)
	if suffix == "" {
		suffix = DefaultSuffix
	}
	return base + "-" + suffix + ".txt"
}

// SummaryName builds the document name for a summary of the given file.
func SummaryName(displayName string) string {
	base := BaseName(displayName)
	if base == "" {
		base = "lecture"
	}
	return base + "-summary"
}

// Writer persists artifacts into one output directory.
type Writer struct {
	dir      string
	mkdirAll func(path string, perm os.FileMode) error
	rename   func(oldpath, newpath string) error
}

// NewWriter creates a writer rooted at dir.
func NewWriter(dir string) *Writer {
	return &Writer{
		dir:      dir,
		mkdirAll: os.MkdirAll,
		rename:   os.Rename,
	}
}

// Dir returns the output directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Save writes data under name via a temp file and rename, returning the final path.
func (w *Writer) Save(name string, data []byte) (string, error) {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "", fmt.Errorf("artifact name is required")
	}
	if strings.TrimSpace(w.dir) == "" {
		return "", fmt.Errorf("output directory is required")
	}
	if err := w.mkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("prepare output directory: %w", err)
	}

	destination := filepath.Join(w.dir, name)
	tmp, err := os.CreateTemp(w.dir, "."+name+".*.part")
	if err != nil {
		return "", fmt.Errorf("create temporary file: %w", err)
	}
	tmpPath := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("write artifact: %w", writeErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("close artifact: %w", closeErr)
	}

	if err := os.Remove(destination); err != nil && !errors.Is(err, os.ErrNotExist) {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("remove old artifact: %w", err)
	}
	if err := w.rename(tmpPath, destination); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("move artifact into place: %w", err)
	}
	return destination, nil
}
