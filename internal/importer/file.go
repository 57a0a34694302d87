package importer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cleared-dev/txnimport/internal/importerr"
	"github.com/cleared-dev/txnimport/internal/model"
)

// MaxReadSize bounds how much of any upload is read into memory.
const MaxReadSize = 20 << 20

// File is an uploaded export held in memory, plus caller hints.
type File struct {
	Name string
	Data []byte

	// Mapping optionally overrides column detection for delimited files.
	Mapping *model.ColumnMapping
}

// Ext returns the lower-cased extension including the dot.
func (f File) Ext() string {
	return strings.ToLower(filepath.Ext(f.Name))
}

// Size returns the byte length of the file.
func (f File) Size() int64 { return int64(len(f.Data)) }

// ReadFrom reads r fully, failing once more than limit bytes arrive.
func ReadFrom(r io.Reader, name string, limit int64) (File, error) {
	if limit <= 0 {
		limit = MaxReadSize
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return File{}, &importerr.Error{
			Kind:    importerr.KindFileValidation,
			Code:    importerr.CodeReadFailed,
			Message: "reading " + name,
			Err:     err,
		}
	}
	if int64(len(data)) > limit {
		return File{}, importerr.FileValidation(importerr.CodeFileTooLarge,
			"%s exceeds the %s read limit", name, humanSize(limit))
	}
	return File{Name: name, Data: data}, nil
}

// ReadFile opens path and reads it with ReadFrom.
func ReadFile(path string, limit int64) (File, error) {
	f, err := os.Open(path)
	if err != nil {
		return File{}, &importerr.Error{
			Kind:    importerr.KindFileValidation,
			Code:    importerr.CodeReadFailed,
			Message: "opening " + path,
			Err:     err,
		}
	}
	defer f.Close()
	return ReadFrom(f, filepath.Base(path), limit)
}

// validateFile applies the format-agnostic checks every parser shares.
func validateFile(f File, format string, exts []string, maxSize int64) error {
	if !slices.Contains(exts, f.Ext()) {
		return importerr.FileValidation(importerr.CodeUnsupportedExtension,
			"%s parser does not accept %q files (want %s)", format, f.Ext(), strings.Join(exts, ", "))
	}
	if len(strings.TrimSpace(string(f.Data))) == 0 {
		return importerr.FileValidation(importerr.CodeEmptyFile, "%s is empty", f.Name)
	}
	if f.Size() > maxSize {
		return importerr.FileValidation(importerr.CodeFileTooLarge,
			"%s is %s, %s files are limited to %s", f.Name, humanSize(f.Size()), format, humanSize(maxSize))
	}
	return nil
}

func humanSize(n int64) string {
	if n >= 1<<20 {
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	}
	return fmt.Sprintf("%d bytes", n)
}
