package importer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/cleared-dev/txnimport/internal/importerr"
	"github.com/cleared-dev/txnimport/internal/model"
)

// Parser converts one export format into ImportRows.
//
// ValidateFile runs before any parsing and returns an importerr file
// validation error. ParseFile returns rows in source order, each classified
// valid or invalid, or an importerr parse error when the file cannot be read
// as its format at all.
type Parser interface {
	Format() string
	SupportedFormats() []string
	ValidateFile(f File) error
	ParseFile(ctx context.Context, f File) ([]model.ImportRow, error)
}

// Sniffer is implemented by parsers that share an extension with another
// parser and can recognize their own content.
type Sniffer interface {
	Sniff(f File) bool
}

// Options tune parser behavior.
type Options struct {
	DateOrder      DateOrder
	PayeeMaxLength int
	// Workers bounds parallel row normalization. Zero or one is sequential.
	Workers int
	// MaxFileSize overrides the per-format size ceiling, keyed by Format().
	MaxFileSize map[string]int64
}

func (o Options) dateOrder() DateOrder {
	if o.DateOrder == "" {
		return OrderMDY
	}
	return o.DateOrder
}

func (o Options) payeeMax() int {
	if o.PayeeMaxLength <= 0 {
		return DefaultPayeeMaxLength
	}
	return o.PayeeMaxLength
}

func (o Options) maxSize(format string, def int64) int64 {
	if n, ok := o.MaxFileSize[format]; ok && n > 0 {
		return n
	}
	return def
}

// Registry holds parsers by format name and by extension.
type Registry struct {
	parsers map[string]Parser
	byExt   map[string][]Parser
}

// NewRegistry creates an empty parser registry.
func NewRegistry() *Registry {
	return &Registry{
		parsers: make(map[string]Parser),
		byExt:   make(map[string][]Parser),
	}
}

// Register adds a parser. Panics on duplicate format.
func (r *Registry) Register(p Parser) {
	key := strings.ToLower(p.Format())
	if _, ok := r.parsers[key]; ok {
		panic("duplicate parser format: " + key)
	}
	r.parsers[key] = p
	for _, ext := range p.SupportedFormats() {
		ext = strings.ToLower(ext)
		r.byExt[ext] = append(r.byExt[ext], p)
	}
}

// Get returns the parser for format, or nil.
func (r *Registry) Get(format string) Parser {
	return r.parsers[strings.ToLower(format)]
}

// ForFile selects a parser by extension. When several parsers claim the
// extension, the first whose Sniff accepts the content wins; otherwise the
// first parser that does not sniff is the fallback.
func (r *Registry) ForFile(f File) (Parser, error) {
	candidates := r.byExt[f.Ext()]
	if len(candidates) == 0 {
		return nil, importerr.FileValidation(importerr.CodeUnsupportedExtension,
			"no parser for %q files", f.Ext())
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}
	for _, p := range candidates {
		if s, ok := p.(Sniffer); ok && s.Sniff(f) {
			return p, nil
		}
	}
	for _, p := range candidates {
		if _, ok := p.(Sniffer); !ok {
			return p, nil
		}
	}
	return candidates[0], nil
}

// Formats returns registered format names, sorted.
func (r *Registry) Formats() []string {
	names := make([]string, 0, len(r.parsers))
	for name := range r.parsers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Extensions returns every extension some parser accepts, sorted.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// DefaultRegistry returns a registry with all built-in parsers.
func DefaultRegistry(opts Options) *Registry {
	r := NewRegistry()
	r.Register(&QuickBooksCSVParser{Options: opts})
	r.Register(&CSVParser{Options: opts})
	r.Register(&XLSXParser{Options: opts})
	r.Register(&OFXParser{Options: opts})
	r.Register(&QFXParser{Options: opts})
	r.Register(&QIFParser{Options: opts})
	r.Register(&IIFParser{Options: opts})
	r.Register(&QBXMLParser{Options: opts})
	return r
}

// FileInfo describes a file in the import directory.
type FileInfo struct {
	Name string
	Path string
	Size int64
}

// processedDir is the subdirectory files move to once imported.
const processedDir = "processed"

// Scan returns the files in dir that some registered parser accepts.
func Scan(dir string, r *Registry) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading import dir: %w", err)
	}

	exts := r.Extensions()
	var files []FileInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !slices.Contains(exts, strings.ToLower(filepath.Ext(e.Name()))) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		files = append(files, FileInfo{
			Name: e.Name(),
			Path: filepath.Join(dir, e.Name()),
			Size: info.Size(),
		})
	}
	return files, nil
}

// MarkProcessed moves a file from dir to dir/processed/.
func MarkProcessed(dir, fileName string) error {
	src := filepath.Join(dir, fileName)
	dstDir := filepath.Join(dir, processedDir)

	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return fmt.Errorf("creating processed dir: %w", err)
	}

	dst := filepath.Join(dstDir, fileName)
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("moving %s to processed: %w", fileName, err)
	}
	return nil
}
