package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cleared-dev/txnimport/internal/auditlog"
	"github.com/cleared-dev/txnimport/internal/export"
	"github.com/cleared-dev/txnimport/internal/importer"
	"github.com/cleared-dev/txnimport/internal/importerr"
	"github.com/cleared-dev/txnimport/internal/logger"
)

// importFlags are shared by parse and match.
type importFlags struct {
	format  string
	mapping string
	out     string
	output  string
}

// source is one file queued for import.
type source struct {
	dir  string
	name string
}

func (s source) path() string { return filepath.Join(s.dir, s.name) }

// outcome pairs a source with its import result or failure.
type outcome struct {
	source source
	result *importer.Result
	err    error
}

// collectSources expands target into the files to import. A directory
// yields every file a registered parser accepts.
func collectSources(target string, reg *importer.Registry) ([]source, error) {
	info, err := os.Stat(target)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", target, err)
	}
	if !info.IsDir() {
		return []source{{dir: filepath.Dir(target), name: filepath.Base(target)}}, nil
	}

	files, err := importer.Scan(target, reg)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no importable files in %s", target)
	}
	sources := make([]source, len(files))
	for i, f := range files {
		sources[i] = source{dir: target, name: f.Name}
	}
	return sources, nil
}

// importAll parses every source, at most workers at a time. Per-file
// failures are returned in the outcomes, not as an error.
func (g *globals) importAll(ctx context.Context, sources []source, flags importFlags) ([]outcome, error) {
	mapping, err := g.cfg.Mapping(flags.mapping)
	if err != nil {
		return nil, err
	}
	opts := g.cfg.ImportOptions()
	svc := importer.NewService(importer.DefaultRegistry(opts))
	limit := readLimit(opts)

	outcomes := make([]outcome, len(sources))
	var eg errgroup.Group
	if opts.Workers > 0 {
		eg.SetLimit(opts.Workers)
	}
	for i, src := range sources {
		i, src := i, src
		eg.Go(func() error {
			outcomes[i] = outcome{source: src}
			f, err := importer.ReadFile(src.path(), limit)
			if err != nil {
				outcomes[i].err = err
				return nil
			}
			f.Mapping = mapping
			outcomes[i].result, outcomes[i].err = svc.Import(ctx, f, flags.format)
			return nil
		})
	}
	_ = eg.Wait()

	log := logger.FromContext(ctx)
	for _, o := range outcomes {
		if o.err != nil {
			log.Error().Err(o.err).Str("file", o.source.name).Str("code", importerr.CodeOf(o.err)).Msg("import failed")
		}
	}
	return outcomes, nil
}

// readLimit is the largest size any parser would accept.
func readLimit(opts importer.Options) int64 {
	limit := int64(importer.MaxReadSize)
	for _, n := range opts.MaxFileSize {
		limit = max(limit, n)
	}
	return limit
}

// writeResults exports every successful outcome as one document.
func writeResults(w io.Writer, format string, outcomes []outcome) error {
	var batches []export.Batch
	for _, o := range outcomes {
		if o.result == nil {
			continue
		}
		batches = append(batches, export.Batch{
			ID:     o.result.BatchID,
			Format: o.result.Format,
			File:   o.result.File,
			Rows:   o.result.Rows,
		})
	}
	return export.WriteAll(w, format, batches)
}

// audit appends one entry per outcome when the audit log is enabled.
func (g *globals) audit(action string, outcomes []outcome, matched map[int]int) error {
	if !g.cfg.Audit.Enabled {
		return nil
	}
	now := time.Now()
	entries := make([]auditlog.Entry, len(outcomes))
	for i, o := range outcomes {
		e := auditlog.Entry{
			Timestamp: now,
			Action:    action,
			File:      o.source.name,
			Matched:   matched[i],
		}
		if o.err != nil {
			e.Error = o.err.Error()
		}
		if r := o.result; r != nil {
			e.BatchID = r.BatchID
			e.Format = r.Format
			e.Rows = len(r.Rows)
			e.Valid = r.Valid
			e.Invalid = r.Invalid
		}
		entries[i] = e
	}
	if err := auditlog.Append(g.cfg.Audit.Dir, entries); err != nil {
		return fmt.Errorf("writing audit log: %w", err)
	}
	return nil
}

// failures returns an error summarizing failed outcomes, or nil. A single
// failed file returns its own error.
func failures(outcomes []outcome) error {
	var failed []outcome
	for _, o := range outcomes {
		if o.err != nil {
			failed = append(failed, o)
		}
	}
	switch len(failed) {
	case 0:
		return nil
	case 1:
		if len(outcomes) == 1 {
			return failed[0].err
		}
	}
	return fmt.Errorf("%d of %d files failed to import (first: %s: %w)",
		len(failed), len(outcomes), failed[0].source.name, failed[0].err)
}
