package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cleared-dev/txnimport/internal/importerr"
	"github.com/cleared-dev/txnimport/internal/logger"
	"github.com/cleared-dev/txnimport/internal/model"
)

// Service selects a parser for a file, validates it and parses it.
type Service struct {
	registry *Registry
}

// NewService creates an import Service over registry.
func NewService(registry *Registry) *Service {
	return &Service{registry: registry}
}

// Result is the outcome of importing one file.
type Result struct {
	BatchID  uuid.UUID
	Format   string
	File     string
	Rows     []model.ImportRow
	Valid    int
	Invalid  int
	Duration time.Duration
}

// Import parses f. An empty format selects the parser by extension and
// content; otherwise the named parser is used. File-level problems abort
// with an importerr.Error; row problems are recorded on the rows.
func (s *Service) Import(ctx context.Context, f File, format string) (*Result, error) {
	p, err := s.parserFor(f, format)
	if err != nil {
		return nil, err
	}

	res := &Result{BatchID: uuid.New(), Format: p.Format(), File: f.Name}
	log := logger.FromContext(ctx).With().
		Str("batch", res.BatchID.String()).
		Str("file", f.Name).
		Str("format", p.Format()).
		Logger()
	ctx = logger.WithContext(ctx, log)

	if err := p.ValidateFile(f); err != nil {
		log.Warn().Err(err).Msg("file rejected")
		return nil, err
	}

	start := time.Now()
	log.Debug().Int64("bytes", f.Size()).Msg("parse started")
	rows, err := p.ParseFile(ctx, f)
	if err != nil {
		log.Warn().Err(err).Msg("parse failed")
		return nil, fmt.Errorf("parsing %s: %w", f.Name, err)
	}
	res.Duration = time.Since(start)
	res.Rows = rows
	for _, row := range rows {
		if row.IsValid() {
			res.Valid++
		} else {
			res.Invalid++
		}
	}

	log.Info().
		Int("rows", len(rows)).
		Int("valid", res.Valid).
		Int("invalid", res.Invalid).
		Dur("took", res.Duration).
		Msg("parse finished")
	return res, nil
}

func (s *Service) parserFor(f File, format string) (Parser, error) {
	if format == "" {
		return s.registry.ForFile(f)
	}
	p := s.registry.Get(format)
	if p == nil {
		return nil, importerr.FileValidation(importerr.CodeUnknownFormat,
			"unknown format %q (known: %v)", format, s.registry.Formats())
	}
	return p, nil
}
