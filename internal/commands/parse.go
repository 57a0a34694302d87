package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/txnimport/internal/auditlog"
	"github.com/cleared-dev/txnimport/internal/export"
	"github.com/cleared-dev/txnimport/internal/importer"
	"github.com/cleared-dev/txnimport/internal/logger"
)

func newParseCommand(g *globals) *cobra.Command {
	var flags importFlags
	var archive bool

	cmd := &cobra.Command{
		Use:   "parse <file|directory>",
		Short: "Parse import files into normalized rows",
		Long: "Parse a bank or accounting export, or every importable file in a directory,\n" +
			"and write the normalized rows as CSV or JSON.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.runParse(cmd, args[0], flags, archive)
		},
	}

	addImportFlags(cmd, &flags)
	cmd.Flags().BoolVar(&archive, "archive", false, "move successfully parsed files into processed/")

	return cmd
}

func addImportFlags(cmd *cobra.Command, flags *importFlags) {
	cmd.Flags().StringVar(&flags.format, "format", "", "parser to use (default: detect from extension and content)")
	cmd.Flags().StringVar(&flags.mapping, "mapping", "", "named column mapping from the config")
	cmd.Flags().StringVarP(&flags.out, "out", "o", "", "write rows to this file instead of stdout")
	cmd.Flags().StringVar(&flags.output, "output", export.FormatCSV, "output encoding (csv, json)")
}

func (g *globals) runParse(cmd *cobra.Command, target string, flags importFlags, archive bool) error {
	ctx := cmd.Context()
	log := logger.FromContext(ctx)

	reg := importer.DefaultRegistry(g.cfg.ImportOptions())
	sources, err := collectSources(target, reg)
	if err != nil {
		return err
	}

	outcomes, err := g.importAll(ctx, sources, flags)
	if err != nil {
		return err
	}

	w, closeOut, err := output(cmd, flags.out)
	if err != nil {
		return err
	}
	if err := writeResults(w, flags.output, outcomes); err != nil {
		_ = closeOut()
		return err
	}
	if err := closeOut(); err != nil {
		return fmt.Errorf("closing %s: %w", flags.out, err)
	}

	if archive {
		for _, o := range outcomes {
			if o.err != nil {
				continue
			}
			if err := importer.MarkProcessed(o.source.dir, o.source.name); err != nil {
				return err
			}
			log.Debug().Str("file", o.source.name).Msg("archived")
		}
	}

	if err := g.audit(auditlog.ActionParse, outcomes, nil); err != nil {
		return err
	}
	return failures(outcomes)
}
