package commands

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/txnimport/internal/auditlog"
	"github.com/cleared-dev/txnimport/internal/ledger"
	"github.com/cleared-dev/txnimport/internal/logger"
	"github.com/cleared-dev/txnimport/internal/model"
	"github.com/cleared-dev/txnimport/internal/reconcile"
)

type matchFlags struct {
	importFlags
	account  string
	legs     string
	accounts string
	mark     bool
}

func newMatchCommand(g *globals) *cobra.Command {
	var flags matchFlags

	cmd := &cobra.Command{
		Use:   "match <file>",
		Short: "Parse a file and match its rows to pending transfers",
		Long: "Parse an import file for one account and flag rows that correspond to the\n" +
			"other side of a transfer already recorded from another account.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.runMatch(cmd, args[0], flags)
		},
	}

	addImportFlags(cmd, &flags.importFlags)
	cmd.Flags().StringVar(&flags.account, "account", "", "account the file belongs to (required)")
	_ = cmd.MarkFlagRequired("account")
	cmd.Flags().StringVar(&flags.legs, "legs", "", "transfer legs CSV (required)")
	_ = cmd.MarkFlagRequired("legs")
	cmd.Flags().StringVar(&flags.accounts, "accounts", "", "accounts CSV for display names")
	cmd.Flags().BoolVar(&flags.mark, "mark", false, "stamp matched legs as imported and rewrite the legs file")

	return cmd
}

func (g *globals) runMatch(cmd *cobra.Command, target string, flags matchFlags) error {
	ctx := cmd.Context()
	log := logger.FromContext(ctx)

	snapshot, err := ledger.Load(flags.legs, flags.accounts, g.cfg.Accounts)
	if err != nil {
		return err
	}

	src := source{dir: filepath.Dir(target), name: filepath.Base(target)}
	outcomes, err := g.importAll(ctx, []source{src}, flags.importFlags)
	if err != nil {
		return err
	}
	o := &outcomes[0]
	if o.err != nil {
		_ = g.audit(auditlog.ActionMatch, outcomes, nil)
		return o.err
	}

	matcher := reconcile.NewMatcher(snapshot, snapshot)
	summary, err := matcher.Match(ctx, o.result.Rows, flags.account)
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

	if flags.mark && summary.Matched > 0 {
		n := snapshot.MarkImported(o.result.Rows, time.Now().UTC())
		if err := snapshot.SaveLegs(flags.legs); err != nil {
			return err
		}
		log.Info().Int("legs", n).Str("path", flags.legs).Msg("transfer legs marked imported")
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "%d of %d rows matched (high %d, medium %d, low %d)\n",
		summary.Matched, summary.Checked,
		summary.ByConfidence[model.ConfidenceHigh],
		summary.ByConfidence[model.ConfidenceMedium],
		summary.ByConfidence[model.ConfidenceLow])

	return g.audit(auditlog.ActionMatch, outcomes, map[int]int{0: summary.Matched})
}
