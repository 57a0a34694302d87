package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/txnimport/internal/importer"
)

func newFormatsCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List supported import formats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg := importer.DefaultRegistry(g.cfg.ImportOptions())
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FORMAT\tEXTENSIONS")
			for _, name := range reg.Formats() {
				fmt.Fprintf(tw, "%s\t%s\n", name, strings.Join(reg.Get(name).SupportedFormats(), " "))
			}
			return tw.Flush()
		},
	}
}
