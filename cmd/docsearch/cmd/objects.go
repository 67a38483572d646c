package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/matcher"
)

func newObjectsCmd(global *globalOptions) *cobra.Command {
	var (
		limit  int
		format string
	)

	cmd := &cobra.Command{
		Use:   "objects <name>",
		Short: "Find API objects by name",
		Long: `List API objects whose qualified name or label contains the given
text, ignoring case. Exact matches come first.

Examples:
  docsearch objects Camera
  docsearch objects Gf.Cam --limit 50 --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			idx, err := loadIndex(cmd.Context(), global)
			if err != nil {
				return err
			}
			matches, err := executor.New(index.NewHolder(idx)).Objects(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			return printObjects(cmd.OutOrStdout(), idx, matches, format)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", executor.DefaultLimit, "Maximum number of objects")
	cmd.Flags().StringVarP(&format, "format", "f", formatText, "Output format: text, json")

	return cmd
}

func printObjects(w io.Writer, idx *index.Index, matches []matcher.ObjectMatch, format string) error {
	if format == formatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(matches)
	}
	if len(matches) == 0 {
		fmt.Fprintln(w, "No matching objects")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTYPE\tPRIORITY\tDOCUMENT")
	for _, m := range matches {
		doc, _ := idx.Document(m.Object.DocID)
		name := m.Object.Name
		if m.Exact {
			name += " *"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", name, m.Object.Type, m.Object.Priority, doc.Name)
	}
	return tw.Flush()
}
