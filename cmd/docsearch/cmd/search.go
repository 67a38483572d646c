package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/tokenizer"
)

type searchOptions struct {
	limit    int
	within   []string
	format   string
	stemming bool
}

func newSearchCmd(global *globalOptions) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search documents and API objects",
		Long: `Search the index for documents containing every query term and for
API objects whose name contains the query.

Prefix a term with - to exclude documents containing it.

Examples:
  docsearch search "render camera"
  docsearch search "stage -deprecated" --within api --limit 5
  docsearch search UsdStage --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(opts.format); err != nil {
				return err
			}
			idx, err := loadIndex(cmd.Context(), global)
			if err != nil {
				return err
			}
			exec := executor.New(index.NewHolder(idx),
				executor.WithTokenizer(tokenizer.New(tokenizer.WithStemming(opts.stemming))),
			)
			resp, err := exec.Execute(cmd.Context(), executor.Request{
				Query:       strings.Join(args, " "),
				Limit:       opts.limit,
				FilterNames: opts.within,
			})
			if err != nil {
				return err
			}
			return printSearch(cmd.OutOrStdout(), resp, opts.format)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", executor.DefaultLimit, "Maximum number of results")
	cmd.Flags().StringSliceVarP(&opts.within, "within", "w", nil, "Restrict to these document names (repeatable)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", formatText, "Output format: text, json")
	cmd.Flags().BoolVar(&opts.stemming, "stem", false, "Stem query terms")

	return cmd
}

func printSearch(w io.Writer, resp *executor.Response, format string) error {
	if format == formatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	if len(resp.Results) == 0 {
		fmt.Fprintf(w, "No results for %q\n", resp.Query)
		return nil
	}
	fmt.Fprintf(w, "%d results for %q (showing %d)\n\n", resp.TotalHits, resp.Query, len(resp.Results))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tKIND\tDOCUMENT\tTITLE")
	for _, r := range resp.Results {
		target := r.Document
		if r.Kind == ranker.KindObject && r.Anchor != "" {
			target += "#" + r.Anchor
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.Score, r.Kind, target, r.Title)
	}
	return tw.Flush()
}
