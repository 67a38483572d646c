package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/index"
)

func newInspectCmd(global *globalOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show index statistics",
		Long: `Load the index, validate it, and print its version and size.

A malformed index makes the command fail with the reason.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			idx, err := loadIndex(cmd.Context(), global)
			if err != nil {
				return err
			}
			return printStats(cmd.OutOrStdout(), idx.Stats(), format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatText, "Output format: text, json")
	return cmd
}

func printStats(w io.Writer, stats index.Stats, format string) error {
	if format == formatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}
	fmt.Fprintf(w, "Version:          %s\n", stats.Version)
	fmt.Fprintf(w, "Documents:        %d\n", stats.Documents)
	fmt.Fprintf(w, "Terms:            %d\n", stats.Terms)
	fmt.Fprintf(w, "Title terms:      %d\n", stats.TitleTerms)
	fmt.Fprintf(w, "Objects:          %d\n", stats.Objects)
	fmt.Fprintf(w, "Title mismatches: %d\n", stats.TitleMismatches)
	types := make([]string, 0, len(stats.ObjectsByType))
	for t := range stats.ObjectsByType {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(w, "  %-16s%d\n", t+":", stats.ObjectsByType[t])
	}
	return nil
}
