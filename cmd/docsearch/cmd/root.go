// Package cmd provides the docsearch CLI commands.
package cmd

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/source"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
)

const (
	formatText = "text"
	formatJSON = "json"
)

type globalOptions struct {
	index        string
	strictTitles bool
	logLevel     string
}

// NewRootCmd creates the root command for the docsearch CLI.
func NewRootCmd() *cobra.Command {
	var opts globalOptions

	cmd := &cobra.Command{
		Use:   "docsearch",
		Short: "Query documentation search indexes",
		Long: `docsearch loads a Sphinx searchindex.js or a native JSON index and
answers full-text and API object queries against it.

The index may be a local path or an http(s) URL.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.SetupWriter(cmd.ErrOrStderr(), opts.logLevel, "text")
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.index, "index", "i", "searchindex.js", "Index file path or URL")
	cmd.PersistentFlags().BoolVar(&opts.strictTitles, "strict-titles", false, "Reject indexes whose title terms are missing from titles")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	cmd.AddCommand(newSearchCmd(&opts))
	cmd.AddCommand(newObjectsCmd(&opts))
	cmd.AddCommand(newInspectCmd(&opts))
	cmd.AddCommand(newPublishCmd(&opts))

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// openSource picks the source for an index location.
func openSource(location string) source.Source {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return source.NewHTTPSource(location, &http.Client{Timeout: time.Minute})
	}
	return &source.FileSource{Path: location}
}

// loadIndex fetches and parses the index named by the global flags.
func loadIndex(ctx context.Context, opts *globalOptions) (*index.Index, error) {
	holder := index.NewHolder(nil)
	var idxOpts []index.Option
	if opts.strictTitles {
		idxOpts = append(idxOpts, index.WithStrictTitles())
	}
	loader := source.NewLoader(openSource(opts.index), holder, source.WithIndexOptions(idxOpts...))
	if _, err := loader.Reload(ctx); err != nil {
		return nil, fmt.Errorf("loading %s: %w", opts.index, err)
	}
	return holder.Load(), nil
}

func checkFormat(format string) error {
	if format != formatText && format != formatJSON {
		return fmt.Errorf("unknown format %q (want text or json)", format)
	}
	return nil
}
