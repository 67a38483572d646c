package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/source"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/redis"
)

func newPublishCmd(global *globalOptions) *cobra.Command {
	var (
		configPath string
		name       string
		notify     bool
	)

	cmd := &cobra.Command{
		Use:   "publish <file>",
		Short: "Store an index in PostgreSQL for the search service",
		Long: `Validate an index file and store it as the next version of a named
index in PostgreSQL. Services using the postgres source pick it up on their
next reload; --notify asks them to reload now over Redis.

Use - to read the index from stdin.

Examples:
  docsearch publish build/html/searchindex.js --name usd
  docsearch publish searchindex.js --config configs/production.yaml --notify`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			data, err := readFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			var idxOpts []index.Option
			if global.strictTitles {
				idxOpts = append(idxOpts, index.WithStrictTitles())
			}
			idx, err := index.Parse(data, idxOpts...)
			if err != nil {
				return err
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if name == "" {
				name = cfg.Index.Name
			}
			db, err := postgres.New(cfg.Postgres)
			if err != nil {
				return err
			}
			defer db.Close()

			src := source.NewPostgresSource(db, name)
			if err := src.EnsureSchema(ctx); err != nil {
				return err
			}
			version, err := src.Store(ctx, data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %q version %d (%d documents, %d objects, content %s)\n",
				name, version, idx.DocumentCount(), idx.ObjectCount(), idx.Version())

			if !notify {
				return nil
			}
			rdb, err := pkgredis.NewClient(cfg.Redis)
			if err != nil {
				return fmt.Errorf("stored, but reload notification failed: %w", err)
			}
			defer rdb.Close()
			if err := source.NewReloadBus(rdb, cfg.Redis.ReloadChannel, "docsearch-cli", nil).Announce(ctx); err != nil {
				return fmt.Errorf("stored, but reload notification failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Reload requested on", cfg.Redis.ReloadChannel)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Service config file (database and redis settings)")
	cmd.Flags().StringVar(&name, "name", "", "Index name (default: index.name from config)")
	cmd.Flags().BoolVar(&notify, "notify", false, "Ask running services to reload over Redis")

	return cmd
}

func readFile(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
