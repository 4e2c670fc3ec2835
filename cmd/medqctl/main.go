// Command medqctl runs one-off maintenance against the content store: schema
// migration, seeding, export and the legacy import.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/medq/internal/content"
	"github.com/p-n-ai/medq/internal/events"
	"github.com/p-n-ai/medq/internal/importer"
	"github.com/p-n-ai/medq/internal/platform/cache"
	"github.com/p-n-ai/medq/internal/platform/config"
	"github.com/p-n-ai/medq/internal/platform/database"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := newRootCmd(&cli{cfg: cfg, open: openPostgres}).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// cli carries what every subcommand needs. open is swapped in tests.
type cli struct {
	cfg  *config.Config
	open func(ctx context.Context, cfg *config.Config) (*content.Service, func(), error)
}

func newRootCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "medqctl",
		Short:        "Maintain the medq content store",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&c.cfg.Database.URL, "database-url", c.cfg.Database.URL, "PostgreSQL URL (MEDQ_DATABASE_URL)")

	cmd.AddCommand(
		newMigrateCmd(c),
		newSeedCmd(c),
		newExportCmd(c),
		newImportLegacyCmd(c),
	)
	return cmd
}

func newMigrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := database.New(cmd.Context(), database.Options{URL: c.cfg.Database.URL, MaxConns: 2})
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return nil
		},
	}
}

func newSeedCmd(c *cli) *cobra.Command {
	var (
		file   string
		strict bool
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Import a YAML file, YAML directory or XLSX workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := importer.LoadPath(file)
			if err != nil {
				return err
			}
			svc, closeFn, err := c.open(cmd.Context(), c.cfg)
			if err != nil {
				return err
			}
			defer closeFn()
			return runImport(cmd.Context(), cmd.OutOrStdout(), svc, b, !strict)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Seed file or directory (required)")
	cmd.Flags().BoolVar(&strict, "strict", false, "Fail on records that already exist instead of skipping them")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newExportCmd(c *cli) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the whole hierarchy to an XLSX workbook or YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := c.open(cmd.Context(), c.cfg)
			if err != nil {
				return err
			}
			defer closeFn()
			return runExport(cmd.Context(), svc, out)
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "Output path ending in .xlsx, .yaml or .yml (required)")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func newImportLegacyCmd(c *cli) *cobra.Command {
	var (
		uri    string
		dbName string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "import-legacy",
		Short: "Copy the legacy document store into the content store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if uri == "" {
				return fmt.Errorf("--mongo-uri or MEDQ_LEGACY_MONGO_URI is required")
			}
			ctx := cmd.Context()
			src, err := importer.NewLegacySource(ctx, uri, dbName)
			if err != nil {
				return err
			}
			defer src.Close(context.WithoutCancel(ctx))

			dump, err := src.Load(ctx)
			if err != nil {
				return err
			}
			b, report := importer.Convert(dump)
			fmt.Fprintf(cmd.OutOrStdout(), "converted %d records, orphans: %v\n", b.Len(), report.Orphans)
			if dryRun {
				return nil
			}

			svc, closeFn, err := c.open(ctx, c.cfg)
			if err != nil {
				return err
			}
			defer closeFn()
			return runImport(ctx, cmd.OutOrStdout(), svc, b, true)
		},
	}
	cmd.Flags().StringVar(&uri, "mongo-uri", c.cfg.Legacy.MongoURI, "Legacy MongoDB URI (MEDQ_LEGACY_MONGO_URI)")
	cmd.Flags().StringVar(&dbName, "database", c.cfg.Legacy.Database, "Legacy database name")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Read and convert without writing")
	return cmd
}

func runImport(ctx context.Context, w io.Writer, svc *content.Service, b content.Bundle, skipExisting bool) error {
	res, err := svc.Import(ctx, b, skipExisting)
	if err != nil {
		return err
	}
	for _, kind := range content.Kinds {
		fmt.Fprintf(w, "%-9s inserted %d, skipped %d\n", kind, res.Inserted[kind], res.Skipped[kind])
	}
	return nil
}

func runExport(ctx context.Context, svc *content.Service, path string) error {
	b, err := svc.Export(ctx)
	if err != nil {
		return err
	}

	var write func(io.Writer, content.Bundle) error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		write = importer.WriteWorkbook
	case ".yaml", ".yml":
		write = importer.WriteYAML
	default:
		return fmt.Errorf("%s: unsupported export type (want .xlsx, .yaml or .yml)", path)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f, b); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	slog.Info("export written", "path", path, "records", b.Len())
	return nil
}

// openPostgres opens the content service over PostgreSQL. When the cache is
// enabled, writes are published so running servers pick them up.
func openPostgres(ctx context.Context, cfg *config.Config) (*content.Service, func(), error) {
	db, err := database.New(ctx, database.Options{
		URL:      cfg.Database.URL,
		MaxConns: 4,
		Migrate:  cfg.Database.Migrate,
	})
	if err != nil {
		return nil, nil, err
	}
	store, err := content.NewPostgresStore(db.Pool, cfg.Store.Timeout)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	closers := []func(){db.Close}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var notifier content.Notifier = content.NopNotifier{}
	if cfg.Cache.Enabled {
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, func() { _ = c.Close() })
		notifier = events.NewRedisBroker(c.Client, cfg.Events.Channel, events.NewHub())
	}

	svc := content.NewService(content.ServiceConfig{
		Store:    store,
		Notifier: notifier,
		MaxBatch: cfg.Content.MaxBatch,
	})
	return svc, closeAll, nil
}
