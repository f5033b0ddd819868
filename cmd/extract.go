package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/envsync/envsync/internal/database"
	"github.com/envsync/envsync/internal/lock"
	"github.com/envsync/envsync/internal/objectstore"
	"github.com/envsync/envsync/internal/paths"
)

// flywayHistoryTable is owned by the migration tooling and never synced.
const flywayHistoryTable = "FLYWAY_SCHEMA_HISTORY"

var (
	extractRefresh bool
	extractTable   string
)

var extractCmd = &cobra.Command{
	Use:   "extract <SOURCE> <ENV>",
	Short: "Export table data of an environment to the object store",
	Long: `Export every table of the SOURCE database (ORACLE or POSTGRES) in ENV
(DEV, TEST, PROD) to gzip CSV files and upload them to the object store.
Tables whose file already exists in the object store are skipped unless
--refresh is given.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, env, err := parseTarget(args[0], args[1])
		if err != nil {
			return err
		}
		layout := layoutFor(engine, env)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		l, err := lock.Acquire(layout.ExportDir())
		if err != nil {
			return err
		}
		defer l.Release()

		store, err := openStore(ctx, env)
		if err != nil {
			return fmt.Errorf("connecting to object store: %w", err)
		}
		db, err := openDB(ctx, engine, env, layout)
		if err != nil {
			return err
		}
		defer db.Close()

		sum, err := runExtract(ctx, db, store, layout, extractOptions{
			refresh: extractRefresh,
			table:   extractTable,
		}, currentLogger())
		if err != nil {
			return err
		}
		fmt.Printf("Extract complete: %d exported, %d skipped\n", len(sum.exported), len(sum.skipped))
		return nil
	},
}

type extractOptions struct {
	refresh bool
	table   string
}

type extractSummary struct {
	exported []string
	skipped  []string
}

// runExtract exports and uploads each table whose remote file is missing,
// or every table when refreshing.
func runExtract(ctx context.Context, db database.DB, store *objectstore.Store, layout paths.Layout, opts extractOptions, logger *slog.Logger) (extractSummary, error) {
	var sum extractSummary
	if err := layout.Ensure(); err != nil {
		return sum, err
	}

	tables := []string{opts.table}
	if opts.table == "" {
		all, err := db.Tables(ctx)
		if err != nil {
			return sum, fmt.Errorf("listing tables: %w", err)
		}
		tables = tables[:0]
		for _, t := range all {
			if !strings.EqualFold(t, flywayHistoryTable) {
				tables = append(tables, t)
			}
		}
	}
	logger.Debug("tables to export", "count", len(tables))

	for _, t := range tables {
		local := layout.ExportFile(t)
		if opts.refresh {
			if err := os.Remove(local); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return sum, fmt.Errorf("removing %s: %w", local, err)
			}
		}

		key := layout.ObjectKey(t)
		exists, err := store.Exists(ctx, key)
		if err != nil {
			return sum, fmt.Errorf("checking %s: %w", key, err)
		}
		if exists && !opts.refresh {
			logger.Info("export file exists in object store, skipping", "table", t, "key", key)
			sum.skipped = append(sum.skipped, t)
			continue
		}

		if !layout.Exists(t) {
			logger.Info("exporting table", "table", t, "file", local)
			rows, err := db.Extract(ctx, t, local)
			if err != nil {
				return sum, fmt.Errorf("exporting %s: %w", t, err)
			}
			logger.Info("exported table", "table", t, "rows", rows)
		}
		if err := store.PutFile(ctx, key, local); err != nil {
			return sum, err
		}
		sum.exported = append(sum.exported, t)
	}
	return sum, nil
}

func init() {
	extractCmd.Flags().BoolVar(&extractRefresh, "refresh", false, "re-export tables that are already in the object store")
	extractCmd.Flags().StringVar(&extractTable, "table", "", "export a single table")
	rootCmd.AddCommand(extractCmd)
}
