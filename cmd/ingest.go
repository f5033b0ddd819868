package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/envsync/envsync/internal/config"
	"github.com/envsync/envsync/internal/database"
	"github.com/envsync/envsync/internal/loader"
	"github.com/envsync/envsync/internal/lock"
	"github.com/envsync/envsync/internal/objectstore"
	"github.com/envsync/envsync/internal/paths"
)

var (
	ingestPurge     bool
	ingestRefreshDB bool
	ingestTable     string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <DEST> <ENV>",
	Short: "Load cached table data into the local database",
	Long: `Load the data extracted from ENV (DEV, TEST, PROD) into the local DEST
database (ORACLE or POSTGRES). Data files missing locally are pulled from
the object store first.

  --purge      delete the local cached files and pull fresh ones
  --refreshdb  empty the tables before loading; otherwise tables that
               already hold rows are left alone`,
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
		db, err := openDB(ctx, engine, config.EnvLocal, layout)
		if err != nil {
			return err
		}
		defer db.Close()

		status, err := runIngest(ctx, db, store, layout, ingestOptions{
			purge:     ingestPurge,
			refreshDB: ingestRefreshDB,
			table:     ingestTable,
		}, currentLogger())
		if status != nil {
			printLoadSummary(status)
		}
		return err
	},
}

type ingestOptions struct {
	purge     bool
	refreshDB bool
	table     string
}

// runIngest pulls the data files of the destination's tables and loads them.
func runIngest(ctx context.Context, db database.DB, store *objectstore.Store, layout paths.Layout, opts ingestOptions, logger *slog.Logger) (*loader.Status, error) {
	tables := []string{opts.table}
	if opts.table == "" {
		all, err := db.Tables(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing tables: %w", err)
		}
		tables = all
	}
	logger.Debug("tables to import", "count", len(tables))

	if opts.purge {
		logger.Info("purging cached local data files")
		if err := layout.RemoveExports(tables); err != nil {
			return nil, err
		}
	}
	if err := layout.Ensure(); err != nil {
		return nil, err
	}
	if _, err := store.PullTables(ctx, layout, tables); err != nil {
		return nil, err
	}

	cfg := currentConfig()
	sched := loader.NewScheduler(db, loader.Options{
		MaxRetries:      cfg.Load.MaxRetries,
		PurgeMaxRetries: cfg.Load.PurgeMaxRetries,
		EnableRetries:   cfg.Load.EnableConstraintRetries,
		RefreshDB:       opts.refreshDB,
		FileFor:         layout.ExportFile,
		Logger:          logger,
		OnStatus:        progressPrinter(),
	})

	if opts.refreshDB {
		if err := sched.Purge(ctx, tables); err != nil {
			return nil, err
		}
	}
	return sched.Run(ctx, tables)
}

// progressPrinter reports phase changes on stdout.
func progressPrinter() loader.StatusCallback {
	var last loader.Phase
	return func(s *loader.Status) {
		if s.Phase == last {
			return
		}
		last = s.Phase
		switch s.Phase {
		case loader.PhasePreparing:
			fmt.Println("Disabling constraints and triggers...")
		case loader.PhaseLoading:
			fmt.Println("Loading tables...")
		case loader.PhaseRetrying:
			fmt.Printf("Retrying deferred tables (pass %d)...\n", s.Attempt)
		case loader.PhaseFinalizing:
			fmt.Println("Fixing sequences and re-enabling constraints...")
		}
	}
}

func printLoadSummary(s *loader.Status) {
	fmt.Println()
	fmt.Printf("Load %s after %d pass(es) in %s\n", s.Phase, s.Attempt, s.ElapsedTime.Round(time.Millisecond))
	fmt.Printf("  Loaded:    %d tables, %d rows\n", s.Count(loader.TableLoaded), s.RowsLoaded())
	fmt.Printf("  Skipped:   %d tables\n", s.Count(loader.TableSkipped))
	fmt.Printf("  Sequences: %d advanced\n", s.SequencesFixed)
	if n := s.Count(loader.TableFailed); n > 0 {
		fmt.Printf("  Failed:    %d tables\n", n)
		for _, t := range s.Tables {
			if t.State == loader.TableFailed {
				fmt.Printf("    %s: %s\n", t.Name, t.Error)
			}
		}
	}
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestPurge, "purge", false, "delete local cached data files and pull fresh ones")
	ingestCmd.Flags().BoolVar(&ingestRefreshDB, "refreshdb", false, "empty tables before loading them")
	ingestCmd.Flags().StringVar(&ingestTable, "table", "", "load a single table")
	rootCmd.AddCommand(ingestCmd)
}
