package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/envsync/envsync/internal/ddl"
	"github.com/envsync/envsync/internal/depgraph"
	"github.com/envsync/envsync/internal/migrationfile"
	"github.com/envsync/envsync/internal/schema"
)

var (
	migSeed      string
	migSchema    string
	migType      string
	migFolder    string
	migVersion   string
	migName      string
	migBatchFile string
)

var createMigrationsCmd = &cobra.Command{
	Use:   "create-migrations",
	Short: "Write migration files for an object and its dependencies",
	Long: `Resolve the dependencies of a seed object and write their DDL, children
before parents, as versioned migration files:

  V<version>__<name>.sql      tables, views, sequences, synonyms
  V<version+1>__<name>_P.sql  types, packages, functions and procedures
  V<version+2>__<name>_T.sql  triggers

Objects already present in a migration file of the folder are skipped, so
running again only adds what is new. With --batch-file one migration set is
written per seed table listed in the file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := currentConfig()
		folderPath := migFolder
		if folderPath == "" {
			folderPath = cfg.Migrations.Folder
		}
		versionStr := migVersion
		if versionStr == "" {
			versionStr = cfg.Migrations.StartingVersion
		}
		start, err := migrationfile.NewVersion(versionStr)
		if err != nil {
			return err
		}

		ctx := context.Background()
		db, closeDB, err := openStructure(ctx)
		if err != nil {
			return err
		}
		defer closeDB()

		var seeds []migrationSeed
		if migBatchFile != "" {
			seeds, err = batchMigrationSeeds(migBatchFile)
			if err != nil {
				return err
			}
		} else {
			ref, err := seedObject(ctx, db, migSeed, migSchema, migType)
			if err != nil {
				return err
			}
			seeds = []migrationSeed{{Ref: ref, Name: migName}}
		}

		folder, err := migrationfile.OpenFolder(folderPath, currentLogger())
		if err != nil {
			return err
		}
		defer folder.Close()

		written, err := runCreateMigrations(ctx, db, folder, seeds, start, currentLogger())
		for _, f := range written {
			fmt.Printf("  %s\n", f)
		}
		if err != nil {
			return err
		}
		if len(written) == 0 {
			fmt.Println("Nothing new to migrate.")
			return nil
		}
		fmt.Printf("Wrote %d migration file(s) to %s\n", len(written), folder.Dir())
		return nil
	},
}

// migrationSeed is one migration set to generate.
type migrationSeed struct {
	Ref  schema.ObjectRef
	Name string
}

func batchMigrationSeeds(path string) ([]migrationSeed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening batch file: %w", err)
	}
	defer f.Close()

	lines, err := parseBatchFile(f)
	if err != nil {
		return nil, err
	}
	seeds := make([]migrationSeed, 0, len(lines))
	for _, l := range lines {
		seeds = append(seeds, migrationSeed{
			Ref:  schema.NewObjectRef(l.Name, l.Schema, schema.KindTable),
			Name: strings.ToLower(l.Name),
		})
	}
	return seeds, nil
}

// runCreateMigrations writes one migration set per seed. Every seed shares
// one resolver and one exported ledger, seeded from the files already in the
// folder, so no object is written twice.
func runCreateMigrations(ctx context.Context, db structureDB, folder *migrationfile.Folder, seeds []migrationSeed, start *migrationfile.Version, logger *slog.Logger) ([]string, error) {
	exported, err := folder.Exported()
	if err != nil {
		return nil, err
	}
	logger.Debug("objects already migrated", "count", exported.Len())

	resolver := depgraph.NewResolver(db, logger)
	emitter := ddl.NewEmitter(db, exported, logger)

	var written []string
	for _, seed := range seeds {
		logger.Info("generating migration", "seed", seed.Ref.String(), "name", seed.Name)
		tree, err := resolver.Resolve(ctx, seed.Ref)
		if err != nil {
			return written, fmt.Errorf("resolving %s: %w", seed.Ref, err)
		}
		bucket, err := emitter.Emit(ctx, tree)
		if err != nil {
			return written, fmt.Errorf("generating DDL for %s: %w", seed.Ref, err)
		}
		files, err := folder.Write(bucket, start, seed.Name)
		if err != nil {
			return written, err
		}
		for _, f := range files {
			written = append(written, filepath.Base(f))
		}
	}
	for kind, names := range resolver.Graph().ProcessedByKind() {
		logger.Debug("resolved objects", "kind", string(kind), "count", len(names), "names", strings.Join(names, ","))
	}
	return written, nil
}

func init() {
	createMigrationsCmd.Flags().StringVar(&migSeed, "seed-table", "", "name of the object to migrate")
	createMigrationsCmd.Flags().StringVar(&migSeed, "seed-object", "", "alias of --seed-table")
	createMigrationsCmd.Flags().StringVar(&migSchema, "schema", "THE", "schema of the seed object")
	createMigrationsCmd.Flags().StringVar(&migType, "type", "TABLE", "kind of the seed object, or AUTO to look it up")
	createMigrationsCmd.Flags().StringVar(&migFolder, "migration-folder", "", "folder the migration files are written to (default from config: migrations)")
	createMigrationsCmd.Flags().StringVar(&migVersion, "migration-version", "", "starting version when the folder is empty (default from config: 1.0.0)")
	createMigrationsCmd.Flags().StringVar(&migName, "migration-name", "first_migration", "description part of the migration file names")
	createMigrationsCmd.Flags().StringVar(&migBatchFile, "batch-file", "", "file listing one seed table per line")
	rootCmd.AddCommand(createMigrationsCmd)
}
