package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/envsync/envsync/internal/depgraph"
	"github.com/envsync/envsync/internal/schema"
)

var (
	depsSeed      string
	depsSchema    string
	depsType      string
	depsOutFormat string
	depsOutFile   string
)

var showDepsCmd = &cobra.Command{
	Use:   "show-deps",
	Short: "Print the dependency tree of a database object",
	Long: `Resolve the objects a seed object depends on: the tables its foreign
keys reference, its triggers, and the catalog dependencies of views, program
units, sequences, types and synonyms. Connection parameters come from the
ORACLE_* environment variables.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format := strings.ToLower(depsOutFormat)
		if format != "json" && format != "text" {
			return fmt.Errorf("unsupported output format %q (expected json or text)", depsOutFormat)
		}

		ctx := context.Background()
		db, closeDB, err := openStructure(ctx)
		if err != nil {
			return err
		}
		defer closeDB()

		seed, err := seedObject(ctx, db, depsSeed, depsSchema, depsType)
		if err != nil {
			return err
		}

		if depsOutFile == "" {
			return runShowDeps(ctx, db, seed, format, os.Stdout, currentLogger())
		}
		return writeShowDeps(depsOutFile, func(w io.Writer) error {
			return runShowDeps(ctx, db, seed, format, w, currentLogger())
		})
	},
}

// writeShowDeps runs write against a new file at path. A failed close is
// reported like a failed write.
func writeShowDeps(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing output file: %w", err)
	}
	return nil
}

// runShowDeps resolves seed and writes its tree to w as json or text.
func runShowDeps(ctx context.Context, db structureDB, seed schema.ObjectRef, format string, w io.Writer, logger *slog.Logger) error {
	tree, err := depgraph.NewResolver(db, logger).Resolve(ctx, seed)
	if err != nil {
		return err
	}
	rendered := tree.Render()
	logger.Debug("resolved dependencies", "seed", seed.String(), "objects", rendered.Count())

	if format == "json" {
		data, err := rendered.ToJSON()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	_, err = fmt.Fprintln(w, rendered.Text())
	return err
}

func init() {
	showDepsCmd.Flags().StringVar(&depsSeed, "seed-table", "", "name of the object to resolve")
	showDepsCmd.Flags().StringVar(&depsSeed, "seed-object", "", "alias of --seed-table")
	showDepsCmd.Flags().StringVar(&depsSchema, "schema", "THE", "schema of the seed object")
	showDepsCmd.Flags().StringVar(&depsType, "type", "TABLE", "kind of the seed object, or AUTO to look it up")
	showDepsCmd.Flags().StringVar(&depsOutFormat, "out-format", "text", "output format (json, text)")
	showDepsCmd.Flags().StringVarP(&depsOutFile, "output", "o", "", "write the tree to a file instead of stdout")
	rootCmd.AddCommand(showDepsCmd)
}
