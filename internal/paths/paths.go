// Package paths lays out the local data directory and object store keys.
package paths

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/envsync/envsync/internal/config"
	"github.com/envsync/envsync/internal/database"
	"github.com/envsync/envsync/internal/datafile"
)

// ConstraintBackupDirName holds the foreign key backup files.
const ConstraintBackupDirName = "fk_constraint_backup"

// Layout resolves file locations for one environment and database type.
type Layout struct {
	DataDir string
	Env     config.Env
	DBType  database.Type
	Prefix  string
}

// New returns the layout under dataDir.
func New(dataDir string, env config.Env, dbType database.Type, prefix string) Layout {
	if dataDir == "" {
		dataDir = "data"
	}
	return Layout{DataDir: dataDir, Env: env, DBType: dbType, Prefix: strings.Trim(prefix, "/")}
}

// FileName is the data file name of table.
func FileName(table string) string {
	return strings.ToUpper(table) + datafile.Suffix
}

// ExportDir is <data>/<ENV>/<DBTYPE>.
func (l Layout) ExportDir() string {
	return filepath.Join(l.DataDir, string(l.Env), string(l.DBType))
}

// ExportFile is the local data file of table.
func (l Layout) ExportFile(table string) string {
	return filepath.Join(l.ExportDir(), FileName(table))
}

// ObjectKey is the object store key of table. Keys always use forward slashes.
func (l Layout) ObjectKey(table string) string {
	if l.Prefix == "" {
		return path.Join(string(l.DBType), FileName(table))
	}
	return path.Join(l.Prefix, string(l.DBType), FileName(table))
}

// ObjectPrefix is the key prefix shared by every table of the layout.
func (l Layout) ObjectPrefix() string {
	return strings.TrimSuffix(l.ObjectKey("x"), FileName("x"))
}

// ConstraintBackupDir is <data>/fk_constraint_backup.
func (l Layout) ConstraintBackupDir() string {
	return filepath.Join(l.DataDir, ConstraintBackupDirName)
}

// Ensure creates the export and constraint backup directories.
func (l Layout) Ensure() error {
	for _, dir := range []string{l.ExportDir(), l.ConstraintBackupDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

// Exists reports whether the local data file of table is present.
func (l Layout) Exists(table string) bool {
	_, err := os.Stat(l.ExportFile(table))
	return err == nil
}

// RemoveExports deletes the local data files of tables. Missing files are
// not an error.
func (l Layout) RemoveExports(tables []string) error {
	for _, t := range tables {
		if err := os.Remove(l.ExportFile(t)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing data file of %s: %w", t, err)
		}
	}
	return nil
}
