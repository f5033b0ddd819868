package constraint

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/envsync/envsync/internal/schema"
)

// BackupDir is the directory under the data dir holding backup files.
const BackupDir = "fk_constraint_backup"

// BackupFileName is the per-database backup file name.
func BackupFileName(host string, port int, service string) string {
	return fmt.Sprintf("fk_bkup_%s_%d_%s.sql", host, port, service)
}

// Ledger records foreign key definitions before they are dropped so they can
// be recreated verbatim. The ledger is mirrored to a backup file holding one
// add statement per line; the file is removed once the ledger is empty.
type Ledger struct {
	path   string
	logger *slog.Logger

	entries map[string]schema.TableConstraint
	order   []string
}

// NewLedger creates a ledger backed by path.
func NewLedger(path string, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{path: path, logger: logger, entries: make(map[string]schema.TableConstraint)}
}

// Path returns the backup file path.
func (l *Ledger) Path() string {
	return l.path
}

// Load reads the backup file left by an earlier run, if any, into the ledger.
func (l *Ledger) Load() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading constraint backup: %w", err)
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		c, err := ParseAddStatement(line)
		if err != nil {
			return fmt.Errorf("parsing constraint backup %s: %w", l.path, err)
		}
		l.put(c)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading constraint backup: %w", err)
	}
	if len(l.order) > 0 {
		l.logger.Warn("recovered constraints from an interrupted run", "file", l.path, "count", len(l.order))
	}
	return nil
}

// Record adds constraints to the ledger and persists the backup file. It must
// be called before the constraints are dropped.
func (l *Ledger) Record(cs ...schema.TableConstraint) error {
	for _, c := range cs {
		l.put(c.Normalized())
	}
	return l.flush()
}

// Remove drops c from the ledger once it has been recreated.
func (l *Ledger) Remove(c schema.TableConstraint) error {
	key := c.Key()
	if _, ok := l.entries[key]; !ok {
		return nil
	}
	delete(l.entries, key)
	for i, k := range l.order {
		if k == key {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return l.flush()
}

// Pending returns the recorded constraints in recording order.
func (l *Ledger) Pending() []schema.TableConstraint {
	out := make([]schema.TableConstraint, 0, len(l.order))
	for _, k := range l.order {
		out = append(out, l.entries[k])
	}
	return out
}

// Len returns the number of recorded constraints.
func (l *Ledger) Len() int {
	return len(l.order)
}

func (l *Ledger) put(c schema.TableConstraint) {
	key := c.Key()
	if _, ok := l.entries[key]; !ok {
		l.order = append(l.order, key)
	}
	l.entries[key] = c
}

func (l *Ledger) flush() error {
	if len(l.order) == 0 {
		err := os.Remove(l.path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("removing constraint backup: %w", err)
		}
		l.logger.Debug("constraint backup removed", "file", l.path)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("creating constraint backup directory: %w", err)
	}
	var buf bytes.Buffer
	for _, c := range l.Pending() {
		buf.WriteString(AddStatement(c))
		buf.WriteByte('\n')
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing constraint backup: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("writing constraint backup: %w", err)
	}
	return nil
}
