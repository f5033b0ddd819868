package migrationfile

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/envsync/envsync/internal/ddl"
	"github.com/envsync/envsync/internal/lock"
	"github.com/envsync/envsync/internal/schema"
)

// ErrFileExists is returned instead of overwriting a migration file.
var ErrFileExists = errors.New("migration file already exists")

// Companion file suffixes and their micro offsets from the base version.
const (
	ProgramSuffix = "_P"
	TriggerSuffix = "_T"

	programOffset = 1
	triggerOffset = 2
)

var fileNamePattern = regexp.MustCompile(`^V(\d+(?:\.\d+){0,2})__(.+)\.sql$`)

// File is a migration file found in a folder.
type File struct {
	Path        string
	Version     *Version
	Description string
}

// FileName returns the migration file name for v and description.
func FileName(v *Version, description string) string {
	return "V" + v.String() + "__" + description + ".sql"
}

// ParseFileName extracts the version and description from a migration file
// name. ok is false for anything else.
func ParseFileName(name string) (v *Version, description string, ok bool) {
	m := fileNamePattern.FindStringSubmatch(name)
	if m == nil {
		return nil, "", false
	}
	v, err := NewVersion(m[1])
	if err != nil {
		return nil, "", false
	}
	return v, m[2], true
}

// Folder is a migration folder held by one run. The folder lock keeps other
// envsync processes out until Close.
type Folder struct {
	dir    string
	lock   *lock.Lock
	logger *slog.Logger
}

// OpenFolder creates dir if needed and locks it.
func OpenFolder(dir string, logger *slog.Logger) (*Folder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l, err := lock.Acquire(dir)
	if err != nil {
		return nil, err
	}
	logger.Debug("opened migration folder", "dir", dir)
	return &Folder{dir: dir, lock: l, logger: logger}, nil
}

// Dir returns the folder path.
func (f *Folder) Dir() string {
	return f.dir
}

// Close releases the folder lock.
func (f *Folder) Close() error {
	return f.lock.Release()
}

// Files returns the migration files in the folder ordered by version.
func (f *Folder) Files() ([]File, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("reading migration folder: %w", err)
	}
	var out []File
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		v, desc, ok := ParseFileName(e.Name())
		if !ok {
			continue
		}
		out = append(out, File{Path: filepath.Join(f.dir, e.Name()), Version: v, Description: desc})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Version.LessThan(out[j].Version.Version)
	})
	return out, nil
}

// Exported parses every migration file in the folder and returns a ledger
// of the objects they already create.
func (f *Folder) Exported() (*ddl.ExportedLedger, error) {
	files, err := f.Files()
	if err != nil {
		return nil, err
	}
	ledger := ddl.NewExportedLedger()
	for _, file := range files {
		refs, err := ParseFile(file.Path)
		if err != nil {
			return nil, err
		}
		for _, r := range refs {
			ledger.Mark(r)
		}
		f.logger.Debug("existing migration", "file", filepath.Base(file.Path), "objects", len(refs))
	}
	return ledger, nil
}

// NextVersion returns the base version for a new migration set. An empty
// folder starts at start; otherwise the highest version present moves to
// the next minor, so the new set sorts after every companion file.
func (f *Folder) NextVersion(start *Version) (*Version, error) {
	files, err := f.Files()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return start, nil
	}
	highest := files[len(files)-1].Version
	return Max(start, highest.NextMinor()), nil
}

type plannedFile struct {
	path string
	text string
}

// Write writes bucket as one migration set named description: plain DDL in
// the base file, types, packages and functions/procedures in the _P
// companion, triggers in the _T companion. Nothing is written for an empty
// bucket. Every name is checked before the first file is created, and no
// existing file is ever overwritten.
func (f *Folder) Write(bucket *ddl.Bucket, start *Version, description string) ([]string, error) {
	if bucket == nil || bucket.Empty() {
		f.logger.Info("no new DDL, no migration written", "description", description)
		return nil, nil
	}
	base, err := f.NextVersion(start)
	if err != nil {
		return nil, err
	}

	program := bucket.Text(schema.ClassType) + bucket.Text(schema.ClassPackage) + bucket.Text(schema.ClassFuncProc)
	planned := []struct {
		version *Version
		suffix  string
		text    string
	}{
		{base, "", bucket.Text(schema.ClassPlain)},
		{base.AddMicro(programOffset), ProgramSuffix, program},
		{base.AddMicro(triggerOffset), TriggerSuffix, bucket.Text(schema.ClassTrigger)},
	}

	existing, err := f.Files()
	if err != nil {
		return nil, err
	}
	taken := make(map[string]string, len(existing))
	for _, e := range existing {
		taken[e.Version.String()] = e.Path
	}

	var files []plannedFile
	for _, p := range planned {
		if strings.TrimSpace(p.text) == "" {
			continue
		}
		path := filepath.Join(f.dir, FileName(p.version, description+p.suffix))
		if other, ok := taken[p.version.String()]; ok {
			return nil, fmt.Errorf("%w: %s (version %s used by %s)", ErrFileExists, path, p.version, filepath.Base(other))
		}
		files = append(files, plannedFile{path: path, text: p.text})
	}

	var written []string
	for _, pf := range files {
		if err := writeExclusive(pf.path, pf.text); err != nil {
			return written, err
		}
		f.logger.Info("wrote migration", "file", filepath.Base(pf.path))
		written = append(written, pf.path)
	}
	return written, nil
}

func writeExclusive(path, text string) error {
	fh, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", ErrFileExists, path)
		}
		return fmt.Errorf("creating migration file: %w", err)
	}
	if _, err := fh.WriteString(text); err != nil {
		fh.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return fh.Close()
}
