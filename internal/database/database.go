// Package database implements the Oracle and PostgreSQL engines: catalog
// queries, table data export and load, constraint and trigger toggling and
// sequence state.
package database

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/envsync/envsync/internal/config"
	"github.com/envsync/envsync/internal/schema"
)

// Type names an engine in data file paths and object store keys.
type Type string

const (
	TypeOracle   Type = "ORA"
	TypePostgres Type = "OC_POSTGRES"
)

// TypeFor maps a configured engine to its Type.
func TypeFor(e config.Engine) Type {
	if e == config.EnginePostgres {
		return TypePostgres
	}
	return TypeOracle
}

// DB is a connection to one schema of one database instance.
type DB interface {
	Connect(ctx context.Context) error
	Close() error
	Type() Type
	Schema() string

	// Tables lists the tables of the schema.
	Tables(ctx context.Context) ([]string, error)
	// SchemaForeignKeys returns every foreign key of the schema, self
	// references included.
	SchemaForeignKeys(ctx context.Context) ([]schema.TableConstraint, error)
	// SchemaTriggers returns the enabled triggers of the schema.
	SchemaTriggers(ctx context.Context) ([]schema.Trigger, error)

	RowCount(ctx context.Context, table string) (int64, error)
	// Extract writes the rows of table to a data file at path.
	Extract(ctx context.Context, table, path string) (int64, error)
	// Load inserts the rows of the data file at path into table.
	Load(ctx context.Context, table, path string) (int64, error)
	// Truncate deletes every row of table.
	Truncate(ctx context.Context, table string, cascade bool) error

	DisableConstraint(ctx context.Context, c schema.TableConstraint) error
	EnableConstraint(ctx context.Context, c schema.TableConstraint) error
	DisableTrigger(ctx context.Context, t schema.Trigger) error
	EnableTrigger(ctx context.Context, t schema.Trigger) error

	MaxColumnValue(ctx context.Context, owner, table, column string) (int64, bool, error)
	SequenceNextValue(ctx context.Context, owner, sequence string) (int64, error)
	SetSequenceNextValue(ctx context.Context, owner, sequence string, next int64) error
}

// Catalog answers the structure queries behind dependency resolution and
// DDL generation.
type Catalog interface {
	ForeignKeys(ctx context.Context, table, owner string) ([]schema.TableConstraint, error)
	Triggers(ctx context.Context, table, owner string, includeDisabled bool) ([]schema.Trigger, error)
	Dependencies(ctx context.Context, ref schema.ObjectRef) ([]schema.ObjectRef, error)
	ObjectKind(ctx context.Context, name, owner string) (schema.Kind, error)
	DDL(ctx context.Context, ref schema.ObjectRef) (string, error)
}

// Options tune an engine.
type Options struct {
	// ChunkSize is the number of rows inserted per commit.
	ChunkSize int
	// BackupDir holds constraint backup files for engines that drop
	// constraints instead of disabling them.
	BackupDir string
	Logger    *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = 10000
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// New creates an unconnected DB for engine.
func New(engine config.Engine, params config.ConnectionParameters, opts Options) (DB, error) {
	switch engine {
	case config.EngineOracle:
		return NewOracle(params, opts), nil
	case config.EnginePostgres:
		return NewPostgres(params, opts), nil
	default:
		return nil, &UnsupportedDBError{DBType: string(engine)}
	}
}

// UnsupportedDBError is returned when the engine is not supported.
type UnsupportedDBError struct {
	DBType string
}

func (e *UnsupportedDBError) Error() string {
	return "unsupported database type: " + e.DBType
}

// AmbiguousObjectError is returned when a name does not identify exactly one
// catalog object.
type AmbiguousObjectError struct {
	Name   string
	Schema string
	Count  int
}

func (e *AmbiguousObjectError) Error() string {
	if e.Count == 0 {
		return "no object named " + e.Schema + "." + e.Name
	}
	return "object name " + e.Schema + "." + e.Name + " is ambiguous"
}

// PostgreSQL error classes.
const (
	pgForeignKeyViolation = "23503"
	pgDuplicateObject     = "42710"
	pgUndefinedObject     = "42704"
)

// Oracle integrity errors: parent key not found, parent keys not found
// while validating, child record found.
var oraForeignKeyCodes = []string{"ORA-02291", "ORA-02298", "ORA-02292", "ORA-02266"}

// IsForeignKeyViolation reports whether err was raised by a foreign key
// check.
func IsForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgForeignKeyViolation
	}
	msg := err.Error()
	for _, code := range oraForeignKeyCodes {
		if strings.Contains(msg, code) {
			return true
		}
	}
	return false
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// fkRow is one column pair of a foreign key as returned by the catalog.
type fkRow struct {
	Name          string
	Table         string
	Column        string
	RefSchema     string
	RefTable      string
	RefColumn     string
	RefConstraint string
}

// groupForeignKeys folds column rows into constraints, in first-seen order.
func groupForeignKeys(owner string, rows []fkRow) []schema.TableConstraint {
	index := make(map[string]int)
	var out []schema.TableConstraint
	for _, r := range rows {
		key := r.Table + "." + r.Name
		i, ok := index[key]
		if !ok {
			index[key] = len(out)
			out = append(out, schema.TableConstraint{
				Name:                 r.Name,
				Schema:               owner,
				Table:                r.Table,
				ReferencedSchema:     r.RefSchema,
				ReferencedTable:      r.RefTable,
				ReferencedConstraint: r.RefConstraint,
			})
			i = len(out) - 1
		}
		out[i].Columns = append(out[i].Columns, r.Column)
		out[i].ReferencedColumns = append(out[i].ReferencedColumns, r.RefColumn)
	}
	for i := range out {
		out[i] = out[i].Normalized()
	}
	return out
}
