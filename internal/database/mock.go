package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/envsync/envsync/internal/datafile"
	"github.com/envsync/envsync/internal/schema"
)

// MockDB is an in-memory test double for DB and Catalog.
type MockDB struct {
	ConnectErr error
	DBType     Type
	SchemaName string

	// Catalog
	TableNames  []string
	FKs         []schema.TableConstraint
	TriggerList []schema.Trigger
	Deps        map[schema.ObjectRef][]schema.ObjectRef
	DDLText     map[schema.ObjectRef]string
	Kinds       map[string][]schema.Kind // key: "SCHEMA.NAME"
	CatalogErr  error

	// Data
	RowCounts      map[string]int64
	LoadRows       map[string]int64   // rows a successful load reports, default 1
	LoadErr        map[string]error   // returned by every load of the table
	LoadErrs       map[string][]error // returned by successive loads, then success
	TruncateErr    map[string]error
	TruncateErrs   map[string][]error
	ExtractColumns map[string][]string
	ExtractRows    map[string][][]any

	// Admin
	EnableErrs  map[string][]error // key: constraint name
	DisableErr  error
	Sequences   map[string]int64 // key: "OWNER.SEQUENCE"
	Maxes       map[string]int64 // key: "OWNER.TABLE.COLUMN"
	SeqTriggers []schema.SequenceTrigger
	Owned       []schema.SequenceTarget
	Pending     []schema.TableConstraint

	// Track calls
	Connected     bool
	Closed        bool
	Events        []string
	LoadAttempts  map[string]int
	DDLCalls      map[schema.ObjectRef]int
	DepCalls      map[schema.ObjectRef]int
	DisabledCons  map[string]bool
	DisabledTrigs map[string]bool
	SequencesSet  map[string]int64
}

// NewMockDB returns an empty mock for schemaName.
func NewMockDB(schemaName string) *MockDB {
	return &MockDB{
		DBType:        TypeOracle,
		SchemaName:    schemaName,
		Deps:          map[schema.ObjectRef][]schema.ObjectRef{},
		DDLText:       map[schema.ObjectRef]string{},
		Kinds:         map[string][]schema.Kind{},
		RowCounts:     map[string]int64{},
		LoadRows:      map[string]int64{},
		LoadErr:       map[string]error{},
		LoadErrs:      map[string][]error{},
		TruncateErr:   map[string]error{},
		TruncateErrs:  map[string][]error{},
		EnableErrs:    map[string][]error{},
		Sequences:     map[string]int64{},
		Maxes:         map[string]int64{},
		LoadAttempts:  map[string]int{},
		DDLCalls:      map[schema.ObjectRef]int{},
		DepCalls:      map[schema.ObjectRef]int{},
		DisabledCons:  map[string]bool{},
		DisabledTrigs: map[string]bool{},
		SequencesSet:  map[string]int64{},
	}
}

// AddObject registers ref with its DDL and dependencies.
func (m *MockDB) AddObject(ref schema.ObjectRef, ddl string, deps ...schema.ObjectRef) {
	ref = schema.NewObjectRef(ref.Name, ref.Schema, ref.Kind)
	m.DDLText[ref] = ddl
	if len(deps) > 0 {
		m.Deps[ref] = deps
	}
	key := ref.Schema + "." + ref.Name
	m.Kinds[key] = append(m.Kinds[key], ref.Kind)
}

func (m *MockDB) record(format string, args ...any) {
	m.Events = append(m.Events, fmt.Sprintf(format, args...))
}

func (m *MockDB) Connect(_ context.Context) error {
	if m.ConnectErr != nil {
		return m.ConnectErr
	}
	m.Connected = true
	return nil
}

func (m *MockDB) Close() error {
	m.Closed = true
	return nil
}

func (m *MockDB) Type() Type {
	return m.DBType
}

func (m *MockDB) Schema() string {
	return m.SchemaName
}

func (m *MockDB) Tables(_ context.Context) ([]string, error) {
	return m.TableNames, m.CatalogErr
}

func (m *MockDB) SchemaForeignKeys(_ context.Context) ([]schema.TableConstraint, error) {
	if m.CatalogErr != nil {
		return nil, m.CatalogErr
	}
	return m.FKs, nil
}

func (m *MockDB) SchemaTriggers(_ context.Context) ([]schema.Trigger, error) {
	if m.CatalogErr != nil {
		return nil, m.CatalogErr
	}
	var out []schema.Trigger
	for _, t := range m.TriggerList {
		if t.Enabled {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *MockDB) ForeignKeys(_ context.Context, table, _ string) ([]schema.TableConstraint, error) {
	if m.CatalogErr != nil {
		return nil, m.CatalogErr
	}
	var out []schema.TableConstraint
	for _, fk := range m.FKs {
		if strings.EqualFold(fk.Table, table) && !strings.EqualFold(fk.ReferencedTable, fk.Table) {
			out = append(out, fk)
		}
	}
	return out, nil
}

func (m *MockDB) Triggers(_ context.Context, table, _ string, includeDisabled bool) ([]schema.Trigger, error) {
	if m.CatalogErr != nil {
		return nil, m.CatalogErr
	}
	var out []schema.Trigger
	for _, t := range m.TriggerList {
		if strings.EqualFold(t.Table, table) && (t.Enabled || includeDisabled) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *MockDB) Dependencies(_ context.Context, ref schema.ObjectRef) ([]schema.ObjectRef, error) {
	if m.CatalogErr != nil {
		return nil, m.CatalogErr
	}
	ref = schema.NewObjectRef(ref.Name, ref.Schema, ref.Kind)
	m.DepCalls[ref]++
	return m.Deps[ref], nil
}

func (m *MockDB) ObjectKind(_ context.Context, name, owner string) (schema.Kind, error) {
	name, owner = strings.ToUpper(name), strings.ToUpper(owner)
	kinds := m.Kinds[owner+"."+name]
	if len(kinds) != 1 {
		return "", &AmbiguousObjectError{Name: name, Schema: owner, Count: len(kinds)}
	}
	return kinds[0], nil
}

func (m *MockDB) DDL(_ context.Context, ref schema.ObjectRef) (string, error) {
	if m.CatalogErr != nil {
		return "", m.CatalogErr
	}
	ref = schema.NewObjectRef(ref.Name, ref.Schema, ref.Kind)
	m.DDLCalls[ref]++
	return m.DDLText[ref], nil
}

func (m *MockDB) RowCount(_ context.Context, table string) (int64, error) {
	return m.RowCounts[table], nil
}

// Extract writes ExtractRows for table to a real data file.
func (m *MockDB) Extract(_ context.Context, table, path string) (int64, error) {
	cols := m.ExtractColumns[table]
	if len(cols) == 0 {
		cols = []string{"ID"}
	}
	w, err := datafile.Create(path, cols)
	if err != nil {
		return 0, err
	}
	for _, row := range m.ExtractRows[table] {
		if err := w.Write(row); err != nil {
			w.Abort()
			return 0, err
		}
	}
	m.record("extract:%s", table)
	return w.Rows(), w.Close()
}

func (m *MockDB) Load(_ context.Context, table, _ string) (int64, error) {
	m.LoadAttempts[table]++
	m.record("load:%s", table)
	if err := m.LoadErr[table]; err != nil {
		return 0, err
	}
	if q := m.LoadErrs[table]; len(q) > 0 {
		m.LoadErrs[table] = q[1:]
		if q[0] != nil {
			return 0, q[0]
		}
	}
	n, ok := m.LoadRows[table]
	if !ok {
		n = 1
	}
	m.RowCounts[table] += n
	return n, nil
}

func (m *MockDB) Truncate(_ context.Context, table string, _ bool) error {
	m.record("truncate:%s", table)
	if err := m.TruncateErr[table]; err != nil {
		return err
	}
	if q := m.TruncateErrs[table]; len(q) > 0 {
		m.TruncateErrs[table] = q[1:]
		if q[0] != nil {
			return q[0]
		}
	}
	m.RowCounts[table] = 0
	return nil
}

func (m *MockDB) DisableConstraint(_ context.Context, c schema.TableConstraint) error {
	m.record("disable-constraint:%s", c.Name)
	if m.DisableErr != nil {
		return m.DisableErr
	}
	m.DisabledCons[c.Name] = true
	return nil
}

func (m *MockDB) EnableConstraint(_ context.Context, c schema.TableConstraint) error {
	m.record("enable-constraint:%s", c.Name)
	if q := m.EnableErrs[c.Name]; len(q) > 0 {
		m.EnableErrs[c.Name] = q[1:]
		if q[0] != nil {
			return q[0]
		}
	}
	delete(m.DisabledCons, c.Name)
	return nil
}

func (m *MockDB) DisableTrigger(_ context.Context, t schema.Trigger) error {
	m.record("disable-trigger:%s", t.Name)
	m.DisabledTrigs[t.Name] = true
	return nil
}

func (m *MockDB) EnableTrigger(_ context.Context, t schema.Trigger) error {
	m.record("enable-trigger:%s", t.Name)
	delete(m.DisabledTrigs, t.Name)
	return nil
}

// PendingConstraints returns Pending, standing in for a recovered backup.
func (m *MockDB) PendingConstraints() []schema.TableConstraint {
	return m.Pending
}

func (m *MockDB) SequenceTriggers(_ context.Context, _ string) ([]schema.SequenceTrigger, error) {
	return m.SeqTriggers, nil
}

func (m *MockDB) OwnedSequences(_ context.Context, _ string) ([]schema.SequenceTarget, error) {
	return m.Owned, nil
}

func (m *MockDB) MaxColumnValue(_ context.Context, owner, table, column string) (int64, bool, error) {
	v, ok := m.Maxes[strings.ToUpper(owner+"."+table+"."+column)]
	return v, ok, nil
}

func (m *MockDB) SequenceNextValue(_ context.Context, owner, sequence string) (int64, error) {
	key := strings.ToUpper(owner + "." + sequence)
	v, ok := m.Sequences[key]
	if !ok {
		return 0, fmt.Errorf("sequence %s does not exist", key)
	}
	return v, nil
}

func (m *MockDB) SetSequenceNextValue(_ context.Context, owner, sequence string, next int64) error {
	key := strings.ToUpper(owner + "." + sequence)
	m.record("set-sequence:%s:%d", key, next)
	m.Sequences[key] = next
	m.SequencesSet[key] = next
	return nil
}
