package database

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/envsync/envsync/internal/config"
	"github.com/envsync/envsync/internal/ddl"
	"github.com/envsync/envsync/internal/depgraph"
	"github.com/envsync/envsync/internal/sequence"
)

var (
	_ DB               = (*Oracle)(nil)
	_ DB               = (*Postgres)(nil)
	_ DB               = (*MockDB)(nil)
	_ Catalog          = (*Oracle)(nil)
	_ Catalog          = (*MockDB)(nil)
	_ depgraph.Catalog = (*Oracle)(nil)
	_ ddl.Source       = (*Oracle)(nil)

	_ sequence.TriggerSource = (*Oracle)(nil)
	_ sequence.OwnedSource   = (*Postgres)(nil)
)

func TestFactoryDispatch(t *testing.T) {
	params := config.ConnectionParameters{Username: "u", Host: "h", Port: 1, ServiceName: "s", Schema: "THE"}

	d, err := New(config.EngineOracle, params, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := d.(*Oracle); !ok {
		t.Errorf("expected *Oracle, got %T", d)
	}

	d, err = New(config.EnginePostgres, params, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := d.(*Postgres); !ok {
		t.Errorf("expected *Postgres, got %T", d)
	}
	if d.Schema() != "the" {
		t.Errorf("expected lowercased schema, got %q", d.Schema())
	}
}

func TestFactoryDispatch_Unsupported(t *testing.T) {
	_, err := New(config.Engine("MYSQL"), config.ConnectionParameters{}, Options{})
	var unsupported *UnsupportedDBError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedDBError, got %v", err)
	}
}

func TestTypeFor(t *testing.T) {
	if TypeFor(config.EngineOracle) != TypeOracle {
		t.Error("expected ORA for Oracle")
	}
	if TypeFor(config.EnginePostgres) != TypePostgres {
		t.Error("expected OC_POSTGRES for PostgreSQL")
	}
}

func TestIsForeignKeyViolation(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("ORA-02291: integrity constraint violated - parent key not found"), true},
		{fmt.Errorf("loading SEEDLOT: %w", errors.New("ORA-02298: cannot validate")), true},
		{errors.New("ORA-00942: table or view does not exist"), false},
		{&pgconn.PgError{Code: "23503"}, true},
		{fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "23503"}), true},
		{&pgconn.PgError{Code: "23505"}, false},
	}
	for _, c := range cases {
		if got := IsForeignKeyViolation(c.err); got != c.want {
			t.Errorf("IsForeignKeyViolation(%v) = %v, expected %v", c.err, got, c.want)
		}
	}
}

func TestGroupForeignKeys(t *testing.T) {
	rows := []fkRow{
		{Name: "B_FK", Table: "B", Column: "Y", RefSchema: "THE", RefTable: "A", RefColumn: "Y"},
		{Name: "B_FK", Table: "B", Column: "X", RefSchema: "THE", RefTable: "A", RefColumn: "X"},
		{Name: "C_FK", Table: "C", Column: "A_ID", RefSchema: "THE", RefTable: "A", RefColumn: "ID"},
	}
	got := groupForeignKeys("THE", rows)
	if len(got) != 2 {
		t.Fatalf("expected 2 constraints, got %d", len(got))
	}
	if got[0].Name != "B_FK" || strings.Join(got[0].Columns, ",") != "X,Y" {
		t.Errorf("unexpected first constraint: %+v", got[0])
	}
	if got[1].Schema != "THE" || got[1].ReferencedTable != "A" {
		t.Errorf("unexpected second constraint: %+v", got[1])
	}
}

func TestPostgresBackupPath(t *testing.T) {
	dir := t.TempDir()
	p := NewPostgres(config.ConnectionParameters{Host: "localhost", Port: 5432, ServiceName: "spar", Schema: "THE"},
		Options{BackupDir: dir})
	want := filepath.Join(dir, "fk_bkup_localhost_5432_spar.sql")
	if p.ledger.Path() != want {
		t.Errorf("expected backup path %s, got %s", want, p.ledger.Path())
	}
	if !strings.HasPrefix(p.ConnString(), "postgres://") {
		t.Errorf("unexpected connection string %s", p.ConnString())
	}
}
