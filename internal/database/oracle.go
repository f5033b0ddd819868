package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	go_ora "github.com/sijms/go-ora/v2"

	"github.com/envsync/envsync/internal/config"
)

// Oracle implements DB and Catalog using go-ora (pure Go, no Instant Client).
type Oracle struct {
	params config.ConnectionParameters
	owner  string
	opts   Options
	db     *sql.DB
	logger *slog.Logger
}

// NewOracle creates an Oracle engine. The schema defaults to the username.
func NewOracle(params config.ConnectionParameters, opts Options) *Oracle {
	opts = opts.withDefaults()
	owner := params.Schema
	if owner == "" {
		owner = params.Username
	}
	return &Oracle{
		params: params,
		owner:  strings.ToUpper(owner),
		opts:   opts,
		logger: opts.Logger.With("db", string(TypeOracle)),
	}
}

// newOracleWithDB wraps an open handle.
func newOracleWithDB(db *sql.DB, owner string, opts Options) *Oracle {
	o := NewOracle(config.ConnectionParameters{Schema: owner}, opts)
	o.db = db
	return o
}

// ConnString returns the go-ora connection URL.
func (o *Oracle) ConnString() string {
	return go_ora.BuildUrl(o.params.Host, o.params.Port, o.params.ServiceName,
		o.params.Username, o.params.Password, nil)
}

func (o *Oracle) Connect(ctx context.Context) error {
	db, err := sql.Open("oracle", o.ConnString())
	if err != nil {
		return fmt.Errorf("opening Oracle connection: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("pinging Oracle: %w", err)
	}
	o.db = db
	o.logger.Debug("connected", "host", o.params.Host, "service", o.params.ServiceName, "schema", o.owner)
	return nil
}

func (o *Oracle) Close() error {
	if o.db != nil {
		err := o.db.Close()
		o.db = nil
		return err
	}
	return nil
}

func (o *Oracle) Type() Type {
	return TypeOracle
}

func (o *Oracle) Schema() string {
	return o.owner
}

func (o *Oracle) conn() (*sql.DB, error) {
	if o.db == nil {
		return nil, fmt.Errorf("not connected; call Connect first")
	}
	return o.db, nil
}

// quoteIdentOra quotes an identifier. Unquoted Oracle names resolve
// uppercased, so quoted names are uppercased to match.
func quoteIdentOra(s string) string {
	return `"` + strings.ReplaceAll(strings.ToUpper(s), `"`, `""`) + `"`
}

func qualifiedOra(owner, name string) string {
	return quoteIdentOra(owner) + "." + quoteIdentOra(name)
}
