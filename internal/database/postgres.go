package database

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/envsync/envsync/internal/config"
	"github.com/envsync/envsync/internal/constraint"
	"github.com/envsync/envsync/internal/schema"
)

// Postgres implements DB for PostgreSQL using pgx. PostgreSQL cannot disable
// a foreign key, so constraints are dropped and recorded in a ledger that
// outlives the process until they are added back.
type Postgres struct {
	params config.ConnectionParameters
	schema string
	opts   Options
	pool   *pgxpool.Pool
	ledger *constraint.Ledger
	logger *slog.Logger
}

// NewPostgres creates a PostgreSQL engine. The schema defaults to public.
func NewPostgres(params config.ConnectionParameters, opts Options) *Postgres {
	opts = opts.withDefaults()
	s := strings.ToLower(params.Schema)
	if s == "" {
		s = "public"
	}
	backup := filepath.Join(opts.BackupDir,
		constraint.BackupFileName(params.Host, params.Port, params.ServiceName))
	logger := opts.Logger.With("db", string(TypePostgres))
	return &Postgres{
		params: params,
		schema: s,
		opts:   opts,
		ledger: constraint.NewLedger(backup, logger),
		logger: logger,
	}
}

// ConnString returns the pgx connection URL.
func (p *Postgres) ConnString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.params.Username, p.params.Password),
		Host:     p.params.Host + ":" + strconv.Itoa(p.params.Port),
		Path:     "/" + p.params.ServiceName,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// Connect opens a single-connection pool and loads constraints left dropped
// by an interrupted run.
func (p *Postgres) Connect(ctx context.Context) error {
	cfg, err := pgxpool.ParseConfig(p.ConnString())
	if err != nil {
		return fmt.Errorf("parsing connection string: %w", err)
	}
	cfg.MaxConns = 1
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connecting to PostgreSQL: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("pinging PostgreSQL: %w", err)
	}
	p.pool = pool

	if err := p.ledger.Load(); err != nil {
		return err
	}
	return nil
}

func (p *Postgres) Close() error {
	if p.pool != nil {
		p.pool.Close()
		p.pool = nil
	}
	return nil
}

func (p *Postgres) Type() Type {
	return TypePostgres
}

func (p *Postgres) Schema() string {
	return p.schema
}

// PendingConstraints returns constraints dropped but not yet added back,
// including those recovered from the backup file.
func (p *Postgres) PendingConstraints() []schema.TableConstraint {
	return p.ledger.Pending()
}

func (p *Postgres) conn() (*pgxpool.Pool, error) {
	if p.pool == nil {
		return nil, fmt.Errorf("not connected; call Connect first")
	}
	return p.pool, nil
}

// quoteIdentPg quotes an identifier. Unquoted PostgreSQL names resolve
// lowercased, so quoted names are lowercased to match.
func quoteIdentPg(s string) string {
	return `"` + strings.ReplaceAll(strings.ToLower(s), `"`, `""`) + `"`
}

func qualifiedPg(s, name string) string {
	return quoteIdentPg(s) + "." + quoteIdentPg(name)
}
