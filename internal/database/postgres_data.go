package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/envsync/envsync/internal/datafile"
)

func (p *Postgres) RowCount(ctx context.Context, table string) (int64, error) {
	pool, err := p.conn()
	if err != nil {
		return 0, err
	}
	var count int64
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s", qualifiedPg(p.schema, table))
	if err := pool.QueryRow(ctx, q).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting rows in %s: %w", table, err)
	}
	return count, nil
}

// Extract streams table out with COPY into a data file at path.
func (p *Postgres) Extract(ctx context.Context, table, path string) (int64, error) {
	pool, err := p.conn()
	if err != nil {
		return 0, err
	}
	c, err := pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquiring connection: %w", err)
	}
	defer c.Release()

	w, err := datafile.CreateRaw(path)
	if err != nil {
		return 0, err
	}
	q := fmt.Sprintf(`COPY (SELECT * FROM %s) TO STDOUT WITH (FORMAT csv, HEADER true, NULL '%s')`,
		qualifiedPg(p.schema, table), datafile.Null)
	tag, err := c.Conn().PgConn().CopyTo(ctx, w, q)
	if err != nil {
		w.Abort()
		return 0, fmt.Errorf("copying %s out: %w", table, err)
	}
	if err := w.Close(); err != nil {
		return 0, err
	}
	p.logger.Debug("extracted table", "table", table, "rows", tag.RowsAffected(), "path", path)
	return tag.RowsAffected(), nil
}

// Load streams the data file at path into table with COPY.
func (p *Postgres) Load(ctx context.Context, table, path string) (int64, error) {
	pool, err := p.conn()
	if err != nil {
		return 0, err
	}
	r, err := datafile.Open(path)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	c, err := pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquiring connection: %w", err)
	}
	defer c.Release()

	cols := strings.Join(lo.Map(r.Columns(), func(col string, _ int) string { return quoteIdentPg(col) }), ", ")
	q := fmt.Sprintf(`COPY %s (%s) FROM STDIN WITH (FORMAT csv, NULL '%s')`,
		qualifiedPg(p.schema, table), cols, datafile.Null)
	tag, err := c.Conn().PgConn().CopyFrom(ctx, r.Body(), q)
	if err != nil {
		return 0, fmt.Errorf("loading %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) Truncate(ctx context.Context, table string, cascade bool) error {
	pool, err := p.conn()
	if err != nil {
		return err
	}
	q := "TRUNCATE TABLE " + qualifiedPg(p.schema, table)
	if cascade {
		q += " CASCADE"
	}
	p.logger.Debug("truncating table", "table", table, "cascade", cascade)
	if _, err := pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("truncating %s: %w", table, err)
	}
	return nil
}
