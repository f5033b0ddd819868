package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/envsync/envsync/internal/datafile"
)

// Data files carry dates and timestamps in datafile.TimeLayout, and zoned
// timestamps in datafile.ZonedTimeLayout.
var oraSessionFormats = []string{
	"ALTER SESSION SET NLS_DATE_FORMAT = 'YYYY-MM-DD HH24:MI:SS'",
	"ALTER SESSION SET NLS_TIMESTAMP_FORMAT = 'YYYY-MM-DD HH24:MI:SS.FF9'",
	"ALTER SESSION SET NLS_TIMESTAMP_TZ_FORMAT = 'YYYY-MM-DD HH24:MI:SS.FF9 TZH:TZM'",
}

func (o *Oracle) RowCount(ctx context.Context, table string) (int64, error) {
	db, err := o.conn()
	if err != nil {
		return 0, err
	}
	var count int64
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s", qualifiedOra(o.owner, table))
	if err := db.QueryRowContext(ctx, q).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting rows in %s: %w", table, err)
	}
	return count, nil
}

// Extract writes every row of table to path.
func (o *Oracle) Extract(ctx context.Context, table, path string) (int64, error) {
	db, err := o.conn()
	if err != nil {
		return 0, err
	}
	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s", qualifiedOra(o.owner, table)))
	if err != nil {
		return 0, fmt.Errorf("selecting from %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return 0, fmt.Errorf("getting columns: %w", err)
	}
	w, err := datafile.Create(path, cols)
	if err != nil {
		return 0, err
	}

	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			w.Abort()
			return 0, fmt.Errorf("scanning row: %w", err)
		}
		if err := w.Write(vals); err != nil {
			w.Abort()
			return 0, fmt.Errorf("writing row: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		w.Abort()
		return 0, fmt.Errorf("iterating rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return 0, err
	}
	o.logger.Debug("extracted table", "table", table, "rows", w.Rows(), "path", path)
	return w.Rows(), nil
}

// Load inserts the rows of path into table, committing every chunk.
func (o *Oracle) Load(ctx context.Context, table, path string) (int64, error) {
	db, err := o.conn()
	if err != nil {
		return 0, err
	}
	r, err := datafile.Open(path)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	conn, err := db.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquiring session: %w", err)
	}
	defer conn.Close()
	for _, stmt := range oraSessionFormats {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return 0, fmt.Errorf("setting session format: %w", err)
		}
	}

	cols := r.Columns()
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		qualifiedOra(o.owner, table),
		strings.Join(lo.Map(cols, func(c string, _ int) string { return quoteIdentOra(c) }), ", "),
		strings.Join(lo.Times(len(cols), func(i int) string { return ":" + strconv.Itoa(i+1) }), ", "))

	var loaded int64
	for {
		n, err := o.loadChunk(ctx, conn, insert, r)
		loaded += n
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return loaded, fmt.Errorf("loading %s: %w", table, err)
		}
		o.logger.Debug("committed chunk", "table", table, "rows", loaded)
	}
	return loaded, nil
}

// loadChunk inserts up to ChunkSize rows in one transaction. It returns
// io.EOF once the file is exhausted.
func (o *Oracle) loadChunk(ctx context.Context, conn *sql.Conn, insert string, r *datafile.Reader) (int64, error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	defer stmt.Close()

	var n int64
	var done bool
	for n < int64(o.opts.ChunkSize) {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			done = true
			break
		}
		if err != nil {
			tx.Rollback()
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			tx.Rollback()
			return 0, err
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	if done {
		return n, io.EOF
	}
	return n, nil
}

// Truncate empties table. Oracle has no cascading truncate for enabled
// foreign keys, so cascade is ignored.
func (o *Oracle) Truncate(ctx context.Context, table string, cascade bool) error {
	db, err := o.conn()
	if err != nil {
		return err
	}
	o.logger.Debug("truncating table", "table", table, "cascade", cascade)
	if _, err := db.ExecContext(ctx, "TRUNCATE TABLE "+qualifiedOra(o.owner, table)); err != nil {
		return fmt.Errorf("truncating %s: %w", table, err)
	}
	return nil
}
