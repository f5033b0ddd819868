package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/envsync/envsync/internal/schema"
)

const pgForeignKeysQuery = `
	SELECT tc.constraint_name, tc.table_name, kcu.column_name,
		ccu.table_schema, ccu.table_name, ccu.column_name, rc.unique_constraint_name
	FROM information_schema.table_constraints tc
	JOIN information_schema.key_column_usage kcu
		ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
	JOIN information_schema.referential_constraints rc
		ON tc.constraint_name = rc.constraint_name AND tc.table_schema = rc.constraint_schema
	JOIN information_schema.key_column_usage ccu
		ON rc.unique_constraint_name = ccu.constraint_name
		AND rc.unique_constraint_schema = ccu.table_schema
		AND kcu.position_in_unique_constraint = ccu.ordinal_position
	WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = $1`

// ForeignKeys returns the foreign keys going out of table, excluding self
// references.
func (p *Postgres) ForeignKeys(ctx context.Context, table, owner string) ([]schema.TableConstraint, error) {
	query := pgForeignKeysQuery + `
		AND tc.table_name = $2 AND ccu.table_name <> tc.table_name
	ORDER BY tc.constraint_name, kcu.ordinal_position`
	s := strings.ToLower(owner)
	return p.foreignKeys(ctx, s, query, s, strings.ToLower(table))
}

func (p *Postgres) SchemaForeignKeys(ctx context.Context) ([]schema.TableConstraint, error) {
	query := pgForeignKeysQuery + `
	ORDER BY tc.table_name, tc.constraint_name, kcu.ordinal_position`
	return p.foreignKeys(ctx, p.schema, query, p.schema)
}

func (p *Postgres) foreignKeys(ctx context.Context, owner, query string, args ...any) ([]schema.TableConstraint, error) {
	pool, err := p.conn()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying foreign keys: %w", err)
	}
	defer rows.Close()

	var fks []fkRow
	for rows.Next() {
		var r fkRow
		if err := rows.Scan(&r.Name, &r.Table, &r.Column, &r.RefSchema, &r.RefTable, &r.RefColumn, &r.RefConstraint); err != nil {
			return nil, fmt.Errorf("scanning foreign key: %w", err)
		}
		fks = append(fks, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return groupForeignKeys(owner, fks), nil
}

// Triggers returns the user triggers of table.
func (p *Postgres) Triggers(ctx context.Context, table, owner string, includeDisabled bool) ([]schema.Trigger, error) {
	query := `
		SELECT t.tgname, n.nspname, c.relname, t.tgenabled <> 'D'
		FROM pg_trigger t
		JOIN pg_class c ON c.oid = t.tgrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE NOT t.tgisinternal AND n.nspname = $1 AND c.relname = $2`
	if !includeDisabled {
		query += " AND t.tgenabled <> 'D'"
	}
	return p.triggers(ctx, query, strings.ToLower(owner), strings.ToLower(table))
}

func (p *Postgres) SchemaTriggers(ctx context.Context) ([]schema.Trigger, error) {
	query := `
		SELECT t.tgname, n.nspname, c.relname, t.tgenabled <> 'D'
		FROM pg_trigger t
		JOIN pg_class c ON c.oid = t.tgrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE NOT t.tgisinternal AND n.nspname = $1 AND t.tgenabled <> 'D'
		ORDER BY t.tgname`
	return p.triggers(ctx, query, p.schema)
}

func (p *Postgres) triggers(ctx context.Context, query string, args ...any) ([]schema.Trigger, error) {
	pool, err := p.conn()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying triggers: %w", err)
	}
	defer rows.Close()

	var out []schema.Trigger
	for rows.Next() {
		var t schema.Trigger
		if err := rows.Scan(&t.Name, &t.Owner, &t.Table, &t.Enabled); err != nil {
			return nil, fmt.Errorf("scanning trigger: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *Postgres) Tables(ctx context.Context) ([]string, error) {
	pool, err := p.conn()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		ORDER BY table_name`, p.schema)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}
