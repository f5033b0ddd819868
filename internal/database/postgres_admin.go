package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/envsync/envsync/internal/constraint"
	"github.com/envsync/envsync/internal/schema"
)

// DisableConstraint records c in the ledger, then drops it.
func (p *Postgres) DisableConstraint(ctx context.Context, c schema.TableConstraint) error {
	pool, err := p.conn()
	if err != nil {
		return err
	}
	if c.Schema == "" {
		c.Schema = p.schema
	}
	if err := p.ledger.Record(c); err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, constraint.DropStatement(c)); err != nil {
		if pgCode(err) == pgUndefinedObject {
			p.logger.Warn("constraint not found", "constraint", c.Name, "table", c.Table)
			return nil
		}
		return fmt.Errorf("dropping constraint %s on %s: %w", c.Name, c.Table, err)
	}
	p.logger.Debug("dropped constraint", "constraint", c.Name, "table", c.Table)
	return nil
}

// EnableConstraint adds c back and removes it from the ledger. A constraint
// that already exists counts as enabled.
func (p *Postgres) EnableConstraint(ctx context.Context, c schema.TableConstraint) error {
	pool, err := p.conn()
	if err != nil {
		return err
	}
	if c.Schema == "" {
		c.Schema = p.schema
	}
	if _, err := pool.Exec(ctx, constraint.AddStatement(c)); err != nil {
		if pgCode(err) != pgDuplicateObject {
			return fmt.Errorf("adding constraint %s on %s: %w", c.Name, c.Table, err)
		}
		p.logger.Debug("constraint already present", "constraint", c.Name, "table", c.Table)
	}
	return p.ledger.Remove(c)
}

// DisableTrigger is a no-op: loads run with session defaults and triggers
// stay in place.
func (p *Postgres) DisableTrigger(_ context.Context, t schema.Trigger) error {
	p.logger.Debug("trigger left enabled", "trigger", t.Name)
	return nil
}

func (p *Postgres) EnableTrigger(_ context.Context, _ schema.Trigger) error {
	return nil
}

// OwnedSequences returns the sequences of owner tied to a column through
// serial or identity ownership.
func (p *Postgres) OwnedSequences(ctx context.Context, owner string) ([]schema.SequenceTarget, error) {
	pool, err := p.conn()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, `
		SELECT s.relname, sn.nspname, tn.nspname, t.relname, a.attname
		FROM pg_class s
		JOIN pg_namespace sn ON sn.oid = s.relnamespace
		JOIN pg_depend d
			ON d.objid = s.oid
			AND d.classid = 'pg_class'::regclass
			AND d.refclassid = 'pg_class'::regclass
			AND d.deptype IN ('a', 'i')
		JOIN pg_class t ON t.oid = d.refobjid
		JOIN pg_namespace tn ON tn.oid = t.relnamespace
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = d.refobjsubid
		WHERE s.relkind = 'S' AND sn.nspname = $1
		ORDER BY s.relname`, strings.ToLower(owner))
	if err != nil {
		return nil, fmt.Errorf("querying owned sequences: %w", err)
	}
	defer rows.Close()

	var out []schema.SequenceTarget
	for rows.Next() {
		var t schema.SequenceTarget
		if err := rows.Scan(&t.Sequence, &t.SequenceOwner, &t.Schema, &t.Table, &t.Column); err != nil {
			return nil, fmt.Errorf("scanning owned sequence: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *Postgres) MaxColumnValue(ctx context.Context, owner, table, column string) (int64, bool, error) {
	pool, err := p.conn()
	if err != nil {
		return 0, false, err
	}
	var v *int64
	q := fmt.Sprintf("SELECT MAX(%s)::bigint FROM %s", quoteIdentPg(column), qualifiedPg(owner, table))
	if err := pool.QueryRow(ctx, q).Scan(&v); err != nil {
		return 0, false, err
	}
	if v == nil {
		return 0, false, nil
	}
	return *v, true, nil
}

func (p *Postgres) SequenceNextValue(ctx context.Context, owner, sequence string) (int64, error) {
	pool, err := p.conn()
	if err != nil {
		return 0, err
	}
	// pg_sequences hides last_value until is_called, so read the relation
	var next int64
	q := fmt.Sprintf(`
		SELECT CASE WHEN q.is_called THEN q.last_value + s.increment_by ELSE q.last_value END
		FROM %s q, pg_sequences s
		WHERE s.schemaname = $1 AND s.sequencename = $2`, qualifiedPg(owner, sequence))
	err = pool.QueryRow(ctx, q, strings.ToLower(owner), strings.ToLower(sequence)).Scan(&next)
	if err != nil {
		return 0, err
	}
	return next, nil
}

// SetSequenceNextValue makes next the value the following nextval returns.
func (p *Postgres) SetSequenceNextValue(ctx context.Context, owner, sequence string, next int64) error {
	pool, err := p.conn()
	if err != nil {
		return err
	}
	_, err = pool.Exec(ctx, "SELECT setval($1::regclass, $2, false)", qualifiedPg(owner, sequence), next)
	return err
}
