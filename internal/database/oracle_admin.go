package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/envsync/envsync/internal/schema"
)

func (o *Oracle) DisableConstraint(ctx context.Context, c schema.TableConstraint) error {
	return o.alterConstraint(ctx, c, "DISABLE")
}

func (o *Oracle) EnableConstraint(ctx context.Context, c schema.TableConstraint) error {
	return o.alterConstraint(ctx, c, "ENABLE")
}

func (o *Oracle) alterConstraint(ctx context.Context, c schema.TableConstraint, action string) error {
	db, err := o.conn()
	if err != nil {
		return err
	}
	owner := c.Schema
	if owner == "" {
		owner = o.owner
	}
	q := fmt.Sprintf("ALTER TABLE %s %s CONSTRAINT %s", qualifiedOra(owner, c.Table), action, quoteIdentOra(c.Name))
	o.logger.Debug("altering constraint", "constraint", c.Name, "table", c.Table, "action", action)
	if _, err := db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("%s constraint %s on %s: %w", strings.ToLower(action), c.Name, c.Table, err)
	}
	return nil
}

func (o *Oracle) DisableTrigger(ctx context.Context, t schema.Trigger) error {
	return o.alterTrigger(ctx, t, "DISABLE")
}

func (o *Oracle) EnableTrigger(ctx context.Context, t schema.Trigger) error {
	return o.alterTrigger(ctx, t, "ENABLE")
}

func (o *Oracle) alterTrigger(ctx context.Context, t schema.Trigger, action string) error {
	db, err := o.conn()
	if err != nil {
		return err
	}
	owner := t.Owner
	if owner == "" {
		owner = o.owner
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("ALTER TRIGGER %s %s", qualifiedOra(owner, t.Name), action)); err != nil {
		return fmt.Errorf("%s trigger %s: %w", strings.ToLower(action), t.Name, err)
	}
	return nil
}

// SequenceTriggers returns the triggers of owner that read a sequence,
// with their bodies.
func (o *Oracle) SequenceTriggers(ctx context.Context, owner string) ([]schema.SequenceTrigger, error) {
	db, err := o.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT d.REFERENCED_NAME, d.REFERENCED_OWNER, d.NAME,
			t.TABLE_OWNER, t.TABLE_NAME, t.TRIGGER_BODY
		FROM ALL_DEPENDENCIES d
		JOIN ALL_TRIGGERS t
			ON t.TRIGGER_NAME = d.NAME AND t.OWNER = d.OWNER
		WHERE d.OWNER = :1 AND d.TYPE = 'TRIGGER' AND d.REFERENCED_TYPE = 'SEQUENCE'`,
		strings.ToUpper(owner))
	if err != nil {
		return nil, fmt.Errorf("querying sequence triggers: %w", err)
	}
	defer rows.Close()

	var out []schema.SequenceTrigger
	for rows.Next() {
		var st schema.SequenceTrigger
		var body sql.NullString
		if err := rows.Scan(&st.Sequence, &st.SequenceOwner, &st.Trigger, &st.TableOwner, &st.Table, &body); err != nil {
			return nil, fmt.Errorf("scanning sequence trigger: %w", err)
		}
		st.Body = body.String
		out = append(out, st)
	}
	return out, rows.Err()
}

func (o *Oracle) MaxColumnValue(ctx context.Context, owner, table, column string) (int64, bool, error) {
	db, err := o.conn()
	if err != nil {
		return 0, false, err
	}
	var v sql.NullInt64
	q := fmt.Sprintf("SELECT MAX(%s) FROM %s", quoteIdentOra(column), qualifiedOra(owner, table))
	if err := db.QueryRowContext(ctx, q).Scan(&v); err != nil {
		return 0, false, err
	}
	return v.Int64, v.Valid, nil
}

func (o *Oracle) SequenceNextValue(ctx context.Context, owner, sequence string) (int64, error) {
	db, err := o.conn()
	if err != nil {
		return 0, err
	}
	var next int64
	err = db.QueryRowContext(ctx, `
		SELECT LAST_NUMBER + INCREMENT_BY
		FROM ALL_SEQUENCES
		WHERE SEQUENCE_NAME = :1 AND SEQUENCE_OWNER = :2`,
		strings.ToUpper(sequence), strings.ToUpper(owner)).Scan(&next)
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (o *Oracle) SetSequenceNextValue(ctx context.Context, owner, sequence string, next int64) error {
	db, err := o.conn()
	if err != nil {
		return err
	}
	q := fmt.Sprintf("ALTER SEQUENCE %s RESTART START WITH %d", qualifiedOra(owner, sequence), next)
	_, err = db.ExecContext(ctx, q)
	return err
}
