package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/envsync/envsync/internal/schema"
)

const oraForeignKeysQuery = `
	SELECT a.CONSTRAINT_NAME, a.TABLE_NAME, b.COLUMN_NAME,
		c.OWNER, c.TABLE_NAME, d.COLUMN_NAME, a.R_CONSTRAINT_NAME
	FROM ALL_CONSTRAINTS a
	JOIN ALL_CONS_COLUMNS b
		ON a.OWNER = b.OWNER AND a.CONSTRAINT_NAME = b.CONSTRAINT_NAME
	JOIN ALL_CONSTRAINTS c
		ON a.R_OWNER = c.OWNER AND a.R_CONSTRAINT_NAME = c.CONSTRAINT_NAME
	JOIN ALL_CONS_COLUMNS d
		ON c.OWNER = d.OWNER AND c.CONSTRAINT_NAME = d.CONSTRAINT_NAME
		AND b.POSITION = d.POSITION
	WHERE a.CONSTRAINT_TYPE = 'R' AND a.OWNER = :1`

const oraDependenciesQuery = `
	SELECT REFERENCED_NAME, REFERENCED_TYPE, REFERENCED_OWNER
	FROM DBA_DEPENDENCIES
	WHERE NAME = :1 AND OWNER = :2 AND REFERENCED_NAME <> :3
		AND NOT REFERENCED_OWNER = 'SYS'
		AND NOT REFERENCED_OWNER = 'MDSYS'
		AND NOT (REFERENCED_OWNER = 'PUBLIC' AND REFERENCED_TYPE = 'SYNONYM')
		AND NOT (REFERENCED_OWNER = 'MDSYS' AND REFERENCED_NAME = 'SDO_GEOMETRY'
			AND REFERENCED_TYPE = 'TYPE')
		AND NOT (REFERENCED_NAME IN ('STANDARD', 'DBMS_STANDARD', 'SYS_STUB_FOR_PURITY_ANALYSIS')
			AND REFERENCED_TYPE = 'PACKAGE' AND REFERENCED_OWNER = 'SYS')`

const oraTransformBlock = `
	BEGIN
		dbms_metadata.set_transform_param(dbms_metadata.session_transform, 'SQLTERMINATOR', true);
		dbms_metadata.set_transform_param(dbms_metadata.session_transform, 'PRETTY', true);
		dbms_metadata.set_transform_param(dbms_metadata.session_transform, 'SEGMENT_ATTRIBUTES', false);
		dbms_metadata.set_transform_param(dbms_metadata.session_transform, 'STORAGE', false);
		dbms_metadata.set_transform_param(dbms_metadata.session_transform, 'TABLESPACE', false);
	END;`

// ForeignKeys returns the foreign keys going out of table, excluding self
// references.
func (o *Oracle) ForeignKeys(ctx context.Context, table, owner string) ([]schema.TableConstraint, error) {
	query := oraForeignKeysQuery + `
		AND a.TABLE_NAME = :2 AND c.TABLE_NAME <> a.TABLE_NAME
	ORDER BY a.CONSTRAINT_NAME, b.POSITION`
	return o.foreignKeys(ctx, strings.ToUpper(owner), query, strings.ToUpper(owner), strings.ToUpper(table))
}

func (o *Oracle) SchemaForeignKeys(ctx context.Context) ([]schema.TableConstraint, error) {
	query := oraForeignKeysQuery + `
	ORDER BY a.TABLE_NAME, a.CONSTRAINT_NAME, b.POSITION`
	return o.foreignKeys(ctx, o.owner, query, o.owner)
}

func (o *Oracle) foreignKeys(ctx context.Context, owner, query string, args ...any) ([]schema.TableConstraint, error) {
	db, err := o.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying foreign keys: %w", err)
	}
	defer rows.Close()

	var fks []fkRow
	for rows.Next() {
		var r fkRow
		var refConstraint sql.NullString
		if err := rows.Scan(&r.Name, &r.Table, &r.Column, &r.RefSchema, &r.RefTable, &r.RefColumn, &refConstraint); err != nil {
			return nil, fmt.Errorf("scanning foreign key: %w", err)
		}
		r.RefConstraint = refConstraint.String
		fks = append(fks, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return groupForeignKeys(owner, fks), nil
}

// Triggers returns the triggers of table. Disabled triggers are left out
// unless includeDisabled is set.
func (o *Oracle) Triggers(ctx context.Context, table, owner string, includeDisabled bool) ([]schema.Trigger, error) {
	query := `
		SELECT TRIGGER_NAME, OWNER, TABLE_NAME, STATUS
		FROM ALL_TRIGGERS
		WHERE TABLE_NAME = :1 AND OWNER = :2`
	if !includeDisabled {
		query += " AND STATUS = 'ENABLED'"
	}
	return o.triggers(ctx, query, strings.ToUpper(table), strings.ToUpper(owner))
}

func (o *Oracle) SchemaTriggers(ctx context.Context) ([]schema.Trigger, error) {
	query := `
		SELECT TRIGGER_NAME, OWNER, TABLE_NAME, STATUS
		FROM ALL_TRIGGERS
		WHERE OWNER = :1 AND STATUS = 'ENABLED'
		ORDER BY TRIGGER_NAME`
	return o.triggers(ctx, query, o.owner)
}

func (o *Oracle) triggers(ctx context.Context, query string, args ...any) ([]schema.Trigger, error) {
	db, err := o.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying triggers: %w", err)
	}
	defer rows.Close()

	var out []schema.Trigger
	for rows.Next() {
		var t schema.Trigger
		var table sql.NullString
		var status string
		if err := rows.Scan(&t.Name, &t.Owner, &table, &status); err != nil {
			return nil, fmt.Errorf("scanning trigger: %w", err)
		}
		t.Table = table.String
		t.Enabled = status == "ENABLED"
		out = append(out, t)
	}
	return out, rows.Err()
}

// Dependencies returns the objects ref depends on according to
// DBA_DEPENDENCIES. Kinds outside schema.Kinds are skipped.
func (o *Oracle) Dependencies(ctx context.Context, ref schema.ObjectRef) ([]schema.ObjectRef, error) {
	db, err := o.conn()
	if err != nil {
		return nil, err
	}
	name := strings.ToUpper(ref.Name)
	rows, err := db.QueryContext(ctx, oraDependenciesQuery, name, strings.ToUpper(ref.Schema), name)
	if err != nil {
		return nil, fmt.Errorf("querying dependencies of %s: %w", ref, err)
	}
	defer rows.Close()

	var out []schema.ObjectRef
	for rows.Next() {
		var depName, depType, depOwner string
		if err := rows.Scan(&depName, &depType, &depOwner); err != nil {
			return nil, fmt.Errorf("scanning dependency: %w", err)
		}
		kind, err := schema.ParseKind(depType)
		if err != nil {
			o.logger.Debug("skipping dependency", "object", ref.String(), "name", depName, "type", depType)
			continue
		}
		out = append(out, schema.NewObjectRef(depName, depOwner, kind))
	}
	return out, rows.Err()
}

// ObjectKind looks up the type of name. Exactly one catalog row must match.
func (o *Oracle) ObjectKind(ctx context.Context, name, owner string) (schema.Kind, error) {
	db, err := o.conn()
	if err != nil {
		return "", err
	}
	name, owner = strings.ToUpper(name), strings.ToUpper(owner)
	rows, err := db.QueryContext(ctx, `
		SELECT OBJECT_TYPE
		FROM ALL_OBJECTS
		WHERE OBJECT_NAME = :1 AND OWNER = :2 AND OBJECT_TYPE != 'PACKAGE BODY'`, name, owner)
	if err != nil {
		return "", fmt.Errorf("querying type of %s.%s: %w", owner, name, err)
	}
	defer rows.Close()

	var types []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return "", err
		}
		types = append(types, t)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if len(types) != 1 {
		return "", &AmbiguousObjectError{Name: name, Schema: owner, Count: len(types)}
	}
	return schema.ParseKind(types[0])
}

// DDL renders the creation statement of ref without storage clauses.
func (o *Oracle) DDL(ctx context.Context, ref schema.ObjectRef) (string, error) {
	db, err := o.conn()
	if err != nil {
		return "", err
	}
	// transform parameters are per session
	conn, err := db.Conn(ctx)
	if err != nil {
		return "", fmt.Errorf("acquiring session: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, oraTransformBlock); err != nil {
		return "", fmt.Errorf("configuring dbms_metadata: %w", err)
	}
	var text sql.NullString
	err = conn.QueryRowContext(ctx, "SELECT dbms_metadata.get_ddl(:1, :2, :3) FROM dual",
		string(ref.Kind), strings.ToUpper(ref.Name), strings.ToUpper(ref.Schema)).Scan(&text)
	if err != nil {
		return "", fmt.Errorf("fetching DDL for %s: %w", ref, err)
	}
	if strings.TrimSpace(text.String) == "" {
		return "", nil
	}
	if ref.Kind == schema.KindType {
		return text.String + ";\n", nil
	}
	return text.String + "\n", nil
}

func (o *Oracle) Tables(ctx context.Context) ([]string, error) {
	db, err := o.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT TABLE_NAME
		FROM ALL_TABLES
		WHERE OWNER = :1
		ORDER BY TABLE_NAME`, o.owner)
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
