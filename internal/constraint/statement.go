package constraint

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/envsync/envsync/internal/schema"
)

// DropStatement renders the statement that removes c.
func DropStatement(c schema.TableConstraint) string {
	return fmt.Sprintf("ALTER TABLE %s.%s DROP CONSTRAINT %s;", c.Schema, c.Table, c.Name)
}

// AddStatement renders the statement that recreates c. Column lists are
// deduplicated and sorted so the same constraint always renders the same way.
func AddStatement(c schema.TableConstraint) string {
	n := c.Normalized()
	return fmt.Sprintf("ALTER TABLE %s.%s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s.%s(%s);",
		n.Schema, n.Table, n.Name,
		strings.Join(n.Columns, ","),
		n.ReferencedSchema, n.ReferencedTable,
		strings.Join(n.ReferencedColumns, ","))
}

var (
	addPattern = regexp.MustCompile(`(?is)^\s*ALTER\s+TABLE\s+(?:(\w+)\.)?(\w+)\s+ADD\s+CONSTRAINT\s+(\w+)\s+` +
		`FOREIGN\s+KEY\s*\(([^)]*)\)\s*REFERENCES\s+(?:(\w+)\.)?(\w+)\s*\(([^)]*)\)\s*;?\s*$`)
	dropPattern = regexp.MustCompile(`(?is)^\s*ALTER\s+TABLE\s+(?:(\w+)\.)?(\w+)\s+DROP\s+CONSTRAINT\s+(\w+)\s*;?\s*$`)
)

// ParseAddStatement reads a constraint back from an AddStatement rendering.
func ParseAddStatement(stmt string) (schema.TableConstraint, error) {
	m := addPattern.FindStringSubmatch(stmt)
	if m == nil {
		return schema.TableConstraint{}, fmt.Errorf("not an add foreign key statement: %q", stmt)
	}
	c := schema.TableConstraint{
		Schema:            m[1],
		Table:             m[2],
		Name:              m[3],
		Columns:           strings.Split(m[4], ","),
		ReferencedSchema:  m[5],
		ReferencedTable:   m[6],
		ReferencedColumns: strings.Split(m[7], ","),
	}
	return c.Normalized(), nil
}

// ParseDropStatement reads the schema, table and name out of a DropStatement
// rendering. Column information is not part of a drop.
func ParseDropStatement(stmt string) (schema.TableConstraint, error) {
	m := dropPattern.FindStringSubmatch(stmt)
	if m == nil {
		return schema.TableConstraint{}, fmt.Errorf("not a drop constraint statement: %q", stmt)
	}
	return schema.TableConstraint{Schema: m[1], Table: m[2], Name: m[3]}, nil
}
