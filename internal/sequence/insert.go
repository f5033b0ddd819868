package sequence

import (
	"regexp"
	"strings"
)

// InsertTarget is the table and column an INSERT fills from a sequence.
type InsertTarget struct {
	Table  string // as written, optionally owner qualified
	Column string
}

// Owner splits an owner qualified table name; def is used when unqualified.
func (t InsertTarget) Owner(def string) (owner, table string) {
	if o, tbl, ok := strings.Cut(t.Table, "."); ok && o != "" {
		return strings.ToUpper(o), strings.ToUpper(tbl)
	}
	return strings.ToUpper(def), strings.ToUpper(strings.TrimPrefix(t.Table, "."))
}

var (
	insertPattern = regexp.MustCompile(`(?is)INSERT\s+INTO\s+\w*\.?\w+\s*\([^)]*\)\s*VALUES\s*\([^;]*\);`)
	tablePattern  = regexp.MustCompile(`(?is)INSERT\s+INTO\s+(\w*\.?\w+)`)
	partsPattern  = regexp.MustCompile(`(?is)INSERT\s+INTO\s+\w*\.?\w+\s*\((.*?)\)\s*VALUES\s*\((.*?)\);`)
)

// ExtractInserts returns every INSERT ... VALUES (...); statement in body.
func ExtractInserts(body string) []string {
	return insertPattern.FindAllString(body, -1)
}

// ExtractInsertTarget finds the column whose value is drawn from a
// sequence's NEXTVAL. Columns and values are matched by position after a
// plain comma split, so values containing commas (nested calls, string
// literals) shift the positions. ok is false when nothing matches.
func ExtractInsertTarget(insert string) (InsertTarget, bool) {
	tm := tablePattern.FindStringSubmatch(insert)
	pm := partsPattern.FindStringSubmatch(insert)
	if tm == nil || pm == nil {
		return InsertTarget{}, false
	}

	columns := splitTrim(pm[1])
	values := splitTrim(pm[2])
	for i, v := range values {
		if strings.HasSuffix(strings.ToUpper(v), ".NEXTVAL") {
			if i >= len(columns) {
				return InsertTarget{}, false
			}
			return InsertTarget{Table: tm[1], Column: columns[i]}, true
		}
	}
	return InsertTarget{}, false
}

// ExtractInsertTargets scans a trigger body for all INSERT statements and
// returns the sequence targets of the ones that use NEXTVAL.
func ExtractInsertTargets(body string) []InsertTarget {
	var out []InsertTarget
	for _, stmt := range ExtractInserts(body) {
		if t, ok := ExtractInsertTarget(stmt); ok {
			out = append(out, t)
		}
	}
	return out
}

func splitTrim(s string) []string {
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
