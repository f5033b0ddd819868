package migrationfile

import (
	"fmt"
	"io"
	"os"
	"regexp"

	"github.com/envsync/envsync/internal/schema"
)

// createPattern matches the object a CREATE statement defines. Indexes and
// constraints are not objects of their own and are not matched.
var createPattern = regexp.MustCompile(`(?im)^\s*CREATE\s+` +
	`(?:OR\s+REPLACE\s+)?` +
	`(?:(?:NON)?EDITIONABLE\s+|(?:NO\s+)?FORCE\s+|GLOBAL\s+TEMPORARY\s+)*` +
	`(TABLE|VIEW|TRIGGER|PROCEDURE|FUNCTION|PACKAGE(?:\s+BODY)?|SEQUENCE|TYPE(?:\s+BODY)?|SYNONYM)\s+` +
	`"?([A-Za-z0-9_$#]+)"?\s*\.\s*"?([A-Za-z0-9_$#]+)"?`)

// ParseObjects returns the objects created by the DDL in r, in order of
// first appearance. Bodies count as their specification.
func ParseObjects(r io.Reader) ([]schema.ObjectRef, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	seen := make(map[schema.ObjectRef]bool)
	var out []schema.ObjectRef
	for _, m := range createPattern.FindAllStringSubmatch(string(data), -1) {
		kind, err := schema.ParseKind(m[1])
		if err != nil {
			continue
		}
		ref := schema.NewObjectRef(m[3], m[2], kind)
		if seen[ref] {
			continue
		}
		seen[ref] = true
		out = append(out, ref)
	}
	return out, nil
}

// ParseFile is ParseObjects over the file at path.
func ParseFile(path string) ([]schema.ObjectRef, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	refs, err := ParseObjects(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return refs, nil
}
