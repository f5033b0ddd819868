package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
)

// Kind is the catalog type of a database object.
type Kind string

const (
	KindTable     Kind = "TABLE"
	KindView      Kind = "VIEW"
	KindTrigger   Kind = "TRIGGER"
	KindProcedure Kind = "PROCEDURE"
	KindFunction  Kind = "FUNCTION"
	KindPackage   Kind = "PACKAGE"
	KindSequence  Kind = "SEQUENCE"
	KindType      Kind = "TYPE"
	KindSynonym   Kind = "SYNONYM"
)

// Kinds lists every supported object kind.
var Kinds = []Kind{
	KindTable, KindView, KindTrigger, KindProcedure, KindFunction,
	KindPackage, KindSequence, KindType, KindSynonym,
}

// ParseKind maps a catalog object type string to a Kind.
// Bodies are folded into their specification kind.
func ParseKind(s string) (Kind, error) {
	v := strings.ToUpper(strings.Join(strings.Fields(s), " "))
	switch v {
	case "PACKAGE BODY":
		return KindPackage, nil
	case "TYPE BODY":
		return KindType, nil
	}
	for _, k := range Kinds {
		if string(k) == v {
			return k, nil
		}
	}
	return "", fmt.Errorf("unsupported object kind %q", s)
}

// Class groups object kinds that are emitted together.
type Class int

const (
	ClassPlain Class = iota
	ClassType
	ClassPackage
	ClassFuncProc
	ClassTrigger
)

// Classes is the emission order: triggers always last.
var Classes = []Class{ClassPlain, ClassType, ClassPackage, ClassFuncProc, ClassTrigger}

func (c Class) String() string {
	switch c {
	case ClassPlain:
		return "ddl"
	case ClassType:
		return "types"
	case ClassPackage:
		return "packages"
	case ClassFuncProc:
		return "functions/procedures"
	case ClassTrigger:
		return "triggers"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Class returns the emission class for the kind.
func (k Kind) Class() Class {
	switch k {
	case KindTrigger:
		return ClassTrigger
	case KindPackage:
		return ClassPackage
	case KindFunction, KindProcedure:
		return ClassFuncProc
	case KindType:
		return ClassType
	default:
		return ClassPlain
	}
}

// ObjectRef identifies a database object. Name and schema are stored
// uppercased so the value itself is the case-insensitive identity.
type ObjectRef struct {
	Name   string `json:"object_name" yaml:"name"`
	Schema string `json:"object_schema" yaml:"schema"`
	Kind   Kind   `json:"object_type" yaml:"kind"`
}

// NewObjectRef builds a normalized reference.
func NewObjectRef(name, schema string, kind Kind) ObjectRef {
	return ObjectRef{
		Name:   strings.ToUpper(strings.TrimSpace(name)),
		Schema: strings.ToUpper(strings.TrimSpace(schema)),
		Kind:   kind,
	}
}

func (r ObjectRef) String() string {
	return fmt.Sprintf("%s: %s.%s", r.Kind, r.Schema, r.Name)
}

// TableConstraint is a foreign key constraint definition.
type TableConstraint struct {
	Name                 string   `yaml:"name"`
	Schema               string   `yaml:"schema"`
	Table                string   `yaml:"table"`
	Columns              []string `yaml:"columns"`
	ReferencedSchema     string   `yaml:"referenced_schema"`
	ReferencedTable      string   `yaml:"referenced_table"`
	ReferencedColumns    []string `yaml:"referenced_columns"`
	ReferencedConstraint string   `yaml:"referenced_constraint,omitempty"`
}

// Normalized returns a copy with deduplicated, sorted column lists.
func (c TableConstraint) Normalized() TableConstraint {
	c.Columns = normalizeColumns(c.Columns)
	c.ReferencedColumns = normalizeColumns(c.ReferencedColumns)
	if c.ReferencedSchema == "" {
		c.ReferencedSchema = c.Schema
	}
	return c
}

// Key identifies the constraint within a database.
func (c TableConstraint) Key() string {
	return strings.ToLower(c.Schema + "." + c.Table + "." + c.Name)
}

func normalizeColumns(cols []string) []string {
	out := lo.Uniq(lo.Map(cols, func(c string, _ int) string {
		return strings.TrimSpace(c)
	}))
	out = lo.Filter(out, func(c string, _ int) bool { return c != "" })
	sort.Strings(out)
	return out
}

// Trigger is a trigger defined on a table.
type Trigger struct {
	Name    string `yaml:"name"`
	Owner   string `yaml:"owner"`
	Table   string `yaml:"table,omitempty"`
	Enabled bool   `yaml:"enabled"`
}

// SequenceTarget ties a sequence to the table column it populates.
type SequenceTarget struct {
	Sequence      string `yaml:"sequence"`
	SequenceOwner string `yaml:"sequence_owner"`
	Schema        string `yaml:"schema"`
	Table         string `yaml:"table"`
	Column        string `yaml:"column"`
}

func (s SequenceTarget) String() string {
	return fmt.Sprintf("%s.%s -> %s.%s.%s", s.SequenceOwner, s.Sequence, s.Schema, s.Table, s.Column)
}

// SequenceTrigger is a trigger whose body draws values from a sequence.
type SequenceTrigger struct {
	Sequence      string `yaml:"sequence"`
	SequenceOwner string `yaml:"sequence_owner"`
	Trigger       string `yaml:"trigger"`
	TableOwner    string `yaml:"table_owner"`
	Table         string `yaml:"table"`
	Body          string `yaml:"body"`
}
