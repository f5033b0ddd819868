package ddl

import (
	"strings"

	"github.com/envsync/envsync/internal/schema"
)

// Entry is the DDL text of one object.
type Entry struct {
	Ref schema.ObjectRef
	DDL string
}

// Bucket holds emitted DDL grouped by emission class, in emission order
// within each class.
type Bucket struct {
	classes map[schema.Class][]Entry
}

// NewBucket returns an empty bucket.
func NewBucket() *Bucket {
	return &Bucket{classes: make(map[schema.Class][]Entry)}
}

// Add appends ddl for ref under the ref's class.
func (b *Bucket) Add(ref schema.ObjectRef, ddl string) {
	c := ref.Kind.Class()
	b.classes[c] = append(b.classes[c], Entry{Ref: ref, DDL: ddl})
}

// Class returns the entries of one class.
func (b *Bucket) Class(c schema.Class) []Entry {
	return b.classes[c]
}

// Text returns the DDL of one class joined in emission order.
func (b *Bucket) Text(c schema.Class) string {
	var sb strings.Builder
	for _, e := range b.classes[c] {
		sb.WriteString(e.DDL)
		if !strings.HasSuffix(e.DDL, "\n") {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// Entries returns every entry, classes in emission order.
func (b *Bucket) Entries() []Entry {
	var out []Entry
	for _, c := range schema.Classes {
		out = append(out, b.classes[c]...)
	}
	return out
}

// Len returns the number of entries.
func (b *Bucket) Len() int {
	n := 0
	for _, es := range b.classes {
		n += len(es)
	}
	return n
}

// Empty reports whether no DDL was emitted.
func (b *Bucket) Empty() bool {
	return b.Len() == 0
}
