package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/envsync/envsync/internal/config"
	"github.com/envsync/envsync/internal/ddl"
	"github.com/envsync/envsync/internal/depgraph"
	"github.com/envsync/envsync/internal/schema"
)

// kindAuto asks the catalog for the kind of the seed object.
const kindAuto = "AUTO"

// structureDB is the catalog the structure commands read from.
type structureDB interface {
	depgraph.Catalog
	ddl.Source
	ObjectKind(ctx context.Context, name, owner string) (schema.Kind, error)
}

// seedObject resolves the --seed-table, --schema and --type flags into a
// reference.
func seedObject(ctx context.Context, db structureDB, name, owner, kind string) (schema.ObjectRef, error) {
	if strings.TrimSpace(name) == "" {
		return schema.ObjectRef{}, fmt.Errorf("a seed object is required (--seed-table)")
	}
	if owner == "" {
		owner = config.DefaultSchema
	}
	switch k := strings.ToUpper(strings.TrimSpace(kind)); k {
	case kindAuto:
		found, err := db.ObjectKind(ctx, name, owner)
		if err != nil {
			return schema.ObjectRef{}, err
		}
		return schema.NewObjectRef(name, owner, found), nil
	case "", "TAB":
		return schema.NewObjectRef(name, owner, schema.KindTable), nil
	default:
		parsed, err := schema.ParseKind(k)
		if err != nil {
			return schema.ObjectRef{}, err
		}
		return schema.NewObjectRef(name, owner, parsed), nil
	}
}

// batchSeed is one line of a batch file.
type batchSeed struct {
	Name   string
	Schema string
}

// parseBatchFile reads one seed table per line. Only the first comma
// separated field is used; it is either schema.table or a bare table in
// the default schema. Blank lines are ignored.
func parseBatchFile(r io.Reader) ([]batchSeed, error) {
	var seeds []batchSeed
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		field := strings.TrimSpace(strings.SplitN(sc.Text(), ",", 2)[0])
		if field == "" {
			continue
		}
		parts := strings.Split(field, ".")
		if len(parts) == 2 {
			seeds = append(seeds, batchSeed{Name: strings.TrimSpace(parts[1]), Schema: strings.TrimSpace(parts[0])})
		} else {
			seeds = append(seeds, batchSeed{Name: field, Schema: config.DefaultSchema})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading batch file: %w", err)
	}
	return seeds, nil
}
