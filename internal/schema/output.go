package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DependencyTree is the rendered form of a resolved dependency graph.
type DependencyTree struct {
	Kind         Kind              `json:"object_type"`
	Name         string            `json:"object_name"`
	Schema       string            `json:"object_schema"`
	Dependencies []*DependencyTree `json:"dependency_list"`
}

// Ref returns the object reference of the tree root.
func (t *DependencyTree) Ref() ObjectRef {
	return ObjectRef{Name: t.Name, Schema: t.Schema, Kind: t.Kind}
}

// LoadJSON reads a dependency tree from a JSON file.
func LoadJSON(path string) (*DependencyTree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dependency file: %w", err)
	}
	t := &DependencyTree{}
	if err := json.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("parsing dependency file: %w", err)
	}
	return t, nil
}

// WriteJSON writes the tree to a JSON file at the given path.
func (t *DependencyTree) WriteJSON(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	data, err := t.ToJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ToJSON returns the tree as indented JSON.
func (t *DependencyTree) ToJSON() ([]byte, error) {
	data, err := json.MarshalIndent(t, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("marshaling dependency tree: %w", err)
	}
	return data, nil
}

// Text renders the tree as an indented, human readable report.
func (t *DependencyTree) Text() string {
	return t.text(0)
}

func (t *DependencyTree) text(indent int) string {
	out := fmt.Sprintf("%s: %s.%s", t.Kind, t.Schema, t.Name)
	if len(t.Dependencies) == 0 {
		return out
	}
	header := "\n" + strings.Repeat(" ", indent) + "--------- dependencies ---------\n"
	indent += 4
	lines := make([]string, 0, len(t.Dependencies))
	for _, dep := range t.Dependencies {
		lines = append(lines, strings.Repeat(" ", indent)+dep.text(indent))
	}
	return out + header + strings.Join(lines, "\n")
}

// Count returns the number of nodes in the tree.
func (t *DependencyTree) Count() int {
	n := 1
	for _, d := range t.Dependencies {
		n += d.Count()
	}
	return n
}
