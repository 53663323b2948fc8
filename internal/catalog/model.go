// Package catalog loads table schema manifests from YAML files so a table
// can be declared declaratively instead of built up with record.Column
// literals in Go. This is a convenience layer over internal/record; it owns
// no storage state of its own.
package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/njudb/njudb/internal/record"
)

// Manifest is the on-disk YAML shape of a table declaration, e.g.:
//
//	name: users
//	columns:
//	  - name: id
//	    type: int64
//	  - name: email
//	    type: text
//	    nullable: true
type Manifest struct {
	Name    string           `yaml:"name"`
	Columns []ManifestColumn `yaml:"columns"`
}

type ManifestColumn struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Nullable bool   `yaml:"nullable"`
}

var typeNames = map[string]record.ColumnType{
	"int32":   record.ColInt32,
	"int64":   record.ColInt64,
	"bool":    record.ColBool,
	"float64": record.ColFloat64,
	"text":    record.ColText,
	"bytes":   record.ColBytes,
}

// LoadManifest reads and parses a table manifest from path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read manifest %s: %w", path, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("catalog: parse manifest %s: %w", path, err)
	}
	if m.Name == "" {
		return nil, fmt.Errorf("catalog: manifest %s has no table name", path)
	}
	if len(m.Columns) == 0 {
		return nil, fmt.Errorf("catalog: manifest %s declares no columns", path)
	}
	return &m, nil
}

// Schema converts the manifest's column list into a bound record.Schema.
func (m *Manifest) Schema() (record.Schema, error) {
	cols := make([]record.Column, 0, len(m.Columns))
	for _, c := range m.Columns {
		ct, ok := typeNames[c.Type]
		if !ok {
			return record.Schema{}, fmt.Errorf("catalog: table %q column %q: unknown type %q", m.Name, c.Name, c.Type)
		}
		cols = append(cols, record.Column{Name: c.Name, Type: ct, Nullable: c.Nullable})
	}
	return record.Schema{Cols: cols}, nil
}

// LoadSchema is a convenience combining LoadManifest and Manifest.Schema.
func LoadSchema(path string) (name string, schema record.Schema, err error) {
	m, err := LoadManifest(path)
	if err != nil {
		return "", record.Schema{}, err
	}
	schema, err = m.Schema()
	if err != nil {
		return "", record.Schema{}, err
	}
	return m.Name, schema, nil
}
