// Package datafile reads datasets from YAML or JSON documents.
//
//	name: Sales
//	tables:
//	  - name: Orders
//	    columns:
//	      - id
//	      - {name: product, caption: Product Name, type: string}
//	    rows:
//	      - [1, Widget]
//	      - {id: 2, product: Gadget}
//
// Rows are either sequences matching the column order or mappings keyed by
// column name. Columns without a caption use their name.
package datafile

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/javajack/tabexport"
)

type fileDataset struct {
	Name   string      `yaml:"name"`
	Tables []fileTable `yaml:"tables"`
}

type fileTable struct {
	Name    string       `yaml:"name"`
	Columns []fileColumn `yaml:"columns"`
	Rows    []yaml.Node  `yaml:"rows"`
}

type fileColumn struct {
	Name    string `yaml:"name"`
	Caption string `yaml:"caption"`
	Type    string `yaml:"type"`
}

// UnmarshalYAML accepts a bare column name as well as a mapping.
func (c *fileColumn) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		c.Name = n.Value
		return nil
	}
	type plain fileColumn
	return n.Decode((*plain)(c))
}

// Load reads the dataset file at path.
func Load(path string) (*tabexport.DataSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset %q: %w", path, err)
	}
	defer f.Close()
	ds, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("dataset %q: %w", path, err)
	}
	return ds, nil
}

// Decode reads one dataset document from r.
func Decode(r io.Reader) (*tabexport.DataSet, error) {
	var doc fileDataset
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty dataset document")
		}
		return nil, fmt.Errorf("decode dataset: %w", err)
	}

	ds := tabexport.NewDataSet(doc.Name)
	for i, ft := range doc.Tables {
		if ft.Name == "" {
			return nil, fmt.Errorf("table %d has no name", i+1)
		}
		cols := make([]tabexport.Column, len(ft.Columns))
		for j, fc := range ft.Columns {
			if fc.Name == "" {
				return nil, fmt.Errorf("table %q column %d has no name", ft.Name, j+1)
			}
			cols[j] = tabexport.Column{Name: fc.Name, Caption: fc.Caption, Type: fc.Type}
		}
		t := tabexport.NewTable(ft.Name, cols...)
		for j := range ft.Rows {
			if err := addRow(t, &ft.Rows[j]); err != nil {
				return nil, fmt.Errorf("table %q row %d: %w", ft.Name, j+1, err)
			}
		}
		ds.AddTable(t)
	}
	return ds, nil
}

func addRow(t *tabexport.Table, n *yaml.Node) error {
	switch n.Kind {
	case yaml.SequenceNode:
		var values []any
		if err := n.Decode(&values); err != nil {
			return err
		}
		return t.AddRow(values...)
	case yaml.MappingNode:
		var values map[string]any
		if err := n.Decode(&values); err != nil {
			return err
		}
		t.AddRecord(values)
		return nil
	default:
		return fmt.Errorf("line %d: row must be a sequence or a mapping", n.Line)
	}
}
