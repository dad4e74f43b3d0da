// Package catalog loads the static species table.
package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/blackmichael/species-poster/internal/domain"
)

// Column names that must be present in the header row.
const (
	ColGenus      = "genus"
	ColSpecies    = "species"
	ColURI        = "uri/guid"
	ColIUCN       = "iucn"
	ColCommonName = "common_name"
)

var requiredColumns = []string{ColGenus, ColSpecies, ColURI, ColIUCN, ColCommonName}

// Catalog is an in-memory tab-delimited species table. It implements
// domain.Catalog.
type Catalog struct {
	columns map[string]int
	rows    [][]string
}

// Load reads the catalog at path.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	c, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse reads a catalog from r. The first line is the header.
func Parse(r io.Reader) (*Catalog, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("missing header row")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, dup := columns[name]; !dup {
			columns[name] = i
		}
	}
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}

	return &Catalog{columns: columns, rows: rows}, nil
}

// Len returns the number of data rows.
func (c *Catalog) Len() int {
	return len(c.rows)
}

// Indices returns every row index, for seeding the selection universe.
func (c *Catalog) Indices() []int {
	out := make([]int, len(c.rows))
	for i := range out {
		out[i] = i
	}
	return out
}

// Row returns the species at the 0-based data row index.
func (c *Catalog) Row(index int) (domain.Species, error) {
	if index < 0 || index >= len(c.rows) {
		return domain.Species{}, fmt.Errorf("row %d out of range [0, %d)", index, len(c.rows))
	}

	record := c.rows[index]
	sp := domain.Species{
		Index:      index,
		Genus:      c.field(record, ColGenus),
		Epithet:    c.field(record, ColSpecies),
		ProfileURL: c.field(record, ColURI),
		IUCNStatus: c.field(record, ColIUCN),
		CommonName: c.field(record, ColCommonName),
	}

	switch {
	case sp.Genus == "":
		return domain.Species{}, fmt.Errorf("row %d: empty %s", index, ColGenus)
	case sp.Epithet == "":
		return domain.Species{}, fmt.Errorf("row %d: empty %s", index, ColSpecies)
	case sp.ProfileURL == "":
		return domain.Species{}, fmt.Errorf("row %d: empty %s", index, ColURI)
	}
	return sp, nil
}

// field returns the trimmed cell for column, or "" for missing values.
func (c *Catalog) field(record []string, column string) string {
	i := c.columns[column]
	if i >= len(record) {
		return ""
	}
	v := strings.TrimSpace(record[i])
	switch strings.ToLower(v) {
	case "na", "nan", "null", "none":
		return ""
	}
	return v
}
