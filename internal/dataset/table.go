// Package dataset models the drilling-fluid sample table and provides it to
// the dashboard, either parsed from an uploaded CSV or synthesized from a
// seeded generator.
package dataset

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"wellbore/pkg/drillapi"
)

type Kind string

const (
	KindNumber Kind = "number"
	KindText   Kind = "text"
)

// Column is a named, typed column. Raw keeps the cell text of uploaded
// tables so they can be written back verbatim; synthesized columns leave it
// nil.
type Column struct {
	Name    string
	Kind    Kind
	Numbers []float64
	Raw     []string
}

// NumberColumn builds a numeric column without raw text.
func NumberColumn(name string, values []float64) Column {
	return Column{Name: name, Kind: KindNumber, Numbers: append([]float64(nil), values...)}
}

// TextColumn builds a text column.
func TextColumn(name string, values []string) Column {
	return Column{Name: name, Kind: KindText, Raw: append([]string(nil), values...)}
}

func (c Column) len() int {
	if c.Kind == KindNumber {
		return len(c.Numbers)
	}
	return len(c.Raw)
}

// Cell returns the text of row i.
func (c Column) Cell(i int) string {
	if c.Raw != nil {
		return c.Raw[i]
	}
	if c.Kind != KindNumber {
		return ""
	}
	v := c.Numbers[i]
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Table is an ordered set of equally sized columns.
type Table struct {
	columns []Column
	rows    int
}

// NewTable validates column names and lengths.
func NewTable(columns ...Column) (Table, error) {
	t := Table{columns: make([]Column, 0, len(columns))}
	seen := make(map[string]struct{}, len(columns))
	for i, c := range columns {
		if strings.TrimSpace(c.Name) == "" {
			return Table{}, fmt.Errorf("column %d has no name", i)
		}
		if _, dup := seen[c.Name]; dup {
			return Table{}, fmt.Errorf("duplicate column %q", c.Name)
		}
		seen[c.Name] = struct{}{}
		if i == 0 {
			t.rows = c.len()
		} else if c.len() != t.rows {
			return Table{}, fmt.Errorf("column %q has %d rows, want %d", c.Name, c.len(), t.rows)
		}
		t.columns = append(t.columns, c)
	}
	return t, nil
}

// Len returns the number of rows.
func (t Table) Len() int { return t.rows }

// Names returns the column names in order.
func (t Table) Names() []string {
	out := make([]string, len(t.columns))
	for i, c := range t.columns {
		out[i] = c.Name
	}
	return out
}

// Columns returns a shallow copy of the columns.
func (t Table) Columns() []Column {
	return append([]Column(nil), t.columns...)
}

// Column looks a column up by its exact name, then case-insensitively by
// its canonical name or one of the display aliases in drillapi.ColumnAliases.
func (t Table) Column(name string) (Column, bool) {
	idx := t.resolve(name)
	if idx < 0 {
		return Column{}, false
	}
	return t.columns[idx], true
}

func (t Table) resolve(name string) int {
	for i, c := range t.columns {
		if c.Name == name {
			return i
		}
	}
	candidates := append([]string{name}, drillapi.ColumnAliases[name]...)
	for i, c := range t.columns {
		got := strings.TrimSpace(c.Name)
		for _, want := range candidates {
			if strings.EqualFold(got, want) {
				return i
			}
		}
	}
	return -1
}

// Float64s returns the values of a numeric column.
func (t Table) Float64s(name string) ([]float64, error) {
	c, ok := t.Column(name)
	if !ok {
		return nil, &MissingColumnError{Column: name, Available: t.Names()}
	}
	if c.Kind != KindNumber {
		for i, v := range c.Raw {
			if _, ok := parseCell(v); !ok {
				return nil, &ColumnTypeError{Column: c.Name, Row: i + 1, Value: v}
			}
		}
		return nil, &ColumnTypeError{Column: c.Name}
	}
	return append([]float64(nil), c.Numbers...), nil
}

// Require checks that every named column is present and numeric.
func (t Table) Require(names ...string) error {
	for _, name := range names {
		if _, err := t.Float64s(name); err != nil {
			return err
		}
	}
	return nil
}

// Schema describes the columns, borrowing units from drillapi.KnownColumns
// when a column resolves to a canonical name.
func (t Table) Schema() []drillapi.Column {
	out := make([]drillapi.Column, len(t.columns))
	for i, c := range t.columns {
		out[i] = drillapi.Column{Name: c.Name, Type: string(c.Kind)}
		for _, known := range drillapi.KnownColumns {
			if t.resolve(known.Name) == i {
				out[i].Unit = known.Unit
				out[i].Description = known.Description
				break
			}
		}
	}
	return out
}

// Rows returns the table as one map per row. Non-finite numbers become nil
// so the rows encode as JSON.
func (t Table) Rows() []map[string]any {
	out := make([]map[string]any, t.rows)
	for r := 0; r < t.rows; r++ {
		row := make(map[string]any, len(t.columns))
		for _, c := range t.columns {
			if c.Kind == KindNumber {
				v := c.Numbers[r]
				if math.IsNaN(v) || math.IsInf(v, 0) {
					row[c.Name] = nil
				} else {
					row[c.Name] = v
				}
				continue
			}
			row[c.Name] = c.Raw[r]
		}
		out[r] = row
	}
	return out
}

// MarshalJSON encodes the schema and rows.
func (t Table) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Columns []drillapi.Column `json:"columns"`
		Rows    []map[string]any  `json:"rows"`
	}{Columns: t.Schema(), Rows: t.Rows()})
}
