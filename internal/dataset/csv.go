package dataset

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// naTokens are cell values read as missing numbers.
var naTokens = map[string]struct{}{
	"": {}, "NA": {}, "N/A": {}, "n/a": {}, "NaN": {}, "nan": {}, "-NaN": {}, "-nan": {},
	"null": {}, "NULL": {}, "None": {}, "#N/A": {},
}

// parseCell reads a numeric cell. Missing values yield NaN; ok is false for
// text that is not a number.
func parseCell(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if _, na := naTokens[s]; na {
		return math.NaN(), true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseCSV reads a comma-separated table with a header row. Column types are
// inferred: a column is numeric when every cell parses as a number or is
// missing. Cell text is kept so the table can be written back unchanged.
func ParseCSV(r io.Reader) (Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Table{}, &ParseError{Reason: "read input", Err: err}
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return Table{}, &ParseError{Reason: "empty input"}
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			return Table{}, &ParseError{Line: pe.Line, Reason: pe.Err.Error(), Err: err}
		}
		return Table{}, &ParseError{Reason: err.Error(), Err: err}
	}

	header := records[0]
	names := make([]string, len(header))
	seen := make(map[string]struct{}, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			return Table{}, &ParseError{Line: 1, Reason: fmt.Sprintf("blank column name at position %d", i+1)}
		}
		if _, dup := seen[name]; dup {
			return Table{}, &ParseError{Line: 1, Reason: fmt.Sprintf("duplicate column %q", name)}
		}
		seen[name] = struct{}{}
		names[i] = name
	}

	body := records[1:]
	columns := make([]Column, len(names))
	for c, name := range names {
		raw := make([]string, len(body))
		for r, rec := range body {
			raw[r] = rec[c]
		}
		columns[c] = inferColumn(name, raw)
	}
	t, err := NewTable(columns...)
	if err != nil {
		return Table{}, &ParseError{Reason: err.Error(), Err: err}
	}
	return t, nil
}

func inferColumn(name string, raw []string) Column {
	numbers := make([]float64, len(raw))
	for i, cell := range raw {
		v, ok := parseCell(cell)
		if !ok {
			return Column{Name: name, Kind: KindText, Raw: raw}
		}
		numbers[i] = v
	}
	return Column{Name: name, Kind: KindNumber, Numbers: numbers, Raw: raw}
}

// WriteCSV writes the header and every row. Synthesized numbers use the
// shortest representation that parses back to the same float64.
func WriteCSV(w io.Writer, t Table) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(t.Names()); err != nil {
		return err
	}
	record := make([]string, len(t.columns))
	for r := 0; r < t.rows; r++ {
		for c, col := range t.columns {
			record[c] = col.Cell(r)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
