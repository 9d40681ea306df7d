package dataset

import (
	"bytes"
	"errors"

	"wellbore/pkg/drillapi"
)

// DefaultSeed keeps the simulated dataset identical across runs.
const DefaultSeed uint64 = 42

const (
	FractureGradientLow  = 13.0
	FractureGradientHigh = 17.0
)

// SyntheticTemperatures are the sample temperatures (°F) of the simulated dataset.
var SyntheticTemperatures = []float64{80, 120, 150, 190}

type Source string

const (
	SourceUploaded  Source = "uploaded"
	SourceSimulated Source = "simulated"
)

// Upload is a user-supplied CSV file.
type Upload struct {
	Name string
	Data []byte
}

// Provide returns the uploaded table when one is supplied and a synthesized
// table otherwise. Uploaded tables are returned as parsed, with no column
// checks; callers validate the columns they read.
func Provide(upload *Upload, gen *Generator) (Table, Source, error) {
	if upload != nil {
		t, err := ParseCSV(bytes.NewReader(upload.Data))
		if err != nil {
			return Table{}, SourceUploaded, err
		}
		return t, SourceUploaded, nil
	}
	if gen == nil {
		return Table{}, SourceSimulated, errors.New("dataset: generator required to synthesize")
	}
	return Synthesize(gen), SourceSimulated, nil
}

// Synthesize builds the four-row simulated dataset. Draws are consumed a
// column at a time: every 0.5% viscosity first, then 1%, then 2%, then the
// fracture gradients.
func Synthesize(gen *Generator) Table {
	n := len(SyntheticTemperatures)
	columns := []Column{NumberColumn(drillapi.ColumnTemperature, SyntheticTemperatures)}
	for _, c := range drillapi.Concentrations() {
		columns = append(columns, NumberColumn(c.ViscosityColumn, gen.UniformN(c.ViscosityLow, c.ViscosityHigh, n)))
	}
	columns = append(columns, NumberColumn(drillapi.ColumnFractureGradient, gen.UniformN(FractureGradientLow, FractureGradientHigh, n)))
	t, err := NewTable(columns...)
	if err != nil {
		panic(err) // fixed shape
	}
	return t
}
