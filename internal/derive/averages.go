// Package derive computes the per-concentration fracture-gradient averages
// shown in the bar chart.
package derive

import (
	"encoding/json"
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"

	"wellbore/internal/dataset"
	"wellbore/pkg/drillapi"
)

// ErrNoValues is returned when every fracture gradient cell is missing.
var ErrNoValues = errors.New("fracture gradient column has no values")

// Average is the adjusted fracture gradient for one polymer concentration.
type Average struct {
	Concentration string  `json:"concentration"`
	Factor        float64 `json:"factor"`
	Value         float64 `json:"value"`
}

// MarshalJSON writes a non-finite value, from an infinite cell or an
// overflowing sum, as null.
func (a Average) MarshalJSON() ([]byte, error) {
	var value *float64
	if !math.IsNaN(a.Value) && !math.IsInf(a.Value, 0) {
		value = &a.Value
	}
	return json.Marshal(struct {
		Concentration string   `json:"concentration"`
		Factor        float64  `json:"factor"`
		Value         *float64 `json:"value"`
	}{a.Concentration, a.Factor, value})
}

// Averages are ordered as drillapi.Concentrations.
type Averages []Average

// Get returns the value for a concentration label such as "1%".
func (a Averages) Get(label string) (float64, bool) {
	for _, avg := range a {
		if avg.Concentration == label {
			return avg.Value, true
		}
	}
	return 0, false
}

// Map returns the averages keyed by concentration label.
func (a Averages) Map() map[string]float64 {
	out := make(map[string]float64, len(a))
	for _, avg := range a {
		out[avg.Concentration] = avg.Value
	}
	return out
}

// Base returns the unadjusted mean, which is the 1% entry.
func (a Averages) Base() float64 {
	v, _ := a.Get("1%")
	return v
}

// ComputeAverages scales the mean fracture gradient by each concentration's
// fixed factor. Missing (NaN) cells are skipped when taking the mean;
// infinite cells are kept and make the mean infinite.
func ComputeAverages(t dataset.Table) (Averages, error) {
	values, err := t.Float64s(drillapi.ColumnFractureGradient)
	if err != nil {
		return nil, err
	}
	base, err := meanSkippingNaN(values)
	if err != nil {
		return nil, err
	}
	concentrations := drillapi.Concentrations()
	out := make(Averages, len(concentrations))
	for i, c := range concentrations {
		out[i] = Average{Concentration: c.Label, Factor: c.FractureFactor, Value: base * c.FractureFactor}
	}
	return out, nil
}

func meanSkippingNaN(values []float64) (float64, error) {
	present := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			present = append(present, v)
		}
	}
	if len(present) == 0 {
		return 0, ErrNoValues
	}
	return stat.Mean(present, nil), nil
}
