// Package chart turns the dataset and derived averages into plot series and
// renders them as images.
package chart

import (
	"encoding/json"
	"math"

	"wellbore/internal/dataset"
	"wellbore/internal/derive"
	"wellbore/pkg/drillapi"
)

const (
	LineTitle  = "Effect of Polymer Concentration on Temperature"
	LineXLabel = "Viscosity (cP)"
	LineYLabel = "Temperature (°F)"

	BarTitle  = "Fracture Gradient Comparison"
	BarXLabel = "Polymer Concentration (%)"
	BarYLabel = "Fracture Gradient (ppg)"
)

type Glyph string

const (
	GlyphCircle  Glyph = "circle"
	GlyphSquare  Glyph = "square"
	GlyphDiamond Glyph = "diamond"
)

type Dash string

const (
	DashSolid   Dash = "solid"
	DashDashed  Dash = "dashed"
	DashDashDot Dash = "dashdot"
)

// Style is the marker and stroke of a line series.
type Style struct {
	Glyph Glyph  `json:"glyph"`
	Dash  Dash   `json:"dash"`
	Color string `json:"color"`
}

// Point is one (viscosity, temperature) sample. Non-finite coordinates
// encode as JSON null.
type Point struct {
	X float64
	Y float64
}

func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		X *float64 `json:"x"`
		Y *float64 `json:"y"`
	}{X: finitePtr(p.X), Y: finitePtr(p.Y)})
}

func finitePtr(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// LineSeries is one polymer concentration's viscosity/temperature curve.
type LineSeries struct {
	Label         string  `json:"label"`
	Concentration string  `json:"concentration"`
	Points        []Point `json:"points"`
	Style         Style   `json:"style"`
}

// Bar is one category of the fracture gradient comparison.
type Bar struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
	Color string  `json:"color"`
}

// MarshalJSON writes a non-finite value as null.
func (b Bar) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Label string   `json:"label"`
		Value *float64 `json:"value"`
		Color string   `json:"color"`
	}{b.Label, finitePtr(b.Value), b.Color})
}

var lineStyles = map[string]Style{
	"0.5%": {Glyph: GlyphCircle, Dash: DashSolid, Color: "#1f77b4"},
	"1%":   {Glyph: GlyphSquare, Dash: DashDashed, Color: "#ff7f0e"},
	"2%":   {Glyph: GlyphDiamond, Dash: DashDashDot, Color: "#2ca02c"},
}

var barColors = map[string]string{
	"0.5%": "#2a9d8f",
	"1%":   "#e9c46a",
	"2%":   "#f4a261",
}

// PrepareLineSeries builds one series per concentration with points in
// dataset row order. Values are passed through untouched.
func PrepareLineSeries(t dataset.Table) ([]LineSeries, error) {
	temps, err := t.Float64s(drillapi.ColumnTemperature)
	if err != nil {
		return nil, err
	}
	concentrations := drillapi.Concentrations()
	out := make([]LineSeries, 0, len(concentrations))
	for _, c := range concentrations {
		visc, err := t.Float64s(c.ViscosityColumn)
		if err != nil {
			return nil, err
		}
		points := make([]Point, len(visc))
		for i := range visc {
			points[i] = Point{X: visc[i], Y: temps[i]}
		}
		out = append(out, LineSeries{
			Label:         c.Label + " Polymer",
			Concentration: c.Label,
			Points:        points,
			Style:         lineStyles[c.Label],
		})
	}
	return out, nil
}

// PrepareBarSeries pairs each average with its fixed bar color.
func PrepareBarSeries(a derive.Averages) []Bar {
	out := make([]Bar, len(a))
	for i, avg := range a {
		out[i] = Bar{Label: avg.Concentration, Value: avg.Value, Color: barColors[avg.Concentration]}
	}
	return out
}
