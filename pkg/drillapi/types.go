// Package drillapi holds the public vocabulary shared by the dashboard pipeline,
// its HTTP surface and its CLI: column names, polymer concentrations, output
// formats and the interpretation controls.
package drillapi

type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatPNG  Format = "png"
	FormatSVG  Format = "svg"
	FormatHTML Format = "html"
)

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatCSV:
		return "text/csv"
	case FormatPNG:
		return "image/png"
	case FormatSVG:
		return "image/svg+xml"
	case FormatHTML:
		return "text/html; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// ParseFormat maps a case-sensitive extension or query value to a Format.
func ParseFormat(s string) (Format, bool) {
	switch f := Format(s); f {
	case FormatJSON, FormatCSV, FormatPNG, FormatSVG, FormatHTML:
		return f, true
	}
	return "", false
}

const (
	ColumnTemperature      = "temperature"
	ColumnViscosity05      = "viscosity_at_0.5pct"
	ColumnViscosity1       = "viscosity_at_1pct"
	ColumnViscosity2       = "viscosity_at_2pct"
	ColumnFractureGradient = "fracture_gradient"
)

// ColumnAliases lists the display headers older spreadsheets use for each
// canonical column.
var ColumnAliases = map[string][]string{
	ColumnTemperature:      {"Temperature (°F)", "Temperature (F)"},
	ColumnViscosity05:      {"Viscosity (cP) - 0.5%"},
	ColumnViscosity1:       {"Viscosity (cP) - 1%"},
	ColumnViscosity2:       {"Viscosity (cP) - 2%"},
	ColumnFractureGradient: {"Fracture Gradient (ppg)"},
}

type Column struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Unit        string `json:"unit,omitempty"`
	Description string `json:"description,omitempty"`
}

// KnownColumns describes the columns the pipeline reads.
var KnownColumns = []Column{
	{Name: ColumnTemperature, Type: "number", Unit: "°F", Description: "circulating temperature"},
	{Name: ColumnViscosity05, Type: "number", Unit: "cP", Description: "fluid viscosity at 0.5% polymer"},
	{Name: ColumnViscosity1, Type: "number", Unit: "cP", Description: "fluid viscosity at 1% polymer"},
	{Name: ColumnViscosity2, Type: "number", Unit: "cP", Description: "fluid viscosity at 2% polymer"},
	{Name: ColumnFractureGradient, Type: "number", Unit: "ppg", Description: "formation fracture gradient"},
}

// LookupColumn returns the descriptor for a canonical column name.
func LookupColumn(name string) (Column, bool) {
	for _, c := range KnownColumns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Concentration describes one polymer loading the dashboard compares.
type Concentration struct {
	Label           string  `json:"label"`
	Percent         float64 `json:"percent"`
	FractureFactor  float64 `json:"fracture_factor"`
	ViscosityColumn string  `json:"viscosity_column"`
	ViscosityLow    float64 `json:"viscosity_low"`
	ViscosityHigh   float64 `json:"viscosity_high"`
}

// Concentrations returns the three loadings in display order. Viscosity
// range lower bounds are non-decreasing with concentration.
func Concentrations() []Concentration {
	return []Concentration{
		{Label: "0.5%", Percent: 0.5, FractureFactor: 0.95, ViscosityColumn: ColumnViscosity05, ViscosityLow: 30, ViscosityHigh: 60},
		{Label: "1%", Percent: 1.0, FractureFactor: 1.0, ViscosityColumn: ColumnViscosity1, ViscosityLow: 50, ViscosityHigh: 80},
		{Label: "2%", Percent: 2.0, FractureFactor: 1.05, ViscosityColumn: ColumnViscosity2, ViscosityLow: 70, ViscosityHigh: 100},
	}
}

type Formation string

const (
	FormationShale     Formation = "Shale"
	FormationSandstone Formation = "Sandstone"
	FormationLimestone Formation = "Limestone"
)

// Formations returns the selectable formation types in display order.
func Formations() []Formation {
	return []Formation{FormationShale, FormationSandstone, FormationLimestone}
}

const (
	MinTemperature     = 80
	MaxTemperature     = 190
	DefaultTemperature = 120
)

// Controls are the user selections interpolated into the interpretation
// text. They never change computed values.
type Controls struct {
	Temperature   int       `json:"temperature"`
	Concentration float64   `json:"concentration"`
	Formation     Formation `json:"formation"`
}

// DefaultControls mirrors the initial widget state of the dashboard.
func DefaultControls() Controls {
	return Controls{
		Temperature:   DefaultTemperature,
		Concentration: 0.5,
		Formation:     FormationShale,
	}
}
