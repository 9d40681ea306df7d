package narrative

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/charmbracelet/glamour"
	"github.com/yuin/goldmark"

	"wellbore/pkg/drillapi"
)

// Intro describes the dashboard above the controls.
const Intro = "This dashboard helps visualize and analyze **drilling risk indicators** and **wellbore stability trends** " +
	"using real-time or experimental data such as *mud weight, polymer concentration, temperature,* and *fracture gradient*."

var interpretation = template.Must(template.New("interpretation").Parse(
	`- At **{{.Temperature}}°F**, with a **{{.Concentration}}% polymer concentration**, viscosity tends to vary across polymers, affecting wellbore pressure response.
- Higher polymer concentrations generally enhance **mud viscosity**, which stabilizes the borehole wall but may also increase **equivalent circulating density (ECD)**.
- The fracture gradient (FG) response suggests that increasing polymer content can improve formation stability margins in **{{.Formation}}** formations.
- This relationship is critical in determining **safe mud weight windows** and **fracture pressure limits**.
`))

// Markdown renders the interpretation bullets for the selected controls.
func Markdown(c drillapi.Controls) (string, error) {
	if err := ValidateControls(c); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	err := interpretation.Execute(&buf, struct {
		Temperature   int
		Concentration string
		Formation     drillapi.Formation
	}{
		Temperature:   c.Temperature,
		Concentration: strconv.FormatFloat(c.Concentration, 'f', 1, 64),
		Formation:     c.Formation,
	})
	if err != nil {
		return "", fmt.Errorf("render interpretation: %w", err)
	}
	return buf.String(), nil
}

// HTML converts markdown to an HTML fragment.
func HTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	return buf.String(), nil
}

// Terminal renders markdown for a terminal. style is a glamour standard
// style name ("dark", "light", "notty", ...) or "auto".
func Terminal(markdown string, width int, style string) (string, error) {
	if width <= 0 {
		width = 80
	}
	styleOpt := glamour.WithStandardStyle(style)
	switch strings.TrimSpace(style) {
	case "", "auto":
		styleOpt = glamour.WithAutoStyle()
	}
	renderer, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(width))
	if err != nil {
		return "", fmt.Errorf("create terminal renderer: %w", err)
	}
	out, err := renderer.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return out, nil
}
