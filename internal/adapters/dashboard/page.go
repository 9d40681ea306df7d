package dashboard

import (
	"embed"
	"html/template"
	"io"

	"wellbore/internal/chart"
	"wellbore/internal/core"
	"wellbore/internal/narrative"
	"wellbore/pkg/drillapi"
)

// PageTitle heads both the live dashboard and exported reports.
const PageTitle = "Drilling Fluid Viscosity & Fracture Gradient Dashboard"

//go:embed templates/*.tmpl
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

type pageView struct {
	Title          string
	Intro          template.HTML
	Standalone     bool
	Controls       drillapi.Controls
	MinTemperature int
	MaxTemperature int
	Concentrations []drillapi.Concentration
	Formations     []drillapi.Formation
	Error          string

	Result    *core.Result
	Columns   []string
	Rows      [][]string
	LineChart template.URL
	BarChart  template.URL
	Narrative template.HTML
}

func newPageView(controls drillapi.Controls) (pageView, error) {
	intro, err := narrative.HTML(narrative.Intro)
	if err != nil {
		return pageView{}, err
	}
	return pageView{
		Title:          PageTitle,
		Intro:          template.HTML(intro),
		Controls:       controls,
		MinTemperature: drillapi.MinTemperature,
		MaxTemperature: drillapi.MaxTemperature,
		Concentrations: drillapi.Concentrations(),
		Formations:     drillapi.Formations(),
	}, nil
}

// withResult fills the data, chart and interpretation sections. Charts are
// inlined as PNG data URIs so the page has no follow-up requests.
func (v *pageView) withResult(res core.Result) error {
	v.Result = &res
	v.Controls = res.Controls
	v.Columns = res.Table.Names()
	cols := res.Table.Columns()
	v.Rows = make([][]string, res.Table.Len())
	for i := range v.Rows {
		row := make([]string, len(cols))
		for j, c := range cols {
			row[j] = c.Cell(i)
		}
		v.Rows[i] = row
	}

	line, err := chart.DataURI(func(w io.Writer) error {
		return chart.RenderLine(w, res.Line, drillapi.FormatPNG)
	}, drillapi.FormatPNG)
	if err != nil {
		return err
	}
	bar, err := chart.DataURI(func(w io.Writer) error {
		return chart.RenderBar(w, res.Bars, drillapi.FormatPNG)
	}, drillapi.FormatPNG)
	if err != nil {
		return err
	}
	v.LineChart = template.URL(line)
	v.BarChart = template.URL(bar)

	body, err := narrative.HTML(res.Narrative)
	if err != nil {
		return err
	}
	v.Narrative = template.HTML(body)
	return nil
}

func renderPage(w io.Writer, v pageView) error {
	return pageTemplate.ExecuteTemplate(w, "dashboard", v)
}

// RenderReport writes a standalone HTML report of res without the controls
// form.
func RenderReport(w io.Writer, res core.Result) error {
	v, err := newPageView(res.Controls)
	if err != nil {
		return err
	}
	v.Standalone = true
	if err := v.withResult(res); err != nil {
		return err
	}
	return renderPage(w, v)
}
