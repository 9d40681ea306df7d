package chart

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"

	"github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"wellbore/pkg/drillapi"
)

const (
	DefaultWidth  = 6.4 * vg.Inch
	DefaultHeight = 4.8 * vg.Inch
)

// ErrNoBars is returned when a bar chart has nothing to label.
var ErrNoBars = errors.New("bar chart needs at least one bar")

// Kind names a chart the dashboard renders.
type Kind string

const (
	KindLine Kind = "line"
	KindBar  Kind = "bar"
)

// ParseKind maps "line" or "bar" to a Kind.
func ParseKind(s string) (Kind, bool) {
	switch k := Kind(s); k {
	case KindLine, KindBar:
		return k, true
	}
	return "", false
}

// LinePlot lays out the viscosity/temperature chart. Non-finite points are
// left out of the drawing; a series with none left is omitted.
func LinePlot(series []LineSeries) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = LineTitle
	p.X.Label.Text = LineXLabel
	p.Y.Label.Text = LineYLabel
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	for _, s := range series {
		pts := make(plotter.XYs, 0, len(s.Points))
		for _, pt := range s.Points {
			if finite(pt.X) && finite(pt.Y) {
				pts = append(pts, plotter.XY{X: pt.X, Y: pt.Y})
			}
		}
		if len(pts) == 0 {
			continue
		}
		line, points, err := plotter.NewLinePoints(pts)
		if err != nil {
			return nil, fmt.Errorf("series %s: %w", s.Label, err)
		}
		col, err := parseColor(s.Style.Color)
		if err != nil {
			return nil, fmt.Errorf("series %s: %w", s.Label, err)
		}
		line.Color = col
		line.Width = vg.Points(1.5)
		line.Dashes = dashes(s.Style.Dash)
		points.Color = col
		points.Radius = vg.Points(3)
		points.Shape = glyph(s.Style.Glyph)
		p.Add(line, points)
		p.Legend.Add(s.Label, line, points)
	}
	return p, nil
}

// BarPlot lays out the fracture gradient comparison with one colored bar per
// concentration.
func BarPlot(bars []Bar) (*plot.Plot, error) {
	if len(bars) == 0 {
		return nil, ErrNoBars
	}
	p := plot.New()
	p.Title.Text = BarTitle
	p.X.Label.Text = BarXLabel
	p.Y.Label.Text = BarYLabel

	labels := make([]string, len(bars))
	for i, b := range bars {
		labels[i] = b.Label
		if !finite(b.Value) {
			continue
		}
		chart, err := plotter.NewBarChart(plotter.Values{b.Value}, vg.Points(60))
		if err != nil {
			return nil, fmt.Errorf("bar %s: %w", b.Label, err)
		}
		col, err := parseColor(b.Color)
		if err != nil {
			return nil, fmt.Errorf("bar %s: %w", b.Label, err)
		}
		chart.XMin = float64(i)
		chart.Color = col
		chart.LineStyle.Width = vg.Length(0)
		p.Add(chart)
	}
	p.NominalX(labels...)
	return p, nil
}

// RenderLine writes the line chart as PNG or SVG.
func RenderLine(w io.Writer, series []LineSeries, format drillapi.Format) error {
	if err := checkFormat(format); err != nil {
		return err
	}
	p, err := LinePlot(series)
	if err != nil {
		return err
	}
	return encode(w, p, format)
}

// RenderBar writes the bar chart as PNG or SVG.
func RenderBar(w io.Writer, bars []Bar, format drillapi.Format) error {
	if err := checkFormat(format); err != nil {
		return err
	}
	p, err := BarPlot(bars)
	if err != nil {
		return err
	}
	return encode(w, p, format)
}

// DataURI renders a chart to a base64 data URI for inline embedding.
func DataURI(render func(io.Writer) error, format drillapi.Format) (string, error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		return "", err
	}
	return "data:" + format.ContentType() + ";base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func checkFormat(format drillapi.Format) error {
	switch format {
	case drillapi.FormatPNG, drillapi.FormatSVG:
		return nil
	default:
		return fmt.Errorf("unsupported chart format %q", format)
	}
}

func encode(w io.Writer, p *plot.Plot, format drillapi.Format) error {
	if err := checkFormat(format); err != nil {
		return err
	}
	writer, err := p.WriterTo(DefaultWidth, DefaultHeight, string(format))
	if err != nil {
		return fmt.Errorf("create plot writer: %w", err)
	}
	if _, err := writer.WriteTo(w); err != nil {
		return fmt.Errorf("write plot: %w", err)
	}
	return nil
}

func parseColor(hex string) (color.Color, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return nil, fmt.Errorf("parse color %q: %w", hex, err)
	}
	return c, nil
}

func dashes(d Dash) []vg.Length {
	switch d {
	case DashDashed:
		return []vg.Length{vg.Points(6), vg.Points(4)}
	case DashDashDot:
		return []vg.Length{vg.Points(6), vg.Points(3), vg.Points(1.5), vg.Points(3)}
	default:
		return nil
	}
}

func glyph(g Glyph) draw.GlyphDrawer {
	switch g {
	case GlyphSquare:
		return draw.BoxGlyph{}
	case GlyphDiamond:
		return diamondGlyph{}
	default:
		return draw.CircleGlyph{}
	}
}

// diamondGlyph is a filled square rotated 45 degrees.
type diamondGlyph struct{}

func (diamondGlyph) DrawGlyph(c *draw.Canvas, sty draw.GlyphStyle, pt vg.Point) {
	r := sty.Radius * 1.2
	var path vg.Path
	path.Move(vg.Point{X: pt.X, Y: pt.Y + r})
	path.Line(vg.Point{X: pt.X + r, Y: pt.Y})
	path.Line(vg.Point{X: pt.X, Y: pt.Y - r})
	path.Line(vg.Point{X: pt.X - r, Y: pt.Y})
	path.Close()
	c.SetColor(sty.Color)
	c.Fill(path)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
