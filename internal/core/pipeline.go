// Package core runs the dashboard pipeline: dataset provision, derived
// averages, chart series and interpretation text.
package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"wellbore/internal/chart"
	"wellbore/internal/dataset"
	"wellbore/internal/derive"
	"wellbore/internal/narrative"
	"wellbore/pkg/drillapi"
)

// Stage names reported to the MetricsRecorder and Tracer.
const (
	OpRun              = "run"
	OpValidateControls = "validate_controls"
	OpProvideDataset   = "provide_dataset"
	OpComputeAverages  = "compute_averages"
	OpPrepareSeries    = "prepare_series"
	OpNarrative        = "narrative"
	OpRenderChart      = "render_chart"
)

// Request is the input of a single dashboard refresh.
type Request struct {
	Upload   *dataset.Upload
	Controls drillapi.Controls
}

// Result carries everything a presentation layer needs for one refresh.
type Result struct {
	Source      dataset.Source     `json:"source"`
	Table       dataset.Table      `json:"table"`
	Averages    derive.Averages    `json:"averages"`
	Line        []chart.LineSeries `json:"line_series"`
	Bars        []chart.Bar        `json:"bars"`
	Narrative   string             `json:"narrative"`
	Controls    drillapi.Controls  `json:"controls"`
	GeneratedAt time.Time          `json:"generated_at"`
}

// Pipeline is stateless between runs. Each synthesized dataset comes from a
// generator seeded afresh, so concurrent runs never share random state.
type Pipeline struct {
	seed    uint64
	metrics MetricsRecorder
	tracer  Tracer
	logger  *slog.Logger
	now     func() time.Time
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

func WithSeed(seed uint64) PipelineOption {
	return func(p *Pipeline) { p.seed = seed }
}

func WithMetricsRecorder(m MetricsRecorder) PipelineOption {
	return func(p *Pipeline) {
		if m != nil {
			p.metrics = m
		}
	}
}

func WithTracer(t Tracer) PipelineOption {
	return func(p *Pipeline) {
		if t != nil {
			p.tracer = t
		}
	}
}

func WithLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithClock overrides the source of Result.GeneratedAt.
func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPipeline returns a pipeline seeded with dataset.DefaultSeed unless
// overridden.
func NewPipeline(opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		seed:    dataset.DefaultSeed,
		metrics: NoopMetricsRecorder{},
		tracer:  noopTracer{},
		logger:  slog.New(slog.DiscardHandler),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Seed returns the seed used for synthesized datasets.
func (p *Pipeline) Seed() uint64 {
	return p.seed
}

// Run executes one refresh. Controls are validated first and only shape the
// interpretation text.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	var res Result
	err := p.stage(ctx, OpRun, func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.stage(ctx, OpValidateControls, func(context.Context) error {
			return narrative.ValidateControls(req.Controls)
		}); err != nil {
			return err
		}
		res.Controls = req.Controls

		if err := p.stage(ctx, OpProvideDataset, func(context.Context) error {
			var err error
			res.Table, res.Source, err = dataset.Provide(req.Upload, dataset.NewGenerator(p.seed))
			return err
		}); err != nil {
			return err
		}

		if err := p.stage(ctx, OpComputeAverages, func(context.Context) error {
			var err error
			res.Averages, err = derive.ComputeAverages(res.Table)
			return err
		}); err != nil {
			return err
		}

		if err := p.stage(ctx, OpPrepareSeries, func(context.Context) error {
			var err error
			res.Line, err = chart.PrepareLineSeries(res.Table)
			if err != nil {
				return err
			}
			res.Bars = chart.PrepareBarSeries(res.Averages)
			return nil
		}); err != nil {
			return err
		}

		return p.stage(ctx, OpNarrative, func(context.Context) error {
			var err error
			res.Narrative, err = narrative.Markdown(req.Controls)
			return err
		})
	})
	if err != nil {
		return Result{}, err
	}
	res.GeneratedAt = p.now().UTC()
	p.logger.LogAttrs(ctx, slog.LevelDebug, "dashboard refreshed",
		slog.String("source", string(res.Source)),
		slog.Int("rows", res.Table.Len()),
		slog.Float64("fracture_gradient_mean", res.Averages.Base()),
	)
	return res, nil
}

// RenderChart draws one of the result's charts as PNG or SVG.
func (p *Pipeline) RenderChart(ctx context.Context, res Result, kind chart.Kind, format drillapi.Format, w io.Writer) error {
	return p.stage(ctx, OpRenderChart, func(context.Context) error {
		switch kind {
		case chart.KindLine:
			return chart.RenderLine(w, res.Line, format)
		case chart.KindBar:
			return chart.RenderBar(w, res.Bars, format)
		default:
			return fmt.Errorf("unknown chart %q", kind)
		}
	})
}

func (p *Pipeline) stage(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, span := p.tracer.Start(ctx, op)
	started := time.Now()
	err := fn(ctx)
	elapsed := time.Since(started)
	span.End(err)
	p.metrics.Observe(ctx, op, err == nil, elapsed)
	if err != nil && op != OpRun {
		p.logger.LogAttrs(ctx, slog.LevelWarn, "pipeline stage failed",
			slog.String("stage", op),
			slog.Duration("elapsed", elapsed),
			slog.Any("err", err),
		)
	}
	return err
}
