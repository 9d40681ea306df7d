package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/sync/errgroup"

	"wellbore/internal/chart"
	"wellbore/internal/dataset"
	"wellbore/internal/derive"
	"wellbore/internal/narrative"
	"wellbore/pkg/drillapi"
)

type metricsCall struct {
	op      string
	success bool
}

type captureMetricsRecorder struct {
	mu    sync.Mutex
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, metricsCall{op: op, success: success})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

func (c *captureMetricsRecorder) saw(op string) bool {
	return c.has(op, true) || c.has(op, false)
}

func uploadOf(body string) *dataset.Upload {
	return &dataset.Upload{Name: "upload.csv", Data: []byte(body)}
}

func TestPipelineRunSimulatedDefaults(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	metrics := &captureMetricsRecorder{}
	p := NewPipeline(WithMetricsRecorder(metrics), WithClock(func() time.Time { return fixed }))

	res, err := p.Run(context.Background(), Request{Controls: drillapi.DefaultControls()})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Source != dataset.SourceSimulated {
		t.Fatalf("expected simulated source, got %s", res.Source)
	}
	if res.Table.Len() != 4 {
		t.Fatalf("expected 4 rows, got %d", res.Table.Len())
	}
	if math.Abs(res.Averages.Base()-14.41001124) > 1e-6 {
		t.Fatalf("unexpected mean %v", res.Averages.Base())
	}
	if len(res.Line) != 3 || len(res.Bars) != 3 {
		t.Fatalf("unexpected series %d/%d", len(res.Line), len(res.Bars))
	}
	if !strings.Contains(res.Narrative, "**120°F**") {
		t.Fatalf("narrative missing temperature:\n%s", res.Narrative)
	}
	if !res.GeneratedAt.Equal(fixed) {
		t.Fatalf("unexpected timestamp %v", res.GeneratedAt)
	}
	for _, op := range []string{OpRun, OpValidateControls, OpProvideDataset, OpComputeAverages, OpPrepareSeries, OpNarrative} {
		if !metrics.has(op, true) {
			t.Fatalf("expected successful %s observation", op)
		}
	}
}

func TestPipelineRunsAreReproducibleAndIndependent(t *testing.T) {
	p := NewPipeline()
	first, err := p.Run(context.Background(), Request{Controls: drillapi.DefaultControls()})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var want bytes.Buffer
	if err := dataset.WriteCSV(&want, first.Table); err != nil {
		t.Fatalf("write: %v", err)
	}

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			res, err := p.Run(context.Background(), Request{Controls: drillapi.DefaultControls()})
			if err != nil {
				return err
			}
			var got bytes.Buffer
			if err := dataset.WriteCSV(&got, res.Table); err != nil {
				return err
			}
			if !bytes.Equal(want.Bytes(), got.Bytes()) {
				return errors.New("concurrent run produced a different dataset")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestPipelineControlsDoNotChangeValues(t *testing.T) {
	p := NewPipeline()
	a, err := p.Run(context.Background(), Request{Controls: drillapi.DefaultControls()})
	if err != nil {
		t.Fatalf("run a: %v", err)
	}
	b, err := p.Run(context.Background(), Request{Controls: drillapi.Controls{Temperature: 190, Concentration: 2, Formation: drillapi.FormationLimestone}})
	if err != nil {
		t.Fatalf("run b: %v", err)
	}
	if diff := cmp.Diff(a.Averages, b.Averages); diff != "" {
		t.Fatalf("averages changed with controls (-a +b):\n%s", diff)
	}
	if diff := cmp.Diff(a.Line, b.Line); diff != "" {
		t.Fatalf("line series changed with controls (-a +b):\n%s", diff)
	}
	if a.Narrative == b.Narrative {
		t.Fatalf("expected narrative to follow controls")
	}
}

func TestPipelineUploadedDataset(t *testing.T) {
	body := "temperature,viscosity_at_0.5pct,viscosity_at_1pct,viscosity_at_2pct,fracture_gradient\n" +
		"80,40,55,75,14\n120,45,60,80,16\n150,50,65,85,15\n190,55,70,90,15\n"
	res, err := NewPipeline().Run(context.Background(), Request{Upload: uploadOf(body), Controls: drillapi.DefaultControls()})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Source != dataset.SourceUploaded {
		t.Fatalf("expected uploaded source, got %s", res.Source)
	}
	if diff := cmp.Diff(map[string]float64{"0.5%": 14.25, "1%": 15, "2%": 15.75}, res.Averages.Map(),
		cmp.Comparer(func(x, y float64) bool { return math.Abs(x-y) < 1e-12 })); diff != "" {
		t.Fatalf("averages (-want +got):\n%s", diff)
	}
}

func TestPipelineSingleRowUpload(t *testing.T) {
	body := "temperature,viscosity_at_0.5pct,viscosity_at_1pct,viscosity_at_2pct,fracture_gradient\n80,40,55,75,14\n"
	p := NewPipeline()
	res, err := p.Run(context.Background(), Request{Upload: uploadOf(body), Controls: drillapi.DefaultControls()})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Line) != 3 {
		t.Fatalf("expected 3 line series, got %d", len(res.Line))
	}
	for _, s := range res.Line {
		if len(s.Points) != 1 {
			t.Fatalf("%s: expected 1 point, got %d", s.Label, len(s.Points))
		}
	}
	if got, _ := res.Averages.Get("1%"); got != 14 {
		t.Fatalf("unexpected 1%% average %v", got)
	}
	for _, kind := range []chart.Kind{chart.KindLine, chart.KindBar} {
		var buf bytes.Buffer
		if err := p.RenderChart(context.Background(), res, kind, drillapi.FormatPNG, &buf); err != nil {
			t.Fatalf("render %s: %v", kind, err)
		}
		if !bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")) {
			t.Fatalf("%s chart is not a png", kind)
		}
	}
}

func TestPipelineErrors(t *testing.T) {
	cases := []struct {
		name    string
		req     Request
		check   func(error) bool
		failed  string
		skipped string
	}{
		{
			name:    "invalid controls",
			req:     Request{Controls: drillapi.Controls{Temperature: 300, Concentration: 0.5, Formation: drillapi.FormationShale}},
			check:   func(err error) bool { var ce *narrative.ControlError; return errors.As(err, &ce) },
			failed:  OpValidateControls,
			skipped: OpProvideDataset,
		},
		{
			name:    "malformed upload",
			req:     Request{Upload: uploadOf("a,b\n1\n"), Controls: drillapi.DefaultControls()},
			check:   func(err error) bool { var pe *dataset.ParseError; return errors.As(err, &pe) },
			failed:  OpProvideDataset,
			skipped: OpComputeAverages,
		},
		{
			name:    "missing fracture gradient",
			req:     Request{Upload: uploadOf("temperature\n80\n"), Controls: drillapi.DefaultControls()},
			check:   func(err error) bool { var me *dataset.MissingColumnError; return errors.As(err, &me) },
			failed:  OpComputeAverages,
			skipped: OpPrepareSeries,
		},
		{
			name:    "header only",
			req:     Request{Upload: uploadOf("fracture_gradient\n"), Controls: drillapi.DefaultControls()},
			check:   func(err error) bool { return errors.Is(err, derive.ErrNoValues) },
			failed:  OpComputeAverages,
			skipped: OpPrepareSeries,
		},
		{
			name:    "missing viscosity",
			req:     Request{Upload: uploadOf("temperature,fracture_gradient\n80,14\n"), Controls: drillapi.DefaultControls()},
			check:   func(err error) bool { var me *dataset.MissingColumnError; return errors.As(err, &me) },
			failed:  OpPrepareSeries,
			skipped: OpNarrative,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			metrics := &captureMetricsRecorder{}
			_, err := NewPipeline(WithMetricsRecorder(metrics)).Run(context.Background(), tc.req)
			if !tc.check(err) {
				t.Fatalf("unexpected error %v", err)
			}
			if !metrics.has(tc.failed, false) || !metrics.has(OpRun, false) {
				t.Fatalf("expected %s failure observation, got %+v", tc.failed, metrics.calls)
			}
			if metrics.saw(tc.skipped) {
				t.Fatalf("stage %s ran after failure", tc.skipped)
			}
		})
	}
}

func TestPipelineHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewPipeline().Run(ctx, Request{Controls: drillapi.DefaultControls()}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPipelineRenderChart(t *testing.T) {
	p := NewPipeline()
	res, err := p.Run(context.Background(), Request{Controls: drillapi.DefaultControls()})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var buf bytes.Buffer
	if err := p.RenderChart(context.Background(), res, chart.KindBar, drillapi.FormatSVG, &buf); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(buf.String(), "<svg") {
		t.Fatalf("expected svg output")
	}
	if err := p.RenderChart(context.Background(), res, chart.Kind("pie"), drillapi.FormatPNG, &buf); err == nil {
		t.Fatalf("expected unknown chart error")
	}
}

func TestResultJSON(t *testing.T) {
	res, err := NewPipeline().Run(context.Background(), Request{Controls: drillapi.DefaultControls()})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	payload, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"source", "table", "averages", "line_series", "bars", "narrative", "controls", "generated_at"} {
		if _, ok := decoded[key]; !ok {
			t.Fatalf("missing %s in %s", key, payload)
		}
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	p := NewPipeline(WithMetricsRecorder(rec))
	if _, err := p.Run(context.Background(), Request{Controls: drillapi.DefaultControls()}); err != nil {
		t.Fatalf("run: %v", err)
	}
	_, _ = p.Run(context.Background(), Request{Controls: drillapi.Controls{}})

	if got := testutil.ToFloat64(rec.results.WithLabelValues(OpRun, "success")); got != 1 {
		t.Fatalf("expected one successful run, got %v", got)
	}
	if got := testutil.ToFloat64(rec.results.WithLabelValues(OpValidateControls, "error")); got != 1 {
		t.Fatalf("expected one failed validation, got %v", got)
	}
	if n := testutil.CollectAndCount(rec.durations, "wellbore_operation_duration_seconds"); n == 0 {
		t.Fatalf("expected duration series")
	}
	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

func TestExpvarMetricsRecorder(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	if !strings.HasPrefix(rec.Name(), "wellbore_pipeline_metrics_") {
		t.Fatalf("unexpected name %s", rec.Name())
	}
	rec.Observe(context.Background(), OpRun, true, 2*time.Millisecond)
	rec.Observe(context.Background(), OpRun, false, time.Millisecond)
	rec.Observe(context.Background(), "", true, time.Millisecond)
	snap := rec.Snapshot()
	if snap.Results["run.success"] != 1 || snap.Results["run.error"] != 1 {
		t.Fatalf("unexpected results %v", snap.Results)
	}
	if snap.DurationsMS[OpRun] != 3 {
		t.Fatalf("unexpected durations %v", snap.DurationsMS)
	}
}

func TestJSONTracer(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	p := NewPipeline(WithTracer(tracer))
	if _, err := p.Run(context.Background(), Request{Controls: drillapi.Controls{}}); err == nil {
		t.Fatalf("expected validation error")
	}
	spans := tracer.Spans()
	if len(spans) != 2 {
		t.Fatalf("expected run and validate spans, got %+v", spans)
	}
	if spans[0].Operation != OpValidateControls || spans[0].Status != "error" || spans[0].Error == "" {
		t.Fatalf("unexpected first span %+v", spans[0])
	}
	if lines := strings.Count(buf.String(), "\n"); lines != 2 {
		t.Fatalf("expected two json lines, got %d", lines)
	}
}
