package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

var expvarSeq uint64

// ExpvarMetricsRecorder publishes per-operation totals under a single expvar
// map for deployments that scrape /debug/vars instead of Prometheus.
type ExpvarMetricsRecorder struct {
	name      string
	durations *expvar.Map
	results   *expvar.Map
}

// ExpvarMetricsSnapshot is a copy of the published totals. Result keys are
// "<operation>.<status>".
type ExpvarMetricsSnapshot struct {
	DurationsMS map[string]float64 `json:"durations_ms_total"`
	Results     map[string]int64   `json:"results_total"`
}

// NewExpvarMetricsRecorder publishes a recorder under name, or under a
// generated wellbore_pipeline_metrics_N name when name is empty.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = fmt.Sprintf("wellbore_pipeline_metrics_%d", atomic.AddUint64(&expvarSeq, 1))
	}
	rec := &ExpvarMetricsRecorder{
		name:      name,
		durations: new(expvar.Map).Init(),
		results:   new(expvar.Map).Init(),
	}
	root := new(expvar.Map).Init()
	root.Set("durations_ms_total", rec.durations)
	root.Set("results_total", rec.results)
	expvar.Publish(name, root)
	return rec
}

func (r *ExpvarMetricsRecorder) Name() string {
	return r.name
}

// Observe implements MetricsRecorder.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	r.durations.AddFloat(operation, float64(duration)/float64(time.Millisecond))
	r.results.Add(operation+"."+statusLabel(success), 1)
}

func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	snap := ExpvarMetricsSnapshot{
		DurationsMS: make(map[string]float64),
		Results:     make(map[string]int64),
	}
	r.durations.Do(func(kv expvar.KeyValue) {
		if f, ok := kv.Value.(*expvar.Float); ok {
			snap.DurationsMS[kv.Key] = f.Value()
		}
	})
	r.results.Do(func(kv expvar.KeyValue) {
		if n, ok := kv.Value.(*expvar.Int); ok {
			snap.Results[kv.Key] = n.Value()
		}
	})
	return snap
}

// SpanRecord is one finished stage as written by JSONTracer.
type SpanRecord struct {
	Operation  string    `json:"operation"`
	Status     string    `json:"status"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
}

// JSONTracer writes finished spans as JSON lines and keeps them for Spans.
type JSONTracer struct {
	mu    sync.Mutex
	spans []SpanRecord
	enc   *json.Encoder
}

// NewJSONTracer returns a tracer writing to w; w may be nil.
func NewJSONTracer(w io.Writer) *JSONTracer {
	t := &JSONTracer{}
	if w != nil {
		t.enc = json.NewEncoder(w)
	}
	return t
}

func (t *JSONTracer) Spans() []SpanRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]SpanRecord(nil), t.spans...)
}

// Start implements Tracer.
func (t *JSONTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &jsonSpan{tracer: t, operation: operation, started: time.Now().UTC()}
}

type jsonSpan struct {
	tracer    *JSONTracer
	operation string
	started   time.Time
	once      sync.Once
}

func (s *jsonSpan) End(err error) {
	s.once.Do(func() {
		rec := SpanRecord{
			Operation:  s.operation,
			Status:     statusLabel(err == nil),
			DurationMS: float64(time.Since(s.started)) / float64(time.Millisecond),
			StartedAt:  s.started,
		}
		if err != nil {
			rec.Error = err.Error()
		}
		s.tracer.mu.Lock()
		defer s.tracer.mu.Unlock()
		s.tracer.spans = append(s.tracer.spans, rec)
		if s.tracer.enc != nil {
			_ = s.tracer.enc.Encode(rec)
		}
	})
}
