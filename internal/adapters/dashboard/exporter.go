package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"wellbore/internal/audit"
	"wellbore/internal/blob"
	"wellbore/internal/chart"
	"wellbore/internal/core"
	"wellbore/internal/dataset"
	"wellbore/internal/narrative"
	"wellbore/pkg/drillapi"
)

// ExportStatus describes the lifecycle stage of an export request.
type ExportStatus string

const (
	ExportStatusQueued    ExportStatus = "queued"
	ExportStatusRunning   ExportStatus = "running"
	ExportStatusSucceeded ExportStatus = "succeeded"
	ExportStatusFailed    ExportStatus = "failed"
)

const auditAction = "dashboard_export"

var (
	ErrQueueFull      = errors.New("export queue full")
	ErrExportNotFound = errors.New("export not found")
)

// ExportArtifact is one stored file of a finished export.
type ExportArtifact struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Format      drillapi.Format   `json:"format"`
	ContentType string            `json:"content_type"`
	SizeBytes   int64             `json:"size_bytes"`
	Key         string            `json:"key"`
	URL         string            `json:"url"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// ExportRecord tracks an export request and resulting artifacts.
type ExportRecord struct {
	ID          string            `json:"id"`
	Controls    drillapi.Controls `json:"controls"`
	Source      dataset.Source    `json:"source"`
	Formats     []drillapi.Format `json:"formats"`
	Status      ExportStatus      `json:"status"`
	Error       string            `json:"error,omitempty"`
	Artifacts   []ExportArtifact  `json:"artifacts,omitempty"`
	RequestedBy string            `json:"requested_by,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// ExportInput represents an enqueue request for the worker. A nil Upload
// exports the simulated dataset.
type ExportInput struct {
	Controls    drillapi.Controls
	Upload      *dataset.Upload
	Formats     []drillapi.Format
	RequestedBy string
	Reason      string
}

// ExportScheduler queues export requests and exposes their status and
// artifacts.
type ExportScheduler interface {
	EnqueueExport(ctx context.Context, input ExportInput) (ExportRecord, error)
	GetExport(id string) (ExportRecord, bool)
	OpenArtifact(ctx context.Context, exportID, artifactID string) (ExportArtifact, io.ReadCloser, error)
}

// WorkerConfig sizes the worker pool.
type WorkerConfig struct {
	Workers   int
	QueueSize int
	// Retain caps the records kept for GetExport. Once exceeded, the oldest
	// finished records are dropped; their artifacts stay in the blob store.
	Retain        int
	PresignExpiry time.Duration
	Logger        *slog.Logger
}

// Worker executes exports asynchronously. Each job re-runs the pipeline for
// its own input and stores every materialized file under exports/<id>/.
type Worker struct {
	pipeline *core.Pipeline
	store    blob.Store
	audit    audit.Logger
	logger   *slog.Logger
	workers  int
	retain   int
	expiry   time.Duration

	queue chan exportTask
	mu    sync.RWMutex
	jobs  map[string]*ExportRecord
	order []string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type exportTask struct {
	id    string
	input ExportInput
}

type renderedArtifact struct {
	name        string
	format      drillapi.Format
	contentType string
	metadata    map[string]string
	payload     []byte
}

// NewWorker constructs an export worker. A nil audit logger discards entries.
func NewWorker(p *core.Pipeline, store blob.Store, log audit.Logger, cfg WorkerConfig) *Worker {
	if log == nil {
		log = audit.Discard{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 32
	}
	if cfg.Retain <= 0 {
		cfg.Retain = 1024
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		pipeline: p,
		store:    store,
		audit:    log,
		logger:   logger,
		workers:  cfg.Workers,
		retain:   cfg.Retain,
		expiry:   cfg.PresignExpiry,
		queue:    make(chan exportTask, cfg.QueueSize),
		jobs:     make(map[string]*ExportRecord),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the worker goroutines.
func (w *Worker) Start() {
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.loop()
	}
}

// Stop signals the workers to halt and waits for them. A job in flight is
// cancelled through the worker context and ends failed.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case task := <-w.queue:
			w.process(task)
		}
	}
}

// EnqueueExport validates the request and schedules it. Formats default to
// json and csv; duplicates are dropped.
func (w *Worker) EnqueueExport(ctx context.Context, input ExportInput) (ExportRecord, error) {
	if w.pipeline == nil || w.store == nil {
		return ExportRecord{}, errors.New("export worker not configured")
	}
	if err := narrative.ValidateControls(input.Controls); err != nil {
		return ExportRecord{}, err
	}

	formats := input.Formats
	if len(formats) == 0 {
		formats = []drillapi.Format{drillapi.FormatJSON, drillapi.FormatCSV}
	}
	uniqFormats := make([]drillapi.Format, 0, len(formats))
	seen := make(map[drillapi.Format]struct{})
	for _, format := range formats {
		if _, duplicate := seen[format]; duplicate {
			continue
		}
		if _, ok := drillapi.ParseFormat(string(format)); !ok {
			return ExportRecord{}, &UnsupportedFormatError{Format: string(format)}
		}
		uniqFormats = append(uniqFormats, format)
		seen[format] = struct{}{}
	}

	source := dataset.SourceSimulated
	if input.Upload != nil {
		source = dataset.SourceUploaded
	}
	id := uuid.NewString()
	now := time.Now().UTC()
	record := ExportRecord{
		ID:          id,
		Controls:    input.Controls,
		Source:      source,
		Formats:     uniqFormats,
		Status:      ExportStatusQueued,
		RequestedBy: input.RequestedBy,
		Reason:      input.Reason,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	w.jobs[id] = &record
	w.order = append(w.order, id)
	queuedSnapshot := record.copy()
	w.mu.Unlock()

	w.audit.Record(ctx, audit.Entry{
		ID:         uuid.NewString(),
		Action:     auditAction,
		Actor:      input.RequestedBy,
		Status:     string(ExportStatusQueued),
		Subject:    id,
		Reason:     input.Reason,
		Metadata:   map[string]any{"formats": formatNames(uniqFormats), "source": string(source)},
		OccurredAt: now,
	})

	select {
	case w.queue <- exportTask{id: id, input: input}:
	default:
		w.fail(id, ErrQueueFull.Error())
		w.mu.Lock()
		delete(w.jobs, id)
		w.mu.Unlock()
		return ExportRecord{}, ErrQueueFull
	}
	return queuedSnapshot, nil
}

// GetExport returns a snapshot of the export record.
func (w *Worker) GetExport(id string) (ExportRecord, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return ExportRecord{}, false
	}
	return record.copy(), true
}

// OpenArtifact streams a stored artifact. The caller closes the reader.
func (w *Worker) OpenArtifact(ctx context.Context, exportID, artifactID string) (ExportArtifact, io.ReadCloser, error) {
	record, ok := w.GetExport(exportID)
	if !ok {
		return ExportArtifact{}, nil, ErrExportNotFound
	}
	for _, artifact := range record.Artifacts {
		if artifact.ID != artifactID {
			continue
		}
		_, body, err := w.store.Get(ctx, artifact.Key)
		if err != nil {
			return ExportArtifact{}, nil, fmt.Errorf("open artifact %s: %w", artifact.Key, err)
		}
		return artifact, body, nil
	}
	return ExportArtifact{}, nil, fmt.Errorf("artifact %s: %w", artifactID, blob.ErrNotFound)
}

func (w *Worker) process(task exportTask) {
	record, ok := w.GetExport(task.id)
	if !ok {
		return
	}
	w.updateStatus(task.id, ExportStatusRunning)

	res, err := w.pipeline.Run(w.ctx, core.Request{Upload: task.input.Upload, Controls: task.input.Controls})
	if err != nil {
		w.fail(task.id, fmt.Sprintf("dashboard run failed: %v", err))
		return
	}

	artifacts := make([]ExportArtifact, 0, len(record.Formats))
	for _, format := range record.Formats {
		rendered, err := w.materialize(format, res)
		if err != nil {
			w.fail(task.id, err.Error())
			return
		}
		for _, r := range rendered {
			stored, err := w.storeArtifact(task.id, r)
			if err != nil {
				w.fail(task.id, fmt.Sprintf("store artifact failed: %v", err))
				return
			}
			artifacts = append(artifacts, stored)
		}
	}
	w.complete(task.id, artifacts)
}

func (w *Worker) storeArtifact(exportID string, r renderedArtifact) (ExportArtifact, error) {
	key := path.Join("exports", exportID, r.name)
	info, err := w.store.Put(w.ctx, key, bytes.NewReader(r.payload), blob.PutOptions{
		ContentType: r.contentType,
		Metadata:    r.metadata,
	})
	if err != nil {
		return ExportArtifact{}, err
	}
	artifactID := uuid.NewString()
	artifact := ExportArtifact{
		ID:          artifactID,
		Name:        r.name,
		Format:      r.format,
		ContentType: info.ContentType,
		SizeBytes:   info.Size,
		Key:         info.Key,
		URL:         artifactPath(exportID, artifactID),
		Metadata:    blob.CloneMetadata(r.metadata),
		CreatedAt:   info.LastModified,
	}
	if artifact.ContentType == "" {
		artifact.ContentType = r.contentType
	}
	if artifact.CreatedAt.IsZero() {
		artifact.CreatedAt = time.Now().UTC()
	}
	url, err := w.store.PresignURL(w.ctx, key, blob.SignedURLOptions{Method: http.MethodGet, Expiry: w.expiry})
	switch {
	case err == nil && (strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")):
		artifact.URL = url
	case err != nil && !errors.Is(err, blob.ErrUnsupported):
		w.logger.Warn("presign artifact failed", "key", key, "err", err)
	}
	return artifact, nil
}

func (w *Worker) materialize(format drillapi.Format, res core.Result) ([]renderedArtifact, error) {
	meta := map[string]string{
		"format": string(format),
		"rows":   fmt.Sprint(res.Table.Len()),
		"source": string(res.Source),
	}
	switch format {
	case drillapi.FormatJSON:
		payload, err := json.Marshal(res)
		if err != nil {
			return nil, fmt.Errorf("marshal json: %w", err)
		}
		return []renderedArtifact{{name: "result.json", format: format, contentType: format.ContentType(), metadata: meta, payload: payload}}, nil
	case drillapi.FormatCSV:
		var buf bytes.Buffer
		if err := dataset.WriteCSV(&buf, res.Table); err != nil {
			return nil, fmt.Errorf("write csv: %w", err)
		}
		return []renderedArtifact{{name: "dataset.csv", format: format, contentType: format.ContentType(), metadata: meta, payload: buf.Bytes()}}, nil
	case drillapi.FormatPNG, drillapi.FormatSVG:
		out := make([]renderedArtifact, 0, 2)
		for _, kind := range []chart.Kind{chart.KindLine, chart.KindBar} {
			var buf bytes.Buffer
			if err := w.pipeline.RenderChart(w.ctx, res, kind, format, &buf); err != nil {
				return nil, fmt.Errorf("render %s chart: %w", kind, err)
			}
			chartMeta := blob.CloneMetadata(meta)
			chartMeta["chart"] = string(kind)
			out = append(out, renderedArtifact{
				name:        string(kind) + "." + string(format),
				format:      format,
				contentType: format.ContentType(),
				metadata:    chartMeta,
				payload:     buf.Bytes(),
			})
		}
		return out, nil
	case drillapi.FormatHTML:
		var buf bytes.Buffer
		if err := RenderReport(&buf, res); err != nil {
			return nil, fmt.Errorf("render report: %w", err)
		}
		return []renderedArtifact{{name: "report.html", format: format, contentType: format.ContentType(), metadata: meta, payload: buf.Bytes()}}, nil
	default:
		return nil, &UnsupportedFormatError{Format: string(format)}
	}
}

func (w *Worker) updateStatus(id string, status ExportStatus) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = status
		record.UpdatedAt = now
	}
	w.mu.Unlock()
	w.record(id, status, nil, now)
}

func (w *Worker) complete(id string, artifacts []ExportArtifact) {
	now := time.Now().UTC()
	w.record(id, ExportStatusSucceeded, map[string]any{"artifacts": len(artifacts)}, now)
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = ExportStatusSucceeded
		record.Error = ""
		record.Artifacts = artifacts
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.pruneLocked()
	w.mu.Unlock()
	w.logger.Info("export succeeded", "export_id", id, "artifacts", len(artifacts))
}

func (w *Worker) fail(id, reason string) {
	now := time.Now().UTC()
	w.record(id, ExportStatusFailed, map[string]any{"error": reason}, now)
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = ExportStatusFailed
		record.Error = reason
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.pruneLocked()
	w.mu.Unlock()
	w.logger.Warn("export failed", "export_id", id, "reason", reason)
}

// pruneLocked drops the oldest finished records beyond the retention cap.
// Queued and running records are never dropped. Callers hold w.mu.
func (w *Worker) pruneLocked() {
	excess := len(w.jobs) - w.retain
	kept := make([]string, 0, len(w.order))
	for _, id := range w.order {
		record, ok := w.jobs[id]
		if !ok {
			continue
		}
		finished := record.Status == ExportStatusSucceeded || record.Status == ExportStatusFailed
		if excess > 0 && finished {
			delete(w.jobs, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	w.order = kept
}

// record writes the audit entry before the status becomes visible to
// readers of GetExport.
func (w *Worker) record(id string, status ExportStatus, metadata map[string]any, at time.Time) {
	w.mu.RLock()
	var actor, reason string
	if record, ok := w.jobs[id]; ok {
		actor, reason = record.RequestedBy, record.Reason
	}
	w.mu.RUnlock()
	// Entries outlive worker cancellation.
	w.audit.Record(context.WithoutCancel(w.ctx), audit.Entry{
		ID:         uuid.NewString(),
		Action:     auditAction,
		Actor:      actor,
		Status:     string(status),
		Subject:    id,
		Reason:     reason,
		Metadata:   metadata,
		OccurredAt: at,
	})
}

// UnsupportedFormatError reports an export format the worker cannot produce.
type UnsupportedFormatError struct {
	Format string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported export format %q", e.Format)
}

func (r ExportRecord) copy() ExportRecord {
	dup := r
	dup.Formats = append([]drillapi.Format(nil), r.Formats...)
	if len(r.Artifacts) > 0 {
		dup.Artifacts = make([]ExportArtifact, len(r.Artifacts))
		for i, a := range r.Artifacts {
			a.Metadata = blob.CloneMetadata(a.Metadata)
			dup.Artifacts[i] = a
		}
	}
	if r.CompletedAt != nil {
		completed := *r.CompletedAt
		dup.CompletedAt = &completed
	}
	return dup
}

func formatNames(formats []drillapi.Format) []string {
	out := make([]string, len(formats))
	for i, f := range formats {
		out[i] = string(f)
	}
	return out
}

func artifactPath(exportID, artifactID string) string {
	return exportsPath + "/" + exportID + "/artifacts/" + artifactID
}
