// Package dashboard serves the drilling dashboard over HTTP: the HTML page,
// its JSON and chart endpoints, and asynchronous exports.
package dashboard

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"wellbore/docs/schema/openapi"
	"wellbore/internal/blob"
	"wellbore/internal/chart"
	"wellbore/internal/core"
	"wellbore/internal/dataset"
	"wellbore/internal/derive"
	"wellbore/internal/narrative"
	"wellbore/pkg/drillapi"
)

const (
	dashboardPath = "/api/v1/dashboard"
	chartsPath    = dashboardPath + "/charts/"
	datasetPath   = dashboardPath + "/dataset.csv"
	exportsPath   = "/api/v1/exports"
	openapiPath   = "/api/v1/openapi.yaml"

	// DefaultMaxUploadBytes bounds request bodies when Handler.MaxUploadBytes is unset.
	DefaultMaxUploadBytes int64 = 10 << 20
)

// Handler provides HTTP access to the dashboard and its exports.
type Handler struct {
	Pipeline       *core.Pipeline
	Exports        ExportScheduler
	MaxUploadBytes int64
	Logger         *slog.Logger
}

// NewHandler constructs a dashboard HTTP handler without exports.
func NewHandler(p *core.Pipeline) *Handler {
	return &Handler{Pipeline: p}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Pipeline == nil {
		writeError(w, http.StatusInternalServerError, "dashboard pipeline not configured")
		return
	}

	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == "":
		if !allowRead(w, r) {
			return
		}
		h.handlePage(w, r)
	case path == dashboardPath:
		if !allowRead(w, r) {
			return
		}
		h.handleDashboard(w, r)
	case path == datasetPath:
		if !allowRead(w, r) {
			return
		}
		h.handleDataset(w, r)
	case strings.HasPrefix(path, chartsPath):
		if !allowRead(w, r) {
			return
		}
		h.handleChart(w, r, strings.TrimPrefix(path, chartsPath))
	case path == openapiPath:
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(openapi.Spec())
	case path == exportsPath || strings.HasPrefix(path, exportsPath+"/"):
		if h.Exports == nil {
			http.NotFound(w, r)
			return
		}
		h.handleExports(w, r, path)
	default:
		http.NotFound(w, r)
	}
}

func allowRead(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodPost {
		return true
	}
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *Handler) maxUploadBytes() int64 {
	if h.MaxUploadBytes > 0 {
		return h.MaxUploadBytes
	}
	return DefaultMaxUploadBytes
}

// requestError carries a status for failures detected before the pipeline runs.
type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string { return e.msg }

// readRequest collects controls and the optional upload. GET reads controls
// from the query; POST accepts a multipart form with an optional "file"
// part, a urlencoded form, or a raw text/csv body with controls in the query.
func (h *Handler) readRequest(w http.ResponseWriter, r *http.Request) (core.Request, error) {
	var req core.Request
	if r.Method == http.MethodPost {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes())
		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		switch mediaType {
		case "multipart/form-data":
			if err := r.ParseMultipartForm(h.maxUploadBytes()); err != nil {
				return req, bodyError(err)
			}
			upload, err := formUpload(r)
			if err != nil {
				return req, err
			}
			req.Upload = upload
		case "text/csv":
			data, err := io.ReadAll(r.Body)
			if err != nil {
				return req, bodyError(err)
			}
			req.Upload = &dataset.Upload{Name: "body.csv", Data: data}
		default:
			if err := r.ParseForm(); err != nil {
				return req, bodyError(err)
			}
		}
	}
	controls, err := narrative.ParseControls(r.FormValue("temperature"), r.FormValue("concentration"), r.FormValue("formation"))
	if err != nil {
		return req, err
	}
	req.Controls = controls
	return req, nil
}

func formUpload(r *http.Request) (*dataset.Upload, error) {
	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, bodyError(err)
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, bodyError(err)
	}
	return &dataset.Upload{Name: header.Filename, Data: data}, nil
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return &requestError{status: http.StatusRequestEntityTooLarge, msg: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)}
	}
	return &requestError{status: http.StatusBadRequest, msg: "invalid request body: " + err.Error()}
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request) (core.Result, bool) {
	req, err := h.readRequest(w, r)
	if err == nil {
		var res core.Result
		res, err = h.Pipeline.Run(r.Context(), req)
		if err == nil {
			return res, true
		}
	}
	h.writeFailure(w, err)
	return core.Result{}, false
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	res, ok := h.run(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleChart(w http.ResponseWriter, r *http.Request, name string) {
	base, ext, found := strings.Cut(name, ".")
	kind, okKind := chart.ParseKind(base)
	format, okFormat := drillapi.ParseFormat(ext)
	if !found || !okKind || !okFormat || (format != drillapi.FormatPNG && format != drillapi.FormatSVG) {
		writeError(w, http.StatusNotFound, "chart not found")
		return
	}
	res, ok := h.run(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := h.Pipeline.RenderChart(r.Context(), res, kind, format, &buf); err != nil {
		h.writeFailure(w, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (h *Handler) handleDataset(w http.ResponseWriter, r *http.Request) {
	res, ok := h.run(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := dataset.WriteCSV(&buf, res.Table); err != nil {
		h.writeFailure(w, err)
		return
	}
	filename := fmt.Sprintf("wellbore-%s-%s.csv", res.Source, res.GeneratedAt.Format("20060102T150405Z"))
	w.Header().Set("Content-Type", drillapi.FormatCSV.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (h *Handler) handlePage(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	view, err := newPageView(drillapi.DefaultControls())
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	req, err := h.readRequest(w, r)
	if err == nil {
		view.Controls = req.Controls
		var res core.Result
		if res, err = h.Pipeline.Run(r.Context(), req); err == nil {
			err = view.withResult(res)
		}
	}
	if err != nil {
		status = statusFor(err)
		view.Result = nil
		view.Error = h.failureMessage(status, err)
	}
	var buf bytes.Buffer
	if err := renderPage(&buf, view); err != nil {
		h.writeFailure(w, err)
		return
	}
	w.Header().Set("Content-Type", drillapi.FormatHTML.ContentType())
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (h *Handler) handleExports(w http.ResponseWriter, r *http.Request, path string) {
	if path == exportsPath {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleExportCreate(w, r)
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	segments := strings.Split(strings.TrimPrefix(path, exportsPath+"/"), "/")
	switch {
	case len(segments) == 1 && segments[0] != "":
		record, ok := h.Exports.GetExport(segments[0])
		if !ok {
			writeError(w, http.StatusNotFound, "export not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"export": record})
	case len(segments) == 3 && segments[1] == "artifacts" && segments[0] != "" && segments[2] != "":
		h.handleArtifact(w, r, segments[0], segments[2])
	default:
		http.NotFound(w, r)
	}
}

type exportRequest struct {
	Controls    drillapi.Controls `json:"controls"`
	Formats     []string          `json:"formats"`
	CSV         string            `json:"csv"`
	RequestedBy string            `json:"requested_by"`
	Reason      string            `json:"reason"`
}

func (h *Handler) handleExportCreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes())
	req := exportRequest{Controls: drillapi.DefaultControls()}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeFailure(w, bodyError(err))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid export request payload")
		return
	}

	formats := make([]drillapi.Format, 0, len(req.Formats))
	for _, f := range req.Formats {
		format, ok := drillapi.ParseFormat(strings.ToLower(strings.TrimSpace(f)))
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported export format %q", f))
			return
		}
		formats = append(formats, format)
	}

	input := ExportInput{
		Controls:    req.Controls,
		Formats:     formats,
		RequestedBy: req.RequestedBy,
		Reason:      req.Reason,
	}
	if req.CSV != "" {
		input.Upload = &dataset.Upload{Name: "export.csv", Data: []byte(req.CSV)}
	}
	record, err := h.Exports.EnqueueExport(r.Context(), input)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	w.Header().Set("Location", exportsPath+"/"+record.ID)
	writeJSON(w, http.StatusAccepted, map[string]any{"export": record})
}

func (h *Handler) handleArtifact(w http.ResponseWriter, r *http.Request, exportID, artifactID string) {
	artifact, body, err := h.Exports.OpenArtifact(r.Context(), exportID, artifactID)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	defer body.Close()
	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.Name))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger().Warn("artifact copy interrupted", "export_id", exportID, "artifact_id", artifactID, "err", err)
	}
}

// statusFor maps pipeline and request failures onto HTTP statuses.
func statusFor(err error) int {
	var (
		reqErr     *requestError
		parseErr   *dataset.ParseError
		controlErr *narrative.ControlError
		missingErr *dataset.MissingColumnError
		typeErr    *dataset.ColumnTypeError
		formatErr  *UnsupportedFormatError
	)
	switch {
	case errors.As(err, &reqErr):
		return reqErr.status
	case errors.As(err, &parseErr), errors.As(err, &controlErr), errors.As(err, &formatErr):
		return http.StatusBadRequest
	case errors.As(err, &missingErr), errors.As(err, &typeErr), errors.Is(err, derive.ErrNoValues):
		return http.StatusUnprocessableEntity
	case errors.Is(err, blob.ErrNotFound), errors.Is(err, ErrExportNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrQueueFull):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) failureMessage(status int, err error) string {
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		h.logger().Error("dashboard request failed", "err", err)
		return "internal error"
	}
	return err.Error()
}

func (h *Handler) writeFailure(w http.ResponseWriter, err error) {
	status := statusFor(err)
	writeError(w, status, h.failureMessage(status, err))
}

// writeJSON encodes before writing the header so an encoding failure
// becomes a 500 rather than a truncated success.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		slog.Default().Error("encode response failed", "err", err)
		buf.Reset()
		buf.WriteString(`{"error":"internal error"}` + "\n")
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
