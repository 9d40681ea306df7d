package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"wellbore/internal/narrative"
)

const sampleCSV = "temperature,viscosity_at_0.5pct,viscosity_at_1pct,viscosity_at_2pct,fracture_gradient\n" +
	"80,40,55,75,14\n" +
	"120,45,60,80,16\n" +
	"150,50,65,85,15\n" +
	"190,55,70,90,15\n"

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestReportJSONUsesSimulatedData(t *testing.T) {
	out, _, err := execute(t, "report", "--format", "json")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	var res struct {
		Source   string `json:"source"`
		Averages []struct {
			Concentration string  `json:"concentration"`
			Value         float64 `json:"value"`
		} `json:"averages"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if res.Source != "simulated" || len(res.Averages) != 3 {
		t.Fatalf("unexpected result %+v", res)
	}
	if math.Abs(res.Averages[1].Value-14.41001124) > 1e-6 {
		t.Fatalf("unexpected simulated mean %v", res.Averages[1].Value)
	}
}

func baseMean(t *testing.T, report string) float64 {
	t.Helper()
	var res struct {
		Averages []struct {
			Value float64 `json:"value"`
		} `json:"averages"`
	}
	if err := json.Unmarshal([]byte(report), &res); err != nil || len(res.Averages) != 3 {
		t.Fatalf("decode report: %v", err)
	}
	return res.Averages[1].Value
}

func TestReportTextWithUploadAndTrace(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "data.csv")
	if err := os.WriteFile(input, []byte(sampleCSV), 0o600); err != nil {
		t.Fatalf("write input: %v", err)
	}
	trace := filepath.Join(dir, "trace.jsonl")

	out, _, err := execute(t, "report", "--file", input, "--temperature", "150", "--formation", "sandstone",
		"--style", "notty", "--trace", trace)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	for _, want := range []string{"Dataset (uploaded, 4 rows)", "fracture_gradient", "14.25", "15.75", "Sandstone"} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}

	data, err := os.ReadFile(trace)
	if err != nil {
		t.Fatalf("read trace: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 6 {
		t.Fatalf("expected 6 spans, got %d:\n%s", len(lines), data)
	}
	if !strings.Contains(lines[len(lines)-1], `"run"`) {
		t.Fatalf("expected the run span last, got %s", lines[len(lines)-1])
	}
}

func TestReportErrors(t *testing.T) {
	_, _, err := execute(t, "report", "--temperature", "500")
	var ce *narrative.ControlError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ControlError, got %v", err)
	}
	if _, _, err := execute(t, "report", "--format", "xml"); err == nil {
		t.Fatalf("expected format error")
	}
	if _, _, err := execute(t, "report", "--file", filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Fatalf("expected missing file error")
	}
}

func TestRenderWritesChart(t *testing.T) {
	out := filepath.Join(t.TempDir(), "bar.svg")
	if _, _, err := execute(t, "render", "--chart", "bar", "--format", "svg", "--out", out); err != nil {
		t.Fatalf("render: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read chart: %v", err)
	}
	if !strings.Contains(string(data), "<svg") {
		t.Fatalf("output is not svg")
	}

	if _, _, err := execute(t, "render", "--chart", "pie"); err == nil {
		t.Fatalf("expected unknown chart error")
	}
	if _, _, err := execute(t, "render", "--format", "csv"); err == nil {
		t.Fatalf("expected unsupported format error")
	}
}

func TestGlobalFlagsAndConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "wellbore.toml")
	if err := os.WriteFile(cfgPath, []byte("[dataset]\nseed = 7\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	seeded, _, err := execute(t, "--config", cfgPath, "report", "--format", "json")
	if err != nil {
		t.Fatalf("report with config: %v", err)
	}
	defaults, _, err := execute(t, "report", "--format", "json")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if baseMean(t, seeded) == baseMean(t, defaults) {
		t.Fatalf("seed from config file had no effect")
	}

	if _, _, err := execute(t, "--config", filepath.Join(dir, "wellbore.ini"), "report"); err == nil {
		t.Fatalf("expected unsupported config format error")
	}
	if _, _, err := execute(t, "--log-level", "loud", "report"); err == nil {
		t.Fatalf("expected log level error")
	}
}

func TestServeUntilCancelled(t *testing.T) {
	t.Setenv("WELLBORE_BLOB_DRIVER", "memory")
	t.Setenv("WELLBORE_ADDR", "127.0.0.1:0")
	a := &app{stdout: io.Discard, stderr: io.Discard}
	if err := a.load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	addrCh := make(chan net.Addr, 1)
	done := make(chan error, 1)
	go func() { done <- a.serve(ctx, func(addr net.Addr) { addrCh <- addr }) }()

	var base string
	select {
	case addr := <-addrCh:
		base = "http://" + addr.String()
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	}

	for path, want := range map[string]int{
		"/healthz":                           http.StatusOK,
		"/api/v1/dashboard":                  http.StatusOK,
		"/api/v1/dashboard/charts/line.png":  http.StatusOK,
		"/api/v1/dashboard?temperature=1000": http.StatusBadRequest,
		"/metrics":                           http.StatusOK,
	} {
		resp, err := http.Get(base + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode != want {
			t.Fatalf("%s: expected %d, got %d", path, want, resp.StatusCode)
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatalf("serve did not stop")
	}
}
