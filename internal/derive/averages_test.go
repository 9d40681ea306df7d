package derive

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"gonum.org/v1/gonum/stat"

	"wellbore/internal/dataset"
	"wellbore/pkg/drillapi"
)

func tableFromCSV(t *testing.T, input string) dataset.Table {
	t.Helper()
	table, err := dataset.ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return table
}

func TestComputeAveragesScenarioMeanFifteen(t *testing.T) {
	table := tableFromCSV(t, "fracture_gradient\n14\n16\n15\n15\n")
	avg, err := ComputeAverages(table)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	want := map[string]float64{"0.5%": 14.25, "1%": 15.0, "2%": 15.75}
	for label, w := range want {
		got, ok := avg.Get(label)
		if !ok {
			t.Fatalf("missing %s", label)
		}
		if math.Abs(got-w) > 1e-12 {
			t.Fatalf("%s: got %v want %v", label, got, w)
		}
	}
	if len(avg.Map()) != 3 {
		t.Fatalf("expected three entries")
	}
}

func TestComputeAveragesOrderAndMonotonic(t *testing.T) {
	table := dataset.Synthesize(dataset.NewGenerator(dataset.DefaultSeed))
	avg, err := ComputeAverages(table)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	labels := []string{"0.5%", "1%", "2%"}
	for i, a := range avg {
		if a.Concentration != labels[i] {
			t.Fatalf("position %d: got %s want %s", i, a.Concentration, labels[i])
		}
	}
	if !(avg[0].Value < avg[1].Value && avg[1].Value < avg[2].Value) {
		t.Fatalf("averages not increasing: %+v", avg)
	}
	fg, _ := table.Float64s(drillapi.ColumnFractureGradient)
	if avg.Base() != stat.Mean(fg, nil) {
		t.Fatalf("1%% entry %v differs from mean %v", avg.Base(), stat.Mean(fg, nil))
	}
	if math.Abs(avg.Base()-14.41001124) > 1e-6 {
		t.Fatalf("unexpected simulated mean %v", avg.Base())
	}
}

func TestComputeAveragesSkipsMissingCells(t *testing.T) {
	table := tableFromCSV(t, "temperature,fracture_gradient\n80,14\n120,\n150,16\n")
	avg, err := ComputeAverages(table)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if avg.Base() != 15 {
		t.Fatalf("expected mean of present cells, got %v", avg.Base())
	}
}

func TestComputeAveragesMissingColumn(t *testing.T) {
	table := tableFromCSV(t, "temperature,viscosity_at_1pct\n80,55\n")
	_, err := ComputeAverages(table)
	var me *dataset.MissingColumnError
	if !errors.As(err, &me) {
		t.Fatalf("expected MissingColumnError, got %v", err)
	}
}

func TestComputeAveragesTextColumn(t *testing.T) {
	table := tableFromCSV(t, "fracture_gradient\nhigh\n")
	_, err := ComputeAverages(table)
	var te *dataset.ColumnTypeError
	if !errors.As(err, &te) {
		t.Fatalf("expected ColumnTypeError, got %v", err)
	}
}

func TestComputeAveragesNoValues(t *testing.T) {
	table := tableFromCSV(t, "fracture_gradient\n")
	if _, err := ComputeAverages(table); !errors.Is(err, ErrNoValues) {
		t.Fatalf("expected ErrNoValues, got %v", err)
	}
}

func TestComputeAveragesKeepsInfiniteCells(t *testing.T) {
	table := tableFromCSV(t, "fracture_gradient\n14\ninf\nNaN\n")
	avg, err := ComputeAverages(table)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	for _, a := range avg {
		if !math.IsInf(a.Value, 1) {
			t.Fatalf("%s: expected +Inf, got %v", a.Concentration, a.Value)
		}
	}
	payload, err := json.Marshal(avg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `[{"concentration":"0.5%","factor":0.95,"value":null},{"concentration":"1%","factor":1,"value":null},{"concentration":"2%","factor":1.05,"value":null}]`
	if string(payload) != want {
		t.Fatalf("unexpected json %s", payload)
	}
}

func TestAverageJSONKeepsFiniteValues(t *testing.T) {
	payload, err := json.Marshal(Average{Concentration: "1%", Factor: 1, Value: 15})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(payload) != `{"concentration":"1%","factor":1,"value":15}` {
		t.Fatalf("unexpected json %s", payload)
	}
}
