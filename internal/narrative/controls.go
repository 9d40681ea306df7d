// Package narrative validates the dashboard controls and renders the
// interpretation text that accompanies the charts.
package narrative

import (
	"fmt"
	"strconv"
	"strings"

	"wellbore/pkg/drillapi"
)

// ControlError reports a control value outside its allowed set.
type ControlError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ControlError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// ValidateControls checks each control against the values the dashboard offers.
func ValidateControls(c drillapi.Controls) error {
	if c.Temperature < drillapi.MinTemperature || c.Temperature > drillapi.MaxTemperature {
		return &ControlError{
			Field:  "temperature",
			Value:  strconv.Itoa(c.Temperature),
			Reason: fmt.Sprintf("must be between %d and %d", drillapi.MinTemperature, drillapi.MaxTemperature),
		}
	}
	if _, ok := concentrationLabel(c.Concentration); !ok {
		return &ControlError{
			Field:  "concentration",
			Value:  strconv.FormatFloat(c.Concentration, 'g', -1, 64),
			Reason: "must be one of 0.5, 1.0, 2.0",
		}
	}
	if !knownFormation(c.Formation) {
		return &ControlError{
			Field:  "formation",
			Value:  string(c.Formation),
			Reason: "must be one of Shale, Sandstone, Limestone",
		}
	}
	return nil
}

// ParseControls reads controls from their textual form, filling blanks with
// the defaults. The result is validated.
func ParseControls(temperature, concentration, formation string) (drillapi.Controls, error) {
	c := drillapi.DefaultControls()
	if v := strings.TrimSpace(temperature); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return c, &ControlError{Field: "temperature", Value: temperature, Reason: "must be an integer"}
		}
		c.Temperature = n
	}
	if v := strings.TrimSpace(concentration); v != "" {
		f, err := strconv.ParseFloat(strings.TrimSuffix(v, "%"), 64)
		if err != nil {
			return c, &ControlError{Field: "concentration", Value: concentration, Reason: "must be a number"}
		}
		c.Concentration = f
	}
	if v := strings.TrimSpace(formation); v != "" {
		c.Formation = canonicalFormation(v)
	}
	if err := ValidateControls(c); err != nil {
		return c, err
	}
	return c, nil
}

func concentrationLabel(percent float64) (string, bool) {
	for _, c := range drillapi.Concentrations() {
		if c.Percent == percent {
			return c.Label, true
		}
	}
	return "", false
}

func knownFormation(f drillapi.Formation) bool {
	for _, known := range drillapi.Formations() {
		if f == known {
			return true
		}
	}
	return false
}

func canonicalFormation(s string) drillapi.Formation {
	for _, known := range drillapi.Formations() {
		if strings.EqualFold(s, string(known)) {
			return known
		}
	}
	return drillapi.Formation(s)
}
