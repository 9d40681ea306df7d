package narrative

import (
	"errors"
	"strings"
	"testing"

	"wellbore/pkg/drillapi"
)

func TestValidateControls(t *testing.T) {
	good := []drillapi.Controls{
		drillapi.DefaultControls(),
		{Temperature: 80, Concentration: 2, Formation: drillapi.FormationLimestone},
		{Temperature: 190, Concentration: 1, Formation: drillapi.FormationSandstone},
	}
	for _, c := range good {
		if err := ValidateControls(c); err != nil {
			t.Fatalf("controls %+v: %v", c, err)
		}
	}
	bad := map[string]drillapi.Controls{
		"temperature":   {Temperature: 79, Concentration: 0.5, Formation: drillapi.FormationShale},
		"concentration": {Temperature: 120, Concentration: 1.5, Formation: drillapi.FormationShale},
		"formation":     {Temperature: 120, Concentration: 0.5, Formation: "Granite"},
	}
	for field, c := range bad {
		err := ValidateControls(c)
		var ce *ControlError
		if !errors.As(err, &ce) {
			t.Fatalf("%s: expected ControlError, got %v", field, err)
		}
		if ce.Field != field {
			t.Fatalf("expected field %s, got %s", field, ce.Field)
		}
	}
}

func TestParseControls(t *testing.T) {
	c, err := ParseControls("", "", "")
	if err != nil || c != drillapi.DefaultControls() {
		t.Fatalf("expected defaults, got %+v %v", c, err)
	}
	c, err = ParseControls("150", "2%", "sandstone")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := drillapi.Controls{Temperature: 150, Concentration: 2, Formation: drillapi.FormationSandstone}
	if c != want {
		t.Fatalf("got %+v want %+v", c, want)
	}
	for _, in := range [][3]string{{"hot", "", ""}, {"", "lots", ""}, {"200", "", ""}} {
		if _, err := ParseControls(in[0], in[1], in[2]); err == nil {
			t.Fatalf("expected error for %v", in)
		}
	}
}

func TestMarkdownInterpolatesControls(t *testing.T) {
	md, err := Markdown(drillapi.Controls{Temperature: 150, Concentration: 2, Formation: drillapi.FormationLimestone})
	if err != nil {
		t.Fatalf("markdown: %v", err)
	}
	for _, want := range []string{"**150°F**", "**2.0% polymer concentration**", "**Limestone** formations", "safe mud weight windows"} {
		if !strings.Contains(md, want) {
			t.Fatalf("markdown missing %q:\n%s", want, md)
		}
	}
	if got := strings.Count(md, "\n- "); got != 3 {
		t.Fatalf("expected four bullets, got %d continuation bullets", got)
	}
}

func TestMarkdownRejectsInvalidControls(t *testing.T) {
	if _, err := Markdown(drillapi.Controls{Temperature: 20, Concentration: 0.5, Formation: drillapi.FormationShale}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestHTMLAndTerminal(t *testing.T) {
	md, err := Markdown(drillapi.DefaultControls())
	if err != nil {
		t.Fatalf("markdown: %v", err)
	}
	html, err := HTML(md)
	if err != nil {
		t.Fatalf("html: %v", err)
	}
	if !strings.Contains(html, "<li>") || !strings.Contains(html, "<strong>120°F</strong>") {
		t.Fatalf("unexpected html:\n%s", html)
	}
	out, err := Terminal(md, 60, "notty")
	if err != nil {
		t.Fatalf("terminal: %v", err)
	}
	if !strings.Contains(out, "Shale") {
		t.Fatalf("terminal output missing formation:\n%s", out)
	}
}
