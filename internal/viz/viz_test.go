package viz

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/san-kum/h2transport/internal/exports"
	"github.com/san-kum/h2transport/internal/sim"
)

func TestSparkline(t *testing.T) {
	got := Sparkline([]float64{0, 1, 2, 3}, 4)
	if got != "▁▃▅█" {
		t.Errorf("unexpected sparkline %q", got)
	}
	if flat := Sparkline(nil, 5); utf8.RuneCountInString(flat) != 5 {
		t.Errorf("empty sparkline should fill the width, got %q", flat)
	}
	if long := Sparkline(make([]float64, 100), 10); utf8.RuneCountInString(long) != 10 {
		t.Errorf("expected 10 runes, got %q", long)
	}
}

func TestGetTheme(t *testing.T) {
	if GetTheme("sunset").Name != "sunset" {
		t.Error("expected the sunset theme")
	}
	if GetTheme("nope").Name != "ocean" {
		t.Error("unknown themes fall back to ocean")
	}
	if len(ThemeNames()) != len(Themes) {
		t.Error("theme names out of sync")
	}
}

func TestChart(t *testing.T) {
	table := &exports.Table{
		Header: []string{"t(s)", "Total solute volume 1"},
		Rows:   [][]float64{{0.1, 1}, {0.2, 2}, {0.3, 1.5}},
	}
	out, err := Chart(table, "Total solute volume 1", 20, 5)
	if err != nil {
		t.Fatalf("chart failed: %v", err)
	}
	if !strings.Contains(out, "t = 0.1 .. 0.3 s") {
		t.Errorf("caption missing:\n%s", out)
	}
	if _, err := Chart(table, "missing", 20, 5); err == nil {
		t.Error("expected an error for an unknown column")
	}
}

func TestProfileChart(t *testing.T) {
	p := exports.Profile{Field: "solute", Segments: []exports.Segment{
		{Volume: 1, X: [2]float64{0, 0.5}, V: [2]float64{1, 0.5}},
		{Volume: 1, X: [2]float64{0.5, 1}, V: [2]float64{0.5, 0}},
	}}
	out, err := ProfileChart(p, 20, 5)
	if err != nil {
		t.Fatalf("chart failed: %v", err)
	}
	if !strings.Contains(out, "solute, x = 0 .. 1") {
		t.Errorf("caption missing:\n%s", out)
	}
	if _, err := ProfileChart(exports.Profile{Field: "1"}, 20, 5); err == nil {
		t.Error("expected an error for an empty profile")
	}
}

func TestSummary(t *testing.T) {
	res := &sim.Result{
		Times:      []float64{0.1, 0.3, 0.7},
		Steps:      3,
		Rejections: 2,
		FinalTime:  0.7,
		Elapsed:    time.Second,
		Errors:     []float64{1.5e-10},
		DerivedQuantities: map[string]*exports.Table{
			"derived_quantities": {
				Header: []string{"t(s)", "Total solute volume 1"},
				Rows:   [][]float64{{0.7, 0.25}},
			},
		},
	}
	out := NewStyles(ThemeMinimal).Summary("slab", res, 1)
	for _, want := range []string{"slab", "3 (2 rejected)", "1.500e-10", "Total solute volume 1", "0.25"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary lacks %q:\n%s", want, out)
		}
	}

	warn := NewStyles(ThemeMinimal).Warnings([]string{`line 3: unknown key "foo" in settings`})
	if !strings.Contains(warn, "unknown key") {
		t.Errorf("unexpected warnings %q", warn)
	}
}
