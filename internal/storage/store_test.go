package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/san-kum/h2transport/internal/config"
	"github.com/san-kum/h2transport/internal/exports"
	"github.com/san-kum/h2transport/internal/sim"
)

func testResult() *sim.Result {
	return &sim.Result{
		Times:      []float64{0.5, 1},
		Steps:      2,
		Rejections: 1,
		FinalTime:  1,
		Elapsed:    1500 * time.Millisecond,
		DerivedQuantities: map[string]*exports.Table{
			"derived_quantities": {
				Header: []string{"t(s)", "Total solute volume 1"},
				Rows:   [][]float64{{0.5, 0.25}, {1, 0.125}},
			},
		},
		Errors: []float64{1e-12},
		Fields: map[string]exports.Profile{
			"solute": {Field: "solute", Segments: []exports.Segment{
				{Volume: 1, X: [2]float64{0, 0.5}, V: [2]float64{1, 0.5}},
				{Volume: 1, X: [2]float64{0.5, 1}, V: [2]float64{0.5, 0}},
			}},
		},
	}
}

func TestStoreSaveLoad(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)

	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	cfg := config.DefaultConfig()
	runID, err := st.Save("slab", cfg, testResult())
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if runID == "" {
		t.Error("expected non-empty run id")
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.Name != "slab" {
		t.Errorf("expected name 'slab', got '%s'", meta.Name)
	}
	if meta.Steps != 2 || meta.Rejections != 1 {
		t.Errorf("unexpected counters %d/%d", meta.Steps, meta.Rejections)
	}
	if meta.Elapsed != 1.5 {
		t.Errorf("expected 1.5 s elapsed, got %g", meta.Elapsed)
	}
	if len(meta.Tables) != 1 || meta.Tables[0] != "derived_quantities" {
		t.Errorf("unexpected tables %v", meta.Tables)
	}

	table, err := st.LoadTable(runID, "derived_quantities")
	if err != nil {
		t.Fatalf("load table failed: %v", err)
	}
	col, ok := table.Column("Total solute volume 1")
	if !ok || len(col) != 2 || col[1] != 0.125 {
		t.Errorf("unexpected column %v", col)
	}

	res, err := st.LoadResult(runID)
	if err != nil {
		t.Fatalf("load result failed: %v", err)
	}
	if res.FinalTime != 1 || len(res.Errors) != 1 {
		t.Errorf("unexpected result %+v", res)
	}
	prof := res.Fields["solute"]
	if len(prof.Segments) != 2 || prof.Segments[1] != testResult().Fields["solute"].Segments[1] {
		t.Errorf("profile did not round trip: %+v", prof.Segments)
	}

	back, err := st.LoadConfig(runID)
	if err != nil {
		t.Fatalf("load config failed: %v", err)
	}
	if len(back.Materials) != 1 || *back.Materials[0].D0 != *cfg.Materials[0].D0 {
		t.Errorf("config did not round trip: %+v", back.Materials)
	}
}

func TestStoreList(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)

	runs, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected 0 runs, got %d", len(runs))
	}

	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	for _, name := range []string{"first", "second"} {
		if _, err := st.Save(name, config.DefaultConfig(), testResult()); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	runs, err = st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].Name != "first" {
		t.Errorf("runs are not in save order: %s first", runs[0].Name)
	}
}

func TestStoreFileStructure(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)

	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	runID, err := st.Save("slab", config.DefaultConfig(), testResult())
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	runDir := filepath.Join(tmpDir, runID)
	for _, name := range []string{"metadata.json", "config.yaml", "profiles.csv", "derived_quantities.csv"} {
		if _, err := os.Stat(filepath.Join(runDir, name)); os.IsNotExist(err) {
			t.Errorf("%s not created", name)
		}
	}

	if _, err := st.LoadTable(runID, "missing"); err == nil {
		t.Error("expected an error for a missing table")
	}
}

func TestExportJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	if err := ExportJSON(path, "slab", testResult()); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var data ExportData
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if data.Steps != 2 || data.FinalTime != 1 {
		t.Errorf("unexpected export %+v", data)
	}
	prof, ok := data.Profiles["solute"]
	if !ok {
		t.Fatal("solute profile missing")
	}
	// the shared node at x=0.5 appears once
	if len(prof.X) != 3 || prof.V[1] != 0.5 {
		t.Errorf("unexpected profile %+v", prof)
	}
}
