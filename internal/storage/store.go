package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/san-kum/h2transport/internal/config"
	"github.com/san-kum/h2transport/internal/exports"
	"github.com/san-kum/h2transport/internal/sim"
)

const (
	metadataFile = "metadata.json"
	configFile   = "config.yaml"
	profilesFile = "profiles.csv"
)

// Store keeps finished runs, one directory each.
type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Timestamp  time.Time `json:"timestamp"`
	Transient  bool      `json:"transient"`
	FinalTime  float64   `json:"final_time"`
	Steps      int       `json:"steps"`
	Rejections int       `json:"rejections"`
	Elapsed    float64   `json:"elapsed_s"`
	Errors     []float64 `json:"errors,omitempty"`
	Tables     []string  `json:"tables"`
	Fields     []string  `json:"fields"`
}

// Save writes the configuration, the derived quantity tables and the final
// profiles of a run and returns its id.
func (s *Store) Save(name string, cfg *config.Config, result *sim.Result) (string, error) {
	now := time.Now()
	runID := fmt.Sprintf("%s_%d", name, now.UnixNano())
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:         runID,
		Name:       name,
		Timestamp:  now,
		Transient:  cfg.Settings.Transient,
		FinalTime:  result.FinalTime,
		Steps:      result.Steps,
		Rejections: result.Rejections,
		Elapsed:    result.Elapsed.Seconds(),
		Errors:     result.Errors,
	}
	for sink := range result.DerivedQuantities {
		meta.Tables = append(meta.Tables, sink)
	}
	for field := range result.Fields {
		meta.Fields = append(meta.Fields, field)
	}
	sort.Strings(meta.Tables)
	sort.Strings(meta.Fields)

	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}
	if err := cfg.Save(filepath.Join(runDir, configFile)); err != nil {
		return "", err
	}
	for _, sink := range meta.Tables {
		if err := ExportCSV(filepath.Join(runDir, sink+".csv"), result.DerivedQuantities[sink]); err != nil {
			return "", err
		}
	}
	if err := writeProfiles(filepath.Join(runDir, profilesFile), meta.Fields, result.Fields); err != nil {
		return "", err
	}
	return runID, nil
}

func writeJSON(path string, v any) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeProfiles stores every profile as rows "field, volume, x, value".
func writeProfiles(path string, fields []string, profiles map[string]exports.Profile) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write([]string{"field", "volume", "x", "value"}); err != nil {
		return err
	}
	for _, field := range fields {
		for _, seg := range profiles[field].Segments {
			for k := 0; k < 2; k++ {
				row := []string{field, strconv.Itoa(seg.Volume), formatFloat(seg.X[k]), formatFloat(seg.V[k])}
				if err := w.Write(row); err != nil {
					return err
				}
			}
		}
	}
	w.Flush()
	return w.Error()
}

// List returns the stored runs, oldest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// LoadConfig reads back the configuration a run was made with.
func (s *Store) LoadConfig(runID string) (*config.Config, error) {
	cfg, _, err := config.Load(filepath.Join(s.baseDir, runID, configFile))
	return cfg, err
}

// LoadTable reads a derived quantity table of a run.
func (s *Store) LoadTable(runID, sink string) (*exports.Table, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, sink+".csv"))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("storage: %s/%s.csv is empty", runID, sink)
	}

	table := &exports.Table{Header: records[0]}
	for i, record := range records[1:] {
		row := make([]float64, len(record))
		for j, field := range record {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("storage: %s.csv line %d: %w", sink, i+2, err)
			}
			row[j] = v
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// LoadResult rebuilds the result of a stored run from its metadata, tables
// and profiles. Accepted times are not stored and stay empty.
func (s *Store) LoadResult(runID string) (*sim.Result, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, err
	}
	res := &sim.Result{
		Steps:             meta.Steps,
		Rejections:        meta.Rejections,
		FinalTime:         meta.FinalTime,
		Elapsed:           time.Duration(meta.Elapsed * float64(time.Second)),
		Errors:            meta.Errors,
		DerivedQuantities: make(map[string]*exports.Table, len(meta.Tables)),
	}
	for _, sink := range meta.Tables {
		if res.DerivedQuantities[sink], err = s.LoadTable(runID, sink); err != nil {
			return nil, err
		}
	}
	if res.Fields, err = s.loadProfiles(runID); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Store) loadProfiles(runID string) (map[string]exports.Profile, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, profilesFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]exports.Profile)
	for i := 1; i+1 < len(records); i += 2 {
		a, b := records[i], records[i+1]
		var seg exports.Segment
		var nums [5]float64
		for k, field := range []string{a[1], a[2], a[3], b[2], b[3]} {
			if nums[k], err = strconv.ParseFloat(field, 64); err != nil {
				return nil, fmt.Errorf("storage: %s line %d: %w", profilesFile, i+1, err)
			}
		}
		seg.Volume = int(nums[0])
		seg.X = [2]float64{nums[1], nums[3]}
		seg.V = [2]float64{nums[2], nums[4]}

		prof := profiles[a[0]]
		prof.Field = a[0]
		prof.Segments = append(prof.Segments, seg)
		profiles[a[0]] = prof
	}
	return profiles, nil
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
