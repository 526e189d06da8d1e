package exports

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Writer owns the byte format of exports.
type Writer interface {
	WriteSnapshot(dest, field string, t float64, p Profile) error
	AppendRow(sink string, header []string, t float64, values []float64) error
	Flush() error
}

// Snapshot is a profile stored by Memory.
type Snapshot struct {
	Field   string
	Time    float64
	Profile Profile
}

// Memory keeps every record in memory.
type Memory struct {
	Rows      map[string][][]float64
	Snapshots map[string][]Snapshot
}

func NewMemory() *Memory {
	return &Memory{
		Rows:      make(map[string][][]float64),
		Snapshots: make(map[string][]Snapshot),
	}
}

func (m *Memory) WriteSnapshot(dest, field string, t float64, p Profile) error {
	m.Snapshots[dest] = append(m.Snapshots[dest], Snapshot{Field: field, Time: t, Profile: p})
	return nil
}

func (m *Memory) AppendRow(sink string, _ []string, t float64, values []float64) error {
	m.Rows[sink] = append(m.Rows[sink], append([]float64{t}, values...))
	return nil
}

func (m *Memory) Flush() error { return nil }

// Folder writes one CSV file per sink into a directory.
type Folder struct {
	dir   string
	files map[string]*os.File
	csv   map[string]*csv.Writer
}

func NewFolder(dir string) (*Folder, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Folder{dir: dir, files: make(map[string]*os.File), csv: make(map[string]*csv.Writer)}, nil
}

func (f *Folder) Dir() string { return f.dir }

func (f *Folder) open(name string, header func() []string) (*csv.Writer, error) {
	if w, ok := f.csv[name]; ok {
		return w, nil
	}
	file, err := os.Create(filepath.Join(f.dir, name+".csv"))
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(file)
	if err := w.Write(header()); err != nil {
		file.Close()
		return nil, err
	}
	f.files[name] = file
	f.csv[name] = w
	return w, nil
}

// WriteSnapshot appends the profile as a row "t, v0, v1, ..."; the header
// row holds the coordinates.
func (f *Folder) WriteSnapshot(dest, field string, t float64, p Profile) error {
	xs, vs := p.Points()
	w, err := f.open(dest, func() []string {
		return append([]string{"t(s)\\x(m)"}, formatAll(xs)...)
	})
	if err != nil {
		return err
	}
	return w.Write(append([]string{format(t)}, formatAll(vs)...))
}

func (f *Folder) AppendRow(sink string, header []string, t float64, values []float64) error {
	w, err := f.open(sink, func() []string {
		return append([]string{"t(s)"}, header...)
	})
	if err != nil {
		return err
	}
	if len(values) != len(header) {
		return fmt.Errorf("row of %d values for %d columns", len(values), len(header))
	}
	return w.Write(append([]string{format(t)}, formatAll(values)...))
}

func (f *Folder) Flush() error {
	var errs []error
	for name, w := range f.csv {
		w.Flush()
		errs = append(errs, w.Error(), f.files[name].Close())
		delete(f.csv, name)
		delete(f.files, name)
	}
	return errors.Join(errs...)
}

func format(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func formatAll(vs []float64) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = format(v)
	}
	return out
}
