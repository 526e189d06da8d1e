package storage

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"

	"github.com/san-kum/h2transport/internal/exports"
	"github.com/san-kum/h2transport/internal/sim"
)

type ExportData struct {
	Name              string                     `json:"name"`
	Steps             int                        `json:"steps"`
	Rejections        int                        `json:"rejections"`
	FinalTime         float64                    `json:"final_time"`
	Times             []float64                  `json:"times"`
	Errors            []float64                  `json:"errors,omitempty"`
	DerivedQuantities map[string]*exports.Table  `json:"derived_quantities"`
	Profiles          map[string]ExportedProfile `json:"profiles"`
}

type ExportedProfile struct {
	X []float64 `json:"x"`
	V []float64 `json:"v"`
}

func exportData(name string, result *sim.Result) ExportData {
	data := ExportData{
		Name:              name,
		Steps:             result.Steps,
		Rejections:        result.Rejections,
		FinalTime:         result.FinalTime,
		Times:             result.Times,
		Errors:            result.Errors,
		DerivedQuantities: result.DerivedQuantities,
		Profiles:          make(map[string]ExportedProfile, len(result.Fields)),
	}
	for field, prof := range result.Fields {
		xs, vs := prof.Points()
		data.Profiles[field] = ExportedProfile{X: xs, V: vs}
	}
	return data
}

// ExportJSON writes a run result as indented JSON; a path of "-" writes to
// stdout.
func ExportJSON(path, name string, result *sim.Result) error {
	if path == "-" {
		return encodeJSON(os.Stdout, exportData(name, result))
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return encodeJSON(file, exportData(name, result))
}

func encodeJSON(w io.Writer, data ExportData) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// ExportCSV writes a derived quantity table with its header row.
func ExportCSV(path string, table *exports.Table) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(table.Header); err != nil {
		return err
	}
	for _, row := range table.Rows {
		record := make([]string, len(row))
		for i, v := range row {
			record[i] = formatFloat(v)
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
