package sim

import (
	"time"

	"github.com/san-kum/h2transport/internal/exports"
)

// ErrorSink is the name of the sink holding the error norms of a run.
const ErrorSink = "error"

// Result is what a finished run hands back to its caller.
type Result struct {
	Times      []float64
	Steps      int
	Rejections int
	FinalTime  float64
	Elapsed    time.Duration

	// DerivedQuantities holds the table of every derived quantity sink, by
	// sink name.
	DerivedQuantities map[string]*exports.Table
	// Errors are the last error norms, in the order they were declared.
	Errors []float64
	// Fields are the final profiles of every field of the model.
	Fields map[string]exports.Profile
}
