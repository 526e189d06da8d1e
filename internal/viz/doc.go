// Package viz renders run results for the terminal.
//
// Summaries are styled with lipgloss using one of the built-in themes;
// derived quantity tables and field profiles are drawn with asciigraph.
package viz
