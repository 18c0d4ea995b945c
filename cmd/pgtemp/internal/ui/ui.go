// Package ui provides console output for pgtemp
package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"
)

// Format selects how structured values are printed
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates an --output value
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (want text, json or yaml)", s)
	}
}

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
)

// UI writes human output to out and diagnostics to err
type UI struct {
	out    io.Writer
	err    io.Writer
	format Format
}

// New creates a UI
func New(out, err io.Writer, format Format) *UI {
	return &UI{out: out, err: err, format: format}
}

// Format returns the configured output format
func (ui *UI) Format() Format {
	return ui.format
}

// Success prints a success message
func (ui *UI) Success(msg string) {
	fmt.Fprintln(ui.err, successStyle.Render("✓ "+msg))
}

// Error prints an error message
func (ui *UI) Error(msg string) {
	fmt.Fprintln(ui.err, errorStyle.Render("✗ "+msg))
}

// Warning prints a warning message
func (ui *UI) Warning(msg string) {
	fmt.Fprintln(ui.err, warningStyle.Render("⚠ "+msg))
}

// Subtle prints a muted message
func (ui *UI) Subtle(msg string) {
	fmt.Fprintln(ui.err, subtleStyle.Render(msg))
}

// Header prints a section header
func (ui *UI) Header(title string) {
	fmt.Fprintln(ui.out, headerStyle.Render(title))
}

// KeyValue prints a key-value pair
func (ui *UI) KeyValue(key, value string) {
	fmt.Fprintf(ui.out, "  %s: %s\n", subtleStyle.Render(key), value)
}

// Field is one row of a Record
type Field struct {
	Key   string
	Label string
	Value any
}

// Record prints fields as a titled key-value list in text mode, or as an
// object keyed by Field.Key in json and yaml mode.
func (ui *UI) Record(title string, fields []Field) error {
	switch ui.format {
	case FormatJSON:
		enc := json.NewEncoder(ui.out)
		enc.SetIndent("", "  ")
		return enc.Encode(fieldMap(fields))
	case FormatYAML:
		enc := yaml.NewEncoder(ui.out)
		enc.SetIndent(2)
		if err := enc.Encode(fieldMap(fields)); err != nil {
			return err
		}
		return enc.Close()
	default:
		ui.Header(title)
		for _, f := range fields {
			ui.KeyValue(padRight(f.Label, labelWidth(fields)), fmt.Sprint(f.Value))
		}
		return nil
	}
}

func fieldMap(fields []Field) map[string]any {
	m := make(map[string]any, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}
	return m
}

func labelWidth(fields []Field) int {
	w := 0
	for _, f := range fields {
		if len(f.Label) > w {
			w = len(f.Label)
		}
	}
	return w
}

// padRight pads a string to the right with spaces
func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
