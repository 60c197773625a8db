package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/webaudit/internal/model"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Writer defines the interface for report output.
type Writer interface {
	// Write outputs the report to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(report *model.Report) (int, error)
}

// MultiWriter writes to multiple Writers simultaneously.
// This is useful for outputting to both terminal and file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers.
// Returns the total bytes written across all writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(report *model.Report) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Format names accepted by New.
const (
	FormatText     = "text"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// New returns a writer for the named format. "md" is accepted as an alias
// of markdown.
func New(format string, output io.Writer, version string) (Writer, error) {
	switch strings.ToLower(format) {
	case FormatText, "":
		return NewSimpleWriter(output), nil
	case FormatJSON:
		return NewFullJSONWriter(output, version, WithPrettyPrint()), nil
	case FormatMarkdown, "md":
		return NewMarkdownWriter(output), nil
	default:
		return nil, fmt.Errorf("unknown report format %q (want text, json or markdown)", format)
	}
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// severityOrder lists severities from most to least severe.
var severityOrder = []model.Severity{
	model.SeverityCritical,
	model.SeverityHigh,
	model.SeverityMedium,
	model.SeverityLow,
	model.SeverityInfo,
}

var titleCaser = cases.Title(language.English)

// label turns an upper-case or snake_case name into a title ("HIGH" to
// "High", "insecure_cookies" to "Insecure Cookies").
func label(s string) string {
	return titleCaser.String(strings.ReplaceAll(strings.ToLower(s), "_", " "))
}

// groupBySeverity returns the sorted findings grouped by severity.
func groupBySeverity(report *model.Report) map[model.Severity][]model.Vulnerability {
	groups := make(map[model.Severity][]model.Vulnerability)
	for _, v := range report.SortedVulnerabilities() {
		groups[v.Severity] = append(groups[v.Severity], v)
	}
	return groups
}

// statusText describes how the scan ended.
func statusText(report *model.Report) string {
	if report.Interrupted {
		return "Interrupted (partial results)"
	}
	return "Complete"
}
