package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/webaudit/internal/model"
)

// SimpleWriter outputs human-readable text reports for terminal display.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors so that output can be piped to files or other tools.
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether severities with no findings are shown.
	showEmpty bool

	// verbose adds descriptions and remedies to each finding.
	verbose bool

	// onlyFindings drops the header and summary sections.
	onlyFindings bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// WithOnlyFindings prints nothing but the findings.
func WithOnlyFindings(only bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.onlyFindings = only
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(report *model.Report) (int, error) {
	var sb strings.Builder

	if !w.onlyFindings {
		w.writeHeader(&sb, report)
		w.writeSummary(&sb, report)
	}
	w.writeFindings(&sb, report)
	if !w.onlyFindings {
		w.writeFooter(&sb)
	}

	return io.WriteString(w.output, sb.String())
}

// writeHeader writes the report header with scan information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.Report) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                          WEBAUDIT REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Target:         %s\n", report.Target)
	fmt.Fprintf(sb, "Scan ID:        %s\n", report.ID)
	fmt.Fprintf(sb, "Scan Date:      %s\n", report.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Duration:       %s\n", report.Duration().Round(time.Millisecond))
	fmt.Fprintf(sb, "Mode:           %s\n", report.Mode)
	fmt.Fprintf(sb, "Pages Crawled:  %d\n", report.PagesCrawled)
	fmt.Fprintf(sb, "Pages Audited:  %d\n", report.PagesAudited)
	fmt.Fprintf(sb, "Modules:        %s\n", strings.Join(report.Modules, ", "))
	fmt.Fprintf(sb, "Status:         %s\n", statusText(report))
	sb.WriteString("\n")
}

// writeSummary writes the severity summary section.
func (w *SimpleWriter) writeSummary(sb *strings.Builder, report *model.Report) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("SEVERITY SUMMARY\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	summary := NewSummary(report)
	for _, sev := range severityOrder {
		fmt.Fprintf(sb, "  %-9s %d\n", sev.String()+":", summary.Count(sev))
	}
	sb.WriteString("\n")
	fmt.Fprintf(sb, "  %-9s %d findings\n", "TOTAL:", summary.Total)
	sb.WriteString("\n")
}

// writeFindings writes all findings grouped by severity.
func (w *SimpleWriter) writeFindings(sb *strings.Builder, report *model.Report) {
	if !report.HasVulnerabilities() && !w.showEmpty {
		return
	}

	if !w.onlyFindings {
		sb.WriteString(strings.Repeat("-", 70))
		sb.WriteString("\n")
		sb.WriteString("FINDINGS\n")
		sb.WriteString(strings.Repeat("-", 70))
		sb.WriteString("\n\n")
	}

	groups := groupBySeverity(report)
	for _, sev := range severityOrder {
		findings := groups[sev]
		if len(findings) == 0 && !w.showEmpty {
			continue
		}
		w.writeFindingsForSeverity(sb, sev, findings)
	}
}

// writeFindingsForSeverity writes findings of a specific severity level.
func (w *SimpleWriter) writeFindingsForSeverity(sb *strings.Builder, severity model.Severity, findings []model.Vulnerability) {
	fmt.Fprintf(sb, "[%s] %s\n", severityIndicator(severity), severity.String())

	if len(findings) == 0 {
		sb.WriteString("  No findings\n\n")
		return
	}

	for _, v := range findings {
		fmt.Fprintf(sb, "  * %s (%s)\n", v.Name, v.Module)
		fmt.Fprintf(sb, "    URL: %s\n", v.URL)
		if v.Element != "" {
			if v.Variable != "" {
				fmt.Fprintf(sb, "    Element: %s %q\n", v.Element, v.Variable)
			} else {
				fmt.Fprintf(sb, "    Element: %s\n", v.Element)
			}
		}
		if v.Evidence != "" {
			fmt.Fprintf(sb, "    Evidence: %s\n", v.Evidence)
		}
		if w.verbose {
			if v.Description != "" {
				fmt.Fprintf(sb, "    Description: %s\n", v.Description)
			}
			if v.Remedy != "" {
				fmt.Fprintf(sb, "    Remedy: %s\n", v.Remedy)
			}
		}
	}
	sb.WriteString("\n")
}

// severityIndicator returns a visual indicator for the severity level.
func severityIndicator(severity model.Severity) string {
	switch severity {
	case model.SeverityCritical:
		return "!!!"
	case model.SeverityHigh:
		return "!!"
	case model.SeverityMedium:
		return "!"
	case model.SeverityLow:
		return "-"
	case model.SeverityInfo:
		return "i"
	default:
		return "?"
	}
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by webaudit\n")
	sb.WriteString("https://github.com/nao1215/webaudit\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}
