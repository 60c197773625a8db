package report

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/nao1215/webaudit/internal/model"
)

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation, which gives tables, alerts and mermaid charts without
// hand-escaping.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *model.Report) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeSummary(md, report)
	w.writeFindings(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with scan information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.Report) {
	md.H1("webaudit Report")
	md.PlainText("")

	modules := "-"
	if len(report.Modules) > 0 {
		modules = "`" + strings.Join(report.Modules, "`, `") + "`"
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Target", "`" + report.Target + "`"},
			{"Scan ID", report.ID},
			{"Scan Date", report.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", report.Duration().Round(time.Millisecond).String()},
			{"Mode", label(report.Mode)},
			{"Pages Crawled", strconv.Itoa(report.PagesCrawled)},
			{"Pages Audited", strconv.Itoa(report.PagesAudited)},
			{"Modules", modules},
			{"Status", w.statusText(report)},
		},
	})
	md.PlainText("")
}

// statusText returns the status text based on report state.
func (w *MarkdownWriter) statusText(report *model.Report) string {
	if report.Interrupted {
		return "⚠️ " + statusText(report)
	}
	return "✅ " + statusText(report)
}

// severityIcons decorate severity labels.
var severityIcons = map[model.Severity]string{
	model.SeverityCritical: "🔴",
	model.SeverityHigh:     "🟠",
	model.SeverityMedium:   "🟡",
	model.SeverityLow:      "🔵",
	model.SeverityInfo:     "⚪",
}

// writeSummary writes the severity summary section.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.Report) {
	md.H2("Severity Summary")
	md.PlainText("")

	summary := NewSummary(report)
	rows := make([][]string, 0, len(severityOrder)+1)
	for _, sev := range severityOrder {
		rows = append(rows, []string{
			severityIcons[sev] + " " + label(sev.String()),
			strconv.Itoa(summary.Count(sev)),
		})
	}
	rows = append(rows, []string{"**Total**", "**" + strconv.Itoa(summary.Total) + "**"})

	md.Table(markdown.TableSet{
		Header: []string{"Severity", "Count"},
		Rows:   rows,
	})
	md.PlainText("")

	if summary.Total > 0 {
		w.writePieChart(md, summary)
	}
	w.writeAlert(md, summary)
}

// writePieChart writes a mermaid pie chart for severity distribution.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, summary Summary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Finding Severity Distribution"),
		piechart.WithShowData(true),
	)

	for _, sev := range severityOrder {
		if n := summary.Count(sev); n > 0 {
			chart.LabelAndIntValue(label(sev.String()), uint64(n))
		}
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an appropriate alert based on severity counts.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, summary Summary) {
	switch {
	case summary.Critical > 0:
		md.Cautionf(
			"Critical security issues detected! %d critical finding(s) require immediate attention.",
			summary.Critical,
		)
	case summary.High > 0:
		md.Warningf(
			"High severity issues detected. %d high severity finding(s) should be addressed.",
			summary.High,
		)
	case summary.Medium > 0:
		md.Importantf(
			"Medium severity issues found. %d finding(s) weaken the application's defenses.",
			summary.Medium,
		)
	case summary.Total > 0:
		md.Note("Only low severity and informational findings detected.")
	default:
		md.Tip("No significant security issues detected.")
	}
	md.PlainText("")
}

// writeFindings writes all findings grouped by severity.
func (w *MarkdownWriter) writeFindings(md *markdown.Markdown, report *model.Report) {
	md.H2("Findings")
	md.PlainText("")

	if !report.HasVulnerabilities() {
		md.PlainText("No security findings detected.")
		md.PlainText("")
		return
	}

	groups := groupBySeverity(report)
	for _, sev := range severityOrder {
		findings := groups[sev]
		if len(findings) == 0 {
			continue
		}

		md.PlainText("### " + severityIcons[sev] + " " + label(sev.String()))
		md.PlainText("")
		w.writeFindingsTable(md, findings)
	}
}

// writeFindingsTable writes a table of findings with details.
func (w *MarkdownWriter) writeFindingsTable(md *markdown.Markdown, findings []model.Vulnerability) {
	rows := make([][]string, len(findings))
	for i, v := range findings {
		rows[i] = []string{
			v.Name,
			label(v.Module),
			truncateString(orDash(v.URL), 60),
			orDash(label(string(v.Element))),
			truncateString(orDash(v.Variable), 30),
			truncateString(orDash(v.Evidence), 50),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"Name", "Module", "URL", "Element", "Variable", "Evidence"},
		Rows:   rows,
	})
	md.PlainText("")

	for _, v := range findings {
		if v.Description == "" && v.Remedy == "" {
			continue
		}
		details := v.Description
		if v.Remedy != "" {
			details += "\n\nRemedy: " + v.Remedy
		}
		md.Details(v.Name+" ("+v.URL+")", strings.TrimSpace(details))
	}
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [webaudit](https://github.com/nao1215/webaudit)*")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// truncateString truncates a string to maxLen bytes with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
