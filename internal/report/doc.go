// Package report renders a finished scan.
//
// Three formats share the Writer interface: SimpleWriter prints a
// terminal summary grouped by severity, FullJSONWriter wraps the report
// with the generating version and per-severity counts, and MarkdownWriter
// produces a document with a severity pie chart. New selects one by name
// and MultiWriter fans a report out to several.
//
// Writers only read model.Report. Anything specific to one output format
// lives in this package rather than in the stored report.
package report
