package model

// Element identifies which part of a page a vulnerability was found in.
type Element string

// Elements a vulnerability can be attributed to.
const (
	ElementLink   Element = "link"
	ElementForm   Element = "form"
	ElementCookie Element = "cookie"
	ElementHeader Element = "header"
	ElementBody   Element = "body"
)

// Vulnerability is a single finding reported by a check module.
// The audit core never builds these itself; check modules report them
// into the registry's result store while they run.
type Vulnerability struct {
	// Module is the name of the check module that reported the finding.
	Module string `json:"module"`

	// Name is a short title for the finding.
	Name string `json:"name"`

	// Description explains what was found.
	Description string `json:"description,omitempty"`

	// Severity is the risk level.
	Severity Severity `json:"severity"`

	// URL is the page the finding belongs to.
	URL string `json:"url"`

	// Element is the part of the page that is affected.
	Element Element `json:"element"`

	// Variable is the affected input, header or cookie name, if any.
	Variable string `json:"variable,omitempty"`

	// Evidence is the matched value that triggered the finding.
	Evidence string `json:"evidence,omitempty"`

	// Remedy is a short remediation hint.
	Remedy string `json:"remedy,omitempty"`
}
