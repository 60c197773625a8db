// Package module is the module registry used by the audit core.
//
// A check module is described by a Descriptor: its metadata and a
// factory that builds a fresh Check for one page. Descriptors are
// registered at start-up; Load moves them into the loaded set that the
// dispatcher runs against every page. Findings are reported into the
// registry's result store and collected once the audit is done.
//
// # Check lifecycle
//
// Every Check implements Run. A check that needs set-up or tear-down also
// implements Preparer or Cleaner; the dispatcher detects these with a type
// assertion and calls them around Run:
//
//	Prepare (optional) -> Run -> Cleanup (optional)
package module
