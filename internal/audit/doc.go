// Package audit coordinates a scan: it drives the crawl, runs the loaded
// check units against every page under a bounded worker pool, and
// aggregates the findings.
//
// # Modes
//
// In immediate mode every page is dispatched as soon as the spider
// delivers it, and the spider waits until the dispatch has finished. In
// deferred mode (ScanConfig.ModsRunLast) pages are buffered during the
// crawl and dispatched one at a time, in crawl order, once the crawl ends.
//
// # Interrupts
//
// An Interrupt is raised asynchronously, usually by the first SIGINT. In
// immediate mode the workers abandon the current page and the scan ends
// with the results gathered so far. In deferred mode the orchestrator asks
// its Prompter whether to audit the buffered pages now or to exit.
// Context cancellation is the hard abort and is honoured everywhere.
package audit
