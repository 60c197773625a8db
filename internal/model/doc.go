// Package model defines the data structures shared by the audit core,
// the crawler, the check modules and the report writers.
//
// This package contains the following main types:
//   - PageRecord: an immutable snapshot of one crawled page
//   - Structure: the analyzer's view of a page (links, forms, cookies)
//   - Vulnerability: a single finding produced by a check module
//   - ModuleInfo: descriptive metadata of an available check module
//   - Report: the aggregated outcome of a scan
//
// Design decision: We keep the models in their own package so that the
// audit, module, checks and report packages can share them without import
// cycles. All types serialize to JSON for reports and database storage.
package model
