// Package metrics exposes Prometheus metrics for a running scan.
//
// A Collector owns its own registry so that several collectors can live in
// one process (tests, library use) without clashing on the default
// registry. All methods are safe on a nil *Collector, which lets callers
// treat metrics as optional.
package metrics
