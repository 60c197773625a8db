// Package database provides SQLite-based storage of scan history.
//
// This package implements the Store, which keeps:
//   - one row per finished scan with its counters and full JSON report
//   - one row per vulnerability, so findings can be queried across scans
//
// Design decision: We use SQLite (via modernc.org/sqlite) because:
// 1. No external dependencies - the database is a single file
// 2. CGO-free implementation allows easy cross-compilation
// 3. WAL mode lets `webaudit history` read while a scan writes
package database
