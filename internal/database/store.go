package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/webaudit/internal/model"
)

// FileName is the database file created inside the data directory.
const FileName = "webaudit.db"

// Store provides SQLite-based storage for scan reports.
type Store struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures Store behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a Store in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*Store, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (run a scan first)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file, mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scans (
		id TEXT PRIMARY KEY,
		target TEXT NOT NULL,
		mode TEXT NOT NULL,
		state TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		pages_crawled INTEGER DEFAULT 0,
		pages_audited INTEGER DEFAULT 0,
		interrupted INTEGER DEFAULT 0,
		risk_summary TEXT,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_scans_target ON scans(target);
	CREATE INDEX IF NOT EXISTS idx_scans_started ON scans(started_at);

	CREATE TABLE IF NOT EXISTS vulnerabilities (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scan_id TEXT NOT NULL REFERENCES scans(id) ON DELETE CASCADE,
		module TEXT NOT NULL,
		name TEXT NOT NULL,
		severity INTEGER NOT NULL,
		url TEXT,
		element TEXT,
		variable TEXT,
		evidence TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_vulns_scan ON vulnerabilities(scan_id);
	CREATE INDEX IF NOT EXISTS idx_vulns_module ON vulnerabilities(module);
	`

	_, err := s.db.ExecContext(context.Background(), schema)
	return err
}

// SaveReport stores a finished scan and its vulnerabilities in one
// transaction. Saving the same report ID twice replaces the first copy.
func (s *Store) SaveReport(ctx context.Context, report *model.Report) (err error) {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}
	riskJSON, err := json.Marshal(riskSummary(report))
	if err != nil {
		return fmt.Errorf("failed to serialize risk summary: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback() //nolint:errcheck // Original error is more useful
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM vulnerabilities WHERE scan_id = ?`, report.ID); err != nil {
		return fmt.Errorf("failed to replace vulnerabilities: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO scans (id, target, mode, state, started_at, finished_at,
		pages_crawled, pages_audited, interrupted, risk_summary, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		state = excluded.state,
		finished_at = excluded.finished_at,
		pages_crawled = excluded.pages_crawled,
		pages_audited = excluded.pages_audited,
		interrupted = excluded.interrupted,
		risk_summary = excluded.risk_summary,
		report_json = excluded.report_json
	`,
		report.ID,
		report.Target,
		report.Mode,
		report.State,
		formatTimestamp(report.StartedAt),
		formatTimestamp(report.FinishedAt),
		report.PagesCrawled,
		report.PagesAudited,
		report.Interrupted,
		string(riskJSON),
		string(reportJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save scan: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO vulnerabilities (scan_id, module, name, severity, url, element, variable, evidence)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare vulnerability insert: %w", err)
	}
	defer stmt.Close()

	for _, v := range report.Vulnerabilities {
		if _, err = stmt.ExecContext(ctx,
			report.ID, v.Module, v.Name, int(v.Severity), v.URL, string(v.Element), v.Variable, v.Evidence,
		); err != nil {
			return fmt.Errorf("failed to save vulnerability: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit scan: %w", err)
	}
	return nil
}

// GetReport retrieves a report by scan ID. It returns nil, nil when the
// scan does not exist.
func (s *Store) GetReport(ctx context.Context, id string) (*model.Report, error) {
	var reportJSON string
	err := s.db.QueryRowContext(ctx, `SELECT report_json FROM scans WHERE id = ?`, id).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan report: %w", err)
	}

	var report model.Report
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}

// ScanSummary contains summary information about a stored scan.
// This is used for displaying scan history without loading the full report.
type ScanSummary struct {
	ID           string
	Target       string
	Mode         string
	State        string
	StartedAt    time.Time
	FinishedAt   time.Time
	PagesCrawled int
	PagesAudited int
	Interrupted  bool

	// RiskSummary contains counts of findings by lower-case severity name.
	RiskSummary map[string]int
}

// Total returns the number of findings in the summary.
func (s ScanSummary) Total() int {
	total := 0
	for _, n := range s.RiskSummary {
		total += n
	}
	return total
}

// ListScans returns stored scans, newest first. An empty target lists
// every target; limit <= 0 means no limit.
func (s *Store) ListScans(ctx context.Context, target string, limit int) ([]ScanSummary, error) {
	query := `
	SELECT id, target, mode, state, started_at, finished_at,
		pages_crawled, pages_audited, interrupted, risk_summary
	FROM scans
	WHERE 1=1
	`
	args := make([]any, 0, 2)

	if target != "" {
		query += " AND target = ?"
		args = append(args, target)
	}
	query += " ORDER BY started_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	defer rows.Close()

	var results []ScanSummary
	for rows.Next() {
		var (
			sum               ScanSummary
			started, finished string
			riskJSON          sql.NullString
		)
		if err := rows.Scan(
			&sum.ID, &sum.Target, &sum.Mode, &sum.State, &started, &finished,
			&sum.PagesCrawled, &sum.PagesAudited, &sum.Interrupted, &riskJSON,
		); err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}

		sum.StartedAt = parseTimestamp(started)
		sum.FinishedAt = parseTimestamp(finished)
		sum.RiskSummary = make(map[string]int)
		if riskJSON.Valid && riskJSON.String != "" {
			if err := json.Unmarshal([]byte(riskJSON.String), &sum.RiskSummary); err != nil {
				sum.RiskSummary = make(map[string]int)
			}
		}
		results = append(results, sum)
	}

	return results, rows.Err()
}

// ListTargets returns every scanned target in alphabetical order.
func (s *Store) ListTargets(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT target FROM scans ORDER BY target`)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	defer rows.Close()

	var targets []string
	for rows.Next() {
		var target string
		if err := rows.Scan(&target); err != nil {
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}
		targets = append(targets, target)
	}
	return targets, rows.Err()
}

// Vulnerabilities returns the findings of a scan with at least the given
// severity, most severe first.
func (s *Store) Vulnerabilities(ctx context.Context, scanID string, minSeverity model.Severity) ([]model.Vulnerability, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT module, name, severity, url, element, variable, evidence
	FROM vulnerabilities
	WHERE scan_id = ? AND severity >= ?
	ORDER BY severity DESC, url, module
	`, scanID, int(minSeverity))
	if err != nil {
		return nil, fmt.Errorf("failed to query vulnerabilities: %w", err)
	}
	defer rows.Close()

	var vulns []model.Vulnerability
	for rows.Next() {
		var (
			v        model.Vulnerability
			severity int
			element  string
		)
		if err := rows.Scan(&v.Module, &v.Name, &severity, &v.URL, &element, &v.Variable, &v.Evidence); err != nil {
			return nil, fmt.Errorf("failed to scan vulnerability: %w", err)
		}
		v.Severity = model.Severity(severity)
		v.Element = model.Element(element)
		vulns = append(vulns, v)
	}
	return vulns, rows.Err()
}

// DeleteScan removes a scan and its vulnerabilities. Deleting a missing
// scan is not an error.
func (s *Store) DeleteScan(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM vulnerabilities WHERE scan_id = ?`, id); err != nil {
		_ = tx.Rollback() //nolint:errcheck // Original error is more useful
		return fmt.Errorf("failed to delete vulnerabilities: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM scans WHERE id = ?`, id); err != nil {
		_ = tx.Rollback() //nolint:errcheck // Original error is more useful
		return fmt.Errorf("failed to delete scan: %w", err)
	}
	return tx.Commit()
}

// riskSummary counts findings per lower-case severity name. Every level
// is present, so history output has stable columns.
func riskSummary(report *model.Report) map[string]int {
	summary := map[string]int{
		"critical": 0,
		"high":     0,
		"medium":   0,
		"low":      0,
		"info":     0,
	}
	for sev, n := range report.CountBySeverity() {
		summary[strings.ToLower(sev.String())] = n
	}
	return summary
}

// timestampLayout is fixed-width so that stored timestamps sort
// lexically in time order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timestampLayout)
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
