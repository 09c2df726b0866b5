// Package store persists run results in SQLite and writes the CSV tables
// handed to downstream reporting.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/seenimoa/holdings13f/pkg/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrRunNotFound is returned when a run ID is unknown.
var ErrRunNotFound = errors.New("run not found")

const dayLayout = "2006-01-02"

// Run describes one pipeline execution.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
	Mode       string
	Groups     []string
	Filings    int
	Records    int
}

// Store is a SQLite-backed result store.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies migrations.
// Use ":memory:" for a throwaway store.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "failed to open database")
	}
	// One connection: SQLite has a single writer, pragmas are per
	// connection, and each ":memory:" connection is its own database.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "failed to ping database")
	}
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, eris.Wrap(err, "failed to set pragma")
		}
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return eris.Wrap(err, "migrations fs")
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return eris.Wrap(err, "create migration provider")
	}
	if _, err := provider.Up(ctx); err != nil {
		return eris.Wrap(err, "apply migrations")
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// BeginRun records the start of a run.
func (s *Store) BeginRun(ctx context.Context, r Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, mode, group_names) VALUES (?, ?, ?, ?)`,
		r.ID, r.StartedAt.UTC().Format(time.RFC3339), r.Mode, strings.Join(r.Groups, ";"))
	if err != nil {
		return eris.Wrapf(err, "insert run %s", r.ID)
	}
	return nil
}

// FinishRun stamps the end of a run with its counts.
func (s *Store) FinishRun(ctx context.Context, id string, finished time.Time, filings, records int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, filings = ?, records = ? WHERE id = ?`,
		finished.UTC().Format(time.RFC3339), filings, records, id)
	if err != nil {
		return eris.Wrapf(err, "finish run %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Wrap(ErrRunNotFound, id)
	}
	return nil
}

// Runs returns the most recent runs, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, COALESCE(finished_at, ''), mode, group_names, filings, records
		   FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "query runs")
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r                 Run
			started, finished string
			groups            string
		)
		if err := rows.Scan(&r.ID, &started, &finished, &r.Mode, &groups, &r.Filings, &r.Records); err != nil {
			return nil, eris.Wrap(err, "scan run")
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, started)
		if finished != "" {
			r.FinishedAt, _ = time.Parse(time.RFC3339, finished)
		}
		r.Groups = splitList(groups)
		out = append(out, r)
	}
	return out, rows.Err()
}

// LatestRun returns the newest finished run.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	runs, err := s.Runs(ctx, 50)
	if err != nil {
		return Run{}, err
	}
	for _, r := range runs {
		if !r.FinishedAt.IsZero() {
			return r, nil
		}
	}
	return Run{}, ErrRunNotFound
}

// SavePositions stores the consolidated positions of a run.
func (s *Store) SavePositions(ctx context.Context, runID string, ps []models.ConsolidatedPosition) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "begin")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO positions (
		run_id, group_name, ticker, mapped_cusip, report_date, shares_held,
		value_usd_thousands, method, dominant_cik, filer_ciks,
		latest_filing_date, latest_accession, shares_outstanding
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "prepare insert position")
	}
	defer stmt.Close()

	for _, p := range ps {
		if _, err := stmt.ExecContext(ctx,
			runID, p.Group, p.Ticker, p.MappedCUSIP, models.DateString(p.ReportDate),
			p.SharesHeld, p.Value, string(p.Method), p.DominantCIK, strings.Join(p.FilerCIKs, ";"),
			models.DateString(p.LatestFilingDate), p.LatestAccession, nullInt(p.SharesOutstanding),
		); err != nil {
			return eris.Wrapf(err, "insert position %s %s %s", p.Group, p.Ticker, models.DateString(p.ReportDate))
		}
	}
	return tx.Commit()
}

// LoadPositions returns the positions of a run, optionally restricted to
// one group, ordered by ticker, report date and group.
func (s *Store) LoadPositions(ctx context.Context, runID, group string) ([]models.ConsolidatedPosition, error) {
	q := `SELECT group_name, ticker, mapped_cusip, report_date, shares_held,
	             value_usd_thousands, method, dominant_cik, filer_ciks,
	             latest_filing_date, latest_accession, shares_outstanding
	        FROM positions WHERE run_id = ?`
	args := []any{runID}
	if group != "" {
		q += ` AND group_name = ?`
		args = append(args, group)
	}
	q += ` ORDER BY ticker, report_date, group_name`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "query positions")
	}
	defer rows.Close()

	var out []models.ConsolidatedPosition
	for rows.Next() {
		var (
			p              models.ConsolidatedPosition
			report, latest string
			method, filers string
			outstanding    sql.NullInt64
		)
		if err := rows.Scan(&p.Group, &p.Ticker, &p.MappedCUSIP, &report, &p.SharesHeld,
			&p.Value, &method, &p.DominantCIK, &filers, &latest, &p.LatestAccession, &outstanding); err != nil {
			return nil, eris.Wrap(err, "scan position")
		}
		p.ReportDate = parseDay(report)
		p.LatestFilingDate = parseDay(latest)
		p.Method = models.ConsolidationMethod(method)
		p.FilerCIKs = splitList(filers)
		p.SharesOutstanding = intPtr(outstanding)
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveAggregates stores the cross-group aggregate of a run.
func (s *Store) SaveAggregates(ctx context.Context, runID string, as []models.AggregateOwnership) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "begin")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO aggregates (
		run_id, ticker, mapped_cusip, report_date, shares_held_total,
		value_usd_thousands_total, shares_outstanding, num_managers, managers
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "prepare insert aggregate")
	}
	defer stmt.Close()

	for _, a := range as {
		if _, err := stmt.ExecContext(ctx,
			runID, a.Ticker, a.MappedCUSIP, models.DateString(a.ReportDate), a.SharesHeldTotal,
			a.ValueTotal, nullInt(a.SharesOutstanding), a.NumManagers, strings.Join(a.Managers, ";"),
		); err != nil {
			return eris.Wrapf(err, "insert aggregate %s %s", a.Ticker, models.DateString(a.ReportDate))
		}
	}
	return tx.Commit()
}

// LoadAggregates returns the aggregate rows of a run ordered by ticker
// and report date.
func (s *Store) LoadAggregates(ctx context.Context, runID string) ([]models.AggregateOwnership, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ticker, mapped_cusip, report_date, shares_held_total,
		        value_usd_thousands_total, shares_outstanding, num_managers, managers
		   FROM aggregates WHERE run_id = ? ORDER BY ticker, report_date`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "query aggregates")
	}
	defer rows.Close()

	var out []models.AggregateOwnership
	for rows.Next() {
		var (
			a           models.AggregateOwnership
			report      string
			managers    string
			outstanding sql.NullInt64
		)
		if err := rows.Scan(&a.Ticker, &a.MappedCUSIP, &report, &a.SharesHeldTotal,
			&a.ValueTotal, &outstanding, &a.NumManagers, &managers); err != nil {
			return nil, eris.Wrap(err, "scan aggregate")
		}
		a.ReportDate = parseDay(report)
		a.SharesOutstanding = intPtr(outstanding)
		a.Managers = splitList(managers)
		out = append(out, a)
	}
	return out, rows.Err()
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func intPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func parseDay(s string) time.Time {
	t, err := time.Parse(dayLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}
	}
	return t
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ";")
}
