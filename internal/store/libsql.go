package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/appspec/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/reports.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Reports ---

// SaveReport inserts a report. An empty ID is assigned a new UUID and a zero
// CreatedAt is set to now; both are written back to report.
func (s *LibSQLStore) SaveReport(ctx context.Context, report *Report) error {
	if report.ID == "" {
		report.ID = uuid.New().String()
	}
	report.CreatedAt = timeOrNow(report.CreatedAt)

	errs, err := nullableJSON(report.Errors)
	if err != nil {
		return fmt.Errorf("marshal report errors: %w", err)
	}
	warnings, err := nullableJSON(report.Warnings)
	if err != nil {
		return fmt.Errorf("marshal report warnings: %w", err)
	}
	err = defaultRetry.do(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO reports (id, app, source, valid, code, message, errors, warnings, duration_ms, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			report.ID, report.App, nullStr(report.Source), boolToInt(report.Valid),
			nullStr(report.Code), nullStr(report.Message), errs, warnings,
			report.DurationMs, report.CreatedAt,
		)
		return err
	})
	if err != nil {
		return storeFailure("save report", err)
	}
	return nil
}

const reportColumns = `id, app, source, valid, code, message, errors, warnings, duration_ms, created_at`

func (s *LibSQLStore) GetReport(ctx context.Context, id string) (*Report, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = ?`, id)
	r, err := scanReport(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("report", id)
	}
	return r, err
}

// LatestReport returns the most recent report of app.
func (s *LibSQLStore) LatestReport(ctx context.Context, app string) (*Report, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE app = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, app)
	r, err := scanReport(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("report for app", app)
	}
	return r, err
}

func (s *LibSQLStore) ListReports(ctx context.Context, filter ReportFilter) ([]*Report, error) {
	var where []string
	var args []any
	if filter.App != "" {
		where = append(where, "app = ?")
		args = append(args, filter.App)
	}
	if filter.Valid != nil {
		where = append(where, "valid = ?")
		args = append(args, boolToInt(*filter.Valid))
	}
	if filter.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, *filter.Since)
	}

	query := `SELECT ` + reportColumns + ` FROM reports`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeFailure("list reports", err)
	}
	defer rows.Close()

	var reports []*Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// DeleteReports removes every report of app and returns how many were removed.
func (s *LibSQLStore) DeleteReports(ctx context.Context, app string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reports WHERE app = ?`, app)
	if err != nil {
		return 0, storeFailure("delete reports", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*Report, error) {
	r := &Report{}
	var source, code, message, errs, warnings sql.NullString
	var valid int
	if err := row.Scan(&r.ID, &r.App, &source, &valid, &code, &message, &errs, &warnings, &r.DurationMs, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.Source = source.String
	r.Valid = valid != 0
	r.Code = code.String
	r.Message = message.String
	if errs.Valid && errs.String != "" {
		if err := json.Unmarshal([]byte(errs.String), &r.Errors); err != nil {
			return nil, fmt.Errorf("unmarshal report errors: %w", err)
		}
	}
	if warnings.Valid && warnings.String != "" {
		if err := json.Unmarshal([]byte(warnings.String), &r.Warnings); err != nil {
			return nil, fmt.Errorf("unmarshal report warnings: %w", err)
		}
	}
	return r, nil
}

// --- Secrets ---

func (s *LibSQLStore) StoreSecret(ctx context.Context, key string, value []byte) error {
	err := defaultRetry.do(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO secrets (key, value, created_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			 ON CONFLICT(key) DO UPDATE SET value=excluded.value, rotated_at=CURRENT_TIMESTAMP`,
			key, value,
		)
		return err
	})
	if err != nil {
		return storeFailure("store secret", err)
	}
	return nil
}

func (s *LibSQLStore) GetSecret(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM secrets WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("secret", key)
	}
	return value, err
}

func (s *LibSQLStore) DeleteSecret(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM secrets WHERE key = ?`, key)
	if err != nil {
		return storeFailure("delete secret", err)
	}
	return checkRowsAffected(res, "secret", key)
}

// ListSecrets returns the keys starting with prefix, sorted.
func (s *LibSQLStore) ListSecrets(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM secrets WHERE substr(key, 1, ?) = ? ORDER BY key`, len(prefix), prefix)
	if err != nil {
		return nil, storeFailure("list secrets", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.AppError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func storeFailure(op string, err error) *schema.AppError {
	return schema.NewErrorf(schema.ErrCodeStore, "%s: %s", op, err.Error()).WithCause(err)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// nullableJSON marshals v, storing empty slices as NULL.
func nullableJSON[T any](v []T) (any, error) {
	if len(v) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

var _ Store = (*LibSQLStore)(nil)
