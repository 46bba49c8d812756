package audit

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" driver
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Store persists the append-only audit log in PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to the audit database at connStr and applies pending migrations.
func Open(connStr string) (*Store, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("audit open: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit ping: %w", err)
	}
	if err = migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`)
	if err != nil {
		return err
	}

	var current int
	row := db.QueryRow(`SELECT COALESCE(MAX(version), -1) FROM schema_version`)
	if err = row.Scan(&current); err != nil {
		return err
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	for i := current + 1; i < len(entries); i++ {
		data, readErr := migrationFS.ReadFile("migrations/" + entries[i].Name())
		if readErr != nil {
			return fmt.Errorf("read migration %d: %w", i, readErr)
		}
		if _, execErr := db.Exec(string(data)); execErr != nil {
			return fmt.Errorf("migration %d: %w", i, execErr)
		}
		if _, execErr := db.Exec(`INSERT INTO schema_version (version) VALUES ($1)`, i); execErr != nil {
			return fmt.Errorf("migration %d record: %w", i, execErr)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append inserts one entry. The entry is validated first; a storage
// failure surfaces wrapped in ErrWriteFailed and leaves the log unchanged
// (single-statement insert, no partial row). On success the entry's ID
// and CreatedAt are filled in.
func (s *Store) Append(ctx context.Context, e *Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}

	details, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}
	compliance, err := json.Marshal(e.Compliance)
	if err != nil {
		return fmt.Errorf("marshal compliance: %w", err)
	}

	createdAt := time.Now().UTC()
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO audit_log
		   (prescription_id, refill_request_id, user_id, action, details,
		    ip_address, user_agent, signature, compliance, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		e.PrescriptionID, e.RefillRequestID, e.UserID, string(e.Action), details,
		nullStr(e.IPAddress), nullStr(e.UserAgent), nullStr(e.Signature), compliance, createdAt,
	)
	if err := row.Scan(&e.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	e.CreatedAt = createdAt
	return nil
}

// ByPrescription returns all entries for a prescription, newest first.
func (s *Store) ByPrescription(ctx context.Context, prescriptionID int64) ([]Entry, error) {
	return s.queryEntries(ctx,
		selectEntry+` WHERE prescription_id = $1 ORDER BY created_at DESC`,
		prescriptionID)
}

// ByRefill returns all entries for a refill request, newest first.
func (s *Store) ByRefill(ctx context.Context, refillRequestID int64) ([]Entry, error) {
	return s.queryEntries(ctx,
		selectEntry+` WHERE refill_request_id = $1 ORDER BY created_at DESC`,
		refillRequestID)
}

// ReportFilter narrows a compliance report. Nil fields match everything;
// time bounds are inclusive.
type ReportFilter struct {
	UserID *int64
	Start  *time.Time
	End    *time.Time
}

// ComplianceReport returns entries matching the filter, newest first.
// Failures return the error; an empty report is a nil slice with nil error.
func (s *Store) ComplianceReport(ctx context.Context, f ReportFilter) ([]Entry, error) {
	query, args := buildReportQuery(f)
	return s.queryEntries(ctx, query, args...)
}

const selectEntry = `SELECT id, prescription_id, refill_request_id, user_id, action, details,
       ip_address, user_agent, signature, compliance, created_at
  FROM audit_log`

// buildReportQuery assembles the report SQL from the optional predicates.
func buildReportQuery(f ReportFilter) (string, []any) {
	var conds []string
	var args []any

	if f.UserID != nil {
		args = append(args, *f.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.Start != nil {
		args = append(args, f.Start.UTC())
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if f.End != nil {
		args = append(args, f.End.UTC())
		conds = append(conds, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	query := selectEntry
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	return query, args
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit query: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var action string
		var details, compliance []byte
		var ip, ua, sig sql.NullString
		if err = rows.Scan(&e.ID, &e.PrescriptionID, &e.RefillRequestID, &e.UserID, &action,
			&details, &ip, &ua, &sig, &compliance, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit scan: %w", err)
		}
		e.Action = Action(action)
		e.IPAddress = ip.String
		e.UserAgent = ua.String
		e.Signature = sig.String
		if e.Details, err = decodeDetails(e.Action, details); err != nil {
			return nil, fmt.Errorf("audit entry %d: %w", e.ID, err)
		}
		if err = json.Unmarshal(compliance, &e.Compliance); err != nil {
			return nil, fmt.Errorf("audit entry %d compliance: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
