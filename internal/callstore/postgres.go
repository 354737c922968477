package callstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the calls table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS calls (
    call_id      TEXT PRIMARY KEY,
    agent_id     TEXT NOT NULL DEFAULT '',
    direction    TEXT NOT NULL,
    from_number  TEXT NOT NULL DEFAULT '',
    to_number    TEXT NOT NULL DEFAULT '',
    provider_sid TEXT NOT NULL DEFAULT '',
    status       TEXT NOT NULL DEFAULT 'registered',
    ended_at     TIMESTAMPTZ,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_calls_agent ON calls(agent_id);
CREATE INDEX IF NOT EXISTS idx_calls_status ON calls(status);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new [PostgresStore] that uses the given database
// connection or pool. The caller is responsible for calling
// [PostgresStore.Migrate] to ensure the schema exists before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL against the database, creating the calls
// table and indexes if they do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, Schema)
	if err != nil {
		return fmt.Errorf("callstore: migrate: %w", err)
	}
	return nil
}

// Create inserts a new call record. It validates the record and returns an
// error if a call with the same ID already exists.
func (s *PostgresStore) Create(ctx context.Context, rec *CallRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	const query = `
		INSERT INTO calls (call_id, agent_id, direction, from_number, to_number, provider_sid, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`

	err := s.db.QueryRow(ctx, query,
		rec.CallID, rec.AgentID, rec.Direction,
		rec.FromNumber, rec.ToNumber, rec.ProviderSID,
		defaultStatus(rec.Status),
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("callstore: call with id %q already exists", rec.CallID)
		}
		return fmt.Errorf("callstore: create: %w", err)
	}
	if rec.Status == "" {
		rec.Status = StatusRegistered
	}
	return nil
}

// Get retrieves a call record by ID. It returns (nil, nil) if no call with
// the given ID exists.
func (s *PostgresStore) Get(ctx context.Context, callID string) (*CallRecord, error) {
	const query = `
		SELECT call_id, agent_id, direction, from_number, to_number,
		       provider_sid, status, ended_at, created_at, updated_at
		FROM calls
		WHERE call_id = $1`

	var rec CallRecord
	err := s.db.QueryRow(ctx, query, callID).Scan(
		&rec.CallID, &rec.AgentID, &rec.Direction, &rec.FromNumber, &rec.ToNumber,
		&rec.ProviderSID, &rec.Status, &rec.EndedAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("callstore: get %q: %w", callID, err)
	}
	return &rec, nil
}

// UpdateStatus transitions the call to status, stamping ended_at when the
// call reaches [StatusEnded]. Returns an error if the call is not found.
func (s *PostgresStore) UpdateStatus(ctx context.Context, callID, status string) error {
	switch status {
	case StatusRegistered, StatusOngoing, StatusEnded:
	default:
		return fmt.Errorf("callstore: unknown status %q", status)
	}

	const query = `
		UPDATE calls SET
			status = $2,
			ended_at = CASE WHEN $2 = 'ended' THEN now() ELSE ended_at END,
			updated_at = now()
		WHERE call_id = $1
		RETURNING updated_at`

	var updatedAt time.Time
	err := s.db.QueryRow(ctx, query, callID, status).Scan(&updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("callstore: call with id %q not found", callID)
		}
		return fmt.Errorf("callstore: update status: %w", err)
	}
	return nil
}

// List returns call records for agentID, most recent first. An empty agentID
// returns all records.
func (s *PostgresStore) List(ctx context.Context, agentID string) ([]CallRecord, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if agentID == "" {
		const query = `
			SELECT call_id, agent_id, direction, from_number, to_number,
			       provider_sid, status, ended_at, created_at, updated_at
			FROM calls
			ORDER BY created_at DESC`
		rows, err = s.db.Query(ctx, query)
	} else {
		const query = `
			SELECT call_id, agent_id, direction, from_number, to_number,
			       provider_sid, status, ended_at, created_at, updated_at
			FROM calls
			WHERE agent_id = $1
			ORDER BY created_at DESC`
		rows, err = s.db.Query(ctx, query, agentID)
	}
	if err != nil {
		return nil, fmt.Errorf("callstore: list: %w", err)
	}
	defer rows.Close()

	var recs []CallRecord
	for rows.Next() {
		var rec CallRecord
		if err := rows.Scan(
			&rec.CallID, &rec.AgentID, &rec.Direction, &rec.FromNumber, &rec.ToNumber,
			&rec.ProviderSID, &rec.Status, &rec.EndedAt, &rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("callstore: list scan: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("callstore: list: %w", err)
	}
	return recs, nil
}

// defaultStatus returns the status value, defaulting to "registered" if empty.
func defaultStatus(s string) string {
	if s == "" {
		return StatusRegistered
	}
	return s
}

// isDuplicateKeyError checks whether a PostgreSQL error is a unique-violation
// (SQLSTATE 23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
