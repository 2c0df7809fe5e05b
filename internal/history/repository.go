package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/que-core/internal/attribute"
	"github.com/nerrad567/que-core/internal/system"
)

const (
	defaultLimit = 50
	maxLimit     = 500

	// timeFormat is fixed-width so stored timestamps sort lexically.
	timeFormat = "2006-01-02T15:04:05.000000000Z"
)

// Command outcomes stored in command_log.
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// ErrSerialRequired is returned when a query or record has no serial.
var ErrSerialRequired = errors.New("history: serial is required")

// Entry is one stored attribute transition.
type Entry struct {
	ID        int64           `json:"id"`
	Serial    string          `json:"serial"`
	Path      string          `json:"path"`
	Kind      string          `json:"kind"`
	Old       attribute.Value `json:"old"`
	New       attribute.Value `json:"new"`
	Created   bool            `json:"created,omitempty"`
	ChangedAt time.Time       `json:"changed_at"`
}

// CommandRecord is one stored command and its outcome.
type CommandRecord struct {
	ID        string          `json:"id"`
	Serial    string          `json:"serial"`
	Path      string          `json:"path"`
	Key       string          `json:"key"`
	Value     attribute.Value `json:"value"`
	Status    string          `json:"status"`
	Error     string          `json:"error,omitempty"`
	Source    string          `json:"source"`
	CreatedAt time.Time       `json:"created_at"`
}

// Query selects history entries. Serial is required; Path matches exactly
// and Prefix matches the start of the path. Results are newest first.
type Query struct {
	Serial string
	Path   string
	Prefix string
	Since  time.Time
	Limit  int
}

// Repository stores attribute history and the command log in SQLite.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repository on an open, migrated database.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// RecordChanges stores changes for serial in one transaction.
func (r *Repository) RecordChanges(ctx context.Context, serial string, changes []attribute.Change) error {
	if serial == "" {
		return ErrSerialRequired
	}
	if len(changes) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO attribute_history (serial, path, kind, old_value, new_value, created, changed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, ch := range changes {
		oldJSON, err := json.Marshal(ch.Old)
		if err != nil {
			return fmt.Errorf("encoding old value of %s: %w", ch.Path, err)
		}
		newJSON, err := json.Marshal(ch.New)
		if err != nil {
			return fmt.Errorf("encoding new value of %s: %w", ch.Path, err)
		}
		at := ch.At
		if at.IsZero() {
			at = time.Now()
		}
		if _, err := stmt.ExecContext(ctx,
			serial, ch.Path, ch.New.Kind().String(),
			string(oldJSON), string(newJSON), ch.Created,
			at.UTC().Format(timeFormat),
		); err != nil {
			return fmt.Errorf("inserting history for %s: %w", ch.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing history: %w", err)
	}
	return nil
}

// History returns entries matching q, newest first.
func (r *Repository) History(ctx context.Context, q Query) ([]Entry, error) {
	if q.Serial == "" {
		return nil, ErrSerialRequired
	}
	limit := clampLimit(q.Limit)

	var (
		where = []string{"serial = ?"}
		args  = []any{q.Serial}
	)
	if q.Path != "" {
		where = append(where, "path = ?")
		args = append(args, q.Path)
	}
	if q.Prefix != "" {
		where = append(where, "substr(path, 1, ?) = ?")
		args = append(args, len(q.Prefix), q.Prefix)
	}
	if !q.Since.IsZero() {
		where = append(where, "changed_at >= ?")
		args = append(args, q.Since.UTC().Format(timeFormat))
	}
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, serial, path, kind, old_value, new_value, created, changed_at
		FROM attribute_history
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY changed_at DESC, id DESC
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, min(limit, defaultLimit))
	for rows.Next() {
		var (
			e                Entry
			oldJSON, newJSON sql.NullString
			changedAt        string
		)
		if err := rows.Scan(&e.ID, &e.Serial, &e.Path, &e.Kind, &oldJSON, &newJSON, &e.Created, &changedAt); err != nil {
			return nil, fmt.Errorf("scanning history: %w", err)
		}
		if e.Old, err = decodeValue(oldJSON); err != nil {
			return nil, err
		}
		if e.New, err = decodeValue(newJSON); err != nil {
			return nil, err
		}
		if e.ChangedAt, err = time.Parse(timeFormat, changedAt); err != nil {
			return nil, fmt.Errorf("parsing changed_at: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history: %w", err)
	}
	return entries, nil
}

// Prune deletes history entries older than olderThan.
func (r *Repository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("history: prune window must be positive")
	}
	cutoff := time.Now().UTC().Add(-olderThan).Format(timeFormat)
	res, err := r.db.ExecContext(ctx, "DELETE FROM attribute_history WHERE changed_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// RecordCommand stores cmd with the outcome of sending it. sendErr nil
// means the command was accepted.
func (r *Repository) RecordCommand(ctx context.Context, cmd system.Command, sendErr error, source string) error {
	if cmd.Serial == "" {
		return ErrSerialRequired
	}
	if source == "" {
		source = "api"
	}
	status, errText := StatusSent, ""
	if sendErr != nil {
		status, errText = StatusFailed, sendErr.Error()
	}
	valueJSON, err := json.Marshal(cmd.Value)
	if err != nil {
		return fmt.Errorf("encoding command value: %w", err)
	}
	created := cmd.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO command_log (id, serial, path, command_key, value, status, error, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cmd.ID, cmd.Serial, cmd.Path, cmd.Key, string(valueJSON),
		status, nullString(errText), source, created.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting command: %w", err)
	}
	return nil
}

// Commands returns the most recent commands for serial, newest first.
func (r *Repository) Commands(ctx context.Context, serial string, limit int) ([]CommandRecord, error) {
	if serial == "" {
		return nil, ErrSerialRequired
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, serial, path, command_key, value, status, error, source, created_at
		FROM command_log
		WHERE serial = ?
		ORDER BY created_at DESC
		LIMIT ?`, serial, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying commands: %w", err)
	}
	defer rows.Close()

	var records []CommandRecord
	for rows.Next() {
		var (
			c         CommandRecord
			valueJSON sql.NullString
			errText   sql.NullString
			createdAt string
		)
		if err := rows.Scan(&c.ID, &c.Serial, &c.Path, &c.Key, &valueJSON, &c.Status, &errText, &c.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning command: %w", err)
		}
		if c.Value, err = decodeValue(valueJSON); err != nil {
			return nil, err
		}
		c.Error = errText.String
		if c.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		records = append(records, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating commands: %w", err)
	}
	return records, nil
}

func decodeValue(s sql.NullString) (attribute.Value, error) {
	if !s.Valid || s.String == "" {
		return attribute.Null(), nil
	}
	var v attribute.Value
	if err := json.Unmarshal([]byte(s.String), &v); err != nil {
		return attribute.Null(), fmt.Errorf("decoding stored value: %w", err)
	}
	return v, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return defaultLimit
	case n > maxLimit:
		return maxLimit
	}
	return n
}
