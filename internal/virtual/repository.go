package virtual

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Repository stores device identity settings.
type Repository interface {
	List(ctx context.Context) ([]Entry, error)
	Get(ctx context.Context, localID string) (Entry, error)
	Upsert(ctx context.Context, e Entry) error
	Delete(ctx context.Context, localIDs ...string) (int64, error)
}

// SQLiteRepository implements Repository and ValueStore using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// List returns every settings entry ordered by local id.
func (r *SQLiteRepository) List(ctx context.Context) ([]Entry, error) {
	const query = `SELECT local_id, class_and_vrm_instance FROM device_settings ORDER BY local_id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing device settings: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device settings: %w", err)
	}
	return entries, nil
}

// Get returns the entry for localID or ErrEntryNotFound.
func (r *SQLiteRepository) Get(ctx context.Context, localID string) (Entry, error) {
	const query = `SELECT local_id, class_and_vrm_instance FROM device_settings WHERE local_id = ?`
	e, err := scanEntry(r.db.QueryRowContext(ctx, query, localID))
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrEntryNotFound
	}
	return e, err
}

// Upsert inserts or replaces the entry.
func (r *SQLiteRepository) Upsert(ctx context.Context, e Entry) error {
	const query = `INSERT INTO device_settings (local_id, class_and_vrm_instance)
		VALUES (?, ?)
		ON CONFLICT(local_id) DO UPDATE SET
			class_and_vrm_instance = excluded.class_and_vrm_instance,
			updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')`
	if _, err := r.db.ExecContext(ctx, query, e.LocalID, nullIfEmpty(e.ClassAndVrmInstance)); err != nil {
		return fmt.Errorf("upserting device setting %s: %w", e.LocalID, err)
	}
	return nil
}

// Delete removes the entries and their stored values. It returns the
// number of settings rows removed.
func (r *SQLiteRepository) Delete(ctx context.Context, localIDs ...string) (int64, error) {
	if len(localIDs) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(localIDs)), ",")
	args := make([]any, len(localIDs))
	for i, id := range localIDs {
		args[i] = id
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning delete: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM device_values WHERE local_id IN (`+placeholders+`)`, args...); err != nil {
		return 0, fmt.Errorf("deleting device values: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM device_settings WHERE local_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting device settings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted settings: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing delete: %w", err)
	}
	return n, nil
}

// SaveValues replaces the stored values of localID.
func (r *SQLiteRepository) SaveValues(ctx context.Context, localID string, values map[string]any) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning save: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM device_values WHERE local_id = ?`, localID); err != nil {
		return fmt.Errorf("clearing values for %s: %w", localID, err)
	}
	const insert = `INSERT INTO device_values (local_id, path, value_json) VALUES (?, ?, ?)`
	for path, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encoding %s%s: %w", localID, path, err)
		}
		if _, err := tx.ExecContext(ctx, insert, localID, path, string(data)); err != nil {
			return fmt.Errorf("storing %s%s: %w", localID, path, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing values for %s: %w", localID, err)
	}
	return nil
}

// LoadValues returns the stored values of localID, empty if none.
func (r *SQLiteRepository) LoadValues(ctx context.Context, localID string) (map[string]any, error) {
	const query = `SELECT path, value_json FROM device_values WHERE local_id = ?`
	rows, err := r.db.QueryContext(ctx, query, localID)
	if err != nil {
		return nil, fmt.Errorf("loading values for %s: %w", localID, err)
	}
	defer rows.Close()

	values := make(map[string]any)
	for rows.Next() {
		var path, raw string
		if err := rows.Scan(&path, &raw); err != nil {
			return nil, fmt.Errorf("scanning value: %w", err)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("decoding %s%s: %w", localID, path, err)
		}
		values[path] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating values: %w", err)
	}
	return values, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e     Entry
		value sql.NullString
	)
	if err := s.Scan(&e.LocalID, &value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("scanning device setting: %w", err)
	}
	e.ClassAndVrmInstance = value.String
	return e, nil
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
