// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/guardian/internal/domain/emergency/model"
	"github.com/ManuGH/guardian/internal/persistence/sqlite"
)

const (
	schemaVersion = 2 // v2 adds location_history

	contactsReadTimeout = 2 * time.Second
)

// SqliteStore holds the event log, the contacts table and the location history
// in one SQLite file.
type SqliteStore struct {
	DB *sql.DB
}

func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}

	s := &SqliteStore{DB: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("emergency store: migration failed: %w", err)
	}
	return s, nil
}

func (s *SqliteStore) Close() error {
	return s.DB.Close()
}

func (s *SqliteStore) migrate() error {
	var currentVersion int
	if err := s.DB.QueryRow("PRAGMA user_version").Scan(&currentVersion); err != nil {
		return err
	}
	if currentVersion >= schemaVersion {
		return nil
	}

	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS emergency_log (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		session_id TEXT NOT NULL,
		state TEXT NOT NULL,
		reason TEXT NOT NULL,
		trigger_source TEXT NOT NULL,
		recorded_at_ms INTEGER NOT NULL,
		entry_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_emergency_log_session ON emergency_log(session_id);

	CREATE TABLE IF NOT EXISTS delivery_results (
		log_seq INTEGER NOT NULL REFERENCES emergency_log(seq) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		contact_id TEXT NOT NULL,
		delivered INTEGER NOT NULL,
		reason TEXT,
		PRIMARY KEY (log_seq, position)
	);

	CREATE TABLE IF NOT EXISTS contacts (
		id TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		name TEXT NOT NULL,
		phone TEXT NOT NULL,
		relation TEXT
	);

	CREATE TABLE IF NOT EXISTS location_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		accuracy REAL,
		fixed_at_ms INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_location_fixed ON location_history(fixed_at_ms);
	`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

// Check runs a quick integrity check.
func (s *SqliteStore) Check(ctx context.Context) error {
	issues, err := sqlite.VerifyIntegrity(ctx, s.DB, "quick")
	if err != nil {
		return err
	}
	if len(issues) > 0 {
		return fmt.Errorf("emergency store: integrity check failed: %v", issues)
	}
	return nil
}

// --- Event log ---

// Append stores the entry and its per-contact delivery rows in one transaction.
func (s *SqliteStore) Append(ctx context.Context, entry model.LogEntry) error {
	buf, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("emergency store: encode entry: %w", err)
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO emergency_log (kind, session_id, state, reason, trigger_source, recorded_at_ms, entry_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(entry.Kind),
		entry.Session.ID,
		string(entry.Session.State),
		string(entry.Session.Reason),
		string(entry.Session.TriggerSource),
		entry.RecordedAt.UnixMilli(),
		string(buf),
	)
	if err != nil {
		return fmt.Errorf("emergency store: insert log: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return err
	}

	results := entry.Session.DispatchResults
	if entry.Resend != nil {
		results = entry.Resend.Results
	}
	for i, r := range results {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO delivery_results (log_seq, position, contact_id, delivered, reason)
			VALUES (?, ?, ?, ?, ?)`,
			seq, i, r.ContactID, r.Delivered, string(r.Reason),
		); err != nil {
			return fmt.Errorf("emergency store: insert delivery result: %w", err)
		}
	}
	return tx.Commit()
}

// List returns the newest limit entries in append order. limit <= 0 returns all.
func (s *SqliteStore) List(ctx context.Context, limit int) ([]model.LogEntry, error) {
	query := `SELECT entry_json FROM (SELECT seq, entry_json FROM emergency_log ORDER BY seq DESC LIMIT ?) ORDER BY seq ASC`
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.LogEntry
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var entry model.LogEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, fmt.Errorf("emergency store: decode entry: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// DeliveryStats counts delivered and failed rows for a session across the
// original dispatch and any resends.
func (s *SqliteStore) DeliveryStats(ctx context.Context, sessionID string) (delivered, failed int, err error) {
	err = s.DB.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(d.delivered), 0), COALESCE(SUM(1 - d.delivered), 0)
		FROM delivery_results d JOIN emergency_log l ON l.seq = d.log_seq
		WHERE l.session_id = ?`, sessionID).Scan(&delivered, &failed)
	return delivered, failed, err
}

// --- Contacts ---

// Contacts exposes the contacts table as a ContactStore.
func (s *SqliteStore) Contacts() *SqliteContacts {
	return &SqliteContacts{db: s.DB}
}

type SqliteContacts struct {
	db *sql.DB
}

// List returns contacts in their stored order. The read is bounded by its own timeout.
func (c *SqliteContacts) List(ctx context.Context) ([]model.EmergencyContact, error) {
	ctx, cancel := context.WithTimeout(ctx, contactsReadTimeout)
	defer cancel()

	rows, err := c.db.QueryContext(ctx, `SELECT id, name, phone, COALESCE(relation, '') FROM contacts ORDER BY position ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.EmergencyContact
	for rows.Next() {
		var ct model.EmergencyContact
		if err := rows.Scan(&ct.ID, &ct.Name, &ct.Phone, &ct.Relation); err != nil {
			return nil, err
		}
		out = append(out, ct)
	}
	return out, rows.Err()
}

// Replace overwrites the stored contacts, keeping the given order.
func (c *SqliteContacts) Replace(ctx context.Context, contacts []model.EmergencyContact) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM contacts`); err != nil {
		return err
	}
	for i, ct := range contacts {
		if ct.ID == "" {
			return fmt.Errorf("emergency store: contact at position %d has no id", i)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO contacts (id, position, name, phone, relation) VALUES (?, ?, ?, ?, ?)`,
			ct.ID, i, ct.Name, ct.Phone, ct.Relation,
		); err != nil {
			return fmt.Errorf("emergency store: insert contact %s: %w", ct.ID, err)
		}
	}
	return tx.Commit()
}

// --- Location history ---

// Locations exposes the location history table.
func (s *SqliteStore) Locations() *LocationHistory {
	return &LocationHistory{db: s.DB}
}

type LocationHistory struct {
	db *sql.DB
}

// ErrNoFix is returned by Latest when no location was ever recorded.
var ErrNoFix = errors.New("no recorded location")

func (h *LocationHistory) Record(ctx context.Context, c model.Coordinates) error {
	if !c.Valid() {
		return fmt.Errorf("emergency store: invalid coordinates %.6f,%.6f", c.Latitude, c.Longitude)
	}
	fixedAt := c.FixedAt
	if fixedAt.IsZero() {
		fixedAt = time.Now()
	}
	_, err := h.db.ExecContext(ctx,
		`INSERT INTO location_history (latitude, longitude, accuracy, fixed_at_ms) VALUES (?, ?, ?, ?)`,
		c.Latitude, c.Longitude, c.Accuracy, fixedAt.UnixMilli())
	return err
}

// Latest returns the newest recorded fix.
func (h *LocationHistory) Latest(ctx context.Context) (model.Coordinates, error) {
	var (
		c       model.Coordinates
		fixedAt int64
		acc     sql.NullFloat64
	)
	err := h.db.QueryRowContext(ctx,
		`SELECT latitude, longitude, accuracy, fixed_at_ms FROM location_history ORDER BY fixed_at_ms DESC, id DESC LIMIT 1`,
	).Scan(&c.Latitude, &c.Longitude, &acc, &fixedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Coordinates{}, ErrNoFix
	}
	if err != nil {
		return model.Coordinates{}, err
	}
	c.Accuracy = acc.Float64
	c.FixedAt = time.UnixMilli(fixedAt).UTC()
	return c, nil
}
