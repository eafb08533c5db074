package storage

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/garyellow/osvita-occupancy/internal/config"
	apperrors "github.com/garyellow/osvita-occupancy/internal/errors"
	"github.com/garyellow/osvita-occupancy/internal/occupancy"
)

const (
	settingLinks = "links"
	settingTimes = "times"
)

// SaveOccupancy inserts or replaces the result for rec.Date.
func (db *DB) SaveOccupancy(ctx context.Context, rec *Occupancy, ttl time.Duration) (err error) {
	defer func() { db.record("save_occupancy", err) }()

	if rec == nil || rec.Date == "" {
		return apperrors.NewValidationError("date", "required")
	}
	if ttl <= 0 {
		ttl = config.OccupancyResultTTL
	}
	rooms := rec.Rooms
	if rooms == nil {
		rooms = occupancy.Snapshot{}
	}
	payload, err := json.Marshal(rooms)
	if err != nil {
		return fmt.Errorf("failed to encode occupancy: %w", err)
	}

	now := db.now()
	query := `
		INSERT INTO occupancy_results (date, scan_id, payload, stored_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			scan_id = excluded.scan_id,
			payload = excluded.payload,
			stored_at = excluded.stored_at,
			expires_at = excluded.expires_at
	`
	start := time.Now()
	if _, err = db.conn.ExecContext(ctx, query, rec.Date, rec.ScanID, string(payload), now.Unix(), now.Add(ttl).Unix()); err != nil {
		slog.ErrorContext(ctx, "failed to save occupancy",
			"date", rec.Date,
			"error", err)
		return fmt.Errorf("failed to save occupancy: %w", err)
	}

	// Warn on slow queries (>100ms)
	if d := time.Since(start); d > 100*time.Millisecond {
		slog.WarnContext(ctx, "slow database operation",
			"operation", "SaveOccupancy",
			"duration_ms", d.Milliseconds(),
			"rooms", len(rooms))
	}

	rec.StoredAt = time.Unix(now.Unix(), 0)
	rec.ExpiresAt = time.Unix(now.Add(ttl).Unix(), 0)
	return nil
}

// GetOccupancy returns the live result for date. Expired rows are removed.
func (db *DB) GetOccupancy(ctx context.Context, date string) (_ *Occupancy, err error) {
	defer func() {
		if errors.Is(err, apperrors.ErrNotFound) {
			db.record("get_occupancy", nil)
			return
		}
		db.record("get_occupancy", err)
	}()

	var (
		rec       Occupancy
		scanID    sql.NullString
		payload   string
		storedAt  int64
		expiresAt int64
	)
	query := `SELECT date, scan_id, payload, stored_at, expires_at FROM occupancy_results WHERE date = ?`
	err = db.conn.QueryRowContext(ctx, query, date).Scan(&rec.Date, &scanID, &payload, &storedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query occupancy: %w", err)
	}

	if db.now().Unix() >= expiresAt {
		if _, delErr := db.conn.ExecContext(ctx, `DELETE FROM occupancy_results WHERE date = ? AND expires_at <= ?`, date, expiresAt); delErr != nil {
			slog.WarnContext(ctx, "failed to delete expired occupancy", "date", date, "error", delErr)
		}
		return nil, apperrors.ErrNotFound
	}

	if err = json.Unmarshal([]byte(payload), &rec.Rooms); err != nil {
		return nil, fmt.Errorf("failed to decode occupancy: %w", err)
	}
	rec.ScanID = scanID.String
	rec.StoredAt = time.Unix(storedAt, 0)
	rec.ExpiresAt = time.Unix(expiresAt, 0)
	return &rec, nil
}

// DeleteExpired removes every result past its expiry.
func (db *DB) DeleteExpired(ctx context.Context) (n int64, err error) {
	defer func() { db.record("delete_expired", err) }()

	res, err := db.conn.ExecContext(ctx, `DELETE FROM occupancy_results WHERE expires_at <= ?`, db.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired occupancy: %w", err)
	}
	return res.RowsAffected()
}

// GetLinks returns the links document, empty when never set.
func (db *DB) GetLinks(ctx context.Context) (_ Links, err error) {
	defer func() { db.record("get_links", err) }()

	raw, err := db.getSetting(ctx, db.conn, settingLinks)
	if err != nil {
		return nil, err
	}
	return decodeLinks(raw)
}

// SetLink updates one key of the links document inside a transaction.
func (db *DB) SetLink(ctx context.Context, key string, value json.RawMessage) (err error) {
	defer func() { db.record("set_link", err) }()

	if key == "" {
		return apperrors.NewValidationError("key", "required")
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	raw, err := db.getSetting(ctx, tx, settingLinks)
	if err != nil {
		return err
	}
	links, err := decodeLinks(raw)
	if err != nil {
		return err
	}
	applyLink(links, key, value)

	doc, err := json.Marshal(links)
	if err != nil {
		return fmt.Errorf("failed to encode links: %w", err)
	}
	if err := db.putSetting(ctx, tx, settingLinks, doc); err != nil {
		return err
	}
	return tx.Commit()
}

// GetTimes returns the times document, "{}" when never set.
func (db *DB) GetTimes(ctx context.Context) (_ Times, err error) {
	defer func() { db.record("get_times", err) }()

	raw, err := db.getSetting(ctx, db.conn, settingTimes)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return Times("{}"), nil
	}
	return Times(raw), nil
}

// SetTimes replaces the times document. It must be a JSON object.
func (db *DB) SetTimes(ctx context.Context, times Times) (err error) {
	defer func() { db.record("set_times", err) }()

	doc, err := normalizeTimes(times)
	if err != nil {
		return err
	}
	return db.putSetting(ctx, db.conn, settingTimes, doc)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (db *DB) getSetting(ctx context.Context, q queryer, name string) ([]byte, error) {
	var value string
	err := q.QueryRowContext(ctx, `SELECT value FROM settings WHERE name = ?`, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return []byte(value), nil
}

func (db *DB) putSetting(ctx context.Context, q queryer, name string, value []byte) error {
	query := `
		INSERT INTO settings (name, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := q.ExecContext(ctx, query, name, string(value), db.now().Unix()); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

func decodeLinks(raw []byte) (Links, error) {
	links := Links{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return links, nil
	}
	if err := json.Unmarshal(raw, &links); err != nil {
		return nil, fmt.Errorf("failed to decode links: %w", err)
	}
	if links == nil {
		links = Links{}
	}
	return links, nil
}

func applyLink(links Links, key string, value json.RawMessage) {
	v := bytes.TrimSpace(value)
	if len(v) == 0 || bytes.Equal(v, []byte("null")) {
		delete(links, key)
		return
	}
	links[key] = json.RawMessage(bytes.Clone(v))
}

func normalizeTimes(times Times) ([]byte, error) {
	v := bytes.TrimSpace(times)
	if len(v) == 0 || bytes.Equal(v, []byte("null")) {
		return []byte("{}"), nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(v, &obj); err != nil {
		return nil, apperrors.NewValidationError("times", "must be a JSON object")
	}
	return bytes.Clone(v), nil
}
