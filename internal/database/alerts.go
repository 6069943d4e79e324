package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"pricewatch-telegram-bot/internal/types"
)

// ErrNotFound is returned when an alert id no longer exists in the
// live set, typically because a concurrent delete or firing won.
var ErrNotFound = errors.New("alert not found")

// ArchivedAlert is a retired alert together with why it was retired.
type ArchivedAlert struct {
	types.Alert
	Reason     types.ArchiveReason
	ArchivedAt time.Time
}

const alertColumns = `id, chat_id, symbol, condition, target, kind, group_id, created_at`

// InsertAlert persists one alert and returns it with its assigned id.
func (d *DB) InsertAlert(a types.Alert) (types.Alert, error) {
	query := `
	INSERT INTO alerts (chat_id, symbol, condition, target, kind, group_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?);`

	res, err := d.conn.Exec(query, a.ChatID, a.Symbol, string(a.Condition),
		a.Target.String(), string(a.Kind), a.GroupID, formatTimestamp(a.CreatedAt))
	if err != nil {
		return types.Alert{}, fmt.Errorf("failed to insert alert: %w", err)
	}

	a.ID, err = res.LastInsertId()
	if err != nil {
		return types.Alert{}, fmt.Errorf("failed to read inserted alert id: %w", err)
	}
	return a, nil
}

// InsertPair persists a linked alert/stop-loss pair in one
// transaction: either both become visible or neither does.
func (d *DB) InsertPair(alert, stopLoss types.Alert) (types.Alert, types.Alert, error) {
	tx, err := d.conn.Begin()
	if err != nil {
		return types.Alert{}, types.Alert{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
	INSERT INTO alerts (chat_id, symbol, condition, target, kind, group_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?);`

	for _, a := range []*types.Alert{&alert, &stopLoss} {
		res, err := tx.Exec(query, a.ChatID, a.Symbol, string(a.Condition),
			a.Target.String(), string(a.Kind), a.GroupID, formatTimestamp(a.CreatedAt))
		if err != nil {
			return types.Alert{}, types.Alert{}, fmt.Errorf("failed to insert paired alert: %w", err)
		}
		if a.ID, err = res.LastInsertId(); err != nil {
			return types.Alert{}, types.Alert{}, fmt.Errorf("failed to read inserted alert id: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return types.Alert{}, types.Alert{}, fmt.Errorf("failed to commit paired alerts: %w", err)
	}
	return alert, stopLoss, nil
}

// AlertsByChatID fetches all live alerts for one chat in insertion order.
func (d *DB) AlertsByChatID(chatID int64) ([]types.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE chat_id = ? ORDER BY id;`

	rows, err := d.conn.Query(query, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts for chat %d: %w", chatID, err)
	}
	defer rows.Close()
	return scanAlerts(rows)
}

// AllAlerts fetches the full live alert set in insertion order.
func (d *DB) AllAlerts() ([]types.Alert, error) {
	rows, err := d.conn.Query(`SELECT ` + alertColumns + ` FROM alerts ORDER BY id;`)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()
	return scanAlerts(rows)
}

// ArchiveAlert copies the alert into the archive with the given reason
// and removes it from the live set, all in one transaction. It returns
// ErrNotFound when the id is already gone, which callers treat as
// "someone else retired it first".
func (d *DB) ArchiveAlert(id int64, reason types.ArchiveReason) (*types.Alert, error) {
	tx, err := d.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRow(`SELECT `+alertColumns+` FROM alerts WHERE id = ?;`, id)
	a, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load alert %d: %w", id, err)
	}

	_, err = tx.Exec(`
	INSERT INTO alerts_archive (id, chat_id, symbol, condition, target, kind, group_id, created_at, reason, archived_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		a.ID, a.ChatID, a.Symbol, string(a.Condition), a.Target.String(),
		string(a.Kind), a.GroupID, formatTimestamp(a.CreatedAt),
		string(reason), formatTimestamp(time.Now()))
	if err != nil {
		return nil, fmt.Errorf("failed to archive alert %d: %w", id, err)
	}

	res, err := tx.Exec(`DELETE FROM alerts WHERE id = ?;`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to delete alert %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit alert archival: %w", err)
	}
	return &a, nil
}

// ArchivedByChatID fetches archived alerts for a chat, newest first.
func (d *DB) ArchivedByChatID(chatID int64) ([]ArchivedAlert, error) {
	query := `
	SELECT id, chat_id, symbol, condition, target, kind, group_id, created_at, reason, archived_at
	FROM alerts_archive WHERE chat_id = ? ORDER BY archived_at DESC;`

	rows, err := d.conn.Query(query, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to query archive for chat %d: %w", chatID, err)
	}
	defer rows.Close()

	var archived []ArchivedAlert
	for rows.Next() {
		var (
			a                     ArchivedAlert
			condition, target     string
			kind, reason          string
			createdAt, archivedAt string
		)
		if err := rows.Scan(&a.ID, &a.ChatID, &a.Symbol, &condition, &target,
			&kind, &a.GroupID, &createdAt, &reason, &archivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan archive row: %w", err)
		}
		a.Condition = types.Condition(condition)
		a.Kind = types.Kind(kind)
		a.Reason = types.ArchiveReason(reason)
		a.CreatedAt = parseTimestamp(createdAt)
		a.ArchivedAt = parseTimestamp(archivedAt)
		if a.Target, err = decimal.NewFromString(target); err != nil {
			return nil, fmt.Errorf("failed to parse archived target %q: %w", target, err)
		}
		archived = append(archived, a)
	}
	return archived, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row rowScanner) (types.Alert, error) {
	var (
		a                 types.Alert
		condition, target string
		kind, createdAt   string
	)
	err := row.Scan(&a.ID, &a.ChatID, &a.Symbol, &condition, &target, &kind, &a.GroupID, &createdAt)
	if err != nil {
		return types.Alert{}, err
	}
	a.Condition = types.Condition(condition)
	a.Kind = types.Kind(kind)
	a.CreatedAt = parseTimestamp(createdAt)
	if a.Target, err = decimal.NewFromString(target); err != nil {
		return types.Alert{}, fmt.Errorf("failed to parse target %q: %w", target, err)
	}
	return a, nil
}

func scanAlerts(rows *sql.Rows) ([]types.Alert, error) {
	var alerts []types.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert row: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}
