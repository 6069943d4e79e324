package database

import (
	"database/sql"
	"fmt"
	"time"
)

// LastViewed returns the price last shown to this chat for symbol.
// The second result is false when the chat has never seen the symbol.
func (d *DB) LastViewed(chatID int64, symbol string) (float64, bool, error) {
	var price float64
	err := d.conn.QueryRow(
		`SELECT price FROM last_alert_views WHERE chat_id = ? AND symbol = ?;`,
		chatID, symbol).Scan(&price)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to query last viewed price: %w", err)
	}
	return price, true, nil
}

// SetLastViewed records the price just displayed to a chat for symbol.
func (d *DB) SetLastViewed(chatID int64, symbol string, price float64) error {
	_, err := d.conn.Exec(`
	INSERT OR REPLACE INTO last_alert_views (chat_id, symbol, price, viewed_at)
	VALUES (?, ?, ?, ?);`,
		chatID, symbol, price, formatTimestamp(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to save last viewed price: %w", err)
	}
	return nil
}
