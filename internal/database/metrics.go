package database

import (
	"database/sql"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// SaveMetric persists one counter snapshot so it survives restarts.
func (d *DB) SaveMetric(metricName string, value float64) error {
	query := `
	INSERT OR REPLACE INTO metrics (metric_name, metric_value)
	VALUES (?, ?);`
	_, err := d.conn.Exec(query, metricName, value)
	if err != nil {
		return fmt.Errorf("failed to save metric: %w", err)
	}
	return nil
}

// GetMetric loads a persisted counter value, defaulting to 0 when the
// metric has never been saved.
func (d *DB) GetMetric(metricName string) (float64, error) {
	var value float64
	err := d.conn.QueryRow(
		`SELECT metric_value FROM metrics WHERE metric_name = ?;`,
		metricName).Scan(&value)
	if err == sql.ErrNoRows {
		log.Debugf("metric %s not found in the database, defaulting to 0", metricName)
		return 0, nil
	} else if err != nil {
		return 0, fmt.Errorf("failed to get metric %s: %w", metricName, err)
	}
	return value, nil
}
