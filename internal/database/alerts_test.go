package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricewatch-telegram-bot/internal/types"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newAlert(chatID int64, symbol string) types.Alert {
	return types.Alert{
		ChatID:    chatID,
		Symbol:    symbol,
		Condition: types.ConditionAbove,
		Target:    decimal.RequireFromString("50000"),
		Kind:      types.KindAlert,
		CreatedAt: time.Now(),
	}
}

func TestInsertAndListAlerts(t *testing.T) {
	db := openTestDB(t)

	a, err := db.InsertAlert(newAlert(1, "BTC-USDT"))
	require.NoError(t, err)
	assert.NotZero(t, a.ID)

	b, err := db.InsertAlert(newAlert(1, "ETH-USDT"))
	require.NoError(t, err)
	_, err = db.InsertAlert(newAlert(2, "XRP-USDT"))
	require.NoError(t, err)

	mine, err := db.AlertsByChatID(1)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, a.ID, mine[0].ID)
	assert.Equal(t, b.ID, mine[1].ID)
	assert.Equal(t, "BTC-USDT", mine[0].Symbol)
	assert.True(t, mine[0].Target.Equal(decimal.RequireFromString("50000")))

	all, err := db.AllAlerts()
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestInsertPairSharesGroupID(t *testing.T) {
	db := openTestDB(t)

	alert := newAlert(7, "ETH-USDT")
	alert.GroupID = "group-1"
	stop := newAlert(7, "ETH-USDT")
	stop.Condition = types.ConditionBelow
	stop.Kind = types.KindStopLoss
	stop.GroupID = "group-1"
	stop.Target = decimal.RequireFromString("2800")

	alert, stop, err := db.InsertPair(alert, stop)
	require.NoError(t, err)
	assert.NotZero(t, alert.ID)
	assert.NotZero(t, stop.ID)

	listed, err := db.AlertsByChatID(7)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, listed[0].GroupID, listed[1].GroupID)
	assert.Equal(t, types.KindStopLoss, listed[1].Kind)
}

func TestArchiveAlertMovesRecord(t *testing.T) {
	db := openTestDB(t)

	a, err := db.InsertAlert(newAlert(3, "BTC-USDT"))
	require.NoError(t, err)

	deleted, err := db.ArchiveAlert(a.ID, types.ReasonTriggered)
	require.NoError(t, err)
	assert.Equal(t, a.ID, deleted.ID)
	assert.Equal(t, "BTC-USDT", deleted.Symbol)

	live, err := db.AlertsByChatID(3)
	require.NoError(t, err)
	assert.Empty(t, live)

	archived, err := db.ArchivedByChatID(3)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, types.ReasonTriggered, archived[0].Reason)
	assert.Equal(t, a.ID, archived[0].ID)
}

func TestArchiveAlertTwiceReturnsNotFound(t *testing.T) {
	db := openTestDB(t)

	a, err := db.InsertAlert(newAlert(3, "BTC-USDT"))
	require.NoError(t, err)

	_, err = db.ArchiveAlert(a.ID, types.ReasonUserDeleted)
	require.NoError(t, err)

	_, err = db.ArchiveAlert(a.ID, types.ReasonUserDeleted)
	assert.ErrorIs(t, err, ErrNotFound)

	// Exactly one archive copy exists.
	archived, err := db.ArchivedByChatID(3)
	require.NoError(t, err)
	assert.Len(t, archived, 1)
}

func TestArchiveUnknownIDReturnsNotFound(t *testing.T) {
	db := openTestDB(t)
	_, err := db.ArchiveAlert(999, types.ReasonUserDeleted)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLastViewedRoundTrip(t *testing.T) {
	db := openTestDB(t)

	_, seen, err := db.LastViewed(1, "BTC-USDT")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, db.SetLastViewed(1, "BTC-USDT", 50000))
	require.NoError(t, db.SetLastViewed(1, "BTC-USDT", 51000))

	price, seen, err := db.LastViewed(1, "BTC-USDT")
	require.NoError(t, err)
	require.True(t, seen)
	assert.Equal(t, 51000.0, price)

	// Other chats are unaffected.
	_, seen, err = db.LastViewed(2, "BTC-USDT")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestMetricsRoundTrip(t *testing.T) {
	db := openTestDB(t)

	v, err := db.GetMetric("alerts_fired")
	require.NoError(t, err)
	assert.Zero(t, v)

	require.NoError(t, db.SaveMetric("alerts_fired", 12))
	require.NoError(t, db.SaveMetric("alerts_fired", 15))

	v, err = db.GetMetric("alerts_fired")
	require.NoError(t, err)
	assert.Equal(t, 15.0, v)
}
