package alertstore

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"pricewatch-telegram-bot/internal/database"
	"pricewatch-telegram-bot/internal/types"
)

type chatEntry struct {
	alerts    []types.Alert
	fetchedAt time.Time
}

// Store is the alert data store: sqlite underneath, a read-through
// TTL cache per chat plus one for the full set on top. Every write
// invalidates the affected entries before returning, so a read right
// after a successful write always sees the write. Staleness beyond the
// TTL is fine, staleness past a write is not.
type Store struct {
	db  *database.DB
	ttl time.Duration
	now func() time.Time

	mu         sync.Mutex
	byChat     map[int64]chatEntry
	all        []types.Alert
	allFetched time.Time
	allValid   bool
}

func New(db *database.DB, ttl time.Duration) *Store {
	return &Store{
		db:     db,
		ttl:    ttl,
		now:    time.Now,
		byChat: map[int64]chatEntry{},
	}
}

// ListForChat returns the chat's live alerts, from cache when fresh.
// The returned slice is shared and must not be mutated.
func (s *Store) ListForChat(chatID int64) ([]types.Alert, error) {
	s.mu.Lock()
	if e, ok := s.byChat[chatID]; ok && s.now().Sub(e.fetchedAt) < s.ttl {
		s.mu.Unlock()
		return e.alerts, nil
	}
	s.mu.Unlock()

	alerts, err := s.db.AlertsByChatID(chatID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.byChat[chatID] = chatEntry{alerts: alerts, fetchedAt: s.now()}
	s.mu.Unlock()
	return alerts, nil
}

// ListAll returns the full live alert set, from cache when fresh. Only
// the matcher reads this.
func (s *Store) ListAll() ([]types.Alert, error) {
	s.mu.Lock()
	if s.allValid && s.now().Sub(s.allFetched) < s.ttl {
		alerts := s.all
		s.mu.Unlock()
		return alerts, nil
	}
	s.mu.Unlock()

	alerts, err := s.db.AllAlerts()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.all = alerts
	s.allFetched = s.now()
	s.allValid = true
	s.mu.Unlock()
	return alerts, nil
}

// Invalidate drops the chat's cache entry and marks the global entry
// stale. Called synchronously from every create and delete.
func (s *Store) Invalidate(chatID int64) {
	s.mu.Lock()
	delete(s.byChat, chatID)
	s.allValid = false
	s.mu.Unlock()
}

// Create inserts one standalone alert and invalidates caches before
// reporting success.
func (s *Store) Create(chatID int64, symbol string, condition types.Condition, target decimal.Decimal) (types.Alert, error) {
	a, err := s.db.InsertAlert(types.Alert{
		ChatID:    chatID,
		Symbol:    symbol,
		Condition: condition,
		Target:    target,
		Kind:      types.KindAlert,
		CreatedAt: s.now(),
	})
	if err != nil {
		return types.Alert{}, err
	}

	s.Invalidate(chatID)
	log.Debugf("alert %d created for chat %d: %s %s %s", a.ID, chatID, symbol, condition, target)
	return a, nil
}

// CreatePair inserts a linked alert plus stop-loss atomically. The
// stop-loss watches the opposite side of the market with its own
// target and fires independently; only creation and display treat the
// two as a unit.
func (s *Store) CreatePair(chatID int64, symbol string, condition types.Condition, target, stopTarget decimal.Decimal) (types.Alert, types.Alert, error) {
	groupID := uuid.NewString()
	now := s.now()

	stopCondition := types.ConditionBelow
	if condition == types.ConditionBelow {
		stopCondition = types.ConditionAbove
	}

	alert := types.Alert{
		ChatID:    chatID,
		Symbol:    symbol,
		Condition: condition,
		Target:    target,
		Kind:      types.KindAlert,
		GroupID:   groupID,
		CreatedAt: now,
	}
	stopLoss := types.Alert{
		ChatID:    chatID,
		Symbol:    symbol,
		Condition: stopCondition,
		Target:    stopTarget,
		Kind:      types.KindStopLoss,
		GroupID:   groupID,
		CreatedAt: now,
	}

	alert, stopLoss, err := s.db.InsertPair(alert, stopLoss)
	if err != nil {
		return types.Alert{}, types.Alert{}, err
	}

	s.Invalidate(chatID)
	log.Debugf("paired alerts %d/%d created for chat %d on %s", alert.ID, stopLoss.ID, chatID, symbol)
	return alert, stopLoss, nil
}

// Delete archives the alert with the given reason and removes it from
// the live set, invalidating the owner's cache on success. It returns
// database.ErrNotFound when the alert is already gone.
func (s *Store) Delete(id int64, reason types.ArchiveReason) (*types.Alert, error) {
	deleted, err := s.db.ArchiveAlert(id, reason)
	if err != nil {
		return nil, err
	}

	s.Invalidate(deleted.ChatID)
	return deleted, nil
}
