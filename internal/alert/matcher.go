package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/go-co-op/gocron"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"pricewatch-telegram-bot/internal/database"
	"pricewatch-telegram-bot/internal/metrics"
	"pricewatch-telegram-bot/internal/types"
	"pricewatch-telegram-bot/lib/helpers"
	"pricewatch-telegram-bot/lib/translation"
)

// AlertSource is what the matcher needs from the alert store.
type AlertSource interface {
	ListAll() ([]types.Alert, error)
	Delete(id int64, reason types.ArchiveReason) (*types.Alert, error)
}

// PriceSource is what the matcher needs from the price layer.
type PriceSource interface {
	SnapshotPrices(ctx context.Context) map[string]float64
	ResolveBatch(ctx context.Context, symbols []string) map[string]float64
}

// Notifier delivers a triggered-alert message to a chat.
type Notifier interface {
	Notify(chatID int64, text string) error
}

// Matcher evaluates all live alerts against current prices on a fixed
// interval and retires triggered ones exactly once. An alert whose
// price cannot be resolved this tick is skipped and re-checked on the
// next tick; the matcher never matches against a stale price.
type Matcher struct {
	store     AlertSource
	prices    PriceSource
	notifier  Notifier
	interval  time.Duration
	scheduler *gocron.Scheduler
}

func NewMatcher(store AlertSource, prices PriceSource, notifier Notifier, interval time.Duration) *Matcher {
	return &Matcher{
		store:    store,
		prices:   prices,
		notifier: notifier,
		interval: interval,
	}
}

// Start schedules the matcher tick. SingletonMode keeps a slow tick
// from overlapping the next one.
func (m *Matcher) Start() error {
	m.scheduler = gocron.NewScheduler(time.UTC)
	_, err := m.scheduler.Every(m.interval).SingletonMode().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.interval)
		defer cancel()
		m.Tick(ctx)
	})
	if err != nil {
		return errors.Wrap(err, "could not schedule alert matcher")
	}

	m.scheduler.StartAsync()
	log.Infof("alert matcher started, checking every %v", m.interval)
	return nil
}

func (m *Matcher) Stop() {
	if m.scheduler != nil {
		m.scheduler.Stop()
	}
}

// Tick runs one matcher pass: fetch the alert universe, resolve
// prices, evaluate, fire and retire.
func (m *Matcher) Tick(ctx context.Context) {
	alerts, err := m.store.ListAll()
	if err != nil {
		log.Errorf("matcher could not fetch alerts: %v", err)
		return
	}
	if len(alerts) == 0 {
		return
	}

	if log.IsLevelEnabled(log.DebugLevel) {
		log.Debug("matcher universe: ", spew.Sdump(alerts))
	}

	snapshot := m.prices.SnapshotPrices(ctx)

	var missing []string
	seen := map[string]bool{}
	for _, a := range alerts {
		if seen[a.Symbol] {
			continue
		}
		seen[a.Symbol] = true
		if _, ok := snapshot[a.Symbol]; !ok {
			missing = append(missing, a.Symbol)
		}
	}
	resolved := m.prices.ResolveBatch(ctx, missing)

	for _, a := range alerts {
		price, ok := snapshot[a.Symbol]
		if !ok {
			if price, ok = resolved[a.Symbol]; !ok {
				log.Debugf("no price for %s this tick, skipping alert %d", a.Symbol, a.ID)
				continue
			}
		}
		m.checkAlert(a, price)
	}
}

// checkAlert evaluates and possibly fires one alert. A panic here must
// not take down the rest of the tick.
func (m *Matcher) checkAlert(a types.Alert, price float64) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("recovered from panic while checking alert %d: %v", a.ID, r)
		}
	}()

	if !a.Triggered(decimal.NewFromFloat(price)) {
		return
	}

	// Retire first: whoever removes the alert from the live set owns
	// the single notification. A concurrent manual delete makes this
	// return ErrNotFound and no notification is sent.
	deleted, err := m.store.Delete(a.ID, types.ReasonTriggered)
	if errors.Is(err, database.ErrNotFound) {
		log.Debugf("alert %d vanished before firing, someone else retired it", a.ID)
		return
	}
	if err != nil {
		log.Errorf("could not retire triggered alert %d: %v", a.ID, err)
		return
	}

	metrics.AlertsFired.Inc()
	log.Infof("alert %d fired: %s %s %s at %.8g", deleted.ID, deleted.Symbol, deleted.Condition, deleted.Target, price)

	if err := m.notifier.Notify(deleted.ChatID, triggerMessage(*deleted, price)); err != nil {
		// Not retried: the alert is retired either way, re-notification
		// would break fire-once.
		log.Errorf("could not notify chat %d about alert %d: %v", deleted.ChatID, deleted.ID, err)
	}
}

func triggerMessage(a types.Alert, price float64) string {
	header := translation.Translate("🚨 *Price Alert Triggered*")
	if a.Kind == types.KindStopLoss {
		header = translation.Translate("🛑 *Stop\\-Loss Triggered*")
	}

	condition := translation.Translate("risen above")
	if a.Condition == types.ConditionBelow {
		condition = translation.Translate("fallen below")
	}

	target, _ := a.Target.Float64()
	return fmt.Sprintf("%s\n\n*%s* has %s your target of *$%s*\nCurrent price: *$%s*",
		header,
		helpers.EscapeMarkdownV2(a.Symbol),
		condition,
		helpers.FormatPriceUS(target, true),
		helpers.FormatPriceUS(price, true),
	)
}
