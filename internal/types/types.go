package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Condition says on which side of the target an alert fires.
type Condition string

const (
	ConditionAbove Condition = "above"
	ConditionBelow Condition = "below"
)

// Kind distinguishes a plain alert from the stop-loss half of a pair.
type Kind string

const (
	KindAlert    Kind = "alert"
	KindStopLoss Kind = "stop_loss"
)

// ArchiveReason records why an alert left the live set.
type ArchiveReason string

const (
	ReasonUserDeleted ArchiveReason = "user_deleted"
	ReasonTriggered   ArchiveReason = "triggered"
)

// Alert is a live price alert. GroupID is empty for standalone alerts
// and shared by exactly one alert/stop_loss pair created together.
type Alert struct {
	ID        int64           `json:"id"`
	ChatID    int64           `json:"chat_id"`
	Symbol    string          `json:"symbol"`
	Condition Condition       `json:"condition"`
	Target    decimal.Decimal `json:"target"`
	Kind      Kind            `json:"kind"`
	GroupID   string          `json:"group_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Triggered reports whether price satisfies the alert condition.
// An `above` alert fires strictly above target, `below` strictly below.
func (a Alert) Triggered(price decimal.Decimal) bool {
	if a.Condition == ConditionAbove {
		return price.GreaterThan(a.Target)
	}
	return price.LessThan(a.Target)
}
