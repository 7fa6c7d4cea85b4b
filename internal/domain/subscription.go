package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ConditionMode string

const (
	ModeBuy  ConditionMode = "Buy"
	ModeSell ConditionMode = "Sell"
)

type Frequency string

const (
	FrequencyMinuteLevel       Frequency = "MinuteLevel"
	FrequencyExchangeStartOnly Frequency = "ExchangeStartOnly"
)

type Session string

const (
	SessionRegular  Session = "regular"
	SessionExtended Session = "extended"
)

// PushIdentity is the transport credential bundle for one browser push
// subscription. It is passed through untouched.
type PushIdentity struct {
	Endpoint string
	P256dh   string
	Auth     string
}

// Condition is one user-defined rule on a subscription. FirstNotificationSent
// only ever moves from false to true.
type Condition struct {
	ID                    string
	Mode                  ConditionMode
	ConditionName         string
	Frequency             Frequency
	Session               Session
	TargetPrice           *decimal.Decimal
	FirstNotificationSent bool
}

type Subscription struct {
	ID            string
	TerminalID    string
	Push          PushIdentity
	ExchangeID    string
	TickerID      string
	ConditionList []Condition
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SelectAll matches every subscription regardless of push endpoint.
const SelectAll = "all"

func (s Subscription) Matches(selector string) bool {
	return selector == "" || selector == SelectAll || s.Push.Endpoint == selector
}

// PendingConditions returns the conditions that have not fired yet.
func (s Subscription) PendingConditions() []Condition {
	pending := make([]Condition, 0, len(s.ConditionList))
	for _, c := range s.ConditionList {
		if !c.FirstNotificationSent {
			pending = append(pending, c)
		}
	}
	return pending
}
