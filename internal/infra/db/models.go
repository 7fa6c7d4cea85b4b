package db

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type subscriptionModel struct {
	ID                     string `gorm:"primaryKey"`
	TerminalID             string `gorm:"index;not null"`
	SubscriptionEndpoint   string `gorm:"index;not null"`
	SubscriptionKeysP256dh string `gorm:"not null"`
	SubscriptionKeysAuth   string `gorm:"not null"`
	ExchangeID             string `gorm:"not null"`
	TickerID               string `gorm:"not null"`
	ConditionList          datatypes.JSONType[[]conditionModel]
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

func (subscriptionModel) TableName() string {
	return "finance_notifications"
}

// conditionModel is the JSON shape of one entry in the condition_list column.
type conditionModel struct {
	ID                    string     `json:"id"`
	Mode                  string     `json:"mode"`
	ConditionName         string     `json:"conditionName"`
	Frequency             string     `json:"frequency"`
	Session               string     `json:"session"`
	TargetPrice           *jsonPrice `json:"targetPrice"`
	FirstNotificationSent bool       `json:"firstNotificationSent"`
}

// jsonPrice keeps targetPrice a bare JSON number, the form the subscription
// editor writes. Quoted decimals are still accepted on read.
type jsonPrice struct {
	decimal.Decimal
}

func (p jsonPrice) MarshalJSON() ([]byte, error) {
	return []byte(p.Decimal.String()), nil
}

func (p *jsonPrice) UnmarshalJSON(data []byte) error {
	return p.Decimal.UnmarshalJSON(data)
}

func newJSONPrice(d *decimal.Decimal) *jsonPrice {
	if d == nil {
		return nil
	}
	return &jsonPrice{Decimal: *d}
}

func (p *jsonPrice) value() *decimal.Decimal {
	if p == nil {
		return nil
	}
	d := p.Decimal
	return &d
}
