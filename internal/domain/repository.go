package domain

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("not found")

type SubscriptionLister interface {
	List(ctx context.Context) ([]Subscription, error)
}

type SubscriptionRepository interface {
	SubscriptionLister
	GetByID(ctx context.Context, id string) (*Subscription, error)
	// UpdateConditions replaces only the condition list of the record and
	// refreshes its update timestamp.
	UpdateConditions(ctx context.Context, id string, conditions []Condition) (*Subscription, error)
}
