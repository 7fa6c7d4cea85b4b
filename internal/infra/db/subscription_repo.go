package db

import (
	"context"
	"errors"
	"time"

	"github.com/NasaVasa/pushwatch/internal/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type SubscriptionRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db, now: time.Now}
}

func (r *SubscriptionRepository) List(ctx context.Context) ([]domain.Subscription, error) {
	var models []subscriptionModel
	if err := r.db.WithContext(ctx).Order("id").Find(&models).Error; err != nil {
		return nil, err
	}
	subs := make([]domain.Subscription, 0, len(models))
	for _, model := range models {
		subs = append(subs, mapSubscriptionToDomain(model))
	}
	return subs, nil
}

func (r *SubscriptionRepository) GetByID(ctx context.Context, id string) (*domain.Subscription, error) {
	var model subscriptionModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	sub := mapSubscriptionToDomain(model)
	return &sub, nil
}

// UpdateConditions writes condition_list and updated_at only. updated_at is
// kept strictly increasing even when the clock has not moved.
func (r *SubscriptionRepository) UpdateConditions(ctx context.Context, id string, conditions []domain.Condition) (*domain.Subscription, error) {
	var updated subscriptionModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current subscriptionModel
		if err := tx.Select("id", "updated_at").First(&current, "id = ?", id).Error; err != nil {
			return err
		}

		result := tx.Model(&subscriptionModel{}).Where("id = ?", id).Updates(map[string]any{
			"condition_list": datatypes.NewJSONType(mapConditionsToModel(conditions)),
			"updated_at":     nextUpdateTime(current.UpdatedAt, r.now()),
		})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.First(&updated, "id = ?", id).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	sub := mapSubscriptionToDomain(updated)
	return &sub, nil
}

func nextUpdateTime(previous, now time.Time) time.Time {
	now = now.UTC().Truncate(time.Microsecond)
	if !now.After(previous) {
		return previous.UTC().Add(time.Millisecond)
	}
	return now
}

func mapSubscriptionToDomain(model subscriptionModel) domain.Subscription {
	return domain.Subscription{
		ID:         model.ID,
		TerminalID: model.TerminalID,
		Push: domain.PushIdentity{
			Endpoint: model.SubscriptionEndpoint,
			P256dh:   model.SubscriptionKeysP256dh,
			Auth:     model.SubscriptionKeysAuth,
		},
		ExchangeID:    model.ExchangeID,
		TickerID:      model.TickerID,
		ConditionList: mapConditionsToDomain(model.ConditionList.Data()),
		CreatedAt:     model.CreatedAt,
		UpdatedAt:     model.UpdatedAt,
	}
}

func mapConditionsToDomain(models []conditionModel) []domain.Condition {
	conditions := make([]domain.Condition, 0, len(models))
	for _, model := range models {
		conditions = append(conditions, domain.Condition{
			ID:                    model.ID,
			Mode:                  domain.ConditionMode(model.Mode),
			ConditionName:         model.ConditionName,
			Frequency:             domain.Frequency(model.Frequency),
			Session:               domain.Session(model.Session),
			TargetPrice:           model.TargetPrice.value(),
			FirstNotificationSent: model.FirstNotificationSent,
		})
	}
	return conditions
}

func mapConditionsToModel(conditions []domain.Condition) []conditionModel {
	models := make([]conditionModel, 0, len(conditions))
	for _, condition := range conditions {
		models = append(models, conditionModel{
			ID:                    condition.ID,
			Mode:                  string(condition.Mode),
			ConditionName:         condition.ConditionName,
			Frequency:             string(condition.Frequency),
			Session:               string(condition.Session),
			TargetPrice:           newJSONPrice(condition.TargetPrice),
			FirstNotificationSent: condition.FirstNotificationSent,
		})
	}
	return models
}

var _ domain.SubscriptionRepository = (*SubscriptionRepository)(nil)
