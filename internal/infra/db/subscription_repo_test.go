package db

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/NasaVasa/pushwatch/internal/domain"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

var (
	created = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	touched = time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
)

func seedSubscription(t *testing.T, db *gorm.DB, id string, conditions []conditionModel) {
	t.Helper()
	model := subscriptionModel{
		ID:                     id,
		TerminalID:             "terminal-1",
		SubscriptionEndpoint:   "https://push.example.com/" + id,
		SubscriptionKeysP256dh: "p256dh",
		SubscriptionKeysAuth:   "auth",
		ExchangeID:             "NASDAQ",
		TickerID:               "AAPL",
		ConditionList:          datatypes.NewJSONType(conditions),
		CreatedAt:              created,
		UpdatedAt:              touched,
	}
	if err := db.Create(&model).Error; err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
}

func TestSubscriptionRepositoryListAndGet(t *testing.T) {
	db := newTestDB(t)
	target := decimal.NewFromInt(100)
	seedSubscription(t, db, "sub-2", nil)
	seedSubscription(t, db, "sub-1", []conditionModel{
		{ID: "c1", Mode: "Buy", ConditionName: "GreaterThan", Frequency: "MinuteLevel", Session: "regular", TargetPrice: newJSONPrice(&target)},
		{ID: "c2", Mode: "Sell", ConditionName: "NewHigh", Frequency: "ExchangeStartOnly", Session: "extended", FirstNotificationSent: true},
	})

	repo := NewSubscriptionRepository(db)
	ctx := context.Background()

	subs, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(subs) != 2 || subs[0].ID != "sub-1" || subs[1].ID != "sub-2" {
		t.Fatalf("unexpected list %+v", subs)
	}

	sub, err := repo.GetByID(ctx, "sub-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if sub.Push.Endpoint != "https://push.example.com/sub-1" || sub.Push.P256dh != "p256dh" || sub.Push.Auth != "auth" {
		t.Errorf("unexpected push identity %+v", sub.Push)
	}
	if len(sub.ConditionList) != 2 {
		t.Fatalf("expected 2 conditions, got %d", len(sub.ConditionList))
	}
	first := sub.ConditionList[0]
	if first.TargetPrice == nil || !first.TargetPrice.Equal(target) || first.Frequency != domain.FrequencyMinuteLevel {
		t.Errorf("unexpected first condition %+v", first)
	}
	if second := sub.ConditionList[1]; second.TargetPrice != nil || !second.FirstNotificationSent {
		t.Errorf("unexpected second condition %+v", second)
	}

	empty, err := repo.GetByID(ctx, "sub-2")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if empty.ConditionList == nil || len(empty.ConditionList) != 0 {
		t.Errorf("expected empty non-nil condition list, got %#v", empty.ConditionList)
	}

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSubscriptionRepositoryUpdateConditions(t *testing.T) {
	db := newTestDB(t)
	seedSubscription(t, db, "sub-1", []conditionModel{
		{ID: "c1", Mode: "Buy", ConditionName: "NewLow", Frequency: "MinuteLevel", Session: "regular"},
		{ID: "c2", Mode: "Buy", ConditionName: "PriceDown", Frequency: "MinuteLevel", Session: "regular"},
	})

	repo := NewSubscriptionRepository(db)
	now := time.Date(2025, 1, 3, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }
	ctx := context.Background()

	updated, err := repo.UpdateConditions(ctx, "sub-1", []domain.Condition{
		{ID: "c2", Mode: domain.ModeBuy, ConditionName: "PriceDown", Frequency: domain.FrequencyMinuteLevel, Session: domain.SessionRegular, FirstNotificationSent: true},
	})
	if err != nil {
		t.Fatalf("UpdateConditions failed: %v", err)
	}
	if len(updated.ConditionList) != 1 || updated.ConditionList[0].ID != "c2" || !updated.ConditionList[0].FirstNotificationSent {
		t.Fatalf("unexpected conditions %+v", updated.ConditionList)
	}
	if !updated.UpdatedAt.Equal(now) {
		t.Errorf("expected updated_at %v, got %v", now, updated.UpdatedAt)
	}
	if !updated.CreatedAt.Equal(created) {
		t.Errorf("created_at changed to %v", updated.CreatedAt)
	}
	if updated.TickerID != "AAPL" || updated.Push.Endpoint != "https://push.example.com/sub-1" {
		t.Errorf("partial update touched other fields: %+v", updated)
	}

	again, err := repo.UpdateConditions(ctx, "sub-1", nil)
	if err != nil {
		t.Fatalf("second UpdateConditions failed: %v", err)
	}
	if !again.UpdatedAt.After(updated.UpdatedAt) {
		t.Errorf("expected strictly increasing updated_at, got %v then %v", updated.UpdatedAt, again.UpdatedAt)
	}
	if len(again.ConditionList) != 0 {
		t.Errorf("expected empty list, got %+v", again.ConditionList)
	}

	if _, err := repo.UpdateConditions(ctx, "missing", nil); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func readConditionList(t *testing.T, db *gorm.DB, id string) []json.RawMessage {
	t.Helper()
	var stored string
	if err := db.Raw("SELECT condition_list FROM finance_notifications WHERE id = ?", id).Row().Scan(&stored); err != nil {
		t.Fatalf("read condition_list: %v", err)
	}
	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(stored), &entries); err != nil {
		t.Fatalf("decode condition_list %q: %v", stored, err)
	}
	return entries
}

func TestUpdateConditionsKeepsUntouchedConditionsIntact(t *testing.T) {
	db := newTestDB(t)
	seedSubscription(t, db, "sub-1", nil)

	fired := `{"id":"c1","mode":"Buy","conditionName":"GreaterThan","frequency":"MinuteLevel","session":"regular","targetPrice":100,"firstNotificationSent":false}`
	pending := `{"id":"c2","mode":"Sell","conditionName":"LessThan","frequency":"ExchangeStartOnly","session":"extended","targetPrice":50.25,"firstNotificationSent":false}`
	noTarget := `{"id":"c3","mode":"Sell","conditionName":"NewHigh","frequency":"MinuteLevel","session":"regular","targetPrice":null,"firstNotificationSent":true}`
	raw := "[" + fired + "," + pending + "," + noTarget + "]"
	if err := db.Exec("UPDATE finance_notifications SET condition_list = ? WHERE id = ?", raw, "sub-1").Error; err != nil {
		t.Fatalf("seed raw condition_list: %v", err)
	}

	repo := NewSubscriptionRepository(db)
	ctx := context.Background()
	sub, err := repo.GetByID(ctx, "sub-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	conditions := sub.ConditionList
	conditions[0].FirstNotificationSent = true
	if _, err := repo.UpdateConditions(ctx, "sub-1", conditions); err != nil {
		t.Fatalf("UpdateConditions failed: %v", err)
	}

	entries := readConditionList(t, db, "sub-1")
	if len(entries) != 3 {
		t.Fatalf("expected 3 stored conditions, got %d", len(entries))
	}
	wantFired := strings.Replace(fired, `"firstNotificationSent":false`, `"firstNotificationSent":true`, 1)
	if string(entries[0]) != wantFired {
		t.Errorf("fired condition stored as %s, want %s", entries[0], wantFired)
	}
	if string(entries[1]) != pending {
		t.Errorf("untouched condition changed: %s, want %s", entries[1], pending)
	}
	if string(entries[2]) != noTarget {
		t.Errorf("untouched condition changed: %s, want %s", entries[2], noTarget)
	}
}

func TestJSONPriceAcceptsQuotedDecimals(t *testing.T) {
	var model conditionModel
	if err := json.Unmarshal([]byte(`{"id":"c1","targetPrice":"12.5"}`), &model); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := model.TargetPrice.value(); got == nil || !got.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("unexpected target %v", got)
	}
	out, err := json.Marshal(model)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(out), `"targetPrice":12.5,`) {
		t.Errorf("expected a bare number, got %s", out)
	}
}

func TestNextUpdateTime(t *testing.T) {
	prev := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := nextUpdateTime(prev, prev.Add(time.Second)); !got.Equal(prev.Add(time.Second)) {
		t.Errorf("expected clock time, got %v", got)
	}
	if got := nextUpdateTime(prev, prev.Add(-time.Hour)); !got.Equal(prev.Add(time.Millisecond)) {
		t.Errorf("expected bumped time, got %v", got)
	}
}
