package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/NasaVasa/pushwatch/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type ConditionEvaluator interface {
	Validate(condition domain.Condition) error
	Evaluate(name string, series domain.PriceSeries, target *decimal.Decimal) (bool, error)
	Description(name string) string
}

type FrequencyGate interface {
	Allows(frequency domain.Frequency, exchangeID string, session domain.Session, at time.Time) (bool, error)
}

// tickerTracker is implemented by price sources that must subscribe a ticker
// before they can serve it.
type tickerTracker interface {
	Track(tickerIDs ...string)
}

// listingInvalidator is implemented by listers that cache the baseline read.
type listingInvalidator interface {
	Invalidate(ctx context.Context) error
}

type EngineOptions struct {
	Workers int
	// SuppressPushForDeleted drops the push for a fired condition that the
	// authoritative read no longer contains. Off by default: every fired
	// condition is pushed once the record itself still exists.
	SuppressPushForDeleted bool
	PushTitle              string
	PushIcon               string
}

type TickReport struct {
	TickID     string
	Selector   string
	StartedAt  time.Time
	Duration   time.Duration
	Matched    int
	Evaluated  int
	Fired      int
	Flipped    int
	Written    int
	Vanished   int
	Pushed     int
	Suppressed int
	PushFailed int
	Failed     int
}

type cycleResult struct {
	evaluated  int
	fired      int
	flipped    int
	written    bool
	vanished   bool
	pushed     int
	suppressed int
	pushFailed int
}

func (r *TickReport) add(result cycleResult) {
	r.Evaluated += result.evaluated
	r.Fired += result.fired
	r.Flipped += result.flipped
	r.Pushed += result.pushed
	r.Suppressed += result.suppressed
	r.PushFailed += result.pushFailed
	if result.written {
		r.Written++
	}
	if result.vanished {
		r.Vanished++
	}
}

type pendingPush struct {
	conditionID string
	payload     domain.PushPayload
}

// NotificationEngine runs one evaluate-and-merge cycle per subscription for
// each tick. The baseline listing only decides what to evaluate; every write
// is built from a fresh point read of the record.
type NotificationEngine struct {
	lister    domain.SubscriptionLister
	store     domain.SubscriptionRepository
	prices    domain.PriceSource
	gate      FrequencyGate
	evaluator ConditionEvaluator
	push      domain.PushSender
	opts      EngineOptions
	now       func() time.Time
	logger    *zap.Logger
}

func NewNotificationEngine(
	lister domain.SubscriptionLister,
	store domain.SubscriptionRepository,
	prices domain.PriceSource,
	gate FrequencyGate,
	evaluator ConditionEvaluator,
	push domain.PushSender,
	opts EngineOptions,
	logger *zap.Logger,
) *NotificationEngine {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.PushTitle == "" {
		opts.PushTitle = "Finance"
	}
	if opts.PushIcon == "" {
		opts.PushIcon = "/logo.png"
	}
	return &NotificationEngine{
		lister:    lister,
		store:     store,
		prices:    prices,
		gate:      gate,
		evaluator: evaluator,
		push:      push,
		opts:      opts,
		now:       time.Now,
		logger:    logger,
	}
}

// Run processes every subscription matching selector (a push endpoint or
// domain.SelectAll). Only a failed baseline listing fails the tick.
func (e *NotificationEngine) Run(ctx context.Context, selector string) (TickReport, error) {
	report := TickReport{
		TickID:    uuid.NewString(),
		Selector:  selector,
		StartedAt: e.now(),
	}
	logger := e.logger.With(zap.String("tick_id", report.TickID), zap.String("selector", selector))

	subs, err := e.lister.List(ctx)
	if err != nil {
		logger.Error("failed to list subscriptions", zap.Error(err))
		return report, fmt.Errorf("list subscriptions: %w", err)
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(e.opts.Workers)

	matched := make([]domain.Subscription, 0, len(subs))
	for _, sub := range subs {
		if sub.Matches(selector) {
			matched = append(matched, sub)
		}
	}
	report.Matched = len(matched)
	e.trackTickers(matched)

	for _, sub := range matched {
		sub := sub
		g.Go(func() error {
			subLogger := logger.With(
				zap.String("subscription_id", sub.ID),
				zap.String("exchange_id", sub.ExchangeID),
				zap.String("ticker_id", sub.TickerID),
			)
			result, err := e.runCycle(ctx, sub, report.StartedAt, subLogger)

			mu.Lock()
			report.add(result)
			if err != nil {
				report.Failed++
			}
			mu.Unlock()

			if err != nil {
				subLogger.Warn("subscription cycle failed", zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	if report.Written > 0 {
		if invalidator, ok := e.lister.(listingInvalidator); ok {
			if err := invalidator.Invalidate(ctx); err != nil {
				logger.Warn("failed to invalidate subscription listing", zap.Error(err))
			}
		}
	}

	report.Duration = e.now().Sub(report.StartedAt)
	logger.Info(
		"tick complete",
		zap.Int("matched", report.Matched),
		zap.Int("evaluated", report.Evaluated),
		zap.Int("fired", report.Fired),
		zap.Int("flipped", report.Flipped),
		zap.Int("written", report.Written),
		zap.Int("vanished", report.Vanished),
		zap.Int("pushed", report.Pushed),
		zap.Int("push_failed", report.PushFailed),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

// trackTickers hands every ticker with pending conditions to a subscribing
// price source before any gate is checked.
func (e *NotificationEngine) trackTickers(subs []domain.Subscription) {
	tracker, ok := e.prices.(tickerTracker)
	if !ok {
		return
	}
	seen := make(map[string]bool)
	var tickers []string
	for _, sub := range subs {
		if seen[sub.TickerID] || len(sub.PendingConditions()) == 0 {
			continue
		}
		seen[sub.TickerID] = true
		tickers = append(tickers, sub.TickerID)
	}
	if len(tickers) > 0 {
		tracker.Track(tickers...)
	}
}

func (e *NotificationEngine) runCycle(ctx context.Context, sub domain.Subscription, at time.Time, logger *zap.Logger) (result cycleResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in subscription cycle: %v", r)
		}
	}()

	flips, pushes, result, err := e.evaluate(ctx, sub, at, logger)
	if err != nil || len(flips) == 0 {
		return result, err
	}

	latest, err := e.store.GetByID(ctx, sub.ID)
	if errors.Is(err, domain.ErrNotFound) {
		logger.Info("subscription deleted concurrently, discarding flips", zap.Int("flips", len(flips)))
		result.vanished = true
		return result, nil
	}

	var cycleErr error
	var present map[string]bool
	if err != nil {
		cycleErr = fmt.Errorf("authoritative read: %w", err)
	} else {
		merged, changed := MergeConditions(latest.ConditionList, flips)
		if _, err := e.store.UpdateConditions(ctx, sub.ID, merged); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				logger.Info("subscription deleted before write, discarding flips", zap.Int("flips", len(flips)))
				result.vanished = true
				return result, nil
			}
			cycleErr = fmt.Errorf("update conditions: %w", err)
		} else {
			result.written = true
			result.flipped = countPending(latest.ConditionList, flips)
			logger.Info(
				"conditions updated",
				zap.Int("flips", len(flips)),
				zap.Bool("changed", changed),
				zap.Int("flipped", result.flipped),
				zap.Int("dropped", len(flips)-countPresent(latest.ConditionList, flips)),
			)
		}
		present = conditionIDs(latest.ConditionList)
	}

	for _, p := range pushes {
		if e.opts.SuppressPushForDeleted && present != nil && !present[p.conditionID] {
			logger.Info("push suppressed for deleted condition", zap.String("condition_id", p.conditionID))
			result.suppressed++
			continue
		}
		if err := e.push.Send(ctx, sub.Push, p.payload); err != nil {
			logger.Warn("failed to send push", zap.String("condition_id", p.conditionID), zap.Error(err))
			result.pushFailed++
			continue
		}
		result.pushed++
	}

	return result, cycleErr
}

// evaluate walks the baseline conditions and collects the ones that fire now.
// The price series is fetched at most once, and only after some condition
// has passed its frequency gate.
func (e *NotificationEngine) evaluate(ctx context.Context, sub domain.Subscription, at time.Time, logger *zap.Logger) (FlipSet, []pendingPush, cycleResult, error) {
	var (
		result  cycleResult
		flips   = make(FlipSet)
		pushes  []pendingPush
		series  domain.PriceSeries
		fetched bool
	)

	for _, condition := range sub.PendingConditions() {
		if err := e.evaluator.Validate(condition); err != nil {
			logger.Warn(
				"condition skipped",
				zap.String("condition_id", condition.ID),
				zap.String("condition_name", condition.ConditionName),
				zap.Error(err),
			)
			continue
		}

		allowed, err := e.gate.Allows(condition.Frequency, sub.ExchangeID, condition.Session, at)
		if err != nil {
			logger.Warn("frequency gate failed", zap.String("condition_id", condition.ID), zap.Error(err))
			continue
		}
		if !allowed {
			continue
		}

		if !fetched {
			series, err = e.prices.GetSeries(ctx, sub.TickerID)
			if err != nil {
				return nil, nil, result, fmt.Errorf("get price series: %w", err)
			}
			fetched = true
		}

		result.evaluated++
		hit, err := e.evaluator.Evaluate(condition.ConditionName, series, condition.TargetPrice)
		if err != nil {
			logger.Warn(
				"condition skipped",
				zap.String("condition_id", condition.ID),
				zap.String("condition_name", condition.ConditionName),
				zap.Error(err),
			)
			continue
		}
		if !hit || !flips.Add(condition.ID) {
			continue
		}

		result.fired++
		pushes = append(pushes, pendingPush{conditionID: condition.ID, payload: e.payload(sub, condition)})
		logger.Debug("condition fired", zap.String("condition_id", condition.ID), zap.String("condition_name", condition.ConditionName))
	}

	return flips, pushes, result, nil
}

func (e *NotificationEngine) payload(sub domain.Subscription, condition domain.Condition) domain.PushPayload {
	body := fmt.Sprintf("%s [%s] %s", sub.TickerID, condition.Mode, e.evaluator.Description(condition.ConditionName))
	if condition.TargetPrice != nil {
		body += fmt.Sprintf(" (%s)", condition.TargetPrice.String())
	}
	return domain.PushPayload{
		Title: e.opts.PushTitle,
		Body:  body,
		Icon:  e.opts.PushIcon,
		Data: domain.PushData{
			ExchangeID: sub.ExchangeID,
			TickerID:   sub.TickerID,
		},
	}
}

func countPresent(conditions []domain.Condition, flips FlipSet) int {
	n := 0
	for _, condition := range conditions {
		if flips.Has(condition.ID) {
			n++
		}
	}
	return n
}

// countPending counts the flips that latch a condition still pending in the
// authoritative list.
func countPending(conditions []domain.Condition, flips FlipSet) int {
	n := 0
	for _, condition := range conditions {
		if flips.Has(condition.ID) && !condition.FirstNotificationSent {
			n++
		}
	}
	return n
}
