package telegram

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/NasaVasa/pushwatch/internal/domain"
	"github.com/NasaVasa/pushwatch/internal/usecase"
)

const HelpText = `Commands:
/tick [endpoint|all] - run a notification tick now
/status - show the last tick report
/rules - list the condition rules usable for Buy and Sell
/help - show this help

Notes:
- Without an argument /tick processes every subscription.
- Pass a push endpoint to process only the subscriptions registered for it.
Example:
/tick https://fcm.googleapis.com/fcm/send/abc123
`

var ErrInvalidArguments = errors.New("invalid arguments")

// ParseTickArgs returns the selector for /tick: a single push endpoint or
// domain.SelectAll when no argument is given.
func ParseTickArgs(args string) (string, error) {
	parts := strings.Fields(args)
	switch len(parts) {
	case 0:
		return domain.SelectAll, nil
	case 1:
		return parts[0], nil
	default:
		return "", ErrInvalidArguments
	}
}

func FormatReport(report usecase.TickReport) string {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("Tick %s\n", report.TickID))
	builder.WriteString(fmt.Sprintf("Selector: %s\n", report.Selector))
	builder.WriteString(fmt.Sprintf("Started: %s (%s)\n", report.StartedAt.UTC().Format(time.RFC3339), report.Duration.Round(time.Millisecond)))
	builder.WriteString(fmt.Sprintf("Subscriptions: %d matched, %d written, %d deleted, %d failed\n", report.Matched, report.Written, report.Vanished, report.Failed))
	builder.WriteString(fmt.Sprintf("Conditions: %d evaluated, %d fired, %d flipped\n", report.Evaluated, report.Fired, report.Flipped))
	builder.WriteString(fmt.Sprintf("Pushes: %d sent, %d failed", report.Pushed, report.PushFailed))
	if report.Suppressed > 0 {
		builder.WriteString(fmt.Sprintf(", %d suppressed", report.Suppressed))
	}
	return builder.String()
}

func formatPush(payload domain.PushPayload) string {
	return fmt.Sprintf("%s: %s\n%s / %s", payload.Title, payload.Body, payload.Data.ExchangeID, payload.Data.TickerID)
}

func FormatRules(rules RuleCatalog) string {
	var builder strings.Builder
	for i, mode := range []domain.ConditionMode{domain.ModeBuy, domain.ModeSell} {
		if i > 0 {
			builder.WriteString("\n")
		}
		builder.WriteString(fmt.Sprintf("%s rules:\n", mode))
		for _, name := range rules.Names(mode) {
			rule, err := rules.Describe(name)
			if err != nil {
				continue
			}
			line := fmt.Sprintf("- %s: %s", rule.Name, rule.Description)
			if rule.NeedsTargetPrice {
				line += " (target price)"
			}
			builder.WriteString(line + "\n")
		}
	}
	return strings.TrimRight(builder.String(), "\n")
}
