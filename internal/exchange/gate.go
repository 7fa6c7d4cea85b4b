// Package exchange answers trading-hours questions from a static calendar
// table and turns them into the frequency gate used by the notification engine.
package exchange

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/BurntSushi/toml"
	"github.com/NasaVasa/pushwatch/internal/domain"
)

var (
	ErrUnknownExchange  = errors.New("unknown exchange")
	ErrUnknownSession   = errors.New("unknown session")
	ErrUnknownFrequency = errors.New("unknown frequency")
)

//go:embed calendar.toml
var defaultCalendar []byte

type calendarFile struct {
	Exchanges map[string]exchangeFile `toml:"exchanges"`
}

type exchangeFile struct {
	Timezone string                 `toml:"timezone"`
	Weekdays []string               `toml:"weekdays"`
	Holidays []string               `toml:"holidays"`
	Sessions map[string]sessionFile `toml:"sessions"`
}

type sessionFile struct {
	Open  string `toml:"open"`
	Close string `toml:"close"`
}

// window is [open, close) in minutes after local midnight.
type window struct {
	open  int
	close int
}

type exchange struct {
	location *time.Location
	weekdays map[time.Weekday]bool
	holidays map[string]bool
	sessions map[domain.Session]window
}

// Gate is read-only after construction and safe for concurrent use.
type Gate struct {
	exchanges map[string]exchange
}

func Default() (*Gate, error) {
	return Parse(defaultCalendar)
}

func LoadFile(path string) (*Gate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("exchange: read calendar: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Gate, error) {
	var file calendarFile
	if _, err := toml.Decode(string(data), &file); err != nil {
		return nil, fmt.Errorf("exchange: decode calendar: %w", err)
	}

	gate := &Gate{exchanges: make(map[string]exchange, len(file.Exchanges))}
	for id, ef := range file.Exchanges {
		ex, err := buildExchange(ef)
		if err != nil {
			return nil, fmt.Errorf("exchange: %s: %w", id, err)
		}
		gate.exchanges[id] = ex
	}
	return gate, nil
}

func buildExchange(ef exchangeFile) (exchange, error) {
	location, err := time.LoadLocation(ef.Timezone)
	if err != nil {
		return exchange{}, fmt.Errorf("timezone %q: %w", ef.Timezone, err)
	}

	ex := exchange{
		location: location,
		weekdays: make(map[time.Weekday]bool, len(ef.Weekdays)),
		holidays: make(map[string]bool, len(ef.Holidays)),
		sessions: make(map[domain.Session]window, len(ef.Sessions)),
	}

	if len(ef.Weekdays) == 0 {
		for d := time.Monday; d <= time.Friday; d++ {
			ex.weekdays[d] = true
		}
	}
	for _, name := range ef.Weekdays {
		day, err := parseWeekday(name)
		if err != nil {
			return exchange{}, err
		}
		ex.weekdays[day] = true
	}

	for _, holiday := range ef.Holidays {
		if _, err := time.Parse(time.DateOnly, holiday); err != nil {
			return exchange{}, fmt.Errorf("holiday %q: %w", holiday, err)
		}
		ex.holidays[holiday] = true
	}

	for name, sf := range ef.Sessions {
		open, err := parseClock(sf.Open)
		if err != nil {
			return exchange{}, fmt.Errorf("session %s open: %w", name, err)
		}
		closeAt, err := parseClock(sf.Close)
		if err != nil {
			return exchange{}, fmt.Errorf("session %s close: %w", name, err)
		}
		if closeAt <= open {
			return exchange{}, fmt.Errorf("session %s closes before it opens", name)
		}
		ex.sessions[domain.Session(name)] = window{open: open, close: closeAt}
	}

	return ex, nil
}

func (g *Gate) lookup(exchangeID string, session domain.Session, at time.Time) (time.Time, window, bool, error) {
	ex, ok := g.exchanges[exchangeID]
	if !ok {
		return time.Time{}, window{}, false, fmt.Errorf("%w: %s", ErrUnknownExchange, exchangeID)
	}
	w, ok := ex.sessions[session]
	if !ok {
		return time.Time{}, window{}, false, fmt.Errorf("%w: %s/%s", ErrUnknownSession, exchangeID, session)
	}
	local := at.In(ex.location)
	tradingDay := ex.weekdays[local.Weekday()] && !ex.holidays[local.Format(time.DateOnly)]
	return local, w, tradingDay, nil
}

func (g *Gate) IsOpen(exchangeID string, session domain.Session, at time.Time) (bool, error) {
	local, w, tradingDay, err := g.lookup(exchangeID, session, at)
	if err != nil || !tradingDay {
		return false, err
	}
	minute := minuteOfDay(local)
	return minute >= w.open && minute < w.close, nil
}

// IsOpeningInstant holds for the whole opening minute of the session.
func (g *Gate) IsOpeningInstant(exchangeID string, session domain.Session, at time.Time) (bool, error) {
	local, w, tradingDay, err := g.lookup(exchangeID, session, at)
	if err != nil || !tradingDay {
		return false, err
	}
	return minuteOfDay(local) == w.open, nil
}

// Allows reports whether a condition with the given frequency may be
// evaluated at the given time.
func (g *Gate) Allows(frequency domain.Frequency, exchangeID string, session domain.Session, at time.Time) (bool, error) {
	switch frequency {
	case domain.FrequencyMinuteLevel:
		return g.IsOpen(exchangeID, session, at)
	case domain.FrequencyExchangeStartOnly:
		return g.IsOpeningInstant(exchangeID, session, at)
	default:
		return false, fmt.Errorf("%w: %s", ErrUnknownFrequency, frequency)
	}
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func parseClock(value string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok {
		return 0, fmt.Errorf("invalid time %q", value)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q", value)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q", value)
	}
	total := hour*60 + minute
	if hour < 0 || minute < 0 || minute > 59 || total > 24*60 {
		return 0, fmt.Errorf("invalid time %q", value)
	}
	return total, nil
}

func parseWeekday(name string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sun", "sunday":
		return time.Sunday, nil
	case "mon", "monday":
		return time.Monday, nil
	case "tue", "tuesday":
		return time.Tuesday, nil
	case "wed", "wednesday":
		return time.Wednesday, nil
	case "thu", "thursday":
		return time.Thursday, nil
	case "fri", "friday":
		return time.Friday, nil
	case "sat", "saturday":
		return time.Saturday, nil
	default:
		return 0, fmt.Errorf("invalid weekday %q", name)
	}
}
