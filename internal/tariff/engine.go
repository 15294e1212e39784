package tariff

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the day/night tariff. Hours are clock hours in Location;
// a StandardHourStart greater than StandardHourEnd makes the standard
// period wrap midnight.
type Config struct {
	StandardHourStart int
	StandardHourEnd   int

	StandardMinuteCharge decimal.Decimal
	ReducedMinuteCharge  decimal.Decimal

	StandardStandingCharge decimal.Decimal
	ReducedStandingCharge  decimal.Decimal

	// Location is the local time reference for hour boundaries. Nil means UTC.
	Location *time.Location
}

// DefaultConfig is the tariff in force when nothing is configured.
func DefaultConfig() Config {
	return Config{
		StandardHourStart:      6,
		StandardHourEnd:        22,
		StandardMinuteCharge:   decimal.RequireFromString("0.09"),
		ReducedMinuteCharge:    decimal.Zero,
		StandardStandingCharge: decimal.RequireFromString("0.36"),
		ReducedStandingCharge:  decimal.RequireFromString("0.36"),
		Location:               time.UTC,
	}
}

var ErrInvalidConfig = errors.New("tariff: invalid config")

func (c Config) Validate() error {
	if c.StandardHourStart < 0 || c.StandardHourStart > 23 {
		return fmt.Errorf("%w: standard hour start must be within 0..23, got %d", ErrInvalidConfig, c.StandardHourStart)
	}
	if c.StandardHourEnd < 0 || c.StandardHourEnd > 24 {
		return fmt.Errorf("%w: standard hour end must be within 0..24, got %d", ErrInvalidConfig, c.StandardHourEnd)
	}
	if c.StandardHourStart == c.StandardHourEnd {
		return fmt.Errorf("%w: standard period is empty", ErrInvalidConfig)
	}
	for name, d := range map[string]decimal.Decimal{
		"standard minute charge":   c.StandardMinuteCharge,
		"reduced minute charge":    c.ReducedMinuteCharge,
		"standard standing charge": c.StandardStandingCharge,
		"reduced standing charge":  c.ReducedStandingCharge,
	} {
		if d.IsNegative() {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidConfig, name)
		}
	}
	return nil
}

// Engine prices completed calls. It is immutable and safe for concurrent use.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

func (e *Engine) Config() Config { return e.cfg }

// Quote is the priced breakdown of a call.
type Quote struct {
	TotalMinutes    int
	StandardMinutes int
	ReducedMinutes  int

	StandingCharge decimal.Decimal
	Price          decimal.Decimal
	Duration       string
}

var ErrInvalidInterval = errors.New("tariff: end must be after start")

// Quote prices the call between start and end.
func (e *Engine) Quote(start, end time.Time) (Quote, error) {
	if !end.After(start) {
		return Quote{}, ErrInvalidInterval
	}
	total := TotalMinutes(start, end)
	std := e.StandardMinutes(start, end)
	standing := e.StandingCharge(start)

	return Quote{
		TotalMinutes:    total,
		StandardMinutes: std,
		ReducedMinutes:  total - std,
		StandingCharge:  standing,
		Price:           e.price(std, total-std, standing),
		Duration:        Duration(start, end),
	}, nil
}

// Price is Quote(start, end).Price.
func (e *Engine) Price(start, end time.Time) (decimal.Decimal, error) {
	q, err := e.Quote(start, end)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return q.Price, nil
}

func (e *Engine) price(standardMinutes, reducedMinutes int, standing decimal.Decimal) decimal.Decimal {
	std := decimal.NewFromInt(int64(standardMinutes)).Mul(e.cfg.StandardMinuteCharge)
	rdc := decimal.NewFromInt(int64(reducedMinutes)).Mul(e.cfg.ReducedMinuteCharge)
	// decimal.Round rounds half away from zero, i.e. half-up for prices.
	return std.Add(rdc).Add(standing).Round(2)
}

// TotalMinutes is the number of complete 60 second cycles between start and end.
func TotalMinutes(start, end time.Time) int {
	secs := int64(end.Sub(start) / time.Second)
	if secs <= 0 {
		return 0
	}
	return int(secs / 60)
}

// StandardMinutes counts the billed minutes that fall completely inside the
// standard period. Minutes are walked from start truncated to the minute; a
// minute whose end reaches the period's closing hour is reduced.
func (e *Engine) StandardMinutes(start, end time.Time) int {
	total := TotalMinutes(start, end)
	cursor := truncateToMinute(start.In(e.cfg.Location))

	n := 0
	for i := 0; i < total; i++ {
		next := cursor.Add(time.Minute)
		if e.inStandardPeriod(minuteOfDay(cursor)) && e.inStandardPeriod(minuteOfDay(next)) {
			n++
		}
		cursor = next
	}
	return n
}

// ReducedMinutes is TotalMinutes minus StandardMinutes.
func (e *Engine) ReducedMinutes(start, end time.Time) int {
	return TotalMinutes(start, end) - e.StandardMinutes(start, end)
}

// StandingCharge is the fixed fee picked by the hour the call started.
func (e *Engine) StandingCharge(start time.Time) decimal.Decimal {
	if e.inStandardPeriod(start.In(e.cfg.Location).Hour() * 60) {
		return e.cfg.StandardStandingCharge
	}
	return e.cfg.ReducedStandingCharge
}

func (e *Engine) inStandardPeriod(minute int) bool {
	from := e.cfg.StandardHourStart * 60
	to := e.cfg.StandardHourEnd * 60
	if from < to {
		return minute >= from && minute < to
	}
	return minute >= from || minute < to
}

// Duration renders the raw elapsed time as "{h}h{m}m{s}s".
func Duration(start, end time.Time) string {
	secs := int64(end.Sub(start) / time.Second)
	if secs < 0 {
		secs = 0
	}
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	return fmt.Sprintf("%dh%dm%ds", h, m, s)
}

func truncateToMinute(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, t.Location())
}

func minuteOfDay(t time.Time) int { return t.Hour()*60 + t.Minute() }
