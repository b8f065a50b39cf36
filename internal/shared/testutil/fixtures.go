package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"navpulse/internal/materializer"
	"navpulse/pkg/contracts/domain"
)

// Day parses a YYYY-MM-DD date and panics on bad input.
func Day(s string) time.Time {
	d, err := domain.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Obs builds an observation with a generated scheme name.
func Obs(code, date, nav string) domain.NAVObservation {
	return domain.NAVObservation{
		SchemeCode: code,
		SchemeName: "Test Fund " + code + " - Growth",
		Date:       Day(date),
		NAV:        decimal.RequireFromString(nav),
	}
}

// ErrUnscripted is returned for dates the source has no script for.
var ErrUnscripted = errors.New("unscripted date")

// Response is one scripted answer of a ScriptedSource.
type Response struct {
	Records []domain.NAVObservation
	Err     error
	// Hook runs before the answer is returned.
	Hook func(ctx context.Context) error
}

// ScriptedSource answers fetches from per-date scripts. Each call consumes
// one response; the last response of a script repeats.
type ScriptedSource struct {
	mu      sync.Mutex
	scripts map[string][]Response
	calls   map[string]int
}

// NewScriptedSource creates a source with no scripts
func NewScriptedSource() *ScriptedSource {
	return &ScriptedSource{
		scripts: make(map[string][]Response),
		calls:   make(map[string]int),
	}
}

// On appends responses for date.
func (s *ScriptedSource) On(date string, responses ...Response) *ScriptedSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[date] = append(s.scripts[date], responses...)
	return s
}

// Data scripts a successful answer.
func (s *ScriptedSource) Data(date string, records ...domain.NAVObservation) *ScriptedSource {
	return s.On(date, Response{Records: records})
}

// NoData scripts a confirmed non-trading day.
func (s *ScriptedSource) NoData(date string) *ScriptedSource {
	return s.On(date, Response{Err: materializer.ErrNoDataForDate})
}

// Transient scripts a retryable failure.
func (s *ScriptedSource) Transient(date string) *ScriptedSource {
	return s.On(date, Response{Err: materializer.NewTransientFetchError(Day(date), 503, errors.New("service unavailable"))})
}

func (s *ScriptedSource) Fetch(ctx context.Context, date time.Time) ([]domain.NAVObservation, error) {
	key := domain.FormatDate(date)

	s.mu.Lock()
	n := s.calls[key]
	s.calls[key] = n + 1
	script := s.scripts[key]
	s.mu.Unlock()

	if len(script) == 0 {
		return nil, materializer.NewFetchError(date, 0, fmt.Errorf("%w: %s", ErrUnscripted, key))
	}
	if n >= len(script) {
		n = len(script) - 1
	}
	resp := script[n]
	if resp.Hook != nil {
		if err := resp.Hook(ctx); err != nil {
			return nil, err
		}
	}
	return resp.Records, resp.Err
}

// Calls returns how many times date was fetched.
func (s *ScriptedSource) Calls(date string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[date]
}

// TotalCalls returns the number of fetches across all dates.
func (s *ScriptedSource) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}
