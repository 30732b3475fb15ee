package matching

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"casaval/server/internal/location"
	"casaval/server/internal/models"
)

var (
	// ErrInvalidCriteria marks criteria rejected before any store access.
	ErrInvalidCriteria = errors.New("invalid search criteria")
)

// Outcome is the terminal state of a search.
type Outcome string

const (
	// OutcomeSuccess means an attempt produced at least the requested count.
	OutcomeSuccess Outcome = "success"
	// OutcomeExhausted means every attempt ran and the result may be short
	// or empty. Not an error; thin markets do this.
	OutcomeExhausted Outcome = "exhausted"
)

// CandidateSource is the store surface the engine reads from.
type CandidateSource interface {
	HasActiveCoordinates(ctx context.Context) (bool, error)
	FindCandidates(ctx context.Context, filter Filter) ([]Candidate, error)
}

// ZoneGuard answers zone exclusion and city adjacency lookups.
type ZoneGuard interface {
	ExclusionsFor(name string) []string
	AdjacentCities(city string) []string
}

// SearchResult is the ranked outcome of one search invocation.
type SearchResult struct {
	SearchID    string          `json:"search_id"`
	Outcome     Outcome         `json:"outcome"`
	Mode        string          `json:"mode"`
	Degraded    bool            `json:"degraded"`
	Comparables []Comparable    `json:"comparables"`
	Attempts    []AttemptReport `json:"attempts"`
}

// Engine runs comparable searches: resolve the location mode once, then
// attempt progressively relaxed filters until the requested count is met or
// the schedule is exhausted. It never writes to the store, and holds no
// per-search state, so concurrent callers are safe.
type Engine struct {
	store   CandidateSource
	zones   ZoneGuard
	params  Params
	logger  *logrus.Logger
	monitor Monitor
}

// Option configures an Engine.
type Option func(*Engine)

// WithMonitor attaches a diagnostics monitor to every search.
func WithMonitor(m Monitor) Option {
	return func(e *Engine) {
		if m != nil {
			e.monitor = m
		}
	}
}

// NewEngine creates a search engine over the given store.
func NewEngine(store CandidateSource, zones ZoneGuard, params Params, logger *logrus.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
		logger.SetLevel(logrus.InfoLevel)
	}

	e := &Engine{
		store:   store,
		zones:   zones,
		params:  params.withDefaults(),
		logger:  logger,
		monitor: &noopMonitor{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search finds up to criteria.Limit comparables for the subject. A short or
// empty result after all attempts is a normal outcome; only store failures,
// invalid criteria and timeouts surface as errors.
func (e *Engine) Search(ctx context.Context, criteria *models.SearchCriteria) (*SearchResult, error) {
	if criteria == nil {
		return nil, fmt.Errorf("%w: criteria is nil", ErrInvalidCriteria)
	}
	if err := criteria.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCriteria, err)
	}

	if e.params.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.params.Timeout)
		defer cancel()
	}

	searchID := uuid.NewString()

	storeHasCoords := false
	if criteria.HasCoordinates() {
		var err error
		storeHasCoords, err = e.store.HasActiveCoordinates(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to probe store for coordinates: %w", err)
		}
	}
	resolution := location.Resolve(criteria, storeHasCoords)

	limit := criteria.Limit
	if limit == 0 {
		limit = e.params.DefaultLimit
	}

	e.monitor.SearchStarted(searchID, criteria, resolution.Mode)
	logger := e.logger.WithFields(logrus.Fields{
		"search_id": searchID,
		"mode":      resolution.Mode.String(),
		"kind":      string(criteria.ListingKind()),
		"limit":     limit,
	})
	logger.Info("Comparable search started")
	if resolution.Degraded() {
		logger.Warn("Subject has no usable location signal, matching on attributes only")
	}

	var (
		candidates []Candidate
		attempts   []AttemptReport
	)
	outcome := OutcomeExhausted
	for attempt := 1; attempt <= e.params.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("search aborted at attempt %d: %w", attempt, err)
		}

		started := time.Now()
		filter := e.params.BuildFilter(criteria, resolution, e.zones, attempt)
		filter.TargetCount = limit

		found, err := e.store.FindCandidates(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("attempt %d failed: %w", attempt, err)
		}
		candidates = found

		report := attemptReport(searchID, attempt, filter, len(found), time.Since(started))
		attempts = append(attempts, report)
		e.monitor.AttemptCompleted(report)
		logger.WithFields(logrus.Fields{
			"attempt":       attempt,
			"flexibility":   filter.Flexibility,
			"min_bedrooms":  filter.MinBedrooms,
			"max_bedrooms":  filter.MaxBedrooms,
			"min_price":     filter.MinPrice,
			"max_price":     filter.MaxPrice,
			"radius_meters": filter.RadiusMeters,
			"candidates":    len(found),
		}).Info("Search attempt completed")

		if len(found) >= limit {
			outcome = OutcomeSuccess
			break
		}
	}

	sortCandidates(resolution.Mode, candidates)
	top := truncate(candidates, limit)
	comparables := make([]Comparable, 0, len(top))
	for _, cand := range top {
		comparables = append(comparables, cand.comparable())
	}

	result := &SearchResult{
		SearchID:    searchID,
		Outcome:     outcome,
		Mode:        resolution.Mode.String(),
		Degraded:    resolution.Degraded(),
		Comparables: comparables,
		Attempts:    attempts,
	}

	e.monitor.SearchCompleted(searchID, outcome, len(comparables))
	logger.WithFields(logrus.Fields{
		"outcome":  string(outcome),
		"attempts": len(attempts),
		"results":  len(comparables),
	}).Info("Comparable search completed")
	return result, nil
}

func attemptReport(searchID string, attempt int, filter Filter, count int, elapsed time.Duration) AttemptReport {
	return AttemptReport{
		SearchID:       searchID,
		Attempt:        attempt,
		Flexibility:    filter.Flexibility,
		Mode:           filter.Mode.String(),
		MinBedrooms:    filter.MinBedrooms,
		MaxBedrooms:    filter.MaxBedrooms,
		MinPrice:       filter.MinPrice,
		MaxPrice:       filter.MaxPrice,
		MinBuildArea:   filter.MinBuildArea,
		MaxBuildArea:   filter.MaxBuildArea,
		RadiusMeters:   filter.RadiusMeters,
		AdjacentCities: filter.AdjacentCities,
		CandidateCount: count,
		ElapsedMS:      elapsed.Milliseconds(),
	}
}
