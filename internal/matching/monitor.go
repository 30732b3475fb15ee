package matching

import (
	"sync"

	"casaval/server/internal/location"
	"casaval/server/internal/models"
)

// AttemptReport is the diagnostic record of one relaxation attempt: which
// tolerances were in force and how many candidates they produced.
type AttemptReport struct {
	SearchID       string   `json:"search_id"`
	Attempt        int      `json:"attempt"`
	Flexibility    float64  `json:"flexibility"`
	Mode           string   `json:"mode"`
	MinBedrooms    int      `json:"min_bedrooms"`
	MaxBedrooms    int      `json:"max_bedrooms"`
	MinPrice       float64  `json:"min_price"`
	MaxPrice       float64  `json:"max_price"`
	MinBuildArea   float64  `json:"min_build_area"`
	MaxBuildArea   float64  `json:"max_build_area"`
	RadiusMeters   float64  `json:"radius_meters,omitempty"`
	AdjacentCities []string `json:"adjacent_cities,omitempty"`
	CandidateCount int      `json:"candidate_count"`
	ElapsedMS      int64    `json:"elapsed_ms"`
}

// Monitor provides hooks to observe the search process. Implement this
// interface to track attempts and outcomes as they happen.
type Monitor interface {
	SearchStarted(searchID string, criteria *models.SearchCriteria, mode location.Mode)
	AttemptCompleted(report AttemptReport)
	SearchCompleted(searchID string, outcome Outcome, results int)
}

// noopMonitor is a no-op implementation of Monitor.
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) SearchStarted(_ string, _ *models.SearchCriteria, _ location.Mode) {}
func (n *noopMonitor) AttemptCompleted(_ AttemptReport)                                 {}
func (n *noopMonitor) SearchCompleted(_ string, _ Outcome, _ int)                       {}

// RecordingMonitor collects everything it observes. Safe for concurrent
// searches.
type RecordingMonitor struct {
	mu       sync.Mutex
	started  []string
	reports  []AttemptReport
	outcomes map[string]Outcome
}

var _ Monitor = (*RecordingMonitor)(nil)

func NewRecordingMonitor() *RecordingMonitor {
	return &RecordingMonitor{outcomes: make(map[string]Outcome)}
}

func (m *RecordingMonitor) SearchStarted(searchID string, _ *models.SearchCriteria, _ location.Mode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, searchID)
}

func (m *RecordingMonitor) AttemptCompleted(report AttemptReport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, report)
}

func (m *RecordingMonitor) SearchCompleted(searchID string, outcome Outcome, _ int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[searchID] = outcome
}

// Started returns the search ids observed starting, in order.
func (m *RecordingMonitor) Started() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.started))
	copy(out, m.started)
	return out
}

// Reports returns a copy of every attempt report seen so far.
func (m *RecordingMonitor) Reports() []AttemptReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AttemptReport, len(m.reports))
	copy(out, m.reports)
	return out
}

// Outcome returns the recorded outcome for a search id.
func (m *RecordingMonitor) Outcome(searchID string) (Outcome, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	outcome, ok := m.outcomes[searchID]
	return outcome, ok
}
