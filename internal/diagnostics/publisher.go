package diagnostics

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"casaval/server/internal/location"
	"casaval/server/internal/matching"
	"casaval/server/internal/models"
)

// Publisher streams search telemetry to NATS. Publish failures are logged and
// swallowed so diagnostics can never fail a search.
type Publisher struct {
	conn    *nats.Conn
	subject string
	logger  *logrus.Logger
}

var _ matching.Monitor = (*Publisher)(nil)

type searchEvent struct {
	Event     string    `json:"event"`
	SearchID  string    `json:"search_id"`
	Mode      string    `json:"mode,omitempty"`
	Reference string    `json:"reference,omitempty"`
	Kind      string    `json:"kind,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
	Results   int       `json:"results,omitempty"`
	Time      time.Time `json:"time"`
}

type attemptEvent struct {
	Event string    `json:"event"`
	Time  time.Time `json:"time"`
	matching.AttemptReport
}

// NewPublisher connects to NATS and returns a monitor publishing to subject.
func NewPublisher(url, subject string, logger *logrus.Logger) (*Publisher, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
		logger.SetLevel(logrus.InfoLevel)
	}

	options := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.Timeout(5 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.WithError(err).Warn("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to NATS: %w", err)
	}

	return &Publisher{
		conn:    nc,
		subject: subject,
		logger:  logger,
	}, nil
}

// Close drains the connection so buffered events are flushed before shutdown.
func (p *Publisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}

func (p *Publisher) SearchStarted(searchID string, criteria *models.SearchCriteria, mode location.Mode) {
	p.publish(searchEvent{
		Event:     "search_started",
		SearchID:  searchID,
		Mode:      mode.String(),
		Reference: criteria.Reference,
		Kind:      string(criteria.ListingKind()),
		Time:      time.Now().UTC(),
	})
}

func (p *Publisher) AttemptCompleted(report matching.AttemptReport) {
	p.publish(attemptEvent{
		Event:         "attempt_completed",
		Time:          time.Now().UTC(),
		AttemptReport: report,
	})
}

func (p *Publisher) SearchCompleted(searchID string, outcome matching.Outcome, results int) {
	p.publish(searchEvent{
		Event:    "search_completed",
		SearchID: searchID,
		Outcome:  string(outcome),
		Results:  results,
		Time:     time.Now().UTC(),
	})
}

func (p *Publisher) publish(event interface{}) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.WithError(err).Warn("Failed to marshal diagnostic event")
		return
	}
	if err := p.conn.Publish(p.subject, payload); err != nil {
		p.logger.WithError(err).Warn("Failed to publish diagnostic event")
	}
}
