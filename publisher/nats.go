package publisher

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"tidbyt.dev/findbus/model"
)

const SubjectPrefix = "findbus"

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

// The part of *nats.Conn used for publishing.
type Conn interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher sends simulation ticks to NATS, one message per tick
// on findbus.<route>.<trip>.
type NATSPublisher struct {
	conn        Conn
	nc          *nats.Conn
	logSubjects bool
	metrics     PublisherMetrics
	timeNow     func() time.Time
}

func NewNATSPublisher(url string, logSubjects bool, m PublisherMetrics) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("findbus"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			log.Info().Msg("NATS reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Info().Msg("NATS closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	if m != nil {
		m.NATSSetConnected(true)
	}

	p := NewPublisher(nc, logSubjects, m)
	p.nc = nc
	return p, nil
}

// NewPublisher publishes on an existing connection.
func NewPublisher(conn Conn, logSubjects bool, m PublisherMetrics) *NATSPublisher {
	return &NATSPublisher{
		conn:        conn,
		logSubjects: logSubjects,
		metrics:     m,
		timeNow:     time.Now,
	}
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

type TickEvent struct {
	TripID           string    `json:"tripId"`
	RouteID          string    `json:"routeId"`
	Timestamp        time.Time `json:"timestamp"`
	SimulatedTime    string    `json:"simulatedTime"`
	SegmentIndex     int       `json:"segmentIndex"`
	Fraction         float64   `json:"fraction"`
	ETASecondsToNext float64   `json:"etaSecondsToNext"`
	PreviousStop     string    `json:"previousStop"`
	NextStop         string    `json:"nextStop"`
	Playing          bool      `json:"playing"`
	Finished         bool      `json:"finished"`
}

func NewTickEvent(r model.TickResult, now time.Time) TickEvent {
	return TickEvent{
		TripID:           r.TripID,
		RouteID:          r.RouteID,
		Timestamp:        now.UTC(),
		SimulatedTime:    model.FormatTime(int(r.SimulatedSecs)),
		SegmentIndex:     r.SegmentIndex,
		Fraction:         r.Fraction,
		ETASecondsToNext: r.ETASecondsToNext,
		PreviousStop:     r.PreviousStopName,
		NextStop:         r.NextStopName,
		Playing:          r.Playing,
		Finished:         r.Finished,
	}
}

func Subject(routeID, tripID string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, subjectToken(routeID), subjectToken(tripID))
}

func (p *NATSPublisher) PublishTick(r model.TickResult) error {
	subject := Subject(r.RouteID, r.TripID)
	b, err := json.Marshal(NewTickEvent(r, p.timeNow()))
	if err != nil {
		return err
	}
	if p.logSubjects {
		log.Debug().Str("subject", subject).Msg("NATS publish")
	}
	start := time.Now()
	err = p.conn.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

// OnTick publishes r, logging failures. Makes the publisher usable
// as a simulation clock sink.
func (p *NATSPublisher) OnTick(r model.TickResult) {
	if err := p.PublishTick(r); err != nil {
		log.Warn().Err(err).Str("trip_id", r.TripID).Msg("Publishing tick failed")
	}
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
