package publisher

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/findbus/model"
)

type message struct {
	subject string
	data    []byte
}

type fakeConn struct {
	messages []message
	err      error
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.messages = append(c.messages, message{subject, data})
	return nil
}

type countingMetrics struct {
	published, errs, observed int
}

func (m *countingMetrics) NATSPublishedInc() { m.published++ }
func (m *countingMetrics) NATSPublishErrInc() { m.errs++ }
func (m *countingMetrics) PublishObserve(time.Duration) { m.observed++ }
func (m *countingMetrics) NATSSetConnected(bool) {}

func TestSubject(t *testing.T) {
	assert.Equal(t, "findbus.r1.t1", Subject("r1", "t1"))
	assert.Equal(t, "findbus.Route_5.a_b_c", Subject(" Route 5 ", "a.b*c"))
	assert.Equal(t, "findbus._._", Subject("", ""))
}

func TestPublishTick(t *testing.T) {
	conn := &fakeConn{}
	m := &countingMetrics{}
	p := NewPublisher(conn, true, m)
	p.timeNow = func() time.Time { return time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC) }

	p.OnTick(model.TickResult{
		TripID:           "t1",
		RouteID:          "r1",
		SimulatedSecs:    29100.4,
		SegmentIndex:     0,
		Fraction:         0.5,
		ETASecondsToNext: 300,
		PreviousStopName: "Alpha",
		NextStopName:     "Bravo",
		Playing:          true,
	})

	require.Equal(t, 1, len(conn.messages))
	assert.Equal(t, "findbus.r1.t1", conn.messages[0].subject)

	event := TickEvent{}
	require.NoError(t, json.Unmarshal(conn.messages[0].data, &event))
	assert.Equal(t, TickEvent{
		TripID:           "t1",
		RouteID:          "r1",
		Timestamp:        time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC),
		SimulatedTime:    "08:05:00",
		Fraction:         0.5,
		ETASecondsToNext: 300,
		PreviousStop:     "Alpha",
		NextStop:         "Bravo",
		Playing:          true,
	}, event)

	assert.Equal(t, 1, m.published)
	assert.Equal(t, 1, m.observed)

	conn.err = errors.New("nope")
	assert.Error(t, p.PublishTick(model.TickResult{TripID: "t1", RouteID: "r1"}))
	assert.Equal(t, 1, m.errs)

	// Failures are only logged when used as a sink.
	p.OnTick(model.TickResult{TripID: "t1", RouteID: "r1"})
	assert.Equal(t, 2, m.errs)
}
