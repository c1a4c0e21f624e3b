package findbus

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"tidbyt.dev/findbus/model"
)

const (
	DefaultTickInterval = 700 * time.Millisecond
	DefaultSpeed        = 8.0

	// Seconds past the last stop's time before a simulation ends.
	FinishGrace = 30
)

// TimeOfDay is the number of seconds since midnight of t, in t's
// location.
func TimeOfDay(t time.Time) int {
	h, m, s := t.Clock()
	return h*3600 + m*60 + s
}

// SimulationSession replays one trip on a virtual clock.
//
// The virtual clock starts at the trip's first departure and runs at
// Speed times real time, on top of the real time of day.
type SimulationSession struct {
	TripID  string
	RouteID string
	Points  []model.Point

	// Added to the real time of day to get the simulated time.
	Offset int
	Origin time.Time
	Speed  float64

	playing  bool
	finished bool
	cursor   int
}

// NewSession prepares a simulation of the trip, anchored at now.
func NewSession(index *TransitIndex, tripID string, now time.Time) (*SimulationSession, error) {
	trip, found := index.Trip(tripID)
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTrip, tripID)
	}

	sts := index.StopTimes(tripID)
	if len(sts) < 2 {
		return nil, fmt.Errorf("%w: %s has %d", ErrInsufficientStops, tripID, len(sts))
	}

	points := make([]model.Point, 0, len(sts))
	for _, st := range sts {
		points = append(points, model.Point{
			StopID:    st.StopID,
			StopName:  index.StopName(st.StopID),
			Arrival:   st.Arrival,
			Departure: st.Departure,
		})
	}

	return &SimulationSession{
		TripID:  tripID,
		RouteID: trip.RouteID,
		Points:  points,
		Offset:  points[0].Departure - TimeOfDay(now),
		Origin:  now,
		Speed:   DefaultSpeed,
		playing: true,
	}, nil
}

// SimulatedSecs is the virtual time of day at now.
//
// Both the time of day and the elapsed time advance with real time,
// so the virtual clock effectively runs at Speed+1.
func (s *SimulationSession) SimulatedSecs(now time.Time) float64 {
	elapsed := now.Sub(s.Origin).Seconds()
	return float64(TimeOfDay(now)+s.Offset) + elapsed*s.Speed
}

func (s *SimulationSession) Playing() bool {
	return s.playing
}

func (s *SimulationSession) Finished() bool {
	return s.finished
}

// SetPlaying pauses or resumes the session. The clock's origin is
// not moved, so time passed while paused is not lost. Finished
// sessions stay stopped.
func (s *SimulationSession) SetPlaying(playing bool) {
	if s.finished {
		return
	}
	s.playing = playing
}

// Last time the trip is scheduled at a stop. A last stop without
// times gives no end, and the session plays until stopped.
func (s *SimulationSession) endSecs() (int, bool) {
	end := s.Points[len(s.Points)-1].ArrivalOrDeparture()
	return end, end != 0
}

// Tick computes the state of the simulation at now.
//
// While playing, the segment cursor moves forward and the session
// ends once simulated time passes the last stop by FinishGrace
// seconds; the result marks that moment with Finished. While paused,
// the snapshot is computed without changing the session.
func (s *SimulationSession) Tick(now time.Time) model.TickResult {
	sim := s.SimulatedSecs(now)

	r := Project(s.Points, sim, s.cursor)
	r.TripID = s.TripID
	r.RouteID = s.RouteID

	if s.playing {
		s.cursor = r.SegmentIndex
		if end, ok := s.endSecs(); ok && sim >= float64(end+FinishGrace) {
			s.playing = false
			s.finished = true
			r.Finished = true
		}
	}
	r.Playing = s.playing

	return r
}

// Project locates simulatedSecs on a trip's stop sequence.
//
// The segment index starts at from and only moves forward: it
// advances past every stop whose arrival (or departure, if no
// arrival) is at or before simulatedSecs.
func Project(points []model.Point, simulatedSecs float64, from int) model.TickResult {
	r := model.TickResult{SimulatedSecs: simulatedSecs}

	n := len(points)
	if n == 0 {
		return r
	}

	idx := from
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	for idx < n-1 && simulatedSecs >= float64(points[idx+1].ArrivalOrDeparture()) {
		idx++
	}

	t0 := float64(points[idx].DepartureOrArrival())
	if t0 == 0 {
		t0 = simulatedSecs
	}
	t1 := t0
	if idx+1 < n {
		if t := points[idx+1].ArrivalOrDeparture(); t != 0 {
			t1 = float64(t)
		}
	}

	frac := 0.0
	if t1 > t0 {
		frac = math.Max(0, math.Min(1, (simulatedSecs-t0)/(t1-t0)))
	}

	next := idx + 1
	if next > n-1 {
		next = n - 1
	}
	tNext := float64(points[next].ArrivalOrDeparture())
	if tNext == 0 {
		tNext = simulatedSecs
	}

	r.SegmentIndex = idx
	r.Fraction = frac
	r.ETASecondsToNext = math.Max(0, tNext-simulatedSecs)
	r.PreviousStopName = points[idx].StopName
	r.NextStopName = points[next].StopName

	return r
}

// TickSink receives tick results pushed by a SimulationClock.
//
// OnTick runs on the clock's ticker goroutine, which Start and Stop
// wait for. A sink wanting to drive the clock must do so from another
// goroutine, e.g. go clock.Stop().
type TickSink interface {
	OnTick(r model.TickResult)
}

type TickSinkFunc func(r model.TickResult)

func (f TickSinkFunc) OnTick(r model.TickResult) {
	f(r)
}

// SimulationClock runs at most one simulation at a time, ticking it
// on a fixed interval and pushing results to its sinks.
type SimulationClock struct {
	Index    *TransitIndex
	Interval time.Duration
	Speed    float64
	Metrics  Metrics
	TimeNow  func() time.Time

	// Serializes Start and Stop.
	lifecycle sync.Mutex

	mutex   sync.Mutex
	session *SimulationSession
	active  bool
	last    model.TickResult
	hasLast bool
	sinks   []TickSink

	cancel context.CancelFunc
	done   chan struct{}
}

func NewSimulationClock(index *TransitIndex) *SimulationClock {
	closed := make(chan struct{})
	close(closed)

	return &SimulationClock{
		Index:    index,
		Interval: DefaultTickInterval,
		Speed:    DefaultSpeed,
		TimeNow:  time.Now,
		done:     closed,
	}
}

// AddSink registers a sink for all future ticks.
func (c *SimulationClock) AddSink(sink TickSink) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.sinks = append(c.sinks, sink)
}

// Start begins simulating a trip, replacing any running simulation.
// The previous ticker is stopped before the new session is
// installed, so no tick of the old session is delivered after Start
// returns. On error, the running simulation is left untouched.
func (c *SimulationClock) Start(ctx context.Context, tripID string) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	session, err := NewSession(c.Index, tripID, c.TimeNow())
	if err != nil {
		return err
	}
	if c.Speed > 0 {
		session.Speed = c.Speed
	}

	c.stop()

	tickCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	c.mutex.Lock()
	c.session = session
	c.active = true
	c.hasLast = false
	c.cancel = cancel
	c.done = done
	c.mutex.Unlock()

	if c.Metrics != nil {
		c.Metrics.SessionStarted()
	}

	log.Info().
		Str("trip_id", tripID).
		Str("route_id", session.RouteID).
		Int("stops", len(session.Points)).
		Str("first_departure", model.FormatTime(session.Points[0].Departure)).
		Msg("Simulation started")

	interval := c.Interval
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	go c.run(tickCtx, session, interval, done)

	return nil
}

func (c *SimulationClock) run(ctx context.Context, session *SimulationSession, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.endSession(false)
			return
		case <-ticker.C:
		}

		if !c.tick(ctx, session) {
			return
		}
	}
}

// One scheduled tick. Returns false once the session has finished.
func (c *SimulationClock) tick(ctx context.Context, session *SimulationSession) bool {
	start := time.Now()

	c.mutex.Lock()
	if ctx.Err() != nil || c.session != session {
		c.mutex.Unlock()
		c.endSession(false)
		return false
	}
	if session.Finished() {
		// Finished through a pulled Tick.
		c.mutex.Unlock()
		c.endSession(true)
		return false
	}
	if !session.Playing() {
		c.mutex.Unlock()
		return true
	}
	r := session.Tick(c.TimeNow())
	c.last = r
	c.hasLast = true
	sinks := append([]TickSink{}, c.sinks...)
	c.mutex.Unlock()

	for _, sink := range sinks {
		sink.OnTick(r)
	}

	if c.Metrics != nil {
		c.Metrics.TickObserve(time.Since(start))
	}

	if r.Finished {
		c.endSession(true)
		log.Info().Str("trip_id", r.TripID).Msg("Simulation finished")
		return false
	}

	return true
}

// Stop cancels the running simulation, if any, and waits for its
// ticker to exit. The session remains available through Current.
func (c *SimulationClock) Stop() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	c.stop()
}

func (c *SimulationClock) stop() {
	c.mutex.Lock()
	cancel, done := c.cancel, c.done
	c.cancel = nil
	c.mutex.Unlock()

	if cancel != nil {
		cancel()
	}
	<-done

	if cancel != nil {
		c.endSession(false)
	}
}

// Reports the end of the current session to Metrics, once.
func (c *SimulationClock) endSession(finished bool) {
	c.mutex.Lock()
	active := c.active
	c.active = false
	c.mutex.Unlock()

	if !active || c.Metrics == nil {
		return
	}
	if finished {
		c.Metrics.SessionFinished()
	} else {
		c.Metrics.SessionStopped()
	}
}

// Done is closed when the current simulation's ticker exits, either
// because the trip finished or because it was stopped.
func (c *SimulationClock) Done() <-chan struct{} {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.done
}

// Pause suspends ticking. Nothing happens if no session is running.
func (c *SimulationClock) Pause() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.session != nil {
		c.session.SetPlaying(false)
	}
}

// Resume continues a paused session without re-anchoring its clock.
func (c *SimulationClock) Resume() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.session != nil {
		c.session.SetPlaying(true)
	}
}

// Session returns the trip being simulated, if any.
func (c *SimulationClock) Session() (tripID string, playing bool, ok bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.session == nil {
		return "", false, false
	}
	return c.session.TripID, c.session.Playing(), true
}

// Current returns the most recent tick result, whether pushed by the
// ticker or pulled through Tick.
func (c *SimulationClock) Current() (model.TickResult, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.last, c.hasLast
}

// Tick computes the current session's state at now, for consumers
// rendering on their own cadence. Results are not pushed to sinks.
func (c *SimulationClock) Tick(now time.Time) (model.TickResult, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.session == nil {
		return model.TickResult{}, false
	}
	r := c.session.Tick(now)
	c.last = r
	c.hasLast = true
	return r, true
}
