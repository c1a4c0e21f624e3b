package findbus

import (
	"time"
)

// Metrics receives counts and timings from the engine. See
// metrics.Collector.
type Metrics interface {
	LoadObserve(d time.Duration, err error)
	SearchObserve(d time.Duration, matches int)
	SessionStarted()
	SessionFinished()
	// A session stopped or replaced before finishing.
	SessionStopped()
	TickObserve(d time.Duration)
}
