package observability

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Correlator allocates request identifiers that are unique within the
// process lifetime and measures elapsed wall-clock time for dispatches.
// Identifiers combine a random run prefix with a monotonic counter, so
// two ids from the same run never collide and sort in allocation order.
type Correlator struct {
	runPrefix string
	counter   atomic.Uint64
}

// NewCorrelator creates a correlator with a fresh run prefix.
func NewCorrelator() *Correlator {
	return &Correlator{
		runPrefix: uuid.New().String()[:8],
	}
}

// NextRequestID allocates the next request identifier.
func (c *Correlator) NextRequestID() string {
	n := c.counter.Add(1)
	return fmt.Sprintf("req-%s-%06d", c.runPrefix, n)
}

// Stopwatch captures a start instant for duration measurement.
type Stopwatch struct {
	start time.Time
}

// StartStopwatch begins timing a dispatch.
func (c *Correlator) StartStopwatch() Stopwatch {
	return Stopwatch{start: time.Now()}
}

// Elapsed returns the wall-clock time since the stopwatch started.
func (s Stopwatch) Elapsed() time.Duration {
	return time.Since(s.start)
}
