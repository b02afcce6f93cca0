// Package coarsetime is a cheap clock for pool bookkeeping (idle and lifetime checks),
// where 50ms of imprecision does not matter.
package coarsetime

import (
	"sync/atomic"
	"time"
)

// Resolution is the refresh interval of Now.
const Resolution = 50 * time.Millisecond

var now atomic.Pointer[time.Time]

func init() {
	store(time.Now())

	go func() {
		for t := range time.Tick(Resolution) {
			store(t)
		}
	}()
}

func store(t time.Time) {
	now.Store(&t)
}

// Now returns the time of the last tick, at most Resolution old.
func Now() time.Time {
	return *now.Load()
}
