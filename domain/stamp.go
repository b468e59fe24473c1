package domain

import (
	"sync/atomic"
	"time"
)

var lastStamp int64

// NextStamp returns a strictly increasing timestamp. Wall-clock nanoseconds
// when the clock moves forward, last+1 otherwise.
func NextStamp() int64 {
	for {
		now := time.Now().UnixNano()
		last := atomic.LoadInt64(&lastStamp)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastStamp, last, now) {
			return now
		}
	}
}
