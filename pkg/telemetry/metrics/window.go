package metrics

import (
	"sync"
	"time"
)

// slidingWindow is a circular buffer of time-stamped counters. It
// tracks a value over a rolling period without the reset spike of a
// fixed window.
type slidingWindow struct {
	window     time.Duration
	bucketSize time.Duration
	buckets    []windowBucket
	mu         sync.Mutex
}

type windowBucket struct {
	timestamp time.Time
	value     int64
}

// newSlidingWindow creates a window of the given duration with
// window/bucketSize buckets.
func newSlidingWindow(window, bucketSize time.Duration) *slidingWindow {
	n := int(window / bucketSize)
	if n == 0 {
		n = 1
	}
	return &slidingWindow{
		window:     window,
		bucketSize: bucketSize,
		buckets:    make([]windowBucket, n),
	}
}

// add increments the current time bucket by value.
func (sw *slidingWindow) add(value int64) {
	now := time.Now()
	slot := now.UnixNano() / int64(sw.bucketSize) % int64(len(sw.buckets))

	sw.mu.Lock()
	defer sw.mu.Unlock()

	b := &sw.buckets[slot]
	aligned := now.Truncate(sw.bucketSize)
	if !b.timestamp.Equal(aligned) {
		// Slot rolled over to a new time period.
		b.timestamp = aligned
		b.value = 0
	}
	b.value += value
}

// sum totals all buckets still inside the window.
func (sw *slidingWindow) sum() int64 {
	cutoff := time.Now().Add(-sw.window)

	sw.mu.Lock()
	defer sw.mu.Unlock()

	var total int64
	for _, b := range sw.buckets {
		if b.timestamp.After(cutoff) {
			total += b.value
		}
	}
	return total
}

// reset clears every bucket.
func (sw *slidingWindow) reset() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	for i := range sw.buckets {
		sw.buckets[i] = windowBucket{}
	}
}
