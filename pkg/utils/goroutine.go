// Package utils holds test support shared by the mcp-fleet packages.
package utils

import (
	"runtime"
	"testing"
	"time"
)

// GoroutineLeakDetector fails a test when the goroutine count grows past an
// allowance between Start and Check. Connections, transports and the
// manager all own background goroutines that must stop on Close.
type GoroutineLeakDetector struct {
	tb             testing.TB
	initialCount   int
	allowedGrowth  int
	checkInterval  time.Duration
	stabilizeDelay time.Duration
	attempts       int
}

// NewGoroutineLeakDetector creates a new goroutine leak detector
func NewGoroutineLeakDetector(tb testing.TB) *GoroutineLeakDetector {
	return &GoroutineLeakDetector{
		tb:             tb,
		checkInterval:  100 * time.Millisecond,
		stabilizeDelay: 200 * time.Millisecond,
		attempts:       5,
	}
}

// Start records the initial goroutine count
func (d *GoroutineLeakDetector) Start() *GoroutineLeakDetector {
	time.Sleep(d.stabilizeDelay)
	d.initialCount = runtime.NumGoroutine()
	d.tb.Logf("Starting goroutine count: %d", d.initialCount)
	return d
}

// Count returns how many goroutines exist beyond the initial count.
func (d *GoroutineLeakDetector) Count() int {
	return runtime.NumGoroutine() - d.initialCount
}

// Check verifies that goroutine count hasn't grown beyond allowed threshold.
// It polls a few times so goroutines that are already exiting are not
// reported.
func (d *GoroutineLeakDetector) Check() {
	d.tb.Helper()
	time.Sleep(d.stabilizeDelay)

	finalCount := runtime.NumGoroutine()
	for i := 1; i < d.attempts && finalCount-d.initialCount > d.allowedGrowth; i++ {
		time.Sleep(d.checkInterval)
		if c := runtime.NumGoroutine(); c < finalCount {
			finalCount = c
		}
	}

	leaked := finalCount - d.initialCount
	if leaked > d.allowedGrowth {
		d.tb.Errorf("Goroutine leak detected: started with %d, ended with %d (leaked: %d, allowed: %d)",
			d.initialCount, finalCount, leaked, d.allowedGrowth)

		buf := make([]byte, 1<<20)
		stackLen := runtime.Stack(buf, true)
		d.tb.Logf("Current goroutine stack traces:\n%s", buf[:stackLen])
		return
	}
	d.tb.Logf("No goroutine leak: started with %d, ended with %d", d.initialCount, finalCount)
}

// SetAllowedGrowth sets the number of goroutines allowed to grow
func (d *GoroutineLeakDetector) SetAllowedGrowth(n int) *GoroutineLeakDetector {
	d.allowedGrowth = n
	return d
}

// SetStabilizeDelay sets the delay to allow goroutines to stabilize
func (d *GoroutineLeakDetector) SetStabilizeDelay(delay time.Duration) *GoroutineLeakDetector {
	d.stabilizeDelay = delay
	return d
}

// VerifyNoLeaks runs fn between Start and Check.
func VerifyNoLeaks(tb testing.TB, allowedGrowth int, fn func()) {
	tb.Helper()
	d := NewGoroutineLeakDetector(tb).SetAllowedGrowth(allowedGrowth).Start()
	fn()
	d.Check()
}
