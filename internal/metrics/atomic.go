package metrics

import "sync/atomic"

// AtomicMax atomically sets *addr to max(*addr, val) and returns the
// resulting value. CAS loop so concurrent observers never lose a peak.
func AtomicMax(addr *int64, val int64) int64 {
	for {
		current := atomic.LoadInt64(addr)
		if val <= current {
			return current
		}
		if atomic.CompareAndSwapInt64(addr, current, val) {
			return val
		}
	}
}

// Counter is a simple atomic counter with convenience methods.
type Counter struct {
	value int64
}

// Add adds delta to the counter and returns the new value.
func (c *Counter) Add(delta int64) int64 {
	return atomic.AddInt64(&c.value, delta)
}

// Inc increments the counter by 1.
func (c *Counter) Inc() int64 {
	return atomic.AddInt64(&c.value, 1)
}

// Load returns the current value.
func (c *Counter) Load() int64 {
	return atomic.LoadInt64(&c.value)
}

// Reset sets the counter to 0.
func (c *Counter) Reset() {
	atomic.StoreInt64(&c.value, 0)
}
