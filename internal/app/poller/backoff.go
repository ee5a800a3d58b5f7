package poller

import "time"

// backoff is the retry state carried across iterations: current failure
// count, base interval and ceiling. The next delay is min(base*2^failures,
// max), reset to base after the first clean iteration.
type backoff struct {
	base     time.Duration
	max      time.Duration
	failures int
}

func newBackoff(base, max time.Duration) *backoff {
	return &backoff{base: base, max: max}
}

// next registers a failure and returns the delay before the following
// attempt.
func (b *backoff) next() time.Duration {
	d := b.base
	for i := 0; i < b.failures; i++ {
		d *= 2
		if d >= b.max {
			d = b.max
			break
		}
	}
	b.failures++
	return d
}

// reset clears the failure count after a successful iteration.
func (b *backoff) reset() {
	b.failures = 0
}
