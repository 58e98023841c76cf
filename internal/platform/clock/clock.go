package clock

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
}

// Real returns wall time in UTC truncated to whole seconds, which is what
// DATETIME columns hold.
type Real struct{}

func (Real) Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// Fixed is a settable clock for tests.
type Fixed struct {
	mu sync.Mutex
	t  time.Time
}

func NewFixed(t time.Time) *Fixed {
	return &Fixed{t: t.UTC().Truncate(time.Second)}
}

func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *Fixed) Set(t time.Time) {
	f.mu.Lock()
	f.t = t.UTC().Truncate(time.Second)
	f.mu.Unlock()
}

func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}
