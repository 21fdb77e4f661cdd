// Package history provides the invalidation signal for persisted history.
package history

import (
	"time"

	"github.com/osa030/mobiletts/internal/app/observable"
)

// State carries the time of the last history change. The zero time means
// history has not changed since startup.
type State struct {
	LastUpdated time.Time
}

// Signal tells views that persisted history changed and must be re-read.
type Signal struct {
	value *observable.Value[State]
	clock func() time.Time
}

// NewSignal creates a signal using the wall clock.
func NewSignal() *Signal {
	return &Signal{
		value: observable.New(State{}),
		clock: time.Now,
	}
}

// NotifyUpdate bumps LastUpdated. Each bump is strictly later than the
// previous one even when the clock has not advanced.
func (s *Signal) NotifyUpdate() {
	now := s.clock()
	s.value.Update(func(st State) State {
		if !now.After(st.LastUpdated) {
			now = st.LastUpdated.Add(time.Nanosecond)
		}
		return State{LastUpdated: now}
	})
}

// LastUpdated returns the time of the last bump.
func (s *Signal) LastUpdated() time.Time {
	return s.value.Get().LastUpdated
}

// State returns the current state.
func (s *Signal) State() State {
	return s.value.Get()
}

// Subscribe registers fn for bumps.
func (s *Signal) Subscribe(fn func(State)) func() {
	return s.value.Subscribe(fn)
}
