package capture

import (
	"sync/atomic"
	"time"
)

const (
	DefaultInterval = 3 * time.Second
	MinInterval     = time.Second
)

// State is the recording control shared between the capture loop and the
// command surface.
type State struct {
	paused   atomic.Bool
	interval atomic.Int64
}

func NewState(interval time.Duration) *State {
	s := &State{}
	s.SetInterval(interval)
	return s
}

func (s *State) Paused() bool { return s.paused.Load() }

func (s *State) SetPaused(p bool) { s.paused.Store(p) }

func (s *State) Interval() time.Duration { return time.Duration(s.interval.Load()) }

// SetInterval clamps to MinInterval. Zero or negative selects the default.
func (s *State) SetInterval(d time.Duration) {
	switch {
	case d <= 0:
		d = DefaultInterval
	case d < MinInterval:
		d = MinInterval
	}
	s.interval.Store(int64(d))
}
