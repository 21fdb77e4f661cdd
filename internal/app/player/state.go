// Package player provides the single active playback session store.
package player

import (
	"github.com/osa030/mobiletts/internal/domain/audio"
	"github.com/osa030/mobiletts/internal/domain/segment"
)

// State represents one generation/playback session.
// Playing implies AudioHandle is non-nil.
type State struct {
	Text           string
	TimingSegments []segment.Segment
	AudioHandle    *audio.Handle // Playable resource, owned by the store
	AudioData      []byte        // Raw audio bytes kept for persistence
	Playing        bool
	Loading        bool
	CurrentTime    float64 // Seconds
	Duration       float64 // Seconds
	Error          *string // User-displayable error
}

// initialState returns the empty session.
func initialState() State {
	return State{
		TimingSegments: []segment.Segment{},
	}
}

// HasAudio reports whether a playable handle is loaded.
func (s State) HasAudio() bool {
	return s.AudioHandle != nil
}

// Progress returns CurrentTime/Duration clamped to [0, 1].
func (s State) Progress() float64 {
	if s.Duration <= 0 {
		return 0
	}
	p := s.CurrentTime / s.Duration
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}
