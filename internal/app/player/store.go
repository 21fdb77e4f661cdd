package player

import (
	"sync"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/mobiletts/internal/app/observable"
	"github.com/osa030/mobiletts/internal/domain/audio"
	"github.com/osa030/mobiletts/internal/domain/segment"
)

// Store holds the playback session.
//
// Setters replace a single field and do not validate their input. The store
// owns AudioHandle: a replaced handle is released, and Reset and Close release
// the current one.
type Store struct {
	value *observable.Value[State]

	// Playback start handshake with the audio element
	mu            sync.Mutex
	readyURL      string // URL of the handle whose metadata has loaded
	playRequested bool   // Start playback once the current handle is ready
}

// NewStore creates a store in the initial state.
func NewStore() *Store {
	return &Store{
		value: observable.New(initialState()),
	}
}

// State returns the current state.
func (s *Store) State() State {
	return s.value.Get()
}

// Subscribe registers fn for state changes.
func (s *Store) Subscribe(fn func(State)) func() {
	return s.value.Subscribe(fn)
}

// SetText sets the session text.
func (s *Store) SetText(text string) {
	s.value.Update(func(st State) State {
		st.Text = text
		return st
	})
}

// SetTimingSegments sets the timing segments.
func (s *Store) SetTimingSegments(segments []segment.Segment) {
	dup := segment.Clone(segments)
	if dup == nil {
		dup = []segment.Segment{}
	}
	s.value.Update(func(st State) State {
		st.TimingSegments = dup
		return st
	})
}

// SetAudioHandle replaces the playable handle and releases the previous one.
// A new handle stops playback until it is requested again.
func (s *Store) SetAudioHandle(h *audio.Handle) {
	var prev *audio.Handle
	s.value.Update(func(st State) State {
		prev = st.AudioHandle
		if h != prev {
			st.Playing = false
		}
		st.AudioHandle = h
		return st
	})

	if prev == h {
		return
	}

	s.mu.Lock()
	s.readyURL = ""
	s.playRequested = false
	s.mu.Unlock()

	releaseHandle(prev)
}

// SetAudioData sets the raw audio bytes.
func (s *Store) SetAudioData(data []byte) {
	s.value.Update(func(st State) State {
		st.AudioData = data
		return st
	})
}

// SetPlaying sets the playing flag. Playing without a handle is ignored.
func (s *Store) SetPlaying(playing bool) {
	if !playing {
		s.mu.Lock()
		s.playRequested = false
		s.mu.Unlock()
	}
	s.value.UpdateIf(func(st State) (State, bool) {
		if playing && st.AudioHandle == nil {
			return st, false
		}
		st.Playing = playing
		return st, true
	})
}

// SetLoading sets the loading flag.
func (s *Store) SetLoading(loading bool) {
	s.value.Update(func(st State) State {
		st.Loading = loading
		return st
	})
}

// SetCurrentTime sets the playback position in seconds.
func (s *Store) SetCurrentTime(t float64) {
	s.value.Update(func(st State) State {
		st.CurrentTime = t
		return st
	})
}

// SetDuration sets the audio duration in seconds.
func (s *Store) SetDuration(d float64) {
	s.value.Update(func(st State) State {
		st.Duration = d
		return st
	})
}

// SetError sets the user-displayable error. An empty message clears it.
func (s *Store) SetError(msg string) {
	s.value.Update(func(st State) State {
		if msg == "" {
			st.Error = nil
		} else {
			st.Error = &msg
		}
		return st
	})
}

// ClearError clears the error.
func (s *Store) ClearError() {
	s.SetError("")
}

// Reset restores the initial state in one change and releases the handle.
func (s *Store) Reset() {
	var prev *audio.Handle
	s.value.Update(func(st State) State {
		prev = st.AudioHandle
		return initialState()
	})

	s.mu.Lock()
	s.readyURL = ""
	s.playRequested = false
	s.mu.Unlock()

	releaseHandle(prev)
}

// RequestPlay asks for playback of the current handle. Playback starts now if
// the audio element already reported the handle ready, otherwise on the next
// matching AudioReady. It returns whether playback started immediately.
func (s *Store) RequestPlay() bool {
	st := s.value.Get()
	if st.AudioHandle == nil {
		return false
	}

	s.mu.Lock()
	if s.readyURL != st.AudioHandle.URL() {
		s.playRequested = true
		s.mu.Unlock()
		return false
	}
	s.playRequested = false
	s.mu.Unlock()

	s.SetPlaying(true)
	return true
}

// AudioReady is called when the audio element has loaded url. A pending
// RequestPlay for the same handle starts playback. Stale URLs are ignored.
func (s *Store) AudioReady(url string) {
	st := s.value.Get()
	if st.AudioHandle == nil || st.AudioHandle.URL() != url {
		zlog.Debug().Msgf("player: ignoring ready signal for stale handle: url=%s", url)
		return
	}

	s.mu.Lock()
	s.readyURL = url
	start := s.playRequested
	s.playRequested = false
	s.mu.Unlock()

	if start {
		s.SetPlaying(true)
	}
}

// PlayPending reports whether a start request is waiting for AudioReady.
func (s *Store) PlayPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playRequested
}

// ActiveSegment returns the timing segment at the current position.
func (s *Store) ActiveSegment() (segment.Segment, int, bool) {
	st := s.value.Get()
	idx := segment.IndexAt(st.TimingSegments, st.CurrentTime)
	if idx < 0 {
		return segment.Segment{}, -1, false
	}
	return st.TimingSegments[idx], idx, true
}

// Close releases the current handle and drops all subscribers.
func (s *Store) Close() {
	s.SetAudioHandle(nil)
	s.value.Close()
}

func releaseHandle(h *audio.Handle) {
	if h == nil {
		return
	}
	if h.Release() {
		zlog.Debug().Msgf("player: released audio handle: url=%s", h.URL())
	}
}
