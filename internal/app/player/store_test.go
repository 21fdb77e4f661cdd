package player

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/mobiletts/internal/domain/audio"
	"github.com/osa030/mobiletts/internal/domain/segment"
)

func TestStore_SettersReplaceOnlyTheirField(t *testing.T) {
	s := NewStore()
	reg := audio.NewRegistry()
	h := reg.Create([]byte("mp3"))

	s.SetText("hello")
	s.SetTimingSegments([]segment.Segment{{Text: "hello", Start: 0, End: 1}})
	s.SetAudioHandle(h)
	s.SetAudioData([]byte("mp3"))
	s.SetLoading(true)
	s.SetCurrentTime(0.5)
	s.SetDuration(1)
	s.SetError("boom")
	s.SetPlaying(true)

	st := s.State()
	assert.Equal(t, "hello", st.Text)
	assert.Len(t, st.TimingSegments, 1)
	assert.Same(t, h, st.AudioHandle)
	assert.Equal(t, []byte("mp3"), st.AudioData)
	assert.True(t, st.Loading)
	assert.Equal(t, 0.5, st.CurrentTime)
	assert.Equal(t, 1.0, st.Duration)
	require.NotNil(t, st.Error)
	assert.Equal(t, "boom", *st.Error)
	assert.True(t, st.Playing)
	assert.Equal(t, 0.5, st.Progress())

	s.SetLoading(false)
	after := s.State()
	assert.False(t, after.Loading)
	assert.Equal(t, "hello", after.Text, "other fields untouched")
	assert.True(t, after.Playing)

	s.ClearError()
	assert.Nil(t, s.State().Error)
}

func TestStore_SettersDoNotValidate(t *testing.T) {
	s := NewStore()

	s.SetCurrentTime(10)
	s.SetDuration(2)
	s.SetCurrentTime(-1)

	assert.Equal(t, -1.0, s.State().CurrentTime)
	assert.Equal(t, 0.0, s.State().Progress())
}

func TestStore_ResetRestoresInitialState(t *testing.T) {
	tests := []struct {
		name  string
		setup func(s *Store, reg *audio.Registry)
	}{
		{
			name:  "already initial",
			setup: func(*Store, *audio.Registry) {},
		},
		{
			name: "fully populated",
			setup: func(s *Store, reg *audio.Registry) {
				s.SetText("text")
				s.SetTimingSegments([]segment.Segment{{Text: "t", Start: 0, End: 1}})
				s.SetAudioHandle(reg.Create([]byte("a")))
				s.SetAudioData([]byte("a"))
				s.SetPlaying(true)
				s.SetLoading(true)
				s.SetCurrentTime(3)
				s.SetDuration(4)
				s.SetError("err")
			},
		},
		{
			name: "error only",
			setup: func(s *Store, _ *audio.Registry) {
				s.SetError("network failure")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			reg := audio.NewRegistry()
			tt.setup(s, reg)

			s.Reset()

			assert.Equal(t, initialState(), s.State())
			assert.Equal(t, 0, reg.Live())
		})
	}
}

func TestStore_ResetIsSingleNotification(t *testing.T) {
	s := NewStore()
	s.SetText("x")
	s.SetDuration(3)

	var states []State
	s.Subscribe(func(st State) { states = append(states, st) })
	states = nil

	s.Reset()

	require.Len(t, states, 1)
	assert.Equal(t, initialState(), states[0])
}

func TestStore_AudioHandleReleasedExactlyOnce(t *testing.T) {
	reg := audio.NewRegistry()
	s := NewStore()

	h1 := reg.Create([]byte("one"))
	h2 := reg.Create([]byte("two"))
	h3 := reg.Create([]byte("three"))

	s.SetAudioHandle(h1)
	s.SetAudioHandle(h1) // same handle again must not release it
	assert.False(t, h1.Released())

	s.SetAudioHandle(h2) // normal replacement
	assert.True(t, h1.Released())
	assert.Equal(t, uint64(1), reg.ReleasedCount())

	s.Reset() // reset
	assert.True(t, h2.Released())
	assert.Equal(t, uint64(2), reg.ReleasedCount())

	s.Reset() // nothing left to release
	assert.Equal(t, uint64(2), reg.ReleasedCount())

	s.SetAudioHandle(h3)
	s.Close() // teardown
	assert.True(t, h3.Released())
	assert.Equal(t, uint64(3), reg.ReleasedCount())
	assert.Equal(t, 0, reg.Live())

	s.Close()
	assert.Equal(t, uint64(3), reg.ReleasedCount(), "no double release")
}

func TestStore_PlayingRequiresHandle(t *testing.T) {
	reg := audio.NewRegistry()
	s := NewStore()

	s.SetPlaying(true)
	assert.False(t, s.State().Playing)

	s.SetAudioHandle(reg.Create([]byte("a")))
	s.SetPlaying(true)
	assert.True(t, s.State().Playing)

	s.SetAudioHandle(reg.Create([]byte("b")))
	assert.False(t, s.State().Playing, "new handle stops playback")

	s.SetPlaying(true)
	s.SetAudioHandle(nil)
	assert.False(t, s.State().Playing)
	assert.Nil(t, s.State().AudioHandle)
}

func TestStore_RequestPlayWaitsForReady(t *testing.T) {
	reg := audio.NewRegistry()
	s := NewStore()

	assert.False(t, s.RequestPlay(), "nothing to play")

	h := reg.Create([]byte("a"))
	s.SetAudioHandle(h)

	assert.False(t, s.RequestPlay())
	assert.True(t, s.PlayPending())
	assert.False(t, s.State().Playing)

	s.AudioReady("blob:mobiletts/stale")
	assert.False(t, s.State().Playing, "stale ready signal is ignored")

	s.AudioReady(h.URL())
	assert.True(t, s.State().Playing)
	assert.False(t, s.PlayPending())

	// Already ready: play starts immediately.
	s.SetPlaying(false)
	assert.True(t, s.RequestPlay())
	assert.True(t, s.State().Playing)
}

func TestStore_ReadyWithoutRequestDoesNotPlay(t *testing.T) {
	reg := audio.NewRegistry()
	s := NewStore()
	h := reg.Create([]byte("a"))
	s.SetAudioHandle(h)

	s.AudioReady(h.URL())
	assert.False(t, s.State().Playing)
}

func TestStore_NewHandleCancelsPendingPlay(t *testing.T) {
	reg := audio.NewRegistry()
	s := NewStore()
	h1 := reg.Create([]byte("a"))
	h2 := reg.Create([]byte("b"))

	s.SetAudioHandle(h1)
	s.RequestPlay()
	s.SetAudioHandle(h2)

	assert.False(t, s.PlayPending())
	s.AudioReady(h2.URL())
	assert.False(t, s.State().Playing)
}

func TestStore_ActiveSegment(t *testing.T) {
	s := NewStore()
	s.SetTimingSegments([]segment.Segment{
		{Text: "First.", Start: 0, End: 1},
		{Text: "Second.", Start: 1, End: 2},
	})

	s.SetCurrentTime(1.25)
	seg, idx, ok := s.ActiveSegment()
	require.True(t, ok)
	assert.Equal(t, 1, idx)
	assert.Equal(t, "Second.", seg.Text)

	s.SetCurrentTime(5)
	_, _, ok = s.ActiveSegment()
	assert.False(t, ok)
}
