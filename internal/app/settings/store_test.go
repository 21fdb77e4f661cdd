package settings

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	loaded  State
	loadErr error
	saveErr error
	saved   []State
}

func (r *fakeRepo) Load() (State, error) {
	return r.loaded, r.loadErr
}

func (r *fakeRepo) Save(st State) error {
	r.saved = append(r.saved, st)
	return r.saveErr
}

func TestDefaults(t *testing.T) {
	st := Defaults()

	assert.Equal(t, "af_heart", st.DefaultVoice)
	assert.Equal(t, 1.0, st.DefaultSpeed)
	assert.True(t, st.AutoPlay)
}

func TestNewStore_Seeding(t *testing.T) {
	custom := State{DefaultVoice: "bf_emma", DefaultSpeed: 1.25, AutoPlay: false}

	tests := []struct {
		name string
		repo Repository
		want State
	}{
		{"nil repository", nil, Defaults()},
		{"loaded", &fakeRepo{loaded: custom}, custom},
		{"load failure", &fakeRepo{loadErr: errors.New("disk")}, Defaults()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(tt.repo)
			assert.Equal(t, tt.want, s.State())
		})
	}
}

func TestStore_Update(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value any
		want  State
	}{
		{"voice", KeyDefaultVoice, "am_adam", State{DefaultVoice: "am_adam", DefaultSpeed: 1, AutoPlay: true}},
		{"speed float", KeyDefaultSpeed, 1.5, State{DefaultVoice: "af_heart", DefaultSpeed: 1.5, AutoPlay: true}},
		{"speed string", KeyDefaultSpeed, "0.75", State{DefaultVoice: "af_heart", DefaultSpeed: 0.75, AutoPlay: true}},
		{"autoplay bool", KeyAutoPlay, false, State{DefaultVoice: "af_heart", DefaultSpeed: 1, AutoPlay: false}},
		{"autoplay string", KeyAutoPlay, "false", State{DefaultVoice: "af_heart", DefaultSpeed: 1, AutoPlay: false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeRepo{loaded: Defaults()}
			s := NewStore(repo)

			require.NoError(t, s.Update(tt.key, tt.value))

			assert.Equal(t, tt.want, s.State())
			require.Len(t, repo.saved, 1)
			assert.Equal(t, tt.want, repo.saved[0])
		})
	}
}

func TestStore_UpdateErrors(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   any
		wantErr error
	}{
		{"unknown key", "theme", "dark", ErrUnknownKey},
		{"undecodable speed", KeyDefaultSpeed, "fast", ErrInvalidValue},
		{"non-positive speed", KeyDefaultSpeed, 0, ErrInvalidValue},
		{"empty voice", KeyDefaultVoice, "", ErrInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeRepo{loaded: Defaults()}
			s := NewStore(repo)

			err := s.Update(tt.key, tt.value)

			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr))
			assert.Equal(t, Defaults(), s.State(), "state unchanged")
			assert.Empty(t, repo.saved)
		})
	}
}

func TestStore_UpdateSurvivesSaveFailure(t *testing.T) {
	repo := &fakeRepo{loaded: Defaults(), saveErr: errors.New("read-only")}
	s := NewStore(repo)

	require.NoError(t, s.Update(KeyAutoPlay, false))
	assert.False(t, s.State().AutoPlay)
}

func TestStore_UpdateFromSubscriber(t *testing.T) {
	repo := &fakeRepo{loaded: Defaults()}
	s := NewStore(repo)

	// Clamp speed from inside a subscriber.
	s.Subscribe(func(st State) {
		if st.DefaultSpeed > 2 {
			assert.NoError(t, s.Update(KeyDefaultSpeed, 2))
		}
	})

	done := make(chan error, 1)
	go func() { done <- s.Update(KeyDefaultSpeed, 3) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Update from a subscriber did not return")
	}

	assert.Equal(t, 2.0, s.State().DefaultSpeed)
	require.NotEmpty(t, repo.saved)
	assert.Equal(t, 2.0, repo.saved[len(repo.saved)-1].DefaultSpeed, "latest value is persisted")
}

func TestStore_ResetFromSubscriber(t *testing.T) {
	s := NewStore(nil)
	s.Subscribe(func(st State) {
		if st.DefaultVoice == "bad" {
			s.Reset()
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Update(KeyDefaultVoice, "bad")
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Reset from a subscriber did not return")
	}
	assert.Equal(t, Defaults(), s.State())
}

func TestStore_Reset(t *testing.T) {
	repo := &fakeRepo{loaded: State{DefaultVoice: "bf_emma", DefaultSpeed: 2, AutoPlay: false}}
	s := NewStore(repo)

	var got []State
	s.Subscribe(func(st State) { got = append(got, st) })

	s.Reset()

	assert.Equal(t, Defaults(), s.State())
	require.Len(t, got, 2)
	assert.Equal(t, Defaults(), got[1])
	require.Len(t, repo.saved, 1)
	assert.Equal(t, Defaults(), repo.saved[0])
}
