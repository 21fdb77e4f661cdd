// Package settings provides the user preference store.
package settings

import (
	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/mobiletts/internal/app/observable"
)

// Setting keys accepted by Store.Update.
const (
	KeyDefaultVoice = "defaultVoice"
	KeyDefaultSpeed = "defaultSpeed"
	KeyAutoPlay     = "autoPlay"
)

var (
	// ErrUnknownKey is returned when Update is called with an unknown key.
	ErrUnknownKey = errors.New("unknown setting key")
	// ErrInvalidValue is returned when a value cannot be applied to its key.
	ErrInvalidValue = errors.New("invalid setting value")
)

// State represents the user preferences.
type State struct {
	DefaultVoice string  `mapstructure:"defaultVoice" default:"af_heart" validate:"required"`
	DefaultSpeed float64 `mapstructure:"defaultSpeed" default:"1" validate:"gt=0"`
	AutoPlay     bool    `mapstructure:"autoPlay" default:"true"`
}

// Defaults returns the built-in preferences.
func Defaults() State {
	var st State
	if err := defaults.Set(&st); err != nil {
		// Tags are static, so this only fires on a programming error.
		panic(err)
	}
	return st
}

// Keys returns the keys accepted by Update.
func Keys() []string {
	return []string{KeyDefaultVoice, KeyDefaultSpeed, KeyAutoPlay}
}

// Repository loads and persists preferences.
type Repository interface {
	Load() (State, error)
	Save(State) error
}

// Store holds the user preferences.
type Store struct {
	value    *observable.Value[State]
	repo     Repository
	validate *validator.Validate
}

// NewStore creates a store seeded from repo. A nil repo or a load failure
// falls back to the defaults. Every later change is saved through repo.
func NewStore(repo Repository) *Store {
	initial := Defaults()
	if repo != nil {
		loaded, err := repo.Load()
		if err != nil {
			zlog.Warn().Err(err).Msg("settings: failed to load preferences, using defaults")
		} else {
			initial = loaded
		}
	}

	return &Store{
		value:    observable.New(initial),
		repo:     repo,
		validate: validator.New(),
	}
}

// State returns the current preferences.
func (s *Store) State() State {
	return s.value.Get()
}

// Subscribe registers fn for preference changes.
func (s *Store) Subscribe(fn func(State)) func() {
	return s.value.Subscribe(fn)
}

// Update replaces the field named key with value. Values are weakly typed, so
// "1.5" is accepted for defaultSpeed and "false" for autoPlay.
func (s *Store) Update(key string, value any) error {
	if !knownKey(key) {
		return errors.Wrapf(ErrUnknownKey, "key=%s", key)
	}

	var applyErr error
	changed := s.value.UpdateIf(func(cur State) (State, bool) {
		next, err := s.apply(cur, key, value)
		if err != nil {
			applyErr = err
			return cur, false
		}
		return next, true
	})
	if applyErr != nil {
		return applyErr
	}
	if changed {
		zlog.Debug().Msgf("settings: updated: key=%s value=%v", key, value)
		// Subscribers may have changed the value again, so persist the latest.
		s.save(s.value.Get())
	}
	return nil
}

// Reset restores the defaults.
func (s *Store) Reset() {
	s.value.Set(Defaults())
	s.save(s.value.Get())
}

func (s *Store) apply(cur State, key string, value any) (State, error) {
	next := cur
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &next,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return cur, errors.Wrap(err, "failed to create decoder")
	}
	if err := decoder.Decode(map[string]any{key: value}); err != nil {
		return cur, errors.Wrapf(ErrInvalidValue, "key=%s: %v", key, err)
	}
	if err := s.validate.Struct(next); err != nil {
		return cur, errors.Wrapf(ErrInvalidValue, "key=%s: %v", key, err)
	}
	return next, nil
}

func (s *Store) save(st State) {
	if s.repo == nil {
		return
	}
	if err := s.repo.Save(st); err != nil {
		zlog.Warn().Err(err).Msg("settings: failed to save preferences")
	}
}

func knownKey(key string) bool {
	for _, k := range Keys() {
		if k == key {
			return true
		}
	}
	return false
}
