// Package auth provides the login session store.
package auth

import "github.com/osa030/mobiletts/internal/app/observable"

// State represents the login session.
// IsAuthenticated is true iff Token is non-nil.
type State struct {
	Token           *string
	IsAuthenticated bool
}

// Store tracks the login session. State is always replaced wholesale.
type Store struct {
	value *observable.Value[State]
}

// NewStore creates an unauthenticated store.
func NewStore() *Store {
	return &Store{
		value: observable.New(State{}),
	}
}

// SetToken marks the session as authenticated with token.
func (s *Store) SetToken(token string) {
	s.value.Set(State{Token: &token, IsAuthenticated: true})
}

// ClearToken clears the session.
func (s *Store) ClearToken() {
	s.value.Set(State{})
}

// Token returns the current token.
func (s *Store) Token() (string, bool) {
	st := s.value.Get()
	if st.Token == nil {
		return "", false
	}
	return *st.Token, true
}

// IsAuthenticated reports whether a token is set.
func (s *Store) IsAuthenticated() bool {
	return s.value.Get().IsAuthenticated
}

// State returns the current state.
func (s *Store) State() State {
	return s.value.Get()
}

// Subscribe registers fn for state changes.
func (s *Store) Subscribe(fn func(State)) func() {
	return s.value.Subscribe(fn)
}
