package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_InitialState(t *testing.T) {
	s := NewStore()

	assert.False(t, s.IsAuthenticated())
	assert.Nil(t, s.State().Token)
	_, ok := s.Token()
	assert.False(t, ok)
}

func TestStore_SetAndClearToken(t *testing.T) {
	s := NewStore()

	var states []State
	s.Subscribe(func(st State) { states = append(states, st) })

	s.SetToken("jwt-token")
	token, ok := s.Token()
	require.True(t, ok)
	assert.Equal(t, "jwt-token", token)
	assert.True(t, s.IsAuthenticated())

	s.ClearToken()
	assert.False(t, s.IsAuthenticated())

	require.Len(t, states, 3)
	for _, st := range states {
		assert.Equal(t, st.Token != nil, st.IsAuthenticated, "authenticated iff token is set")
	}
}
