package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessions_Lifecycle(t *testing.T) {
	s := NewSessions()
	canceled := false
	s.BindSignal("sid-1", nopSignal{}, func() { canceled = true })

	m := Membership{Room: "lobby", Peer: "alice"}
	require.True(t, s.Join("sid-1", m))
	assert.False(t, s.Join("sid-2", m))
	assert.True(t, s.Owns("sid-1", m))
	assert.False(t, s.Owns("sid-1", Membership{Room: "lobby", Peer: "bob"}))

	sid, ok := s.Lookup(m)
	require.True(t, ok)
	assert.Equal(t, "sid-1", string(sid))

	s.Join("sid-1", Membership{Room: "other", Peer: "alice"})
	s.ForgetRoom("other")
	assert.Equal(t, []Membership{m}, s.Memberships("sid-1"))

	assert.True(t, s.Cancel("sid-1"))
	assert.True(t, canceled)

	assert.Equal(t, []Membership{m}, s.Unbind("sid-1"))
	assert.Nil(t, s.Unbind("sid-1"))
	assert.Zero(t, s.Len())
}
