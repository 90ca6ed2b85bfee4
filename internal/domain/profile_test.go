package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfile_Normalize(t *testing.T) {
	p := Profile{}
	require.NoError(t, p.Normalize("peer-1"))
	assert.Equal(t, "peer-1", p.Identifier)
	assert.Equal(t, "peer-1", p.DisplayName)

	p = Profile{Identifier: "alice", DisplayName: strings.Repeat("ы", MaxDisplayNameLen)}
	require.NoError(t, p.Normalize("peer-1"))

	p = Profile{DisplayName: strings.Repeat("x", MaxDisplayNameLen+1)}
	assert.ErrorIs(t, p.Normalize("peer-1"), ErrDisplayNameTooLong)

	p = Profile{Picture: strings.Repeat("x", MaxPictureLen+1)}
	assert.ErrorIs(t, p.Normalize("peer-1"), ErrPictureTooLong)
}

func TestValidateIDs(t *testing.T) {
	assert.ErrorIs(t, PeerID("").Validate(), ErrPeerIDEmpty)
	assert.ErrorIs(t, PeerID(strings.Repeat("a", MaxPeerIDLen+1)).Validate(), ErrPeerIDTooLong)
	assert.NoError(t, NewPeerID().Validate())

	assert.ErrorIs(t, RoomName("  ").Validate(), ErrRoomNameEmpty)
	assert.ErrorIs(t, RoomName(strings.Repeat("r", MaxRoomNameLen+1)).Validate(), ErrRoomNameTooLong)
	assert.NoError(t, RoomName("lobby").Validate())

	assert.True(t, TransportProducer.Valid())
	assert.False(t, TransportType("both").Valid())
}
