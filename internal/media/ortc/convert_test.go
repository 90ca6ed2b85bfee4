package ortc

import (
	"testing"

	"github.com/dkeye/confsfu/internal/media"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFmtpLine_SortsKeys(t *testing.T) {
	assert.Equal(t, "", fmtpLine(nil))
	assert.Equal(t, "minptime=10;useinbandfec=1", fmtpLine(map[string]any{"useinbandfec": 1, "minptime": 10}))
}

func TestParameterCodec(t *testing.T) {
	c := parameterCodec(media.RtpCodecParameters{
		MimeType:     "video/VP8",
		PayloadType:  101,
		ClockRate:    90000,
		RtcpFeedback: []media.RtcpFeedback{{Type: "nack", Parameter: "pli"}},
	})
	assert.Equal(t, webrtc.PayloadType(101), c.PayloadType)
	assert.Equal(t, "video/VP8", c.MimeType)
	require.Len(t, c.RTCPFeedback, 1)
	assert.Equal(t, "pli", c.RTCPFeedback[0].Parameter)
}

func TestRemoteICECandidates(t *testing.T) {
	out, err := remoteICECandidates([]media.IceCandidate{
		{Foundation: "1", Priority: 100, IP: "10.0.0.1", Protocol: "udp", Port: 5000, Type: "host"},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, webrtc.ICEProtocolUDP, out[0].Protocol)
	assert.Equal(t, webrtc.ICECandidateTypeHost, out[0].Typ)
	assert.Equal(t, uint16(1), out[0].Component)

	back := iceCandidates(out)
	assert.Equal(t, "10.0.0.1", back[0].IP)
	assert.Equal(t, "udp", back[0].Protocol)

	_, err = remoteICECandidates([]media.IceCandidate{{Foundation: "x", Protocol: "sctp", Type: "host"}})
	assert.Error(t, err)
	_, err = remoteICECandidates([]media.IceCandidate{{Foundation: "x", Protocol: "udp", Type: "bogus"}})
	assert.Error(t, err)
}

func TestDtlsRole(t *testing.T) {
	assert.Equal(t, webrtc.DTLSRoleClient, dtlsRole(media.DtlsRoleClient))
	assert.Equal(t, webrtc.DTLSRoleServer, dtlsRole(media.DtlsRoleServer))
	assert.Equal(t, webrtc.DTLSRoleAuto, dtlsRole(""))

	local := dtlsParameters(webrtc.DTLSParameters{
		Role:         webrtc.DTLSRoleServer,
		Fingerprints: []webrtc.DTLSFingerprint{{Algorithm: "sha-256", Value: "AA"}},
	})
	assert.Equal(t, media.DtlsRoleAuto, local.Role)
	require.Len(t, local.Fingerprints, 1)
	assert.Equal(t, "AA", local.Fingerprints[0].Value)
}

func TestAudioLevel(t *testing.T) {
	raw, err := rtp.AudioLevelExtension{Level: 42, Voice: true}.Marshal()
	require.NoError(t, err)
	pkt := &rtp.Packet{Header: rtp.Header{Version: 2}}
	require.NoError(t, pkt.SetExtension(1, raw))

	vol, ok := audioLevel(pkt, 1)
	require.True(t, ok)
	assert.Equal(t, -42, vol)

	_, ok = audioLevel(pkt, 2)
	assert.False(t, ok)
	_, ok = audioLevel(pkt, 0)
	assert.False(t, ok)
}
