package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCodecs() []CodecConfig {
	return []CodecConfig{
		{Kind: KindAudio, MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
		{Kind: KindVideo, MimeType: "video/VP8", ClockRate: 90000},
	}
}

func TestNewRtpCapabilities_AssignsDynamicPayloadTypes(t *testing.T) {
	caps, err := NewRtpCapabilities(testCodecs())
	require.NoError(t, err)
	require.Len(t, caps.Codecs, 2)
	assert.Equal(t, uint8(100), caps.Codecs[0].PreferredPayloadType)
	assert.Equal(t, uint8(101), caps.Codecs[1].PreferredPayloadType)
	assert.NotEmpty(t, caps.Codecs[1].RtcpFeedback)
	assert.NotEmpty(t, caps.HeaderExtensions)
}

func TestNewRtpCapabilities_RejectsBadCodecs(t *testing.T) {
	cases := map[string]CodecConfig{
		"bad kind":      {Kind: "data", MimeType: "data/x", ClockRate: 1},
		"kind mismatch": {Kind: KindAudio, MimeType: "video/VP8", ClockRate: 90000},
		"no clock rate": {Kind: KindVideo, MimeType: "video/VP8"},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewRtpCapabilities([]CodecConfig{c})
			require.Error(t, err)
		})
	}
}

func TestMatchCodec(t *testing.T) {
	caps, err := NewRtpCapabilities(testCodecs())
	require.NoError(t, err)

	params := RtpParameters{Codecs: []RtpCodecParameters{{MimeType: "AUDIO/OPUS", ClockRate: 48000, Channels: 2, PayloadType: 111}}}
	c, ok := MatchCodec(params, caps)
	require.True(t, ok)
	assert.Equal(t, "audio/opus", c.MimeType)

	params = RtpParameters{Codecs: []RtpCodecParameters{{MimeType: "video/H264", ClockRate: 90000}}}
	_, ok = MatchCodec(params, caps)
	assert.False(t, ok)
	assert.ErrorIs(t, SupportsProducer(params, caps), ErrUnsupportedCodec)
	assert.ErrorIs(t, SupportsProducer(RtpParameters{}, caps), ErrNoCodecs)
}

func TestConsumerRtpParameters(t *testing.T) {
	caps, err := NewRtpCapabilities(testCodecs())
	require.NoError(t, err)
	producer := RtpParameters{
		Mid:    "0",
		Codecs: []RtpCodecParameters{{MimeType: "video/vp8", ClockRate: 90000, PayloadType: 96}},
	}
	out, err := ConsumerRtpParameters(KindVideo, producer, caps)
	require.NoError(t, err)
	require.Len(t, out.Codecs, 1)
	assert.Equal(t, uint8(101), out.Codecs[0].PayloadType)
	require.Len(t, out.Encodings, 1)
	assert.NotZero(t, out.HeaderExtensionID(ExtTransportCC))
	assert.Zero(t, out.HeaderExtensionID(ExtAudioLevel))
}

func TestEmitter_UnsubscribeStopsDelivery(t *testing.T) {
	var e Emitter[int]
	var got []int
	sub := e.On(func(v int) { got = append(got, v) })
	e.Emit(1)
	sub.Unsubscribe()
	sub.Unsubscribe()
	e.Emit(2)
	assert.Equal(t, []int{1}, got)
	assert.Zero(t, e.Len())
}

func TestSignal_Clear(t *testing.T) {
	var s Signal
	n := 0
	s.On(func() { n++ })
	s.On(func() { n++ })
	s.Emit()
	s.Clear()
	s.Emit()
	assert.Equal(t, 2, n)
}

func TestLevelAggregator_LoudestThenSilence(t *testing.T) {
	a := NewLevelAggregator(AudioLevelObserverOptions{MaxEntries: 1, Threshold: -80})
	a.Add("p1")
	a.Add("p2")
	a.Record("p1", -30)
	a.Record("p1", -40)
	a.Record("p2", -20)
	a.Record("unknown", 0)

	levels, silence := a.Flush()
	assert.False(t, silence)
	require.Len(t, levels, 1)
	assert.Equal(t, Level{ProducerID: "p2", Volume: -20}, levels[0])

	levels, silence = a.Flush()
	assert.Nil(t, levels)
	assert.True(t, silence)

	// Silence is only reported on the transition.
	_, silence = a.Flush()
	assert.False(t, silence)
}

func TestLevelAggregator_BelowThresholdIsSilent(t *testing.T) {
	a := NewLevelAggregator(AudioLevelObserverOptions{})
	a.Add("p1")
	a.Record("p1", -100)
	levels, silence := a.Flush()
	assert.Empty(t, levels)
	assert.False(t, silence)

	a.Remove("p1")
	assert.False(t, a.Has("p1"))
	assert.Equal(t, DefaultObserverInterval, a.Options().Interval)
}

func TestAppData_PeerID(t *testing.T) {
	assert.Equal(t, "a", AppData{"peerId": "a"}.PeerID())
	assert.Equal(t, "", AppData{"peerId": 3}.PeerID())
	assert.Equal(t, "", AppData(nil).PeerID())
}
