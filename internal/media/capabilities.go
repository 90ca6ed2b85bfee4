package media

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

const (
	ExtMid           = "urn:ietf:params:rtp-hdrext:sdes:mid"
	ExtAudioLevel    = "urn:ietf:params:rtp-hdrext:ssrc-audio-level"
	ExtAbsSendTime   = "http://www.webrtc.org/experiments/rtp-hdrext/abs-send-time"
	ExtTransportCC   = "http://www.ietf.org/id/draft-holmer-rmcat-transport-wide-cc-extensions-01"
	firstDynamicType = 100
)

var videoFeedback = []RtcpFeedback{
	{Type: "nack"},
	{Type: "nack", Parameter: "pli"},
	{Type: "ccm", Parameter: "fir"},
	{Type: "goog-remb"},
	{Type: "transport-cc"},
}

var audioFeedback = []RtcpFeedback{
	{Type: "transport-cc"},
}

// NewRtpCapabilities turns the configured codec list into router
// capabilities. Payload types are assigned from the dynamic range in list
// order.
func NewRtpCapabilities(codecs []CodecConfig) (RtpCapabilities, error) {
	caps := RtpCapabilities{}
	pt := firstDynamicType
	for _, c := range codecs {
		if !c.Kind.Valid() {
			return RtpCapabilities{}, fmt.Errorf("codec %q: invalid kind %q", c.MimeType, c.Kind)
		}
		if !strings.HasPrefix(strings.ToLower(c.MimeType), string(c.Kind)+"/") {
			return RtpCapabilities{}, fmt.Errorf("codec %q: mime type does not match kind %q", c.MimeType, c.Kind)
		}
		if c.ClockRate == 0 {
			return RtpCapabilities{}, fmt.Errorf("codec %q: clock rate required", c.MimeType)
		}
		if pt > 127 {
			return RtpCapabilities{}, fmt.Errorf("codec %q: %w", c.MimeType, ErrPayloadTypesExhausted)
		}
		fb := audioFeedback
		if c.Kind == KindVideo {
			fb = videoFeedback
		}
		caps.Codecs = append(caps.Codecs, RtpCodecCapability{
			Kind:                 c.Kind,
			MimeType:             c.MimeType,
			PreferredPayloadType: uint8(pt),
			ClockRate:            c.ClockRate,
			Channels:             c.Channels,
			Parameters:           c.Parameters,
			RtcpFeedback:         append([]RtcpFeedback(nil), fb...),
		})
		pt++
	}
	caps.HeaderExtensions = []RtpHeaderExtension{
		{Kind: KindAudio, URI: ExtMid, PreferredID: 1},
		{Kind: KindVideo, URI: ExtMid, PreferredID: 1},
		{Kind: KindAudio, URI: ExtAbsSendTime, PreferredID: 4},
		{Kind: KindVideo, URI: ExtAbsSendTime, PreferredID: 4},
		{Kind: KindVideo, URI: ExtTransportCC, PreferredID: 5},
		{Kind: KindAudio, URI: ExtAudioLevel, PreferredID: 10},
	}
	return caps, nil
}

func sameCodec(mime string, clockRate uint32, channels uint16, c RtpCodecCapability) bool {
	if !strings.EqualFold(mime, c.MimeType) || clockRate != c.ClockRate {
		return false
	}
	if channels == 0 || c.Channels == 0 {
		return true
	}
	return channels == c.Channels
}

// MatchCodec returns the first producer codec that caps can receive.
func MatchCodec(params RtpParameters, caps RtpCapabilities) (RtpCodecCapability, bool) {
	for _, pc := range params.Codecs {
		for _, cc := range caps.Codecs {
			if sameCodec(pc.MimeType, pc.ClockRate, pc.Channels, cc) {
				return cc, true
			}
		}
	}
	return RtpCodecCapability{}, false
}

// SupportsProducer reports whether every codec of a producer is known to the
// router capabilities.
func SupportsProducer(params RtpParameters, caps RtpCapabilities) error {
	if len(params.Codecs) == 0 {
		return ErrNoCodecs
	}
	if _, ok := MatchCodec(params, caps); !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedCodec, params.Codecs[0].MimeType)
	}
	return nil
}

// ConsumerRtpParameters derives the parameters a consumer receives for a
// producer, using the consumer's payload type and a fresh SSRC.
func ConsumerRtpParameters(kind Kind, producer RtpParameters, caps RtpCapabilities) (RtpParameters, error) {
	codec, ok := MatchCodec(producer, caps)
	if !ok {
		return RtpParameters{}, ErrUnsupportedCodec
	}
	out := RtpParameters{
		Mid: producer.Mid,
		Codecs: []RtpCodecParameters{{
			MimeType:     codec.MimeType,
			PayloadType:  codec.PreferredPayloadType,
			ClockRate:    codec.ClockRate,
			Channels:     codec.Channels,
			Parameters:   codec.Parameters,
			RtcpFeedback: codec.RtcpFeedback,
		}},
		Encodings: []RtpEncodingParameters{{Ssrc: rand.Uint32()}},
		Rtcp:      producer.Rtcp,
	}
	for _, ext := range caps.HeaderExtensions {
		if ext.Kind == kind {
			out.HeaderExtensions = append(out.HeaderExtensions, RtpHeaderExtensionParameters{URI: ext.URI, ID: ext.PreferredID})
		}
	}
	return out, nil
}

// HeaderExtensionID returns the id negotiated for uri, or 0.
func (p RtpParameters) HeaderExtensionID(uri string) int {
	for _, ext := range p.HeaderExtensions {
		if ext.URI == uri {
			return ext.ID
		}
	}
	return 0
}
