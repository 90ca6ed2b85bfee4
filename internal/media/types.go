package media

import "time"

// Kind is the media kind of a track.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

func (k Kind) Valid() bool { return k == KindAudio || k == KindVideo }

// CodecConfig is one entry of the router codec list as it appears in config.
type CodecConfig struct {
	Kind       Kind           `mapstructure:"kind" json:"kind"`
	MimeType   string         `mapstructure:"mime_type" json:"mimeType"`
	ClockRate  uint32         `mapstructure:"clock_rate" json:"clockRate"`
	Channels   uint16         `mapstructure:"channels" json:"channels,omitempty"`
	Parameters map[string]any `mapstructure:"parameters" json:"parameters,omitempty"`
}

type RtcpFeedback struct {
	Type      string `json:"type"`
	Parameter string `json:"parameter,omitempty"`
}

type RtpCodecCapability struct {
	Kind                 Kind           `json:"kind"`
	MimeType             string         `json:"mimeType"`
	PreferredPayloadType uint8          `json:"preferredPayloadType"`
	ClockRate            uint32         `json:"clockRate"`
	Channels             uint16         `json:"channels,omitempty"`
	Parameters           map[string]any `json:"parameters,omitempty"`
	RtcpFeedback         []RtcpFeedback `json:"rtcpFeedback,omitempty"`
}

type RtpHeaderExtension struct {
	Kind        Kind   `json:"kind"`
	URI         string `json:"uri"`
	PreferredID int    `json:"preferredId"`
}

type RtpCapabilities struct {
	Codecs           []RtpCodecCapability `json:"codecs"`
	HeaderExtensions []RtpHeaderExtension `json:"headerExtensions,omitempty"`
}

type RtpCodecParameters struct {
	MimeType     string         `json:"mimeType"`
	PayloadType  uint8          `json:"payloadType"`
	ClockRate    uint32         `json:"clockRate"`
	Channels     uint16         `json:"channels,omitempty"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	RtcpFeedback []RtcpFeedback `json:"rtcpFeedback,omitempty"`
}

type RtpHeaderExtensionParameters struct {
	URI string `json:"uri"`
	ID  int    `json:"id"`
}

type RtpEncodingParameters struct {
	Ssrc uint32 `json:"ssrc,omitempty"`
	Rid  string `json:"rid,omitempty"`
}

type RtcpParameters struct {
	Cname       string `json:"cname,omitempty"`
	ReducedSize bool   `json:"reducedSize,omitempty"`
}

type RtpParameters struct {
	Mid              string                         `json:"mid,omitempty"`
	Codecs           []RtpCodecParameters           `json:"codecs"`
	HeaderExtensions []RtpHeaderExtensionParameters `json:"headerExtensions,omitempty"`
	Encodings        []RtpEncodingParameters        `json:"encodings,omitempty"`
	Rtcp             RtcpParameters                 `json:"rtcp,omitempty"`
}

type IceParameters struct {
	UsernameFragment string `json:"usernameFragment"`
	Password         string `json:"password"`
	IceLite          bool   `json:"iceLite,omitempty"`
}

type IceCandidate struct {
	Foundation string `json:"foundation"`
	Priority   uint32 `json:"priority"`
	IP         string `json:"ip"`
	Protocol   string `json:"protocol"`
	Port       uint16 `json:"port"`
	Type       string `json:"type"`
	TCPType    string `json:"tcpType,omitempty"`
}

type DtlsFingerprint struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"value"`
}

// DtlsRole is "auto", "client" or "server".
type DtlsRole string

const (
	DtlsRoleAuto   DtlsRole = "auto"
	DtlsRoleClient DtlsRole = "client"
	DtlsRoleServer DtlsRole = "server"
)

type DtlsParameters struct {
	Role         DtlsRole          `json:"role,omitempty"`
	Fingerprints []DtlsFingerprint `json:"fingerprints"`
}

// AppData is opaque metadata attached to engine handles.
type AppData map[string]any

// PeerID returns the "peerId" entry, if it is a string.
func (a AppData) PeerID() string {
	s, _ := a["peerId"].(string)
	return s
}

type ListenIP struct {
	IP          string `mapstructure:"ip" json:"ip"`
	AnnouncedIP string `mapstructure:"announced_ip" json:"announcedIp,omitempty"`
}

type WorkerSettings struct {
	LogLevel   string `mapstructure:"log_level"`
	RtcMinPort uint16 `mapstructure:"rtc_min_port"`
	RtcMaxPort uint16 `mapstructure:"rtc_max_port"`
}

type RouterOptions struct {
	MediaCodecs []CodecConfig
}

type WebRtcTransportOptions struct {
	ListenIPs                       []ListenIP
	EnableUDP                       bool
	EnableTCP                       bool
	EnableSCTP                      bool
	InitialAvailableOutgoingBitrate uint32
	AppData                         AppData
}

type AudioLevelObserverOptions struct {
	MaxEntries int
	Threshold  int // dBov
	Interval   time.Duration
}

// ConnectParams carries the remote side of a transport handshake. ICE
// parameters and candidates are optional for engines that learn them from
// incoming connectivity checks.
type ConnectParams struct {
	DtlsParameters DtlsParameters `json:"dtlsParameters"`
	IceParameters  *IceParameters `json:"iceParameters,omitempty"`
	IceCandidates  []IceCandidate `json:"iceCandidates,omitempty"`
}

type ProducerOptions struct {
	Kind          Kind
	RtpParameters RtpParameters
	Paused        bool
	AppData       AppData
}

type ConsumerOptions struct {
	ProducerID      string
	RtpCapabilities RtpCapabilities
	Paused          bool
	AppData         AppData
}

type AudioVolume struct {
	Producer Producer
	Volume   int
}
