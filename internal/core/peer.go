package core

import (
	"time"

	"github.com/dkeye/confsfu/internal/domain"
	"github.com/dkeye/confsfu/internal/media"
)

// PeerSession is one participant of a room and the media it owns.
type PeerSession struct {
	ID       domain.PeerID
	Profile  domain.Profile
	JoinedAt time.Time

	signal SignalConnection
	seq    uint64
	media  MediaState
}

func newPeerSession(id domain.PeerID, sig SignalConnection, profile domain.Profile, seq uint64) *PeerSession {
	return &PeerSession{
		ID:       id,
		Profile:  profile,
		JoinedAt: time.Now(),
		signal:   sig,
		seq:      seq,
		media: MediaState{
			ConsumersVideo: make(map[domain.PeerID]media.Consumer),
			ConsumersAudio: make(map[domain.PeerID]media.Consumer),
		},
	}
}

func (p *PeerSession) Signal() SignalConnection { return p.signal }

func (p *PeerSession) send(event string, payload any) error {
	frame, err := EncodeEvent(event, payload)
	if err != nil {
		return err
	}
	return p.signal.TrySend(frame)
}

// MediaState holds the engine handles of a peer. Consumer maps live on the
// producing peer and are keyed by the consuming peer.
type MediaState struct {
	ProducerTransport media.Transport
	ConsumerTransport media.Transport
	ProducerVideo     media.Producer
	ProducerAudio     media.Producer
	ConsumersVideo    map[domain.PeerID]media.Consumer
	ConsumersAudio    map[domain.PeerID]media.Consumer
}

func (m *MediaState) Transport(t domain.TransportType) media.Transport {
	if t == domain.TransportProducer {
		return m.ProducerTransport
	}
	return m.ConsumerTransport
}

func (m *MediaState) setTransport(t domain.TransportType, tr media.Transport) {
	if t == domain.TransportProducer {
		m.ProducerTransport = tr
		return
	}
	m.ConsumerTransport = tr
}

func (m *MediaState) Producer(kind media.Kind) media.Producer {
	if kind == media.KindAudio {
		return m.ProducerAudio
	}
	return m.ProducerVideo
}

func (m *MediaState) setProducer(kind media.Kind, p media.Producer) {
	if kind == media.KindAudio {
		m.ProducerAudio = p
		return
	}
	m.ProducerVideo = p
}

func (m *MediaState) Consumers(kind media.Kind) map[domain.PeerID]media.Consumer {
	if kind == media.KindAudio {
		return m.ConsumersAudio
	}
	return m.ConsumersVideo
}

func liveTransport(t media.Transport) bool { return t != nil && !t.Closed() }

func liveProducer(p media.Producer) bool { return p != nil && !p.Closed() }
