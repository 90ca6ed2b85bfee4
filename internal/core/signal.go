package core

import (
	"html"

	"github.com/dkeye/confsfu/internal/domain"
	"github.com/goccy/go-json"
)

// SessionID identifies one signaling connection.
type SessionID string

// Frame is a raw binary payload.
type Frame []byte

//go:generate mockgen -source=signal.go -destination=mocks/mock_signal.go -package=mocks

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// Events pushed to peers.
const (
	EventUserJoined       = "userJoined"
	EventUserDisconnected = "userDisconnected"
	EventNewMessage       = "newMessage"
	EventNewProducer      = "newProducer"
	EventActiveSpeaker    = "mediaActiveSpeaker"
	EventProducerClose    = "mediaProducerClose"
	EventProducerPause    = "mediaProducerPause"
	EventProducerResume   = "mediaProducerResume"
	EventDisconnectMember = "mediaDisconnectMember"
)

// Envelope is the wire shape of every pushed event.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

func EncodeEvent(event string, payload any) (Frame, error) {
	return json.Marshal(Envelope{Type: event, Data: payload})
}

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []domain.PeerID
}

func (r *PublishResult) add(peer domain.PeerID, err error) {
	if err != nil {
		r.Dropped = append(r.Dropped, peer)
		return
	}
	r.SendTo++
}

// Event payloads.
type (
	PeerEvent struct {
		PeerID  domain.PeerID  `json:"peerId"`
		Profile domain.Profile `json:"userProfile"`
	}

	MessageAuthor struct {
		Name     string `json:"name"`
		Picture  string `json:"picture,omitempty"`
		Username string `json:"username,omitempty"`
	}

	// ChatMessage is the newMessage payload, used for chat and system notices.
	ChatMessage struct {
		Content   string        `json:"content"`
		Room      string        `json:"room"`
		From      MessageAuthor `json:"from"`
		Clickable bool          `json:"clickable,omitempty"`
		IsHTML    bool          `json:"isHtml,omitempty"`
	}

	NewProducerEvent struct {
		PeerID     domain.PeerID  `json:"peerId"`
		ProducerID string         `json:"producerId"`
		Kind       string         `json:"kind"`
		Profile    domain.Profile `json:"userProfile"`
	}

	// ActiveSpeakerEvent has a nil PeerID on silence.
	ActiveSpeakerEvent struct {
		PeerID *domain.PeerID `json:"peerId"`
		Volume *int           `json:"volume,omitempty"`
	}

	// ProducerStateEvent tells a consuming peer what happened to the producer
	// behind one of its consumers.
	ProducerStateEvent struct {
		PeerID     domain.PeerID `json:"peerId"`
		Kind       string        `json:"kind"`
		ConsumerID string        `json:"consumerId"`
	}

	DisconnectMemberEvent struct {
		ID domain.PeerID `json:"id"`
	}
)

func joinNotice(room domain.RoomName, p domain.Profile) ChatMessage {
	return ChatMessage{
		Room: string(room),
		From: MessageAuthor{
			Name:     "<i>" + html.EscapeString(p.DisplayName) + " joined the stream</i>",
			Picture:  p.Picture,
			Username: p.Identifier,
		},
		Clickable: true,
		IsHTML:    true,
	}
}
