package signal

import (
	"github.com/dkeye/confsfu/internal/core"
	"github.com/dkeye/confsfu/internal/domain"
	"github.com/dkeye/confsfu/internal/media"
	"github.com/goccy/go-json"
)

const (
	TypeAck   = "ack"
	TypeError = "error"
)

// request is what a client sends: {"type", "id", "data"}. The reply carries
// the same id.
type request struct {
	Type string          `json:"type"`
	ID   json.RawMessage `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

type response struct {
	Type    string          `json:"type"`
	ID      json.RawMessage `json:"id,omitempty"`
	Data    any             `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
}

type roomPayload struct {
	Room domain.RoomName `json:"room" validate:"required,max=64"`
}

type peerPayload struct {
	Room   domain.RoomName `json:"room" validate:"required,max=64"`
	PeerID domain.PeerID   `json:"peerId" validate:"required,max=64"`
}

type joinPayload struct {
	Room        domain.RoomName `json:"room" validate:"required,max=64"`
	PeerID      domain.PeerID   `json:"peerId" validate:"required,max=64"`
	UserProfile domain.Profile  `json:"userProfile"`
}

type messagePayload struct {
	Room    domain.RoomName  `json:"room" validate:"required,max=64"`
	Message core.ChatMessage `json:"message"`
}

type transportPayload struct {
	Room   domain.RoomName      `json:"room" validate:"required,max=64"`
	PeerID domain.PeerID        `json:"peerId" validate:"required,max=64"`
	Type   domain.TransportType `json:"type" validate:"required,oneof=producer consumer"`
}

type connectPayload struct {
	Room           domain.RoomName      `json:"room" validate:"required,max=64"`
	PeerID         domain.PeerID        `json:"peerId" validate:"required,max=64"`
	Type           domain.TransportType `json:"type" validate:"required,oneof=producer consumer"`
	DtlsParameters media.DtlsParameters `json:"dtlsParameters"`
	IceParameters  *media.IceParameters `json:"iceParameters,omitempty"`
	IceCandidates  []media.IceCandidate `json:"iceCandidates,omitempty"`
}

type producePayload struct {
	Room          domain.RoomName     `json:"room" validate:"required,max=64"`
	PeerID        domain.PeerID       `json:"peerId" validate:"required,max=64"`
	Kind          media.Kind          `json:"kind" validate:"required,oneof=audio video"`
	RtpParameters media.RtpParameters `json:"rtpParameters"`
	Paused        bool                `json:"paused"`
}

type consumePayload struct {
	Room            domain.RoomName        `json:"room" validate:"required,max=64"`
	PeerID          domain.PeerID          `json:"peerId" validate:"required,max=64"`
	Kind            media.Kind             `json:"kind" validate:"required,oneof=audio video"`
	ToConsumePeerID domain.PeerID          `json:"toConsumePeerId,omitempty" validate:"max=64"`
	RtpCapabilities *media.RtpCapabilities `json:"rtpCapabilities,omitempty"`
}

type producerPayload struct {
	Room   domain.RoomName `json:"room" validate:"required,max=64"`
	PeerID domain.PeerID   `json:"peerId" validate:"required,max=64"`
	Kind   media.Kind      `json:"kind" validate:"required,oneof=audio video"`
}

type keyFramePayload struct {
	Room       domain.RoomName `json:"room" validate:"required,max=64"`
	PeerID     domain.PeerID   `json:"peerId" validate:"required,max=64"`
	ConsumerID string          `json:"consumerId" validate:"required"`
}

// decode unmarshals req.Data into v and validates it.
func (ctl *SignalWSController) decode(req request, v any) error {
	if len(req.Data) == 0 {
		return ErrBadPayload
	}
	if err := json.Unmarshal(req.Data, v); err != nil {
		return badPayload(err)
	}
	if err := ctl.validate.Struct(v); err != nil {
		return badPayload(err)
	}
	return nil
}
