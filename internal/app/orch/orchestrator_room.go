package orch

import (
	"context"

	"github.com/dkeye/confsfu/internal/app"
	"github.com/dkeye/confsfu/internal/core"
	"github.com/dkeye/confsfu/internal/domain"
	"github.com/dkeye/confsfu/internal/media"
	"github.com/rs/zerolog/log"
)

type JoinRequest struct {
	Room    domain.RoomName
	PeerID  domain.PeerID
	Profile domain.Profile
}

// Connect registers a signaling connection; cancel tears it down.
func (o *Orchestrator) Connect(sid core.SessionID, sig core.SignalConnection, cancel context.CancelFunc) {
	o.Sessions.BindSignal(sid, sig, cancel)
}

// Disconnect removes the connection and disconnects every peer it joined.
func (o *Orchestrator) Disconnect(ctx context.Context, sid core.SessionID) {
	for _, m := range o.Sessions.Unbind(sid) {
		room, ok := o.Rooms.Get(m.Room)
		if !ok {
			continue
		}
		room.OnPeerDisconnect(ctx, m.Peer)
		o.afterDeparture(ctx, room)
	}
}

// JoinRoom creates the room on first use, adds the peer and returns the
// router capabilities.
func (o *Orchestrator) JoinRoom(ctx context.Context, sid core.SessionID, req JoinRequest) (media.RtpCapabilities, error) {
	const op = "orch.joinRoom"
	sig, ok := o.Sessions.Signal(sid)
	if !ok {
		return media.RtpCapabilities{}, core.NewError(core.KindNotFound, op, core.ErrPeerNotFound)
	}
	// A room unregistered while empty may be picked up here; retry once
	// against the fresh registry entry.
	for attempt := 0; ; attempt++ {
		room, err := o.Rooms.GetOrCreate(ctx, req.Room)
		if err != nil {
			return media.RtpCapabilities{}, err
		}
		if err := room.AddClient(ctx, req.PeerID, sig, req.Profile); err != nil {
			return media.RtpCapabilities{}, err
		}
		if cur, ok := o.Rooms.Get(req.Room); (!ok || cur != room) && attempt == 0 {
			room.Leave(ctx, req.PeerID)
			continue
		}
		m := app.Membership{Room: req.Room, Peer: req.PeerID}
		if prev, ok := o.Sessions.Lookup(m); ok && prev != sid {
			o.Sessions.Leave(prev, m)
		}
		o.Sessions.Join(sid, m)
		o.applyBackpressure(room)
		log.Info().Str("module", "app.orch").Str("sid", string(sid)).Str("room", string(req.Room)).Str("peer", string(req.PeerID)).Msg("joined room")
		return room.RtpCapabilities(ctx)
	}
}

func (o *Orchestrator) LeaveRoom(ctx context.Context, sid core.SessionID, name domain.RoomName, peer domain.PeerID) error {
	room, err := o.member("orch.leaveRoom", sid, name, peer)
	if err != nil {
		return err
	}
	o.Sessions.Leave(sid, app.Membership{Room: name, Peer: peer})
	room.Leave(ctx, peer)
	o.applyBackpressure(room)
	o.afterDeparture(ctx, room)
	return nil
}

func (o *Orchestrator) afterDeparture(ctx context.Context, room *core.Room) {
	if !o.CloseWhenEmpty {
		return
	}
	if o.Rooms.RemoveIfEmpty(room) {
		room.Close(ctx)
	}
}

func (o *Orchestrator) Participants(name domain.RoomName) ([]domain.Profile, error) {
	room, err := o.room("orch.participants", name)
	if err != nil {
		return nil, err
	}
	return room.Participants(), nil
}

// SendMessage broadcasts a chat message to the whole room.
func (o *Orchestrator) SendMessage(name domain.RoomName, msg core.ChatMessage) (core.PublishResult, error) {
	room, err := o.room("orch.sendMessage", name)
	if err != nil {
		return core.PublishResult{}, err
	}
	msg.Room = string(name)
	res := room.BroadcastAll(core.EventNewMessage, msg)
	o.applyBackpressure(room)
	return res, nil
}

// UnpublishRoom closes the room; it stays registered and reopens on the
// next join unless rooms close when empty.
func (o *Orchestrator) UnpublishRoom(ctx context.Context, name domain.RoomName) error {
	room, err := o.room("orch.unpublishRoom", name)
	if err != nil {
		return err
	}
	room.Close(ctx)
	o.Sessions.ForgetRoom(name)
	if o.CloseWhenEmpty {
		o.Rooms.RemoveIfEmpty(room)
	}
	o.applyBackpressure(room)
	log.Info().Str("module", "app.orch").Str("room", string(name)).Msg("room unpublished")
	return nil
}
