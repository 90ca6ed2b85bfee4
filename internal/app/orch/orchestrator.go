package orch

import (
	"context"

	"github.com/dkeye/confsfu/internal/app"
	"github.com/dkeye/confsfu/internal/core"
	"github.com/dkeye/confsfu/internal/domain"
	"github.com/rs/zerolog/log"
)

// Orchestrator ties signaling connections to rooms. Every operation the
// signaling layer can request goes through it.
type Orchestrator struct {
	Pool     *app.Pool
	Rooms    *app.Registry
	Sessions *app.Sessions
	Policy   app.Policy

	// CloseWhenEmpty closes and unregisters a room when its last peer leaves.
	CloseWhenEmpty bool
}

func (o *Orchestrator) room(op string, name domain.RoomName) (*core.Room, error) {
	room, ok := o.Rooms.Get(name)
	if !ok {
		return nil, core.NewError(core.KindNotFound, op, core.ErrRoomNotFound)
	}
	return room, nil
}

// member resolves a room and checks that sid joined it as peer.
func (o *Orchestrator) member(op string, sid core.SessionID, name domain.RoomName, peer domain.PeerID) (*core.Room, error) {
	room, err := o.room(op, name)
	if err != nil {
		return nil, err
	}
	if !o.Sessions.Owns(sid, app.Membership{Room: name, Peer: peer}) {
		return nil, core.NewError(core.KindNotFound, op, core.ErrPeerNotFound)
	}
	return room, nil
}

// applyBackpressure runs the policy for every peer the room failed to reach.
func (o *Orchestrator) applyBackpressure(room *core.Room) {
	dropped := room.DrainDropped()
	if o.Policy == nil || len(dropped) == 0 {
		return
	}
	for _, peer := range dropped {
		switch o.Policy.OnBackPressure(room, peer) {
		case app.KickMember:
			if sid, ok := o.Sessions.Lookup(app.Membership{Room: room.Name(), Peer: peer}); ok {
				log.Warn().Str("module", "app.orch").Str("room", string(room.Name())).Str("peer", string(peer)).Msg("kicking slow peer")
				o.Sessions.Cancel(sid)
			}
		case app.MarkSlow, app.DropFrame, app.NoAction:
		}
	}
}

// Workers reports the load of every worker.
func (o *Orchestrator) Workers() []app.WorkerInfo {
	return o.Pool.Info()
}

func (o *Orchestrator) RoomStats(name domain.RoomName) (core.RoomStats, error) {
	room, err := o.room("orch.roomStats", name)
	if err != nil {
		return core.RoomStats{}, err
	}
	return room.Stats(), nil
}

func (o *Orchestrator) ListRooms() []core.RoomStats {
	rooms := o.Rooms.List()
	out := make([]core.RoomStats, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, room.Stats())
	}
	return out
}

// Shutdown closes every room, then the workers.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	err := o.Rooms.CloseAll(ctx)
	o.Pool.Close()
	return err
}
