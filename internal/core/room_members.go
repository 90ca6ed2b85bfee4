package core

import (
	"context"

	"github.com/dkeye/confsfu/internal/domain"
	"github.com/rs/zerolog/log"
)

// AddClient registers a peer, loading the router first if needed. A peer id
// already present is replaced: the previous session's media is torn down.
func (r *Room) AddClient(ctx context.Context, id domain.PeerID, sig SignalConnection, profile domain.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureRouterLocked(ctx); err != nil {
		return err
	}
	if old, ok := r.clients[id]; ok {
		r.teardownPeerLocked(ctx, old, true)
		r.load.PeerLeft()
	}
	r.seq++
	p := newPeerSession(id, sig, profile, r.seq)
	r.clients[id] = p
	r.load.PeerJoined()
	if r.policy.OnJoin(r.hostID != "", len(r.clients)) {
		r.hostID = id
	}
	log.Info().Str("module", "core.room").Str("room", string(r.name)).Str("peer", string(id)).Int("clients", len(r.clients)).Msg("peer joined")

	if host, ok := r.clients[r.hostID]; ok {
		r.sendLocked(host, EventNewMessage, joinNotice(r.name, profile))
	}
	r.broadcastLocked(id, EventUserJoined, PeerEvent{PeerID: id, Profile: profile})
	return nil
}

// OnPeerDisconnect removes a peer and closes everything it owns. It reports
// whether the peer was a member. The host is not reassigned.
func (r *Room) OnPeerDisconnect(ctx context.Context, id domain.PeerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.clients[id]
	if !ok {
		return false
	}
	r.broadcastLocked(id, EventUserDisconnected, PeerEvent{PeerID: id, Profile: p.Profile})
	r.teardownPeerLocked(ctx, p, true)
	delete(r.clients, id)
	r.load.PeerLeft()
	log.Info().Str("module", "core.room").Str("room", string(r.name)).Str("peer", string(id)).Int("clients", len(r.clients)).Msg("peer left")
	return true
}

// Leave is an explicit departure; it behaves exactly like a disconnect.
func (r *Room) Leave(ctx context.Context, id domain.PeerID) bool {
	return r.OnPeerDisconnect(ctx, id)
}

// Participants returns member profiles in join order.
func (r *Room) Participants() []domain.Profile {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Profile, 0, len(r.clients))
	for _, p := range r.peersLocked() {
		out = append(out, p.Profile)
	}
	return out
}

func (r *Room) HasPeer(id domain.PeerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.clients[id]
	return ok
}

func (r *Room) ClientCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Host returns the host id. The host may have left the room.
func (r *Room) Host() (domain.PeerID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hostID, r.hostID != ""
}

// Broadcast sends to every member except from.
func (r *Room) Broadcast(from domain.PeerID, event string, payload any) PublishResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.broadcastLocked(from, event, payload)
}

// BroadcastAll sends to every member.
func (r *Room) BroadcastAll(event string, payload any) PublishResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.broadcastLocked("", event, payload)
}

// BroadcastToHost sends to the host only; nothing is sent when the host is
// not a member.
func (r *Room) BroadcastToHost(event string, payload any) PublishResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := PublishResult{}
	if host, ok := r.clients[r.hostID]; ok {
		res.add(host.ID, r.sendLocked(host, event, payload))
	}
	return res
}

// DrainDropped returns peers whose signal queue rejected a frame since the
// last call.
func (r *Room) DrainDropped() []domain.PeerID {
	r.dmu.Lock()
	defer r.dmu.Unlock()
	if len(r.dropped) == 0 {
		return nil
	}
	out := make([]domain.PeerID, 0, len(r.dropped))
	for id := range r.dropped {
		out = append(out, id)
	}
	clear(r.dropped)
	return out
}

func (r *Room) markDropped(id domain.PeerID) {
	r.dmu.Lock()
	r.dropped[id] = struct{}{}
	r.dmu.Unlock()
}

func (r *Room) sendLocked(p *PeerSession, event string, payload any) error {
	err := p.send(event, payload)
	if err != nil {
		r.markDropped(p.ID)
		log.Debug().Str("module", "core.room").Str("room", string(r.name)).Str("peer", string(p.ID)).Str("event", event).Err(err).Msg("send dropped")
	}
	return err
}

func (r *Room) broadcastLocked(from domain.PeerID, event string, payload any) PublishResult {
	res := PublishResult{}
	frame, err := EncodeEvent(event, payload)
	if err != nil {
		log.Error().Str("module", "core.room").Str("room", string(r.name)).Str("event", event).Err(err).Msg("encode event")
		return res
	}
	for _, p := range r.peersLocked() {
		if p.ID == from {
			continue
		}
		err := p.signal.TrySend(frame)
		if err != nil {
			r.markDropped(p.ID)
		}
		res.add(p.ID, err)
	}
	log.Debug().Str("module", "core.room").Str("room", string(r.name)).Str("event", event).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}
