package core

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dkeye/confsfu/internal/domain"
	"github.com/dkeye/confsfu/internal/media"
	"github.com/rs/zerolog/log"
)

// LoadTracker receives advisory load updates for the worker hosting a room.
type LoadTracker interface {
	PeerJoined()
	PeerLeft()
	RouterOpened()
	RouterClosed()
}

type nopLoad struct{}

func (nopLoad) PeerJoined()   {}
func (nopLoad) PeerLeft()     {}
func (nopLoad) RouterOpened() {}
func (nopLoad) RouterClosed() {}

type RoomOptions struct {
	Name        domain.RoomName
	WorkerIndex int
	Worker      media.Worker
	Load        LoadTracker
	HostPolicy  HostPolicy
	Router      media.RouterOptions
	Transport   media.WebRtcTransportOptions
	Observer    media.AudioLevelObserverOptions
}

// Room is one conference bound to a single worker. Every operation holds the
// room mutex for its whole duration, engine calls included. Engine callbacks
// registered by the room take the mutex too, so the room unsubscribes them
// before it closes the handles they are attached to.
type Room struct {
	name        domain.RoomName
	workerIndex int
	worker      media.Worker
	load        LoadTracker
	policy      HostPolicy
	routerOpts  media.RouterOptions
	transport   media.WebRtcTransportOptions
	observerOpt media.AudioLevelObserverOptions

	mu           sync.Mutex
	router       media.Router
	observer     media.AudioLevelObserver
	observerSubs []media.Subscription
	clients      map[domain.PeerID]*PeerSession
	hostID       domain.PeerID
	seq          uint64

	// consumer id -> engine subscriptions
	subs map[string][]media.Subscription

	dmu     sync.Mutex
	dropped map[domain.PeerID]struct{}
}

func NewRoom(opts RoomOptions) *Room {
	r := &Room{
		name:        opts.Name,
		workerIndex: opts.WorkerIndex,
		worker:      opts.Worker,
		load:        opts.Load,
		policy:      opts.HostPolicy,
		routerOpts:  opts.Router,
		transport:   opts.Transport,
		observerOpt: opts.Observer,
		clients:     make(map[domain.PeerID]*PeerSession),
		subs:        make(map[string][]media.Subscription),
		dropped:     make(map[domain.PeerID]struct{}),
	}
	if r.load == nil {
		r.load = nopLoad{}
	}
	if r.policy == nil {
		r.policy = LegacyHostPolicy{}
	}
	return r
}

func (r *Room) Name() domain.RoomName { return r.name }

func (r *Room) WorkerIndex() int { return r.workerIndex }

// Load creates the router and the audio level observer. It is a no-op while
// the router is alive, and recreates both once the router has been closed.
func (r *Room) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ensureRouterLocked(ctx)
}

func (r *Room) ensureRouterLocked(ctx context.Context) error {
	if r.router != nil && !r.router.Closed() {
		return nil
	}
	r.releaseRouterLocked()

	router, err := r.worker.CreateRouter(ctx, r.routerOpts)
	if err != nil {
		return NewError(KindInit, "room.load", fmt.Errorf("create router: %w", err))
	}
	observer, err := router.CreateAudioLevelObserver(ctx, r.observerOpt)
	if err != nil {
		router.Close()
		return NewError(KindInit, "room.load", fmt.Errorf("create audio level observer: %w", err))
	}
	r.router, r.observer = router, observer
	r.observerSubs = []media.Subscription{
		observer.OnVolumes(r.onVolumes),
		observer.OnSilence(r.onSilence),
	}
	r.load.RouterOpened()
	log.Info().Str("module", "core.room").Str("room", string(r.name)).Str("router", router.ID()).Int("worker", r.workerIndex).Msg("router ready")
	return nil
}

func (r *Room) releaseRouterLocked() {
	if r.router == nil {
		return
	}
	for _, s := range r.observerSubs {
		s.Unsubscribe()
	}
	r.observerSubs = nil
	if r.observer != nil && !r.observer.Closed() {
		r.observer.Close()
	}
	if !r.router.Closed() {
		r.router.Close()
	}
	r.router, r.observer = nil, nil
	r.load.RouterClosed()
}

// Closed reports whether the room currently has no live router.
func (r *Room) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.router == nil || r.router.Closed()
}

func (r *Room) RtpCapabilities(ctx context.Context) (media.RtpCapabilities, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureRouterLocked(ctx); err != nil {
		return media.RtpCapabilities{}, err
	}
	return r.router.RtpCapabilities(), nil
}

func (r *Room) onVolumes(volumes []media.AudioVolume) {
	if len(volumes) == 0 {
		return
	}
	peer := domain.PeerID(volumes[0].Producer.AppData().PeerID())
	volume := volumes[0].Volume
	r.BroadcastAll(EventActiveSpeaker, ActiveSpeakerEvent{PeerID: &peer, Volume: &volume})
}

func (r *Room) onSilence() {
	r.BroadcastAll(EventActiveSpeaker, ActiveSpeakerEvent{})
}

// Close notifies every member, tears down all media and closes the router
// and the observer. The room stays usable: the next join or transport
// creation brings the router back.
func (r *Room) Close(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	peers := r.peersLocked()
	for _, p := range peers {
		r.broadcastLocked(p.ID, EventDisconnectMember, DisconnectMemberEvent{ID: p.ID})
	}
	for id, subs := range r.subs {
		for _, s := range subs {
			s.Unsubscribe()
		}
		delete(r.subs, id)
	}
	for _, p := range peers {
		r.teardownPeerLocked(ctx, p, false)
		r.load.PeerLeft()
	}
	clear(r.clients)
	r.hostID = ""
	r.releaseRouterLocked()
	log.Info().Str("module", "core.room").Str("room", string(r.name)).Int("peers", len(peers)).Msg("room closed")
}

// peersLocked returns members in join order.
func (r *Room) peersLocked() []*PeerSession {
	out := make([]*PeerSession, 0, len(r.clients))
	for _, p := range r.clients {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// RoomStats is the admin view of a room.
type RoomStats struct {
	ID          string        `json:"id"`
	Worker      int           `json:"worker"`
	Host        domain.PeerID `json:"host,omitempty"`
	RouterReady bool          `json:"routerReady"`
	Clients     []ClientStats `json:"clients"`
}

type ClientStats struct {
	ID           domain.PeerID `json:"id"`
	DisplayName  string        `json:"displayName"`
	ProduceAudio bool          `json:"produceAudio"`
	ProduceVideo bool          `json:"produceVideo"`
}

func (r *Room) Stats() RoomStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := RoomStats{
		ID:          string(r.name),
		Worker:      r.workerIndex,
		Host:        r.hostID,
		RouterReady: r.router != nil && !r.router.Closed(),
		Clients:     []ClientStats{},
	}
	for _, p := range r.peersLocked() {
		st.Clients = append(st.Clients, ClientStats{
			ID:           p.ID,
			DisplayName:  p.Profile.DisplayName,
			ProduceAudio: liveProducer(p.media.ProducerAudio),
			ProduceVideo: liveProducer(p.media.ProducerVideo),
		})
	}
	return st
}

// ProducerIDs lists peers with a live producer of kind; an empty kind
// matches either.
func (r *Room) ProducerIDs(kind media.Kind) []domain.PeerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.PeerID{}
	for _, p := range r.peersLocked() {
		audio := liveProducer(p.media.ProducerAudio)
		video := liveProducer(p.media.ProducerVideo)
		switch {
		case kind == media.KindAudio && audio,
			kind == media.KindVideo && video,
			kind == "" && (audio || video):
			out = append(out, p.ID)
		}
	}
	return out
}
