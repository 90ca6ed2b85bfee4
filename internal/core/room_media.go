package core

import (
	"context"
	"fmt"
	"slices"

	"github.com/dkeye/confsfu/internal/domain"
	"github.com/dkeye/confsfu/internal/media"
	"github.com/rs/zerolog/log"
)

// TransportInfo is what a client needs to build its side of a transport.
type TransportInfo struct {
	ID             string               `json:"id"`
	IceParameters  media.IceParameters  `json:"iceParameters"`
	IceCandidates  []media.IceCandidate `json:"iceCandidates"`
	DtlsParameters media.DtlsParameters `json:"dtlsParameters"`
}

type ConsumeRequest struct {
	PeerID domain.PeerID
	Kind   media.Kind
	// ToConsume selects the source peer; empty means the host.
	ToConsume domain.PeerID
	// RtpCapabilities of the receiving endpoint; the router's when nil.
	RtpCapabilities *media.RtpCapabilities
}

type ConsumerInfo struct {
	ID             string              `json:"id"`
	PeerID         domain.PeerID       `json:"peerId"`
	ProducerID     string              `json:"producerId"`
	Kind           media.Kind          `json:"kind"`
	Type           string              `json:"type"`
	RtpParameters  media.RtpParameters `json:"rtpParameters"`
	ProducerPaused bool                `json:"producerPaused"`
}

// CreateWebRtcTransport fills the peer's transport slot for typ, replacing
// and closing a previous transport in that slot.
func (r *Room) CreateWebRtcTransport(ctx context.Context, id domain.PeerID, typ domain.TransportType) (TransportInfo, error) {
	const op = "room.createWebRtcTransport"
	if !typ.Valid() {
		return TransportInfo{}, NewError(KindProtocol, op, ErrInvalidTransport)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.clients[id]
	if !ok {
		return TransportInfo{}, NewError(KindNotFound, op, ErrPeerNotFound)
	}
	if err := r.ensureRouterLocked(ctx); err != nil {
		return TransportInfo{}, err
	}
	if p.media.Transport(typ) != nil {
		r.closeTransportLocked(ctx, p, typ, true)
	}

	opts := r.transport
	opts.AppData = media.AppData{"peerId": string(id), "type": string(typ)}
	t, err := r.router.CreateWebRtcTransport(ctx, opts)
	if err != nil {
		return TransportInfo{}, NewError(KindEngine, op, err)
	}
	p.media.setTransport(typ, t)
	log.Debug().Str("module", "core.room").Str("room", string(r.name)).Str("peer", string(id)).Str("type", string(typ)).Str("transport", t.ID()).Msg("transport created")
	return TransportInfo{
		ID:             t.ID(),
		IceParameters:  t.IceParameters(),
		IceCandidates:  t.IceCandidates(),
		DtlsParameters: t.DtlsParameters(),
	}, nil
}

func (r *Room) ConnectWebRtcTransport(ctx context.Context, id domain.PeerID, typ domain.TransportType, params media.ConnectParams) error {
	const op = "room.connectWebRtcTransport"
	if !typ.Valid() {
		return NewError(KindProtocol, op, ErrInvalidTransport)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.clients[id]
	if !ok {
		return NewError(KindNotFound, op, ErrPeerNotFound)
	}
	t := p.media.Transport(typ)
	if !liveTransport(t) {
		return NewError(KindProtocol, op, fmt.Errorf("%s %w", typ, ErrTransportNotFound))
	}
	if err := t.Connect(ctx, params); err != nil {
		return NewError(KindEngine, op, err)
	}
	return nil
}

// Produce creates the peer's producer of kind and announces it. A previous
// producer of the same kind is closed first.
func (r *Room) Produce(ctx context.Context, id domain.PeerID, kind media.Kind, params media.RtpParameters, paused bool) (string, error) {
	const op = "room.produce"
	if !kind.Valid() {
		return "", NewError(KindProtocol, op, ErrInvalidKind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.clients[id]
	if !ok {
		return "", NewError(KindNotFound, op, ErrPeerNotFound)
	}
	t := p.media.ProducerTransport
	if !liveTransport(t) {
		return "", NewError(KindProtocol, op, fmt.Errorf("producer %w", ErrTransportNotFound))
	}
	if p.media.Producer(kind) != nil {
		r.closeProducerLocked(ctx, p, kind, true)
	}

	producer, err := t.Produce(ctx, media.ProducerOptions{
		Kind:          kind,
		RtpParameters: params,
		Paused:        paused,
		AppData:       media.AppData{"peerId": string(id), "kind": string(kind)},
	})
	if err != nil {
		return "", NewError(KindEngine, op, err)
	}
	if kind == media.KindAudio && r.observer != nil {
		if err := r.observer.AddProducer(ctx, producer.ID()); err != nil {
			producer.Close()
			return "", NewError(KindEngine, op, fmt.Errorf("observe audio: %w", err))
		}
	}
	p.media.setProducer(kind, producer)
	if r.policy.OnProduce(r.hostID != "", len(r.clients)) {
		r.hostID = id
	}
	log.Info().Str("module", "core.room").Str("room", string(r.name)).Str("peer", string(id)).Str("kind", string(kind)).Str("producer", producer.ID()).Msg("producing")

	r.broadcastLocked(id, EventNewProducer, NewProducerEvent{
		PeerID:     id,
		ProducerID: producer.ID(),
		Kind:       string(kind),
		Profile:    p.Profile,
	})
	return producer.ID(), nil
}

// Consume makes the requesting peer receive the source peer's producer of
// the requested kind. The consumer is recorded on the source peer, keyed by
// the requesting peer.
func (r *Room) Consume(ctx context.Context, req ConsumeRequest) (ConsumerInfo, error) {
	const op = "room.consume"
	if !req.Kind.Valid() {
		return ConsumerInfo{}, NewError(KindProtocol, op, ErrInvalidKind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	dst, ok := r.clients[req.PeerID]
	if !ok {
		return ConsumerInfo{}, NewError(KindNotFound, op, ErrPeerNotFound)
	}
	srcID := req.ToConsume
	if srcID == "" {
		srcID = r.hostID
	}
	src, ok := r.clients[srcID]
	if !ok {
		return ConsumerInfo{}, NewError(KindNotFound, op, fmt.Errorf("source %w", ErrPeerNotFound))
	}
	producer := src.media.Producer(req.Kind)
	if !liveProducer(producer) {
		return ConsumerInfo{}, NewError(KindNotFound, op, fmt.Errorf("%s %w", req.Kind, ErrNoProducer))
	}
	if r.router == nil || r.router.Closed() {
		return ConsumerInfo{}, NewError(KindEngine, op, ErrRouterUnavailable)
	}
	caps := r.router.RtpCapabilities()
	if req.RtpCapabilities != nil {
		caps = *req.RtpCapabilities
	}
	if !r.router.CanConsume(producer.ID(), caps) {
		return ConsumerInfo{}, NewError(KindEngine, op, ErrCannotConsume)
	}
	t := dst.media.ConsumerTransport
	if !liveTransport(t) {
		return ConsumerInfo{}, NewError(KindProtocol, op, fmt.Errorf("consumer %w", ErrTransportNotFound))
	}

	c, err := t.Consume(ctx, media.ConsumerOptions{
		ProducerID:      producer.ID(),
		RtpCapabilities: caps,
		Paused:          req.Kind == media.KindVideo,
		AppData:         media.AppData{"peerId": string(dst.ID), "kind": string(req.Kind), "source": string(src.ID)},
	})
	if err != nil {
		return ConsumerInfo{}, NewError(KindEngine, op, err)
	}
	consumers := src.media.Consumers(req.Kind)
	if prev, ok := consumers[dst.ID]; ok {
		r.dropConsumerLocked(prev)
	}
	consumers[dst.ID] = c
	r.subs[c.ID()] = r.watchConsumer(src, dst, req.Kind, c)

	if req.Kind == media.KindVideo {
		if err := c.Resume(ctx); err != nil {
			delete(consumers, dst.ID)
			r.dropConsumerLocked(c)
			return ConsumerInfo{}, NewError(KindEngine, op, fmt.Errorf("resume: %w", err))
		}
	}
	log.Debug().Str("module", "core.room").Str("room", string(r.name)).Str("peer", string(dst.ID)).Str("source", string(src.ID)).Str("kind", string(req.Kind)).Str("consumer", c.ID()).Msg("consuming")
	return ConsumerInfo{
		ID:             c.ID(),
		PeerID:         src.ID,
		ProducerID:     producer.ID(),
		Kind:           req.Kind,
		Type:           c.Type(),
		RtpParameters:  c.RtpParameters(),
		ProducerPaused: c.ProducerPaused(),
	}, nil
}

// watchConsumer subscribes to the consumer's engine events. Pause and resume
// handlers never take the room mutex: the engine may fire them while a room
// operation pauses a producer.
func (r *Room) watchConsumer(src, dst *PeerSession, kind media.Kind, c media.Consumer) []media.Subscription {
	notify := func(event string) {
		if err := dst.send(event, ProducerStateEvent{PeerID: src.ID, Kind: string(kind), ConsumerID: c.ID()}); err != nil {
			r.markDropped(dst.ID)
		}
	}
	return []media.Subscription{
		c.OnProducerClose(func() { r.consumerClosed(src, dst.ID, kind, c, true) }),
		c.OnTransportClose(func() { r.consumerClosed(src, dst.ID, kind, c, false) }),
		c.OnProducerPause(func() {
			_ = c.Pause(context.Background())
			notify(EventProducerPause)
		}),
		c.OnProducerResume(func() {
			_ = c.Resume(context.Background())
			notify(EventProducerResume)
		}),
	}
}

func (r *Room) consumerClosed(src *PeerSession, dstID domain.PeerID, kind media.Kind, c media.Consumer, notify bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	consumers := src.media.Consumers(kind)
	if cur, ok := consumers[dstID]; !ok || cur != c {
		return
	}
	delete(consumers, dstID)
	r.dropConsumerLocked(c)
	if dst, ok := r.clients[dstID]; ok && notify {
		_ = r.sendLocked(dst, EventProducerClose, ProducerStateEvent{PeerID: src.ID, Kind: string(kind), ConsumerID: c.ID()})
	}
}

func (r *Room) PauseProducer(ctx context.Context, id domain.PeerID, kind media.Kind) error {
	return r.withProducer(ctx, "room.pauseProducer", id, kind, func(p media.Producer) error { return p.Pause(ctx) })
}

func (r *Room) ResumeProducer(ctx context.Context, id domain.PeerID, kind media.Kind) error {
	return r.withProducer(ctx, "room.resumeProducer", id, kind, func(p media.Producer) error { return p.Resume(ctx) })
}

// CloseProducer closes the peer's producer of kind; consuming peers get
// mediaProducerClose.
func (r *Room) CloseProducer(ctx context.Context, id domain.PeerID, kind media.Kind) error {
	return r.withProducer(ctx, "room.closeProducer", id, kind, func(media.Producer) error {
		r.closeProducerLocked(ctx, r.clients[id], kind, true)
		return nil
	})
}

func (r *Room) withProducer(ctx context.Context, op string, id domain.PeerID, kind media.Kind, fn func(media.Producer) error) error {
	if !kind.Valid() {
		return NewError(KindProtocol, op, ErrInvalidKind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.clients[id]
	if !ok {
		return NewError(KindNotFound, op, ErrPeerNotFound)
	}
	producer := p.media.Producer(kind)
	if !liveProducer(producer) {
		return NewError(KindNotFound, op, fmt.Errorf("%s %w", kind, ErrNoProducer))
	}
	if err := fn(producer); err != nil {
		return NewError(KindEngine, op, err)
	}
	return nil
}

// RequestConsumerKeyFrame asks the producing endpoint behind one of the
// peer's consumers for a key frame.
func (r *Room) RequestConsumerKeyFrame(ctx context.Context, id domain.PeerID, consumerID string) error {
	const op = "room.requestConsumerKeyFrame"
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[id]; !ok {
		return NewError(KindNotFound, op, ErrPeerNotFound)
	}
	for _, src := range r.clients {
		for _, kind := range []media.Kind{media.KindVideo, media.KindAudio} {
			c, ok := src.media.Consumers(kind)[id]
			if !ok || c.ID() != consumerID {
				continue
			}
			if err := c.RequestKeyFrame(ctx); err != nil {
				return NewError(KindEngine, op, err)
			}
			return nil
		}
	}
	return NewError(KindNotFound, op, ErrConsumerNotFound)
}

// dropConsumerLocked unsubscribes the room from c and closes it.
func (r *Room) dropConsumerLocked(c media.Consumer) {
	for _, s := range r.subs[c.ID()] {
		s.Unsubscribe()
	}
	delete(r.subs, c.ID())
	if !c.Closed() {
		c.Close()
	}
}

// closeProducerLocked closes the consumers of the producer first, so no
// producerclose callback runs into the locked room.
func (r *Room) closeProducerLocked(ctx context.Context, p *PeerSession, kind media.Kind, notify bool) {
	consumers := p.media.Consumers(kind)
	for _, dstID := range sortedPeerIDs(consumers) {
		c := consumers[dstID]
		r.dropConsumerLocked(c)
		delete(consumers, dstID)
		if dst, ok := r.clients[dstID]; ok && notify && dst != p {
			_ = r.sendLocked(dst, EventProducerClose, ProducerStateEvent{PeerID: p.ID, Kind: string(kind), ConsumerID: c.ID()})
		}
	}
	producer := p.media.Producer(kind)
	if producer == nil {
		return
	}
	if kind == media.KindAudio && r.observer != nil && !r.observer.Closed() {
		if err := r.observer.RemoveProducer(ctx, producer.ID()); err != nil {
			log.Debug().Str("module", "core.room").Str("room", string(r.name)).Str("producer", producer.ID()).Err(err).Msg("observer remove producer")
		}
	}
	if !producer.Closed() {
		producer.Close()
	}
	p.media.setProducer(kind, nil)
}

func (r *Room) closeTransportLocked(ctx context.Context, p *PeerSession, typ domain.TransportType, notify bool) {
	if typ == domain.TransportProducer {
		r.closeProducerLocked(ctx, p, media.KindVideo, notify)
		r.closeProducerLocked(ctx, p, media.KindAudio, notify)
	} else {
		for _, src := range r.clients {
			for _, kind := range []media.Kind{media.KindVideo, media.KindAudio} {
				consumers := src.media.Consumers(kind)
				if c, ok := consumers[p.ID]; ok {
					r.dropConsumerLocked(c)
					delete(consumers, p.ID)
				}
			}
		}
	}
	if t := p.media.Transport(typ); t != nil {
		if !t.Closed() {
			t.Close()
		}
		p.media.setTransport(typ, nil)
	}
}

// teardownPeerLocked closes every producer, consumer and transport of p.
func (r *Room) teardownPeerLocked(ctx context.Context, p *PeerSession, notify bool) {
	r.closeTransportLocked(ctx, p, domain.TransportConsumer, notify)
	r.closeTransportLocked(ctx, p, domain.TransportProducer, notify)
}

func sortedPeerIDs(m map[domain.PeerID]media.Consumer) []domain.PeerID {
	out := make([]domain.PeerID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
