package ortc

import (
	"context"
	"sync"

	"github.com/dkeye/confsfu/internal/media"
)

type Router struct {
	id     string
	worker *Worker
	caps   media.RtpCapabilities

	mu         sync.Mutex
	closed     bool
	producers  map[string]*Producer
	transports map[string]*Transport
	observers  []*Observer
}

func (r *Router) ID() string { return r.id }

func (r *Router) RtpCapabilities() media.RtpCapabilities { return r.caps }

func (r *Router) CanConsume(producerID string, caps media.RtpCapabilities) bool {
	p, ok := r.producer(producerID)
	if !ok {
		return false
	}
	_, ok = media.MatchCodec(p.params, caps)
	return ok
}

func (r *Router) producer(id string) (*Producer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.producers[id]
	return p, ok
}

func (r *Router) CreateWebRtcTransport(ctx context.Context, opts media.WebRtcTransportOptions) (media.Transport, error) {
	if r.Closed() {
		return nil, media.ErrClosed
	}
	t, err := newTransport(ctx, r, opts)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		t.Close()
		return nil, media.ErrClosed
	}
	r.transports[t.id] = t
	r.mu.Unlock()
	return t, nil
}

func (r *Router) CreateAudioLevelObserver(ctx context.Context, opts media.AudioLevelObserverOptions) (media.AudioLevelObserver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, media.ErrClosed
	}
	o := newObserver(r, opts)
	r.observers = append(r.observers, o)
	return o, nil
}

// reportLevel feeds one audio level sample to every observer.
func (r *Router) reportLevel(producerID string, volume int) {
	r.mu.Lock()
	observers := r.observers
	r.mu.Unlock()
	for _, o := range observers {
		o.levels.Record(producerID, volume)
	}
}

func (r *Router) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	transports := make([]*Transport, 0, len(r.transports))
	for _, t := range r.transports {
		transports = append(transports, t)
	}
	observers := r.observers
	r.observers = nil
	r.mu.Unlock()

	for _, t := range transports {
		t.Close()
	}
	for _, o := range observers {
		o.Close()
	}
	r.worker.removeRouter(r.id)
}

func (r *Router) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Router) addProducer(p *Producer) {
	r.mu.Lock()
	r.producers[p.id] = p
	r.mu.Unlock()
}

func (r *Router) removeProducer(id string) {
	r.mu.Lock()
	delete(r.producers, id)
	observers := append([]*Observer(nil), r.observers...)
	r.mu.Unlock()
	for _, o := range observers {
		o.levels.Remove(id)
	}
}

func (r *Router) removeTransport(id string) {
	r.mu.Lock()
	delete(r.transports, id)
	r.mu.Unlock()
}
