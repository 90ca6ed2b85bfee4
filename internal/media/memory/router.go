package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"

	"github.com/dkeye/confsfu/internal/media"
	"github.com/google/uuid"
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
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, media.ErrClosed
	}
	t := &Transport{
		id:      uuid.NewString(),
		router:  r,
		appData: opts.AppData,
		ice: media.IceParameters{
			UsernameFragment: randomToken(8),
			Password:         randomToken(16),
			IceLite:          true,
		},
		dtls: media.DtlsParameters{
			Role: media.DtlsRoleAuto,
			Fingerprints: []media.DtlsFingerprint{
				{Algorithm: "sha-256", Value: randomToken(32)},
			},
		},
	}
	for i, lip := range opts.ListenIPs {
		ip := lip.IP
		if lip.AnnouncedIP != "" {
			ip = lip.AnnouncedIP
		}
		t.candidates = append(t.candidates, media.IceCandidate{
			Foundation: "udpcandidate",
			Priority:   uint32(1076302079 - i),
			IP:         ip,
			Protocol:   "udp",
			Port:       uint16(40000 + len(r.transports)),
			Type:       "host",
		})
	}
	r.transports[t.id] = t
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
	o := &Observer{router: r, levels: media.NewLevelAggregator(opts)}
	r.observers = append(r.observers, o)
	return o, nil
}

// Transports returns the live transports of the router.
func (r *Router) Transports() []*Transport {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Transport, 0, len(r.transports))
	for _, t := range r.transports {
		out = append(out, t)
	}
	return out
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

func randomToken(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func (r *Router) Observers() []*Observer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Observer(nil), r.observers...)
}
