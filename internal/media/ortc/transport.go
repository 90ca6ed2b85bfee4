package ortc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/confsfu/internal/media"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoRemoteIce = errors.New("remote ice parameters required")
	ErrNoSSRC      = errors.New("producer encodings carry no ssrc")
)

type Transport struct {
	id      string
	router  *Router
	appData media.AppData
	logger  zerolog.Logger

	api      *webrtc.API
	mediaEng *webrtc.MediaEngine
	gatherer *webrtc.ICEGatherer
	ice      *webrtc.ICETransport
	dtls     *webrtc.DTLSTransport

	iceParams  media.IceParameters
	candidates []media.IceCandidate
	dtlsParams media.DtlsParameters

	// ready is closed once DTLS is up; done once the transport closes.
	ready chan struct{}
	done  chan struct{}

	mu        sync.Mutex
	closed    bool
	connected bool
	producers []*Producer
	consumers []*Consumer
}

func newTransport(ctx context.Context, r *Router, opts media.WebRtcTransportOptions) (*Transport, error) {
	se, err := r.worker.settingEngine(opts)
	if err != nil {
		return nil, err
	}
	me := &webrtc.MediaEngine{}
	for _, c := range r.caps.Codecs {
		if err := me.RegisterCodec(capabilityCodec(c), codecType(c.Kind)); err != nil {
			return nil, fmt.Errorf("register %s: %w", c.MimeType, err)
		}
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(me), webrtc.WithSettingEngine(se))

	t := &Transport{
		id:       uuid.NewString(),
		router:   r,
		appData:  opts.AppData,
		api:      api,
		mediaEng: me,
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
	t.logger = log.With().Str("module", "media.ortc").Str("transport", t.id).Logger()

	if t.gatherer, err = api.NewICEGatherer(webrtc.ICEGatherOptions{}); err != nil {
		return nil, err
	}
	gathered := make(chan struct{})
	var once sync.Once
	t.gatherer.OnLocalCandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			once.Do(func() { close(gathered) })
		}
	})
	if err := t.gatherer.Gather(); err != nil {
		_ = t.gatherer.Close()
		return nil, err
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		_ = t.gatherer.Close()
		return nil, ctx.Err()
	}

	local, err := t.gatherer.GetLocalParameters()
	if err != nil {
		_ = t.gatherer.Close()
		return nil, err
	}
	cands, err := t.gatherer.GetLocalCandidates()
	if err != nil {
		_ = t.gatherer.Close()
		return nil, err
	}
	t.iceParams = iceParameters(local)
	t.iceParams.IceLite = true
	t.candidates = iceCandidates(cands)

	t.ice = api.NewICETransport(t.gatherer)
	if t.dtls, err = api.NewDTLSTransport(t.ice, nil); err != nil {
		_ = t.gatherer.Close()
		return nil, err
	}
	dp, err := t.dtls.GetLocalParameters()
	if err != nil {
		_ = t.gatherer.Close()
		return nil, err
	}
	t.dtlsParams = dtlsParameters(dp)
	t.logger.Debug().Int("candidates", len(t.candidates)).Msg("transport created")
	return t, nil
}

func (t *Transport) ID() string                           { return t.id }
func (t *Transport) IceParameters() media.IceParameters   { return t.iceParams }
func (t *Transport) IceCandidates() []media.IceCandidate  { return t.candidates }
func (t *Transport) DtlsParameters() media.DtlsParameters { return t.dtlsParams }
func (t *Transport) AppData() media.AppData               { return t.appData }

// Connect validates the remote parameters and starts ICE and DTLS in the
// background. Producers and consumers start flowing once DTLS is up.
func (t *Transport) Connect(ctx context.Context, params media.ConnectParams) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(params.DtlsParameters.Fingerprints) == 0 {
		return media.ErrNoFingerprint
	}
	if params.IceParameters == nil {
		return ErrNoRemoteIce
	}
	cands, err := remoteICECandidates(params.IceCandidates)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return media.ErrClosed
	}
	if t.connected {
		return media.ErrAlreadyConnected
	}
	t.connected = true
	go t.start(remoteICEParameters(*params.IceParameters), cands, remoteDTLSParameters(params.DtlsParameters))
	return nil
}

func (t *Transport) start(ice webrtc.ICEParameters, cands []webrtc.ICECandidate, dtls webrtc.DTLSParameters) {
	if len(cands) > 0 {
		if err := t.ice.SetRemoteCandidates(cands); err != nil {
			t.logger.Warn().Err(err).Msg("set remote candidates")
		}
	}
	role := webrtc.ICERoleControlled
	if err := t.ice.Start(nil, ice, &role); err != nil {
		t.fail("ice start", err)
		return
	}
	if err := t.dtls.Start(dtls); err != nil {
		t.fail("dtls start", err)
		return
	}
	select {
	case <-t.done:
		return
	default:
	}
	close(t.ready)
	t.logger.Info().Msg("transport connected")
}

func (t *Transport) fail(stage string, err error) {
	if t.Closed() {
		return
	}
	t.logger.Warn().Err(err).Str("stage", stage).Msg("transport failed")
	t.Close()
}

// waitReady blocks until DTLS is up; false means the transport closed first.
func (t *Transport) waitReady(ctx context.Context) bool {
	select {
	case <-t.ready:
		return true
	case <-t.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// Connected reports whether Connect succeeded.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *Transport) Produce(ctx context.Context, opts media.ProducerOptions) (media.Producer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !opts.Kind.Valid() {
		return nil, media.ErrInvalidKind
	}
	if err := media.SupportsProducer(opts.RtpParameters, t.router.caps); err != nil {
		return nil, err
	}
	if len(opts.RtpParameters.Encodings) == 0 || opts.RtpParameters.Encodings[0].Ssrc == 0 {
		return nil, ErrNoSSRC
	}
	for _, c := range opts.RtpParameters.Codecs {
		if err := t.mediaEng.RegisterCodec(parameterCodec(c), codecType(opts.Kind)); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", media.ErrUnsupportedCodec, c.MimeType, err)
		}
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, media.ErrClosed
	}
	p := newProducer(t, opts)
	t.producers = append(t.producers, p)
	t.mu.Unlock()
	t.router.addProducer(p)
	go p.run()
	return p, nil
}

func (t *Transport) Consume(ctx context.Context, opts media.ConsumerOptions) (media.Consumer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, ok := t.router.producer(opts.ProducerID)
	if !ok {
		return nil, media.ErrUnknownProducer
	}
	params, err := media.ConsumerRtpParameters(p.kind, p.params, opts.RtpCapabilities)
	if err != nil {
		return nil, err
	}
	c, err := newConsumer(t, p, params, opts)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		c.Close()
		return nil, media.ErrClosed
	}
	t.consumers = append(t.consumers, c)
	t.mu.Unlock()
	if !p.addConsumer(c) {
		c.Close()
		return nil, media.ErrUnknownProducer
	}
	go c.run()
	return c, nil
}

// Close closes the transport's producers, then its consumers with a
// transportclose notification, then the ICE and DTLS sessions.
func (t *Transport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	close(t.done)
	producers := t.producers
	consumers := t.consumers
	t.producers, t.consumers = nil, nil
	t.mu.Unlock()

	for _, p := range producers {
		p.Close()
	}
	for _, c := range consumers {
		c.closeWith(&c.transportClose)
	}
	if err := t.dtls.Stop(); err != nil {
		t.logger.Debug().Err(err).Msg("dtls stop")
	}
	if err := t.ice.Stop(); err != nil {
		t.logger.Debug().Err(err).Msg("ice stop")
	}
	if err := t.gatherer.Close(); err != nil {
		t.logger.Debug().Err(err).Msg("gatherer close")
	}
	t.router.removeTransport(t.id)
}

func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *Transport) removeConsumer(c *Consumer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, cc := range t.consumers {
		if cc == c {
			t.consumers = append(t.consumers[:i], t.consumers[i+1:]...)
			return
		}
	}
}

func (t *Transport) removeProducer(p *Producer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, pp := range t.producers {
		if pp == p {
			t.producers = append(t.producers[:i], t.producers[i+1:]...)
			return
		}
	}
}
