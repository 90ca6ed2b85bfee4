package ortc

import (
	"context"
	"sync"

	"github.com/dkeye/confsfu/internal/media"
	"github.com/google/uuid"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// Producer receives one RTP stream and relays it to its consumers.
type Producer struct {
	id        string
	kind      media.Kind
	params    media.RtpParameters
	appData   media.AppData
	router    *Router
	transport *Transport
	logger    zerolog.Logger

	ssrc       uint32
	audioLevel int
	ctx        context.Context
	cancel     context.CancelFunc

	mu        sync.RWMutex
	closed    bool
	paused    bool
	receiver  *webrtc.RTPReceiver
	consumers []*Consumer
}

func newProducer(t *Transport, opts media.ProducerOptions) *Producer {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Producer{
		id:        uuid.NewString(),
		kind:      opts.Kind,
		params:    opts.RtpParameters,
		appData:   opts.AppData,
		paused:    opts.Paused,
		router:    t.router,
		transport: t,
		ssrc:      opts.RtpParameters.Encodings[0].Ssrc,
		ctx:       ctx,
		cancel:    cancel,
	}
	if opts.Kind == media.KindAudio {
		p.audioLevel = opts.RtpParameters.HeaderExtensionID(media.ExtAudioLevel)
	}
	p.logger = t.logger.With().Str("producer", p.id).Str("kind", string(p.kind)).Logger()
	return p
}

func (p *Producer) ID() string                          { return p.id }
func (p *Producer) Kind() media.Kind                    { return p.kind }
func (p *Producer) RtpParameters() media.RtpParameters { return p.params }
func (p *Producer) AppData() media.AppData              { return p.appData }

func (p *Producer) Paused() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused
}

func (p *Producer) Pause(ctx context.Context) error { return p.setPaused(ctx, true) }

func (p *Producer) Resume(ctx context.Context) error { return p.setPaused(ctx, false) }

func (p *Producer) setPaused(ctx context.Context, paused bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return media.ErrClosed
	}
	if p.paused == paused {
		p.mu.Unlock()
		return nil
	}
	p.paused = paused
	consumers := append([]*Consumer(nil), p.consumers...)
	p.mu.Unlock()
	for _, c := range consumers {
		c.setProducerPaused(paused)
	}
	if !paused {
		p.requestKeyFrame()
	}
	return nil
}

// run waits for the transport, starts receiving and relays packets until
// the producer closes.
func (p *Producer) run() {
	if !p.transport.waitReady(p.ctx) {
		return
	}
	receiver, err := p.transport.api.NewRTPReceiver(codecType(p.kind), p.transport.dtls)
	if err != nil {
		p.logger.Error().Err(err).Msg("new receiver")
		return
	}
	err = receiver.Receive(webrtc.RTPReceiveParameters{Encodings: []webrtc.RTPDecodingParameters{{
		RTPCodingParameters: webrtc.RTPCodingParameters{
			SSRC:        webrtc.SSRC(p.ssrc),
			PayloadType: webrtc.PayloadType(p.params.Codecs[0].PayloadType),
		},
	}}})
	if err != nil {
		p.logger.Error().Err(err).Msg("receive")
		_ = receiver.Stop()
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = receiver.Stop()
		return
	}
	p.receiver = receiver
	p.mu.Unlock()

	p.logger.Info().Uint32("ssrc", p.ssrc).Msg("relay started")
	track := receiver.Track()
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			p.logger.Debug().Err(err).Msg("relay stopped")
			return
		}
		p.forward(pkt)
	}
}

func (p *Producer) forward(pkt *rtp.Packet) {
	p.mu.RLock()
	if p.paused {
		p.mu.RUnlock()
		return
	}
	consumers := append([]*Consumer(nil), p.consumers...)
	p.mu.RUnlock()

	if p.audioLevel > 0 {
		if vol, ok := audioLevel(pkt, p.audioLevel); ok {
			p.router.reportLevel(p.id, vol)
		}
	}
	for _, c := range consumers {
		c.write(pkt)
	}
}

// requestKeyFrame sends a PLI to the producing endpoint.
func (p *Producer) requestKeyFrame() {
	if p.kind != media.KindVideo {
		return
	}
	select {
	case <-p.transport.ready:
	default:
		return
	}
	if _, err := p.transport.dtls.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: p.ssrc}}); err != nil {
		p.logger.Debug().Err(err).Msg("write pli")
	}
}

func (p *Producer) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	consumers := p.consumers
	p.consumers = nil
	receiver := p.receiver
	p.mu.Unlock()

	p.cancel()
	if receiver != nil {
		_ = receiver.Stop()
	}
	p.router.removeProducer(p.id)
	p.transport.removeProducer(p)
	for _, c := range consumers {
		c.closeWith(&c.producerClose)
	}
}

func (p *Producer) Closed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

func (p *Producer) addConsumer(c *Consumer) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.consumers = append(p.consumers, c)
	return true
}

func (p *Producer) removeConsumer(c *Consumer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, cc := range p.consumers {
		if cc == c {
			p.consumers = append(p.consumers[:i], p.consumers[i+1:]...)
			return
		}
	}
}
