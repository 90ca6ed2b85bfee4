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

// Consumer sends one producer's stream to the consuming endpoint.
type Consumer struct {
	id        string
	producer  *Producer
	transport *Transport
	params    media.RtpParameters
	appData   media.AppData
	logger    zerolog.Logger

	track  *webrtc.TrackLocalStaticRTP
	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.Mutex
	closed         bool
	paused         bool
	producerPaused bool
	sender         *webrtc.RTPSender

	transportClose media.Signal
	producerClose  media.Signal
	producerPause  media.Signal
	producerResume media.Signal
}

func newConsumer(t *Transport, p *Producer, params media.RtpParameters, opts media.ConsumerOptions) (*Consumer, error) {
	id := uuid.NewString()
	track, err := webrtc.NewTrackLocalStaticRTP(parameterCodec(params.Codecs[0]).RTPCodecCapability, id, p.id)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Consumer{
		id:             id,
		producer:       p,
		transport:      t,
		params:         params,
		appData:        opts.AppData,
		track:          track,
		ctx:            ctx,
		cancel:         cancel,
		paused:         opts.Paused,
		producerPaused: p.Paused(),
	}
	c.logger = t.logger.With().Str("consumer", id).Str("producer", p.id).Logger()
	return c, nil
}

func (c *Consumer) ID() string                          { return c.id }
func (c *Consumer) ProducerID() string                  { return c.producer.id }
func (c *Consumer) Kind() media.Kind                    { return c.producer.kind }
func (c *Consumer) Type() string                        { return "simple" }
func (c *Consumer) RtpParameters() media.RtpParameters { return c.params }
func (c *Consumer) AppData() media.AppData              { return c.appData }

func (c *Consumer) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *Consumer) ProducerPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.producerPaused
}

func (c *Consumer) Pause(ctx context.Context) error { return c.setPaused(ctx, true) }

// Resume also asks the producer for a key frame so video restarts cleanly.
func (c *Consumer) Resume(ctx context.Context) error {
	if err := c.setPaused(ctx, false); err != nil {
		return err
	}
	c.producer.requestKeyFrame()
	return nil
}

func (c *Consumer) setPaused(ctx context.Context, paused bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return media.ErrClosed
	}
	c.paused = paused
	return nil
}

func (c *Consumer) RequestKeyFrame(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.Closed() {
		return media.ErrClosed
	}
	c.producer.requestKeyFrame()
	return nil
}

func (c *Consumer) OnTransportClose(fn func()) media.Subscription { return c.transportClose.On(fn) }
func (c *Consumer) OnProducerClose(fn func()) media.Subscription  { return c.producerClose.On(fn) }
func (c *Consumer) OnProducerPause(fn func()) media.Subscription  { return c.producerPause.On(fn) }
func (c *Consumer) OnProducerResume(fn func()) media.Subscription { return c.producerResume.On(fn) }

// run starts sending once the transport is up and serves RTCP feedback from
// the consuming endpoint.
func (c *Consumer) run() {
	if !c.transport.waitReady(c.ctx) {
		return
	}
	sender, err := c.transport.api.NewRTPSender(c.track, c.transport.dtls)
	if err != nil {
		c.logger.Error().Err(err).Msg("new sender")
		return
	}
	enc := c.params.Encodings[0]
	err = sender.Send(webrtc.RTPSendParameters{Encodings: []webrtc.RTPEncodingParameters{{
		RTPCodingParameters: webrtc.RTPCodingParameters{
			SSRC:        webrtc.SSRC(enc.Ssrc),
			PayloadType: webrtc.PayloadType(c.params.Codecs[0].PayloadType),
		},
	}}})
	if err != nil {
		c.logger.Error().Err(err).Msg("send")
		_ = sender.Stop()
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = sender.Stop()
		return
	}
	c.sender = sender
	c.mu.Unlock()
	c.producer.requestKeyFrame()

	for {
		pkts, _, err := sender.ReadRTCP()
		if err != nil {
			return
		}
		for _, pkt := range pkts {
			switch pkt.(type) {
			case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
				c.producer.requestKeyFrame()
			}
		}
	}
}

func (c *Consumer) write(pkt *rtp.Packet) {
	c.mu.Lock()
	skip := c.closed || c.paused || c.sender == nil
	c.mu.Unlock()
	if skip {
		return
	}
	if err := c.track.WriteRTP(pkt); err != nil {
		c.logger.Debug().Err(err).Msg("write rtp")
	}
}

func (c *Consumer) setProducerPaused(paused bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.producerPaused = paused
	c.mu.Unlock()
	if paused {
		c.producerPause.Emit()
	} else {
		c.producerResume.Emit()
	}
}

func (c *Consumer) markClosed() (*webrtc.RTPSender, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, false
	}
	c.closed = true
	return c.sender, true
}

func (c *Consumer) Close() {
	c.closeWith(nil)
}

func (c *Consumer) closeWith(sig *media.Signal) {
	sender, ok := c.markClosed()
	if !ok {
		return
	}
	c.cancel()
	if sender != nil {
		_ = sender.Stop()
	}
	c.producer.removeConsumer(c)
	c.transport.removeConsumer(c)
	if sig != nil {
		sig.Emit()
	}
}

func (c *Consumer) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
