package memory

import (
	"context"
	"sync"

	"github.com/dkeye/confsfu/internal/media"
	"github.com/google/uuid"
)

type Transport struct {
	id         string
	router     *Router
	appData    media.AppData
	ice        media.IceParameters
	candidates []media.IceCandidate
	dtls       media.DtlsParameters

	mu        sync.Mutex
	closed    bool
	connected bool
	remote    media.DtlsParameters
	producers []*Producer
	consumers []*Consumer
}

func (t *Transport) ID() string                           { return t.id }
func (t *Transport) IceParameters() media.IceParameters   { return t.ice }
func (t *Transport) IceCandidates() []media.IceCandidate  { return t.candidates }
func (t *Transport) DtlsParameters() media.DtlsParameters { return t.dtls }
func (t *Transport) AppData() media.AppData               { return t.appData }

func (t *Transport) Connect(ctx context.Context, params media.ConnectParams) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(params.DtlsParameters.Fingerprints) == 0 {
		return media.ErrNoFingerprint
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
	t.remote = params.DtlsParameters
	return nil
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
	p := &Producer{
		id:        uuid.NewString(),
		kind:      opts.Kind,
		params:    opts.RtpParameters,
		appData:   opts.AppData,
		paused:    opts.Paused,
		router:    t.router,
		transport: t,
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, media.ErrClosed
	}
	t.producers = append(t.producers, p)
	t.mu.Unlock()
	t.router.addProducer(p)
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
	c := &Consumer{
		id:             uuid.NewString(),
		producer:       p,
		transport:      t,
		params:         params,
		appData:        opts.AppData,
		paused:         opts.Paused,
		producerPaused: p.Paused(),
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, media.ErrClosed
	}
	t.consumers = append(t.consumers, c)
	t.mu.Unlock()
	if !p.addConsumer(c) {
		c.Close()
		return nil, media.ErrUnknownProducer
	}
	return c, nil
}

// Close closes the transport's producers, then its consumers with a
// transportclose notification.
func (t *Transport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
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
	t.router.removeTransport(t.id)
}

func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Producers returns the live producers of the transport.
func (t *Transport) Producers() []*Producer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Producer(nil), t.producers...)
}

// Consumers returns the live consumers of the transport.
func (t *Transport) Consumers() []*Consumer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Consumer(nil), t.consumers...)
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

type Producer struct {
	id        string
	kind      media.Kind
	params    media.RtpParameters
	appData   media.AppData
	router    *Router
	transport *Transport

	mu        sync.Mutex
	closed    bool
	paused    bool
	consumers []*Consumer
}

func (p *Producer) ID() string                          { return p.id }
func (p *Producer) Kind() media.Kind                    { return p.kind }
func (p *Producer) RtpParameters() media.RtpParameters { return p.params }
func (p *Producer) AppData() media.AppData              { return p.appData }

func (p *Producer) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
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
	return nil
}

// Close closes the producer and every consumer of it with a producerclose
// notification.
func (p *Producer) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	consumers := p.consumers
	p.consumers = nil
	p.mu.Unlock()

	p.router.removeProducer(p.id)
	p.transport.removeProducer(p)
	for _, c := range consumers {
		c.closeWith(&c.producerClose)
	}
}

func (p *Producer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
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

type Consumer struct {
	id        string
	producer  *Producer
	transport *Transport
	params    media.RtpParameters
	appData   media.AppData

	mu             sync.Mutex
	closed         bool
	paused         bool
	producerPaused bool
	keyFrames      int

	transportClose media.Signal
	producerClose  media.Signal
	producerPause  media.Signal
	producerResume media.Signal
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

func (c *Consumer) Resume(ctx context.Context) error { return c.setPaused(ctx, false) }

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
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return media.ErrClosed
	}
	c.keyFrames++
	return nil
}

// KeyFrameRequests counts RequestKeyFrame calls.
func (c *Consumer) KeyFrameRequests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keyFrames
}

func (c *Consumer) OnTransportClose(fn func()) media.Subscription { return c.transportClose.On(fn) }
func (c *Consumer) OnProducerClose(fn func()) media.Subscription  { return c.producerClose.On(fn) }
func (c *Consumer) OnProducerPause(fn func()) media.Subscription  { return c.producerPause.On(fn) }
func (c *Consumer) OnProducerResume(fn func()) media.Subscription { return c.producerResume.On(fn) }

// Subscribers counts live handlers across all consumer events.
func (c *Consumer) Subscribers() int {
	return c.transportClose.Len() + c.producerClose.Len() + c.producerPause.Len() + c.producerResume.Len()
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

func (c *Consumer) markClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	return true
}

func (c *Consumer) Close() {
	if !c.markClosed() {
		return
	}
	c.producer.removeConsumer(c)
	c.transport.removeConsumer(c)
}

func (c *Consumer) closeWith(sig *media.Signal) {
	if !c.markClosed() {
		return
	}
	c.producer.removeConsumer(c)
	c.transport.removeConsumer(c)
	sig.Emit()
}

func (c *Consumer) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Observer is an audio level observer fed through Report and flushed through
// Tick.
type Observer struct {
	router *Router
	levels *media.LevelAggregator

	mu     sync.Mutex
	closed bool

	volumes media.Emitter[[]media.AudioVolume]
	silence media.Signal
}

func (o *Observer) AddProducer(ctx context.Context, producerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if o.Closed() {
		return media.ErrClosed
	}
	if _, ok := o.router.producer(producerID); !ok {
		return media.ErrUnknownProducer
	}
	o.levels.Add(producerID)
	return nil
}

func (o *Observer) RemoveProducer(ctx context.Context, producerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o.levels.Remove(producerID)
	return nil
}

// HasProducer reports whether producerID is observed.
func (o *Observer) HasProducer(producerID string) bool { return o.levels.Has(producerID) }

func (o *Observer) OnVolumes(fn func([]media.AudioVolume)) media.Subscription { return o.volumes.On(fn) }
func (o *Observer) OnSilence(fn func()) media.Subscription                    { return o.silence.On(fn) }

// Report records one audio level sample for producerID.
func (o *Observer) Report(producerID string, volume int) { o.levels.Record(producerID, volume) }

// Tick closes the current interval and emits volumes or silence.
func (o *Observer) Tick() {
	if o.Closed() {
		return
	}
	levels, silence := o.levels.Flush()
	if silence {
		o.silence.Emit()
		return
	}
	if len(levels) == 0 {
		return
	}
	out := make([]media.AudioVolume, 0, len(levels))
	for _, l := range levels {
		if p, ok := o.router.producer(l.ProducerID); ok {
			out = append(out, media.AudioVolume{Producer: p, Volume: l.Volume})
		}
	}
	if len(out) > 0 {
		o.volumes.Emit(out)
	}
}

func (o *Observer) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
}

func (o *Observer) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
