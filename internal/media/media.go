// Package media describes the media engine the session layer drives: workers
// host routers, routers host transports and observers, transports carry
// producers and consumers. Everything here is a handle; the media plane lives
// behind it.
package media

import "context"

// Engine spawns workers.
type Engine interface {
	Name() string
	CreateWorker(ctx context.Context, settings WorkerSettings) (Worker, error)
}

// Closable is implemented by every engine handle. Close is idempotent.
type Closable interface {
	Close()
	Closed() bool
}

type Worker interface {
	Closable
	PID() int
	CreateRouter(ctx context.Context, opts RouterOptions) (Router, error)
}

type Router interface {
	Closable
	ID() string
	RtpCapabilities() RtpCapabilities
	// CanConsume reports whether a consumer with caps can receive producerID.
	CanConsume(producerID string, caps RtpCapabilities) bool
	CreateWebRtcTransport(ctx context.Context, opts WebRtcTransportOptions) (Transport, error)
	CreateAudioLevelObserver(ctx context.Context, opts AudioLevelObserverOptions) (AudioLevelObserver, error)
}

type Transport interface {
	Closable
	ID() string
	IceParameters() IceParameters
	IceCandidates() []IceCandidate
	DtlsParameters() DtlsParameters
	AppData() AppData

	Connect(ctx context.Context, params ConnectParams) error
	Produce(ctx context.Context, opts ProducerOptions) (Producer, error)
	Consume(ctx context.Context, opts ConsumerOptions) (Consumer, error)
}

type Producer interface {
	Closable
	ID() string
	Kind() Kind
	RtpParameters() RtpParameters
	AppData() AppData
	Paused() bool
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
}

type Consumer interface {
	Closable
	ID() string
	ProducerID() string
	Kind() Kind
	// Type is "simple" for single-encoding consumers.
	Type() string
	RtpParameters() RtpParameters
	AppData() AppData
	Paused() bool
	ProducerPaused() bool
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	RequestKeyFrame(ctx context.Context) error

	OnTransportClose(fn func()) Subscription
	OnProducerClose(fn func()) Subscription
	OnProducerPause(fn func()) Subscription
	OnProducerResume(fn func()) Subscription
}

type AudioLevelObserver interface {
	Closable
	AddProducer(ctx context.Context, producerID string) error
	RemoveProducer(ctx context.Context, producerID string) error
	OnVolumes(fn func([]AudioVolume)) Subscription
	OnSilence(fn func()) Subscription
}
