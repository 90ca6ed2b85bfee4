package ortc

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/confsfu/internal/media"
)

// Observer reports the loudest audio producers of its router once per
// interval. Levels are fed by the producers' relay loops.
type Observer struct {
	router *Router
	levels *media.LevelAggregator
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool

	volumes media.Emitter[[]media.AudioVolume]
	silence media.Signal
}

func newObserver(r *Router, opts media.AudioLevelObserverOptions) *Observer {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Observer{router: r, levels: media.NewLevelAggregator(opts), cancel: cancel}
	go o.loop(ctx, o.levels.Options().Interval)
	return o
}

// loop ticks until Close. Close does not wait for it: handlers may block on
// the caller's locks.
func (o *Observer) loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.tick()
		}
	}
}

func (o *Observer) tick() {
	if o.Closed() {
		return
	}
	levels, silence := o.levels.Flush()
	if silence {
		o.silence.Emit()
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

func (o *Observer) OnVolumes(fn func([]media.AudioVolume)) media.Subscription { return o.volumes.On(fn) }
func (o *Observer) OnSilence(fn func()) media.Subscription                    { return o.silence.On(fn) }

func (o *Observer) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	o.cancel()
}

func (o *Observer) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
