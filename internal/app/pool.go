package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dkeye/confsfu/internal/core"
	"github.com/dkeye/confsfu/internal/media"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
)

var ErrEmptyPool = errors.New("worker pool is empty")

// Worker is one media worker with advisory load counters.
type Worker struct {
	Index  int
	Handle media.Worker

	clients atomic.Int64
	rooms   atomic.Int64
}

var _ core.LoadTracker = (*Worker)(nil)

func (w *Worker) PeerJoined()   { w.clients.Add(1) }
func (w *Worker) PeerLeft()     { w.clients.Add(-1) }
func (w *Worker) RouterOpened() { w.rooms.Add(1) }
func (w *Worker) RouterClosed() { w.rooms.Add(-1) }

func (w *Worker) ClientCount() int64 { return w.clients.Load() }
func (w *Worker) RoomCount() int64   { return w.rooms.Load() }

type WorkerInfo struct {
	WorkerIndex  int   `json:"workerIndex"`
	PID          int   `json:"pid"`
	ClientsCount int64 `json:"clientsCount"`
	RoomsCount   int64 `json:"roomsCount"`
}

func (w *Worker) Info() WorkerInfo {
	return WorkerInfo{
		WorkerIndex:  w.Index,
		PID:          w.Handle.PID(),
		ClientsCount: w.ClientCount(),
		RoomsCount:   w.RoomCount(),
	}
}

// Pool is the static set of workers created at startup.
type Pool struct {
	engine  string
	workers []*Worker
}

// CreatePool starts n workers in parallel. Either all of them come up or
// none is kept.
func CreatePool(ctx context.Context, engine media.Engine, n int, settings media.WorkerSettings) (*Pool, error) {
	if n <= 0 {
		return nil, fmt.Errorf("create pool: %w", ErrEmptyPool)
	}
	handles := make([]media.Worker, n)
	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	for i := range n {
		p.Go(func(ctx context.Context) error {
			w, err := engine.CreateWorker(ctx, settings)
			if err != nil {
				return fmt.Errorf("worker %d: %w", i, err)
			}
			handles[i] = w
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		for _, h := range handles {
			if h != nil {
				h.Close()
			}
		}
		return nil, core.NewError(core.KindInit, "pool.create", err)
	}

	out := &Pool{engine: engine.Name(), workers: make([]*Worker, n)}
	for i, h := range handles {
		out.workers[i] = &Worker{Index: i, Handle: h}
		log.Info().Str("module", "app.pool").Str("engine", out.engine).Int("index", i).Int("pid", h.PID()).Msg("worker started")
	}
	return out, nil
}

func (p *Pool) Len() int { return len(p.workers) }

func (p *Pool) Worker(i int) *Worker { return p.workers[i] }

// SelectLeastLoaded returns the worker with the fewest live peers; ties go
// to the lowest index.
func (p *Pool) SelectLeastLoaded() *Worker {
	var best *Worker
	for _, w := range p.workers {
		if best == nil || w.ClientCount() < best.ClientCount() {
			best = w
		}
	}
	return best
}

func (p *Pool) Info() []WorkerInfo {
	out := make([]WorkerInfo, 0, len(p.workers))
	for _, w := range p.workers {
		out = append(out, w.Info())
	}
	return out
}

func (p *Pool) Close() {
	for _, w := range p.workers {
		w.Handle.Close()
	}
	log.Info().Str("module", "app.pool").Int("workers", len(p.workers)).Msg("pool closed")
}
