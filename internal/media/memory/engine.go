// Package memory is a media engine that keeps every handle in process memory
// and moves no packets. It backs tests and signaling-only deployments.
package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dkeye/confsfu/internal/media"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const basePID = 40000

// Engine creates in-memory workers. The *Err fields inject failures.
type Engine struct {
	WorkerErr error
	RouterErr error

	pids    atomic.Int64
	routers atomic.Int64

	mu      sync.Mutex
	workers []*Worker
}

func New() *Engine { return &Engine{} }

func (e *Engine) Name() string { return "memory" }

func (e *Engine) CreateWorker(ctx context.Context, settings media.WorkerSettings) (media.Worker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.WorkerErr != nil {
		return nil, e.WorkerErr
	}
	w := &Worker{
		engine:  e,
		pid:     basePID + int(e.pids.Add(1)),
		routers: make(map[string]*Router),
	}
	e.mu.Lock()
	e.workers = append(e.workers, w)
	e.mu.Unlock()
	log.Debug().Str("module", "media.memory").Int("pid", w.pid).Msg("worker created")
	return w, nil
}

// RoutersCreated counts routers created over the engine lifetime.
func (e *Engine) RoutersCreated() int { return int(e.routers.Load()) }

func (e *Engine) Workers() []*Worker {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Worker(nil), e.workers...)
}

type Worker struct {
	engine *Engine
	pid    int

	mu      sync.Mutex
	closed  bool
	routers map[string]*Router
}

func (w *Worker) PID() int { return w.pid }

func (w *Worker) CreateRouter(ctx context.Context, opts media.RouterOptions) (media.Router, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if w.engine.RouterErr != nil {
		return nil, w.engine.RouterErr
	}
	caps, err := media.NewRtpCapabilities(opts.MediaCodecs)
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, media.ErrClosed
	}
	r := &Router{
		id:         uuid.NewString(),
		worker:     w,
		caps:       caps,
		producers:  make(map[string]*Producer),
		transports: make(map[string]*Transport),
	}
	w.routers[r.id] = r
	w.engine.routers.Add(1)
	return r, nil
}

// Routers returns the live routers of the worker.
func (w *Worker) Routers() []*Router {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*Router, 0, len(w.routers))
	for _, r := range w.routers {
		out = append(out, r)
	}
	return out
}

func (w *Worker) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	routers := make([]*Router, 0, len(w.routers))
	for _, r := range w.routers {
		routers = append(routers, r)
	}
	w.mu.Unlock()
	for _, r := range routers {
		r.Close()
	}
}

func (w *Worker) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *Worker) removeRouter(id string) {
	w.mu.Lock()
	delete(w.routers, id)
	w.mu.Unlock()
}
