package media

import "sync"

// Subscription detaches a handler registered on an engine handle.
type Subscription interface {
	Unsubscribe()
}

// Emitter is a typed fan-out used by engine handles for lifecycle events.
// Handlers run on the emitting goroutine, outside the emitter lock.
type Emitter[T any] struct {
	mu       sync.Mutex
	next     uint64
	handlers map[uint64]func(T)
}

type subscription struct {
	once sync.Once
	fn   func()
}

func (s *subscription) Unsubscribe() { s.once.Do(s.fn) }

func (e *Emitter[T]) On(fn func(T)) Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handlers == nil {
		e.handlers = make(map[uint64]func(T))
	}
	id := e.next
	e.next++
	e.handlers[id] = fn
	return &subscription{fn: func() {
		e.mu.Lock()
		delete(e.handlers, id)
		e.mu.Unlock()
	}}
}

func (e *Emitter[T]) Emit(v T) {
	e.mu.Lock()
	fns := make([]func(T), 0, len(e.handlers))
	for _, fn := range e.handlers {
		fns = append(fns, fn)
	}
	e.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}

func (e *Emitter[T]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers)
}

// Clear drops every handler.
func (e *Emitter[T]) Clear() {
	e.mu.Lock()
	e.handlers = nil
	e.mu.Unlock()
}

// Signal is an Emitter without payload.
type Signal struct {
	e Emitter[struct{}]
}

func (s *Signal) On(fn func()) Subscription {
	return s.e.On(func(struct{}) { fn() })
}

func (s *Signal) Emit()    { s.e.Emit(struct{}{}) }
func (s *Signal) Len() int { return s.e.Len() }
func (s *Signal) Clear()   { s.e.Clear() }
