package app

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/dkeye/confsfu/internal/core"
	"github.com/dkeye/confsfu/internal/domain"
	"github.com/dkeye/confsfu/internal/media"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// RoomSettings are applied to every room the registry creates.
type RoomSettings struct {
	HostPolicy core.HostPolicy
	Router     media.RouterOptions
	Transport  media.WebRtcTransportOptions
	Observer   media.AudioLevelObserverOptions
}

// Registry owns the rooms of the process, at most one per name.
type Registry struct {
	pool     *Pool
	settings RoomSettings

	mu    sync.RWMutex
	rooms map[domain.RoomName]*core.Room

	creating singleflight.Group
}

func NewRegistry(pool *Pool, settings RoomSettings) *Registry {
	return &Registry{
		pool:     pool,
		settings: settings,
		rooms:    make(map[domain.RoomName]*core.Room),
	}
}

func (r *Registry) Get(name domain.RoomName) (*core.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[name]
	return room, ok
}

// GetOrCreate returns the room for name, creating and loading it on first
// use. Concurrent callers for the same name share a single creation; a
// failed creation registers nothing.
func (r *Registry) GetOrCreate(ctx context.Context, name domain.RoomName) (*core.Room, error) {
	if room, ok := r.Get(name); ok {
		return room, nil
	}
	v, err, _ := r.creating.Do(string(name), func() (any, error) {
		if room, ok := r.Get(name); ok {
			return room, nil
		}
		w := r.pool.SelectLeastLoaded()
		room := core.NewRoom(core.RoomOptions{
			Name:        name,
			WorkerIndex: w.Index,
			Worker:      w.Handle,
			Load:        w,
			HostPolicy:  r.settings.HostPolicy,
			Router:      r.settings.Router,
			Transport:   r.settings.Transport,
			Observer:    r.settings.Observer,
		})
		if err := room.Load(ctx); err != nil {
			log.Error().Err(err).Str("module", "app.registry").Str("room", string(name)).Int("worker", w.Index).Msg("room init failed")
			return nil, err
		}
		r.mu.Lock()
		r.rooms[name] = room
		r.mu.Unlock()
		log.Info().Str("module", "app.registry").Str("room", string(name)).Int("worker", w.Index).Msg("room created")
		return room, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*core.Room), nil
}

// Remove drops the registry entry without closing the room.
func (r *Registry) Remove(name domain.RoomName) (*core.Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[name]
	if ok {
		delete(r.rooms, name)
		log.Info().Str("module", "app.registry").Str("room", string(name)).Msg("room removed")
	}
	return room, ok
}

// RemoveIfEmpty drops room from the registry if it is still registered under
// its name and has no members.
func (r *Registry) RemoveIfEmpty(room *core.Room) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.rooms[room.Name()]; !ok || cur != room || room.ClientCount() > 0 {
		return false
	}
	delete(r.rooms, room.Name())
	log.Info().Str("module", "app.registry").Str("room", string(room.Name())).Msg("empty room removed")
	return true
}

// List returns rooms ordered by name.
func (r *Registry) List() []*core.Room {
	r.mu.RLock()
	out := make([]*core.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		out = append(out, room)
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b *core.Room) int { return strings.Compare(string(a.Name()), string(b.Name())) })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// CloseAll closes every room concurrently and empties the registry.
func (r *Registry) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	rooms := make([]*core.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	clear(r.rooms)
	r.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, room := range rooms {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			room.Close(ctx)
			return nil
		})
	}
	err := g.Wait()
	log.Info().Str("module", "app.registry").Int("rooms", len(rooms)).Err(err).Msg("rooms closed")
	return err
}
