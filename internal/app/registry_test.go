package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dkeye/confsfu/internal/core"
	"github.com/dkeye/confsfu/internal/domain"
	"github.com/dkeye/confsfu/internal/media"
	"github.com/dkeye/confsfu/internal/media/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSettings() RoomSettings {
	return RoomSettings{
		HostPolicy: core.LegacyHostPolicy{},
		Router: media.RouterOptions{MediaCodecs: []media.CodecConfig{
			{Kind: media.KindAudio, MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
		}},
		Transport: media.WebRtcTransportOptions{ListenIPs: []media.ListenIP{{IP: "127.0.0.1"}}},
	}
}

func newTestRegistry(t *testing.T, workers int) (*Registry, *Pool, *memory.Engine) {
	t.Helper()
	eng := memory.New()
	p, err := CreatePool(context.Background(), eng, workers, media.WorkerSettings{})
	require.NoError(t, err)
	return NewRegistry(p, testSettings()), p, eng
}

func TestRegistry_ConcurrentCreateIsExactlyOnce(t *testing.T) {
	reg, p, eng := newTestRegistry(t, 2)
	const n = 32

	rooms := make([]*core.Room, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			room, err := reg.GetOrCreate(context.Background(), "r")
			assert.NoError(t, err)
			rooms[i] = room
		}()
	}
	wg.Wait()

	for _, room := range rooms {
		assert.Same(t, rooms[0], room)
	}
	assert.Equal(t, 1, eng.RoutersCreated())
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, int64(1), p.Worker(0).RoomCount()+p.Worker(1).RoomCount())
}

func TestRegistry_InitFailureRegistersNothing(t *testing.T) {
	reg, _, eng := newTestRegistry(t, 1)
	eng.RouterErr = errors.New("no router")

	_, err := reg.GetOrCreate(context.Background(), "r")
	require.Error(t, err)
	assert.Equal(t, core.KindInit, core.KindOf(err))
	_, ok := reg.Get("r")
	assert.False(t, ok)

	eng.RouterErr = nil
	room, err := reg.GetOrCreate(context.Background(), "r")
	require.NoError(t, err)
	assert.Equal(t, domain.RoomName("r"), room.Name())
}

func TestRegistry_BalancesAcrossWorkers(t *testing.T) {
	reg, p, _ := newTestRegistry(t, 2)
	ctx := context.Background()

	a, err := reg.GetOrCreate(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, a.AddClient(ctx, "p1", nopSignal{}, domain.Profile{}))

	b, err := reg.GetOrCreate(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 0, a.WorkerIndex())
	assert.Equal(t, 1, b.WorkerIndex())
	assert.Equal(t, int64(1), p.Worker(0).ClientCount())
}

func TestRegistry_CloseKeepsEntryAndCloseAll(t *testing.T) {
	reg, p, _ := newTestRegistry(t, 1)
	ctx := context.Background()
	room, err := reg.GetOrCreate(ctx, "r")
	require.NoError(t, err)
	require.NoError(t, room.AddClient(ctx, "p1", nopSignal{}, domain.Profile{}))

	room.Close(ctx)
	got, ok := reg.Get("r")
	require.True(t, ok)
	assert.Same(t, room, got)
	assert.Zero(t, p.Worker(0).ClientCount())
	assert.Zero(t, p.Worker(0).RoomCount())

	assert.True(t, reg.RemoveIfEmpty(room))
	assert.False(t, reg.RemoveIfEmpty(room))

	_, err = reg.GetOrCreate(ctx, "x")
	require.NoError(t, err)
	_, err = reg.GetOrCreate(ctx, "y")
	require.NoError(t, err)
	names := []domain.RoomName{}
	for _, r := range reg.List() {
		names = append(names, r.Name())
	}
	assert.Equal(t, []domain.RoomName{"x", "y"}, names)

	require.NoError(t, reg.CloseAll(ctx))
	assert.Zero(t, reg.Len())
	assert.Zero(t, p.Worker(0).RoomCount())
}

type nopSignal struct{}

func (nopSignal) TrySend(core.Frame) error { return nil }
func (nopSignal) Close()                   {}
