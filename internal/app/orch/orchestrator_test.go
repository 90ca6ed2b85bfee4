package orch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dkeye/confsfu/internal/app"
	"github.com/dkeye/confsfu/internal/core"
	"github.com/dkeye/confsfu/internal/domain"
	"github.com/dkeye/confsfu/internal/media"
	"github.com/dkeye/confsfu/internal/media/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type conn struct {
	mu       sync.Mutex
	frames   int
	full     bool
	canceled bool
}

func (c *conn) TrySend(core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return errors.New("full")
	}
	c.frames++
	return nil
}

func (c *conn) Close() {}

func newOrchestrator(t *testing.T, closeWhenEmpty bool) (*Orchestrator, *memory.Engine) {
	t.Helper()
	eng := memory.New()
	pool, err := app.CreatePool(context.Background(), eng, 2, media.WorkerSettings{})
	require.NoError(t, err)
	reg := app.NewRegistry(pool, app.RoomSettings{
		HostPolicy: core.LegacyHostPolicy{},
		Router: media.RouterOptions{MediaCodecs: []media.CodecConfig{
			{Kind: media.KindAudio, MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
			{Kind: media.KindVideo, MimeType: "video/VP8", ClockRate: 90000},
		}},
		Transport: media.WebRtcTransportOptions{ListenIPs: []media.ListenIP{{IP: "127.0.0.1"}}},
	})
	return &Orchestrator{
		Pool:           pool,
		Rooms:          reg,
		Sessions:       app.NewSessions(),
		Policy:         app.SimplePolicy{},
		CloseWhenEmpty: closeWhenEmpty,
	}, eng
}

func connect(o *Orchestrator, sid core.SessionID) *conn {
	c := &conn{}
	o.Connect(sid, c, func() {
		c.mu.Lock()
		c.canceled = true
		c.mu.Unlock()
	})
	return c
}

func join(t *testing.T, o *Orchestrator, sid core.SessionID, room domain.RoomName, peer domain.PeerID) {
	t.Helper()
	caps, err := o.JoinRoom(context.Background(), sid, JoinRequest{Room: room, PeerID: peer, Profile: domain.Profile{DisplayName: string(peer)}})
	require.NoError(t, err)
	require.NotEmpty(t, caps.Codecs)
}

func setupTransports(t *testing.T, o *Orchestrator, sid core.SessionID, room domain.RoomName, peer domain.PeerID) {
	t.Helper()
	ctx := context.Background()
	for _, typ := range []domain.TransportType{domain.TransportProducer, domain.TransportConsumer} {
		_, err := o.CreateTransport(ctx, sid, room, peer, typ)
		require.NoError(t, err)
		err = o.ConnectTransport(ctx, sid, room, peer, typ, media.ConnectParams{DtlsParameters: media.DtlsParameters{
			Fingerprints: []media.DtlsFingerprint{{Algorithm: "sha-256", Value: "00"}},
		}})
		require.NoError(t, err)
	}
}

var opus = media.RtpParameters{Codecs: []media.RtpCodecParameters{{MimeType: "audio/opus", ClockRate: 48000, Channels: 2, PayloadType: 111}}}

func TestOrchestrator_ProduceConsumeFlow(t *testing.T) {
	o, _ := newOrchestrator(t, false)
	ctx := context.Background()
	connect(o, "s1")
	connect(o, "s2")
	join(t, o, "s1", "room", "alice")
	join(t, o, "s2", "room", "bob")
	setupTransports(t, o, "s1", "room", "alice")
	setupTransports(t, o, "s2", "room", "bob")

	producerID, err := o.Produce(ctx, "s1", "room", "alice", media.KindAudio, opus, false)
	require.NoError(t, err)

	info, err := o.Consume(ctx, "s2", "room", core.ConsumeRequest{PeerID: "bob", Kind: media.KindAudio, ToConsume: "alice"})
	require.NoError(t, err)
	assert.Equal(t, producerID, info.ProducerID)

	profiles, err := o.Participants("room")
	require.NoError(t, err)
	assert.Len(t, profiles, 2)

	stats, err := o.RoomStats("room")
	require.NoError(t, err)
	assert.True(t, stats.Clients[0].ProduceAudio)
	assert.Len(t, o.ListRooms(), 1)

	var clients int64
	for _, w := range o.Workers() {
		clients += w.ClientsCount
	}
	assert.Equal(t, int64(2), clients)

	require.NoError(t, o.PauseProducer(ctx, "s1", "room", "alice", media.KindAudio))
	require.NoError(t, o.ResumeProducer(ctx, "s1", "room", "alice", media.KindAudio))
	require.NoError(t, o.CloseProducer(ctx, "s1", "room", "alice", media.KindAudio))
}

func TestOrchestrator_RejectsForeignPeer(t *testing.T) {
	o, _ := newOrchestrator(t, false)
	ctx := context.Background()
	connect(o, "s1")
	connect(o, "s2")
	join(t, o, "s1", "room", "alice")

	_, err := o.CreateTransport(ctx, "s2", "room", "alice", domain.TransportProducer)
	assert.ErrorIs(t, err, core.ErrPeerNotFound)

	_, err = o.Participants("nowhere")
	assert.ErrorIs(t, err, core.ErrRoomNotFound)
	assert.Equal(t, core.KindNotFound, core.KindOf(err))

	_, err = o.JoinRoom(ctx, "unknown", JoinRequest{Room: "room", PeerID: "x"})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestOrchestrator_DisconnectLeavesRooms(t *testing.T) {
	o, _ := newOrchestrator(t, false)
	ctx := context.Background()
	connect(o, "s1")
	connect(o, "s2")
	join(t, o, "s1", "room", "alice")
	join(t, o, "s2", "room", "bob")

	o.Disconnect(ctx, "s1")
	profiles, err := o.Participants("room")
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "bob", profiles[0].DisplayName)

	require.NoError(t, o.LeaveRoom(ctx, "s2", "room", "bob"))
	_, ok := o.Rooms.Get("room")
	assert.True(t, ok, "rooms stay registered by default")
	assert.Error(t, o.LeaveRoom(ctx, "s2", "room", "bob"))
}

func TestOrchestrator_CloseWhenEmpty(t *testing.T) {
	o, eng := newOrchestrator(t, true)
	ctx := context.Background()
	connect(o, "s1")
	join(t, o, "s1", "room", "alice")

	o.Disconnect(ctx, "s1")
	_, ok := o.Rooms.Get("room")
	assert.False(t, ok)
	for _, w := range eng.Workers() {
		assert.Empty(t, w.Routers())
	}
}

func TestOrchestrator_UnpublishKeepsRoom(t *testing.T) {
	o, eng := newOrchestrator(t, false)
	ctx := context.Background()
	connect(o, "s1")
	join(t, o, "s1", "room", "alice")

	require.NoError(t, o.UnpublishRoom(ctx, "room"))
	room, ok := o.Rooms.Get("room")
	require.True(t, ok)
	assert.Zero(t, room.ClientCount())
	assert.True(t, room.Closed())

	join(t, o, "s1", "room", "alice")
	assert.Equal(t, 2, eng.RoutersCreated())
	assert.ErrorIs(t, o.UnpublishRoom(ctx, "missing"), core.ErrRoomNotFound)
}

func TestOrchestrator_KicksSlowPeer(t *testing.T) {
	o, _ := newOrchestrator(t, false)
	connect(o, "s1")
	slow := connect(o, "s2")
	join(t, o, "s1", "room", "alice")
	join(t, o, "s2", "room", "bob")

	slow.mu.Lock()
	slow.full = true
	slow.mu.Unlock()

	res, err := o.SendMessage("room", core.ChatMessage{Content: "hello"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.SendTo)
	assert.Equal(t, []domain.PeerID{"bob"}, res.Dropped)

	slow.mu.Lock()
	defer slow.mu.Unlock()
	assert.True(t, slow.canceled)
}

func TestOrchestrator_RejoinFromNewConnection(t *testing.T) {
	o, _ := newOrchestrator(t, false)
	ctx := context.Background()
	connect(o, "old")
	connect(o, "new")
	join(t, o, "old", "room", "alice")
	join(t, o, "new", "room", "alice")

	// the stale connection must not take the fresh session down
	o.Disconnect(ctx, "old")
	profiles, err := o.Participants("room")
	require.NoError(t, err)
	assert.Len(t, profiles, 1)
}

func TestOrchestrator_Shutdown(t *testing.T) {
	o, eng := newOrchestrator(t, false)
	connect(o, "s1")
	join(t, o, "s1", "room", "alice")

	require.NoError(t, o.Shutdown(context.Background()))
	assert.Zero(t, o.Rooms.Len())
	for _, w := range eng.Workers() {
		assert.True(t, w.Closed())
	}
}
