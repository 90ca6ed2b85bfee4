package core_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dkeye/confsfu/internal/core"
	"github.com/dkeye/confsfu/internal/domain"
	"github.com/dkeye/confsfu/internal/media"
	"github.com/dkeye/confsfu/internal/media/memory"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

var errQueueFull = errors.New("queue full")

type received struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// sink records every frame a peer receives.
type sink struct {
	mu     sync.Mutex
	frames []received
	full   bool
}

func (s *sink) TrySend(f core.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return errQueueFull
	}
	var r received
	if err := json.Unmarshal(f, &r); err != nil {
		return err
	}
	s.frames = append(s.frames, r)
	return nil
}

func (s *sink) Close() {}

func (s *sink) count(typ string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, f := range s.frames {
		if f.Type == typ {
			n++
		}
	}
	return n
}

func (s *sink) last(t *testing.T, typ string, v any) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.frames) - 1; i >= 0; i-- {
		if s.frames[i].Type == typ {
			require.NoError(t, json.Unmarshal(s.frames[i].Data, v))
			return
		}
	}
	t.Fatalf("no %q event received", typ)
}

func testCodecs() []media.CodecConfig {
	return []media.CodecConfig{
		{Kind: media.KindAudio, MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
		{Kind: media.KindVideo, MimeType: "video/VP8", ClockRate: 90000},
	}
}

func rtpParams(kind media.Kind) media.RtpParameters {
	if kind == media.KindAudio {
		return media.RtpParameters{
			Mid:    "0",
			Codecs: []media.RtpCodecParameters{{MimeType: "audio/opus", ClockRate: 48000, Channels: 2, PayloadType: 111}},
		}
	}
	return media.RtpParameters{
		Mid:    "1",
		Codecs: []media.RtpCodecParameters{{MimeType: "video/VP8", ClockRate: 90000, PayloadType: 96}},
	}
}

func connectParams() media.ConnectParams {
	return media.ConnectParams{DtlsParameters: media.DtlsParameters{
		Role:         media.DtlsRoleClient,
		Fingerprints: []media.DtlsFingerprint{{Algorithm: "sha-256", Value: "AB:CD"}},
	}}
}

type fixture struct {
	t      *testing.T
	ctx    context.Context
	engine *memory.Engine
	worker media.Worker
	room   *core.Room
	sinks  map[domain.PeerID]*sink
}

func newFixture(t *testing.T, policy core.HostPolicy) *fixture {
	t.Helper()
	ctx := context.Background()
	engine := memory.New()
	worker, err := engine.CreateWorker(ctx, media.WorkerSettings{})
	require.NoError(t, err)
	room := core.NewRoom(core.RoomOptions{
		Name:       "lobby",
		Worker:     worker,
		HostPolicy: policy,
		Router:     media.RouterOptions{MediaCodecs: testCodecs()},
		Transport: media.WebRtcTransportOptions{
			ListenIPs: []media.ListenIP{{IP: "127.0.0.1"}},
			EnableUDP: true,
		},
	})
	return &fixture{t: t, ctx: ctx, engine: engine, worker: worker, room: room, sinks: map[domain.PeerID]*sink{}}
}

func (f *fixture) join(id domain.PeerID) *sink {
	f.t.Helper()
	s := &sink{}
	f.sinks[id] = s
	require.NoError(f.t, f.room.AddClient(f.ctx, id, s, domain.Profile{Identifier: string(id), DisplayName: string(id)}))
	return s
}

// transports creates and connects both transports of a peer.
func (f *fixture) transports(id domain.PeerID) {
	f.t.Helper()
	for _, typ := range []domain.TransportType{domain.TransportProducer, domain.TransportConsumer} {
		info, err := f.room.CreateWebRtcTransport(f.ctx, id, typ)
		require.NoError(f.t, err)
		require.NotEmpty(f.t, info.ID)
		require.NoError(f.t, f.room.ConnectWebRtcTransport(f.ctx, id, typ, connectParams()))
	}
}

func (f *fixture) produce(id domain.PeerID, kind media.Kind) string {
	f.t.Helper()
	pid, err := f.room.Produce(f.ctx, id, kind, rtpParams(kind), false)
	require.NoError(f.t, err)
	return pid
}

func (f *fixture) consume(id, source domain.PeerID, kind media.Kind) core.ConsumerInfo {
	f.t.Helper()
	info, err := f.room.Consume(f.ctx, core.ConsumeRequest{PeerID: id, Kind: kind, ToConsume: source})
	require.NoError(f.t, err)
	return info
}

func (f *fixture) router() *memory.Router {
	f.t.Helper()
	routers := f.worker.(*memory.Worker).Routers()
	require.Len(f.t, routers, 1)
	return routers[0]
}

// peerTransports returns the live memory transports created for a peer.
func (f *fixture) peerTransports(id domain.PeerID) []*memory.Transport {
	var out []*memory.Transport
	for _, t := range f.router().Transports() {
		if t.AppData().PeerID() == string(id) {
			out = append(out, t)
		}
	}
	return out
}
