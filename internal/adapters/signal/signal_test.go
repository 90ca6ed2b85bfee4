package signal

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/confsfu/internal/app"
	"github.com/dkeye/confsfu/internal/app/orch"
	"github.com/dkeye/confsfu/internal/core"
	"github.com/dkeye/confsfu/internal/media"
	"github.com/dkeye/confsfu/internal/media/memory"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type message struct {
	Type    string          `json:"type"`
	ID      int             `json:"id"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

func newServer(t *testing.T) (*orch.Orchestrator, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	pool, err := app.CreatePool(ctx, memory.New(), 1, media.WorkerSettings{})
	require.NoError(t, err)
	o := &orch.Orchestrator{
		Pool: pool,
		Rooms: app.NewRegistry(pool, app.RoomSettings{
			HostPolicy: core.LegacyHostPolicy{},
			Router: media.RouterOptions{MediaCodecs: []media.CodecConfig{
				{Kind: media.KindAudio, MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
				{Kind: media.KindVideo, MimeType: "video/VP8", ClockRate: 90000},
			}},
			Transport: media.WebRtcTransportOptions{ListenIPs: []media.ListenIP{{IP: "127.0.0.1"}}},
		}),
		Sessions: app.NewSessions(),
		Policy:   app.SimplePolicy{},
	}
	ctl := NewSignalWSController(o, NewRoomRateLimiter(3, time.Minute), Settings{ReadLimit: 1 << 20})

	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { ctl.HandleSignal(ctx, c) })
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return o, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

type client struct {
	t  *testing.T
	ws *websocket.Conn
	id int
	// pushes received while waiting for replies
	pushes []message
}

func dial(t *testing.T, url string) *client {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return &client{t: t, ws: ws}
}

func (c *client) read() message {
	c.t.Helper()
	require.NoError(c.t, c.ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := c.ws.ReadMessage()
	require.NoError(c.t, err)
	var m message
	require.NoError(c.t, json.Unmarshal(data, &m))
	return m
}

// call sends a request and waits for its ack or error.
func (c *client) call(typ string, data any) message {
	c.t.Helper()
	c.id++
	require.NoError(c.t, c.ws.WriteJSON(map[string]any{"type": typ, "id": c.id, "data": data}))
	for {
		m := c.read()
		if (m.Type == TypeAck || m.Type == TypeError) && m.ID == c.id {
			return m
		}
		c.pushes = append(c.pushes, m)
	}
}

// waitPush returns the first push of the given type.
func (c *client) waitPush(typ string) message {
	c.t.Helper()
	for i, m := range c.pushes {
		if m.Type == typ {
			c.pushes = append(c.pushes[:i], c.pushes[i+1:]...)
			return m
		}
	}
	for {
		m := c.read()
		if m.Type == typ {
			return m
		}
		c.pushes = append(c.pushes, m)
	}
}

func (c *client) join(room, peer string) {
	c.t.Helper()
	m := c.call("joinRoom", map[string]any{"room": room, "peerId": peer, "userProfile": map[string]any{"displayName": peer}})
	require.Equal(c.t, TypeAck, m.Type, m.Message)
	var res joinResult
	require.NoError(c.t, json.Unmarshal(m.Data, &res))
	require.NotEmpty(c.t, res.RtpCapabilities.Codecs)
}

var dtls = map[string]any{"fingerprints": []map[string]any{{"algorithm": "sha-256", "value": "00"}}}

func (c *client) transports(room, peer string) {
	c.t.Helper()
	for _, typ := range []string{"producer", "consumer"} {
		m := c.call("createWebRTCTransport", map[string]any{"room": room, "peerId": peer, "type": typ})
		require.Equal(c.t, TypeAck, m.Type, m.Message)
		m = c.call("connectWebRTCTransport", map[string]any{"room": room, "peerId": peer, "type": typ, "dtlsParameters": dtls})
		require.Equal(c.t, TypeAck, m.Type, m.Message)
	}
}

func TestSignal_PingAndErrors(t *testing.T) {
	_, url := newServer(t)
	c := dial(t, url)

	m := c.call("ping", nil)
	assert.Equal(t, TypeAck, m.Type)
	assert.JSONEq(t, `"pong"`, string(m.Data))

	m = c.call("nope", nil)
	assert.Equal(t, TypeError, m.Type)
	assert.Equal(t, "unknown_type", m.Error)

	m = c.call("joinRoom", map[string]any{"room": "r1"})
	assert.Equal(t, "bad_payload", m.Error)

	m = c.call("getParticipants", map[string]any{"room": "missing"})
	assert.Equal(t, "not_found", m.Error)
}

func TestSignal_ProduceConsumeRoundTrip(t *testing.T) {
	_, url := newServer(t)
	host := dial(t, url)
	guest := dial(t, url)

	host.join("r1", "host")
	guest.join("r1", "guest")
	joined := host.waitPush(core.EventUserJoined)
	assert.Contains(t, string(joined.Data), `"guest"`)

	m := guest.call("consume", map[string]any{"room": "r1", "peerId": "guest", "kind": "audio"})
	assert.Equal(t, "not_found", m.Error)

	// produce before any transport is a protocol violation
	m = host.call("produce", map[string]any{"room": "r1", "peerId": "host", "kind": "audio",
		"rtpParameters": map[string]any{"codecs": []map[string]any{{"mimeType": "audio/opus", "clockRate": 48000, "channels": 2, "payloadType": 111}}}})
	assert.Equal(t, "protocol", m.Error)

	host.transports("r1", "host")
	guest.transports("r1", "guest")

	m = host.call("produce", map[string]any{"room": "r1", "peerId": "host", "kind": "audio",
		"rtpParameters": map[string]any{"codecs": []map[string]any{{"mimeType": "audio/opus", "clockRate": 48000, "channels": 2, "payloadType": 111}}}})
	require.Equal(t, TypeAck, m.Type, m.Message)
	var produced produceResult
	require.NoError(t, json.Unmarshal(m.Data, &produced))
	require.NotEmpty(t, produced.ID)

	guest.waitPush(core.EventNewProducer)

	m = guest.call("consume", map[string]any{"room": "r1", "peerId": "guest", "kind": "audio", "toConsumePeerId": "host"})
	require.Equal(t, TypeAck, m.Type, m.Message)
	var info core.ConsumerInfo
	require.NoError(t, json.Unmarshal(m.Data, &info))
	assert.Equal(t, produced.ID, info.ProducerID)

	m = host.call("producerPause", map[string]any{"room": "r1", "peerId": "host", "kind": "audio"})
	require.Equal(t, TypeAck, m.Type, m.Message)
	guest.waitPush(core.EventProducerPause)

	// a connection cannot act for a peer it did not join
	m = guest.call("producerClose", map[string]any{"room": "r1", "peerId": "host", "kind": "audio"})
	assert.Equal(t, "not_found", m.Error)

	m = host.call("producerClose", map[string]any{"room": "r1", "peerId": "host", "kind": "audio"})
	require.Equal(t, TypeAck, m.Type, m.Message)
	guest.waitPush(core.EventProducerClose)
}

func TestSignal_ChatAndParticipants(t *testing.T) {
	_, url := newServer(t)
	a := dial(t, url)
	b := dial(t, url)
	a.join("r1", "a")
	b.join("r1", "b")

	m := a.call("sendMessage", map[string]any{"room": "r1", "message": map[string]any{"content": "hi"}})
	require.Equal(t, TypeAck, m.Type, m.Message)
	assert.JSONEq(t, `{"sendTo":2}`, string(m.Data))
	got := b.waitPush(core.EventNewMessage)
	assert.Contains(t, string(got.Data), `"hi"`)

	m = a.call("getParticipants", map[string]any{"room": "r1"})
	require.Equal(t, TypeAck, m.Type, m.Message)
	var profiles []map[string]any
	require.NoError(t, json.Unmarshal(m.Data, &profiles))
	assert.Len(t, profiles, 2)
}

func TestSignal_JoinRateLimited(t *testing.T) {
	_, url := newServer(t)
	c := dial(t, url)
	for i := 0; i < 3; i++ {
		c.join("r1", "p")
	}
	m := c.call("joinRoom", map[string]any{"room": "r1", "peerId": "p"})
	assert.Equal(t, "rate_limited", m.Error)
}

func TestSignal_CloseDisconnectsPeers(t *testing.T) {
	o, url := newServer(t)
	a := dial(t, url)
	b := dial(t, url)
	a.join("r1", "a")
	b.join("r1", "b")

	require.NoError(t, b.ws.Close())
	a.waitPush(core.EventUserDisconnected)
	assert.Eventually(t, func() bool {
		parts, err := o.Participants("r1")
		return err == nil && len(parts) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
