package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dkeye/confsfu/internal/adapters/signal"
	"github.com/dkeye/confsfu/internal/app"
	"github.com/dkeye/confsfu/internal/app/orch"
	"github.com/dkeye/confsfu/internal/config"
	"github.com/dkeye/confsfu/internal/core"
	"github.com/dkeye/confsfu/internal/domain"
	"github.com/dkeye/confsfu/internal/media"
	"github.com/dkeye/confsfu/internal/media/memory"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopConn struct{}

func (nopConn) TrySend(core.Frame) error { return nil }
func (nopConn) Close()                   {}

func newRouter(t *testing.T) (*gin.Engine, *orch.Orchestrator) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	pool, err := app.CreatePool(ctx, memory.New(), 2, media.WorkerSettings{})
	require.NoError(t, err)
	o := &orch.Orchestrator{
		Pool: pool,
		Rooms: app.NewRegistry(pool, app.RoomSettings{
			HostPolicy: core.LegacyHostPolicy{},
			Router: media.RouterOptions{MediaCodecs: []media.CodecConfig{
				{Kind: media.KindAudio, MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
			}},
		}),
		Sessions: app.NewSessions(),
		Policy:   app.SimplePolicy{},
	}
	cfg := &config.Config{Mode: "test", Secret: "test-secret"}
	ctrl := signal.NewSignalWSController(o, nil, signal.Settings{})
	return SetupRouter(ctx, cfg, o, ctrl), o
}

func do(r http.Handler, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestRouter_ClientTokenCookie(t *testing.T) {
	r, _ := newRouter(t)
	w := do(r, http.MethodGet, "/api/health")
	require.Equal(t, http.StatusOK, w.Code)
	var found bool
	for _, c := range w.Result().Cookies() {
		if c.Name == "ct" {
			found = true
			assert.NotEmpty(t, c.Value)
			assert.True(t, c.HttpOnly)
		}
	}
	assert.True(t, found)
}

func TestRouter_Workers(t *testing.T) {
	r, _ := newRouter(t)
	w := do(r, http.MethodGet, "/api/workers")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Workers []app.WorkerInfo `json:"workers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Workers, 2)
	assert.Equal(t, 0, body.Workers[0].WorkerIndex)
}

func TestRouter_RoomLifecycle(t *testing.T) {
	r, o := newRouter(t)

	w := do(r, http.MethodGet, "/api/rooms/r1")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"not_found"`)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	o.Connect("s1", nopConn{}, func() {})
	_, err := o.JoinRoom(ctx, "s1", orch.JoinRequest{Room: "r1", PeerID: "p1", Profile: domain.Profile{DisplayName: "Ann"}})
	require.NoError(t, err)

	w = do(r, http.MethodGet, "/api/rooms")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"r1"`)

	w = do(r, http.MethodGet, "/api/rooms/r1")
	require.Equal(t, http.StatusOK, w.Code)
	var st core.RoomStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, domain.PeerID("p1"), st.Host)
	require.Len(t, st.Clients, 1)
	assert.Equal(t, "Ann", st.Clients[0].DisplayName)

	w = do(r, http.MethodGet, "/api/rooms/r1/participants")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"Ann"`)

	w = do(r, http.MethodDelete, "/api/rooms/r1")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(r, http.MethodGet, "/api/rooms/r1/participants")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"participants":[]}`, w.Body.String())
}
