package signal

import (
	"context"
	"time"

	"github.com/dkeye/confsfu/internal/core"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ping := time.NewTicker(ctl.Settings.PingPeriod)
	defer func() {
		ping.Stop()
		c.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, sid core.SessionID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		cancel()
		c.Close()
		ctl.Orch.Disconnect(context.Background(), sid)
	}()

	pongWait := ctl.Settings.PingPeriod * 10 / 9
	if ctl.Settings.ReadLimit > 0 {
		c.conn.SetReadLimit(ctl.Settings.ReadLimit)
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
				}
				return
			}
			_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
			ctl.handleSignal(ctx, sid, c, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, sid core.SessionID, c *WsSignalConn, data []byte) {
	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		ctl.replyError(c, sid, request{Type: "unknown"}, ErrBadPayload)
		return
	}

	h, ok := ctl.routes[req.Type]
	if !ok {
		log.Warn().Str("module", "signal").Str("type", req.Type).Msg("unknown signal")
		ctl.replyError(c, sid, req, ErrUnknownType)
		return
	}
	result, err := h(ctx, sid, req)
	if err != nil {
		ctl.replyError(c, sid, req, err)
		return
	}
	ctl.sendJSON(c, response{Type: TypeAck, ID: req.ID, Data: result})
}

type handlerFunc func(ctx context.Context, sid core.SessionID, req request) (any, error)

func (ctl *SignalWSController) handlers() map[string]handlerFunc {
	return map[string]handlerFunc{
		"ping":                    ctl.handlePing,
		"identity":                ctl.handleIdentity,
		"joinRoom":                ctl.handleJoin,
		"getParticipants":         ctl.handleParticipants,
		"leaveRoom":               ctl.handleLeave,
		"sendMessage":             ctl.handleSendMessage,
		"unpublishRoom":           ctl.handleUnpublish,
		"getRtpCapabilities":      ctl.handleRtpCapabilities,
		"createWebRTCTransport":   ctl.handleCreateTransport,
		"connectWebRTCTransport":  ctl.handleConnectTransport,
		"produce":                 ctl.handleProduce,
		"consume":                 ctl.handleConsume,
		"producerPause":           ctl.handleProducerPause,
		"producerResume":          ctl.handleProducerResume,
		"producerClose":           ctl.handleProducerClose,
		"requestConsumerKeyFrame": ctl.handleKeyFrame,
	}
}

func (ctl *SignalWSController) sendJSON(c core.SignalConnection, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}
