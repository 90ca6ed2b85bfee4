package signal

import (
	"errors"
	"fmt"

	"github.com/dkeye/confsfu/internal/core"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrBadPayload  = errors.New("bad_payload")
	ErrUnknownType = errors.New("unknown_type")
	ErrRateLimited = errors.New("rate_limited")
)

func badPayload(err error) error {
	return fmt.Errorf("%w: %v", ErrBadPayload, err)
}

// errorCode maps an operation error to the code sent to the client.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrBadPayload):
		return "bad_payload"
	case errors.Is(err, ErrUnknownType):
		return "unknown_type"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	}
	return core.KindOf(err).String()
}

func (ctl *SignalWSController) replyError(c *WsSignalConn, sid core.SessionID, req request, err error) {
	code := errorCode(err)
	var ev *zerolog.Event
	switch code {
	case "engine", "init", "internal":
		ev = log.Error()
	default:
		ev = log.Warn()
	}
	ev.Err(err).Str("module", "signal").Str("sid", string(sid)).Str("type", req.Type).Str("code", code).Msg("request failed")
	ctl.sendJSON(c, response{Type: TypeError, ID: req.ID, Error: code, Message: err.Error()})
}
