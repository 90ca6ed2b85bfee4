package signal

import (
	"context"

	"github.com/dkeye/confsfu/internal/core"
)

func (ctl *SignalWSController) handlePing(context.Context, core.SessionID, request) (any, error) {
	return "pong", nil
}

// handleIdentity echoes the payload back.
func (ctl *SignalWSController) handleIdentity(_ context.Context, _ core.SessionID, req request) (any, error) {
	return req.Data, nil
}
