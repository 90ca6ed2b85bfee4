package signal

import (
	"context"

	"github.com/dkeye/confsfu/internal/app/orch"
	"github.com/dkeye/confsfu/internal/core"
	"github.com/dkeye/confsfu/internal/media"
)

type joinResult struct {
	RtpCapabilities media.RtpCapabilities `json:"rtpCapabilities"`
}

func (ctl *SignalWSController) handleJoin(ctx context.Context, sid core.SessionID, req request) (any, error) {
	var p joinPayload
	if err := ctl.decode(req, &p); err != nil {
		return nil, err
	}
	if err := p.Room.Validate(); err != nil {
		return nil, badPayload(err)
	}
	if err := p.PeerID.Validate(); err != nil {
		return nil, badPayload(err)
	}
	if err := p.UserProfile.Normalize(p.PeerID); err != nil {
		return nil, badPayload(err)
	}
	if !ctl.Limiter.Allow(p.PeerID) {
		return nil, ErrRateLimited
	}
	caps, err := ctl.Orch.JoinRoom(ctx, sid, orch.JoinRequest{
		Room:    p.Room,
		PeerID:  p.PeerID,
		Profile: p.UserProfile,
	})
	if err != nil {
		return nil, err
	}
	return joinResult{RtpCapabilities: caps}, nil
}

func (ctl *SignalWSController) handleParticipants(_ context.Context, _ core.SessionID, req request) (any, error) {
	var p roomPayload
	if err := ctl.decode(req, &p); err != nil {
		return nil, err
	}
	return ctl.Orch.Participants(p.Room)
}

func (ctl *SignalWSController) handleLeave(ctx context.Context, sid core.SessionID, req request) (any, error) {
	var p peerPayload
	if err := ctl.decode(req, &p); err != nil {
		return nil, err
	}
	return nil, ctl.Orch.LeaveRoom(ctx, sid, p.Room, p.PeerID)
}

type sendResult struct {
	SendTo int `json:"sendTo"`
}

func (ctl *SignalWSController) handleSendMessage(_ context.Context, _ core.SessionID, req request) (any, error) {
	var p messagePayload
	if err := ctl.decode(req, &p); err != nil {
		return nil, err
	}
	res, err := ctl.Orch.SendMessage(p.Room, p.Message)
	if err != nil {
		return nil, err
	}
	return sendResult{SendTo: res.SendTo}, nil
}

func (ctl *SignalWSController) handleUnpublish(ctx context.Context, _ core.SessionID, req request) (any, error) {
	var p roomPayload
	if err := ctl.decode(req, &p); err != nil {
		return nil, err
	}
	return nil, ctl.Orch.UnpublishRoom(ctx, p.Room)
}
