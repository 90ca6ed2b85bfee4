package signal

import (
	"context"

	"github.com/dkeye/confsfu/internal/core"
	"github.com/dkeye/confsfu/internal/media"
)

type transportResult struct {
	Type   string             `json:"type"`
	Params core.TransportInfo `json:"params"`
}

type produceResult struct {
	ID string `json:"id"`
}

func (ctl *SignalWSController) handleRtpCapabilities(ctx context.Context, _ core.SessionID, req request) (any, error) {
	var p roomPayload
	if err := ctl.decode(req, &p); err != nil {
		return nil, err
	}
	return ctl.Orch.RtpCapabilities(ctx, p.Room)
}

func (ctl *SignalWSController) handleCreateTransport(ctx context.Context, sid core.SessionID, req request) (any, error) {
	var p transportPayload
	if err := ctl.decode(req, &p); err != nil {
		return nil, err
	}
	info, err := ctl.Orch.CreateTransport(ctx, sid, p.Room, p.PeerID, p.Type)
	if err != nil {
		return nil, err
	}
	return transportResult{Type: string(p.Type), Params: info}, nil
}

func (ctl *SignalWSController) handleConnectTransport(ctx context.Context, sid core.SessionID, req request) (any, error) {
	var p connectPayload
	if err := ctl.decode(req, &p); err != nil {
		return nil, err
	}
	params := media.ConnectParams{
		DtlsParameters: p.DtlsParameters,
		IceParameters:  p.IceParameters,
		IceCandidates:  p.IceCandidates,
	}
	return nil, ctl.Orch.ConnectTransport(ctx, sid, p.Room, p.PeerID, p.Type, params)
}

func (ctl *SignalWSController) handleProduce(ctx context.Context, sid core.SessionID, req request) (any, error) {
	var p producePayload
	if err := ctl.decode(req, &p); err != nil {
		return nil, err
	}
	id, err := ctl.Orch.Produce(ctx, sid, p.Room, p.PeerID, p.Kind, p.RtpParameters, p.Paused)
	if err != nil {
		return nil, err
	}
	return produceResult{ID: id}, nil
}

func (ctl *SignalWSController) handleConsume(ctx context.Context, sid core.SessionID, req request) (any, error) {
	var p consumePayload
	if err := ctl.decode(req, &p); err != nil {
		return nil, err
	}
	return ctl.Orch.Consume(ctx, sid, p.Room, core.ConsumeRequest{
		PeerID:          p.PeerID,
		Kind:            p.Kind,
		ToConsume:       p.ToConsumePeerID,
		RtpCapabilities: p.RtpCapabilities,
	})
}

func (ctl *SignalWSController) handleProducerPause(ctx context.Context, sid core.SessionID, req request) (any, error) {
	var p producerPayload
	if err := ctl.decode(req, &p); err != nil {
		return nil, err
	}
	return nil, ctl.Orch.PauseProducer(ctx, sid, p.Room, p.PeerID, p.Kind)
}

func (ctl *SignalWSController) handleProducerResume(ctx context.Context, sid core.SessionID, req request) (any, error) {
	var p producerPayload
	if err := ctl.decode(req, &p); err != nil {
		return nil, err
	}
	return nil, ctl.Orch.ResumeProducer(ctx, sid, p.Room, p.PeerID, p.Kind)
}

func (ctl *SignalWSController) handleProducerClose(ctx context.Context, sid core.SessionID, req request) (any, error) {
	var p producerPayload
	if err := ctl.decode(req, &p); err != nil {
		return nil, err
	}
	return nil, ctl.Orch.CloseProducer(ctx, sid, p.Room, p.PeerID, p.Kind)
}

func (ctl *SignalWSController) handleKeyFrame(ctx context.Context, sid core.SessionID, req request) (any, error) {
	var p keyFramePayload
	if err := ctl.decode(req, &p); err != nil {
		return nil, err
	}
	return nil, ctl.Orch.RequestKeyFrame(ctx, sid, p.Room, p.PeerID, p.ConsumerID)
}
