package orch

import (
	"context"

	"github.com/dkeye/confsfu/internal/core"
	"github.com/dkeye/confsfu/internal/domain"
	"github.com/dkeye/confsfu/internal/media"
)

func (o *Orchestrator) RtpCapabilities(ctx context.Context, name domain.RoomName) (media.RtpCapabilities, error) {
	room, err := o.room("orch.rtpCapabilities", name)
	if err != nil {
		return media.RtpCapabilities{}, err
	}
	return room.RtpCapabilities(ctx)
}

func (o *Orchestrator) CreateTransport(ctx context.Context, sid core.SessionID, name domain.RoomName, peer domain.PeerID, typ domain.TransportType) (core.TransportInfo, error) {
	room, err := o.member("orch.createTransport", sid, name, peer)
	if err != nil {
		return core.TransportInfo{}, err
	}
	info, err := room.CreateWebRtcTransport(ctx, peer, typ)
	o.applyBackpressure(room)
	return info, err
}

func (o *Orchestrator) ConnectTransport(ctx context.Context, sid core.SessionID, name domain.RoomName, peer domain.PeerID, typ domain.TransportType, params media.ConnectParams) error {
	room, err := o.member("orch.connectTransport", sid, name, peer)
	if err != nil {
		return err
	}
	return room.ConnectWebRtcTransport(ctx, peer, typ, params)
}

func (o *Orchestrator) Produce(ctx context.Context, sid core.SessionID, name domain.RoomName, peer domain.PeerID, kind media.Kind, params media.RtpParameters, paused bool) (string, error) {
	room, err := o.member("orch.produce", sid, name, peer)
	if err != nil {
		return "", err
	}
	id, err := room.Produce(ctx, peer, kind, params, paused)
	o.applyBackpressure(room)
	return id, err
}

func (o *Orchestrator) Consume(ctx context.Context, sid core.SessionID, name domain.RoomName, req core.ConsumeRequest) (core.ConsumerInfo, error) {
	room, err := o.member("orch.consume", sid, name, req.PeerID)
	if err != nil {
		return core.ConsumerInfo{}, err
	}
	return room.Consume(ctx, req)
}

func (o *Orchestrator) PauseProducer(ctx context.Context, sid core.SessionID, name domain.RoomName, peer domain.PeerID, kind media.Kind) error {
	room, err := o.member("orch.pauseProducer", sid, name, peer)
	if err != nil {
		return err
	}
	err = room.PauseProducer(ctx, peer, kind)
	o.applyBackpressure(room)
	return err
}

func (o *Orchestrator) ResumeProducer(ctx context.Context, sid core.SessionID, name domain.RoomName, peer domain.PeerID, kind media.Kind) error {
	room, err := o.member("orch.resumeProducer", sid, name, peer)
	if err != nil {
		return err
	}
	err = room.ResumeProducer(ctx, peer, kind)
	o.applyBackpressure(room)
	return err
}

func (o *Orchestrator) CloseProducer(ctx context.Context, sid core.SessionID, name domain.RoomName, peer domain.PeerID, kind media.Kind) error {
	room, err := o.member("orch.closeProducer", sid, name, peer)
	if err != nil {
		return err
	}
	err = room.CloseProducer(ctx, peer, kind)
	o.applyBackpressure(room)
	return err
}

func (o *Orchestrator) RequestKeyFrame(ctx context.Context, sid core.SessionID, name domain.RoomName, peer domain.PeerID, consumerID string) error {
	room, err := o.member("orch.requestKeyFrame", sid, name, peer)
	if err != nil {
		return err
	}
	return room.RequestConsumerKeyFrame(ctx, peer, consumerID)
}
