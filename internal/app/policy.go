package app

import (
	"github.com/dkeye/confsfu/internal/core"
	"github.com/dkeye/confsfu/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

type Policy interface {
	OnBackPressure(room *core.Room, peer domain.PeerID) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(*core.Room, domain.PeerID) BackpressureAction {
	return KickMember
}

// TolerantPolicy drops frames for slow peers and keeps them connected.
type TolerantPolicy struct{}

func (TolerantPolicy) OnBackPressure(*core.Room, domain.PeerID) BackpressureAction {
	return DropFrame
}

func PolicyByName(name string) Policy {
	if name == "drop" {
		return TolerantPolicy{}
	}
	return SimplePolicy{}
}
