package core

import (
	"fmt"
	"strings"
)

// HostPolicy decides which peer becomes the room host. The host is the
// default consume source and receives join notices.
type HostPolicy interface {
	Name() string
	// OnJoin reports whether a joining peer becomes host.
	OnJoin(hasHost bool, clients int) bool
	// OnProduce reports whether a peer that just produced becomes host.
	OnProduce(hasHost bool, clients int) bool
}

// LegacyHostPolicy takes the first joiner, and any producer while the room
// has fewer than two participants.
type LegacyHostPolicy struct{}

func (LegacyHostPolicy) Name() string { return "legacy" }

func (LegacyHostPolicy) OnJoin(hasHost bool, _ int) bool { return !hasHost }

func (LegacyHostPolicy) OnProduce(_ bool, clients int) bool { return clients < 2 }

// CreatorHostPolicy pins the host to the first joiner for the room lifetime.
type CreatorHostPolicy struct{}

func (CreatorHostPolicy) Name() string { return "creator" }

func (CreatorHostPolicy) OnJoin(hasHost bool, _ int) bool { return !hasHost }

func (CreatorHostPolicy) OnProduce(bool, int) bool { return false }

func HostPolicyByName(name string) (HostPolicy, error) {
	switch strings.ToLower(name) {
	case "", "legacy":
		return LegacyHostPolicy{}, nil
	case "creator":
		return CreatorHostPolicy{}, nil
	}
	return nil, fmt.Errorf("unknown host policy %q", name)
}
