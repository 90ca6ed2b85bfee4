// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	MaxPeerIDLen      = 64
	MaxRoomNameLen    = 64
	MaxDisplayNameLen = 64
	MaxPictureLen     = 2048
)

var (
	ErrPeerIDEmpty        = errors.New("peer id empty")
	ErrPeerIDTooLong      = errors.New("peer id too long")
	ErrRoomNameEmpty      = errors.New("room name empty")
	ErrRoomNameTooLong    = errors.New("room name too long")
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrPictureTooLong     = errors.New("picture too long")
)

// Profile is what other participants see of a peer.
type Profile struct {
	Identifier  string         `json:"identifier"`
	DisplayName string         `json:"displayName"`
	Picture     string         `json:"picture"`
	Extras      map[string]any `json:"extras,omitempty"`
}

// NewPeerID is a tiny helper for clients that do not pick their own id.
func NewPeerID() PeerID { return PeerID(uuid.NewString()) }

func (id PeerID) Validate() error {
	if len(id) == 0 {
		return ErrPeerIDEmpty
	}
	if len(id) > MaxPeerIDLen {
		return ErrPeerIDTooLong
	}
	return nil
}

func (n RoomName) Validate() error {
	if strings.TrimSpace(string(n)) == "" {
		return ErrRoomNameEmpty
	}
	if len(n) > MaxRoomNameLen {
		return ErrRoomNameTooLong
	}
	return nil
}

// Normalize fills the display name from the identifier and validates lengths.
func (p *Profile) Normalize(id PeerID) error {
	if p.Identifier == "" {
		p.Identifier = string(id)
	}
	if p.DisplayName == "" {
		p.DisplayName = p.Identifier
	}
	if utf8.RuneCountInString(p.DisplayName) > MaxDisplayNameLen {
		return ErrDisplayNameTooLong
	}
	if len(p.Picture) > MaxPictureLen {
		return ErrPictureTooLong
	}
	return nil
}
