package app

import (
	"context"
	"sync"

	"github.com/dkeye/confsfu/internal/core"
	"github.com/dkeye/confsfu/internal/domain"
	"github.com/rs/zerolog/log"
)

// Membership is one (room, peer) pair joined through a connection.
type Membership struct {
	Room domain.RoomName
	Peer domain.PeerID
}

type sessionEntry struct {
	Signal      core.SignalConnection
	Cancel      context.CancelFunc
	Memberships map[Membership]struct{}
}

// Sessions tracks signaling connections and the rooms each of them joined.
type Sessions struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
}

func NewSessions() *Sessions {
	return &Sessions{sessions: make(map[core.SessionID]*sessionEntry)}
}

func (s *Sessions) BindSignal(sid core.SessionID, sig core.SignalConnection, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sid] = &sessionEntry{Signal: sig, Cancel: cancel, Memberships: make(map[Membership]struct{})}
	log.Info().Str("module", "app.sessions").Str("sid", string(sid)).Msg("bound signal")
}

func (s *Sessions) Signal(sid core.SessionID) (core.SignalConnection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.sessions[sid]; ok {
		return e.Signal, true
	}
	return nil, false
}

func (s *Sessions) Join(sid core.SessionID, m Membership) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[sid]
	if !ok {
		return false
	}
	e.Memberships[m] = struct{}{}
	log.Info().Str("module", "app.sessions").Str("sid", string(sid)).Str("room", string(m.Room)).Str("peer", string(m.Peer)).Msg("joined")
	return true
}

func (s *Sessions) Leave(sid core.SessionID, m Membership) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.sessions[sid]; ok {
		delete(e.Memberships, m)
	}
}

// Owns reports whether the connection joined room as peer.
func (s *Sessions) Owns(sid core.SessionID, m Membership) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[sid]
	if !ok {
		return false
	}
	_, ok = e.Memberships[m]
	return ok
}

func (s *Sessions) Memberships(sid core.SessionID) []Membership {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[sid]
	if !ok {
		return nil
	}
	out := make([]Membership, 0, len(e.Memberships))
	for m := range e.Memberships {
		out = append(out, m)
	}
	return out
}

// Lookup finds the connection that joined room as peer.
func (s *Sessions) Lookup(m Membership) (core.SessionID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for sid, e := range s.sessions {
		if _, ok := e.Memberships[m]; ok {
			return sid, true
		}
	}
	return "", false
}

// ForgetRoom drops every membership of room, used when a room is closed.
func (s *Sessions) ForgetRoom(room domain.RoomName) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.sessions {
		for m := range e.Memberships {
			if m.Room == room {
				delete(e.Memberships, m)
			}
		}
	}
}

// Unbind removes the connection and returns the memberships it still held.
func (s *Sessions) Unbind(sid core.SessionID) []Membership {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[sid]
	if !ok {
		return nil
	}
	delete(s.sessions, sid)
	out := make([]Membership, 0, len(e.Memberships))
	for m := range e.Memberships {
		out = append(out, m)
	}
	log.Info().Str("module", "app.sessions").Str("sid", string(sid)).Int("rooms", len(out)).Msg("unbind session")
	return out
}

func (s *Sessions) Cancel(sid core.SessionID) bool {
	s.mu.RLock()
	e, ok := s.sessions[sid]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.sessions").Str("sid", string(sid)).Msg("canceled session")
	return true
}

func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
