package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so the signaling layer can answer without
// inspecting messages.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	// KindNotFound: a room, peer or producer referenced by id does not exist.
	KindNotFound
	// KindProtocol: an operation arrived before the one it depends on.
	KindProtocol
	// KindEngine: the media engine rejected the call.
	KindEngine
	// KindInit: a worker or router could not be created.
	KindInit
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindProtocol:
		return "protocol"
	case KindEngine:
		return "engine"
	case KindInit:
		return "init"
	default:
		return "internal"
	}
}

// Kind sentinels; errors.Is(err, ErrNotFound) matches any *Error of that kind.
var (
	ErrNotFound = errors.New("not found")
	ErrProtocol = errors.New("protocol ordering violation")
	ErrEngine   = errors.New("media engine failure")
	ErrInit     = errors.New("initialization failure")
)

var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrPeerNotFound      = errors.New("peer not found")
	ErrTransportNotFound = errors.New("transport not created")
	ErrNoProducer        = errors.New("no producer for kind")
	ErrConsumerNotFound  = errors.New("consumer not found")
	ErrCannotConsume     = errors.New("cannot consume producer")
	ErrRouterUnavailable = errors.New("router unavailable")
	ErrInvalidKind       = errors.New("invalid media kind")
	ErrInvalidTransport  = errors.New("invalid transport type")
)

type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrProtocol:
		return e.Kind == KindProtocol
	case ErrEngine:
		return e.Kind == KindEngine
	case ErrInit:
		return e.Kind == KindInit
	}
	return false
}

func NewError(kind ErrorKind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of err, KindInternal when err is not an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
