package media

import "errors"

var (
	ErrClosed                = errors.New("handle closed")
	ErrUnknownProducer       = errors.New("unknown producer")
	ErrAlreadyConnected      = errors.New("transport already connected")
	ErrNoCodecs              = errors.New("rtp parameters carry no codecs")
	ErrUnsupportedCodec      = errors.New("unsupported codec")
	ErrPayloadTypesExhausted = errors.New("dynamic payload types exhausted")
	ErrInvalidKind           = errors.New("invalid media kind")
	ErrNoFingerprint         = errors.New("dtls parameters carry no fingerprint")
)
