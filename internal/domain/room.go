package domain

type (
	RoomName string
	PeerID   string
)

// TransportType tells which slot of a peer a transport fills.
type TransportType string

const (
	TransportProducer TransportType = "producer"
	TransportConsumer TransportType = "consumer"
)

func (t TransportType) Valid() bool {
	return t == TransportProducer || t == TransportConsumer
}
