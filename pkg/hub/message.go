// Package hub fans dashboard messages out to websocket clients.
//
// Each Hub owns its client set on a single goroutine; publishers never block.
// When a publisher outpaces the hub, or a client outpaces its socket, the
// message is dropped rather than queued, since the dashboard only cares
// about recent state.
package hub

// MessageType indicates the websocket frame type.
type MessageType int

const (
	// JSONMessage is sent as a text frame.
	JSONMessage MessageType = iota
	// BinaryMessage is sent as a binary frame (JPEG overlay images).
	BinaryMessage
)

// Message is one websocket frame.
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage wraps pre-encoded JSON.
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage wraps raw bytes.
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}
