// Package hub fans camera frames and status events out to live viewers
// with a single channel-owning goroutine.
package hub

// MessageType indicates the websocket message format.
type MessageType int

const (
	// JSONMessage is a JSON-encoded event.
	JSONMessage MessageType = iota
	// FrameMessage is one JPEG-encoded frame.
	FrameMessage
)

// Message is one broadcast unit.
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage wraps pre-encoded JSON.
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewFrameMessage wraps an encoded frame.
func NewFrameMessage(jpeg []byte) Message {
	return Message{Type: FrameMessage, Data: jpeg}
}
