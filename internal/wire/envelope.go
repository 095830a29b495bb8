package wire

import "time"

// ProtocolVersion is the wire protocol revision this build speaks. A frame
// carrying any other version is rejected before its payload is decoded.
const ProtocolVersion = 1

// MessageType tags the payload shape carried by a frame.
type MessageType byte

const (
	TypeRequest  MessageType = 1
	TypeResponse MessageType = 2
	TypeEvent    MessageType = 3
)

// String returns the lowercase tag name used in logs.
func (t MessageType) String() string {
	switch t {
	case TypeRequest:
		return "request"
	case TypeResponse:
		return "response"
	case TypeEvent:
		return "event"
	default:
		return "unknown"
	}
}

// Request asks the daemon to invoke one named operation. The ID is chosen by
// the client and must be unique among its outstanding requests; the matching
// Response echoes it back.
type Request struct {
	ID     uint64         `json:"id"`
	Method string         `json:"method"`
	Args   []any          `json:"args,omitempty"`
	Kwargs map[string]any `json:"kwargs,omitempty"`
}

// Response answers exactly one Request. Either Result or Fault is set, never
// both.
type Response struct {
	ID     uint64 `json:"id"`
	Result any    `json:"result,omitempty"`
	Fault  *Fault `json:"fault,omitempty"`
}

// Fault is a structured failure carried inside a Response instead of being
// raised on the connection.
type Fault struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Event is an asynchronous notification fanned out to subscribed sessions.
type Event struct {
	Name      string    `json:"name"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent builds an event stamped with the current time.
func NewEvent(name string, payload any) *Event {
	return &Event{Name: name, Payload: payload, Timestamp: time.Now().UTC()}
}

// Envelope is one decoded frame. Exactly one of Request, Response, or Event
// is non-nil, matching Type.
type Envelope struct {
	Type     MessageType
	Request  *Request
	Response *Response
	Event    *Event
}
