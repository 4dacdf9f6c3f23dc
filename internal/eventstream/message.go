// Package eventstream implements the length-prefixed, CRC-protected binary
// framing used to stream SelectObjectContent responses.
//
// Frame layout, big-endian:
//
//	total length (4) | headers length (4) | prelude CRC (4) | headers | payload | message CRC (4)
//
// The prelude CRC covers the two length fields. The message CRC covers every
// preceding byte of the frame.
package eventstream

import "errors"

// ContentType is the HTTP content type of a whole event stream response.
const ContentType = "application/vnd.amazon.eventstream"

const (
	HeaderMessageType = ":message-type"
	HeaderEventType   = ":event-type"
	HeaderContentType = ":content-type"

	MessageTypeEvent = "event"

	EventRecords = "Records"
	EventEnd     = "End"
)

// DefaultMaxFrameLen is the largest frame a Decoder accepts unless told
// otherwise. Encoding is bounded only by the 32-bit length field.
const DefaultMaxFrameLen = 16 << 20

const (
	preludeLen      = 12
	messageCRCLen   = 4
	minFrameLen     = preludeLen + messageCRCLen
	maxHeadersLen   = 128 << 10
	stringValueType = 7
)

var (
	ErrPreludeChecksum = errors.New("eventstream: prelude checksum mismatch")
	ErrMessageChecksum = errors.New("eventstream: message checksum mismatch")
	ErrMalformedFrame  = errors.New("eventstream: malformed frame")
)

type Header struct {
	Name  string
	Value string
}

type Message struct {
	Headers []Header
	Payload []byte
}

// Get returns the value of the first header with the given name.
func (m Message) Get(name string) (string, bool) {
	for _, header := range m.Headers {
		if header.Name == name {
			return header.Value, true
		}
	}
	return "", false
}

func (m Message) EventType() string {
	value, _ := m.Get(HeaderEventType)
	return value
}

func RecordsEvent(payload []byte, contentType string) Message {
	headers := []Header{
		{Name: HeaderMessageType, Value: MessageTypeEvent},
		{Name: HeaderEventType, Value: EventRecords},
	}
	if contentType != "" {
		headers = append(headers, Header{Name: HeaderContentType, Value: contentType})
	}
	return Message{Headers: headers, Payload: payload}
}

func EndEvent() Message {
	return Message{Headers: []Header{
		{Name: HeaderMessageType, Value: MessageTypeEvent},
		{Name: HeaderEventType, Value: EventEnd},
	}}
}
