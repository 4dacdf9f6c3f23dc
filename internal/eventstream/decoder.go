package eventstream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/crc32"
)

type Decoder struct {
	r io.Reader
	// MaxFrameLen rejects larger frames before their body is read. Zero or
	// less accepts any length.
	MaxFrameLen int
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r, MaxFrameLen: DefaultMaxFrameLen}
}

// Decode reads the next frame. It returns io.EOF when the stream ends cleanly
// on a frame boundary.
func (d *Decoder) Decode() (Message, error) {
	prelude := make([]byte, preludeLen)
	if _, err := io.ReadFull(d.r, prelude); err != nil {
		if errors.Is(err, io.EOF) {
			return Message{}, io.EOF
		}
		return Message{}, fmt.Errorf("%w: read prelude: %v", ErrMalformedFrame, err)
	}
	if crc32.ChecksumIEEE(prelude[0:8]) != binary.BigEndian.Uint32(prelude[8:12]) {
		return Message{}, ErrPreludeChecksum
	}
	total := int(binary.BigEndian.Uint32(prelude[0:4]))
	headersLen := int(binary.BigEndian.Uint32(prelude[4:8]))
	if d.MaxFrameLen > 0 && total > d.MaxFrameLen {
		return Message{}, fmt.Errorf("%w: total length %d exceeds limit %d", ErrMalformedFrame, total, d.MaxFrameLen)
	}
	if total < minFrameLen || headersLen > total-minFrameLen {
		return Message{}, fmt.Errorf("%w: total length %d, headers length %d", ErrMalformedFrame, total, headersLen)
	}

	frame := make([]byte, total)
	copy(frame, prelude)
	if _, err := io.ReadFull(d.r, frame[preludeLen:]); err != nil {
		return Message{}, fmt.Errorf("%w: read frame body: %v", ErrMalformedFrame, err)
	}
	return UnmarshalFrame(frame)
}

// DecodeAll reads frames until io.EOF.
func (d *Decoder) DecodeAll() ([]Message, error) {
	var messages []Message
	for {
		msg, err := d.Decode()
		if errors.Is(err, io.EOF) {
			return messages, nil
		}
		if err != nil {
			return messages, err
		}
		messages = append(messages, msg)
	}
}

func UnmarshalFrame(frame []byte) (Message, error) {
	if len(frame) < minFrameLen {
		return Message{}, fmt.Errorf("%w: frame too short: %d", ErrMalformedFrame, len(frame))
	}
	if crc32.ChecksumIEEE(frame[0:8]) != binary.BigEndian.Uint32(frame[8:12]) {
		return Message{}, ErrPreludeChecksum
	}
	total := int(binary.BigEndian.Uint32(frame[0:4]))
	headersLen := int(binary.BigEndian.Uint32(frame[4:8]))
	if total != len(frame) || headersLen > total-minFrameLen {
		return Message{}, fmt.Errorf("%w: total length %d, headers length %d, frame %d", ErrMalformedFrame, total, headersLen, len(frame))
	}
	end := total - messageCRCLen
	if crc32.ChecksumIEEE(frame[:end]) != binary.BigEndian.Uint32(frame[end:]) {
		return Message{}, ErrMessageChecksum
	}

	headers, err := decodeHeaders(frame[preludeLen : preludeLen+headersLen])
	if err != nil {
		return Message{}, err
	}
	payload := make([]byte, end-preludeLen-headersLen)
	copy(payload, frame[preludeLen+headersLen:end])
	return Message{Headers: headers, Payload: payload}, nil
}

func decodeHeaders(block []byte) ([]Header, error) {
	var headers []Header
	for off := 0; off < len(block); {
		nameLen := int(block[off])
		off++
		if nameLen == 0 || off+nameLen+3 > len(block) {
			return nil, fmt.Errorf("%w: truncated header name", ErrMalformedFrame)
		}
		name := string(block[off : off+nameLen])
		off += nameLen
		if block[off] != stringValueType {
			return nil, fmt.Errorf("%w: header %q has unsupported value type %d", ErrMalformedFrame, name, block[off])
		}
		off++
		valueLen := int(binary.BigEndian.Uint16(block[off : off+2]))
		off += 2
		if off+valueLen > len(block) {
			return nil, fmt.Errorf("%w: truncated header %q value", ErrMalformedFrame, name)
		}
		headers = append(headers, Header{Name: name, Value: string(block[off : off+valueLen])})
		off += valueLen
	}
	return headers, nil
}
