package eventstream

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/crc32"
)

type Encoder struct {
	w io.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes msg as a single frame with one Write call.
func (e *Encoder) Encode(msg Message) error {
	frame, err := MarshalFrame(msg)
	if err != nil {
		return err
	}
	if _, err := e.w.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// EncodeRecords writes the Records frame followed by the terminal End frame.
func (e *Encoder) EncodeRecords(payload []byte, contentType string) error {
	if err := e.Encode(RecordsEvent(payload, contentType)); err != nil {
		return err
	}
	return e.Encode(EndEvent())
}

func MarshalFrame(msg Message) ([]byte, error) {
	headersLen := 0
	for _, header := range msg.Headers {
		if len(header.Name) == 0 || len(header.Name) > 255 {
			return nil, fmt.Errorf("%w: header name length %d", ErrMalformedFrame, len(header.Name))
		}
		if len(header.Value) > 0xFFFF {
			return nil, fmt.Errorf("%w: header %q value length %d", ErrMalformedFrame, header.Name, len(header.Value))
		}
		headersLen += 1 + len(header.Name) + 1 + 2 + len(header.Value)
	}
	total := preludeLen + headersLen + len(msg.Payload) + messageCRCLen
	if headersLen > maxHeadersLen {
		return nil, fmt.Errorf("%w: headers length %d exceeds limit", ErrMalformedFrame, headersLen)
	}
	if uint64(total) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: frame length %d does not fit the length field", ErrMalformedFrame, total)
	}

	buf := make([]byte, total)
	binary.BigEndian.PutUint32(buf[0:4], uint32(total))
	binary.BigEndian.PutUint32(buf[4:8], uint32(headersLen))
	binary.BigEndian.PutUint32(buf[8:12], crc32.ChecksumIEEE(buf[0:8]))

	off := preludeLen
	for _, header := range msg.Headers {
		buf[off] = byte(len(header.Name))
		off++
		off += copy(buf[off:], header.Name)
		buf[off] = stringValueType
		off++
		binary.BigEndian.PutUint16(buf[off:off+2], uint16(len(header.Value)))
		off += 2
		off += copy(buf[off:], header.Value)
	}
	off += copy(buf[off:], msg.Payload)
	binary.BigEndian.PutUint32(buf[off:], crc32.ChecksumIEEE(buf[:off]))
	return buf, nil
}
