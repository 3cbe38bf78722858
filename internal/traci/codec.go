package traci

import (
	"encoding/binary"
	"fmt"
	"io"
)

// maxMessage bounds the length of a single TraCI message.
const maxMessage = 64 << 20

// ReadMessage reads one TraCI message from r.
// Wire format: [4 bytes BE: total length including header][commands].
// Returns the command bytes without the length header.
func ReadMessage(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("read message header: %w", err)
	}

	totalLen := int(binary.BigEndian.Uint32(header[:]))
	bodyLen := totalLen - 4
	if bodyLen < 0 || bodyLen > maxMessage {
		return nil, fmt.Errorf("invalid message length: %d", totalLen)
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read message body (%d bytes): %w", bodyLen, err)
	}
	return body, nil
}

// WriteMessage writes one TraCI message to w.
// Wire format: [4 bytes BE: len(body)+4][body].
func WriteMessage(w io.Writer, body []byte) error {
	buf := make([]byte, 4, len(body)+4)
	binary.BigEndian.PutUint32(buf, uint32(len(body)+4))
	buf = append(buf, body...)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}
