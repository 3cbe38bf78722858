package traci

import (
	"encoding/binary"
	"errors"
	"math"
)

// errShort is returned when a message ends before a field is complete.
var errShort = errors.New("traci: truncated message")

// Reader decodes big-endian TraCI fields from a message body. A read past the
// end returns zero values and records errShort, reported by Err.
type Reader struct {
	data []byte
	off  int
	err  error
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.data) {
		r.err = errShort
		r.off = len(r.data)
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

// ReadUbyte reads 1 unsigned byte.
func (r *Reader) ReadUbyte() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// ReadInt reads 4 bytes as big-endian int32.
func (r *Reader) ReadInt() int32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return int32(binary.BigEndian.Uint32(b))
}

// ReadDouble reads an IEEE 754 big-endian float64.
func (r *Reader) ReadDouble() float64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b))
}

// ReadString reads an int32 length followed by that many bytes.
func (r *Reader) ReadString() string {
	n := r.ReadInt()
	return string(r.take(int(n)))
}

// ReadStringList reads an int32 count followed by that many strings.
func (r *Reader) ReadStringList() []string {
	n := int(r.ReadInt())
	if r.err != nil || n < 0 || n > r.Remaining()/4 {
		if r.err == nil {
			r.err = errShort
		}
		return nil
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, r.ReadString())
	}
	return out
}

// Skip advances n bytes.
func (r *Reader) Skip(n int) {
	r.take(n)
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.off
}

// Err returns errShort if any read ran past the end.
func (r *Reader) Err() error {
	return r.err
}

// Writer builds big-endian TraCI content.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 64)}
}

// WriteUbyte writes 1 byte.
func (w *Writer) WriteUbyte(v byte) {
	w.buf = append(w.buf, v)
}

// WriteInt writes 4 bytes big-endian.
func (w *Writer) WriteInt(v int32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(v))
}

// WriteDouble writes an IEEE 754 big-endian float64.
func (w *Writer) WriteDouble(v float64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, math.Float64bits(v))
}

// WriteString writes an int32 length and the raw bytes.
func (w *Writer) WriteString(s string) {
	w.WriteInt(int32(len(s)))
	w.buf = append(w.buf, s...)
}

// WriteStringList writes an int32 count and each string.
func (w *Writer) WriteStringList(list []string) {
	w.WriteInt(int32(len(list)))
	for _, s := range list {
		w.WriteString(s)
	}
}

// WriteCommand frames content as one command. Short commands use a one-byte
// length; longer ones a zero byte followed by an int32 length.
func (w *Writer) WriteCommand(id byte, content []byte) {
	if n := len(content) + 2; n <= 255 {
		w.WriteUbyte(byte(n))
	} else {
		w.WriteUbyte(0)
		w.WriteInt(int32(len(content) + 6))
	}
	w.WriteUbyte(id)
	w.buf = append(w.buf, content...)
}

// Bytes returns the written content.
func (w *Writer) Bytes() []byte {
	return w.buf
}
