package common

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// PacketReader walks a byte slice reading network byte order fields.
// Reads past the end return io.ErrUnexpectedEOF and leave the position unchanged.
type PacketReader struct {
	data []byte
	pos  int
}

// NewPacketReader creates a reader positioned at the start of data.
func NewPacketReader(data []byte) *PacketReader {
	return &PacketReader{data: data}
}

// Remaining returns the number of unread bytes.
func (r *PacketReader) Remaining() int {
	return len(r.data) - r.pos
}

// Rest returns the unread bytes without copying them.
func (r *PacketReader) Rest() []byte {
	return r.data[r.pos:]
}

func (r *PacketReader) take(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.data) {
		return nil, io.ErrUnexpectedEOF
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadByte reads a single byte.
func (r *PacketReader) ReadByte() (byte, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadBytes reads n bytes. The returned slice aliases the underlying data.
func (r *PacketReader) ReadBytes(n int) ([]byte, error) {
	return r.take(n)
}

// ReadUint16 reads a big endian 16-bit value.
func (r *PacketReader) ReadUint16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// ReadUint32 reads a big endian 32-bit value.
func (r *PacketReader) ReadUint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// ReadUint64 reads a big endian 64-bit value.
func (r *PacketReader) ReadUint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// ReadMAC reads a 6-byte MAC address.
func (r *PacketReader) ReadMAC() (MACAddress, error) {
	b, err := r.take(6)
	if err != nil {
		return MACAddress{}, err
	}
	var mac MACAddress
	copy(mac[:], b)
	return mac, nil
}

// PacketWriter appends network byte order fields to a growing buffer.
type PacketWriter struct {
	buf []byte
}

// NewPacketWriter creates a writer with room for sizeHint bytes.
func NewPacketWriter(sizeHint int) *PacketWriter {
	return &PacketWriter{buf: make([]byte, 0, sizeHint)}
}

// Bytes returns the written bytes.
func (w *PacketWriter) Bytes() []byte {
	return w.buf
}

// Len returns the number of bytes written so far.
func (w *PacketWriter) Len() int {
	return len(w.buf)
}

// WriteByte appends a single byte. It never fails.
func (w *PacketWriter) WriteByte(b byte) error {
	w.buf = append(w.buf, b)
	return nil
}

// WriteBytes appends data.
func (w *PacketWriter) WriteBytes(data []byte) {
	w.buf = append(w.buf, data...)
}

// WriteUint16 appends a big endian 16-bit value.
func (w *PacketWriter) WriteUint16(v uint16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
}

// WriteUint32 appends a big endian 32-bit value.
func (w *PacketWriter) WriteUint32(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

// WriteUint64 appends a big endian 64-bit value.
func (w *PacketWriter) WriteUint64(v uint64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, v)
}

// WriteMAC appends a 6-byte MAC address.
func (w *PacketWriter) WriteMAC(mac MACAddress) {
	w.buf = append(w.buf, mac[:]...)
}

// HexDump formats a byte slice as a hex dump with offsets and ASCII representation.
func HexDump(data []byte) string {
	var sb strings.Builder
	const bytesPerLine = 16

	for i := 0; i < len(data); i += bytesPerLine {
		sb.WriteString(fmt.Sprintf("%04x  ", i))

		lineEnd := min(i+bytesPerLine, len(data))
		line := data[i:lineEnd]
		hexStr := hex.EncodeToString(line)

		for j := 0; j < len(hexStr); j += 2 {
			sb.WriteString(hexStr[j : j+2])
			sb.WriteString(" ")
			if j == 14 {
				sb.WriteString(" ")
			}
		}

		for j := len(line); j < bytesPerLine; j++ {
			sb.WriteString("   ")
			if j == 7 {
				sb.WriteString(" ")
			}
		}

		sb.WriteString(" |")
		for _, b := range line {
			if b >= 32 && b <= 126 {
				sb.WriteByte(b)
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteString("|\n")
	}

	return sb.String()
}
