// Package guardl2 implements a reliable, ordered, congestion-controlled
// transport carried directly in Ethernet frames of EtherType 0x88B5.
//
// A transfer is a three-phase exchange between a Sender and a Receiver:
//
//	START (seq 0, total size) -> DATA (seq 1..N) -> END (seq N+1)
//
// Every frame is acknowledged individually with an ACK echoing its sequence
// number and advertising the receiver's free reordering slots. The sender
// paces DATA with a congestion window (slow start and congestion avoidance)
// bounded by that advertised window, and retransmits on timeouts derived
// from smoothed round-trip samples.
package guardl2

import (
	"encoding/binary"
	"fmt"

	"github.com/therealutkarshpriyadarshi/guardlink/pkg/common"
	"github.com/therealutkarshpriyadarshi/guardlink/pkg/ethernet"
)

// Guard header layout, all fields big endian:
//
//	 0      1          5          9                 17         19         21         25
//	+------+----------+----------+-----------------+----------+----------+----------+
//	| type | session  | sequence | total size      | pay len  | rcv win  | crc32    |
//	+------+----------+----------+-----------------+----------+----------+----------+
const (
	// HeaderSize is the size of the guard header that follows the Ethernet header.
	HeaderSize = 25

	// MaxPayloadSize is the number of payload bytes carried by one DATA frame.
	MaxPayloadSize = 1400

	checksumOffset = 21
)

// FrameType identifies the role of a guard frame.
type FrameType uint8

// Frame types.
const (
	FrameStart FrameType = 0x01
	FrameData  FrameType = 0x02
	FrameAck   FrameType = 0x03
	FrameEnd   FrameType = 0x04
)

// String returns the string representation of the frame type.
func (t FrameType) String() string {
	switch t {
	case FrameStart:
		return "START"
	case FrameData:
		return "DATA"
	case FrameAck:
		return "ACK"
	case FrameEnd:
		return "END"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x)", uint8(t))
	}
}

// Header is the fixed guard header.
type Header struct {
	Type          FrameType
	SessionID     uint32
	Seq           uint32
	TotalSize     uint64 // meaningful on START
	PayloadLength uint16
	ReceiveWindow uint16 // meaningful on ACK
	Checksum      uint32
}

// Packet is a guard header plus its payload.
type Packet struct {
	Header
	Payload []byte
}

// Marshal encodes the packet, filling in PayloadLength and Checksum.
func (p *Packet) Marshal() ([]byte, error) {
	if len(p.Payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(p.Payload))
	}
	p.PayloadLength = uint16(len(p.Payload))

	w := common.NewPacketWriter(HeaderSize + len(p.Payload))
	w.WriteByte(byte(p.Type))
	w.WriteUint32(p.SessionID)
	w.WriteUint32(p.Seq)
	w.WriteUint64(p.TotalSize)
	w.WriteUint16(p.PayloadLength)
	w.WriteUint16(p.ReceiveWindow)
	w.WriteUint32(0)
	w.WriteBytes(p.Payload)

	data := w.Bytes()
	p.Checksum = common.CRC32(data)
	binary.BigEndian.PutUint32(data[checksumOffset:HeaderSize], p.Checksum)
	return data, nil
}

// ParsePacket decodes and verifies a guard packet. Bytes beyond the declared
// payload length, such as Ethernet padding, are ignored. The returned
// payload aliases data.
func ParsePacket(data []byte) (*Packet, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTruncated, len(data))
	}

	r := common.NewPacketReader(data)
	p := &Packet{}
	t, _ := r.ReadByte()
	p.Type = FrameType(t)
	p.SessionID, _ = r.ReadUint32()
	p.Seq, _ = r.ReadUint32()
	p.TotalSize, _ = r.ReadUint64()
	p.PayloadLength, _ = r.ReadUint16()
	p.ReceiveWindow, _ = r.ReadUint16()
	p.Checksum, _ = r.ReadUint32()

	payload, err := r.ReadBytes(int(p.PayloadLength))
	if err != nil {
		return nil, fmt.Errorf("%w: header declares %d payload bytes, %d present",
			ErrTruncated, p.PayloadLength, r.Remaining())
	}
	p.Payload = payload

	var header [HeaderSize]byte
	copy(header[:], data[:checksumOffset])
	if crc := common.CRC32Parts(header[:], payload); crc != p.Checksum {
		return nil, fmt.Errorf("%w: got 0x%08x, computed 0x%08x", ErrChecksumMismatch, p.Checksum, crc)
	}

	switch p.Type {
	case FrameStart, FrameData, FrameAck, FrameEnd:
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownFrameType, t)
	}
	return p, nil
}

// String returns a human-readable representation of the packet.
func (p *Packet) String() string {
	return fmt.Sprintf("GuardL2{Type=%s, Session=%08x, Seq=%d, Total=%d, Len=%d, Win=%d}",
		p.Type, p.SessionID, p.Seq, p.TotalSize, p.PayloadLength, p.ReceiveWindow)
}

// TotalPackets returns the number of DATA segments needed for size bytes.
func TotalPackets(size uint64) uint64 {
	return (size + MaxPayloadSize - 1) / MaxPayloadSize
}

// EncodeFrame wraps p in an Ethernet frame from src to dst.
func EncodeFrame(dst, src common.MACAddress, p *Packet) (*ethernet.Frame, error) {
	data, err := p.Marshal()
	if err != nil {
		return nil, err
	}
	return ethernet.NewFrame(dst, src, common.EtherTypeGuardL2, data), nil
}

// DecodeFrame extracts and verifies the guard packet carried by frame.
func DecodeFrame(frame *ethernet.Frame) (*Packet, error) {
	if frame.EtherType != common.EtherTypeGuardL2 {
		return nil, fmt.Errorf("%w: %s", ErrNotGuardFrame, frame.EtherType)
	}
	return ParsePacket(frame.Payload)
}
