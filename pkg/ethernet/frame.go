// Package ethernet implements Ethernet II framing and the link-layer
// channels guard frames travel over: a raw AF_PACKET socket on Linux and an
// in-memory pipe for simulation.
package ethernet

import (
	"fmt"

	"github.com/therealutkarshpriyadarshi/guardlink/pkg/common"
)

// Ethernet frame format (IEEE 802.3):
// +-------------------+-------------------+----------+---------+-----+
// | Destination (6B)  | Source (6B)       | Type (2B)| Payload | FCS |
// +-------------------+-------------------+----------+---------+-----+
//
// Minimum frame size: 64 bytes (including FCS)
// Maximum frame size: 1518 bytes (including FCS)

const (
	// HeaderSize is the size of an Ethernet header (14 bytes).
	HeaderSize = 14

	// MinFrameSize is the minimum Ethernet frame size including FCS (64 bytes).
	MinFrameSize = 64

	// MaxFrameSize is the maximum Ethernet frame size including FCS (1518 bytes).
	MaxFrameSize = 1518

	// MinPayloadSize is the minimum payload size (46 bytes).
	MinPayloadSize = 46

	// MaxPayloadSize is the maximum payload size (1500 bytes, MTU).
	MaxPayloadSize = 1500

	// FCSSize is the size of the Frame Check Sequence (4 bytes).
	FCSSize = 4
)

// Frame represents an Ethernet II frame.
type Frame struct {
	Destination common.MACAddress
	Source      common.MACAddress
	EtherType   common.EtherType
	Payload     []byte
}

// Parse parses an Ethernet frame from raw bytes. The returned payload
// aliases data, including any minimum-size padding the sender added.
// The FCS is not expected; raw sockets strip it.
func Parse(data []byte) (*Frame, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooShort, len(data))
	}

	r := common.NewPacketReader(data)
	frame := &Frame{}
	frame.Destination, _ = r.ReadMAC()
	frame.Source, _ = r.ReadMAC()
	et, _ := r.ReadUint16()
	frame.EtherType = common.EtherType(et)
	frame.Payload = r.Rest()

	return frame, nil
}

// Serialize converts the frame to bytes for transmission, zero padding the
// payload up to MinPayloadSize. The FCS is left to the hardware.
func (f *Frame) Serialize() []byte {
	size := f.Size()
	w := common.NewPacketWriter(size)
	w.WriteMAC(f.Destination)
	w.WriteMAC(f.Source)
	w.WriteUint16(uint16(f.EtherType))
	w.WriteBytes(f.Payload)
	return append(w.Bytes(), make([]byte, size-w.Len())...)
}

// Size returns the total size of the frame in bytes, padding included.
func (f *Frame) Size() int {
	size := HeaderSize + len(f.Payload)
	if len(f.Payload) < MinPayloadSize {
		size = HeaderSize + MinPayloadSize
	}
	return size
}

// Validate reports whether the payload fits a standard MTU.
func (f *Frame) Validate() error {
	if len(f.Payload) > MaxPayloadSize {
		return fmt.Errorf("%w: payload %d bytes exceeds %d", ErrFrameTooLarge, len(f.Payload), MaxPayloadSize)
	}
	return nil
}

// String returns a human-readable representation of the frame.
func (f *Frame) String() string {
	return fmt.Sprintf("Ethernet{Dst=%s, Src=%s, Type=%s, PayloadLen=%d}",
		f.Destination, f.Source, f.EtherType, len(f.Payload))
}

// IsBroadcast returns true if this is a broadcast frame.
func (f *Frame) IsBroadcast() bool {
	return f.Destination.IsBroadcast()
}

// IsMulticast returns true if this is a multicast frame.
func (f *Frame) IsMulticast() bool {
	return f.Destination.IsMulticast()
}

// IsUnicast returns true if this is a unicast frame.
func (f *Frame) IsUnicast() bool {
	return !f.IsBroadcast() && !f.IsMulticast()
}

// NewFrame creates a new Ethernet frame.
func NewFrame(dst, src common.MACAddress, etherType common.EtherType, payload []byte) *Frame {
	return &Frame{
		Destination: dst,
		Source:      src,
		EtherType:   etherType,
		Payload:     payload,
	}
}
