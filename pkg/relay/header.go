// Package relay carries TCP payloads across the guard link: the edge side
// accepts connections and hands their bytes to a guard link sender, the
// guard side reassembles them and re-injects them towards the destination
// named in an address sub-header.
package relay

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/therealutkarshpriyadarshi/guardlink/pkg/common"
)

// Sub-header layout, repeated for source then destination:
//
//	+---------+--------------------+-----------+
//	| ver (1) | address (4 or 16)  | port (2)  |
//	+---------+--------------------+-----------+
const (
	versionIPv4 = 4
	versionIPv6 = 6
)

var (
	// ErrShortHeader is returned when the payload ends inside the sub-header.
	ErrShortHeader = errors.New("relay: short address header")

	// ErrAddressFamily is returned for an unknown IP version byte or an
	// invalid address.
	ErrAddressFamily = errors.New("relay: unsupported address family")
)

// Header names the original endpoints of a relayed connection.
type Header struct {
	Source      netip.AddrPort
	Destination netip.AddrPort
}

// Size returns the encoded length of h.
func (h Header) Size() int {
	return endpointSize(h.Source.Addr()) + endpointSize(h.Destination.Addr())
}

func endpointSize(a netip.Addr) int {
	if a.Unmap().Is4() {
		return 1 + 4 + 2
	}
	return 1 + 16 + 2
}

// AppendHeader appends the encoded header to b.
func AppendHeader(b []byte, h Header) ([]byte, error) {
	w := common.NewPacketWriter(h.Size())
	for _, ap := range []netip.AddrPort{h.Source, h.Destination} {
		if !ap.IsValid() {
			return b, fmt.Errorf("%w: %v", ErrAddressFamily, ap)
		}
		addr := ap.Addr().Unmap()
		if addr.Is4() {
			w.WriteByte(versionIPv4)
			a4 := addr.As4()
			w.WriteBytes(a4[:])
		} else {
			w.WriteByte(versionIPv6)
			a16 := addr.As16()
			w.WriteBytes(a16[:])
		}
		w.WriteUint16(ap.Port())
	}
	return append(b, w.Bytes()...), nil
}

// ParseHeader decodes the sub-header at the start of data and returns the
// remaining body.
func ParseHeader(data []byte) (Header, []byte, error) {
	r := common.NewPacketReader(data)

	src, err := readEndpoint(r)
	if err != nil {
		return Header{}, nil, fmt.Errorf("source: %w", err)
	}
	dst, err := readEndpoint(r)
	if err != nil {
		return Header{}, nil, fmt.Errorf("destination: %w", err)
	}
	return Header{Source: src, Destination: dst}, r.Rest(), nil
}

func readEndpoint(r *common.PacketReader) (netip.AddrPort, error) {
	ver, err := r.ReadByte()
	if err != nil {
		return netip.AddrPort{}, ErrShortHeader
	}

	var n int
	switch ver {
	case versionIPv4:
		n = 4
	case versionIPv6:
		n = 16
	default:
		return netip.AddrPort{}, fmt.Errorf("%w: version byte %d", ErrAddressFamily, ver)
	}

	raw, err := r.ReadBytes(n)
	if err != nil {
		return netip.AddrPort{}, ErrShortHeader
	}
	port, err := r.ReadUint16()
	if err != nil {
		return netip.AddrPort{}, ErrShortHeader
	}

	addr, _ := netip.AddrFromSlice(raw)
	return netip.AddrPortFrom(addr, port), nil
}

// Encapsulate builds a relay payload: the header in clear followed by body
// encoded through p.
func Encapsulate(h Header, p Pipeline, body []byte) ([]byte, error) {
	encoded, err := p.Encode(body)
	if err != nil {
		return nil, err
	}
	out, err := AppendHeader(make([]byte, 0, h.Size()+len(encoded)), h)
	if err != nil {
		return nil, err
	}
	return append(out, encoded...), nil
}

// Decapsulate parses the header of payload and decodes the body through p.
func Decapsulate(payload []byte, p Pipeline) (Header, []byte, error) {
	h, body, err := ParseHeader(payload)
	if err != nil {
		return Header{}, nil, err
	}
	plain, err := p.Decode(body)
	if err != nil {
		return Header{}, nil, err
	}
	return h, plain, nil
}
