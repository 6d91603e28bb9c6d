//go:build linux

package ethernet

import (
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"

	"github.com/therealutkarshpriyadarshi/guardlink/pkg/common"
)

// snapLen is the capture length returned by an accepting filter.
const snapLen = 0x40000

// Interface is a raw AF_PACKET socket bound to one network interface and
// one EtherType. Opening it requires CAP_NET_RAW.
type Interface struct {
	name       string
	fd         int
	macAddress common.MACAddress
	index      int
	etherType  common.EtherType
	rcvTimeout time.Duration // last SO_RCVTIMEO applied, reader goroutine only
	closed     atomic.Bool
}

type interfaceOptions struct {
	etherType   common.EtherType
	promiscuous bool
}

// InterfaceOption configures OpenInterface.
type InterfaceOption func(*interfaceOptions)

// WithEtherType selects the EtherType the socket is bound to.
// The default is common.EtherTypeGuardL2.
func WithEtherType(et common.EtherType) InterfaceOption {
	return func(o *interfaceOptions) { o.etherType = et }
}

// WithPromiscuous puts the interface in promiscuous mode and accepts frames
// of the bound EtherType regardless of destination address.
func WithPromiscuous() InterfaceOption {
	return func(o *interfaceOptions) { o.promiscuous = true }
}

// OpenInterface opens ifname (e.g. "eth0") for raw frame exchange.
//
// The socket is created with protocol 0 so that nothing is queued before the
// kernel filter is attached, then bound to the interface and EtherType.
func OpenInterface(ifname string, opts ...InterfaceOption) (*Interface, error) {
	o := interfaceOptions{etherType: common.EtherTypeGuardL2}
	for _, opt := range opts {
		opt(&o)
	}

	iface, err := net.InterfaceByName(ifname)
	if err != nil {
		return nil, fmt.Errorf("failed to get interface %s: %w", ifname, err)
	}

	mac, err := common.MACFromHardwareAddr(iface.HardwareAddr)
	if err != nil {
		return nil, fmt.Errorf("interface %s: %w", ifname, err)
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to create raw socket: %w (you may need root/sudo)", err)
	}

	var dst *common.MACAddress
	if !o.promiscuous {
		dst = &mac
	}
	if err := attachFilter(fd, o.etherType, dst); err != nil {
		unix.Close(fd)
		return nil, err
	}

	addr := unix.SockaddrLinklayer{
		Protocol: htons(uint16(o.etherType)),
		Ifindex:  iface.Index,
	}
	if err := unix.Bind(fd, &addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to bind socket to interface: %w", err)
	}

	if o.promiscuous {
		mreq := unix.PacketMreq{
			Ifindex: int32(iface.Index),
			Type:    unix.PACKET_MR_PROMISC,
		}
		if err := unix.SetsockoptPacketMreq(fd, unix.SOL_PACKET, unix.PACKET_ADD_MEMBERSHIP, &mreq); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("failed to enable promiscuous mode: %w", err)
		}
	}

	return &Interface{
		name:       ifname,
		fd:         fd,
		macAddress: mac,
		index:      iface.Index,
		etherType:  o.etherType,
	}, nil
}

// FilterProgram returns the classic BPF program that accepts frames of
// etherType, optionally only those addressed to dst.
func FilterProgram(etherType common.EtherType, dst *common.MACAddress) []bpf.Instruction {
	reject := bpf.RetConstant{Val: 0}
	accept := bpf.RetConstant{Val: snapLen}

	if dst == nil {
		return []bpf.Instruction{
			bpf.LoadAbsolute{Off: 12, Size: 2},
			bpf.JumpIf{Cond: bpf.JumpNotEqual, Val: uint32(etherType), SkipTrue: 1},
			accept,
			reject,
		}
	}

	hi := uint32(dst[0])<<24 | uint32(dst[1])<<16 | uint32(dst[2])<<8 | uint32(dst[3])
	lo := uint32(dst[4])<<8 | uint32(dst[5])
	return []bpf.Instruction{
		bpf.LoadAbsolute{Off: 12, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpNotEqual, Val: uint32(etherType), SkipTrue: 5},
		bpf.LoadAbsolute{Off: 0, Size: 4},
		bpf.JumpIf{Cond: bpf.JumpNotEqual, Val: hi, SkipTrue: 3},
		bpf.LoadAbsolute{Off: 4, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpNotEqual, Val: lo, SkipTrue: 1},
		accept,
		reject,
	}
}

func attachFilter(fd int, etherType common.EtherType, dst *common.MACAddress) error {
	raw, err := bpf.Assemble(FilterProgram(etherType, dst))
	if err != nil {
		return fmt.Errorf("failed to assemble socket filter: %w", err)
	}

	filter := make([]unix.SockFilter, len(raw))
	for i, ins := range raw {
		filter[i] = unix.SockFilter{Code: ins.Op, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
	}
	prog := unix.SockFprog{
		Len:    uint16(len(filter)),
		Filter: &filter[0],
	}
	if err := unix.SetsockoptSockFprog(fd, unix.SOL_SOCKET, unix.SO_ATTACH_FILTER, &prog); err != nil {
		return fmt.Errorf("failed to attach socket filter: %w", err)
	}
	return nil
}

// Close closes the network interface.
func (i *Interface) Close() error {
	if !i.closed.CompareAndSwap(false, true) {
		return nil
	}
	return unix.Close(i.fd)
}

// Name returns the interface name.
func (i *Interface) Name() string {
	return i.name
}

// MACAddress returns the hardware address of this interface.
func (i *Interface) MACAddress() common.MACAddress {
	return i.macAddress
}

// Index returns the interface index.
func (i *Interface) Index() int {
	return i.index
}

// ReadFrame reads one frame, waiting at most timeout.
func (i *Interface) ReadFrame(timeout time.Duration) (*Frame, error) {
	if i.closed.Load() {
		return nil, ErrClosed
	}

	if timeout != i.rcvTimeout {
		tv := unix.NsecToTimeval(max(timeout, 0).Nanoseconds())
		if err := unix.SetsockoptTimeval(i.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
			return nil, fmt.Errorf("failed to set read timeout: %w", err)
		}
		i.rcvTimeout = timeout
	}

	buf := common.FrameBufferPool.Get()
	defer common.FrameBufferPool.Put(buf)

	for {
		n, _, err := unix.Recvfrom(i.fd, buf, 0)
		switch {
		case err == nil:
			data := make([]byte, n)
			copy(data, buf[:n])
			frame, err := Parse(data)
			if err != nil {
				return nil, fmt.Errorf("failed to parse frame: %w", err)
			}
			return frame, nil
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EWOULDBLOCK):
			return nil, ErrTimeout
		case i.closed.Load():
			return nil, ErrClosed
		default:
			return nil, fmt.Errorf("failed to receive packet: %w", err)
		}
	}
}

// WriteFrame sends an Ethernet frame to the interface.
func (i *Interface) WriteFrame(frame *Frame) error {
	if i.closed.Load() {
		return ErrClosed
	}
	if err := frame.Validate(); err != nil {
		return err
	}

	addr := unix.SockaddrLinklayer{
		Protocol: htons(uint16(frame.EtherType)),
		Ifindex:  i.index,
		Halen:    6,
	}
	copy(addr.Addr[:], frame.Destination[:])

	if err := unix.Sendto(i.fd, frame.Serialize(), 0, &addr); err != nil {
		return fmt.Errorf("failed to send frame: %w", err)
	}
	return nil
}

// htons converts a 16-bit integer from host byte order to network byte order (big endian).
func htons(v uint16) uint16 {
	return (v << 8) | (v >> 8)
}
