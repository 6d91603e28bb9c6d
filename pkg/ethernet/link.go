package ethernet

import (
	"errors"
	"time"

	"github.com/therealutkarshpriyadarshi/guardlink/pkg/common"
)

var (
	// ErrTimeout is returned by ReadFrame when no frame arrived in time.
	ErrTimeout = errors.New("ethernet: read timeout")

	// ErrClosed is returned by operations on a closed link.
	ErrClosed = errors.New("ethernet: link closed")

	// ErrFrameTooShort is returned when a frame lacks a full header.
	ErrFrameTooShort = errors.New("ethernet: frame too short")

	// ErrFrameTooLarge is returned when a payload exceeds the MTU.
	ErrFrameTooLarge = errors.New("ethernet: frame too large")
)

// Link is a bidirectional Ethernet frame channel bound to one hardware address.
//
// ReadFrame blocks for at most timeout and returns ErrTimeout when nothing
// arrived; a non-positive timeout blocks until a frame arrives or the link is
// closed. Implementations must allow one reader and concurrent writers.
type Link interface {
	ReadFrame(timeout time.Duration) (*Frame, error)
	WriteFrame(frame *Frame) error
	MACAddress() common.MACAddress
	Close() error
}
