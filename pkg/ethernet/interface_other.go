//go:build !linux

package ethernet

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/therealutkarshpriyadarshi/guardlink/pkg/common"
)

// ErrUnsupported is returned by OpenInterface on platforms without AF_PACKET.
var ErrUnsupported = errors.New("ethernet: raw sockets are not supported on " + runtime.GOOS)

// Interface is unavailable on this platform.
type Interface struct{}

// InterfaceOption configures OpenInterface.
type InterfaceOption func()

// WithEtherType is accepted for API compatibility.
func WithEtherType(common.EtherType) InterfaceOption { return func() {} }

// WithPromiscuous is accepted for API compatibility.
func WithPromiscuous() InterfaceOption { return func() {} }

// OpenInterface always fails on this platform.
func OpenInterface(ifname string, _ ...InterfaceOption) (*Interface, error) {
	return nil, fmt.Errorf("open %s: %w", ifname, ErrUnsupported)
}

func (i *Interface) ReadFrame(time.Duration) (*Frame, error) { return nil, ErrUnsupported }
func (i *Interface) WriteFrame(*Frame) error                  { return ErrUnsupported }
func (i *Interface) MACAddress() common.MACAddress            { return common.MACAddress{} }
func (i *Interface) Name() string                             { return "" }
func (i *Interface) Close() error                             { return nil }
