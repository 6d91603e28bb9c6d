package guardl2

import (
	"context"
	"fmt"

	"github.com/therealutkarshpriyadarshi/guardlink/pkg/common"
	"github.com/therealutkarshpriyadarshi/guardlink/pkg/ethernet"
)

// SendReliable opens ifname, sends payload from src to dst and closes the
// interface. A zero src uses the interface's own address.
func SendReliable(ctx context.Context, ifname string, src, dst common.MACAddress, payload []byte, opts ...Option) error {
	iface, err := ethernet.OpenInterface(ifname)
	if err != nil {
		return fmt.Errorf("open interface: %w", err)
	}
	defer iface.Close()

	if src.IsZero() {
		src = iface.MACAddress()
	}
	return NewSender(iface, src, dst, opts...).Send(ctx, payload)
}

// ReceiveReliable opens ifname and waits for one transfer addressed to own.
// A zero own uses the interface's own address; any other address puts the
// interface in promiscuous mode.
//
// Each call opens a fresh socket, so late retransmissions of the previous
// transfer go unanswered. Long-running receivers should keep one Receiver.
func ReceiveReliable(ctx context.Context, ifname string, own common.MACAddress, opts ...Option) ([]byte, error) {
	iface, err := openFor(ifname, own)
	if err != nil {
		return nil, fmt.Errorf("open interface: %w", err)
	}
	defer iface.Close()

	if own.IsZero() {
		own = iface.MACAddress()
	}
	return NewReceiver(iface, own, opts...).Receive(ctx)
}

func openFor(ifname string, own common.MACAddress) (*ethernet.Interface, error) {
	iface, err := ethernet.OpenInterface(ifname)
	if err != nil {
		return nil, err
	}
	if own.IsZero() || own == iface.MACAddress() {
		return iface, nil
	}
	iface.Close()
	return ethernet.OpenInterface(ifname, ethernet.WithPromiscuous())
}
