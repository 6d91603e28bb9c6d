//go:build linux

package ethernet

import (
	"testing"

	"golang.org/x/net/bpf"

	"github.com/therealutkarshpriyadarshi/guardlink/pkg/common"
)

func TestFilterProgram(t *testing.T) {
	own := common.MACAddress{0x02, 0x11, 0x22, 0x33, 0x44, 0x55}
	other := common.MACAddress{0x02, 0x11, 0x22, 0x33, 0x44, 0x56}

	tests := []struct {
		name       string
		dst        *common.MACAddress
		frame      *Frame
		wantAccept bool
	}{
		{
			name:       "guard frame to us",
			dst:        &own,
			frame:      NewFrame(own, other, common.EtherTypeGuardL2, []byte{1}),
			wantAccept: true,
		},
		{
			name:       "guard frame to another host",
			dst:        &own,
			frame:      NewFrame(other, own, common.EtherTypeGuardL2, []byte{1}),
			wantAccept: false,
		},
		{
			name:       "IPv4 frame to us",
			dst:        &own,
			frame:      NewFrame(own, other, common.EtherTypeIPv4, []byte{1}),
			wantAccept: false,
		},
		{
			name:       "promiscuous guard frame",
			dst:        nil,
			frame:      NewFrame(other, own, common.EtherTypeGuardL2, []byte{1}),
			wantAccept: true,
		},
		{
			name:       "promiscuous ARP frame",
			dst:        nil,
			frame:      NewFrame(common.BroadcastMAC, own, common.EtherTypeARP, []byte{1}),
			wantAccept: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm, err := bpf.NewVM(FilterProgram(common.EtherTypeGuardL2, tt.dst))
			if err != nil {
				t.Fatalf("bpf.NewVM() error = %v", err)
			}

			n, err := vm.Run(tt.frame.Serialize())
			if err != nil {
				t.Fatalf("vm.Run() error = %v", err)
			}
			if accepted := n > 0; accepted != tt.wantAccept {
				t.Errorf("filter accepted = %v, want %v", accepted, tt.wantAccept)
			}
		})
	}
}

func TestFilterProgramAssembles(t *testing.T) {
	own := common.MACAddress{0x02, 0, 0, 0, 0, 1}
	raw, err := bpf.Assemble(FilterProgram(common.EtherTypeGuardL2, &own))
	if err != nil {
		t.Fatalf("bpf.Assemble() error = %v", err)
	}
	if len(raw) != 8 {
		t.Errorf("len(program) = %d, want 8", len(raw))
	}
}

func TestHtons(t *testing.T) {
	if got := htons(0x88B5); got != 0xB588 {
		t.Errorf("htons(0x88B5) = 0x%04X, want 0xB588", got)
	}
}

func TestInterfaceImplementsLink(t *testing.T) {
	var _ Link = (*Interface)(nil)
}
