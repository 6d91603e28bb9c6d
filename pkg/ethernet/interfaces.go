package ethernet

import (
	"fmt"
	"net"
	"strings"
)

// ListInterfaces returns the names of interfaces that are up, have an
// Ethernet hardware address and are not loopback.
func ListInterfaces() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(ifaces))
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if len(iface.HardwareAddr) != 6 {
			continue
		}
		names = append(names, iface.Name)
	}

	return names, nil
}

// GetInterfaceInfo returns detailed information about a network interface.
func GetInterfaceInfo(ifname string) (string, error) {
	iface, err := net.InterfaceByName(ifname)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Interface: %s\n", iface.Name)
	fmt.Fprintf(&sb, "  Index: %d\n", iface.Index)
	fmt.Fprintf(&sb, "  MTU: %d\n", iface.MTU)
	fmt.Fprintf(&sb, "  Hardware Addr: %s\n", iface.HardwareAddr)
	fmt.Fprintf(&sb, "  Flags: %s\n", iface.Flags)

	return sb.String(), nil
}
