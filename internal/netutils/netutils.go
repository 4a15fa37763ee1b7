// Package netutils enumerates the bind addresses a device host advertises
// on: every up, non-loopback IPv4 interface address, in the order the
// operating system lists them. No interface is scored or preferred.
package netutils

import (
	"fmt"
	"net"
)

// BoundInterface is one interface this host will bind SSDP and HTTP
// sockets to.
type BoundInterface struct {
	Name string
	IP   net.IP
}

// DefaultInterfaces returns every non-loopback IPv4 interface address on
// the host, the default policy when no networkInterfaces config is given
// (spec.md §6).
func DefaultInterfaces() ([]BoundInterface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("netutils: listing interfaces: %w", err)
	}

	var out []BoundInterface
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ip := addrIP(addr)
			if ip == nil || ip.To4() == nil || ip.IsLoopback() {
				continue
			}
			out = append(out, BoundInterface{Name: iface.Name, IP: ip})
		}
	}
	return out, nil
}

// ResolveInterfaces maps a configured list of bind addresses (IP strings)
// to BoundInterfaces, validating each one actually exists on the host.
func ResolveInterfaces(addrs []string) ([]BoundInterface, error) {
	all, err := DefaultInterfaces()
	if err != nil {
		return nil, err
	}
	byIP := make(map[string]BoundInterface, len(all))
	for _, bi := range all {
		byIP[bi.IP.String()] = bi
	}

	out := make([]BoundInterface, 0, len(addrs))
	for _, addr := range addrs {
		ip := net.ParseIP(addr)
		if ip == nil {
			return nil, fmt.Errorf("netutils: %q is not a valid IP address", addr)
		}
		bi, ok := byIP[ip.String()]
		if !ok {
			return nil, fmt.Errorf("netutils: %q is not bound to any local interface", addr)
		}
		out = append(out, bi)
	}
	return out, nil
}

func addrIP(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.IPNet:
		return a.IP
	case *net.IPAddr:
		return a.IP
	default:
		return nil
	}
}
