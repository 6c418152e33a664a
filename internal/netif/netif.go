// Copyright (c) 2026 Canonical Ltd
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package netif answers the questions about local network interfaces that
// binding a login to a specific uplink needs.
package netif

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"slices"
)

var (
	ErrNotIP            = errors.New("not an IP address")
	ErrNoSuchInterface  = errors.New("network interface not found or no IPv4 address")
	ErrAddressNotLocal  = errors.New("IP address not found on any interface")
	ErrIPv6NotSupported = errors.New("IPv6 addresses not supported")
)

// Interface is a named interface with its unicast addresses.
type Interface struct {
	Name  string
	Up    bool
	Addrs []netip.Addr
}

// Lister returns the local interfaces.
type Lister func() ([]Interface, error)

// System lists the interfaces of the host.
func System() ([]Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	result := make([]Interface, 0, len(ifaces))

	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			return nil, err
		}

		entry := Interface{Name: iface.Name, Up: iface.Flags&net.FlagUp != 0}

		for _, addr := range addrs {
			var ip net.IP

			switch addrCast := addr.(type) {
			case *net.IPAddr:
				ip = addrCast.IP
			case *net.IPNet:
				ip = addrCast.IP
			default:
				return nil, ErrNotIP
			}

			if a, ok := netip.AddrFromSlice(ip); ok {
				entry.Addrs = append(entry.Addrs, a.Unmap())
			}
		}

		result = append(result, entry)
	}

	return result, nil
}

// IPv4Of returns the first IPv4 address of the interface called name.
func IPv4Of(ifaces []Interface, name string) (netip.Addr, error) {
	for _, iface := range ifaces {
		if iface.Name != name {
			continue
		}

		for _, addr := range iface.Addrs {
			if addr.Is4() {
				return addr, nil
			}
		}
	}

	return netip.Addr{}, fmt.Errorf("%s: %w", name, ErrNoSuchInterface)
}

// ValidateLocalIPv4 parses s and checks that it is an IPv4 address assigned
// to one of ifaces.
func ValidateLocalIPv4(ifaces []Interface, s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("invalid IP address %q: %w", s, err)
	}

	if addr.Is6() && !addr.Is4In6() {
		return netip.Addr{}, fmt.Errorf("%s: %w", s, ErrIPv6NotSupported)
	}

	addr = addr.Unmap()

	for _, iface := range ifaces {
		if slices.Contains(iface.Addrs, addr) {
			return addr, nil
		}
	}

	return netip.Addr{}, fmt.Errorf("%s: %w", s, ErrAddressNotLocal)
}

// Entry is one interface address, for display.
type Entry struct {
	Name string
	Addr netip.Addr
}

// Entries flattens ifaces into IPv4 entries followed by IPv6 entries.
func Entries(ifaces []Interface) []Entry {
	var v4, v6 []Entry

	for _, iface := range ifaces {
		for _, addr := range iface.Addrs {
			if addr.Is4() {
				v4 = append(v4, Entry{Name: iface.Name, Addr: addr})
			} else {
				v6 = append(v6, Entry{Name: iface.Name, Addr: addr})
			}
		}
	}

	return append(v4, v6...)
}
