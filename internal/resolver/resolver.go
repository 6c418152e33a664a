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

// Package resolver looks up the IPv4 addresses of the gateway host, either
// through the system resolver or by querying a configured DNS server
// directly. The latter is useful behind captive portals whose DHCP-provided
// resolver answers every query with the portal address.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/rs/zerolog"
)

const defaultTimeout = 5 * time.Second

var (
	ErrNoAnswer = errors.New("no answer received")
)

// ResolverClient sends a DNS query to a server.
type ResolverClient interface {
	ExchangeContext(context.Context, *dns.Msg, string) (*dns.Msg, time.Duration, error)
}

// System uses the host resolver configuration.
type System struct{}

func (System) LookupIPv4(ctx context.Context, host string) ([]netip.Addr, error) {
	addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip4", host)
	if err != nil {
		return nil, err
	}

	for i, a := range addrs {
		addrs[i] = a.Unmap()
	}

	return addrs, nil
}

// DNS resolves host names by sending A queries to a single server.
type DNS struct {
	client ResolverClient
	server string
}

type Option func(*DNS)

// WithTimeout sets the timeout of a single exchange.
func WithTimeout(timeout time.Duration) Option {
	return func(r *DNS) {
		if timeout == 0 {
			return
		}

		client, ok := r.client.(*dns.Client)
		if !ok { // can only set Timeout on *dns.Client
			return
		}

		client.Timeout = timeout
	}
}

// WithClient replaces the DNS client.
func WithClient(client ResolverClient) Option {
	return func(r *DNS) {
		r.client = client
	}
}

// NewDNS returns a resolver for server, given as "addr" or "addr:port".
func NewDNS(server string, options ...Option) (*DNS, error) {
	addr, err := parseServer(server)
	if err != nil {
		return nil, err
	}

	r := &DNS{
		client: &dns.Client{Timeout: defaultTimeout},
		server: addr.String(),
	}

	for _, opt := range options {
		opt(r)
	}

	return r, nil
}

func parseServer(server string) (netip.AddrPort, error) {
	server = strings.TrimSpace(server)

	if ap, err := netip.ParseAddrPort(server); err == nil {
		return ap, nil
	}

	addr, err := netip.ParseAddr(server)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("invalid DNS server %q", server)
	}

	return netip.AddrPortFrom(addr, 53), nil
}

// Server returns the address queries are sent to.
func (r *DNS) Server() string {
	return r.server
}

// LookupIPv4 returns the A records of host. CNAME chains are followed as far
// as the server includes them in the answer section.
func (r *DNS) LookupIPv4(ctx context.Context, host string) ([]netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		return []netip.Addr{addr.Unmap()}, nil
	}

	msg := &dns.Msg{}
	msg.SetQuestion(dns.Fqdn(host), dns.TypeA)
	msg.RecursionDesired = true

	resp, _, err := r.client.ExchangeContext(ctx, msg, r.server)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", r.server, err)
	}

	if resp == nil {
		return nil, ErrNoAnswer
	}

	if resp.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("query %s for %s: %s", r.server, host, dns.RcodeToString[resp.Rcode])
	}

	name := dns.Fqdn(host)

	var addrs []netip.Addr

	// Answers are walked in order so that a CNAME target is known before
	// the A records that belong to it.
	for _, rr := range resp.Answer {
		if !strings.EqualFold(rr.Header().Name, name) {
			continue
		}

		switch rec := rr.(type) {
		case *dns.CNAME:
			name = rec.Target
		case *dns.A:
			if addr, ok := netip.AddrFromSlice(rec.A.To4()); ok {
				addrs = append(addrs, addr)
			}
		}
	}

	if len(addrs) == 0 {
		return nil, ErrNoAnswer
	}

	zerolog.Ctx(ctx).Debug().Str("host", host).Str("server", r.server).
		Stringer("addr", addrs[0]).Msg("Resolved gateway")

	return addrs, nil
}
