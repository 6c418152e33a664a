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

// Package transport is a deliberately small HTTP/1.1 client. It owns a
// single TCP (optionally TLS) connection to the gateway, optionally bound to
// a local IPv4 address, and issues one GET at a time on it.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"srunctl/internal/resolver"
)

// Scheme of the gateway origin.
type Scheme string

const (
	SchemeHTTP  Scheme = "http"
	SchemeHTTPS Scheme = "https"
)

// Endpoint describes the gateway origin.
type Endpoint struct {
	Scheme Scheme
	Host   string
	Port   uint16
	// PinnedIP bypasses name resolution when valid.
	PinnedIP netip.Addr
	Trust    TrustPolicy
}

// ParseEndpoint builds an Endpoint from an origin such as
// "https://portal.example:8443".
func ParseEndpoint(origin string) (Endpoint, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid server URL: %w", err)
	}

	ep := Endpoint{Scheme: Scheme(strings.ToLower(u.Scheme)), Host: u.Hostname()}

	switch ep.Scheme {
	case SchemeHTTP:
		ep.Port = 80
	case SchemeHTTPS:
		ep.Port = 443
	default:
		return Endpoint{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	if ep.Host == "" {
		return Endpoint{}, fmt.Errorf("server URL %q has no host", origin)
	}

	if p := u.Port(); p != "" {
		port, err := strconv.ParseUint(p, 10, 16)
		if err != nil || port == 0 {
			return Endpoint{}, fmt.Errorf("invalid port %q", p)
		}

		ep.Port = uint16(port)
	}

	return ep, nil
}

// hostHeader omits the port when it is the scheme default.
func (e Endpoint) hostHeader() string {
	if (e.Scheme == SchemeHTTP && e.Port == 80) || (e.Scheme == SchemeHTTPS && e.Port == 443) {
		return e.Host
	}

	return net.JoinHostPort(e.Host, strconv.Itoa(int(e.Port)))
}

// Resolver looks up IPv4 addresses of a host.
type Resolver interface {
	LookupIPv4(ctx context.Context, host string) ([]netip.Addr, error)
}

// DialOptions tune Dial.
type DialOptions struct {
	// LocalAddr is the local IPv4 address to bind to, if valid.
	LocalAddr netip.Addr
	// Resolver defaults to the system resolver.
	Resolver Resolver
	// Timeout bounds the connect and every request. Zero means no timeout.
	Timeout time.Duration
	// FS is used to read a custom CA file. Defaults to the OS filesystem.
	FS afero.Fs
}

// Conn is a connection to the gateway.
type Conn struct {
	endpoint Endpoint
	opts     DialOptions
	conn     net.Conn
	remote   netip.AddrPort
	closed   bool
}

// Dial resolves, binds, connects and (for HTTPS) performs the TLS handshake.
func Dial(ctx context.Context, ep Endpoint, opts DialOptions) (*Conn, error) {
	if opts.Resolver == nil {
		opts.Resolver = resolver.System{}
	}

	if opts.FS == nil {
		opts.FS = afero.NewOsFs()
	}

	c := &Conn{endpoint: ep, opts: opts}

	if err := c.dial(ctx); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Conn) dial(ctx context.Context) error {
	ep := c.endpoint

	var tlsConfig *tls.Config

	if ep.Scheme == SchemeHTTPS {
		if ep.Trust.Mode == TrustNone {
			return ErrTLSUnavailable
		}

		cfg, err := ep.Trust.TLSConfig(c.opts.FS, ep.Host)
		if err != nil {
			return &ConnectionError{Op: "tls", Addr: ep.Host, Err: err}
		}

		tlsConfig = cfg
	}

	addr, err := c.resolve(ctx)
	if err != nil {
		return err
	}

	remote := netip.AddrPortFrom(addr, ep.Port)

	dialer := net.Dialer{
		Timeout: c.opts.Timeout,
		Control: reuseAddr,
	}

	if c.opts.LocalAddr.IsValid() {
		if !c.opts.LocalAddr.Unmap().Is4() {
			return &ConnectionError{Op: "dial", Addr: c.opts.LocalAddr.String(), Err: ErrNotIPv4}
		}

		dialer.LocalAddr = net.TCPAddrFromAddrPort(netip.AddrPortFrom(c.opts.LocalAddr.Unmap(), 0))
	}

	raw, err := dialer.DialContext(ctx, "tcp4", remote.String())
	if err != nil {
		return &ConnectionError{Op: "dial", Addr: remote.String(), Err: err}
	}

	log := zerolog.Ctx(ctx)
	log.Debug().Str("remote", remote.String()).Str("local", raw.LocalAddr().String()).
		Msg("Connected to gateway")

	conn := raw

	if tlsConfig != nil {
		tlsConn := tls.Client(raw, tlsConfig)

		hctx := ctx
		if c.opts.Timeout > 0 {
			var cancel context.CancelFunc

			hctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
			defer cancel()
		}

		if err := tlsConn.HandshakeContext(hctx); err != nil {
			//nolint:errcheck // handshake error is more relevant
			raw.Close()

			return &ConnectionError{Op: "tls", Addr: remote.String(), Err: err}
		}

		log.Debug().Str("trust", ep.Trust.String()).
			Uint16("version", tlsConn.ConnectionState().Version).
			Msg("TLS handshake complete")

		conn = tlsConn
	}

	c.conn = conn
	c.remote = remote

	return nil
}

func (c *Conn) resolve(ctx context.Context) (netip.Addr, error) {
	ep := c.endpoint

	if ep.PinnedIP.IsValid() {
		if !ep.PinnedIP.Unmap().Is4() {
			return netip.Addr{}, &ConnectionError{Op: "resolve", Addr: ep.PinnedIP.String(), Err: ErrNotIPv4}
		}

		return ep.PinnedIP.Unmap(), nil
	}

	if addr, err := netip.ParseAddr(ep.Host); err == nil {
		if !addr.Unmap().Is4() {
			return netip.Addr{}, &ConnectionError{Op: "resolve", Addr: ep.Host, Err: ErrNotIPv4}
		}

		return addr.Unmap(), nil
	}

	addrs, err := c.opts.Resolver.LookupIPv4(ctx, ep.Host)
	if err != nil {
		return netip.Addr{}, &ConnectionError{Op: "resolve", Addr: ep.Host, Err: err}
	}

	if len(addrs) == 0 {
		return netip.Addr{}, &ConnectionError{Op: "resolve", Addr: ep.Host,
			Err: errors.New("no IPv4 address found")}
	}

	return addrs[0].Unmap(), nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	c.closed = true

	if c.conn == nil {
		return nil
	}

	err := c.conn.Close()
	c.conn = nil

	return err
}
