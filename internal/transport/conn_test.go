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

package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"srunctl/internal/certutil"
	"srunctl/internal/resolver"
	certtest "srunctl/internal/testing/cert"
)

// gateway is a minimal in-process HTTP server speaking to raw sockets.
type gateway struct {
	ln       net.Listener
	mu       sync.Mutex
	requests []string
	accepts  int
	respond  func(requestLine string) string
}

func newGateway(t *testing.T, respond func(string) string) *gateway {
	t.Helper()

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)

	return startGateway(t, ln, respond)
}

func startGateway(t *testing.T, ln net.Listener, respond func(string) string) *gateway {
	t.Helper()

	g := &gateway{ln: ln, respond: respond}

	t.Cleanup(func() {
		//nolint:errcheck // test cleanup
		ln.Close()
	})

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}

			g.mu.Lock()
			g.accepts++
			g.mu.Unlock()

			go g.serve(conn)
		}
	}()

	return g
}

func (g *gateway) serve(conn net.Conn) {
	//nolint:errcheck // test server
	defer conn.Close()

	r := bufio.NewReader(conn)

	for {
		var head []string

		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}

			line = strings.TrimRight(line, "\r\n")
			if line == "" {
				break
			}

			head = append(head, line)
		}

		g.mu.Lock()
		g.requests = append(g.requests, strings.Join(head, "\n"))
		g.mu.Unlock()

		resp := g.respond(head[0])
		if resp == "" {
			continue
		}

		if _, err := conn.Write([]byte(resp)); err != nil {
			return
		}

		if strings.Contains(resp, "Connection: close") {
			return
		}
	}
}

func (g *gateway) port() uint16 {
	return uint16(g.ln.Addr().(*net.TCPAddr).Port)
}

func (g *gateway) seen() ([]string, int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	return append([]string(nil), g.requests...), g.accepts
}

func okResponse(body string) string {
	return "HTTP/1.1 200 OK\r\nContent-Length: " + strconv.Itoa(len(body)) + "\r\n\r\n" + body
}

type staticResolver struct {
	addrs []netip.Addr
	err   error
	hosts []string
}

func (r *staticResolver) LookupIPv4(_ context.Context, host string) ([]netip.Addr, error) {
	r.hosts = append(r.hosts, host)
	return r.addrs, r.err
}

func TestParseEndpoint(t *testing.T) {
	testcases := map[string]struct {
		in   string
		out  Endpoint
		err  string
		host string
	}{
		"http default": {
			in:   "http://10.0.0.1",
			out:  Endpoint{Scheme: SchemeHTTP, Host: "10.0.0.1", Port: 80},
			host: "10.0.0.1",
		},
		"https default": {
			in:   "HTTPS://portal.example",
			out:  Endpoint{Scheme: SchemeHTTPS, Host: "portal.example", Port: 443},
			host: "portal.example",
		},
		"explicit port": {
			in:   "https://portal.example:8443/",
			out:  Endpoint{Scheme: SchemeHTTPS, Host: "portal.example", Port: 8443},
			host: "portal.example:8443",
		},
		"bad scheme": {
			in:  "ftp://portal.example",
			err: "unsupported scheme",
		},
		"no host": {
			in:  "http://",
			err: "has no host",
		},
		"bad port": {
			in:  "http://portal.example:0",
			err: "invalid port",
		},
	}

	for name, tc := range testcases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ep, err := ParseEndpoint(tc.in)
			if tc.err != "" {
				assert.ErrorContains(t, err, tc.err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.out, ep)
			assert.Equal(t, tc.host, ep.hostHeader())
		})
	}
}

func TestQueryEncode(t *testing.T) {
	var q Query

	q.Add("callback", "jsonp_1")
	q.Add("username", "u 1")
	q.Add("info", "{SRBX1}a+b/c=")
	q.Add("action", "login")

	assert.Equal(t,
		"callback=jsonp_1&username=u+1&info=%7BSRBX1%7Da%2Bb%2Fc%3D&action=login",
		q.Encode())
	assert.Equal(t, "login", q.Get("action"))
	assert.Empty(t, q.Get("missing"))
}

func TestRequest(t *testing.T) {
	g := newGateway(t, func(string) string {
		return okResponse("jsonp_1({})")
	})

	ep := Endpoint{Scheme: SchemeHTTP, Host: "127.0.0.1", Port: g.port()}

	conn, err := Dial(context.Background(), ep, DialOptions{
		LocalAddr: netip.MustParseAddr("127.0.0.1"),
		Timeout:   5 * time.Second,
	})
	require.NoError(t, err)

	//nolint:errcheck // test cleanup
	defer conn.Close()

	q := Query{{Key: "callback", Value: "jsonp_1"}, {Key: "ip", Value: "10.0.0.5"}}

	for i := 0; i < 3; i++ {
		resp, err := conn.Request(context.Background(), "GET", "/cgi-bin/rad_user_info", q)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, "jsonp_1({})", string(resp.Body))
	}

	requests, accepts := g.seen()
	assert.Equal(t, 1, accepts, "keep-alive connection is reused")
	require.Len(t, requests, 3)

	host := "127.0.0.1:" + strconv.Itoa(int(g.port()))
	assert.Equal(t,
		"GET /cgi-bin/rad_user_info?callback=jsonp_1&ip=10.0.0.5 HTTP/1.1\nHost: "+host+"\nConnection: keep-alive",
		requests[0])
	assert.Equal(t, netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), g.port()), conn.remote)
}

func TestRequestReconnectsAfterClose(t *testing.T) {
	g := newGateway(t, func(string) string {
		return "HTTP/1.1 200 OK\r\nConnection: close\r\nContent-Length: 2\r\n\r\nok"
	})

	conn, err := Dial(context.Background(),
		Endpoint{Scheme: SchemeHTTP, Host: "127.0.0.1", Port: g.port()}, DialOptions{})
	require.NoError(t, err)

	//nolint:errcheck // test cleanup
	defer conn.Close()

	for i := 0; i < 2; i++ {
		resp, err := conn.Request(context.Background(), "GET", "/", nil)
		require.NoError(t, err)
		assert.Equal(t, "ok", string(resp.Body))
	}

	_, accepts := g.seen()
	assert.Equal(t, 2, accepts)
}

func TestRequestAfterClose(t *testing.T) {
	g := newGateway(t, func(string) string { return okResponse("") })

	conn, err := Dial(context.Background(),
		Endpoint{Scheme: SchemeHTTP, Host: "127.0.0.1", Port: g.port()}, DialOptions{})
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	_, err = conn.Request(context.Background(), "GET", "/", nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRequestCancel(t *testing.T) {
	// Never answers.
	g := newGateway(t, func(string) string { return "" })

	conn, err := Dial(context.Background(),
		Endpoint{Scheme: SchemeHTTP, Host: "127.0.0.1", Port: g.port()}, DialOptions{})
	require.NoError(t, err)

	//nolint:errcheck // test cleanup
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err = conn.Request(ctx, "GET", "/", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRequestTimeout(t *testing.T) {
	g := newGateway(t, func(string) string { return "" })

	conn, err := Dial(context.Background(),
		Endpoint{Scheme: SchemeHTTP, Host: "127.0.0.1", Port: g.port()},
		DialOptions{Timeout: 100 * time.Millisecond})
	require.NoError(t, err)

	//nolint:errcheck // test cleanup
	defer conn.Close()

	_, err = conn.Request(context.Background(), "GET", "/", nil)

	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())
}

func TestDialResolve(t *testing.T) {
	g := newGateway(t, func(string) string { return okResponse("") })

	t.Run("resolver", func(t *testing.T) {
		res := &staticResolver{addrs: []netip.Addr{netip.MustParseAddr("127.0.0.1")}}

		conn, err := Dial(context.Background(),
			Endpoint{Scheme: SchemeHTTP, Host: "portal.test", Port: g.port()},
			DialOptions{Resolver: res})
		require.NoError(t, err)
		require.NoError(t, conn.Close())
		assert.Equal(t, []string{"portal.test"}, res.hosts)
	})

	t.Run("system resolver by default", func(t *testing.T) {
		conn, err := Dial(context.Background(),
			Endpoint{Scheme: SchemeHTTP, Host: "localhost", Port: g.port()},
			DialOptions{})
		require.NoError(t, err)
		require.NoError(t, conn.Close())
		assert.Equal(t, resolver.System{}, conn.opts.Resolver)
		assert.Equal(t, netip.MustParseAddr("127.0.0.1"), conn.remote.Addr())
	})

	t.Run("pinned IP bypasses resolver", func(t *testing.T) {
		res := &staticResolver{err: errors.New("must not be called")}

		conn, err := Dial(context.Background(),
			Endpoint{
				Scheme:   SchemeHTTP,
				Host:     "portal.test",
				Port:     g.port(),
				PinnedIP: netip.MustParseAddr("127.0.0.1"),
			},
			DialOptions{Resolver: res})
		require.NoError(t, err)
		require.NoError(t, conn.Close())
		assert.Empty(t, res.hosts)
	})

	t.Run("resolver failure", func(t *testing.T) {
		boom := errors.New("NXDOMAIN")

		_, err := Dial(context.Background(),
			Endpoint{Scheme: SchemeHTTP, Host: "portal.test", Port: g.port()},
			DialOptions{Resolver: &staticResolver{err: boom}})

		var cerr *ConnectionError
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, "resolve", cerr.Op)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("no addresses", func(t *testing.T) {
		_, err := Dial(context.Background(),
			Endpoint{Scheme: SchemeHTTP, Host: "portal.test", Port: g.port()},
			DialOptions{Resolver: &staticResolver{}})
		assert.ErrorContains(t, err, "no IPv4 address")
	})
}

func TestDialRejectsIPv6(t *testing.T) {
	testcases := map[string]struct {
		ep   Endpoint
		opts DialOptions
	}{
		"pinned": {
			ep: Endpoint{Scheme: SchemeHTTP, Host: "portal.test", Port: 80,
				PinnedIP: netip.MustParseAddr("::1")},
		},
		"literal host": {
			ep: Endpoint{Scheme: SchemeHTTP, Host: "::1", Port: 80},
		},
		"bind address": {
			ep:   Endpoint{Scheme: SchemeHTTP, Host: "127.0.0.1", Port: 80},
			opts: DialOptions{LocalAddr: netip.MustParseAddr("fe80::1")},
		},
	}

	for name, tc := range testcases {
		t.Run(name, func(t *testing.T) {
			_, err := Dial(context.Background(), tc.ep, tc.opts)
			assert.ErrorIs(t, err, ErrNotIPv4)
		})
	}
}

func TestDialConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)

	port := uint16(ln.Addr().(*net.TCPAddr).Port)
	require.NoError(t, ln.Close())

	_, err = Dial(context.Background(),
		Endpoint{Scheme: SchemeHTTP, Host: "127.0.0.1", Port: port}, DialOptions{})

	var cerr *ConnectionError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "dial", cerr.Op)
}

func TestDialTLS(t *testing.T) {
	ca := certtest.GenerateTestCA(t)
	leaf := certtest.GenerateTestCertificate(t, certtest.WithDNSNames("portal.test"),
		certtest.WithCA(ca))
	other := certtest.GenerateTestCA(t)

	ln, err := tls.Listen("tcp4", "127.0.0.1:0", &tls.Config{
		Certificates: []tls.Certificate{leaf},
		MinVersion:   tls.VersionTLS12,
	})
	require.NoError(t, err)

	g := startGateway(t, ln, func(string) string { return okResponse("secure") })

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/ca.pem", certtest.PEM(ca), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/other.pem", certtest.PEM(other), 0o644))

	testcases := map[string]struct {
		trust   TrustPolicy
		wantErr error
		fails   bool
	}{
		"skip": {
			trust: TrustPolicy{Mode: TrustSkip},
		},
		"custom CA": {
			trust: TrustPolicy{Mode: TrustCustom, CAFile: "/ca.pem"},
		},
		"wrong custom CA": {
			trust: TrustPolicy{Mode: TrustCustom, CAFile: "/other.pem"},
			fails: true,
		},
		"missing CA file": {
			trust: TrustPolicy{Mode: TrustCustom, CAFile: "/missing.pem"},
			fails: true,
		},
		"system": {
			trust: TrustPolicy{Mode: TrustSystem},
			fails: true,
		},
		"pinned": {
			trust: TrustPolicy{Mode: TrustPinned,
				Fingerprints: []string{strings.ToUpper(certutil.Fingerprint(leaf.Certificate[0]))}},
		},
		"wrong pin": {
			trust: TrustPolicy{Mode: TrustPinned,
				Fingerprints: []string{certutil.Fingerprint(other.Certificate[0])}},
			fails: true,
		},
		"none": {
			trust:   TrustPolicy{Mode: TrustNone},
			wantErr: ErrTLSUnavailable,
		},
	}

	for name, tc := range testcases {
		t.Run(name, func(t *testing.T) {
			ep := Endpoint{
				Scheme:   SchemeHTTPS,
				Host:     "portal.test",
				Port:     g.port(),
				PinnedIP: netip.MustParseAddr("127.0.0.1"),
				Trust:    tc.trust,
			}

			conn, err := Dial(context.Background(), ep, DialOptions{FS: fs, Timeout: 5 * time.Second})

			switch {
			case tc.wantErr != nil:
				assert.ErrorIs(t, err, tc.wantErr)
				return
			case tc.fails:
				var cerr *ConnectionError
				require.ErrorAs(t, err, &cerr)
				assert.Equal(t, "tls", cerr.Op)

				return
			}

			require.NoError(t, err)

			//nolint:errcheck // test cleanup
			defer conn.Close()

			resp, err := conn.Request(context.Background(), "GET", "/", nil)
			require.NoError(t, err)
			assert.Equal(t, "secure", string(resp.Body))
		})
	}
}

func TestParseTrustPolicy(t *testing.T) {
	fp := strings.Repeat("ab", 32)

	testcases := map[string]struct {
		in  string
		out TrustPolicy
		err string
	}{
		"empty":  {in: "", out: TrustPolicy{Mode: TrustSystem}},
		"system": {in: "system", out: TrustPolicy{Mode: TrustSystem}},
		"skip":   {in: "skip", out: TrustPolicy{Mode: TrustSkip}},
		"none":   {in: "none", out: TrustPolicy{Mode: TrustNone}},
		"ca":     {in: "/etc/ssl/portal.pem", out: TrustPolicy{Mode: TrustCustom, CAFile: "/etc/ssl/portal.pem"}},
		"pinned": {
			in:  "sha256:" + fp + ", AB:" + strings.Repeat("CD:", 30) + "EF",
			out: TrustPolicy{Mode: TrustPinned, Fingerprints: []string{fp, "ab" + strings.Repeat("cd", 30) + "ef"}},
		},
		"short pin": {in: "sha256:abcd", err: "invalid SHA-256 fingerprint"},
	}

	for name, tc := range testcases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			p, err := ParseTrustPolicy(tc.in)
			if tc.err != "" {
				assert.ErrorContains(t, err, tc.err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.out, p)
		})
	}
}
