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

package config

import (
	"bytes"
	"context"
	"fmt"
	"net/netip"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"srunctl/internal/netif"
	"srunctl/internal/transport"
)

var testIfaces = []netif.Interface{
	{Name: "lo", Addrs: []netip.Addr{netip.MustParseAddr("127.0.0.1")}},
	{Name: "eth0", Addrs: []netip.Addr{netip.MustParseAddr("10.0.0.5")}},
	{Name: "wg0", Addrs: []netip.Addr{netip.MustParseAddr("fd00::5")}},
}

func TestLoad(t *testing.T) {
	testcases := map[string]struct {
		in  string
		out func(*Config)
		err string
	}{
		"yaml": {
			in: `server: https://portal.example
verify_cert: skip
acid: 5
timeout: 3s
users:
  - username: u1
    password: p1
    iface: eth0
`,
			out: func(c *Config) {
				c.Server = "https://portal.example"
				c.VerifyCert = "skip"
				c.ACID = 5
				c.Timeout = 3 * time.Second
				c.Users = []User{{Username: "u1", Password: "p1", Iface: "eth0"}}
			},
		},
		"json": {
			in: `{
  "server": "http://10.0.0.1",
  "server_ip": "10.0.0.1",
  "users": [{"username": "u1", "password": "p1", "ip": "10.0.0.5"}],
  "strict_bind": true,
  "retry_count": 3,
  "retry_delay": 100
}`,
			out: func(c *Config) {
				c.ServerIP = "10.0.0.1"
				c.StrictBind = true
				c.RetryCount = 3
				c.RetryDelay = 100
				c.Users = []User{{Username: "u1", Password: "p1", IP: "10.0.0.5"}}
			},
		},
		"empty": {
			in:  "",
			out: func(*Config) {},
		},
		"invalid": {
			in:  "users: {",
			err: "parse config",
		},
	}

	for name, tc := range testcases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			fs := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fs, "/config.yaml", []byte(tc.in), 0o600))

			cfg, err := Load(fs, "/config.yaml", false)
			if tc.err != "" {
				assert.ErrorContains(t, err, tc.err)
				return
			}

			require.NoError(t, err)

			expected := Default()
			tc.out(expected)
			assert.Equal(t, expected, cfg)
		})
	}
}

func TestLoadMissing(t *testing.T) {
	fs := afero.NewMemMapFs()

	cfg, err := Load(fs, "/missing.yaml", true)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = Load(fs, "/missing.yaml", false)
	assert.ErrorContains(t, err, "reading config")
}

func TestCheck(t *testing.T) {
	base := func(users ...User) *Config {
		c := Default()
		c.Users = users

		return c
	}

	testcases := map[string]struct {
		in    *Config
		binds []netip.Addr
		ips   []string
		err   string
	}{
		"no users": {
			in:  base(),
			err: "no users configured",
		},
		"empty username": {
			in:  base(User{Password: "p"}),
			err: "username cannot be empty",
		},
		"empty password": {
			in:  base(User{Username: "u1"}),
			err: "password cannot be empty",
		},
		"iface": {
			in:    base(User{Username: "u1", Password: "p", Iface: "eth0"}),
			binds: []netip.Addr{netip.MustParseAddr("10.0.0.5")},
			ips:   []string{"10.0.0.5"},
		},
		"iface wins over ip": {
			in:    base(User{Username: "u1", Password: "p", Iface: "eth0", IP: "10.0.0.9"}),
			binds: []netip.Addr{netip.MustParseAddr("10.0.0.5")},
			ips:   []string{"10.0.0.5"},
		},
		"iface without IPv4": {
			in:  base(User{Username: "u1", Password: "p", Iface: "wg0"}),
			err: "no IPv4 address",
		},
		"local ip": {
			in:    base(User{Username: "u1", Password: "p", IP: "127.0.0.1"}),
			binds: []netip.Addr{netip.MustParseAddr("127.0.0.1")},
			ips:   []string{"127.0.0.1"},
		},
		"foreign ip": {
			in:  base(User{Username: "u1", Password: "p", IP: "192.168.1.1"}),
			err: "not found on any interface",
		},
		"IPv6 ip": {
			in:  base(User{Username: "u1", Password: "p", IP: "fd00::5"}),
			err: "IPv6 addresses not supported",
		},
		"no bind": {
			in:    base(User{Username: "u1", Password: "p"}),
			binds: []netip.Addr{{}},
			ips:   []string{""},
		},
		"strict bind": {
			in: func() *Config {
				c := base(User{Username: "u1", Password: "p"})
				c.StrictBind = true

				return c
			}(),
			err: "strict_bind",
		},
		"bad server": {
			in: func() *Config {
				c := base(User{Username: "u1", Password: "p"})
				c.Server = "not a url"

				return c
			}(),
			err: "invalid server value",
		},
		"ftp server": {
			in: func() *Config {
				c := base(User{Username: "u1", Password: "p"})
				c.Server = "ftp://10.0.0.1"

				return c
			}(),
			err: "http or https",
		},
		"IPv6 server_ip": {
			in: func() *Config {
				c := base(User{Username: "u1", Password: "p"})
				c.ServerIP = "fd00::1"

				return c
			}(),
			err: "invalid server_ip",
		},
		"zero retries": {
			in: func() *Config {
				c := base(User{Username: "u1", Password: "p"})
				c.RetryCount = 0

				return c
			}(),
			err: "retry_count",
		},
		"bad pin": {
			in: func() *Config {
				c := base(User{Username: "u1", Password: "p"})
				c.VerifyCert = "sha256:beef"

				return c
			}(),
			err: "verify_cert",
		},
		"dns server": {
			in: func() *Config {
				c := base(User{Username: "u1", Password: "p"})
				c.DNSServer = "dns.example"

				return c
			}(),
			err: "invalid dns_server",
		},
	}

	for name, tc := range testcases {
		t.Run(name, func(t *testing.T) {
			err := tc.in.Check(context.Background(), testIfaces)
			if tc.err != "" {
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.ErrorContains(t, err, tc.err)

				return
			}

			require.NoError(t, err)

			for i, user := range tc.in.Users {
				assert.Equal(t, tc.binds[i], user.BindAddr)
				assert.Equal(t, tc.ips[i], user.IP)
			}
		})
	}
}

func TestCheckWarnsOnIPMismatch(t *testing.T) {
	var buf bytes.Buffer

	ctx := zerolog.New(&buf).WithContext(context.Background())

	c := Default()
	c.Users = []User{{Username: "u1", Password: "p", Iface: "eth0", IP: "10.0.0.9"}}

	require.NoError(t, c.Check(ctx, testIfaces))
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), `"iface_ip":"10.0.0.5"`)
}

func TestOverrides(t *testing.T) {
	server := "https://portal.example"
	username := "cli"
	password := "secret"
	iface := "eth0"
	acid := uint32(7)
	doubleStack := true
	timeout := time.Second

	c := Default()
	c.Users = []User{{Username: "file", Password: "file"}}

	Overrides{
		Server:      &server,
		Username:    &username,
		Password:    &password,
		Iface:       &iface,
		ACID:        &acid,
		DoubleStack: &doubleStack,
		Timeout:     &timeout,
	}.Apply(c)

	expected := Default()
	expected.Server = server
	expected.ACID = 7
	expected.DoubleStack = true
	expected.Timeout = time.Second
	expected.Users = []User{{Username: "cli", Password: "secret", Iface: "eth0"}}

	assert.Equal(t, expected, c)

	// A username alone keeps the configured users.
	c = Default()
	c.Users = []User{{Username: "file", Password: "file"}}
	Overrides{Username: &username}.Apply(c)
	assert.Equal(t, []User{{Username: "file", Password: "file"}}, c.Users)
}

func TestGenerateExample(t *testing.T) {
	fs := afero.NewMemMapFs()

	cfg, err := GenerateExample(fs, "/etc/srunctl/config.yaml")
	require.NoError(t, err)

	loaded, err := Load(fs, "/etc/srunctl/config.yaml", false)
	require.NoError(t, err)

	expected := Default()
	expected.ServerIP = "10.0.0.1"
	expected.Users = []User{
		{Username: "your_username", Password: "your_password", IP: "your_ipv4_address"},
		{Username: "your_username", Password: "your_password", Iface: "your_interface_name"},
	}

	assert.Equal(t, expected, cfg)
	assert.Equal(t, expected, loaded)
}

func TestEndpoint(t *testing.T) {
	c := Default()
	c.Server = "https://portal.example:8443"
	c.ServerIP = "10.0.0.1"
	c.VerifyCert = "skip"

	ep, err := c.Endpoint()
	require.NoError(t, err)
	assert.Equal(t, transport.Endpoint{
		Scheme:   transport.SchemeHTTPS,
		Host:     "portal.example",
		Port:     8443,
		PinnedIP: netip.MustParseAddr("10.0.0.1"),
		Trust:    transport.TrustPolicy{Mode: transport.TrustSkip},
	}, ep)
}

func TestPasswordRedaction(t *testing.T) {
	user := User{Username: "u1", Password: "hunter2", IP: "10.0.0.5"}

	c := Default()
	c.Users = []User{user}

	var buf bytes.Buffer

	log := zerolog.New(&buf)
	log.Info().Object("user", user).Object("config", c).Send()

	dump, err := yaml.Marshal(c.Redacted())
	require.NoError(t, err)

	for name, s := range map[string]string{
		"String":   user.String(),
		"GoString": fmt.Sprintf("%#v", user),
		"Printf":   fmt.Sprintf("%v %+v", user, user),
		"zerolog":  buf.String(),
		"yaml":     string(dump),
	} {
		assert.NotContains(t, s, "hunter2", name)
	}

	assert.Contains(t, buf.String(), `"username":"u1"`)
	assert.Equal(t, "hunter2", c.Users[0].Password, "Redacted does not modify the original")
}
