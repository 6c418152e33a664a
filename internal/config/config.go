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
	"errors"
	"fmt"
	"io/fs"
	"net/netip"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"srunctl/internal/transport"
)

const redacted = "******"

// Config is the resolved configuration of a run. Files are YAML; JSON files
// load as well since JSON is a subset of YAML.
type Config struct {
	// Server is the gateway origin, for example http://10.0.0.1.
	Server string `yaml:"server"`
	// ServerIP pins the gateway address and skips name resolution.
	ServerIP string `yaml:"server_ip,omitempty"`
	// VerifyCert is skip, system, none, sha256:<hex>[,<hex>...] or the path
	// of a CA certificate.
	VerifyCert  string `yaml:"verify_cert"`
	Users       []User `yaml:"users"`
	StrictBind  bool   `yaml:"strict_bind"`
	Enc         string `yaml:"enc"`
	N           uint32 `yaml:"n"`
	Type        uint32 `yaml:"type"`
	ACID        uint32 `yaml:"acid"`
	DoubleStack bool   `yaml:"double_stack"`
	OS          string `yaml:"os"`
	OSName      string `yaml:"os_name"`
	RetryCount  uint32 `yaml:"retry_count"`
	// RetryDelay is in milliseconds.
	RetryDelay uint64 `yaml:"retry_delay"`
	// Timeout bounds connecting and every single request.
	Timeout time.Duration `yaml:"timeout"`
	// DNSServer, when set, is queried directly for the gateway address.
	DNSServer string `yaml:"dns_server,omitempty"`
	LogLevel  string `yaml:"log_level,omitempty"`
	// MetricsFile is a node-exporter textfile collector output path.
	MetricsFile string `yaml:"metrics_file,omitempty"`
}

// User is a single account to log in or out.
type User struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	IP       string `yaml:"ip,omitempty"`
	Iface    string `yaml:"iface,omitempty"`
	// BindAddr is resolved by Check, or learned from the gateway status.
	BindAddr netip.Addr `yaml:"-"`
}

func (u User) String() string {
	return fmt.Sprintf("User{Username: %q, Password: %q, IP: %q, Iface: %q}",
		u.Username, redacted, u.IP, u.Iface)
}

func (u User) GoString() string {
	return u.String()
}

// MarshalZerologObject never writes the password.
func (u User) MarshalZerologObject(e *zerolog.Event) {
	e.Str("username", u.Username)

	if u.IP != "" {
		e.Str("ip", u.IP)
	}

	if u.Iface != "" {
		e.Str("iface", u.Iface)
	}

	if u.BindAddr.IsValid() {
		e.Stringer("bind_addr", u.BindAddr)
	}
}

// Default returns a configuration with the protocol defaults and no users.
func Default() *Config {
	return &Config{
		Server:     "http://10.0.0.1",
		VerifyCert: "system",
		Enc:        "srun_bx1",
		N:          200,
		Type:       1,
		ACID:       1,
		OS:         "Linux",
		OSName:     "Linux",
		RetryCount: 10,
		RetryDelay: 500,
		Timeout:    10 * time.Second,
	}
}

// Load reads file over the defaults. A missing file is not fatal when
// optional is set, the defaults are returned instead.
func Load(fsys afero.Fs, file string, optional bool) (*Config, error) {
	cfg := Default()

	data, err := afero.ReadFile(fsys, file)
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}

		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// RetryInterval returns RetryDelay as a duration.
func (c *Config) RetryInterval() time.Duration {
	return time.Duration(c.RetryDelay) * time.Millisecond
}

// Endpoint returns the gateway endpoint described by the configuration.
func (c *Config) Endpoint() (transport.Endpoint, error) {
	ep, err := transport.ParseEndpoint(c.Server)
	if err != nil {
		return transport.Endpoint{}, err
	}

	if c.ServerIP != "" {
		ip, err := netip.ParseAddr(c.ServerIP)
		if err != nil {
			return transport.Endpoint{}, fmt.Errorf("invalid server_ip: %w", err)
		}

		ep.PinnedIP = ip
	}

	ep.Trust, err = transport.ParseTrustPolicy(c.VerifyCert)
	if err != nil {
		return transport.Endpoint{}, err
	}

	return ep, nil
}

// Redacted returns a copy safe to print, with every password masked.
func (c *Config) Redacted() *Config {
	out := *c
	out.Users = make([]User, len(c.Users))

	for i, u := range c.Users {
		u.Password = redacted
		out.Users[i] = u
	}

	return &out
}

// MarshalZerologObject logs the effective configuration without secrets.
func (c *Config) MarshalZerologObject(e *zerolog.Event) {
	e.Str("server", c.Server).
		Str("verify_cert", c.VerifyCert).
		Bool("strict_bind", c.StrictBind).
		Str("enc", c.Enc).
		Uint32("n", c.N).
		Uint32("type", c.Type).
		Uint32("acid", c.ACID).
		Bool("double_stack", c.DoubleStack).
		Str("os", c.OS).
		Str("os_name", c.OSName).
		Uint32("retry_count", c.RetryCount).
		Uint64("retry_delay", c.RetryDelay).
		Dur("timeout", c.Timeout)

	if c.ServerIP != "" {
		e.Str("server_ip", c.ServerIP)
	}

	if c.DNSServer != "" {
		e.Str("dns_server", c.DNSServer)
	}

	arr := zerolog.Arr()
	for _, u := range c.Users {
		arr.Object(u)
	}

	e.Array("users", arr)
}
