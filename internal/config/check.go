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
	"context"
	"fmt"
	"net/url"

	valid "github.com/asaskevich/govalidator"
	"github.com/rs/zerolog"

	"srunctl/internal/netif"
	"srunctl/internal/transport"
)

// ValidationError is a configuration that cannot be used.
type ValidationError struct {
	Msg string
	Err error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid configuration: %s: %v", e.Msg, e.Err)
	}

	return "invalid configuration: " + e.Msg
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// Check validates the configuration and resolves the bind address of every
// user against ifaces. A user with an interface gets that interface's IPv4
// address; a user with an IP literal gets it after checking it is local.
func (c *Config) Check(ctx context.Context, ifaces []netif.Interface) error {
	if err := c.checkGlobal(); err != nil {
		return err
	}

	log := zerolog.Ctx(ctx)

	for i := range c.Users {
		user := &c.Users[i]

		switch {
		case user.Iface != "":
			addr, err := netif.IPv4Of(ifaces, user.Iface)
			if err != nil {
				return &ValidationError{Msg: "user " + user.Username, Err: err}
			}

			if user.IP != "" && user.IP != addr.String() {
				log.Warn().Str("username", user.Username).Str("ip", user.IP).
					Str("iface", user.Iface).Stringer("iface_ip", addr).
					Msg("Configured IP does not match the interface, using interface IP")
			}

			user.IP = addr.String()
			user.BindAddr = addr
		case user.IP != "":
			addr, err := netif.ValidateLocalIPv4(ifaces, user.IP)
			if err != nil {
				return &ValidationError{Msg: "user " + user.Username, Err: err}
			}

			user.BindAddr = addr
		}

		if c.StrictBind && !user.BindAddr.IsValid() {
			return invalid("user %s: IP or interface required when strict_bind enabled", user.Username)
		}
	}

	return nil
}

func (c *Config) checkGlobal() error {
	if len(c.Users) == 0 {
		return invalid("no users configured")
	}

	for i, user := range c.Users {
		if user.Username == "" {
			return invalid("users[%d]: username cannot be empty", i)
		}

		if user.Password == "" {
			return invalid("user %s: password cannot be empty", user.Username)
		}
	}

	if !valid.IsURL(c.Server) {
		return invalid("invalid server value: %v", c.Server)
	}

	u, err := url.Parse(c.Server)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return invalid("server must be an http or https URL: %v", c.Server)
	}

	if c.ServerIP != "" && !valid.IsIPv4(c.ServerIP) {
		return invalid("invalid server_ip value: %v", c.ServerIP)
	}

	if c.DNSServer != "" && !valid.IsIP(c.DNSServer) && !valid.IsDialString(c.DNSServer) {
		return invalid("invalid dns_server value: %v", c.DNSServer)
	}

	if _, err := transport.ParseTrustPolicy(c.VerifyCert); err != nil {
		return &ValidationError{Msg: "verify_cert", Err: err}
	}

	if c.RetryCount < 1 {
		return invalid("retry_count must be at least 1")
	}

	if c.Timeout < 0 {
		return invalid("invalid timeout value: %v", c.Timeout)
	}

	if c.Enc == "" {
		return invalid("enc cannot be empty")
	}

	return nil
}
