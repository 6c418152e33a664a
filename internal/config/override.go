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

import "time"

// Overrides are command line values that take precedence over the file.
// A nil field leaves the configured value untouched.
type Overrides struct {
	Server      *string
	ServerIP    *string
	VerifyCert  *string
	Username    *string
	Password    *string
	IP          *string
	Iface       *string
	StrictBind  *bool
	Enc         *string
	N           *uint32
	Type        *uint32
	ACID        *uint32
	DoubleStack *bool
	OS          *string
	OSName      *string
	RetryCount  *uint32
	RetryDelay  *uint64
	Timeout     *time.Duration
	DNSServer   *string
	LogLevel    *string
	MetricsFile *string
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// Apply writes the overrides into c. A username together with a password
// replaces the configured users with that single user.
func (o Overrides) Apply(c *Config) {
	set(&c.Server, o.Server)
	set(&c.ServerIP, o.ServerIP)
	set(&c.VerifyCert, o.VerifyCert)
	set(&c.StrictBind, o.StrictBind)
	set(&c.Enc, o.Enc)
	set(&c.N, o.N)
	set(&c.Type, o.Type)
	set(&c.ACID, o.ACID)
	set(&c.DoubleStack, o.DoubleStack)
	set(&c.OS, o.OS)
	set(&c.OSName, o.OSName)
	set(&c.RetryCount, o.RetryCount)
	set(&c.RetryDelay, o.RetryDelay)
	set(&c.Timeout, o.Timeout)
	set(&c.DNSServer, o.DNSServer)
	set(&c.LogLevel, o.LogLevel)
	set(&c.MetricsFile, o.MetricsFile)

	if o.Username == nil || o.Password == nil {
		return
	}

	user := User{Username: *o.Username, Password: *o.Password}
	set(&user.IP, o.IP)
	set(&user.Iface, o.Iface)

	c.Users = []User{user}
}
