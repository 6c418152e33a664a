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
	"errors"
	"fmt"
)

var (
	// ErrTLSUnavailable is returned when an HTTPS endpoint is requested
	// without a usable certificate trust policy. There is no plaintext
	// fallback.
	ErrTLSUnavailable = errors.New("TLS support not available for HTTPS endpoint")
	// ErrIncompleteHeaders is returned when the peer closes the connection
	// before a complete header block was received.
	ErrIncompleteHeaders = errors.New("connection closed before headers complete")
	// ErrNotIPv4 is returned for IPv6 bind or server addresses.
	ErrNotIPv4 = errors.New("only IPv4 addresses are supported")
	// ErrClosed is returned when a request is issued on a closed connection.
	ErrClosed = errors.New("connection closed")
)

// ConnectionError is a failure to establish the connection to the gateway.
type ConnectionError struct {
	// Op is one of "resolve", "dial" or "tls".
	Op   string
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error: %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ProtocolError is a malformed HTTP response.
type ProtocolError struct {
	Msg string
}

func (e *ProtocolError) Error() string {
	return "HTTP protocol error: " + e.Msg
}
