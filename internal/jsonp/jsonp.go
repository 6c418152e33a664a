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

// Package jsonp deals with the callback wrapper that srun gateways put
// around every JSON answer: token(<json>).
package jsonp

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Prefix is prepended to the millisecond timestamp of every callback token.
const Prefix = "jsonp_"

var (
	// ErrShortBody is returned when the body cannot even hold token + "()".
	ErrShortBody = errors.New("jsonp body shorter than callback wrapper")
	// ErrMalformed is returned when the body is not wrapped in the callback.
	ErrMalformed = errors.New("jsonp body does not match callback wrapper")
)

// NewCallback returns a fresh callback token for the given instant.
func NewCallback(now time.Time) string {
	return Prefix + strconv.FormatInt(now.UnixMilli(), 10)
}

// Unwrap strips token( ... ) from body and returns the raw JSON payload.
// The returned slice aliases body.
func Unwrap(body []byte, token string) ([]byte, error) {
	body = bytes.TrimRight(body, " \t\r\n;")

	if len(body) < len(token)+2 {
		return nil, fmt.Errorf("%w: got %d bytes, need at least %d",
			ErrShortBody, len(body), len(token)+2)
	}

	if !bytes.HasPrefix(body, []byte(token)) || body[len(token)] != '(' ||
		body[len(body)-1] != ')' {
		return nil, ErrMalformed
	}

	return body[len(token)+1 : len(body)-1], nil
}

// Wrap builds the body a gateway would answer with.
func Wrap(token string, payload []byte) []byte {
	buf := make([]byte, 0, len(token)+len(payload)+2)
	buf = append(buf, token...)
	buf = append(buf, '(')
	buf = append(buf, payload...)

	return append(buf, ')')
}
