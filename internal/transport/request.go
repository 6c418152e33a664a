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
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Param is a single query parameter.
type Param struct {
	Key   string
	Value string
}

// Query is an ordered list of query parameters. Unlike url.Values it keeps
// insertion order, which some gateways depend on.
type Query []Param

// Add appends a parameter.
func (q *Query) Add(key, value string) {
	*q = append(*q, Param{Key: key, Value: value})
}

// Get returns the first value for key.
func (q Query) Get(key string) string {
	for _, p := range q {
		if p.Key == key {
			return p.Value
		}
	}

	return ""
}

// Encode form-urlencodes the parameters in order.
func (q Query) Encode() string {
	var sb strings.Builder

	for i, p := range q {
		if i > 0 {
			sb.WriteByte('&')
		}

		sb.WriteString(url.QueryEscape(p.Key))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(p.Value))
	}

	return sb.String()
}

func (c *Conn) buildRequest(method, path string, query Query) []byte {
	var sb strings.Builder

	sb.WriteString(method)
	sb.WriteByte(' ')
	sb.WriteString(path)

	if len(query) > 0 {
		sb.WriteByte('?')
		sb.WriteString(query.Encode())
	}

	sb.WriteString(" HTTP/1.1\r\nHost: ")
	sb.WriteString(c.endpoint.hostHeader())
	sb.WriteString("\r\nConnection: keep-alive\r\n\r\n")

	return []byte(sb.String())
}

// Request sends a single request without a body and blocks until the whole
// response was read. Cancelling ctx interrupts pending I/O.
func (c *Conn) Request(ctx context.Context, method, path string, query Query) (*Response, error) {
	if c.closed {
		return nil, ErrClosed
	}

	if c.conn == nil {
		// The gateway closed the previous exchange, reconnect.
		if err := c.redial(ctx); err != nil {
			return nil, err
		}
	}

	conn := c.conn

	if c.opts.Timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(c.opts.Timeout)); err != nil {
			return nil, err
		}
	} else if err := conn.SetDeadline(time.Time{}); err != nil {
		return nil, err
	}

	stop := context.AfterFunc(ctx, func() {
		//nolint:errcheck // unblocks pending I/O, error is reported by it
		conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	log := zerolog.Ctx(ctx)
	log.Trace().Str("method", method).Str("path", path).Msg("Sending request")

	if _, err := conn.Write(c.buildRequest(method, path, query)); err != nil {
		c.discard()
		return nil, contextErr(ctx, err)
	}

	resp, err := ReadResponse(conn)
	if err != nil {
		c.discard()
		return nil, contextErr(ctx, err)
	}

	log.Trace().Int("status", resp.StatusCode).Int("length", len(resp.Body)).
		Msg("Received response")

	if resp.closeRequested() {
		c.discard()
	}

	return resp, nil
}

func (c *Conn) redial(ctx context.Context) error {
	if c.remote.IsValid() {
		zerolog.Ctx(ctx).Debug().Msg("Reconnecting to gateway")
	}

	return c.dial(ctx)
}

// discard drops a connection that can no longer carry requests.
func (c *Conn) discard() {
	if c.conn != nil {
		//nolint:errcheck // connection is unusable anyway
		c.conn.Close()
		c.conn = nil
	}
}

func contextErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	return err
}
