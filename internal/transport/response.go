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
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	chunkSize = 8192
	// maxHeaders bounds the number of header lines accepted.
	maxHeaders = 64
	// maxHeaderBytes bounds the size of the header block.
	maxHeaderBytes = 64 * 1024
	// maxBodyBytes bounds the declared Content-Length.
	maxBodyBytes = 1 << 20
)

// Header is a single response header.
type Header struct {
	Name  string
	Value string
}

// Response is a parsed HTTP/1.x response.
type Response struct {
	// Version is the minor HTTP version, 0 or 1.
	Version    int
	StatusCode int
	Reason     string
	Headers    []Header
	Body       []byte
}

// Header returns the value of the first header called name, compared
// case-insensitively, and whether it was present.
func (r *Response) Header(name string) (string, bool) {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}

	return "", false
}

// ContentLength returns the declared body length. Missing or unparseable
// values are treated as zero.
func (r *Response) ContentLength() int64 {
	v, ok := r.Header("Content-Length")
	if !ok {
		return 0
	}

	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return 0
	}

	return n
}

// closeRequested reports whether the peer asked to close the connection.
func (r *Response) closeRequested() bool {
	v, ok := r.Header("Connection")
	if ok {
		return strings.EqualFold(strings.TrimSpace(v), "close")
	}

	return r.Version == 0
}

// ReadResponse reads one response from src. Data is accumulated in chunks
// and header parsing is reattempted after each chunk, so src may deliver
// the message in arbitrarily small pieces. Chunked transfer encoding is not
// supported and a missing Content-Length means an empty body. When src ends
// before Content-Length bytes of body were read, the partial body is
// returned without error.
func ReadResponse(src io.Reader) (*Response, error) {
	var buf []byte

	chunk := make([]byte, chunkSize)

	var (
		resp   *Response
		offset int
		eof    bool
	)

	for resp == nil {
		if eof {
			return nil, ErrIncompleteHeaders
		}

		n, err := src.Read(chunk)
		buf = append(buf, chunk[:n]...)

		if err != nil {
			if !errors.Is(err, io.EOF) {
				return nil, err
			}

			eof = true
		}

		resp, offset, err = parseHead(buf)
		if err != nil {
			return nil, err
		}

		if resp == nil && len(buf) > maxHeaderBytes {
			return nil, &ProtocolError{Msg: "header block too large"}
		}
	}

	size := resp.ContentLength()
	if size > maxBodyBytes {
		return nil, &ProtocolError{Msg: fmt.Sprintf("content length %d too large", size)}
	}

	want := offset + int(size)

	for len(buf) < want && !eof {
		n, err := src.Read(chunk)
		buf = append(buf, chunk[:n]...)

		if err != nil {
			if !errors.Is(err, io.EOF) {
				return nil, err
			}

			eof = true
		}
	}

	// Bytes past the declared length belong to no response we asked for.
	if len(buf) > want {
		buf = buf[:want]
	}

	resp.Body = buf[offset:]

	return resp, nil
}

// parseHead parses the status line and headers from buf. It returns a nil
// response when the header block is not complete yet, otherwise the
// response and the offset of the first body byte.
func parseHead(buf []byte) (*Response, int, error) {
	end, sepLen := headerEnd(buf)
	if end < 0 {
		return nil, 0, nil
	}

	lines := strings.Split(strings.ReplaceAll(string(buf[:end]), "\r\n", "\n"), "\n")

	resp, err := parseStatusLine(lines[0])
	if err != nil {
		return nil, 0, err
	}

	for _, line := range lines[1:] {
		if line == "" {
			continue
		}

		if len(resp.Headers) == maxHeaders {
			return nil, 0, &ProtocolError{Msg: fmt.Sprintf("more than %d headers", maxHeaders)}
		}

		name, value, ok := strings.Cut(line, ":")
		if !ok || name == "" || strings.ContainsAny(name, " \t") {
			return nil, 0, &ProtocolError{Msg: fmt.Sprintf("malformed header line %q", line)}
		}

		resp.Headers = append(resp.Headers, Header{Name: name, Value: strings.TrimSpace(value)})
	}

	return resp, end + sepLen, nil
}

// headerEnd finds the blank line terminating the header block.
func headerEnd(buf []byte) (int, int) {
	crlf := bytes.Index(buf, []byte("\r\n\r\n"))
	lf := bytes.Index(buf, []byte("\n\n"))

	switch {
	case crlf < 0 && lf < 0:
		return -1, 0
	case lf < 0 || (crlf >= 0 && crlf < lf):
		return crlf, 4
	default:
		return lf, 2
	}
}

func parseStatusLine(line string) (*Response, error) {
	proto, rest, ok := strings.Cut(line, " ")
	if !ok {
		return nil, &ProtocolError{Msg: fmt.Sprintf("malformed status line %q", line)}
	}

	var resp Response

	switch proto {
	case "HTTP/1.0":
		resp.Version = 0
	case "HTTP/1.1":
		resp.Version = 1
	default:
		return nil, &ProtocolError{Msg: fmt.Sprintf("unsupported protocol %q", proto)}
	}

	code, reason, _ := strings.Cut(rest, " ")
	if len(code) != 3 {
		return nil, &ProtocolError{Msg: fmt.Sprintf("malformed status code %q", code)}
	}

	status, err := strconv.Atoi(code)
	if err != nil || status < 100 {
		return nil, &ProtocolError{Msg: fmt.Sprintf("malformed status code %q", code)}
	}

	resp.StatusCode = status
	resp.Reason = reason

	return &resp, nil
}
