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

// Package logger builds the root zerolog logger. Output goes to the console,
// to a file through a non-blocking diode writer, or to syslog.
package logger

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Prefix is the syslog tag.
const Prefix = "srunctl"

// Options select the sink and level of the root logger. File and Syslog are
// mutually exclusive; with neither set the console is used.
type Options struct {
	Level  string
	File   string
	Syslog bool
	// Out receives console output. Defaults to os.Stderr.
	Out     io.Writer
	NoColor bool
}

// Logger is the root logger together with the sink it owns.
type Logger struct {
	zerolog.Logger
	sink io.Writer
}

func New(opts Options) (*Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	if opts.Syslog && opts.File != "" {
		return nil, errors.New("log file and syslog are mutually exclusive")
	}

	var sink io.Writer

	switch {
	case opts.Syslog:
		sink, err = newSyslogSink(Prefix)
		if err != nil {
			return nil, fmt.Errorf("connecting to syslog: %w", err)
		}
	case opts.File != "":
		sink, err = NewFileSink(opts.File)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
	default:
		out := opts.Out
		if out == nil {
			out = os.Stderr
		}

		sink = zerolog.ConsoleWriter{
			Out:        out,
			NoColor:    opts.NoColor,
			TimeFormat: time.DateTime,
			PartsOrder: []string{
				zerolog.TimestampFieldName,
				zerolog.LevelFieldName,
				zerolog.CallerFieldName,
				zerolog.MessageFieldName,
			},
		}
	}

	return &Logger{
		Logger: zerolog.New(sink).Level(level).With().Timestamp().Logger(),
		sink:   sink,
	}, nil
}

// ParseLevel accepts zerolog level names. An empty level means info.
func ParseLevel(s string) (zerolog.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return zerolog.InfoLevel, nil
	}

	level, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q", s)
	}

	if level == zerolog.NoLevel {
		return zerolog.InfoLevel, nil
	}

	return level, nil
}

// Close flushes and closes the sink when it holds a resource.
func (l *Logger) Close() error {
	if c, ok := l.sink.(io.Closer); ok {
		return c.Close()
	}

	return nil
}
