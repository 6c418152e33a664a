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

//go:build !windows && !plan9

package logger

import (
	"io"
	"log/syslog"

	"github.com/rs/zerolog"
)

type syslogSink struct {
	zerolog.LevelWriter
	w *syslog.Writer
}

func (s syslogSink) Close() error {
	return s.w.Close()
}

func newSyslogSink(tag string) (io.Writer, error) {
	w, err := syslog.New(syslog.LOG_DAEMON|syslog.LOG_INFO, tag)
	if err != nil {
		return nil, err
	}

	return syslogSink{LevelWriter: zerolog.SyslogLevelWriter(w), w: w}, nil
}
