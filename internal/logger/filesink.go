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

package logger

import (
	"io"
	"log"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/diode"
)

const (
	logFileMode  = 0o644
	logDropLimit = 100
)

// FileSink appends to a file through a diode, so a slow disk never blocks
// the caller. Messages beyond the buffer are dropped and counted.
type FileSink struct {
	wr   diode.Writer
	lock sync.RWMutex
}

var (
	_ zerolog.LevelWriter = (*FileSink)(nil)
	_ io.Closer           = (*FileSink)(nil)
)

func NewFileSink(file string) (*FileSink, error) {
	wr, err := open(file)
	if err != nil {
		return nil, err
	}

	return &FileSink{wr: wr}, nil
}

func (f *FileSink) Write(p []byte) (int, error) {
	f.lock.RLock()
	defer f.lock.RUnlock()

	return f.wr.Write(p)
}

func (f *FileSink) WriteLevel(_ zerolog.Level, p []byte) (int, error) {
	return f.Write(p)
}

func (f *FileSink) Close() error {
	f.lock.Lock()
	defer f.lock.Unlock()

	return f.wr.Close()
}

func open(file string) (diode.Writer, error) {
	f, err := os.OpenFile(file, os.O_WRONLY|os.O_CREATE|os.O_APPEND, logFileMode)
	if err != nil {
		return diode.Writer{}, err
	}

	return diode.NewWriter(f, logDropLimit, 0, func(missed int) {
		log.Printf("Dropped %d log messages", missed)
	}), nil
}
