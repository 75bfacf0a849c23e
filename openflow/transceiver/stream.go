/*
 * Cherry - An OpenFlow Controller
 *
 * Copyright (C) 2015 Samjung Data Service, Inc. All rights reserved.
 * Kitae Kim <superkkt@sds.co.kr>
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation; either version 2 of the License, or
 * any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License along
 * with this program; if not, write to the Free Software Foundation, Inc.,
 * 51 Franklin Street, Fifth Floor, Boston, MA 02110-1301 USA.
 */

package transceiver

import (
	"bufio"
	"encoding/binary"
	"io"
	"net"
	"sync"
	"time"

	"github.com/kndrvt/acl-manager/openflow"
)

// Stream is a buffered OpenFlow message channel on top of a socket.
type Stream struct {
	conn io.ReadWriteCloser

	readMutex    sync.Mutex
	rd           *bufio.Reader
	readTimeout  time.Duration
	writeMutex   sync.Mutex
	writeTimeout time.Duration
}

type deadliner interface {
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
}

func NewStream(conn io.ReadWriteCloser, bufSize int) *Stream {
	if conn == nil {
		panic("nil connection")
	}

	return &Stream{
		conn: conn,
		rd:   bufio.NewReaderSize(conn, bufSize),
	}
}

func (r *Stream) RemoteAddr() string {
	v, ok := r.conn.(interface{ RemoteAddr() net.Addr })
	if !ok {
		return "unknown"
	}

	return v.RemoteAddr().String()
}

func (r *Stream) SetReadTimeout(t time.Duration) {
	r.readMutex.Lock()
	defer r.readMutex.Unlock()

	r.readTimeout = t
}

func (r *Stream) SetWriteTimeout(t time.Duration) {
	r.writeMutex.Lock()
	defer r.writeMutex.Unlock()

	r.writeTimeout = t
}

func deadlineOf(t time.Duration) time.Time {
	if t <= 0 {
		return time.Time{}
	}

	return time.Now().Add(t)
}

// ReadMessage reads exactly one OpenFlow message. A timeout that occurs
// before the header arrives leaves the stream intact so that the caller can
// retry.
func (r *Stream) ReadMessage() ([]byte, error) {
	r.readMutex.Lock()
	defer r.readMutex.Unlock()

	if d, ok := r.conn.(deadliner); ok {
		d.SetReadDeadline(deadlineOf(r.readTimeout))
	}

	// Peek does not consume the buffer on timeout.
	header, err := r.rd.Peek(openflow.HeaderLength)
	if err != nil {
		return nil, err
	}
	length := int(binary.BigEndian.Uint16(header[2:4]))
	if length < openflow.HeaderLength {
		return nil, openflow.ErrInvalidPacketLength
	}
	if _, err := r.rd.Peek(length); err != nil {
		if err == bufio.ErrBufferFull {
			return nil, openflow.ErrInvalidPacketLength
		}
		return nil, err
	}

	packet := make([]byte, length)
	if _, err := io.ReadFull(r.rd, packet); err != nil {
		return nil, err
	}

	return packet, nil
}

func (r *Stream) Write(p []byte) (n int, err error) {
	r.writeMutex.Lock()
	defer r.writeMutex.Unlock()

	if d, ok := r.conn.(deadliner); ok {
		d.SetWriteDeadline(deadlineOf(r.writeTimeout))
	}

	return r.conn.Write(p)
}

func (r *Stream) Close() error {
	return r.conn.Close()
}
