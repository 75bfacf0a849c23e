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

package openflow

import (
	"encoding/binary"
	"errors"
)

const (
	OF13_VERSION = 0x04

	// Size of ofp_header.
	HeaderLength = 8
)

var (
	ErrInvalidPacketLength   = errors.New("invalid packet length")
	ErrUnsupportedVersion    = errors.New("unsupported protocol version")
	ErrUnsupportedMessage    = errors.New("unsupported message type")
	ErrMissingEtherType      = errors.New("missing ethernet type")
	ErrUnsupportedEtherType  = errors.New("unsupported ethernet type")
	ErrMissingIPProtocol     = errors.New("missing IP protocol")
	ErrUnsupportedIPProtocol = errors.New("unsupported IP protocol")
	ErrInvalidIPAddress      = errors.New("invalid IP address")
	ErrInvalidMACAddress     = errors.New("invalid MAC address")
)

// Message is the common ofp_header shared by every OpenFlow message. Concrete
// messages embed it and put their body into the payload before marshaling.
type Message struct {
	version uint8
	msgType uint8
	xid     uint32
	payload []byte
}

func NewMessage(version, msgType uint8, xid uint32) Message {
	return Message{
		version: version,
		msgType: msgType,
		xid:     xid,
	}
}

func (r *Message) Version() uint8 {
	return r.version
}

func (r *Message) Type() uint8 {
	return r.msgType
}

func (r *Message) TransactionID() uint32 {
	return r.xid
}

func (r *Message) SetTransactionID(xid uint32) {
	r.xid = xid
}

func (r *Message) Payload() []byte {
	return r.payload
}

func (r *Message) SetPayload(payload []byte) {
	r.payload = payload
}

func (r *Message) MarshalBinary() ([]byte, error) {
	length := HeaderLength + len(r.payload)
	if length > 0xFFFF {
		return nil, ErrInvalidPacketLength
	}

	v := make([]byte, length)
	v[0] = r.version
	v[1] = r.msgType
	binary.BigEndian.PutUint16(v[2:4], uint16(length))
	binary.BigEndian.PutUint32(v[4:8], r.xid)
	copy(v[HeaderLength:], r.payload)

	return v, nil
}

func (r *Message) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderLength {
		return ErrInvalidPacketLength
	}
	length := int(binary.BigEndian.Uint16(data[2:4]))
	if length < HeaderLength || len(data) < length {
		return ErrInvalidPacketLength
	}

	r.version = data[0]
	r.msgType = data[1]
	r.xid = binary.BigEndian.Uint32(data[4:8])
	r.payload = nil
	if length > HeaderLength {
		r.payload = data[HeaderLength:length]
	}

	return nil
}
