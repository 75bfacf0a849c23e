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

package protocol

import (
	"encoding/binary"
	"errors"
)

const (
	ICMPTypeEchoReply       uint8 = 0
	ICMPTypeDestUnreachable uint8 = 3
	ICMPTypeEchoRequest     uint8 = 8

	// Communication administratively prohibited (RFC 1812).
	ICMPCodeAdminProhibited uint8 = 13
)

// ICMP is a generic ICMP message. Rest is the 4-byte field that follows the
// checksum, whose meaning depends on the type.
type ICMP struct {
	Type     uint8
	Code     uint8
	Checksum uint16
	Rest     uint32
	Payload  []byte
}

func NewICMPEchoRequest(id, seq uint16, payload []byte) *ICMP {
	return &ICMP{
		Type:    ICMPTypeEchoRequest,
		Rest:    uint32(id)<<16 | uint32(seq),
		Payload: payload,
	}
}

// NewICMPAdminProhibited returns a destination unreachable message that
// quotes the IP header and the first 8 bytes of the rejected packet.
func NewICMPAdminProhibited(rejected *IPv4) *ICMP {
	quote := make([]byte, 0, len(rejected.Header)+8)
	quote = append(quote, rejected.Header...)
	n := len(rejected.Payload)
	if n > 8 {
		n = 8
	}
	quote = append(quote, rejected.Payload[:n]...)

	return &ICMP{
		Type:    ICMPTypeDestUnreachable,
		Code:    ICMPCodeAdminProhibited,
		Payload: quote,
	}
}

func (r ICMP) EchoID() uint16 {
	return uint16(r.Rest >> 16)
}

func (r ICMP) EchoSequence() uint16 {
	return uint16(r.Rest)
}

func (r ICMP) MarshalBinary() ([]byte, error) {
	v := make([]byte, 8, 8+len(r.Payload))
	v[0] = r.Type
	v[1] = r.Code
	binary.BigEndian.PutUint32(v[4:8], r.Rest)
	v = append(v, r.Payload...)
	binary.BigEndian.PutUint16(v[2:4], checksum(v))

	return v, nil
}

func (r *ICMP) UnmarshalBinary(data []byte) error {
	if len(data) < 8 {
		return errors.New("invalid ICMP packet length")
	}

	r.Type = data[0]
	r.Code = data[1]
	r.Checksum = binary.BigEndian.Uint16(data[2:4])
	r.Rest = binary.BigEndian.Uint32(data[4:8])
	r.Payload = data[8:]

	return nil
}
