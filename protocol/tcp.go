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
	"net"
)

// TCP flags.
const (
	TCPFlagFIN uint16 = 1 << iota
	TCPFlagSYN
	TCPFlagRST
	TCPFlagPSH
	TCPFlagACK
	TCPFlagURG
)

type TCP struct {
	SrcPort  uint16
	DstPort  uint16
	Sequence uint32
	Ack      uint32
	Flags    uint16
	Window   uint16
	Checksum uint16
	Urgent   uint16
	Payload  []byte
}

// Marshal encodes the segment with the checksum calculated over the pseudo
// header of src and dst.
func (r TCP) Marshal(src, dst net.IP) ([]byte, error) {
	s, d := src.To4(), dst.To4()
	if s == nil || d == nil {
		return nil, errors.New("invalid pseudo header address")
	}

	v := make([]byte, 20, 20+len(r.Payload))
	binary.BigEndian.PutUint16(v[0:2], r.SrcPort)
	binary.BigEndian.PutUint16(v[2:4], r.DstPort)
	binary.BigEndian.PutUint32(v[4:8], r.Sequence)
	binary.BigEndian.PutUint32(v[8:12], r.Ack)
	binary.BigEndian.PutUint16(v[12:14], 5<<12|r.Flags&0x1FF)
	binary.BigEndian.PutUint16(v[14:16], r.Window)
	binary.BigEndian.PutUint16(v[18:20], r.Urgent)
	v = append(v, r.Payload...)
	binary.BigEndian.PutUint16(v[16:18], checksum(pseudoHeader(s, d, IPProtocolTCP, len(v)), v))

	return v, nil
}

func (r *TCP) UnmarshalBinary(data []byte) error {
	if len(data) < 20 {
		return errors.New("invalid TCP segment length")
	}
	offset := int(data[12]>>4) * 4
	if offset < 20 || len(data) < offset {
		return errors.New("invalid TCP data offset")
	}

	r.SrcPort = binary.BigEndian.Uint16(data[0:2])
	r.DstPort = binary.BigEndian.Uint16(data[2:4])
	r.Sequence = binary.BigEndian.Uint32(data[4:8])
	r.Ack = binary.BigEndian.Uint32(data[8:12])
	r.Flags = binary.BigEndian.Uint16(data[12:14]) & 0x1FF
	r.Window = binary.BigEndian.Uint16(data[14:16])
	r.Checksum = binary.BigEndian.Uint16(data[16:18])
	r.Urgent = binary.BigEndian.Uint16(data[18:20])
	r.Payload = data[offset:]

	return nil
}
