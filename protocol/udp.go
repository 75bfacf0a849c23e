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
	"fmt"
	"net"
)

type UDP struct {
	SrcPort  uint16
	DstPort  uint16
	Checksum uint16
	Payload  []byte
}

// Marshal encodes the datagram with the checksum calculated over the pseudo
// header of src and dst.
func (r UDP) Marshal(src, dst net.IP) ([]byte, error) {
	s, d := src.To4(), dst.To4()
	if s == nil || d == nil {
		return nil, errors.New("invalid pseudo header address")
	}
	length := 8 + len(r.Payload)
	if length > 0xFFFF-20 {
		return nil, fmt.Errorf("too long UDP datagram: length=%v", length)
	}

	v := make([]byte, 8, length)
	binary.BigEndian.PutUint16(v[0:2], r.SrcPort)
	binary.BigEndian.PutUint16(v[2:4], r.DstPort)
	binary.BigEndian.PutUint16(v[4:6], uint16(length))
	v = append(v, r.Payload...)
	sum := checksum(pseudoHeader(s, d, IPProtocolUDP, length), v)
	// Zero means no checksum in UDP.
	if sum == 0 {
		sum = 0xFFFF
	}
	binary.BigEndian.PutUint16(v[6:8], sum)

	return v, nil
}

func (r *UDP) UnmarshalBinary(data []byte) error {
	if len(data) < 8 {
		return errors.New("invalid UDP datagram length")
	}
	length := int(binary.BigEndian.Uint16(data[4:6]))
	if length < 8 || len(data) < length {
		return errors.New("invalid UDP length field")
	}

	r.SrcPort = binary.BigEndian.Uint16(data[0:2])
	r.DstPort = binary.BigEndian.Uint16(data[2:4])
	r.Checksum = binary.BigEndian.Uint16(data[6:8])
	r.Payload = data[8:length]

	return nil
}
