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

const (
	IPProtocolICMP uint8 = 1
	IPProtocolTCP  uint8 = 6
	IPProtocolUDP  uint8 = 17
)

type IPv4 struct {
	TOS uint8
	ID  uint16
	// Flags and fragment offset.
	DontFragment bool
	MoreFragment bool
	Offset       uint16
	TTL          uint8
	Protocol     uint8
	Checksum     uint16
	SrcIP        net.IP
	DstIP        net.IP
	// Header holds the raw header including options after unmarshaling.
	Header  []byte
	Payload []byte
}

func NewIPv4(src, dst net.IP, protocol uint8, payload []byte) *IPv4 {
	return &IPv4{
		DontFragment: true,
		TTL:          64,
		Protocol:     protocol,
		SrcIP:        src,
		DstIP:        dst,
		Payload:      payload,
	}
}

func (r IPv4) String() string {
	return fmt.Sprintf("IPv4(src=%v, dst=%v, proto=%v, ttl=%v, payload=%v bytes)", r.SrcIP, r.DstIP, r.Protocol, r.TTL, len(r.Payload))
}

// IsFragment returns true if this packet is not the first fragment, which
// does not have the L4 header.
func (r IPv4) IsFragment() bool {
	return r.Offset != 0
}

func (r IPv4) MarshalBinary() ([]byte, error) {
	src, dst := r.SrcIP.To4(), r.DstIP.To4()
	if src == nil || dst == nil {
		return nil, errors.New("invalid IPv4 address")
	}
	length := 20 + len(r.Payload)
	if length > 0xFFFF {
		return nil, fmt.Errorf("too long IPv4 packet: length=%v", length)
	}

	v := make([]byte, 20, length)
	v[0] = 4<<4 | 5 // Version 4 without options
	v[1] = r.TOS
	binary.BigEndian.PutUint16(v[2:4], uint16(length))
	binary.BigEndian.PutUint16(v[4:6], r.ID)
	flags := r.Offset & 0x1FFF
	if r.DontFragment {
		flags |= 0x4000
	}
	if r.MoreFragment {
		flags |= 0x2000
	}
	binary.BigEndian.PutUint16(v[6:8], flags)
	v[8] = r.TTL
	v[9] = r.Protocol
	copy(v[12:16], src)
	copy(v[16:20], dst)
	binary.BigEndian.PutUint16(v[10:12], checksum(v))

	return append(v, r.Payload...), nil
}

func (r *IPv4) UnmarshalBinary(data []byte) error {
	if len(data) < 20 {
		return errors.New("invalid IPv4 packet length")
	}
	if data[0]>>4 != 4 {
		return fmt.Errorf("unexpected IP version: %v", data[0]>>4)
	}
	headerLen := int(data[0]&0x0F) * 4
	total := int(binary.BigEndian.Uint16(data[2:4]))
	if headerLen < 20 || total < headerLen || len(data) < total {
		return errors.New("invalid IPv4 header length")
	}

	r.TOS = data[1]
	r.ID = binary.BigEndian.Uint16(data[4:6])
	flags := binary.BigEndian.Uint16(data[6:8])
	r.DontFragment = flags&0x4000 != 0
	r.MoreFragment = flags&0x2000 != 0
	r.Offset = flags & 0x1FFF
	r.TTL = data[8]
	r.Protocol = data[9]
	r.Checksum = binary.BigEndian.Uint16(data[10:12])
	r.SrcIP = net.IP(data[12:16])
	r.DstIP = net.IP(data[16:20])
	r.Header = data[:headerLen]
	// Ethernet padding after total length is not a part of the payload.
	r.Payload = data[headerLen:total]

	return nil
}
