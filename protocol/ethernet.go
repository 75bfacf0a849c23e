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
	EtherTypeIPv4 uint16 = 0x0800
	EtherTypeARP  uint16 = 0x0806
	EtherTypeVLAN uint16 = 0x8100
	EtherTypeLLDP uint16 = 0x88CC
)

var (
	ErrShortFrame = errors.New("too short ethernet frame")
)

type Ethernet struct {
	DstMAC net.HardwareAddr
	SrcMAC net.HardwareAddr
	// VLAN ID is zero for an untagged frame.
	VLANID  uint16
	Type    uint16
	Payload []byte
}

func (r Ethernet) String() string {
	return fmt.Sprintf("Ethernet(src=%v, dst=%v, type=0x%04x, vlan=%v, payload=%v bytes)", r.SrcMAC, r.DstMAC, r.Type, r.VLANID, len(r.Payload))
}

func (r Ethernet) MarshalBinary() ([]byte, error) {
	if len(r.SrcMAC) != 6 || len(r.DstMAC) != 6 {
		return nil, errors.New("invalid MAC address")
	}

	header := 14
	if r.VLANID != 0 {
		header += 4
	}
	v := make([]byte, header, header+len(r.Payload))
	copy(v[0:6], r.DstMAC)
	copy(v[6:12], r.SrcMAC)
	if r.VLANID != 0 {
		binary.BigEndian.PutUint16(v[12:14], EtherTypeVLAN)
		binary.BigEndian.PutUint16(v[14:16], r.VLANID&0x0FFF)
	}
	binary.BigEndian.PutUint16(v[header-2:header], r.Type)

	return append(v, r.Payload...), nil
}

func (r *Ethernet) UnmarshalBinary(data []byte) error {
	if len(data) < 14 {
		return ErrShortFrame
	}

	r.DstMAC = net.HardwareAddr(data[0:6])
	r.SrcMAC = net.HardwareAddr(data[6:12])
	r.VLANID = 0
	r.Type = binary.BigEndian.Uint16(data[12:14])
	offset := 14
	// IEEE 802.1Q tagged frame
	if r.Type == EtherTypeVLAN {
		if len(data) < 18 {
			return ErrShortFrame
		}
		r.VLANID = binary.BigEndian.Uint16(data[14:16]) & 0x0FFF
		r.Type = binary.BigEndian.Uint16(data[16:18])
		offset = 18
	}
	r.Payload = data[offset:]

	return nil
}

// IsBroadcast returns whether the destination is ff:ff:ff:ff:ff:ff.
func (r Ethernet) IsBroadcast() bool {
	for _, b := range r.DstMAC {
		if b != 0xFF {
			return false
		}
	}

	return len(r.DstMAC) == 6
}
