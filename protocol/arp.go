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
	ARPRequest uint16 = 1
	ARPReply   uint16 = 2
)

type ARP struct {
	Operation uint16
	// Sender hardware and protocol addresses.
	SHA net.HardwareAddr
	SPA net.IP
	// Target hardware and protocol addresses.
	THA net.HardwareAddr
	TPA net.IP
}

func (r ARP) String() string {
	return fmt.Sprintf("ARP(op=%v, sha=%v, spa=%v, tha=%v, tpa=%v)", r.Operation, r.SHA, r.SPA, r.THA, r.TPA)
}

// IsGratuitous returns true for an announcement whose sender and target protocol addresses are same.
func (r ARP) IsGratuitous() bool {
	return r.SPA.Equal(r.TPA)
}

func (r ARP) MarshalBinary() ([]byte, error) {
	if len(r.SHA) != 6 || len(r.THA) != 6 {
		return nil, errors.New("invalid hardware address")
	}
	spa, tpa := r.SPA.To4(), r.TPA.To4()
	if spa == nil || tpa == nil {
		return nil, errors.New("protocol address is not an IPv4 address")
	}

	v := make([]byte, 28)
	binary.BigEndian.PutUint16(v[0:2], 1) // Ethernet
	binary.BigEndian.PutUint16(v[2:4], EtherTypeIPv4)
	v[4] = 6
	v[5] = 4
	binary.BigEndian.PutUint16(v[6:8], r.Operation)
	copy(v[8:14], r.SHA)
	copy(v[14:18], spa)
	copy(v[18:24], r.THA)
	copy(v[24:28], tpa)

	return v, nil
}

func (r *ARP) UnmarshalBinary(data []byte) error {
	if len(data) < 28 {
		return errors.New("invalid ARP packet length")
	}
	if binary.BigEndian.Uint16(data[0:2]) != 1 || binary.BigEndian.Uint16(data[2:4]) != EtherTypeIPv4 || data[4] != 6 || data[5] != 4 {
		return errors.New("unsupported ARP packet: not Ethernet over IPv4")
	}

	r.Operation = binary.BigEndian.Uint16(data[6:8])
	r.SHA = net.HardwareAddr(data[8:14])
	r.SPA = net.IP(data[14:18])
	r.THA = net.HardwareAddr(data[18:24])
	r.TPA = net.IP(data[24:28])

	return nil
}
