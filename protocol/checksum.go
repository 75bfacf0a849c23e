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
)

// checksum is the one's complement of the one's complement sum of data (RFC 1071).
func checksum(data ...[]byte) uint16 {
	var sum uint32
	var odd []byte
	for _, d := range data {
		if len(odd) > 0 && len(d) > 0 {
			sum += uint32(odd[0])<<8 | uint32(d[0])
			d = d[1:]
			odd = nil
		}
		for len(d) >= 2 {
			sum += uint32(binary.BigEndian.Uint16(d[0:2]))
			d = d[2:]
		}
		if len(d) == 1 {
			odd = d
		}
	}
	if len(odd) > 0 {
		sum += uint32(odd[0]) << 8
	}
	for sum>>16 != 0 {
		sum = sum>>16 + sum&0xFFFF
	}

	return ^uint16(sum)
}

// pseudoHeader returns the IPv4 pseudo header used by the TCP and UDP checksums.
func pseudoHeader(src, dst []byte, protocol uint8, length int) []byte {
	v := make([]byte, 12)
	copy(v[0:4], src)
	copy(v[4:8], dst)
	v[9] = protocol
	binary.BigEndian.PutUint16(v[10:12], uint16(length))

	return v
}
