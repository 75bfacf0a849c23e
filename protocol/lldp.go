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
	lldpTLVEnd       = 0
	lldpTLVChassisID = 1
	lldpTLVPortID    = 2
	lldpTLVTTL       = 3
)

var (
	// Nearest bridge group address (IEEE 802.1AB).
	LLDPMulticastMAC = net.HardwareAddr{0x01, 0x80, 0xC2, 0x00, 0x00, 0x0E}
)

type LLDPTLV struct {
	SubType uint8
	Data    []byte
}

type LLDP struct {
	ChassisID LLDPTLV
	PortID    LLDPTLV
	TTL       uint16
}

func (r LLDP) String() string {
	return fmt.Sprintf("LLDP(chassis=%v/%q, port=%v/%q, ttl=%v)", r.ChassisID.SubType, r.ChassisID.Data, r.PortID.SubType, r.PortID.Data, r.TTL)
}

func appendTLV(v []byte, tlvType uint8, value []byte) ([]byte, error) {
	if len(value) > 0x1FF {
		return nil, fmt.Errorf("too long LLDP TLV: type=%v, length=%v", tlvType, len(value))
	}

	header := make([]byte, 2)
	binary.BigEndian.PutUint16(header, uint16(tlvType)<<9|uint16(len(value)))
	v = append(v, header...)

	return append(v, value...), nil
}

func (r LLDP) MarshalBinary() ([]byte, error) {
	if len(r.ChassisID.Data) == 0 || len(r.PortID.Data) == 0 {
		return nil, errors.New("empty chassis or port ID")
	}

	var err error
	v := make([]byte, 0, 64)
	if v, err = appendTLV(v, lldpTLVChassisID, append([]byte{r.ChassisID.SubType}, r.ChassisID.Data...)); err != nil {
		return nil, err
	}
	if v, err = appendTLV(v, lldpTLVPortID, append([]byte{r.PortID.SubType}, r.PortID.Data...)); err != nil {
		return nil, err
	}
	ttl := make([]byte, 2)
	binary.BigEndian.PutUint16(ttl, r.TTL)
	if v, err = appendTLV(v, lldpTLVTTL, ttl); err != nil {
		return nil, err
	}

	return appendTLV(v, lldpTLVEnd, nil)
}

// UnmarshalBinary decodes the three mandatory TLVs, which should come first
// in order, and skips the optional ones.
func (r *LLDP) UnmarshalBinary(data []byte) error {
	expected := []uint8{lldpTLVChassisID, lldpTLVPortID, lldpTLVTTL}
	for _, tlvType := range expected {
		if len(data) < 2 {
			return errors.New("truncated LLDP TLV")
		}
		header := binary.BigEndian.Uint16(data[0:2])
		length := int(header & 0x1FF)
		if uint8(header>>9) != tlvType {
			return fmt.Errorf("unexpected LLDP TLV type: expected=%v, got=%v", tlvType, header>>9)
		}
		if len(data) < 2+length {
			return errors.New("truncated LLDP TLV value")
		}
		value := data[2 : 2+length]
		data = data[2+length:]

		switch tlvType {
		case lldpTLVChassisID, lldpTLVPortID:
			if length < 2 {
				return errors.New("too short LLDP ID TLV")
			}
			tlv := LLDPTLV{SubType: value[0], Data: value[1:]}
			if tlvType == lldpTLVChassisID {
				r.ChassisID = tlv
			} else {
				r.PortID = tlv
			}
		case lldpTLVTTL:
			if length != 2 {
				return errors.New("invalid LLDP TTL length")
			}
			r.TTL = binary.BigEndian.Uint16(value)
		}
	}

	return nil
}
