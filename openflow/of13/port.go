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

package of13

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"

	"github.com/kndrvt/acl-manager/openflow"
)

const portLength = 64

type Port struct {
	Number uint32
	MAC    net.HardwareAddr
	Name   string
	Config uint32
	State  uint32
	// Current speed in kbps.
	Speed uint32
}

func (r Port) String() string {
	return fmt.Sprintf("Port(%v, %v, %v, AdminUp=%v, LinkUp=%v)", r.Number, r.Name, r.MAC, !r.IsPortDown(), !r.IsLinkDown())
}

func (r Port) IsPortDown() bool {
	return r.Config&OFPPC_PORT_DOWN != 0
}

func (r Port) IsLinkDown() bool {
	return r.State&OFPPS_LINK_DOWN != 0
}

// IsUp returns true if the port is administratively enabled and its link is up.
func (r Port) IsUp() bool {
	return !r.IsPortDown() && !r.IsLinkDown()
}

// IsPhysical returns false for the reserved ports such as OFPP_LOCAL.
func (r Port) IsPhysical() bool {
	return r.Number <= OFPP_MAX
}

func (r *Port) UnmarshalBinary(data []byte) error {
	if len(data) < portLength {
		return openflow.ErrInvalidPacketLength
	}

	r.Number = binary.BigEndian.Uint32(data[0:4])
	// data[4:8] is padding
	r.MAC = make(net.HardwareAddr, 6)
	copy(r.MAC, data[8:14])
	// data[14:16] is padding
	r.Name = string(bytes.TrimRight(data[16:32], "\x00"))
	r.Config = binary.BigEndian.Uint32(data[32:36])
	r.State = binary.BigEndian.Uint32(data[36:40])
	r.Speed = binary.BigEndian.Uint32(data[56:60])

	return nil
}

func (r Port) MarshalBinary() ([]byte, error) {
	if len(r.MAC) != 6 {
		return nil, openflow.ErrInvalidMACAddress
	}
	if len(r.Name) > 15 {
		return nil, fmt.Errorf("too long port name: %v", r.Name)
	}

	v := make([]byte, portLength)
	binary.BigEndian.PutUint32(v[0:4], r.Number)
	copy(v[8:14], r.MAC)
	copy(v[16:32], r.Name)
	binary.BigEndian.PutUint32(v[32:36], r.Config)
	binary.BigEndian.PutUint32(v[36:40], r.State)
	binary.BigEndian.PutUint32(v[56:60], r.Speed)

	return v, nil
}

type PortStatus struct {
	openflow.Message
	Reason uint8
	Port   Port
}

func (r *PortStatus) UnmarshalBinary(data []byte) error {
	if err := r.Message.UnmarshalBinary(data); err != nil {
		return err
	}

	payload := r.Payload()
	if len(payload) < 8+portLength {
		return openflow.ErrInvalidPacketLength
	}
	r.Reason = payload[0]
	// payload[1:8] is padding

	return r.Port.UnmarshalBinary(payload[8:])
}
