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
	"encoding/binary"

	"github.com/kndrvt/acl-manager/openflow"
)

const outputActionLength = 16

// Action is an ordered list of output actions. An empty Action drops packets.
type Action struct {
	outputs []openflow.OutPort
}

func NewAction() *Action {
	return &Action{}
}

func (r *Action) AddOutput(port openflow.OutPort) {
	r.outputs = append(r.outputs, port)
}

func (r *Action) Outputs() []openflow.OutPort {
	return r.outputs
}

func (r *Action) IsDrop() bool {
	return len(r.outputs) == 0
}

func wirePort(p openflow.OutPort) uint32 {
	switch {
	case p.IsFlood():
		return OFPP_FLOOD
	case p.IsAll():
		return OFPP_ALL
	case p.IsController():
		return OFPP_CONTROLLER
	case p.IsNormal():
		return OFPP_NORMAL
	case p.IsInPort():
		return OFPP_IN_PORT
	case p.IsTable():
		return OFPP_TABLE
	case p.IsNone():
		return OFPP_ANY
	default:
		return p.Value()
	}
}

func logicalPort(port uint32) openflow.OutPort {
	p := openflow.NewOutPort()
	switch port {
	case OFPP_FLOOD:
		p.SetFlood()
	case OFPP_ALL:
		p.SetAll()
	case OFPP_CONTROLLER:
		p.SetController()
	case OFPP_NORMAL:
		p.SetNormal()
	case OFPP_IN_PORT:
		p.SetInPort()
	case OFPP_TABLE:
		p.SetTable()
	case OFPP_ANY:
		p.SetNone()
	default:
		p.SetValue(port)
	}

	return p
}

func (r *Action) MarshalBinary() ([]byte, error) {
	v := make([]byte, 0, len(r.outputs)*outputActionLength)
	for _, p := range r.outputs {
		output := make([]byte, outputActionLength)
		binary.BigEndian.PutUint16(output[0:2], OFPAT_OUTPUT)
		binary.BigEndian.PutUint16(output[2:4], outputActionLength)
		binary.BigEndian.PutUint32(output[4:8], wirePort(p))
		// We don't use the switch buffer, so send the entire packet to the controller.
		binary.BigEndian.PutUint16(output[8:10], OFPCML_NO_BUFFER)
		v = append(v, output...)
	}

	return v, nil
}

// UnmarshalBinary decodes the output actions and skips the others.
func (r *Action) UnmarshalBinary(data []byte) error {
	r.outputs = nil

	buf := data
	for len(buf) >= 4 {
		t := binary.BigEndian.Uint16(buf[0:2])
		length := int(binary.BigEndian.Uint16(buf[2:4]))
		if length < 4 || len(buf) < length {
			return openflow.ErrInvalidPacketLength
		}
		if t == OFPAT_OUTPUT {
			if length < 8 {
				return openflow.ErrInvalidPacketLength
			}
			r.outputs = append(r.outputs, logicalPort(binary.BigEndian.Uint32(buf[4:8])))
		}
		buf = buf[length:]
	}

	return nil
}
