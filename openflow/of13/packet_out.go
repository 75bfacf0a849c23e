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

type PacketOut struct {
	openflow.Message
	inPort openflow.InPort
	action *Action
	data   []byte
}

func NewPacketOut(xid uint32) *PacketOut {
	return &PacketOut{
		Message: openflow.NewMessage(openflow.OF13_VERSION, OFPT_PACKET_OUT, xid),
		inPort:  openflow.NewInPort(),
		action:  NewAction(),
	}
}

func (r *PacketOut) InPort() openflow.InPort {
	return r.inPort
}

func (r *PacketOut) SetInPort(port openflow.InPort) {
	r.inPort = port
}

func (r *PacketOut) Action() *Action {
	return r.action
}

func (r *PacketOut) SetAction(action *Action) {
	if action == nil {
		panic("action is nil")
	}
	r.action = action
}

func (r *PacketOut) Data() []byte {
	return r.data
}

func (r *PacketOut) SetData(data []byte) {
	r.data = data
}

func (r *PacketOut) MarshalBinary() ([]byte, error) {
	action, err := r.action.MarshalBinary()
	if err != nil {
		return nil, err
	}

	v := make([]byte, 16, 16+len(action)+len(r.data))
	binary.BigEndian.PutUint32(v[0:4], OFP_NO_BUFFER)
	port := r.inPort.Value()
	if r.inPort.IsController() {
		port = OFPP_CONTROLLER
	}
	binary.BigEndian.PutUint32(v[4:8], port)
	binary.BigEndian.PutUint16(v[8:10], uint16(len(action)))
	// v[10:16] is padding
	v = append(v, action...)
	v = append(v, r.data...)

	r.SetPayload(v)
	return r.Message.MarshalBinary()
}

func (r *PacketOut) UnmarshalBinary(data []byte) error {
	if err := r.Message.UnmarshalBinary(data); err != nil {
		return err
	}

	payload := r.Payload()
	if len(payload) < 16 {
		return openflow.ErrInvalidPacketLength
	}
	port := binary.BigEndian.Uint32(payload[4:8])
	if port == OFPP_CONTROLLER {
		r.inPort.SetController()
	} else {
		r.inPort.SetValue(port)
	}
	length := int(binary.BigEndian.Uint16(payload[8:10]))
	if len(payload) < 16+length {
		return openflow.ErrInvalidPacketLength
	}
	r.action = NewAction()
	if err := r.action.UnmarshalBinary(payload[16 : 16+length]); err != nil {
		return err
	}
	r.data = nil
	if len(payload) > 16+length {
		r.data = payload[16+length:]
	}

	return nil
}
