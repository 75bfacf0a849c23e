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
	"errors"

	"github.com/kndrvt/acl-manager/openflow"
)

const flowModLength = 40

type FlowMod struct {
	openflow.Message
	command      uint8
	cookie       uint64
	cookieMask   uint64
	tableID      uint8
	idleTimeout  uint16
	hardTimeout  uint16
	priority     uint16
	outPort      openflow.OutPort
	flags        uint16
	match        *Match
	instructions []Instruction
}

func NewFlowMod(xid uint32, cmd uint8) *FlowMod {
	// Default out_port value is OFPP_ANY
	outPort := openflow.NewOutPort()
	outPort.SetNone()

	return &FlowMod{
		Message: openflow.NewMessage(openflow.OF13_VERSION, OFPT_FLOW_MOD, xid),
		command: cmd,
		outPort: outPort,
		flags:   OFPFF_SEND_FLOW_REM,
	}
}

func (r *FlowMod) Command() uint8 {
	return r.command
}

func (r *FlowMod) Cookie() uint64 {
	return r.cookie
}

func (r *FlowMod) SetCookie(cookie uint64) {
	r.cookie = cookie
}

func (r *FlowMod) CookieMask() uint64 {
	return r.cookieMask
}

func (r *FlowMod) SetCookieMask(mask uint64) {
	r.cookieMask = mask
}

func (r *FlowMod) TableID() uint8 {
	return r.tableID
}

func (r *FlowMod) SetTableID(id uint8) {
	r.tableID = id
}

func (r *FlowMod) IdleTimeout() uint16 {
	return r.idleTimeout
}

func (r *FlowMod) SetIdleTimeout(timeout uint16) {
	r.idleTimeout = timeout
}

func (r *FlowMod) HardTimeout() uint16 {
	return r.hardTimeout
}

func (r *FlowMod) SetHardTimeout(timeout uint16) {
	r.hardTimeout = timeout
}

func (r *FlowMod) Priority() uint16 {
	return r.priority
}

func (r *FlowMod) SetPriority(priority uint16) {
	r.priority = priority
}

func (r *FlowMod) OutPort() openflow.OutPort {
	return r.outPort
}

func (r *FlowMod) SetOutPort(p openflow.OutPort) {
	r.outPort = p
}

func (r *FlowMod) Flags() uint16 {
	return r.flags
}

func (r *FlowMod) SetFlags(flags uint16) {
	r.flags = flags
}

func (r *FlowMod) FlowMatch() *Match {
	return r.match
}

func (r *FlowMod) SetFlowMatch(match *Match) {
	if match == nil {
		panic("flow match is nil")
	}
	r.match = match
}

func (r *FlowMod) Instructions() []Instruction {
	return r.instructions
}

// AddInstruction appends an instruction. A FLOW_MOD without any instruction drops the matched packets.
func (r *FlowMod) AddInstruction(inst Instruction) {
	if inst == nil {
		panic("flow instruction is nil")
	}
	r.instructions = append(r.instructions, inst)
}

func (r *FlowMod) MarshalBinary() ([]byte, error) {
	if r.match == nil {
		return nil, errors.New("empty flow match")
	}

	v := make([]byte, flowModLength)
	binary.BigEndian.PutUint64(v[0:8], r.cookie)
	binary.BigEndian.PutUint64(v[8:16], r.cookieMask)
	v[16] = r.tableID
	v[17] = r.command
	binary.BigEndian.PutUint16(v[18:20], r.idleTimeout)
	binary.BigEndian.PutUint16(v[20:22], r.hardTimeout)
	binary.BigEndian.PutUint16(v[22:24], r.priority)
	binary.BigEndian.PutUint32(v[24:28], OFP_NO_BUFFER)
	binary.BigEndian.PutUint32(v[28:32], wirePort(r.outPort))
	binary.BigEndian.PutUint32(v[32:36], OFPP_ANY) // out_group
	binary.BigEndian.PutUint16(v[36:38], r.flags)
	// v[38:40] is padding

	match, err := r.match.MarshalBinary()
	if err != nil {
		return nil, err
	}
	v = append(v, match...)
	for _, inst := range r.instructions {
		b, err := inst.MarshalBinary()
		if err != nil {
			return nil, err
		}
		v = append(v, b...)
	}

	r.SetPayload(v)
	return r.Message.MarshalBinary()
}

func (r *FlowMod) UnmarshalBinary(data []byte) error {
	if err := r.Message.UnmarshalBinary(data); err != nil {
		return err
	}

	payload := r.Payload()
	if len(payload) < flowModLength {
		return openflow.ErrInvalidPacketLength
	}
	r.cookie = binary.BigEndian.Uint64(payload[0:8])
	r.cookieMask = binary.BigEndian.Uint64(payload[8:16])
	r.tableID = payload[16]
	r.command = payload[17]
	r.idleTimeout = binary.BigEndian.Uint16(payload[18:20])
	r.hardTimeout = binary.BigEndian.Uint16(payload[20:22])
	r.priority = binary.BigEndian.Uint16(payload[22:24])
	r.outPort = logicalPort(binary.BigEndian.Uint32(payload[28:32]))
	r.flags = binary.BigEndian.Uint16(payload[36:38])

	length, err := matchLength(payload[flowModLength:])
	if err != nil {
		return err
	}
	r.match = NewMatch()
	if err := r.match.UnmarshalBinary(payload[flowModLength:]); err != nil {
		return err
	}
	r.instructions, err = unmarshalInstructions(payload[flowModLength+length:])

	return err
}
