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
	"encoding"
	"encoding/binary"
	"errors"

	"github.com/kndrvt/acl-manager/openflow"
)

type Instruction interface {
	encoding.BinaryMarshaler
}

type ApplyAction struct {
	Action *Action
}

func (r *ApplyAction) MarshalBinary() ([]byte, error) {
	if r.Action == nil {
		return nil, errors.New("empty action")
	}

	action, err := r.Action.MarshalBinary()
	if err != nil {
		return nil, err
	}

	v := make([]byte, 8, 8+len(action))
	v = append(v, action...)
	binary.BigEndian.PutUint16(v[0:2], OFPIT_APPLY_ACTIONS)
	binary.BigEndian.PutUint16(v[2:4], uint16(len(v)))
	// v[4:8] is padding

	return v, nil
}

type GotoTable struct {
	TableID uint8
}

func (r *GotoTable) MarshalBinary() ([]byte, error) {
	v := make([]byte, 8)
	binary.BigEndian.PutUint16(v[0:2], OFPIT_GOTO_TABLE)
	binary.BigEndian.PutUint16(v[2:4], 8)
	v[4] = r.TableID
	// v[5:8] is padding

	return v, nil
}

func unmarshalInstructions(data []byte) ([]Instruction, error) {
	result := make([]Instruction, 0)

	buf := data
	for len(buf) >= 4 {
		t := binary.BigEndian.Uint16(buf[0:2])
		length := int(binary.BigEndian.Uint16(buf[2:4]))
		if length < 8 || len(buf) < length {
			return nil, openflow.ErrInvalidPacketLength
		}

		switch t {
		case OFPIT_APPLY_ACTIONS:
			action := NewAction()
			if err := action.UnmarshalBinary(buf[8:length]); err != nil {
				return nil, err
			}
			result = append(result, &ApplyAction{Action: action})
		case OFPIT_GOTO_TABLE:
			result = append(result, &GotoTable{TableID: buf[4]})
		default:
			// Do nothing
		}
		buf = buf[length:]
	}

	return result, nil
}
