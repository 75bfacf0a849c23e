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
	"fmt"

	"github.com/kndrvt/acl-manager/openflow"
)

// Error is an OFPT_ERROR message. Its transaction ID is the one of the request
// that caused the error.
type Error struct {
	openflow.Message
	Class uint16
	Code  uint16
	Data  []byte
}

func (r *Error) Error() string {
	return fmt.Sprintf("openflow error: class=%v, code=%v, xid=%v", r.Class, r.Code, r.TransactionID())
}

// IsOverlap returns true if r is a CHECK_OVERLAP failure of a FLOW_MOD.
func (r *Error) IsOverlap() bool {
	return r.Class == OFPET_FLOW_MOD_FAILED && r.Code == OFPFMFC_OVERLAP
}

func (r *Error) UnmarshalBinary(data []byte) error {
	if err := r.Message.UnmarshalBinary(data); err != nil {
		return err
	}

	payload := r.Payload()
	if len(payload) < 4 {
		return openflow.ErrInvalidPacketLength
	}
	r.Class = binary.BigEndian.Uint16(payload[0:2])
	r.Code = binary.BigEndian.Uint16(payload[2:4])
	r.Data = nil
	if len(payload) > 4 {
		r.Data = payload[4:]
	}

	return nil
}
