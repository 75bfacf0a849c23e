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
	"github.com/kndrvt/acl-manager/openflow"
)

type Hello struct {
	openflow.Message
}

func NewHello(xid uint32) *Hello {
	return &Hello{
		Message: openflow.NewMessage(openflow.OF13_VERSION, OFPT_HELLO, xid),
	}
}

// UnmarshalBinary ignores the hello elements because we only speak OpenFlow 1.3.
func (r *Hello) UnmarshalBinary(data []byte) error {
	return r.Message.UnmarshalBinary(data)
}
