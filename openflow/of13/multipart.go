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

	"github.com/kndrvt/acl-manager/openflow"
)

const multipartHeaderLength = 8

type multipartRequest struct {
	openflow.Message
	mpType uint16
	body   []byte
}

func (r *multipartRequest) MarshalBinary() ([]byte, error) {
	v := make([]byte, multipartHeaderLength)
	binary.BigEndian.PutUint16(v[0:2], r.mpType)
	// v[2:4] is flags, and v[4:8] is padding
	v = append(v, r.body...)
	r.SetPayload(v)

	return r.Message.MarshalBinary()
}

// MultipartType returns the multipart type of an OFPT_MULTIPART_REPLY packet.
func MultipartType(packet []byte) (uint16, error) {
	if len(packet) < openflow.HeaderLength+multipartHeaderLength {
		return 0, openflow.ErrInvalidPacketLength
	}

	return binary.BigEndian.Uint16(packet[8:10]), nil
}

type PortDescRequest struct {
	multipartRequest
}

func NewPortDescRequest(xid uint32) *PortDescRequest {
	return &PortDescRequest{
		multipartRequest{
			Message: openflow.NewMessage(openflow.OF13_VERSION, OFPT_MULTIPART_REQUEST, xid),
			mpType:  OFPMP_PORT_DESC,
		},
	}
}

type PortDescReply struct {
	openflow.Message
	Ports []Port
}

func (r *PortDescReply) UnmarshalBinary(data []byte) error {
	if err := r.Message.UnmarshalBinary(data); err != nil {
		return err
	}

	payload := r.Payload()
	if len(payload) < multipartHeaderLength {
		return openflow.ErrInvalidPacketLength
	}
	body := payload[multipartHeaderLength:]
	if len(body)%portLength != 0 {
		return openflow.ErrInvalidPacketLength
	}

	r.Ports = make([]Port, 0, len(body)/portLength)
	for i := 0; i < len(body); i += portLength {
		p := Port{}
		if err := p.UnmarshalBinary(body[i : i+portLength]); err != nil {
			return err
		}
		r.Ports = append(r.Ports, p)
	}

	return nil
}

type DescRequest struct {
	multipartRequest
}

func NewDescRequest(xid uint32) *DescRequest {
	return &DescRequest{
		multipartRequest{
			Message: openflow.NewMessage(openflow.OF13_VERSION, OFPT_MULTIPART_REQUEST, xid),
			mpType:  OFPMP_DESC,
		},
	}
}

type DescReply struct {
	openflow.Message
	Manufacturer string
	Hardware     string
	Software     string
	Serial       string
	Description  string
}

func trimString(v []byte) string {
	return string(bytes.TrimRight(v, "\x00"))
}

func (r *DescReply) UnmarshalBinary(data []byte) error {
	if err := r.Message.UnmarshalBinary(data); err != nil {
		return err
	}

	payload := r.Payload()
	if len(payload) < multipartHeaderLength+1056 {
		return openflow.ErrInvalidPacketLength
	}
	body := payload[multipartHeaderLength:]
	r.Manufacturer = trimString(body[0:256])
	r.Hardware = trimString(body[256:512])
	r.Software = trimString(body[512:768])
	r.Serial = trimString(body[768:800])
	r.Description = trimString(body[800:1056])

	return nil
}
