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

package network

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/kndrvt/acl-manager/openflow/of13"
	"github.com/kndrvt/acl-manager/protocol"
)

const (
	// Locally assigned alpha-numeric string
	lldpChassisSubType = 7
	// Interface name
	lldpPortSubType = 5
	lldpTTL         = 120
)

var (
	lldpPortPrefix = []byte("aclmanager/")
)

func newLLDPEtherFrame(dpid uint64, port of13.Port) ([]byte, error) {
	lldp := &protocol.LLDP{
		ChassisID: protocol.LLDPTLV{
			SubType: lldpChassisSubType,
			Data:    []byte(strconv.FormatUint(dpid, 10)),
		},
		PortID: protocol.LLDPTLV{
			SubType: lldpPortSubType,
			Data:    []byte(fmt.Sprintf("%s%v", lldpPortPrefix, port.Number)),
		},
		TTL: lldpTTL,
	}
	payload, err := lldp.MarshalBinary()
	if err != nil {
		return nil, err
	}

	ethernet := &protocol.Ethernet{
		SrcMAC:  port.MAC,
		DstMAC:  protocol.LLDPMulticastMAC,
		Type:    protocol.EtherTypeLLDP,
		Payload: payload,
	}

	return ethernet.MarshalBinary()
}

// isOurLLDP returns true if p is the one that we have sent.
func isOurLLDP(p *protocol.LLDP) bool {
	if p.ChassisID.SubType != lldpChassisSubType || len(p.ChassisID.Data) == 0 {
		return false
	}
	if p.PortID.SubType != lldpPortSubType || len(p.PortID.Data) <= len(lldpPortPrefix) {
		return false
	}

	return bytes.HasPrefix(p.PortID.Data, lldpPortPrefix)
}

// extractDeviceInfo returns the switch and the port that have sent p.
func extractDeviceInfo(p *protocol.LLDP) (dpid uint64, portNum uint32, err error) {
	if !isOurLLDP(p) {
		return 0, 0, errors.New("not found our LLDP packet")
	}

	dpid, err = strconv.ParseUint(string(p.ChassisID.Data), 10, 64)
	if err != nil {
		return 0, 0, err
	}
	num, err := strconv.ParseUint(string(p.PortID.Data[len(lldpPortPrefix):]), 10, 32)
	if err != nil {
		return 0, 0, err
	}

	return dpid, uint32(num), nil
}

func sendLLDP(device *Device, p of13.Port) error {
	frame, err := newLLDPEtherFrame(device.DPID(), p)
	if err != nil {
		return err
	}

	return device.SendToPort(p.Number, frame)
}
