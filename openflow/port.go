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

package openflow

import (
	"fmt"
)

type logicalPort uint8

const (
	physicalPort logicalPort = iota
	floodPort
	allPort
	controllerPort
	normalPort
	inputPort
	tablePort
	nonePort
)

// OutPort is an output port of an action. A zero OutPort is a physical port
// whose number is zero, so use NewOutPort() and one of the setters.
type OutPort struct {
	logical logicalPort
	value   uint32
}

// NewOutPort returns an OutPort that floods packets.
func NewOutPort() OutPort {
	return OutPort{logical: floodPort}
}

func (r OutPort) String() string {
	switch r.logical {
	case floodPort:
		return "FLOOD"
	case allPort:
		return "ALL"
	case controllerPort:
		return "CONTROLLER"
	case normalPort:
		return "NORMAL"
	case inputPort:
		return "IN_PORT"
	case tablePort:
		return "TABLE"
	case nonePort:
		return "NONE"
	default:
		return fmt.Sprintf("%v", r.value)
	}
}

func (r *OutPort) SetFlood() {
	r.logical = floodPort
	r.value = 0
}

func (r *OutPort) SetAll() {
	r.logical = allPort
	r.value = 0
}

func (r *OutPort) SetController() {
	r.logical = controllerPort
	r.value = 0
}

func (r *OutPort) SetNormal() {
	r.logical = normalPort
	r.value = 0
}

func (r *OutPort) SetInPort() {
	r.logical = inputPort
	r.value = 0
}

func (r *OutPort) SetTable() {
	r.logical = tablePort
	r.value = 0
}

func (r *OutPort) SetNone() {
	r.logical = nonePort
	r.value = 0
}

func (r *OutPort) SetValue(port uint32) {
	r.logical = physicalPort
	r.value = port
}

func (r OutPort) IsFlood() bool {
	return r.logical == floodPort
}

func (r OutPort) IsAll() bool {
	return r.logical == allPort
}

func (r OutPort) IsController() bool {
	return r.logical == controllerPort
}

func (r OutPort) IsNormal() bool {
	return r.logical == normalPort
}

func (r OutPort) IsInPort() bool {
	return r.logical == inputPort
}

func (r OutPort) IsTable() bool {
	return r.logical == tablePort
}

func (r OutPort) IsNone() bool {
	return r.logical == nonePort
}

// Value returns the physical port number. It is meaningful only for a physical port.
func (r OutPort) Value() uint32 {
	return r.value
}

// InPort is an ingress port of a PACKET_OUT message.
type InPort struct {
	controller bool
	value      uint32
}

// NewInPort returns an InPort that means the controller.
func NewInPort() InPort {
	return InPort{controller: true}
}

func (r *InPort) SetController() {
	r.controller = true
	r.value = 0
}

func (r *InPort) SetValue(port uint32) {
	r.controller = false
	r.value = port
}

func (r InPort) IsController() bool {
	return r.controller
}

func (r InPort) Value() uint32 {
	return r.value
}
