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

package compiler

import (
	"fmt"
	"net"

	"github.com/kndrvt/acl-manager/acl"
)

type Action uint8

const (
	Forward Action = iota + 1
	Drop
)

func (r Action) String() string {
	switch r {
	case Forward:
		return "FORWARD"
	case Drop:
		return "DROP"
	default:
		return fmt.Sprintf("Action(%d)", uint8(r))
	}
}

func (r Action) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Match is an exact IPv4 L4 match. Zero ports are wildcards.
type Match struct {
	EtherType uint16
	SrcIP     net.IP
	DstIP     net.IP
	Protocol  uint8
	SrcPort   uint16
	DstPort   uint16
}

func (r Match) String() string {
	v := fmt.Sprintf("eth_type=0x%04x,nw_src=%v,nw_dst=%v,nw_proto=%v", r.EtherType, r.SrcIP, r.DstIP, r.Protocol)
	if r.SrcPort != 0 {
		v += fmt.Sprintf(",tp_src=%v", r.SrcPort)
	}
	if r.DstPort != 0 {
		v += fmt.Sprintf(",tp_dst=%v", r.DstPort)
	}

	return v
}

// Key identifies a switch-resident flow entry.
type Key struct {
	DPID     uint64
	Match    string
	Priority uint16
}

func (r Key) String() string {
	return fmt.Sprintf("%016x[%v,priority=%v]", r.DPID, r.Match, r.Priority)
}

type FlowEntry struct {
	DPID     uint64
	Match    Match
	Action   Action
	Priority uint16
	RuleID   string
	Verdict  acl.Verdict
	// Tuple is the flow that this entry is compiled from.
	Tuple acl.FlowTuple
}

func (r FlowEntry) Key() Key {
	return Key{DPID: r.DPID, Match: r.Match.String(), Priority: r.Priority}
}

func (r FlowEntry) String() string {
	return fmt.Sprintf("FlowEntry(%v, action=%v, rule=%v)", r.Key(), r.Action, r.RuleID)
}

// Equivalent returns true if both entries result in the same switch state.
func (r FlowEntry) Equivalent(o FlowEntry) bool {
	return r.Key() == o.Key() && r.Action == o.Action
}

// FlowSpec is what the session layer needs to program an entry.
type FlowSpec struct {
	Match       Match
	Action      Action
	Priority    uint16
	Cookie      uint64
	IdleTimeout uint16
}

func (r FlowSpec) String() string {
	return fmt.Sprintf("FlowSpec(%v, priority=%v, action=%v, cookie=0x%x)", r.Match, r.Priority, r.Action, r.Cookie)
}

func (r FlowEntry) Spec(cookie uint64, idleTimeout uint16) FlowSpec {
	return FlowSpec{
		Match:       r.Match,
		Action:      r.Action,
		Priority:    r.Priority,
		Cookie:      cookie,
		IdleTimeout: idleTimeout,
	}
}
