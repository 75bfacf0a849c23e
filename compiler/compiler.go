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
	"errors"

	"github.com/kndrvt/acl-manager/acl"
	"github.com/kndrvt/acl-manager/topology"
)

const (
	DefaultBasePriority = 100
)

var (
	ErrIncompleteTopology = errors.New("incomplete topology: unknown host location")
	ErrUnknownVerdict     = errors.New("unknown verdict")
)

// Compiler translates a policy decision into flow entries at the ingress
// switches of the flow.
type Compiler struct {
	base uint16
}

func New(base uint16) *Compiler {
	if base == 0 {
		base = DefaultBasePriority
	}

	return &Compiler{base: base}
}

// Priority returns the flow priority of the decision. A specific rule
// outranks a wildcard rule of the same priority, and a deny outranks an
// allow of the same priority and specificity.
func (r *Compiler) Priority(d acl.Decision) uint16 {
	rulePriority, specificity := 0, 0
	if d.Rule != nil {
		rulePriority = d.Rule.Priority
		specificity = d.Rule.Specificity()
	}
	v := int(r.base) + rulePriority*8 + specificity*2
	if d.Verdict == acl.VerdictDeny {
		v++
	}
	if v > 0xFFFF {
		v = 0xFFFF
	}
	if v < int(r.base) {
		v = int(r.base)
	}

	return uint16(v)
}

func (r *Compiler) Compile(d acl.Decision, t acl.FlowTuple, src, dst topology.Location, srcKnown, dstKnown bool) ([]FlowEntry, error) {
	if d.Verdict == acl.VerdictUnknown {
		return nil, ErrUnknownVerdict
	}
	if !srcKnown || !dstKnown {
		return nil, ErrIncompleteTopology
	}
	srcIP, dstIP := t.SrcIP.To4(), t.DstIP.To4()
	if srcIP == nil || dstIP == nil {
		return nil, ErrIncompleteTopology
	}

	priority := r.Priority(d)
	forward := FlowEntry{
		DPID: src.DPID,
		Match: Match{
			EtherType: 0x0800,
			SrcIP:     srcIP,
			DstIP:     dstIP,
			Protocol:  t.Protocol,
			DstPort:   t.DstPort,
		},
		Priority: priority,
		RuleID:   d.RuleID(),
		Verdict:  d.Verdict,
		Tuple:    t,
	}

	if d.Verdict == acl.VerdictDeny {
		forward.Action = Drop
		return []FlowEntry{forward}, nil
	}

	forward.Action = Forward
	result := []FlowEntry{forward}
	if src.DPID != dst.DPID {
		mirror := forward
		mirror.DPID = dst.DPID
		mirror.Match = Match{
			EtherType: 0x0800,
			SrcIP:     dstIP,
			DstIP:     srcIP,
			Protocol:  t.Protocol,
			SrcPort:   t.DstPort,
		}
		result = append(result, mirror)
	}

	return result, nil
}
