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
	"net"

	"github.com/kndrvt/acl-manager/compiler"
	"github.com/kndrvt/acl-manager/openflow"
	"github.com/kndrvt/acl-manager/openflow/of13"
	"github.com/kndrvt/acl-manager/openflow/transceiver"
	"github.com/kndrvt/acl-manager/protocol"

	"github.com/pkg/errors"
)

// Priorities of the default pipeline. The access control entries are put
// between transitPriority and lldpPriority.
const (
	tableMissPriority  = 0
	classifierPriority = 5
	arpPriority        = 7
	transitPriority    = 10
	lldpPriority       = 65000
)

// Cookie of the default pipeline flows.
const pipelineCookie = 0x2021

func newPermanentFlow(f *of13.Factory, priority uint16, match *of13.Match, outputs ...openflow.OutPort) *of13.FlowMod {
	flow := f.NewFlowMod(of13.OFPFC_ADD)
	flow.SetCookie(pipelineCookie)
	flow.SetTableID(0)
	// Permanent flow
	flow.SetIdleTimeout(0)
	flow.SetHardTimeout(0)
	flow.SetPriority(priority)
	flow.SetFlags(0)
	flow.SetFlowMatch(match)
	if len(outputs) > 0 {
		action := of13.NewAction()
		for _, p := range outputs {
			action.AddOutput(p)
		}
		flow.AddInstruction(&of13.ApplyAction{Action: action})
	}

	return flow
}

func normalPort() openflow.OutPort {
	p := openflow.NewOutPort()
	p.SetNormal()
	return p
}

func controllerPort() openflow.OutPort {
	p := openflow.NewOutPort()
	p.SetController()
	return p
}

func newTableMissFlow(f *of13.Factory) *of13.FlowMod {
	// Wildcard
	return newPermanentFlow(f, tableMissPriority, of13.NewMatch(), normalPort())
}

// newClassifierFlow punts the new connections toward a service port to the
// controller. The access control entries override it once installed.
func newClassifierFlow(f *of13.Factory, port uint16) *of13.FlowMod {
	match := of13.NewMatch()
	match.SetEtherType(protocol.EtherTypeIPv4)
	match.SetIPProtocol(protocol.IPProtocolTCP)
	match.SetDstPort(port)

	return newPermanentFlow(f, classifierPriority, match, controllerPort())
}

// newARPFlow copies ARP packets to the controller to learn the hosts that
// never open a connection.
func newARPFlow(f *of13.Factory) *of13.FlowMod {
	match := of13.NewMatch()
	match.SetEtherType(protocol.EtherTypeARP)

	return newPermanentFlow(f, arpPriority, match, controllerPort(), normalPort())
}

func newLLDPFlow(f *of13.Factory) *of13.FlowMod {
	match := of13.NewMatch()
	match.SetEtherType(protocol.EtherTypeLLDP)

	return newPermanentFlow(f, lldpPriority, match, controllerPort())
}

// newTransitFlow forwards the traffic received from another switch without
// evaluating it again. It has been policed at its ingress switch.
func newTransitFlow(f *of13.Factory, port uint32) *of13.FlowMod {
	match := of13.NewMatch()
	match.SetInPort(port)

	return newPermanentFlow(f, transitPriority, match, normalPort())
}

// newTransitRemoval deletes the transit flow of the port. Traffic on the port
// falls back to the classifier afterwards.
func newTransitRemoval(f *of13.Factory, port uint32) *of13.FlowMod {
	match := of13.NewMatch()
	match.SetInPort(port)

	flow := f.NewFlowMod(of13.OFPFC_DELETE_STRICT)
	flow.SetCookie(pipelineCookie)
	flow.SetCookieMask(0xFFFFFFFFFFFFFFFF)
	flow.SetTableID(0)
	flow.SetPriority(transitPriority)
	flow.SetFlags(0)
	flow.SetFlowMatch(match)

	return flow
}

func sendRemovingAllFlows(f *of13.Factory, w transceiver.Writer) error {
	msg := f.NewFlowMod(of13.OFPFC_DELETE)
	// Wildcard
	msg.SetTableID(of13.OFPTT_ALL)
	msg.SetFlowMatch(of13.NewMatch())

	return w.Write(msg)
}

// installPipeline installs the default flows on an empty flow table.
func installPipeline(f *of13.Factory, w transceiver.Writer, servicePorts []uint16) error {
	flows := []*of13.FlowMod{newTableMissFlow(f), newARPFlow(f), newLLDPFlow(f)}
	for _, p := range servicePorts {
		flows = append(flows, newClassifierFlow(f, p))
	}
	for _, v := range flows {
		if err := w.Write(v); err != nil {
			return errors.Wrapf(err, "failed to install a default flow (priority=%v)", v.Priority())
		}
	}

	return nil
}

func hostNet(ip net.IP) *net.IPNet {
	return &net.IPNet{IP: ip.To4(), Mask: net.CIDRMask(32, 32)}
}

// newFlowMod converts an access control entry into a flow-mod. cmd is
// OFPFC_ADD or OFPFC_DELETE_STRICT.
func newFlowMod(f *of13.Factory, cmd uint8, spec compiler.FlowSpec) (*of13.FlowMod, error) {
	match := of13.NewMatch()
	match.SetEtherType(spec.Match.EtherType)
	if spec.Match.SrcIP != nil {
		match.SetSrcIP(hostNet(spec.Match.SrcIP))
	}
	if spec.Match.DstIP != nil {
		match.SetDstIP(hostNet(spec.Match.DstIP))
	}
	if spec.Match.Protocol != 0 {
		match.SetIPProtocol(spec.Match.Protocol)
	}
	if spec.Match.SrcPort != 0 {
		match.SetSrcPort(spec.Match.SrcPort)
	}
	if spec.Match.DstPort != 0 {
		match.SetDstPort(spec.Match.DstPort)
	}
	if err := match.Error(); err != nil {
		return nil, errors.Wrapf(err, "invalid match: %v", spec.Match)
	}

	flow := f.NewFlowMod(cmd)
	flow.SetCookie(spec.Cookie)
	flow.SetTableID(0)
	flow.SetPriority(spec.Priority)
	flow.SetFlowMatch(match)
	if cmd != of13.OFPFC_ADD {
		// Strict delete of our own entry only.
		flow.SetCookieMask(0xFFFFFFFFFFFFFFFF)
		return flow, nil
	}

	flow.SetIdleTimeout(spec.IdleTimeout)
	flow.SetHardTimeout(0)
	// A drop entry has no instruction.
	if spec.Action == compiler.Forward {
		action := of13.NewAction()
		action.AddOutput(normalPort())
		flow.AddInstruction(&of13.ApplyAction{Action: action})
	}

	return flow, nil
}
