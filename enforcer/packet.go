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

package enforcer

import (
	"net"

	"github.com/kndrvt/acl-manager/acl"
	"github.com/kndrvt/acl-manager/compiler"
	"github.com/kndrvt/acl-manager/protocol"
	"github.com/kndrvt/acl-manager/topology"
)

// OnPacketIn handles a packet punted by the classifier flows of the switch.
// frame is the whole Ethernet frame that eth has been decoded from.
func (r *Engine) OnPacketIn(dpid uint64, inPort uint32, eth *protocol.Ethernet, frame []byte) {
	switch eth.Type {
	case protocol.EtherTypeARP:
		r.handleARP(dpid, inPort, eth)
	case protocol.EtherTypeIPv4:
		r.handleIPv4(dpid, inPort, eth, frame)
	default:
		logger.Debugf("ignore a packet-in: dpid=%016x, inPort=%v, ethType=0x%04x", dpid, inPort, eth.Type)
	}
}

func (r *Engine) handleARP(dpid uint64, inPort uint32, eth *protocol.Ethernet) {
	arp := new(protocol.ARP)
	if err := arp.UnmarshalBinary(eth.Payload); err != nil {
		logger.Debugf("invalid ARP packet: dpid=%016x, inPort=%v: %v", dpid, inPort, err)
		return
	}
	// ARP probe.
	if arp.SPA.Equal(net.IPv4zero) {
		return
	}
	r.sighting(dpid, inPort, arp.SHA, arp.SPA)
}

// sighting learns the host location if the packet came in from an edge port.
func (r *Engine) sighting(dpid uint64, inPort uint32, mac net.HardwareAddr, ip net.IP) {
	if !r.topo.IsEdge(dpid, inPort) {
		return
	}
	updated := r.topo.OnHostSighting(topology.Sighting{
		MAC:  mac,
		IP:   ip,
		DPID: dpid,
		Port: inPort,
		Time: r.now(),
	})
	// The entries compiled with the previous location are no longer valid.
	if updated {
		r.Trigger()
	}
}

func (r *Engine) handleIPv4(dpid uint64, inPort uint32, eth *protocol.Ethernet, frame []byte) {
	ip := new(protocol.IPv4)
	if err := ip.UnmarshalBinary(eth.Payload); err != nil {
		logger.Debugf("invalid IPv4 packet: dpid=%016x, inPort=%v: %v", dpid, inPort, err)
		return
	}
	r.sighting(dpid, inPort, eth.SrcMAC, ip.SrcIP)

	t, ok := flowTuple(eth, ip)
	if !ok {
		logger.Debugf("ignore a non-service IPv4 packet: %v", ip)
		return
	}
	d := r.store.Evaluate(t)
	r.emit(Event{Kind: EventDecision, DPID: dpid, Key: t.String(), Rule: d.RuleID(), Verdict: d.Verdict})
	r.tuples.Add(t.Key(), t)

	entries, err := r.compile(d, t)
	if err != nil {
		r.emit(Event{Kind: EventFallback, DPID: dpid, Key: t.String(), Rule: d.RuleID(), Verdict: d.Verdict, Err: err})
		r.dispose(dpid, inPort, eth, ip, frame, d.Verdict == acl.VerdictAllow)
		return
	}

	if !r.recent.Seen(t, d.Epoch) {
		r.recent.Add(t, d.Epoch)
		for _, v := range entries {
			r.submit(r.desire(v, false))
		}
	}
	r.dispose(dpid, inPort, eth, ip, frame, d.Verdict == acl.VerdictAllow && !r.anyFailed(entries))
}

func flowTuple(eth *protocol.Ethernet, ip *protocol.IPv4) (acl.FlowTuple, bool) {
	// No transport header in the non-first fragments.
	if ip.IsFragment() {
		return acl.FlowTuple{}, false
	}

	t := acl.FlowTuple{
		SrcMAC:   append(net.HardwareAddr(nil), eth.SrcMAC...),
		DstMAC:   append(net.HardwareAddr(nil), eth.DstMAC...),
		SrcIP:    append(net.IP(nil), ip.SrcIP.To4()...),
		DstIP:    append(net.IP(nil), ip.DstIP.To4()...),
		Protocol: ip.Protocol,
	}
	switch ip.Protocol {
	case protocol.IPProtocolTCP:
		tcp := new(protocol.TCP)
		if err := tcp.UnmarshalBinary(ip.Payload); err != nil {
			return acl.FlowTuple{}, false
		}
		t.DstPort = tcp.DstPort
	case protocol.IPProtocolUDP:
		udp := new(protocol.UDP)
		if err := udp.UnmarshalBinary(ip.Payload); err != nil {
			return acl.FlowTuple{}, false
		}
		t.DstPort = udp.DstPort
	default:
		return acl.FlowTuple{}, false
	}

	return t, true
}

// locate finds the host by its MAC address first, and then by its IP address.
func (r *Engine) locate(mac net.HardwareAddr, ip net.IP) (topology.Location, bool) {
	if loc, ok := r.topo.Locate(mac); ok {
		return loc, true
	}
	host, ok := r.topo.LocateIP(ip)
	if !ok || host.Stale {
		return topology.Location{}, false
	}

	return host.Location(), true
}

func (r *Engine) compile(d acl.Decision, t acl.FlowTuple) ([]compiler.FlowEntry, error) {
	src, srcKnown := r.locate(t.SrcMAC, t.SrcIP)
	dst, dstKnown := r.locate(t.DstMAC, t.DstIP)
	if srcKnown && dstKnown && src.DPID != dst.DPID && !r.topo.Reachable(src.DPID, dst.DPID) {
		return nil, compiler.ErrIncompleteTopology
	}

	return r.compiler.Compile(d, t, src, dst, srcKnown, dstKnown)
}

func (r *Engine) anyFailed(entries []compiler.FlowEntry) bool {
	for _, v := range entries {
		if state, ok := r.State(v.Key()); ok && state == Failed {
			return true
		}
	}

	return false
}

// dispose forwards the packet that triggered the packet-in, or drops it.
func (r *Engine) dispose(dpid uint64, inPort uint32, eth *protocol.Ethernet, ip *protocol.IPv4, frame []byte, forward bool) {
	if forward {
		if err := r.bus.PacketOut(dpid, inPort, frame); err != nil {
			logger.Errorf("failed to send a packet-out: dpid=%016x, inPort=%v: %v", dpid, inPort, err)
		}
		return
	}
	if !r.cfg.ICMPReject {
		return
	}
	if err := r.reject(dpid, inPort, eth, ip); err != nil {
		logger.Errorf("failed to send an ICMP reject: dpid=%016x, inPort=%v: %v", dpid, inPort, err)
	}
}

// reject sends ICMP destination unreachable (communication administratively
// prohibited) back to the sender of the denied packet.
func (r *Engine) reject(dpid uint64, inPort uint32, eth *protocol.Ethernet, ip *protocol.IPv4) error {
	icmp, err := protocol.NewICMPAdminProhibited(ip).MarshalBinary()
	if err != nil {
		return err
	}
	packet, err := protocol.NewIPv4(ip.DstIP, ip.SrcIP, protocol.IPProtocolICMP, icmp).MarshalBinary()
	if err != nil {
		return err
	}
	reply := protocol.Ethernet{
		SrcMAC:  eth.DstMAC,
		DstMAC:  eth.SrcMAC,
		VLANID:  eth.VLANID,
		Type:    protocol.EtherTypeIPv4,
		Payload: packet,
	}
	frame, err := reply.MarshalBinary()
	if err != nil {
		return err
	}

	return r.bus.SendToPort(dpid, inPort, frame)
}
