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
	"encoding/hex"
	"net"
	"testing"

	"github.com/kndrvt/acl-manager/openflow"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/go-cmp/cmp"
)

func mustDecodeHex(t *testing.T, s string) []byte {
	v, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("invalid hex string: %v", err)
	}

	return v
}

func TestPacketInDecode(t *testing.T) {
	packet := mustDecodeHex(t, "040a003800000007"+
		"ffffffff000e00000000000000002021"+
		"0001000c800000040000000300000000"+
		"0000"+
		"ffffffffffff0000000000010806")

	v := new(PacketIn)
	if err := v.UnmarshalBinary(packet); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.TransactionID() != 7 {
		t.Fatalf("unexpected xid: %v", v.TransactionID())
	}
	if v.InPort != 3 {
		t.Fatalf("unexpected ingress port: %v", v.InPort)
	}
	if v.Cookie != 0x2021 {
		t.Fatalf("unexpected cookie: %x", v.Cookie)
	}
	expected := mustDecodeHex(t, "ffffffffffff0000000000010806")
	if !bytes.Equal(v.Data, expected) {
		t.Fatalf("unexpected data: %v", spew.Sdump(v.Data))
	}
}

func TestPacketInTruncated(t *testing.T) {
	packet := mustDecodeHex(t, "040a001000000007ffffffff000e0000")
	if err := new(PacketIn).UnmarshalBinary(packet); err == nil {
		t.Fatal("expected an error for the truncated packet")
	}
}

func newHTTPMatch() *Match {
	match := NewMatch()
	match.SetEtherType(0x0800)
	match.SetIPProtocol(6)
	match.SetSrcIP(&net.IPNet{IP: net.IPv4(10, 0, 0, 1), Mask: net.CIDRMask(32, 32)})
	match.SetDstIP(&net.IPNet{IP: net.IPv4(10, 0, 0, 5), Mask: net.CIDRMask(32, 32)})
	match.SetDstPort(80)

	return match
}

func TestFlowModCodec(t *testing.T) {
	f := NewFactory()
	flow := f.NewFlowMod(OFPFC_ADD)
	flow.SetCookie(0x2021<<32 | 9)
	flow.SetPriority(905)
	flow.SetIdleTimeout(300)
	flow.SetFlowMatch(newHTTPMatch())
	action := NewAction()
	normal := openflow.NewOutPort()
	normal.SetNormal()
	action.AddOutput(normal)
	flow.AddInstruction(&ApplyAction{Action: action})

	packet, err := flow.MarshalBinary()
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	if len(packet) != 112 {
		t.Fatalf("unexpected FLOW_MOD length: %v", len(packet))
	}

	decoded := new(FlowMod)
	if err := decoded.UnmarshalBinary(packet); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if decoded.Cookie() != flow.Cookie() || decoded.Priority() != 905 || decoded.IdleTimeout() != 300 {
		t.Fatalf("unexpected FLOW_MOD: %v", spew.Sdump(decoded))
	}
	if decoded.Command() != OFPFC_ADD || decoded.Flags() != OFPFF_SEND_FLOW_REM {
		t.Fatalf("unexpected command or flags: %v, %v", decoded.Command(), decoded.Flags())
	}
	if diff := cmp.Diff(flow.FlowMatch().String(), decoded.FlowMatch().String()); diff != "" {
		t.Fatalf("mismatched match (-want +got):\n%v", diff)
	}
	if len(decoded.Instructions()) != 1 {
		t.Fatalf("unexpected instructions: %v", spew.Sdump(decoded.Instructions()))
	}
	apply, ok := decoded.Instructions()[0].(*ApplyAction)
	if !ok || len(apply.Action.Outputs()) != 1 || !apply.Action.Outputs()[0].IsNormal() {
		t.Fatalf("unexpected apply action: %v", spew.Sdump(decoded.Instructions()))
	}
}

func TestDropFlowHasNoInstruction(t *testing.T) {
	flow := NewFlowMod(1, OFPFC_ADD)
	flow.SetFlowMatch(newHTTPMatch())
	packet, err := flow.MarshalBinary()
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	decoded := new(FlowMod)
	if err := decoded.UnmarshalBinary(packet); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if len(decoded.Instructions()) != 0 {
		t.Fatalf("drop flow should not have instructions: %v", spew.Sdump(decoded.Instructions()))
	}
}

func TestMatchPrerequisites(t *testing.T) {
	match := NewMatch()
	match.SetIPProtocol(6)
	if match.Error() == nil {
		t.Fatal("expected an error for the IP protocol without the ethernet type")
	}
	if _, err := match.MarshalBinary(); err == nil {
		t.Fatal("expected a marshal error")
	}

	match = NewMatch()
	match.SetEtherType(0x0800)
	match.SetIPProtocol(1)
	match.SetDstPort(80)
	if match.Error() == nil {
		t.Fatal("expected an error for the L4 port of ICMP")
	}
}

func TestMatchMaskedIP(t *testing.T) {
	_, network, err := net.ParseCIDR("10.0.0.0/24")
	if err != nil {
		t.Fatal(err)
	}
	match := NewMatch()
	match.SetEtherType(0x0800)
	match.SetSrcIP(network)

	packet, err := match.MarshalBinary()
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	if len(packet)%8 != 0 {
		t.Fatalf("match is not aligned: length=%v", len(packet))
	}

	decoded := NewMatch()
	if err := decoded.UnmarshalBinary(packet); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	wildcard, ip := decoded.SrcIP()
	if wildcard || ip.String() != "10.0.0.0/24" {
		t.Fatalf("unexpected source IP: wildcard=%v, ip=%v", wildcard, ip)
	}
}

func TestPacketOutCodec(t *testing.T) {
	out := NewPacketOut(3)
	inPort := openflow.NewInPort()
	inPort.SetValue(2)
	out.SetInPort(inPort)
	port := openflow.NewOutPort()
	port.SetNormal()
	out.Action().AddOutput(port)
	out.SetData([]byte{0xde, 0xad, 0xbe, 0xef})

	packet, err := out.MarshalBinary()
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	decoded := new(PacketOut)
	if err := decoded.UnmarshalBinary(packet); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if decoded.InPort().IsController() || decoded.InPort().Value() != 2 {
		t.Fatalf("unexpected ingress port: %+v", decoded.InPort())
	}
	if len(decoded.Action().Outputs()) != 1 || decoded.Action().Outputs()[0].String() != "NORMAL" {
		t.Fatalf("unexpected action: %v", spew.Sdump(decoded.Action()))
	}
	if diff := cmp.Diff([]byte{0xde, 0xad, 0xbe, 0xef}, decoded.Data()); diff != "" {
		t.Fatalf("mismatched data (-want +got):\n%v", diff)
	}
}

func TestPortDescReply(t *testing.T) {
	ports := []Port{
		{Number: 1, MAC: net.HardwareAddr{0, 0, 0, 0, 0, 1}, Name: "s1-eth1"},
		{Number: 2, MAC: net.HardwareAddr{0, 0, 0, 0, 0, 2}, Name: "s1-eth2", State: OFPPS_LINK_DOWN},
	}
	body := make([]byte, multipartHeaderLength)
	body[1] = byte(OFPMP_PORT_DESC)
	for _, p := range ports {
		b, err := p.MarshalBinary()
		if err != nil {
			t.Fatalf("failed to marshal a port: %v", err)
		}
		body = append(body, b...)
	}
	msg := openflow.NewMessage(openflow.OF13_VERSION, OFPT_MULTIPART_REPLY, 5)
	msg.SetPayload(body)
	packet, err := msg.MarshalBinary()
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	if mp, err := MultipartType(packet); err != nil || mp != OFPMP_PORT_DESC {
		t.Fatalf("unexpected multipart type: %v, %v", mp, err)
	}
	reply := new(PortDescReply)
	if err := reply.UnmarshalBinary(packet); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if diff := cmp.Diff(ports, reply.Ports); diff != "" {
		t.Fatalf("mismatched ports (-want +got):\n%v", diff)
	}
	if !reply.Ports[0].IsUp() || reply.Ports[1].IsUp() {
		t.Fatalf("unexpected port status: %v", spew.Sdump(reply.Ports))
	}
}
