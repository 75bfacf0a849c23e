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
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/kndrvt/acl-manager/compiler"
	"github.com/kndrvt/acl-manager/openflow/of13"
	"github.com/kndrvt/acl-manager/protocol"
	"github.com/kndrvt/acl-manager/topology"
)

const waitTimeout = 3 * time.Second

type removal struct {
	dpid    uint64
	cookie  uint64
	deleted bool
}

type listener struct {
	up       chan []topology.Port
	down     chan uint64
	packetIn chan uint32
	removed  chan removal
}

func newListener() *listener {
	return &listener{
		up:       make(chan []topology.Port, 8),
		down:     make(chan uint64, 8),
		packetIn: make(chan uint32, 8),
		removed:  make(chan removal, 8),
	}
}

func (r *listener) OnSwitchUp(dpid uint64, version uint8, ports []topology.Port) { r.up <- ports }

func (r *listener) OnSwitchDown(dpid uint64) { r.down <- dpid }

func (r *listener) OnPortChange(dpid uint64, port topology.Port) {}

func (r *listener) OnLinkDiscovered(link topology.Link) {}

func (r *listener) OnPacketIn(dpid uint64, inPort uint32, eth *protocol.Ethernet, frame []byte) {
	r.packetIn <- inPort
}

func (r *listener) OnFlowRemoved(dpid uint64, cookie uint64, deleted bool) {
	r.removed <- removal{dpid, cookie, deleted}
}

// fakeSwitch reads every message sent by the controller into a channel.
type fakeSwitch struct {
	conn net.Conn
	msgs chan []byte
	// Messages that expect has passed over.
	skipped [][]byte
}

func newFakeSwitch(conn net.Conn) *fakeSwitch {
	v := &fakeSwitch{conn: conn, msgs: make(chan []byte, 1024)}
	go func() {
		defer close(v.msgs)
		for {
			header := make([]byte, 8)
			if _, err := io.ReadFull(conn, header); err != nil {
				return
			}
			packet := make([]byte, binary.BigEndian.Uint16(header[2:4]))
			copy(packet, header)
			if _, err := io.ReadFull(conn, packet[8:]); err != nil {
				return
			}
			v.msgs <- packet
		}
	}()

	return v
}

func (r *fakeSwitch) send(t *testing.T, msgType uint8, xid uint32, body []byte) {
	packet := make([]byte, 8+len(body))
	packet[0] = 0x04
	packet[1] = msgType
	binary.BigEndian.PutUint16(packet[2:4], uint16(len(packet)))
	binary.BigEndian.PutUint32(packet[4:8], xid)
	copy(packet[8:], body)

	r.conn.SetWriteDeadline(time.Now().Add(waitTimeout))
	if _, err := r.conn.Write(packet); err != nil {
		t.Fatalf("failed to write: %v", err)
	}
}

// expect skips the messages until the one that f accepts.
func (r *fakeSwitch) expect(t *testing.T, what string, f func([]byte) bool) []byte {
	timer := time.NewTimer(waitTimeout)
	defer timer.Stop()

	for {
		select {
		case packet, ok := <-r.msgs:
			if !ok {
				t.Fatalf("connection is closed while waiting for %v", what)
			}
			if f(packet) {
				return packet
			}
			r.skipped = append(r.skipped, packet)
		case <-timer.C:
			t.Fatalf("timeout waiting for %v", what)
		}
	}
}

func isType(msgType uint8) func([]byte) bool {
	return func(p []byte) bool { return p[1] == msgType }
}

func isMultipart(mp uint16) func([]byte) bool {
	return func(p []byte) bool {
		return p[1] == of13.OFPT_MULTIPART_REQUEST && len(p) >= 10 && binary.BigEndian.Uint16(p[8:10]) == mp
	}
}

func isFlowMod(cookie uint64) func([]byte) bool {
	return func(p []byte) bool {
		return p[1] == of13.OFPT_FLOW_MOD && len(p) >= 16 && binary.BigEndian.Uint64(p[8:16]) == cookie
	}
}

func xid(p []byte) uint32 {
	return binary.BigEndian.Uint32(p[4:8])
}

func featuresReply(dpid uint64) []byte {
	v := make([]byte, 24)
	binary.BigEndian.PutUint64(v[0:8], dpid)
	binary.BigEndian.PutUint32(v[8:12], 256)
	v[12] = 254

	return v
}

func portDescReply(t *testing.T, ports ...of13.Port) []byte {
	v := make([]byte, 8)
	binary.BigEndian.PutUint16(v[0:2], of13.OFPMP_PORT_DESC)
	for _, p := range ports {
		b, err := p.MarshalBinary()
		if err != nil {
			t.Fatalf("failed to marshal a port: %v", err)
		}
		v = append(v, b...)
	}

	return v
}

func waitDone(t *testing.T, c <-chan error) error {
	select {
	case err := <-c:
		return err
	case <-time.After(waitTimeout):
		t.Fatal("timeout waiting for the flow-mod result")
	}

	return nil
}

func portStatus(t *testing.T, reason uint8, port of13.Port) []byte {
	b, err := port.MarshalBinary()
	if err != nil {
		t.Fatalf("failed to marshal a port: %v", err)
	}

	return append([]byte{reason, 0, 0, 0, 0, 0, 0, 0}, b...)
}

// packetIn returns the body of a PACKET_IN that carries frame from inPort.
func packetIn(inPort uint32, frame []byte) []byte {
	v := make([]byte, 16, 34+len(frame))
	binary.BigEndian.PutUint32(v[0:4], of13.OFP_NO_BUFFER)
	binary.BigEndian.PutUint16(v[4:6], uint16(len(frame)))
	// v[6] is the reason, and v[7] is the table ID.
	binary.BigEndian.PutUint64(v[8:16], pipelineCookie)

	match := make([]byte, 16)
	binary.BigEndian.PutUint16(match[0:2], of13.OFPMT_OXM)
	binary.BigEndian.PutUint16(match[2:4], 12)
	binary.BigEndian.PutUint16(match[4:6], of13.OFPXMC_OPENFLOW_BASIC)
	match[6] = of13.OFPXMT_OFB_IN_PORT << 1
	match[7] = 4
	binary.BigEndian.PutUint32(match[8:12], inPort)
	v = append(v, match...)
	// Padding
	v = append(v, 0, 0)

	return append(v, frame...)
}

func isTransitFlowMod(cmd uint8, port uint32) func([]byte) bool {
	return func(p []byte) bool {
		if !isFlowMod(pipelineCookie)(p) {
			return false
		}
		flow := new(of13.FlowMod)
		if err := flow.UnmarshalBinary(p); err != nil {
			return false
		}
		if flow.Command() != cmd || flow.Priority() != transitPriority {
			return false
		}
		wildcard, inPort := flow.FlowMatch().InPort()

		return !wildcard && inPort == port
	}
}

func testPort(num uint32) of13.Port {
	return of13.Port{Number: num, MAC: net.HardwareAddr{0x02, 0, 0, 0, byte(num >> 8), byte(num)}, Name: fmt.Sprintf("eth%v", num)}
}

func newTestController() (*Controller, *listener) {
	c := NewController(Config{ServicePorts: []uint16{80}, ExplorerInterval: time.Hour})
	l := newListener()
	c.SetEventListener(l)

	return c, l
}

// handshake runs a new session on c and completes the handshake of a switch
// that has the ports.
func handshake(ctx context.Context, t *testing.T, c *Controller, l *listener, dpid uint64, ports ...uint32) *fakeSwitch {
	conn, sw := net.Pipe()
	fake := newFakeSwitch(sw)
	c.AddConnection(ctx, conn)

	fake.send(t, of13.OFPT_HELLO, 1, nil)
	req := fake.expect(t, "FEATURES_REQUEST", isType(of13.OFPT_FEATURES_REQUEST))
	fake.send(t, of13.OFPT_FEATURES_REPLY, xid(req), featuresReply(dpid))
	req = fake.expect(t, "PORT_DESC_REQUEST", isMultipart(of13.OFPMP_PORT_DESC))
	desc := make([]of13.Port, 0, len(ports))
	for _, num := range ports {
		desc = append(desc, testPort(num))
	}
	fake.send(t, of13.OFPT_MULTIPART_REPLY, xid(req), portDescReply(t, desc...))

	select {
	case up := <-l.up:
		if len(up) != len(ports) {
			t.Fatalf("unexpected ports: %v", up)
		}
		for i, p := range up {
			if p.Number != ports[i] || !p.Up {
				t.Fatalf("unexpected ports: %v", up)
			}
		}
	case <-time.After(waitTimeout):
		t.Fatal("timeout waiting for the switch up event")
	}

	return fake
}

// connect runs a session and completes the handshake of a switch whose DPID is 1.
func connect(ctx context.Context, t *testing.T) (*Controller, *listener, *fakeSwitch) {
	c, l := newTestController()
	fake := handshake(ctx, t, c, l, 1, 1)

	return c, l, fake
}

// waitClosed waits until the controller disconnects the switch.
func (r *fakeSwitch) waitClosed(t *testing.T) {
	timer := time.NewTimer(waitTimeout)
	defer timer.Stop()

	for {
		select {
		case _, ok := <-r.msgs:
			if !ok {
				return
			}
		case <-timer.C:
			t.Fatal("timeout waiting for the disconnection")
		}
	}
}

func TestSessionHandshakeInstallsPipeline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, _, fake := connect(ctx, t)

	// The default flows have been passed over while waiting for the port query.
	seen := make(map[uint16]bool)
	for _, p := range fake.skipped {
		if !isFlowMod(pipelineCookie)(p) {
			continue
		}
		flow := new(of13.FlowMod)
		if err := flow.UnmarshalBinary(p); err != nil {
			t.Fatalf("failed to decode a default flow: %v", err)
		}
		seen[flow.Priority()] = true
	}
	for _, v := range []uint16{tableMissPriority, classifierPriority, arpPriority, lldpPriority} {
		if !seen[v] {
			t.Fatalf("missing default flow: priority=%v", v)
		}
	}
	if !isFlowMod(0)(fake.skipped[3]) && !isFlowMod(0)(fake.skipped[4]) {
		t.Fatalf("flow table is not cleared before the default flows")
	}

	// LLDP out of the up port.
	fake.expect(t, "LLDP", isType(of13.OFPT_PACKET_OUT))
}

func TestSessionFlowModResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c, _, fake := connect(ctx, t)

	spec := testSpec(compiler.Forward)
	done := make(chan error, 1)
	if err := c.InstallFlow(1, spec, func(err error) { done <- err }); err != nil {
		t.Fatalf("failed to install: %v", err)
	}
	fake.expect(t, "FLOW_MOD", isFlowMod(spec.Cookie))
	barrier := fake.expect(t, "BARRIER_REQUEST", isType(of13.OFPT_BARRIER_REQUEST))
	fake.send(t, of13.OFPT_BARRIER_REPLY, xid(barrier), nil)
	if err := waitDone(t, done); err != nil {
		t.Fatalf("unexpected result: %v", err)
	}

	// Rejected by the switch.
	spec.Cookie++
	if err := c.RemoveFlow(1, spec, func(err error) { done <- err }); err != nil {
		t.Fatalf("failed to remove: %v", err)
	}
	flow := fake.expect(t, "FLOW_MOD", isFlowMod(spec.Cookie))
	// OFPET_FLOW_MOD_FAILED, OFPFMFC_TABLE_FULL
	fake.send(t, of13.OFPT_ERROR, xid(flow), []byte{0x00, 0x05, 0x00, 0x01})
	err := waitDone(t, done)
	var ofErr *of13.Error
	if !errors.As(err, &ofErr) || ofErr.Class != of13.OFPET_FLOW_MOD_FAILED {
		t.Fatalf("unexpected result: %v", err)
	}

	if err := c.InstallFlow(2, spec, func(error) {}); err == nil {
		t.Fatal("expected an error for an unknown device")
	}
}

func TestSessionEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c, l, fake := connect(ctx, t)

	// FLOW_REMOVED by an idle timeout.
	body := make([]byte, 48)
	binary.BigEndian.PutUint64(body[0:8], 0x2021<<32|7)
	body[10] = of13.OFPRR_IDLE_TIMEOUT
	copy(body[40:], []byte{0x00, 0x01, 0x00, 0x04, 0x00, 0x00, 0x00, 0x00})
	fake.send(t, of13.OFPT_FLOW_REMOVED, 0, body)
	select {
	case v := <-l.removed:
		if v.dpid != 1 || v.cookie != 0x2021<<32|7 || v.deleted {
			t.Fatalf("unexpected FLOW_REMOVED event: %+v", v)
		}
	case <-time.After(waitTimeout):
		t.Fatal("timeout waiting for the FLOW_REMOVED event")
	}

	// ARP request from port 3.
	frame, _ := hex.DecodeString("ffffffffffff0000000000010806")
	fake.send(t, of13.OFPT_PACKET_IN, 7, packetIn(3, frame))
	select {
	case port := <-l.packetIn:
		if port != 3 {
			t.Fatalf("unexpected ingress port: %v", port)
		}
	case <-time.After(waitTimeout):
		t.Fatal("timeout waiting for the PACKET_IN event")
	}

	// An outstanding flow-mod fails when the switch goes away.
	done := make(chan error, 1)
	if err := c.InstallFlow(1, testSpec(compiler.Drop), func(err error) { done <- err }); err != nil {
		t.Fatalf("failed to install: %v", err)
	}
	fake.expect(t, "BARRIER_REQUEST", isType(of13.OFPT_BARRIER_REQUEST))
	fake.conn.Close()

	select {
	case dpid := <-l.down:
		if dpid != 1 {
			t.Fatalf("unexpected DPID: %v", dpid)
		}
	case <-time.After(waitTimeout):
		t.Fatal("timeout waiting for the switch down event")
	}
	if err := waitDone(t, done); err != ErrClosedDevice {
		t.Fatalf("unexpected result: %v", err)
	}
	if len(c.Devices()) != 0 {
		t.Fatalf("closed device is still listed")
	}
}

func TestSessionWithdrawsTransit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c, _, fake := connect(ctx, t)
	d, ok := c.device(1)
	if !ok {
		t.Fatal("device is not registered")
	}
	peer := topology.Location{DPID: 2, Port: 4}

	if _, _, err := d.installTransit(1, peer); err != nil {
		t.Fatalf("failed to install the transit flow: %v", err)
	}
	fake.expect(t, "transit flow", isTransitFlowMod(of13.OFPFC_ADD, 1))

	// The link goes down. The port has to be classified again.
	down := testPort(1)
	down.State = of13.OFPPS_LINK_DOWN
	fake.send(t, of13.OFPT_PORT_STATUS, 0, portStatus(t, of13.OFPPR_MODIFY, down))
	fake.expect(t, "transit removal on link down", isTransitFlowMod(of13.OFPFC_DELETE_STRICT, 1))

	if _, _, err := d.installTransit(1, peer); err != nil {
		t.Fatalf("failed to install the transit flow: %v", err)
	}
	fake.expect(t, "transit flow", isTransitFlowMod(of13.OFPFC_ADD, 1))

	fake.send(t, of13.OFPT_PORT_STATUS, 0, portStatus(t, of13.OFPPR_DELETE, testPort(1)))
	fake.expect(t, "transit removal on port deletion", isTransitFlowMod(of13.OFPFC_DELETE_STRICT, 1))
}

func TestSessionReplacedLinkWithdrawsTransit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c, l := newTestController()
	s1 := handshake(ctx, t, c, l, 1, 1)
	s2 := handshake(ctx, t, c, l, 2, 1, 2)

	lldp := func(dpid uint64, port uint32) []byte {
		frame, err := newLLDPEtherFrame(dpid, testPort(port))
		if err != nil {
			t.Fatalf("failed to build LLDP: %v", err)
		}
		return packetIn(1, frame)
	}

	// s1:1 <-> s2:1
	s1.send(t, of13.OFPT_PACKET_IN, 0, lldp(2, 1))
	s1.expect(t, "transit flow on s1", isTransitFlowMod(of13.OFPFC_ADD, 1))
	s2.expect(t, "transit flow on s2", isTransitFlowMod(of13.OFPFC_ADD, 1))

	// The cable is moved: s1:1 <-> s2:2
	s1.send(t, of13.OFPT_PACKET_IN, 0, lldp(2, 2))
	s2.expect(t, "transit removal on the old peer", isTransitFlowMod(of13.OFPFC_DELETE_STRICT, 1))
	s2.expect(t, "transit flow on the new peer", isTransitFlowMod(of13.OFPFC_ADD, 2))
}

func TestSessionDuplicateDPID(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c, l := newTestController()
	first := handshake(ctx, t, c, l, 1, 1)
	second := handshake(ctx, t, c, l, 1, 1)

	// The new session wins, and the previous one goes away silently.
	first.waitClosed(t)
	select {
	case dpid := <-l.down:
		t.Fatalf("superseded session reported %016x down", dpid)
	case <-time.After(200 * time.Millisecond):
	}
	if n := len(c.Devices()); n != 1 {
		t.Fatalf("unexpected number of devices: %v", n)
	}

	spec := testSpec(compiler.Forward)
	if err := c.InstallFlow(1, spec, func(error) {}); err != nil {
		t.Fatalf("failed to install: %v", err)
	}
	second.expect(t, "FLOW_MOD on the new session", isFlowMod(spec.Cookie))

	second.conn.Close()
	select {
	case dpid := <-l.down:
		if dpid != 1 {
			t.Fatalf("unexpected DPID: %v", dpid)
		}
	case <-time.After(waitTimeout):
		t.Fatal("timeout waiting for the switch down event")
	}
}
