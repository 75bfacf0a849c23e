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
	"encoding"
	"errors"
	"net"
	"time"

	"github.com/kndrvt/acl-manager/openflow"
	"github.com/kndrvt/acl-manager/openflow/of13"
	"github.com/kndrvt/acl-manager/openflow/transceiver"
	"github.com/kndrvt/acl-manager/protocol"
	"github.com/kndrvt/acl-manager/topology"

	pkgerrors "github.com/pkg/errors"
	"golang.org/x/time/rate"
)

var (
	errNotNegotiated = errors.New("invalid command on non-negotiated session")
)

const (
	streamBufferSize = 0xFFFF
)

type session struct {
	negotiated  bool
	controller  *Controller
	device      *Device
	transceiver *transceiver.Transceiver
	pending     *pending
	limiter     *rate.Limiter
	// Packet-ins other than LLDP are dropped until this time.
	readyAt time.Time
	// A cancel function to disconnect this session.
	canceller context.CancelFunc
}

func newSession(c *Controller, conn net.Conn) *session {
	if c == nil {
		panic("Controller is nil")
	}
	if conn == nil {
		panic("Conn is nil")
	}

	v := new(session)
	v.controller = c
	v.pending = newPending()
	v.limiter = rate.NewLimiter(rate.Limit(c.cfg.PacketInRate), c.cfg.PacketInBurst)
	v.device = newDevice(v)
	v.transceiver = transceiver.NewTransceiver(transceiver.NewStream(conn, streamBufferSize), v)

	return v
}

func (r *session) factory() *of13.Factory {
	return r.transceiver.Factory()
}

func (r *session) Write(msg encoding.BinaryMarshaler) error {
	return r.transceiver.Write(msg)
}

// sendBarrier sends a barrier request that no flow-mod waits for.
func (r *session) sendBarrier(f *of13.Factory, w transceiver.Writer) error {
	msg := f.NewBarrierRequest()
	r.pending.addBarrier(msg.TransactionID())

	return w.Write(msg)
}

func (r *session) OnHello(f *of13.Factory, w transceiver.Writer, v *of13.Hello) error {
	logger.Debugf("HELLO (ver=%v) is received", v.Version())

	// Ignore duplicated HELLO messages
	if r.negotiated {
		return nil
	}
	r.negotiated = true

	if err := w.Write(f.NewHello()); err != nil {
		return pkgerrors.Wrap(err, "failed to send HELLO")
	}
	if err := w.Write(f.NewSetConfig()); err != nil {
		return pkgerrors.Wrap(err, "failed to send SET_CONFIG")
	}
	if err := w.Write(f.NewFeaturesRequest()); err != nil {
		return pkgerrors.Wrap(err, "failed to send FEATURES_REQUEST")
	}
	if err := r.sendBarrier(f, w); err != nil {
		return pkgerrors.Wrap(err, "failed to send BARRIER_REQUEST")
	}
	if err := sendRemovingAllFlows(f, w); err != nil {
		return pkgerrors.Wrap(err, "failed to send FLOW_MOD to remove all flows")
	}
	// Make sure that the installed flows are removed before the default pipeline is installed
	if err := r.sendBarrier(f, w); err != nil {
		return pkgerrors.Wrap(err, "failed to send BARRIER_REQUEST")
	}
	if err := installPipeline(f, w, r.controller.cfg.ServicePorts); err != nil {
		return err
	}
	if err := w.Write(f.NewDescRequest()); err != nil {
		return pkgerrors.Wrap(err, "failed to send DESCRIPTION_REQUEST")
	}
	// Make sure that DESCRIPTION_REPLY is received before PORT_DESCRIPTION_REPLY
	if err := r.sendBarrier(f, w); err != nil {
		return pkgerrors.Wrap(err, "failed to send BARRIER_REQUEST")
	}
	if err := w.Write(f.NewPortDescRequest()); err != nil {
		return pkgerrors.Wrap(err, "failed to send PORT_DESCRIPTION_REQUEST")
	}

	return nil
}

func (r *session) OnError(f *of13.Factory, w transceiver.Writer, v *of13.Error) error {
	if !r.negotiated {
		return errNotNegotiated
	}

	// Is this the CHECK_OVERLAP error?
	if v.IsOverlap() {
		// Ignore this CHECK_OVERLAP error
		logger.Debug("FLOW_MOD is overlapped")
		return nil
	}
	if r.pending.fail(v.TransactionID(), v) {
		logger.Warningf("flow-mod is rejected by %016x: %v", r.device.DPID(), v)
		return nil
	}
	logger.Errorf("ERROR (class=%v, code=%v, xid=%v, data=%v)", v.Class, v.Code, v.TransactionID(), v.Data)

	return nil
}

func (r *session) OnFeaturesReply(f *of13.Factory, w transceiver.Writer, v *of13.FeaturesReply) error {
	logger.Debugf("FEATURES_REPLY (DPID=%v, NumBufs=%v, NumTables=%v)", v.DPID, v.NumBuffers, v.NumTables)

	if !r.negotiated {
		return errNotNegotiated
	}
	// Already initialized device. Ignore the additional one.
	if r.device.isValid() {
		return nil
	}

	r.device.setFeatures(Features{
		DPID:       v.DPID,
		NumBuffers: v.NumBuffers,
		NumTables:  v.NumTables,
	})
	// Sometimes, a switch tries to make a new fresh connection even if it
	// already has a main connection. The new one wins.
	if cancel, ok := r.controller.cancellers.push(v.DPID, r, r.canceller); ok {
		logger.Warningf("duplicated device DPID %016x: disconnecting the previous session", v.DPID)
		cancel()
	}

	return nil
}

func (r *session) OnBarrierReply(f *of13.Factory, w transceiver.Writer, v *of13.BarrierReply) error {
	if !r.pending.complete(v.TransactionID()) {
		logger.Criticalf("unexpected BARRIER_REPLY from %016x: xid=%v", r.device.DPID(), v.TransactionID())
	}

	return nil
}

func (r *session) OnDescReply(f *of13.Factory, w transceiver.Writer, v *of13.DescReply) error {
	logger.Debug("DESC_REPLY is received")

	if !r.negotiated {
		return errNotNegotiated
	}

	logger.Debugf("Manufacturer=%v, Hardware=%v, Software=%v, Serial=%v", v.Manufacturer, v.Hardware, v.Software, v.Serial)
	r.device.setDescriptions(Descriptions{
		Manufacturer: v.Manufacturer,
		Hardware:     v.Hardware,
		Software:     v.Software,
		Serial:       v.Serial,
		Description:  v.Description,
	})

	return nil
}

func (r *session) OnPortDescReply(f *of13.Factory, w transceiver.Writer, v *of13.PortDescReply) error {
	logger.Debugf("PORT_DESC_REPLY is received (# of ports=%v)", len(v.Ports))

	if !r.negotiated {
		return errNotNegotiated
	}
	if !r.device.isValid() {
		return errors.New("PORT_DESC_REPLY before FEATURES_REPLY")
	}

	first := r.readyAt.IsZero()
	var changed []of13.Port
	for _, p := range v.Ports {
		if !p.IsPhysical() {
			continue
		}
		if r.device.updatePort(p) {
			changed = append(changed, p)
		}
	}

	dpid := r.device.DPID()
	listener := r.controller.eventListener()
	if first {
		// Give LLDP a chance to discover the links before we learn hosts.
		r.readyAt = time.Now().Add(r.controller.cfg.Warmup)
		logger.Infof("device is up: DPID=%016x, # of ports=%v", dpid, len(r.device.Ports()))
		if listener != nil {
			listener.OnSwitchUp(dpid, openflow.OF13_VERSION, r.device.topologyPorts())
		}
	} else {
		for _, p := range changed {
			if !p.IsUp() {
				r.withdrawTransit(p.Number)
			}
			if listener != nil {
				listener.OnPortChange(dpid, toTopologyPort(p))
			}
		}
	}

	// Send LLDP to update network topology
	for _, p := range r.device.Ports() {
		if !p.IsUp() {
			continue
		}
		if err := sendLLDP(r.device, p); err != nil {
			logger.Errorf("failed to send LLDP: %v", err)
		}
	}

	return nil
}

func (r *session) OnPortStatus(f *of13.Factory, w transceiver.Writer, v *of13.PortStatus) error {
	logger.Debug("PORT_STATUS is received")

	if !r.negotiated {
		return errNotNegotiated
	}
	port := v.Port
	if !port.IsPhysical() || !r.device.isValid() {
		return nil
	}
	logger.Debugf("Device=%016x, PortNum=%v, AdminUp=%v, LinkUp=%v", r.device.DPID(), port.Number, !port.IsPortDown(), !port.IsLinkDown())

	if v.Reason == of13.OFPPR_DELETE {
		r.device.removePort(port.Number)
		// A deleted port is a down port.
		port.Config |= of13.OFPPC_PORT_DOWN
	} else {
		r.device.updatePort(port)
	}
	if !port.IsUp() {
		r.withdrawTransit(port.Number)
	}
	if listener := r.controller.eventListener(); listener != nil {
		listener.OnPortChange(r.device.DPID(), toTopologyPort(port))
	}

	// Is this an enabled port?
	if port.IsUp() && v.Reason != of13.OFPPR_DELETE {
		// Send LLDP to update network topology
		if err := sendLLDP(r.device, port); err != nil {
			return err
		}
	}

	return nil
}

func (r *session) OnFlowRemoved(f *of13.Factory, w transceiver.Writer, v *of13.FlowRemoved) error {
	logger.Debugf("FLOW_REMOVED is received (cookie=0x%x, reason=%v)", v.Cookie, v.Reason)

	if !r.negotiated {
		return errNotNegotiated
	}
	if listener := r.controller.eventListener(); listener != nil && r.device.isValid() {
		listener.OnFlowRemoved(r.device.DPID(), v.Cookie, v.Reason == of13.OFPRR_DELETE)
	}

	return nil
}

func getEthernet(packet []byte) (*protocol.Ethernet, error) {
	eth := new(protocol.Ethernet)
	if err := eth.UnmarshalBinary(packet); err != nil {
		return nil, err
	}

	return eth, nil
}

func (r *session) handleLLDP(inPort uint32, ethernet *protocol.Ethernet) error {
	lldp := new(protocol.LLDP)
	if err := lldp.UnmarshalBinary(ethernet.Payload); err != nil {
		return err
	}
	dpid, portNum, err := extractDeviceInfo(lldp)
	if err != nil {
		// Do nothing if this packet is not the one we sent
		logger.Info("ignoring a LLDP packet issued by an unknown device")
		return nil
	}
	neighbor, ok := r.controller.device(dpid)
	if !ok {
		logger.Warningf("ignoring a LLDP packet: failed to find a neighbor device: DPID=%016x", dpid)
		return nil
	}
	if _, ok := neighbor.Port(portNum); !ok {
		logger.Warningf("ignoring a LLDP packet: failed to find a neighbor port: DPID=%016x, portNum=%v", dpid, portNum)
		return nil
	}

	local := topology.Location{DPID: r.device.DPID(), Port: inPort}
	remote := topology.Location{DPID: dpid, Port: portNum}
	r.setTransit(r.device, local, remote)
	r.setTransit(neighbor, remote, local)
	if listener := r.controller.eventListener(); listener != nil {
		listener.OnLinkDiscovered(topology.Link{A: local, B: remote})
	}

	return nil
}

// setTransit installs the transit flow at the local end of a link. If the
// local port has been linked to another switch port, the transit flow of that
// port is withdrawn unless it has been relinked to somewhere else.
func (r *session) setTransit(d *Device, local, remote topology.Location) {
	prev, replaced, err := d.installTransit(local.Port, remote)
	if err != nil {
		logger.Errorf("failed to install the transit flow: DPID=%016x, port=%v: %v", local.DPID, local.Port, err)
		return
	}
	if !replaced {
		return
	}
	logger.Infof("link is replaced: %v was linked to %v, and now to %v", local, prev, remote)

	old, ok := r.controller.device(prev.DPID)
	if !ok {
		return
	}
	linked := func(peer topology.Location) bool { return peer == local }
	if _, err := old.withdrawTransit(prev.Port, linked); err != nil {
		logger.Errorf("failed to withdraw the transit flow: DPID=%016x, port=%v: %v", prev.DPID, prev.Port, err)
	}
}

// withdrawTransit deletes the transit flow of a port that is not an
// inter-switch port anymore, so that its traffic is classified again.
func (r *session) withdrawTransit(port uint32) {
	ok, err := r.device.withdrawTransit(port, nil)
	if err != nil {
		logger.Errorf("failed to withdraw the transit flow: DPID=%016x, port=%v: %v", r.device.DPID(), port, err)
		return
	}
	if ok {
		logger.Infof("withdrew the transit flow: DPID=%016x, port=%v", r.device.DPID(), port)
	}
}

func (r *session) OnPacketIn(f *of13.Factory, w transceiver.Writer, v *of13.PacketIn) error {
	if !r.negotiated {
		return errNotNegotiated
	}
	if !r.device.isValid() {
		return nil
	}
	logger.Debugf("PACKET_IN is received (device=%016x, inport=%v, reason=%v, tableID=%v, cookie=0x%x)",
		r.device.DPID(), v.InPort, v.Reason, v.TableID, v.Cookie)

	ethernet, err := getEthernet(v.Data)
	if err != nil {
		logger.Debugf("ignoring a malformed PACKET_IN: %v", err)
		return nil
	}
	// Process LLDP, and then add an edge among two switches
	if ethernet.Type == protocol.EtherTypeLLDP {
		return r.handleLLDP(v.InPort, ethernet)
	}
	if r.readyAt.IsZero() || time.Now().Before(r.readyAt) {
		logger.Debugf("ignoring PACKET_IN from %016x during the warm-up", r.device.DPID())
		return nil
	}
	if !r.limiter.Allow() {
		logger.Debugf("ignoring PACKET_IN from %016x: rate limit exceeded", r.device.DPID())
		return nil
	}

	if listener := r.controller.eventListener(); listener != nil {
		listener.OnPacketIn(r.device.DPID(), v.InPort, ethernet, v.Data)
	}

	return nil
}

func (r *session) Run(ctx context.Context) {
	sessionCtx, canceller := context.WithCancel(ctx)
	defer canceller()
	// This canceller will be used to disconnect this session when it is necessary.
	r.canceller = canceller

	stopExplorer := r.runDeviceExplorer(sessionCtx)
	logger.Debugf("started a new device explorer")

	if err := r.transceiver.Run(sessionCtx); err != nil {
		logger.Errorf("openflow transceiver is unexpectedly closed: %v", err)
	}
	logger.Infof("disconnected device (DPID=%016x)", r.device.DPID())

	stopExplorer()
	r.transceiver.Close()
	r.device.Close()
	if r.device.isValid() {
		dpid := r.device.DPID()
		// A newer session has replaced us if it fails.
		if r.controller.cancellers.pop(dpid, r) {
			if listener := r.controller.eventListener(); listener != nil {
				listener.OnSwitchDown(dpid)
			}
		}
	}
	if n := r.pending.failAll(ErrClosedDevice); n > 0 {
		logger.Infof("failed %v outstanding flow-mods of the closed session", n)
	}
}

// runDeviceExplorer queries the ports periodically. LLDP will also be
// delivered to the ports in the query reply handler.
func (r *session) runDeviceExplorer(ctx context.Context) context.CancelFunc {
	subCtx, canceller := context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(r.controller.cfg.ExplorerInterval)
		defer ticker.Stop()

		for {
			select {
			case <-subCtx.Done():
				logger.Debugf("terminating the device explorer: DPID=%016x", r.device.DPID())
				return
			case <-ticker.C:
			}

			if !r.device.isValid() {
				logger.Debug("skip to execute the device explorer due to incomplete device status")
				continue
			}
			if err := r.device.SendMessage(r.factory().NewPortDescRequest()); err != nil {
				logger.Errorf("failed to send a port description request: %v", err)
				continue
			}
			logger.Debugf("sent a PortDescriptionRequest packet to %016x", r.device.DPID())
		}
	}()

	return canceller
}
