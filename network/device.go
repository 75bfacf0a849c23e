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
	"encoding"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/kndrvt/acl-manager/compiler"
	"github.com/kndrvt/acl-manager/openflow"
	"github.com/kndrvt/acl-manager/openflow/of13"
	"github.com/kndrvt/acl-manager/topology"
)

type Descriptions struct {
	Manufacturer string
	Hardware     string
	Software     string
	Serial       string
	Description  string
}

type Features struct {
	DPID       uint64
	NumBuffers uint32
	NumTables  uint8
}

// Device is a switch connected through a session.
type Device struct {
	mutex        sync.RWMutex
	session      *session
	valid        bool
	descriptions Descriptions
	features     Features
	ports        map[uint32]of13.Port
	// Inter-switch ports that have a transit flow, and the other ends of
	// their links.
	transit     map[uint32]topology.Location
	connectedAt time.Time
	closed      bool
}

var (
	ErrClosedDevice  = errors.New("already closed device")
	ErrUnknownDevice = errors.New("unknown device")
)

func newDevice(s *session) *Device {
	if s == nil {
		panic("Session is nil")
	}

	return &Device{
		session:     s,
		ports:       make(map[uint32]of13.Port),
		transit:     make(map[uint32]topology.Location),
		connectedAt: time.Now(),
	}
}

func (r *Device) String() string {
	// Read lock
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	v := fmt.Sprintf("Device DPID=%016x, Descriptions=%+v, Features=%+v, # of ports=%v, Connected=%v\n", r.features.DPID, r.descriptions, r.features, len(r.ports), !r.closed)
	for _, p := range r.sortedPorts() {
		v += fmt.Sprintf("\t%v\n", p.String())
	}

	return v
}

func (r *Device) DPID() uint64 {
	// Read lock
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return r.features.DPID
}

// isValid returns true after we have got the DPID of the device.
func (r *Device) isValid() bool {
	// Read lock
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return r.valid
}

func (r *Device) ConnectedAt() time.Time {
	// Read lock
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return r.connectedAt
}

func (r *Device) Descriptions() Descriptions {
	// Read lock
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return r.descriptions
}

func (r *Device) setDescriptions(d Descriptions) {
	// Write lock
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.descriptions = d
}

func (r *Device) Features() Features {
	// Read lock
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return r.features
}

func (r *Device) setFeatures(f Features) {
	// Write lock
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.features = f
	r.valid = true
}

// Port returns false if there is no port whose number is num.
func (r *Device) Port(num uint32) (of13.Port, bool) {
	// Read lock
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	p, ok := r.ports[num]
	return p, ok
}

func (r *Device) Ports() []of13.Port {
	// Read lock
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return r.sortedPorts()
}

// A caller should make sure the mutex is locked before calling this function.
func (r *Device) sortedPorts() []of13.Port {
	v := make([]of13.Port, 0, len(r.ports))
	for _, p := range r.ports {
		v = append(v, p)
	}
	sort.Slice(v, func(i, j int) bool { return v[i].Number < v[j].Number })

	return v
}

// updatePort stores p, and returns true if the port is new or its state has
// changed.
func (r *Device) updatePort(p of13.Port) (changed bool) {
	// Write lock
	r.mutex.Lock()
	defer r.mutex.Unlock()

	prev, ok := r.ports[p.Number]
	r.ports[p.Number] = p

	return !ok || prev.IsUp() != p.IsUp()
}

func (r *Device) removePort(num uint32) {
	// Write lock
	r.mutex.Lock()
	defer r.mutex.Unlock()

	delete(r.ports, num)
}

func toTopologyPort(p of13.Port) topology.Port {
	return topology.Port{
		Number: p.Number,
		MAC:    append(net.HardwareAddr(nil), p.MAC...),
		Name:   p.Name,
		Up:     p.IsUp(),
	}
}

func (r *Device) topologyPorts() []topology.Port {
	ports := r.Ports()
	v := make([]topology.Port, 0, len(ports))
	for _, p := range ports {
		v = append(v, toTopologyPort(p))
	}

	return v
}

func (r *Device) SendMessage(msg encoding.BinaryMarshaler) error {
	// Write lock
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if msg == nil {
		panic("Message is nil")
	}
	if r.closed {
		return ErrClosedDevice
	}

	return r.session.Write(msg)
}

func (r *Device) IsClosed() bool {
	// Read lock
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return r.closed
}

// sendFlowMod sends a flow-mod followed by a barrier request. done is called
// when the barrier reply or an error for the flow-mod arrives, unless
// sendFlowMod returns an error.
func (r *Device) sendFlowMod(cmd uint8, spec compiler.FlowSpec, done func(error)) error {
	// Write lock
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.closed {
		return ErrClosedDevice
	}

	f := r.session.factory()
	flow, err := newFlowMod(f, cmd, spec)
	if err != nil {
		return err
	}
	barrier := f.NewBarrierRequest()
	r.session.pending.add(flow.TransactionID(), barrier.TransactionID(), done)
	if err := r.session.Write(flow); err != nil {
		return r.abandon(flow.TransactionID(), err)
	}
	if err := r.session.Write(barrier); err != nil {
		return r.abandon(flow.TransactionID(), err)
	}

	return nil
}

// abandon forgets the flow-mod that has not been sent completely. If the
// session has already failed it, done has been called and the error is
// swallowed so that the caller does not count the failure twice.
func (r *Device) abandon(flowMod uint32, err error) error {
	if !r.session.pending.remove(flowMod) {
		logger.Debugf("flow-mod (xid=%v) has been failed by the closing session: %v", flowMod, err)
		return nil
	}

	return err
}

func (r *Device) InstallFlow(spec compiler.FlowSpec, done func(error)) error {
	return r.sendFlowMod(of13.OFPFC_ADD, spec, done)
}

func (r *Device) RemoveFlow(spec compiler.FlowSpec, done func(error)) error {
	return r.sendFlowMod(of13.OFPFC_DELETE_STRICT, spec, done)
}

func (r *Device) packetOut(inPort openflow.InPort, outPort openflow.OutPort, frame []byte) error {
	// Write lock
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.closed {
		return ErrClosedDevice
	}

	action := of13.NewAction()
	action.AddOutput(outPort)
	out := r.session.factory().NewPacketOut()
	out.SetInPort(inPort)
	out.SetAction(action)
	out.SetData(frame)

	return r.session.Write(out)
}

// PacketOut lets the switch forward the frame by its normal L2 pipeline as
// if it has been received from inPort.
func (r *Device) PacketOut(inPort uint32, frame []byte) error {
	in := openflow.NewInPort()
	in.SetValue(inPort)
	out := openflow.NewOutPort()
	out.SetNormal()

	return r.packetOut(in, out, frame)
}

// SendToPort emits the frame on the port.
func (r *Device) SendToPort(port uint32, frame []byte) error {
	out := openflow.NewOutPort()
	out.SetValue(port)

	return r.packetOut(openflow.NewInPort(), out, frame)
}

// installTransit installs the transit flow for the inter-switch port once,
// and records peer as the other end of the link. It returns the previous peer
// if the link has been replaced.
func (r *Device) installTransit(port uint32, peer topology.Location) (prev topology.Location, replaced bool, err error) {
	r.mutex.Lock()
	if r.closed {
		r.mutex.Unlock()
		return topology.Location{}, false, ErrClosedDevice
	}
	if v, ok := r.transit[port]; ok {
		r.transit[port] = peer
		r.mutex.Unlock()
		return v, v != peer, nil
	}
	r.transit[port] = peer
	r.mutex.Unlock()

	if err := r.SendMessage(newTransitFlow(r.session.factory(), port)); err != nil {
		r.mutex.Lock()
		delete(r.transit, port)
		r.mutex.Unlock()
		return topology.Location{}, false, err
	}

	return topology.Location{}, false, nil
}

// withdrawTransit deletes the transit flow of the port, if any. A non-nil
// linked restricts it to the transit flows whose peer is accepted by linked.
func (r *Device) withdrawTransit(port uint32, linked func(peer topology.Location) bool) (withdrawn bool, err error) {
	r.mutex.Lock()
	peer, ok := r.transit[port]
	if !ok || (linked != nil && !linked(peer)) {
		r.mutex.Unlock()
		return false, nil
	}
	delete(r.transit, port)
	r.mutex.Unlock()

	if err := r.SendMessage(newTransitRemoval(r.session.factory(), port)); err != nil {
		return false, err
	}

	return true, nil
}

func (r *Device) Close() {
	// Write lock
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.closed = true
}
