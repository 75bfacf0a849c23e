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
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/kndrvt/acl-manager/compiler"
	"github.com/kndrvt/acl-manager/protocol"
	"github.com/kndrvt/acl-manager/topology"

	"github.com/op/go-logging"
)

var (
	logger = logging.MustGetLogger("network")
)

// EventListener receives the network events. The methods are called from the
// session goroutines, so they should not block for long.
type EventListener interface {
	OnSwitchUp(dpid uint64, version uint8, ports []topology.Port)
	OnSwitchDown(dpid uint64)
	OnPortChange(dpid uint64, port topology.Port)
	OnLinkDiscovered(link topology.Link)
	// frame is the whole Ethernet frame that eth has been decoded from.
	OnPacketIn(dpid uint64, inPort uint32, eth *protocol.Ethernet, frame []byte)
	// deleted is true if the flow has been removed by a delete command.
	OnFlowRemoved(dpid uint64, cookie uint64, deleted bool)
}

type Config struct {
	// TCP destination ports whose new connections are punted to the controller.
	ServicePorts []uint16
	// Packet-ins from a switch are ignored during this period after the switch
	// is ready, except LLDP.
	Warmup time.Duration
	// Packet-ins allowed per second per switch.
	PacketInRate  float64
	PacketInBurst int
	// Interval of the port queries that refresh the links.
	ExplorerInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		ServicePorts:     []uint16{80, 8080},
		Warmup:           5 * time.Second,
		PacketInRate:     1000,
		PacketInBurst:    200,
		ExplorerInterval: 3 * time.Minute,
	}
}

type Controller struct {
	cfg        Config
	mutex      sync.RWMutex
	listener   EventListener
	cancellers *canceller
}

func NewController(cfg Config) *Controller {
	def := DefaultConfig()
	if cfg.PacketInRate <= 0 {
		cfg.PacketInRate = def.PacketInRate
	}
	if cfg.PacketInBurst <= 0 {
		cfg.PacketInBurst = def.PacketInBurst
	}
	if cfg.ExplorerInterval <= 0 {
		cfg.ExplorerInterval = def.ExplorerInterval
	}
	if cfg.Warmup < 0 {
		cfg.Warmup = 0
	}

	return &Controller{
		cfg:        cfg,
		cancellers: newCanceller(),
	}
}

func (r *Controller) AddConnection(ctx context.Context, c net.Conn) {
	logger.Infof("new connection from %v", c.RemoteAddr())
	session := newSession(r, c)
	go session.Run(ctx)
}

func (r *Controller) SetEventListener(l EventListener) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.listener = l
}

func (r *Controller) eventListener() EventListener {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return r.listener
}

func (r *Controller) device(dpid uint64) (*Device, bool) {
	s, ok := r.cancellers.get(dpid)
	if !ok {
		return nil, false
	}

	return s.device, true
}

// Devices returns the connected devices ordered by their DPID.
func (r *Controller) Devices() []*Device {
	sessions := r.cancellers.all()
	v := make([]*Device, 0, len(sessions))
	for _, s := range sessions {
		v = append(v, s.device)
	}
	sort.Slice(v, func(i, j int) bool { return v[i].DPID() < v[j].DPID() })

	return v
}

func (r *Controller) findDevice(dpid uint64) (*Device, error) {
	d, ok := r.device(dpid)
	if !ok {
		return nil, fmt.Errorf("%v: DPID=%016x", ErrUnknownDevice, dpid)
	}

	return d, nil
}

func (r *Controller) InstallFlow(dpid uint64, spec compiler.FlowSpec, done func(error)) error {
	d, err := r.findDevice(dpid)
	if err != nil {
		return err
	}

	return d.InstallFlow(spec, done)
}

func (r *Controller) RemoveFlow(dpid uint64, spec compiler.FlowSpec, done func(error)) error {
	d, err := r.findDevice(dpid)
	if err != nil {
		return err
	}

	return d.RemoveFlow(spec, done)
}

func (r *Controller) PacketOut(dpid uint64, inPort uint32, frame []byte) error {
	d, err := r.findDevice(dpid)
	if err != nil {
		return err
	}

	return d.PacketOut(inPort, frame)
}

func (r *Controller) SendToPort(dpid uint64, port uint32, frame []byte) error {
	d, err := r.findDevice(dpid)
	if err != nil {
		return err
	}

	return d.SendToPort(port, frame)
}

func (r *Controller) String() string {
	v := ""
	for _, d := range r.Devices() {
		v += d.String()
	}

	return v
}
