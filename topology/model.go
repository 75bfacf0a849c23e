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

package topology

import (
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/op/go-logging"
)

var (
	logger = logging.MustGetLogger("topology")
)

type Location struct {
	DPID uint64
	Port uint32
}

func (r Location) String() string {
	return fmt.Sprintf("%016x/%v", r.DPID, r.Port)
}

type Port struct {
	Number uint32
	MAC    net.HardwareAddr
	Name   string
	Up     bool
}

type Switch struct {
	DPID           uint64
	Version        uint8
	Ports          []Port
	Connected      bool
	ConnectedAt    time.Time
	DisconnectedAt time.Time
}

// Link is an undirected edge between two switch ports.
type Link struct {
	A, B Location
}

func (r Link) String() string {
	return fmt.Sprintf("%v <-> %v", r.A, r.B)
}

// normalize orders the endpoints so that a link has only one representation.
func (r Link) normalize() Link {
	if r.B.DPID < r.A.DPID || (r.B.DPID == r.A.DPID && r.B.Port < r.A.Port) {
		return Link{A: r.B, B: r.A}
	}

	return r
}

type Host struct {
	MAC      net.HardwareAddr
	IP       net.IP
	DPID     uint64
	Port     uint32
	LastSeen time.Time
	// Stale means that the location is unknown.
	Stale bool
}

func (r Host) Location() Location {
	return Location{DPID: r.DPID, Port: r.Port}
}

func (r Host) String() string {
	return fmt.Sprintf("Host(mac=%v, ip=%v, location=%v, stale=%v)", r.MAC, r.IP, r.Location(), r.Stale)
}

// Sighting is an observation of a host at a switch port.
type Sighting struct {
	MAC  net.HardwareAddr
	IP   net.IP
	DPID uint64
	Port uint32
	Time time.Time
}

type switchRecord struct {
	Switch
	ports map[uint32]Port
}

// Model is the live view of the network. It allows concurrent readers and
// serializes writers.
type Model struct {
	mutex    sync.RWMutex
	switches map[uint64]*switchRecord
	links    map[Link]struct{}
	// Key is an endpoint of a link.
	linkPorts map[Location]Link
	hosts     map[string]*Host
	// IP address to MAC address.
	ips map[string]string
	now func() time.Time
}

func NewModel() *Model {
	return &Model{
		switches:  make(map[uint64]*switchRecord),
		links:     make(map[Link]struct{}),
		linkPorts: make(map[Location]Link),
		hosts:     make(map[string]*Host),
		ips:       make(map[string]string),
		now:       time.Now,
	}
}

func (r *Model) OnSwitchConnect(dpid uint64, version uint8, ports []Port) {
	// Write lock
	r.mutex.Lock()
	defer r.mutex.Unlock()

	sw, ok := r.switches[dpid]
	if !ok {
		sw = &switchRecord{Switch: Switch{DPID: dpid}}
		r.switches[dpid] = sw
	}
	sw.Version = version
	sw.Connected = true
	sw.ConnectedAt = r.now()
	sw.DisconnectedAt = time.Time{}
	sw.ports = make(map[uint32]Port)
	for _, p := range ports {
		sw.ports[p.Number] = p
	}
	logger.Infof("switch connected: dpid=%016x, ports=%v", dpid, len(ports))
}

// OnSwitchDisconnect marks the switch disconnected and returns the hosts that
// became stale.
func (r *Model) OnSwitchDisconnect(dpid uint64) (staled []Host) {
	// Write lock
	r.mutex.Lock()
	defer r.mutex.Unlock()

	sw, ok := r.switches[dpid]
	if !ok || !sw.Connected {
		return nil
	}
	sw.Connected = false
	sw.DisconnectedAt = r.now()

	for l := range r.links {
		if l.A.DPID == dpid || l.B.DPID == dpid {
			r.removeLink(l)
		}
	}
	for _, h := range r.hosts {
		if h.DPID == dpid && !h.Stale {
			h.Stale = true
			staled = append(staled, *h)
		}
	}
	logger.Infof("switch disconnected: dpid=%016x, staled hosts=%v", dpid, len(staled))

	return staled
}

// OnPortChange updates the port. A port down removes the link on it, or makes
// the hosts behind it stale if it is an edge port.
func (r *Model) OnPortChange(dpid uint64, port Port) (staled []Host, linkRemoved bool) {
	// Write lock
	r.mutex.Lock()
	defer r.mutex.Unlock()

	sw, ok := r.switches[dpid]
	if !ok {
		return nil, false
	}
	sw.ports[port.Number] = port
	if port.Up {
		return nil, false
	}

	loc := Location{DPID: dpid, Port: port.Number}
	if l, ok := r.linkPorts[loc]; ok {
		r.removeLink(l)
		logger.Infof("link removed by port down: %v", l)
		return nil, true
	}
	for _, h := range r.hosts {
		if h.Location() == loc && !h.Stale {
			h.Stale = true
			staled = append(staled, *h)
		}
	}

	return staled, false
}

func (r *Model) removeLink(l Link) {
	delete(r.links, l)
	delete(r.linkPorts, l.A)
	delete(r.linkPorts, l.B)
}

// OnLinkDiscovered adds the link. Hosts that were learned on its ports are
// made stale because a link port is not an edge.
func (r *Model) OnLinkDiscovered(link Link) (added bool) {
	// Write lock
	r.mutex.Lock()
	defer r.mutex.Unlock()

	l := link.normalize()
	if _, ok := r.links[l]; ok {
		return false
	}
	// A port is an endpoint of at most one link.
	for _, p := range []Location{l.A, l.B} {
		if old, ok := r.linkPorts[p]; ok {
			r.removeLink(old)
		}
	}
	r.links[l] = struct{}{}
	r.linkPorts[l.A] = l
	r.linkPorts[l.B] = l
	for _, h := range r.hosts {
		loc := h.Location()
		if !h.Stale && (loc == l.A || loc == l.B) {
			h.Stale = true
		}
	}
	logger.Infof("link discovered: %v", l)

	return true
}

// OnHostSighting applies s if it is strictly newer than the stored one.
// updated is false when nothing but the timestamp has changed.
func (r *Model) OnHostSighting(s Sighting) (updated bool) {
	if len(s.MAC) != 6 {
		return false
	}

	// Write lock
	r.mutex.Lock()
	defer r.mutex.Unlock()

	key := s.MAC.String()
	h, ok := r.hosts[key]
	if !ok {
		h = &Host{MAC: append(net.HardwareAddr{}, s.MAC...)}
		r.hosts[key] = h
	} else if !s.Time.After(h.LastSeen) {
		// Out of order sighting.
		return false
	}

	ip := h.IP
	if s.IP != nil {
		ip = append(net.IP{}, s.IP.To4()...)
	}
	if ok && !h.Stale && h.DPID == s.DPID && h.Port == s.Port && h.IP.Equal(ip) {
		h.LastSeen = s.Time
		return false
	}

	if h.IP != nil && !h.IP.Equal(ip) && r.ips[h.IP.String()] == key {
		delete(r.ips, h.IP.String())
	}
	if ip != nil {
		// The IP address has moved to another host.
		if prev, exist := r.ips[ip.String()]; exist && prev != key {
			if other, found := r.hosts[prev]; found {
				other.IP = nil
			}
		}
		r.ips[ip.String()] = key
	}
	h.IP = ip
	h.DPID = s.DPID
	h.Port = s.Port
	h.LastSeen = s.Time
	h.Stale = false
	logger.Debugf("host location updated: %v", h)

	return true
}

func (r *Model) Locate(mac net.HardwareAddr) (Location, bool) {
	// Read lock
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	h, ok := r.hosts[mac.String()]
	if !ok || h.Stale {
		return Location{}, false
	}

	return h.Location(), true
}

// LocateIP returns the host that owns ip, which may be stale.
func (r *Model) LocateIP(ip net.IP) (Host, bool) {
	// Read lock
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	mac, ok := r.ips[ip.String()]
	if !ok {
		return Host{}, false
	}
	h, ok := r.hosts[mac]
	if !ok {
		return Host{}, false
	}

	return *h, true
}

func (r *Model) Host(mac net.HardwareAddr) (Host, bool) {
	// Read lock
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	h, ok := r.hosts[mac.String()]
	if !ok {
		return Host{}, false
	}

	return *h, true
}

func (r *Model) Hosts() []Host {
	// Read lock
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make([]Host, 0, len(r.hosts))
	for _, h := range r.hosts {
		result = append(result, *h)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].MAC.String() < result[j].MAC.String() })

	return result
}

func (r *Model) Switches() []Switch {
	// Read lock
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make([]Switch, 0, len(r.switches))
	for _, sw := range r.switches {
		v := sw.Switch
		v.Ports = make([]Port, 0, len(sw.ports))
		for _, p := range sw.ports {
			v.Ports = append(v.Ports, p)
		}
		sort.Slice(v.Ports, func(i, j int) bool { return v.Ports[i].Number < v.Ports[j].Number })
		result = append(result, v)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DPID < result[j].DPID })

	return result
}

func (r *Model) Links() []Link {
	// Read lock
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make([]Link, 0, len(r.links))
	for l := range r.links {
		result = append(result, l)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].A != result[j].A {
			return result[i].A.DPID < result[j].A.DPID || (result[i].A.DPID == result[j].A.DPID && result[i].A.Port < result[j].A.Port)
		}
		return result[i].B.DPID < result[j].B.DPID || (result[i].B.DPID == result[j].B.DPID && result[i].B.Port < result[j].B.Port)
	})

	return result
}

func (r *Model) IsConnected(dpid uint64) bool {
	// Read lock
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	sw, ok := r.switches[dpid]
	return ok && sw.Connected
}

// IsEdge returns true if the port is not an endpoint of any link.
func (r *Model) IsEdge(dpid uint64, port uint32) bool {
	// Read lock
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	_, ok := r.linkPorts[Location{DPID: dpid, Port: port}]
	return !ok
}

// Collect removes the switches that have been disconnected longer than grace
// and that inUse reports no state for. It returns the removed DPIDs.
func (r *Model) Collect(grace time.Duration, inUse func(dpid uint64) bool) []uint64 {
	// Write lock
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var removed []uint64
	now := r.now()
	for dpid, sw := range r.switches {
		if sw.Connected || now.Sub(sw.DisconnectedAt) < grace {
			continue
		}
		if inUse != nil && inUse(dpid) {
			continue
		}
		delete(r.switches, dpid)
		for key, h := range r.hosts {
			if h.DPID != dpid || !h.Stale {
				continue
			}
			if h.IP != nil && r.ips[h.IP.String()] == key {
				delete(r.ips, h.IP.String())
			}
			delete(r.hosts, key)
		}
		removed = append(removed, dpid)
		logger.Infof("switch removed after the grace period: dpid=%016x", dpid)
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i] < removed[j] })

	return removed
}
