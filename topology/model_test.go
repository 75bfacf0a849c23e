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
	"net"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/go-cmp/cmp"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type clock struct {
	now time.Time
}

func (r *clock) Now() time.Time {
	return r.now
}

func newTestModel() (*Model, *clock) {
	c := &clock{now: epoch}
	m := NewModel()
	m.now = c.Now

	return m, c
}

func mac(n byte) net.HardwareAddr {
	return net.HardwareAddr{0, 0, 0, 0, 0, n}
}

func ports(n ...uint32) []Port {
	v := make([]Port, len(n))
	for i, p := range n {
		v[i] = Port{Number: p, Up: true}
	}

	return v
}

func TestHostSighting(t *testing.T) {
	m, _ := newTestModel()
	m.OnSwitchConnect(1, 4, ports(1, 2))

	s := Sighting{MAC: mac(1), IP: net.IPv4(10, 0, 0, 1), DPID: 1, Port: 1, Time: epoch}
	if !m.OnHostSighting(s) {
		t.Fatal("the first sighting should update the model")
	}
	// Same location twice: no spurious update.
	if m.OnHostSighting(s) {
		t.Fatal("the duplicated sighting should not update the model")
	}
	s.Time = epoch.Add(time.Second)
	if m.OnHostSighting(s) {
		t.Fatal("a newer sighting at the same location should not report an update")
	}
	if h, _ := m.Host(mac(1)); !h.LastSeen.Equal(epoch.Add(time.Second)) {
		t.Fatalf("LastSeen is not refreshed: %v", h)
	}

	// Stale sighting is ignored.
	old := Sighting{MAC: mac(1), IP: net.IPv4(10, 0, 0, 1), DPID: 1, Port: 2, Time: epoch}
	if m.OnHostSighting(old) {
		t.Fatal("the stale sighting should be ignored")
	}
	if loc, ok := m.Locate(mac(1)); !ok || loc != (Location{DPID: 1, Port: 1}) {
		t.Fatalf("unexpected location: %v, %v", loc, ok)
	}

	// Later sighting moves the host.
	moved := Sighting{MAC: mac(1), IP: net.IPv4(10, 0, 0, 1), DPID: 1, Port: 2, Time: epoch.Add(2 * time.Second)}
	if !m.OnHostSighting(moved) {
		t.Fatal("the newer sighting should move the host")
	}
	h, ok := m.LocateIP(net.IPv4(10, 0, 0, 1))
	if !ok || h.Location() != (Location{DPID: 1, Port: 2}) {
		t.Fatalf("unexpected host: %v", spew.Sdump(h))
	}
}

func TestIPMovesToAnotherHost(t *testing.T) {
	m, _ := newTestModel()
	m.OnHostSighting(Sighting{MAC: mac(1), IP: net.IPv4(10, 0, 0, 1), DPID: 1, Port: 1, Time: epoch})
	m.OnHostSighting(Sighting{MAC: mac(2), IP: net.IPv4(10, 0, 0, 1), DPID: 1, Port: 2, Time: epoch.Add(time.Second)})

	h, ok := m.LocateIP(net.IPv4(10, 0, 0, 1))
	if !ok || h.MAC.String() != mac(2).String() {
		t.Fatalf("unexpected owner of the IP address: %v", spew.Sdump(h))
	}
	if old, _ := m.Host(mac(1)); old.IP != nil {
		t.Fatalf("the previous owner still has the IP address: %v", old)
	}
}

func TestSwitchDisconnect(t *testing.T) {
	m, c := newTestModel()
	m.OnSwitchConnect(1, 4, ports(1, 2))
	m.OnSwitchConnect(2, 4, ports(1, 2))
	m.OnLinkDiscovered(Link{A: Location{DPID: 2, Port: 2}, B: Location{DPID: 1, Port: 2}})
	m.OnHostSighting(Sighting{MAC: mac(1), IP: net.IPv4(10, 0, 0, 1), DPID: 1, Port: 1, Time: epoch})
	m.OnHostSighting(Sighting{MAC: mac(2), IP: net.IPv4(10, 0, 0, 2), DPID: 2, Port: 1, Time: epoch})

	staled := m.OnSwitchDisconnect(1)
	if len(staled) != 1 || staled[0].MAC.String() != mac(1).String() {
		t.Fatalf("unexpected stale hosts: %v", spew.Sdump(staled))
	}
	if _, ok := m.Locate(mac(1)); ok {
		t.Fatal("host on the disconnected switch should be unknown")
	}
	if _, ok := m.Locate(mac(2)); !ok {
		t.Fatal("host on the other switch should be known")
	}
	if len(m.Links()) != 0 {
		t.Fatalf("links of the disconnected switch should be removed: %v", m.Links())
	}
	if m.IsConnected(1) || len(m.Switches()) != 2 {
		t.Fatal("switch should be marked disconnected, not deleted")
	}

	// Grace period is not elapsed yet.
	c.now = c.now.Add(10 * time.Second)
	if removed := m.Collect(time.Minute, nil); len(removed) != 0 {
		t.Fatalf("unexpected removal: %v", removed)
	}
	c.now = c.now.Add(time.Minute)
	// The engine still has state for the switch.
	if removed := m.Collect(time.Minute, func(uint64) bool { return true }); len(removed) != 0 {
		t.Fatalf("unexpected removal: %v", removed)
	}
	if diff := cmp.Diff([]uint64{1}, m.Collect(time.Minute, func(uint64) bool { return false })); diff != "" {
		t.Fatalf("mismatched removal (-want +got):\n%v", diff)
	}
	if _, ok := m.Host(mac(1)); ok {
		t.Fatal("stale host on the removed switch should be collected")
	}
}

func TestPortDown(t *testing.T) {
	m, _ := newTestModel()
	m.OnSwitchConnect(1, 4, ports(1, 2))
	m.OnSwitchConnect(2, 4, ports(1, 2))
	m.OnLinkDiscovered(Link{A: Location{DPID: 1, Port: 2}, B: Location{DPID: 2, Port: 2}})
	m.OnHostSighting(Sighting{MAC: mac(1), DPID: 1, Port: 1, Time: epoch})

	if m.IsEdge(1, 2) || !m.IsEdge(1, 1) {
		t.Fatal("unexpected edge ports")
	}

	staled, removed := m.OnPortChange(1, Port{Number: 2, Up: false})
	if !removed || len(staled) != 0 {
		t.Fatalf("link port down should remove the link: removed=%v, staled=%v", removed, staled)
	}
	if !m.IsEdge(1, 2) {
		t.Fatal("port without link should be an edge")
	}

	staled, removed = m.OnPortChange(1, Port{Number: 1, Up: false})
	if removed || len(staled) != 1 {
		t.Fatalf("edge port down should stale the hosts: removed=%v, staled=%v", removed, staled)
	}
	if _, ok := m.Locate(mac(1)); ok {
		t.Fatal("host behind the down port should be unknown")
	}
}

func TestLinkStalesHostsOnItsPorts(t *testing.T) {
	m, _ := newTestModel()
	m.OnSwitchConnect(1, 4, ports(1, 2))
	m.OnSwitchConnect(2, 4, ports(1, 2))
	// Learned before LLDP discovers the link.
	m.OnHostSighting(Sighting{MAC: mac(9), DPID: 1, Port: 2, Time: epoch})

	if !m.OnLinkDiscovered(Link{A: Location{DPID: 1, Port: 2}, B: Location{DPID: 2, Port: 2}}) {
		t.Fatal("new link should be added")
	}
	if m.OnLinkDiscovered(Link{A: Location{DPID: 2, Port: 2}, B: Location{DPID: 1, Port: 2}}) {
		t.Fatal("reversed link is the same link")
	}
	if _, ok := m.Locate(mac(9)); ok {
		t.Fatal("host on the link port should be stale")
	}
}

func TestReachable(t *testing.T) {
	m, _ := newTestModel()
	for dpid := uint64(1); dpid <= 5; dpid++ {
		m.OnSwitchConnect(dpid, 4, ports(1, 2, 3))
	}
	// s1 - s2 - s3 - s4, and s5 is isolated.
	m.OnLinkDiscovered(Link{A: Location{DPID: 1, Port: 2}, B: Location{DPID: 2, Port: 2}})
	m.OnLinkDiscovered(Link{A: Location{DPID: 2, Port: 3}, B: Location{DPID: 3, Port: 2}})
	m.OnLinkDiscovered(Link{A: Location{DPID: 3, Port: 3}, B: Location{DPID: 4, Port: 2}})

	tests := []struct {
		a, b      uint64
		reachable bool
	}{
		{1, 1, true},
		{1, 4, true},
		{4, 1, true},
		{1, 5, false},
		{1, 9, false},
	}
	for _, test := range tests {
		if v := m.Reachable(test.a, test.b); v != test.reachable {
			t.Fatalf("unexpected reachability from %v to %v: %v", test.a, test.b, v)
		}
	}

	m.OnSwitchDisconnect(3)
	if m.Reachable(1, 4) {
		t.Fatal("s4 should not be reachable through the disconnected s3")
	}
}
