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

package acl

import (
	"bytes"
	"fmt"
	"net"
	"strings"
)

type hostKind uint8

const (
	anyHost hostKind = iota
	macHost
	ipHost
)

// HostPredicate matches an end host by its MAC address, IPv4 address or
// IPv4 network. The zero value matches any host.
type HostPredicate struct {
	kind    hostKind
	mac     net.HardwareAddr
	network *net.IPNet
	raw     string
}

// ParseHost parses s, which is one of any, *, a MAC address, an IPv4
// address, an IPv4 CIDR, or a name defined in aliases.
func ParseHost(s string, aliases map[string]string) (HostPredicate, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return HostPredicate{}, fmt.Errorf("empty host")
	}
	v := raw
	if alias, ok := aliases[raw]; ok {
		v = strings.TrimSpace(alias)
	}

	if v == "*" || strings.EqualFold(v, "any") {
		return HostPredicate{kind: anyHost, raw: raw}, nil
	}
	if mac, err := net.ParseMAC(v); err == nil {
		if len(mac) != 6 {
			return HostPredicate{}, fmt.Errorf("unsupported MAC address: %v", v)
		}
		return HostPredicate{kind: macHost, mac: mac, raw: raw}, nil
	}
	if strings.Contains(v, "/") {
		ip, network, err := net.ParseCIDR(v)
		if err != nil || ip.To4() == nil {
			return HostPredicate{}, fmt.Errorf("invalid IPv4 network: %v", v)
		}
		return HostPredicate{kind: ipHost, network: network, raw: raw}, nil
	}
	ip := net.ParseIP(v).To4()
	if ip == nil {
		return HostPredicate{}, fmt.Errorf("invalid host: %v", v)
	}

	return HostPredicate{kind: ipHost, network: &net.IPNet{IP: ip, Mask: net.CIDRMask(32, 32)}, raw: raw}, nil
}

func (r HostPredicate) String() string {
	if r.raw == "" {
		return "any"
	}

	return r.raw
}

func (r HostPredicate) IsAny() bool {
	return r.kind == anyHost
}

// IsExact returns true if the predicate matches a single host.
func (r HostPredicate) IsExact() bool {
	switch r.kind {
	case macHost:
		return true
	case ipHost:
		ones, bits := r.network.Mask.Size()
		return ones == bits
	default:
		return false
	}
}

func (r HostPredicate) Match(mac net.HardwareAddr, ip net.IP) bool {
	switch r.kind {
	case anyHost:
		return true
	case macHost:
		return bytes.Equal(r.mac, mac)
	case ipHost:
		return ip != nil && r.network.Contains(ip)
	default:
		return false
	}
}

// Overlaps reports whether a host can exist that matches both predicates.
// A MAC predicate and an IP predicate are assumed to overlap because we
// cannot tell the binding between them in advance.
func (r HostPredicate) Overlaps(o HostPredicate) bool {
	if r.kind == anyHost || o.kind == anyHost {
		return true
	}
	if r.kind != o.kind {
		return true
	}
	if r.kind == macHost {
		return bytes.Equal(r.mac, o.mac)
	}

	return r.network.Contains(o.network.IP) || o.network.Contains(r.network.IP)
}

// Service matches the IP protocol and the destination port of a flow. Zero
// means any for both fields.
type Service struct {
	Protocol uint8
	Port     uint16
}

var protocolNames = map[string]uint8{
	"":     0,
	"any":  0,
	"*":    0,
	"icmp": 1,
	"tcp":  6,
	"udp":  17,
}

func ParseService(protocol string, port int) (Service, error) {
	p, ok := protocolNames[strings.ToLower(strings.TrimSpace(protocol))]
	if !ok {
		return Service{}, fmt.Errorf("unknown protocol: %q", protocol)
	}
	if port < 0 || port > 0xFFFF {
		return Service{}, fmt.Errorf("port out of range: %v", port)
	}
	if port != 0 && p != 6 && p != 17 {
		return Service{}, fmt.Errorf("port %v requires tcp or udp protocol", port)
	}

	return Service{Protocol: p, Port: uint16(port)}, nil
}

func (r Service) String() string {
	name := "any"
	for k, v := range protocolNames {
		if k != "" && k != "any" && k != "*" && v == r.Protocol {
			name = k
		}
	}
	if r.Port == 0 {
		return name
	}

	return fmt.Sprintf("%v/%v", name, r.Port)
}

func (r Service) IsExact() bool {
	return r.Protocol != 0 && r.Port != 0
}

func (r Service) Match(protocol uint8, port uint16) bool {
	if r.Protocol != 0 && r.Protocol != protocol {
		return false
	}

	return r.Port == 0 || r.Port == port
}

func (r Service) Overlaps(o Service) bool {
	if r.Protocol != 0 && o.Protocol != 0 && r.Protocol != o.Protocol {
		return false
	}

	return r.Port == 0 || o.Port == 0 || r.Port == o.Port
}
