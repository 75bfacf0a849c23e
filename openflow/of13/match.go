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
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"

	"github.com/kndrvt/acl-manager/openflow"
)

// Value lengths of the fields that we understand.
var oxmLength = map[uint8]int{
	OFPXMT_OFB_IN_PORT:  4,
	OFPXMT_OFB_ETH_DST:  6,
	OFPXMT_OFB_ETH_SRC:  6,
	OFPXMT_OFB_ETH_TYPE: 2,
	OFPXMT_OFB_IP_PROTO: 1,
	OFPXMT_OFB_IPV4_SRC: 4,
	OFPXMT_OFB_IPV4_DST: 4,
	OFPXMT_OFB_TCP_SRC:  2,
	OFPXMT_OFB_TCP_DST:  2,
	OFPXMT_OFB_UDP_SRC:  2,
	OFPXMT_OFB_UDP_DST:  2,
}

type oxm struct {
	value []byte
	mask  []byte
}

// Match is an OXM flow match. Fields that are not set are wildcarded. A setter
// that violates the field prerequisites records an error that is returned by
// MarshalBinary.
type Match struct {
	err    error
	fields map[uint8]oxm
}

// NewMatch returns a Match whose fields are all wildcarded.
func NewMatch() *Match {
	return &Match{
		fields: make(map[uint8]oxm),
	}
}

func (r *Match) Error() error {
	return r.err
}

func (r *Match) setError(op string, err error) {
	if r.err != nil {
		return
	}
	r.err = fmt.Errorf("%v: %v", op, err)
}

func (r *Match) SetInPort(port uint32) {
	v := make([]byte, 4)
	binary.BigEndian.PutUint32(v, port)
	r.fields[OFPXMT_OFB_IN_PORT] = oxm{value: v}
}

func (r *Match) InPort() (wildcard bool, port uint32) {
	v, ok := r.fields[OFPXMT_OFB_IN_PORT]
	if !ok {
		return true, 0
	}

	return false, binary.BigEndian.Uint32(v.value)
}

func (r *Match) SetEtherType(t uint16) {
	v := make([]byte, 2)
	binary.BigEndian.PutUint16(v, t)
	r.fields[OFPXMT_OFB_ETH_TYPE] = oxm{value: v}
}

func (r *Match) EtherType() (wildcard bool, t uint16) {
	v, ok := r.fields[OFPXMT_OFB_ETH_TYPE]
	if !ok {
		return true, 0
	}

	return false, binary.BigEndian.Uint16(v.value)
}

func (r *Match) setMAC(field uint8, op string, mac net.HardwareAddr) {
	if len(mac) != 6 {
		r.setError(op, openflow.ErrInvalidMACAddress)
		return
	}
	v := make([]byte, 6)
	copy(v, mac)
	r.fields[field] = oxm{value: v}
}

func (r *Match) SetSrcMAC(mac net.HardwareAddr) {
	r.setMAC(OFPXMT_OFB_ETH_SRC, "SetSrcMAC", mac)
}

func (r *Match) SetDstMAC(mac net.HardwareAddr) {
	r.setMAC(OFPXMT_OFB_ETH_DST, "SetDstMAC", mac)
}

func (r *Match) SrcMAC() (wildcard bool, mac net.HardwareAddr) {
	v, ok := r.fields[OFPXMT_OFB_ETH_SRC]
	if !ok {
		return true, nil
	}

	return false, net.HardwareAddr(v.value)
}

func (r *Match) DstMAC() (wildcard bool, mac net.HardwareAddr) {
	v, ok := r.fields[OFPXMT_OFB_ETH_DST]
	if !ok {
		return true, nil
	}

	return false, net.HardwareAddr(v.value)
}

func (r *Match) requireIPv4(op string) bool {
	wildcard, t := r.EtherType()
	if wildcard {
		r.setError(op, openflow.ErrMissingEtherType)
		return false
	}
	if t != 0x0800 {
		r.setError(op, openflow.ErrUnsupportedEtherType)
		return false
	}

	return true
}

func (r *Match) SetIPProtocol(p uint8) {
	if !r.requireIPv4("SetIPProtocol") {
		return
	}
	r.fields[OFPXMT_OFB_IP_PROTO] = oxm{value: []byte{p}}
}

func (r *Match) IPProtocol() (wildcard bool, p uint8) {
	v, ok := r.fields[OFPXMT_OFB_IP_PROTO]
	if !ok {
		return true, 0
	}

	return false, v.value[0]
}

func (r *Match) setIP(field uint8, op string, ip *net.IPNet) {
	if !r.requireIPv4(op) {
		return
	}
	if ip == nil || ip.IP.To4() == nil {
		r.setError(op, openflow.ErrInvalidIPAddress)
		return
	}

	v := oxm{value: make([]byte, 4)}
	copy(v.value, ip.IP.To4())
	mask := ip.Mask
	if len(mask) == 16 {
		mask = mask[12:]
	}
	// Exact match does not need the mask.
	if mask != nil && !bytes.Equal(mask, net.CIDRMask(32, 32)) {
		if len(mask) != 4 {
			r.setError(op, openflow.ErrInvalidIPAddress)
			return
		}
		v.mask = make([]byte, 4)
		copy(v.mask, mask)
		for i := range v.value {
			v.value[i] &= v.mask[i]
		}
	}
	r.fields[field] = v
}

func (r *Match) SetSrcIP(ip *net.IPNet) {
	r.setIP(OFPXMT_OFB_IPV4_SRC, "SetSrcIP", ip)
}

func (r *Match) SetDstIP(ip *net.IPNet) {
	r.setIP(OFPXMT_OFB_IPV4_DST, "SetDstIP", ip)
}

func (r *Match) getIP(field uint8) (wildcard bool, ip *net.IPNet) {
	v, ok := r.fields[field]
	if !ok {
		return true, nil
	}

	mask := net.CIDRMask(32, 32)
	if v.mask != nil {
		mask = net.IPMask(v.mask)
	}

	return false, &net.IPNet{IP: net.IP(v.value), Mask: mask}
}

func (r *Match) SrcIP() (wildcard bool, ip *net.IPNet) {
	return r.getIP(OFPXMT_OFB_IPV4_SRC)
}

func (r *Match) DstIP() (wildcard bool, ip *net.IPNet) {
	return r.getIP(OFPXMT_OFB_IPV4_DST)
}

func (r *Match) setPort(tcp, udp uint8, op string, port uint16) {
	if !r.requireIPv4(op) {
		return
	}
	wildcard, proto := r.IPProtocol()
	if wildcard {
		r.setError(op, openflow.ErrMissingIPProtocol)
		return
	}

	v := make([]byte, 2)
	binary.BigEndian.PutUint16(v, port)
	switch proto {
	case 6:
		r.fields[tcp] = oxm{value: v}
		delete(r.fields, udp)
	case 17:
		r.fields[udp] = oxm{value: v}
		delete(r.fields, tcp)
	default:
		r.setError(op, openflow.ErrUnsupportedIPProtocol)
	}
}

func (r *Match) SetSrcPort(port uint16) {
	r.setPort(OFPXMT_OFB_TCP_SRC, OFPXMT_OFB_UDP_SRC, "SetSrcPort", port)
}

func (r *Match) SetDstPort(port uint16) {
	r.setPort(OFPXMT_OFB_TCP_DST, OFPXMT_OFB_UDP_DST, "SetDstPort", port)
}

func (r *Match) getPort(tcp, udp uint8) (wildcard bool, port uint16) {
	if v, ok := r.fields[tcp]; ok {
		return false, binary.BigEndian.Uint16(v.value)
	}
	if v, ok := r.fields[udp]; ok {
		return false, binary.BigEndian.Uint16(v.value)
	}

	return true, 0
}

func (r *Match) SrcPort() (wildcard bool, port uint16) {
	return r.getPort(OFPXMT_OFB_TCP_SRC, OFPXMT_OFB_UDP_SRC)
}

func (r *Match) DstPort() (wildcard bool, port uint16) {
	return r.getPort(OFPXMT_OFB_TCP_DST, OFPXMT_OFB_UDP_DST)
}

func (r *Match) sortedFields() []uint8 {
	keys := make([]uint8, 0, len(r.fields))
	for k := range r.fields {
		keys = append(keys, k)
	}
	// OXM prerequisites must precede the fields that depend on them, and the
	// field numbers already follow that order.
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	return keys
}

func (r *Match) String() string {
	tokens := make([]string, 0, len(r.fields))
	for _, k := range r.sortedFields() {
		v := r.fields[k]
		if v.mask != nil {
			tokens = append(tokens, fmt.Sprintf("%v=%x/%x", k, v.value, v.mask))
		} else {
			tokens = append(tokens, fmt.Sprintf("%v=%x", k, v.value))
		}
	}

	return fmt.Sprintf("Match(%v)", strings.Join(tokens, ","))
}

func marshalOXM(field uint8, v oxm) []byte {
	length := len(v.value) + len(v.mask)
	header := uint32(OFPXMC_OPENFLOW_BASIC)<<16 | uint32(field)<<9 | uint32(length)
	if v.mask != nil {
		header |= 1 << 8
	}

	tlv := make([]byte, 4, 4+length)
	binary.BigEndian.PutUint32(tlv[0:4], header)
	tlv = append(tlv, v.value...)
	tlv = append(tlv, v.mask...)

	return tlv
}

func (r *Match) MarshalBinary() ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}

	fields := make([]byte, 0)
	for _, k := range r.sortedFields() {
		fields = append(fields, marshalOXM(k, r.fields[k])...)
	}

	length := 4 + len(fields)
	v := make([]byte, 4, paddedLength(length))
	binary.BigEndian.PutUint16(v[0:2], OFPMT_OXM)
	binary.BigEndian.PutUint16(v[2:4], uint16(length))
	v = append(v, fields...)
	// Add padding to align as a multiple of 8.
	v = append(v, make([]byte, paddedLength(length)-length)...)

	return v, nil
}

func paddedLength(length int) int {
	if rem := length % 8; rem > 0 {
		return length + 8 - rem
	}

	return length
}

// matchLength returns the padded length of the ofp_match at the beginning of data.
func matchLength(data []byte) (int, error) {
	if len(data) < 4 {
		return 0, openflow.ErrInvalidPacketLength
	}
	length := paddedLength(int(binary.BigEndian.Uint16(data[2:4])))
	if length < 8 || len(data) < length {
		return 0, openflow.ErrInvalidPacketLength
	}

	return length, nil
}

func (r *Match) UnmarshalBinary(data []byte) error {
	if len(data) < 4 {
		return openflow.ErrInvalidPacketLength
	}
	if binary.BigEndian.Uint16(data[0:2]) != OFPMT_OXM {
		return errors.New("unsupported match type")
	}
	length := int(binary.BigEndian.Uint16(data[2:4]))
	if length < 4 || len(data) < length {
		return openflow.ErrInvalidPacketLength
	}

	r.fields = make(map[uint8]oxm)
	buf := data[4:length]
	for len(buf) >= 4 {
		header := binary.BigEndian.Uint32(buf[0:4])
		class := uint16(header >> 16)
		field := uint8(header >> 9 & 0x7F)
		hasMask := header>>8&0x1 == 1
		n := int(header & 0xFF)
		if len(buf) < 4+n {
			return openflow.ErrInvalidPacketLength
		}
		payload := buf[4 : 4+n]
		buf = buf[4+n:]

		// Skip the experimenter classes and the fields that we don't use.
		expected, ok := oxmLength[field]
		if class != OFPXMC_OPENFLOW_BASIC || !ok {
			continue
		}
		v := oxm{}
		if hasMask {
			if n != expected*2 {
				return openflow.ErrInvalidPacketLength
			}
			v.value = append([]byte(nil), payload[:expected]...)
			v.mask = append([]byte(nil), payload[expected:]...)
		} else {
			if n != expected {
				return openflow.ErrInvalidPacketLength
			}
			v.value = append([]byte(nil), payload...)
		}
		r.fields[field] = v
	}

	return nil
}
