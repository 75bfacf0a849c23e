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

// Message types.
const (
	OFPT_HELLO uint8 = iota
	OFPT_ERROR
	OFPT_ECHO_REQUEST
	OFPT_ECHO_REPLY
	OFPT_EXPERIMENTER
	OFPT_FEATURES_REQUEST
	OFPT_FEATURES_REPLY
	OFPT_GET_CONFIG_REQUEST
	OFPT_GET_CONFIG_REPLY
	OFPT_SET_CONFIG
	OFPT_PACKET_IN
	OFPT_FLOW_REMOVED
	OFPT_PORT_STATUS
	OFPT_PACKET_OUT
	OFPT_FLOW_MOD
	OFPT_GROUP_MOD
	OFPT_PORT_MOD
	OFPT_TABLE_MOD
	OFPT_MULTIPART_REQUEST
	OFPT_MULTIPART_REPLY
	OFPT_BARRIER_REQUEST
	OFPT_BARRIER_REPLY
)

// Multipart types.
const (
	OFPMP_DESC      uint16 = 0
	OFPMP_PORT_DESC uint16 = 13
)

// Port numbers.
const (
	OFPP_MAX        uint32 = 0xffffff00
	OFPP_IN_PORT    uint32 = 0xfffffff8
	OFPP_TABLE      uint32 = 0xfffffff9
	OFPP_NORMAL     uint32 = 0xfffffffa
	OFPP_FLOOD      uint32 = 0xfffffffb
	OFPP_ALL        uint32 = 0xfffffffc
	OFPP_CONTROLLER uint32 = 0xfffffffd
	OFPP_LOCAL      uint32 = 0xfffffffe
	OFPP_ANY        uint32 = 0xffffffff
)

const (
	OFP_NO_BUFFER    uint32 = 0xffffffff
	OFPCML_NO_BUFFER uint16 = 0xffff
	OFPTT_ALL        uint8  = 0xff
)

// Flow mod commands.
const (
	OFPFC_ADD uint8 = iota
	OFPFC_MODIFY
	OFPFC_MODIFY_STRICT
	OFPFC_DELETE
	OFPFC_DELETE_STRICT
)

// Flow mod flags.
const (
	OFPFF_SEND_FLOW_REM uint16 = 1 << 0
	OFPFF_CHECK_OVERLAP uint16 = 1 << 1
)

// Flow removed reasons.
const (
	OFPRR_IDLE_TIMEOUT uint8 = iota
	OFPRR_HARD_TIMEOUT
	OFPRR_DELETE
	OFPRR_GROUP_DELETE
)

// Port status reasons.
const (
	OFPPR_ADD uint8 = iota
	OFPPR_DELETE
	OFPPR_MODIFY
)

const (
	OFPPC_PORT_DOWN  uint32 = 1 << 0
	OFPPS_LINK_DOWN  uint32 = 1 << 0
	OFPC_FRAG_NORMAL uint16 = 0
)

// Instruction types.
const (
	OFPIT_GOTO_TABLE    uint16 = 1
	OFPIT_WRITE_ACTIONS uint16 = 3
	OFPIT_APPLY_ACTIONS uint16 = 4
)

// Action types.
const (
	OFPAT_OUTPUT uint16 = 0
)

// Error types that we handle specially.
const (
	OFPET_BAD_REQUEST     uint16 = 1
	OFPET_FLOW_MOD_FAILED uint16 = 5
	OFPFMFC_OVERLAP       uint16 = 3
)

const (
	OFPMT_OXM             uint16 = 1
	OFPXMC_OPENFLOW_BASIC uint16 = 0x8000
)

// OXM basic match fields.
const (
	OFPXMT_OFB_IN_PORT  uint8 = 0
	OFPXMT_OFB_ETH_DST  uint8 = 3
	OFPXMT_OFB_ETH_SRC  uint8 = 4
	OFPXMT_OFB_ETH_TYPE uint8 = 5
	OFPXMT_OFB_IP_PROTO uint8 = 10
	OFPXMT_OFB_IPV4_SRC uint8 = 11
	OFPXMT_OFB_IPV4_DST uint8 = 12
	OFPXMT_OFB_TCP_SRC  uint8 = 13
	OFPXMT_OFB_TCP_DST  uint8 = 14
	OFPXMT_OFB_UDP_SRC  uint8 = 15
	OFPXMT_OFB_UDP_DST  uint8 = 16
)
