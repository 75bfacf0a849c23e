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
	"sync/atomic"
)

// Factory creates OpenFlow 1.3 messages with unique transaction IDs.
type Factory struct {
	xid uint32
}

func NewFactory() *Factory {
	return &Factory{}
}

func (r *Factory) getTransactionID() uint32 {
	// Transaction ID will be started from 1, not 0.
	return atomic.AddUint32(&r.xid, 1)
}

func (r *Factory) NewHello() *Hello {
	return NewHello(r.getTransactionID())
}

func (r *Factory) NewEchoRequest() *EchoRequest {
	return NewEchoRequest(r.getTransactionID())
}

// NewEchoReply returns a reply whose transaction ID and data are copied from the request.
func (r *Factory) NewEchoReply(req *EchoRequest) *EchoReply {
	reply := NewEchoReply(req.TransactionID())
	reply.SetData(req.Data())

	return reply
}

func (r *Factory) NewFeaturesRequest() *FeaturesRequest {
	return NewFeaturesRequest(r.getTransactionID())
}

func (r *Factory) NewSetConfig() *SetConfig {
	return NewSetConfig(r.getTransactionID())
}

func (r *Factory) NewBarrierRequest() *BarrierRequest {
	return NewBarrierRequest(r.getTransactionID())
}

func (r *Factory) NewPortDescRequest() *PortDescRequest {
	return NewPortDescRequest(r.getTransactionID())
}

func (r *Factory) NewDescRequest() *DescRequest {
	return NewDescRequest(r.getTransactionID())
}

func (r *Factory) NewFlowMod(cmd uint8) *FlowMod {
	return NewFlowMod(r.getTransactionID(), cmd)
}

func (r *Factory) NewPacketOut() *PacketOut {
	return NewPacketOut(r.getTransactionID())
}
