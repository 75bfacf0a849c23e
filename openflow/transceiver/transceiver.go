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

package transceiver

import (
	"context"
	"encoding"
	"fmt"
	"net"
	"time"

	"github.com/kndrvt/acl-manager/openflow"
	"github.com/kndrvt/acl-manager/openflow/of13"

	"github.com/op/go-logging"
	"github.com/pkg/errors"
)

var (
	logger = logging.MustGetLogger("transceiver")
)

const (
	// Allowed idle time before we send an echo request to a switch.
	maxIdleTime = 10 * time.Second
	// I/O timeouts. They should be less than maxIdleTime.
	readTimeout  = 1 * time.Second
	writeTimeout = readTimeout * 2
	// Unanswered echo requests allowed before we give up the switch.
	maxPendingEcho = 2
	// A switch should say HELLO within this time.
	negotiationTimeout = 30 * time.Second
)

type Writer interface {
	Write(msg encoding.BinaryMarshaler) error
}

// Handler receives the decoded messages from a switch. Any error returned
// from a handler closes the connection unless it is a temporary one.
type Handler interface {
	OnHello(*of13.Factory, Writer, *of13.Hello) error
	OnError(*of13.Factory, Writer, *of13.Error) error
	OnFeaturesReply(*of13.Factory, Writer, *of13.FeaturesReply) error
	OnBarrierReply(*of13.Factory, Writer, *of13.BarrierReply) error
	OnDescReply(*of13.Factory, Writer, *of13.DescReply) error
	OnPortDescReply(*of13.Factory, Writer, *of13.PortDescReply) error
	OnPortStatus(*of13.Factory, Writer, *of13.PortStatus) error
	OnFlowRemoved(*of13.Factory, Writer, *of13.FlowRemoved) error
	OnPacketIn(*of13.Factory, Writer, *of13.PacketIn) error
}

type Transceiver struct {
	stream      *Stream
	handler     Handler
	factory     *of13.Factory
	pingCounter uint
}

func NewTransceiver(stream *Stream, handler Handler) *Transceiver {
	if stream == nil {
		panic("stream is nil")
	}
	if handler == nil {
		panic("handler is nil")
	}

	return &Transceiver{
		stream:  stream,
		handler: handler,
		factory: of13.NewFactory(),
	}
}

func (r *Transceiver) Factory() *of13.Factory {
	return r.factory
}

// Run reads and dispatches the messages until ctx is canceled or the
// connection is broken. The connection is not closed by Run.
func (r *Transceiver) Run(ctx context.Context) error {
	defer logger.Infof("transceiver is closed: %v", r.stream.RemoteAddr())
	r.stream.SetReadTimeout(readTimeout)
	r.stream.SetWriteTimeout(writeTimeout)

	readerCtx, cancelReader := context.WithCancel(ctx)
	defer cancelReader()
	reader := r.runReader(readerCtx)

	packet, err := r.negotiate(ctx, reader)
	if err != nil {
		return errors.Wrap(err, "failed to negotiate the protocol version")
	}

	for {
		if err := r.dispatch(packet); err != nil {
			if !isTemporaryErr(err) {
				return err
			}
			logger.Errorf("failed to dispatch the packet: %v", err)
		}

		var ok bool
		select {
		case <-ctx.Done():
			return nil
		case packet, ok = <-reader:
			if !ok {
				logger.Infof("the reader channel is closed: %v", r.stream.RemoteAddr())
				return nil
			}
		}
	}
}

func (r *Transceiver) negotiate(ctx context.Context, reader <-chan []byte) ([]byte, error) {
	timer := time.NewTimer(negotiationTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, errors.New("context done")
	case <-timer.C:
		return nil, errors.New("inactive for too long")
	case packet, ok := <-reader:
		if !ok {
			return nil, errors.New("the reader channel is closed")
		}
		if packet[1] != of13.OFPT_HELLO {
			return nil, errors.New("missing HELLO message")
		}
		// We only speak 1.3, so the switch should support 1.3 or higher.
		if packet[0] < openflow.OF13_VERSION {
			return nil, fmt.Errorf("unsupported OpenFlow version: %v", packet[0])
		}
		logger.Infof("negotiated to OpenFlow version 1.3: %v", r.stream.RemoteAddr())

		return packet, nil
	}
}

func isTimeout(err error) bool {
	v, ok := err.(net.Error)
	return ok && v.Timeout()
}

func isTemporaryErr(err error) bool {
	e, ok := errors.Cause(err).(interface {
		Temporary() bool
	})
	return ok && e.Temporary()
}

func (r *Transceiver) runReader(ctx context.Context) <-chan []byte {
	c := make(chan []byte, 4096)
	go func() {
		// Closing c tells Run that the connection is gone.
		defer close(c)

		lastActivated := time.Now()
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			packet, err := r.stream.ReadMessage()
			if err != nil {
				if !isTimeout(err) {
					logger.Errorf("failed to read the next packet: %v", err)
					return
				}
				if time.Since(lastActivated) > maxIdleTime {
					if err := r.sendEchoRequest(); err != nil {
						logger.Errorf("failed to send an echo request: %v", err)
						return
					}
					lastActivated = time.Now()
				}
				continue
			}
			lastActivated = time.Now()

			handled, err := r.handleEcho(packet)
			if err != nil {
				logger.Errorf("failed to handle the echo message: %v", err)
				return
			}
			if handled {
				continue
			}

			select {
			case c <- packet:
			default:
				logger.Error("transceiver buffer full: drop the incoming packet!")
			}
		}
	}()

	return c
}

func (r *Transceiver) sendEchoRequest() error {
	if r.pingCounter > maxPendingEcho {
		return errors.New("device does not respond to our echo request")
	}

	echo := r.factory.NewEchoRequest()
	// Timestamp to measure the latency.
	timestamp, err := time.Now().GobEncode()
	if err != nil {
		return err
	}
	echo.SetData(timestamp)
	if err := r.Write(echo); err != nil {
		return errors.Wrap(err, "failed to send ECHO_REQUEST message")
	}
	r.pingCounter++

	return nil
}

func (r *Transceiver) handleEcho(packet []byte) (handled bool, err error) {
	if packet[0] != openflow.OF13_VERSION {
		return false, nil
	}

	switch packet[1] {
	case of13.OFPT_ECHO_REQUEST:
		req := new(of13.EchoRequest)
		if err := req.UnmarshalBinary(packet); err != nil {
			return true, err
		}
		if err := r.Write(r.factory.NewEchoReply(req)); err != nil {
			return true, errors.Wrap(err, "failed to send ECHO_REPLY message")
		}
		return true, nil
	case of13.OFPT_ECHO_REPLY:
		reply := new(of13.EchoReply)
		if err := reply.UnmarshalBinary(packet); err != nil {
			return true, err
		}
		var sent time.Time
		// Some switches echo back garbage. Ignore it.
		if err := sent.GobDecode(reply.Data()); err == nil {
			logger.Debugf("echo latency to %v: %v", r.stream.RemoteAddr(), time.Since(sent))
		}
		r.pingCounter = 0
		return true, nil
	default:
		return false, nil
	}
}

type decoder interface {
	UnmarshalBinary([]byte) error
}

func (r *Transceiver) dispatch(packet []byte) error {
	if packet[0] != openflow.OF13_VERSION {
		// HELLO can carry a higher version.
		if packet[1] != of13.OFPT_HELLO {
			return fmt.Errorf("mis-matched OpenFlow version: packet=%v", packet[0])
		}
	}

	var msg decoder
	var call func() error
	switch packet[1] {
	case of13.OFPT_HELLO:
		v := new(of13.Hello)
		msg, call = v, func() error { return r.handler.OnHello(r.factory, r, v) }
	case of13.OFPT_ERROR:
		v := new(of13.Error)
		msg, call = v, func() error { return r.handler.OnError(r.factory, r, v) }
	case of13.OFPT_FEATURES_REPLY:
		v := new(of13.FeaturesReply)
		msg, call = v, func() error { return r.handler.OnFeaturesReply(r.factory, r, v) }
	case of13.OFPT_BARRIER_REPLY:
		v := new(of13.BarrierReply)
		msg, call = v, func() error { return r.handler.OnBarrierReply(r.factory, r, v) }
	case of13.OFPT_MULTIPART_REPLY:
		mp, err := of13.MultipartType(packet)
		if err != nil {
			return err
		}
		switch mp {
		case of13.OFPMP_DESC:
			v := new(of13.DescReply)
			msg, call = v, func() error { return r.handler.OnDescReply(r.factory, r, v) }
		case of13.OFPMP_PORT_DESC:
			v := new(of13.PortDescReply)
			msg, call = v, func() error { return r.handler.OnPortDescReply(r.factory, r, v) }
		default:
			logger.Debugf("ignore the unsupported multipart reply: type=%v", mp)
			return nil
		}
	case of13.OFPT_PORT_STATUS:
		v := new(of13.PortStatus)
		msg, call = v, func() error { return r.handler.OnPortStatus(r.factory, r, v) }
	case of13.OFPT_FLOW_REMOVED:
		v := new(of13.FlowRemoved)
		msg, call = v, func() error { return r.handler.OnFlowRemoved(r.factory, r, v) }
	case of13.OFPT_PACKET_IN:
		v := new(of13.PacketIn)
		msg, call = v, func() error { return r.handler.OnPacketIn(r.factory, r, v) }
	default:
		logger.Debugf("ignore the unsupported message: type=%v", packet[1])
		return nil
	}

	if err := msg.UnmarshalBinary(packet); err != nil {
		// A broken message should not kill the whole connection.
		logger.Warningf("failed to decode the message from %v: type=%v, err=%v", r.stream.RemoteAddr(), packet[1], err)
		return nil
	}

	return call()
}

func (r *Transceiver) Write(msg encoding.BinaryMarshaler) error {
	packet, err := msg.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = r.stream.Write(packet)

	return err
}

func (r *Transceiver) Close() error {
	return r.stream.Close()
}
