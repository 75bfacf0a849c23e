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

package enforcer

import (
	"fmt"
	"time"

	"github.com/kndrvt/acl-manager/acl"

	"github.com/op/go-logging"
)

type EventKind string

const (
	EventDecision   EventKind = "decision"
	EventTransition EventKind = "transition"
	EventFailure    EventKind = "failure"
	EventFallback   EventKind = "fallback"
	EventViolation  EventKind = "violation"
	EventReconcile  EventKind = "reconcile"
)

// Event is emitted once per decision or state transition.
type Event struct {
	Kind    EventKind
	DPID    uint64
	Key     string
	Rule    string
	From    State
	To      State
	Verdict acl.Verdict
	Err     error
	Time    time.Time
}

func (r Event) String() string {
	v := fmt.Sprintf("kind=%v dpid=%016x", r.Kind, r.DPID)
	if r.Key != "" {
		v += fmt.Sprintf(" key=%v", r.Key)
	}
	if r.Rule != "" {
		v += fmt.Sprintf(" rule=%v", r.Rule)
	}
	switch r.Kind {
	case EventTransition, EventFailure, EventViolation:
		v += fmt.Sprintf(" from=%v to=%v", r.From, r.To)
	case EventDecision, EventFallback:
		v += fmt.Sprintf(" verdict=%v", r.Verdict)
	}
	if r.Err != nil {
		v += fmt.Sprintf(" err=%q", r.Err)
	}

	return v
}

// EventSink receives the events. Emit is called synchronously, sometimes with
// a record lock held, so it should not block or call back into the engine.
type EventSink interface {
	Emit(Event)
}

var (
	eventLogger = logging.MustGetLogger("event")
)

// LogSink writes the events to the event logger.
type LogSink struct{}

func (r LogSink) Emit(e Event) {
	switch e.Kind {
	case EventViolation:
		eventLogger.Critical(e.String())
	case EventFailure:
		eventLogger.Error(e.String())
	case EventFallback:
		eventLogger.Warning(e.String())
	case EventDecision:
		eventLogger.Debug(e.String())
	default:
		eventLogger.Info(e.String())
	}
}
