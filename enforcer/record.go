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
	"sync"
	"time"

	"github.com/kndrvt/acl-manager/compiler"
)

type opKind uint8

const (
	opInstall opKind = iota + 1
	opRemove
)

func (r opKind) String() string {
	if r == opInstall {
		return "install"
	}

	return "remove"
}

// record tracks a switch-resident flow entry identified by its key.
type record struct {
	mutex sync.Mutex
	key   compiler.Key
	// Unique per record. Used to map FLOW_REMOVED messages back to the record.
	cookie uint64

	state State
	// entry is the installed or being installed one.
	entry compiler.FlowEntry
	// want is the desired entry, and nil means that the entry is not desired.
	want *compiler.FlowEntry
	// inflight is true while an operation is outstanding. No other operation
	// is issued for this record meanwhile.
	inflight bool
	// op identifies the current operation. Completions for other ids are stale.
	op           uint64
	kind         opKind
	attempts     int
	failedRemove bool
	retry        timer
	updated      time.Time
}

// operation is a bus command decided under the record lock and executed
// outside of it.
type operation struct {
	rec   *record
	id    uint64
	kind  opKind
	entry compiler.FlowEntry
}

func (r *record) stopRetry() {
	if r.retry != nil {
		r.retry.Stop()
		r.retry = nil
	}
}

// Record is a snapshot of a record for reporting.
type Record struct {
	Key      string          `json:"key"`
	DPID     uint64          `json:"dpid"`
	Cookie   uint64          `json:"cookie"`
	State    State           `json:"state"`
	Action   compiler.Action `json:"action"`
	RuleID   string          `json:"rule_id"`
	Flow     string          `json:"flow"`
	Desired  bool            `json:"desired"`
	Inflight bool            `json:"inflight"`
	Attempts int             `json:"attempts"`
	Updated  time.Time       `json:"updated"`
}

func (r *record) snapshot() Record {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	e := r.entry
	if r.want != nil && r.state != Installed {
		e = *r.want
	}

	return Record{
		Key:      r.key.String(),
		DPID:     r.key.DPID,
		Cookie:   r.cookie,
		State:    r.state,
		Action:   e.Action,
		RuleID:   e.RuleID,
		Flow:     e.Tuple.String(),
		Desired:  r.want != nil,
		Inflight: r.inflight,
		Attempts: r.attempts,
		Updated:  r.updated,
	}
}
