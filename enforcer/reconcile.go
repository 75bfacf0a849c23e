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

	"github.com/kndrvt/acl-manager/acl"
	"github.com/kndrvt/acl-manager/compiler"
	"github.com/kndrvt/acl-manager/topology"
)

// Reconcile recompiles every known flow tuple against the current policy and
// topology, and issues the operations that move the switches toward the
// result. Failed records are retried. It returns the number of issued
// operations.
func (r *Engine) Reconcile() int {
	r.reconcileMutex.Lock()
	defer r.reconcileMutex.Unlock()

	desired := r.desired()

	r.mutex.Lock()
	records := make(map[compiler.Key]*record, len(r.records))
	for k, v := range r.records {
		records[k] = v
	}
	r.mutex.Unlock()

	var ops []*operation
	for key, rec := range records {
		rec.mutex.Lock()
		if entry, ok := desired[key]; ok {
			rec.want = &entry
		} else {
			rec.want = nil
		}
		if op := r.converge(rec, true); op != nil {
			ops = append(ops, op)
		}
		rec.mutex.Unlock()
	}
	for key, entry := range desired {
		if _, ok := records[key]; ok {
			continue
		}
		if op := r.desire(entry, true); op != nil {
			ops = append(ops, op)
		}
	}

	for _, op := range ops {
		r.submit(op)
	}
	if len(ops) > 0 {
		logger.Infof("reconciliation issued %v operations", len(ops))
	}
	r.emit(Event{Kind: EventReconcile, Key: fmt.Sprintf("epoch=%v ops=%v", r.store.Current().Epoch(), len(ops))})

	return len(ops)
}

// desired compiles the known flow tuples. The tuples that cannot be compiled
// contribute nothing, so their entries are withdrawn.
func (r *Engine) desired() map[compiler.Key]compiler.FlowEntry {
	policy := r.store.Current()
	result := make(map[compiler.Key]compiler.FlowEntry)
	for _, k := range r.tuples.Keys() {
		v, ok := r.tuples.Peek(k)
		if !ok {
			continue
		}
		t := v.(acl.FlowTuple)
		entries, err := r.compile(policy.Evaluate(t), t)
		if err != nil {
			logger.Debugf("skip the flow tuple in reconciliation: %v: %v", t, err)
			continue
		}
		for _, e := range entries {
			key := e.Key()
			// Two tuples compiled into the same switch entry; drop wins.
			if prev, ok := result[key]; ok && prev.Action == compiler.Drop {
				continue
			}
			result[key] = e
		}
	}

	return result
}

func (r *Engine) OnSwitchUp(dpid uint64, version uint8, ports []topology.Port) {
	// The session has wiped the flow table of the switch.
	r.disconnect(dpid)
	r.topo.OnSwitchConnect(dpid, version, ports)
	r.Trigger()
}

func (r *Engine) OnSwitchDown(dpid uint64) {
	staled := r.topo.OnSwitchDisconnect(dpid)
	r.disconnect(dpid)
	logger.Infof("switch is down: dpid=%016x, staled hosts=%v", dpid, len(staled))
	r.Trigger()
}

func (r *Engine) OnPortChange(dpid uint64, port topology.Port) {
	staled, linkRemoved := r.topo.OnPortChange(dpid, port)
	if len(staled) > 0 || linkRemoved {
		r.Trigger()
	}
}

func (r *Engine) OnLinkDiscovered(link topology.Link) {
	if r.topo.OnLinkDiscovered(link) {
		r.Trigger()
	}
}

// OnFlowRemoved handles a flow entry removed by the switch itself, which is an
// idle timeout usually. deleted is true if it is removed by a delete command.
func (r *Engine) OnFlowRemoved(dpid uint64, cookie uint64, deleted bool) {
	if cookie&^0xFFFFFFFF != cookieTag {
		return
	}
	r.mutex.Lock()
	rec, ok := r.cookies[cookie]
	r.mutex.Unlock()
	if !ok || rec.key.DPID != dpid {
		return
	}

	rec.mutex.Lock()
	// Our own remove, or another operation is in progress.
	if rec.inflight || rec.state != Installed {
		rec.mutex.Unlock()
		return
	}
	t := rec.entry.Tuple
	rec.want = nil
	r.transition(rec, Removed, nil)
	rec.mutex.Unlock()

	logger.Debugf("flow removed by the switch: key=%v, deleted=%v", rec.key, deleted)
	r.tuples.Remove(t.Key())
	r.recent.Remove(t)
}
