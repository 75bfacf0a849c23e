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

package network

import (
	"sync"
)

// pending tracks the flow-mods waiting for their barrier replies.
type pending struct {
	mutex    sync.Mutex
	flowMods map[uint32]*pendingFlowMod
	// Barrier xid to the flow-mod xid. Zero for a barrier that we send alone.
	barriers map[uint32]uint32
}

type pendingFlowMod struct {
	barrier uint32
	done    func(error)
}

func newPending() *pending {
	return &pending{
		flowMods: make(map[uint32]*pendingFlowMod),
		barriers: make(map[uint32]uint32),
	}
}

func (r *pending) addBarrier(barrier uint32) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.barriers[barrier] = 0
}

func (r *pending) add(flowMod, barrier uint32, done func(error)) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.flowMods[flowMod] = &pendingFlowMod{barrier: barrier, done: done}
	r.barriers[barrier] = flowMod
}

// remove forgets the flow-mod without calling its callback. It returns false
// if the flow-mod is not pending anymore, which means its callback has been
// called or is being called.
func (r *pending) remove(flowMod uint32) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	v, ok := r.flowMods[flowMod]
	if !ok {
		return false
	}
	delete(r.barriers, v.barrier)
	delete(r.flowMods, flowMod)

	return true
}

// complete handles the barrier reply whose xid is barrier. It returns false
// for an unknown barrier.
func (r *pending) complete(barrier uint32) bool {
	r.mutex.Lock()
	flowMod, ok := r.barriers[barrier]
	if !ok {
		r.mutex.Unlock()
		return false
	}
	delete(r.barriers, barrier)
	v, found := r.flowMods[flowMod]
	if found {
		delete(r.flowMods, flowMod)
	}
	r.mutex.Unlock()

	// The flow-mod might have failed already by an error message.
	if found && v.done != nil {
		v.done(nil)
	}

	return true
}

// fail calls the callback of the flow-mod whose xid is flowMod with err. The
// following barrier reply is consumed silently.
func (r *pending) fail(flowMod uint32, err error) bool {
	r.mutex.Lock()
	v, ok := r.flowMods[flowMod]
	if ok {
		delete(r.flowMods, flowMod)
	}
	r.mutex.Unlock()

	if !ok {
		return false
	}
	if v.done != nil {
		v.done(err)
	}

	return true
}

// failAll fails every outstanding flow-mod, and returns the number of them.
func (r *pending) failAll(err error) int {
	r.mutex.Lock()
	flowMods := r.flowMods
	r.flowMods = make(map[uint32]*pendingFlowMod)
	r.barriers = make(map[uint32]uint32)
	r.mutex.Unlock()

	for _, v := range flowMods {
		if v.done != nil {
			v.done(err)
		}
	}

	return len(flowMods)
}

func (r *pending) len() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return len(r.flowMods)
}
