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
	"context"
	"sync"
)

// canceller keeps the cancel function of the current session per DPID.
type canceller struct {
	mu    sync.Mutex
	elems map[uint64]cancelElem
}

type cancelElem struct {
	owner  *session
	cancel context.CancelFunc
}

func newCanceller() *canceller {
	return &canceller{elems: make(map[uint64]cancelElem)}
}

// push registers owner as the current session of dpid, and returns the cancel
// function of the previous session if any.
func (r *canceller) push(dpid uint64, owner *session, cancel context.CancelFunc) (prev context.CancelFunc, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.elems[dpid]
	r.elems[dpid] = cancelElem{owner: owner, cancel: cancel}
	if !ok || e.owner == owner {
		return nil, false
	}

	return e.cancel, true
}

// pop removes owner if it is still the current session of dpid. It returns
// false if a newer session has replaced owner.
func (r *canceller) pop(dpid uint64, owner *session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.elems[dpid]
	if !ok || e.owner != owner {
		return false
	}
	delete(r.elems, dpid)

	return true
}

func (r *canceller) get(dpid uint64) (*session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.elems[dpid]
	if !ok {
		return nil, false
	}

	return e.owner, true
}

func (r *canceller) all() []*session {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := make([]*session, 0, len(r.elems))
	for _, e := range r.elems {
		v = append(v, e.owner)
	}

	return v
}
