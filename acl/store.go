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
	"sync"
	"sync/atomic"

	"github.com/op/go-logging"
)

var (
	logger = logging.MustGetLogger("acl")
)

// Store holds the active policy. Readers never block and observe either the
// old or the new policy as a whole.
type Store struct {
	// Writers are serialized.
	mutex  sync.Mutex
	policy atomic.Value
}

// NewStore returns a store whose initial policy is p. A nil p means an empty
// policy that denies everything.
func NewStore(p *Policy) *Store {
	if p == nil {
		p = &Policy{def: Deny}
	}

	v := new(Store)
	v.policy.Store(p)

	return v
}

func (r *Store) Current() *Policy {
	return r.policy.Load().(*Policy)
}

func (r *Store) Evaluate(t FlowTuple) Decision {
	return r.Current().Evaluate(t)
}

// Reload validates doc and swaps the active policy. The previous policy stays
// in force if doc is invalid.
func (r *Store) Reload(doc Document) (*Policy, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	p, err := newPolicy(doc, r.Current().Epoch()+1)
	if err != nil {
		logger.Errorf("rejected the new policy: %v", err)
		return nil, err
	}
	r.policy.Store(p)
	logger.Infof("policy reloaded: epoch=%v, rules=%v, default=%v", p.Epoch(), len(p.rules), p.Default())

	return p, nil
}
