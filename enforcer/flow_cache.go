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

	lru "github.com/hashicorp/golang-lru"
)

// flowCache remembers the flows that have been decided recently so that the
// retransmitted packet-ins do not compile and desire the same entries again.
type flowCache struct {
	cache      *lru.Cache
	expiration time.Duration
	now        func() time.Time
}

type decided struct {
	epoch     uint64
	timestamp time.Time
}

func newFlowCache(size int, expiration time.Duration) *flowCache {
	c, err := lru.New(size)
	if err != nil {
		panic(fmt.Sprintf("failed to init a LRU flow cache: %v", err))
	}

	return &flowCache{
		cache:      c,
		expiration: expiration,
		now:        time.Now,
	}
}

func (r *flowCache) Add(t acl.FlowTuple, epoch uint64) {
	r.cache.Add(t.Key(), decided{epoch: epoch, timestamp: r.now()})
}

// Seen returns true if the flow was decided within the expiration under the
// same policy epoch.
func (r *flowCache) Seen(t acl.FlowTuple, epoch uint64) bool {
	key := t.Key()
	v, ok := r.cache.Get(key)
	if !ok {
		return false
	}
	d := v.(decided)
	if d.epoch != epoch || r.now().Sub(d.timestamp) > r.expiration {
		r.cache.Remove(key)
		return false
	}

	return true
}

func (r *flowCache) Remove(t acl.FlowTuple) {
	r.cache.Remove(t.Key())
}

func (r *flowCache) RemoveAll() {
	r.cache.Purge()
	logger.Debug("removed all the recent flow decisions")
}
