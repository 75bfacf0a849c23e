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

package topology

import (
	"container/list"
)

// Reachable returns whether b can be reached from a through the discovered
// links between connected switches.
func (r *Model) Reachable(a, b uint64) bool {
	// Read lock
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if !r.connected(a) || !r.connected(b) {
		return false
	}
	if a == b {
		return true
	}

	adjacency := make(map[uint64][]uint64)
	for l := range r.links {
		adjacency[l.A.DPID] = append(adjacency[l.A.DPID], l.B.DPID)
		adjacency[l.B.DPID] = append(adjacency[l.B.DPID], l.A.DPID)
	}

	visited := map[uint64]bool{a: true}
	queue := list.New()
	queue.PushBack(a)
	// BFS
	for queue.Len() > 0 {
		v := queue.Remove(queue.Front()).(uint64)
		for _, next := range adjacency[v] {
			if visited[next] || !r.connected(next) {
				continue
			}
			if next == b {
				return true
			}
			visited[next] = true
			queue.PushBack(next)
		}
	}

	return false
}

// NOTE: The caller should hold the lock.
func (r *Model) connected(dpid uint64) bool {
	sw, ok := r.switches[dpid]
	return ok && sw.Connected
}
