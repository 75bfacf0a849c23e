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
	"errors"
	"testing"
)

func TestPendingBarrierCompletes(t *testing.T) {
	p := newPending()
	var result []error
	p.add(10, 11, func(err error) { result = append(result, err) })

	if !p.complete(11) {
		t.Fatalf("expected a known barrier")
	}
	if len(result) != 1 || result[0] != nil {
		t.Fatalf("unexpected callback results: %v", result)
	}
	// Only once.
	if p.complete(11) {
		t.Fatalf("expected an unknown barrier")
	}
	if len(result) != 1 {
		t.Fatalf("callback is called again: %v", result)
	}
}

func TestPendingErrorFails(t *testing.T) {
	p := newPending()
	rejected := errors.New("rejected")
	var result []error
	p.add(20, 21, func(err error) { result = append(result, err) })

	if !p.fail(20, rejected) {
		t.Fatalf("expected a known flow-mod")
	}
	// The barrier reply that follows the error is consumed silently.
	if !p.complete(21) {
		t.Fatalf("expected a known barrier")
	}
	if len(result) != 1 || result[0] != rejected {
		t.Fatalf("unexpected callback results: %v", result)
	}
	if p.fail(99, rejected) {
		t.Fatalf("expected an unknown flow-mod")
	}
}

func TestPendingFailAll(t *testing.T) {
	p := newPending()
	count := 0
	for i := uint32(0); i < 5; i++ {
		p.add(i*2+1, i*2+2, func(err error) {
			if err != ErrClosedDevice {
				t.Fatalf("unexpected error: %v", err)
			}
			count++
		})
	}
	p.addBarrier(100)

	if n := p.failAll(ErrClosedDevice); n != 5 {
		t.Fatalf("unexpected number of failed flow-mods: %v", n)
	}
	if count != 5 || p.len() != 0 {
		t.Fatalf("unexpected state: count=%v, len=%v", count, p.len())
	}
	if p.complete(100) {
		t.Fatalf("barriers should be cleared")
	}
}

func TestPendingRemove(t *testing.T) {
	p := newPending()
	p.add(1, 2, func(err error) { t.Fatalf("removed callback is called: %v", err) })
	if !p.remove(1) {
		t.Fatalf("failed to remove a pending flow-mod")
	}
	if p.complete(2) || p.fail(1, nil) {
		t.Fatalf("removed flow-mod is still pending")
	}
}

func TestPendingRemoveAfterFailAll(t *testing.T) {
	p := newPending()
	calls := 0
	p.add(1, 2, func(err error) {
		calls++
		if err != ErrClosedDevice {
			t.Fatalf("unexpected error: %v", err)
		}
	})
	// The session is closed while the flow-mod is being written.
	p.failAll(ErrClosedDevice)
	if p.remove(1) {
		t.Fatalf("flow-mod failed by the closed session is still removable")
	}
	if calls != 1 {
		t.Fatalf("unexpected number of callbacks: %v", calls)
	}
}
