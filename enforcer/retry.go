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
	"math"
	"time"
)

type RetryConfig struct {
	Initial time.Duration
	Max     time.Duration
	// Attempts is the total number of tries including the first one.
	Attempts int
}

// delay returns the backoff before the next try after n failed attempts.
func (r RetryConfig) delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	// Overflow?
	if float64(n-1) > math.Log2(float64(r.Max)/float64(r.Initial)) {
		return r.Max
	}
	d := time.Duration(float64(r.Initial) * math.Pow(2, float64(n-1)))
	if d > r.Max {
		return r.Max
	}

	return d
}

type timer interface {
	Stop() bool
}

func afterFunc(d time.Duration, f func()) timer {
	return time.AfterFunc(d, f)
}
