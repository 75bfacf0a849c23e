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
	"fmt"
	"strings"
)

type Action uint8

const (
	Allow Action = iota + 1
	Deny
)

func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "allow", "accept", "permit":
		return Allow, nil
	case "deny", "drop", "reject":
		return Deny, nil
	default:
		return 0, fmt.Errorf("unknown action: %q", s)
	}
}

func (r Action) String() string {
	switch r {
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	default:
		return fmt.Sprintf("Action(%d)", uint8(r))
	}
}

func (r Action) Verdict() Verdict {
	switch r {
	case Allow:
		return VerdictAllow
	case Deny:
		return VerdictDeny
	default:
		return VerdictUnknown
	}
}

// Verdict is the result carried through the compilation. VerdictUnknown
// means that no decision could be made, and callers should fail closed.
type Verdict uint8

const (
	VerdictUnknown Verdict = iota
	VerdictAllow
	VerdictDeny
)

func (r Verdict) String() string {
	switch r {
	case VerdictAllow:
		return "ALLOW"
	case VerdictDeny:
		return "DENY"
	default:
		return "UNKNOWN"
	}
}

func (r Verdict) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}
