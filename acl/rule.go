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
)

// MaxPriority keeps the compiled flow priorities below the LLDP rule.
const MaxPriority = 8000

// Document is the external representation of a policy. YAML files and the
// database are both decoded into it.
type Document struct {
	Default string            `yaml:"default" json:"default"`
	Hosts   map[string]string `yaml:"hosts" json:"hosts,omitempty"`
	Rules   []RuleDocument    `yaml:"rules" json:"rules"`
}

type RuleDocument struct {
	ID       string `yaml:"id" json:"id"`
	Priority int    `yaml:"priority" json:"priority"`
	Src      string `yaml:"src" json:"src"`
	Dst      string `yaml:"dst" json:"dst"`
	Protocol string `yaml:"protocol" json:"protocol,omitempty"`
	Port     int    `yaml:"port" json:"port,omitempty"`
	Action   string `yaml:"action" json:"action"`
}

type Rule struct {
	ID       string
	Priority int
	Src      HostPredicate
	Dst      HostPredicate
	Service  Service
	Action   Action
}

func (r Rule) String() string {
	return fmt.Sprintf("Rule(id=%v, priority=%v, %v -> %v %v, %v)", r.ID, r.Priority, r.Src, r.Dst, r.Service, r.Action)
}

// Specificity is the number of exact predicates among the source, the
// destination and the service.
func (r Rule) Specificity() int {
	n := 0
	if r.Src.IsExact() {
		n++
	}
	if r.Dst.IsExact() {
		n++
	}
	if r.Service.IsExact() {
		n++
	}

	return n
}

func (r Rule) Match(t FlowTuple) bool {
	return r.Src.Match(t.SrcMAC, t.SrcIP) && r.Dst.Match(t.DstMAC, t.DstIP) && r.Service.Match(t.Protocol, t.DstPort)
}

// conflicts returns true if both rules can match a same flow with different
// actions at the same priority, so that the result depends on the rule ID.
func (r Rule) conflicts(o Rule) bool {
	if r.Priority != o.Priority || r.Action == o.Action {
		return false
	}

	return r.Src.Overlaps(o.Src) && r.Dst.Overlaps(o.Dst) && r.Service.Overlaps(o.Service)
}

// ValidationError identifies the offending rule of a rejected document.
type ValidationError struct {
	Index int
	ID    string
	Err   error
}

func (r *ValidationError) Error() string {
	if r.Index < 0 {
		return fmt.Sprintf("invalid policy: %v", r.Err)
	}

	return fmt.Sprintf("invalid rule #%v (id=%q): %v", r.Index, r.ID, r.Err)
}

func parseRule(doc RuleDocument, aliases map[string]string) (Rule, error) {
	if doc.ID == "" {
		return Rule{}, fmt.Errorf("empty rule ID")
	}
	if doc.Priority < 0 || doc.Priority > MaxPriority {
		return Rule{}, fmt.Errorf("priority out of range [0, %v]: %v", MaxPriority, doc.Priority)
	}
	src, err := ParseHost(doc.Src, aliases)
	if err != nil {
		return Rule{}, fmt.Errorf("source: %v", err)
	}
	dst, err := ParseHost(doc.Dst, aliases)
	if err != nil {
		return Rule{}, fmt.Errorf("destination: %v", err)
	}
	service, err := ParseService(doc.Protocol, doc.Port)
	if err != nil {
		return Rule{}, err
	}
	action, err := ParseAction(doc.Action)
	if err != nil {
		return Rule{}, err
	}

	return Rule{
		ID:       doc.ID,
		Priority: doc.Priority,
		Src:      src,
		Dst:      dst,
		Service:  service,
		Action:   action,
	}, nil
}
