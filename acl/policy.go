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
	"net"
	"sort"
)

// FlowTuple identifies a flow to be evaluated.
type FlowTuple struct {
	SrcMAC   net.HardwareAddr
	DstMAC   net.HardwareAddr
	SrcIP    net.IP
	DstIP    net.IP
	Protocol uint8
	DstPort  uint16
}

func (r FlowTuple) String() string {
	return fmt.Sprintf("%v(%v) -> %v(%v) proto=%v port=%v", r.SrcIP, r.SrcMAC, r.DstIP, r.DstMAC, r.Protocol, r.DstPort)
}

// Key returns a comparable identity of the tuple.
func (r FlowTuple) Key() string {
	return fmt.Sprintf("%v/%v>%v/%v:%v/%v", r.SrcMAC, r.SrcIP.To4(), r.DstMAC, r.DstIP.To4(), r.Protocol, r.DstPort)
}

type Decision struct {
	Verdict Verdict
	// Rule is nil for the implicit default rule.
	Rule  *Rule
	Epoch uint64
}

func (r Decision) RuleID() string {
	if r.Rule == nil {
		return "default"
	}

	return r.Rule.ID
}

// Policy is an immutable rule set.
type Policy struct {
	rules []Rule
	def   Action
	epoch uint64
	doc   Document
}

// NewPolicy validates doc and builds a policy from it. Any invalid rule
// rejects the whole document.
func NewPolicy(doc Document) (*Policy, error) {
	return newPolicy(doc, 0)
}

func newPolicy(doc Document, epoch uint64) (*Policy, error) {
	def := Deny
	if doc.Default != "" {
		v, err := ParseAction(doc.Default)
		if err != nil {
			return nil, &ValidationError{Index: -1, Err: fmt.Errorf("default: %v", err)}
		}
		def = v
	}
	for name, addr := range doc.Hosts {
		if _, err := ParseHost(addr, nil); err != nil {
			return nil, &ValidationError{Index: -1, Err: fmt.Errorf("host alias %v: %v", name, err)}
		}
	}

	ids := make(map[string]int)
	rules := make([]Rule, 0, len(doc.Rules))
	for i, v := range doc.Rules {
		rule, err := parseRule(v, doc.Hosts)
		if err != nil {
			return nil, &ValidationError{Index: i, ID: v.ID, Err: err}
		}
		if prev, ok := ids[rule.ID]; ok {
			return nil, &ValidationError{Index: i, ID: v.ID, Err: fmt.Errorf("duplicated ID with rule #%v", prev)}
		}
		ids[rule.ID] = i
		for j, o := range rules {
			if rule.conflicts(o) {
				return nil, &ValidationError{Index: i, ID: v.ID, Err: fmt.Errorf("ambiguous priority tie with rule #%v (id=%q)", j, o.ID)}
			}
		}
		rules = append(rules, rule)
	}
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})

	return &Policy{rules: rules, def: def, epoch: epoch, doc: doc}, nil
}

// Rules returns the rules in the evaluation order.
func (r *Policy) Rules() []Rule {
	v := make([]Rule, len(r.rules))
	copy(v, r.rules)

	return v
}

func (r *Policy) Default() Action {
	return r.def
}

func (r *Policy) Epoch() uint64 {
	return r.epoch
}

func (r *Policy) Document() Document {
	return r.doc
}

// Evaluate returns the decision of the first matching rule, or the default.
func (r *Policy) Evaluate(t FlowTuple) Decision {
	for i := range r.rules {
		if r.rules[i].Match(t) {
			return Decision{Verdict: r.rules[i].Action.Verdict(), Rule: &r.rules[i], Epoch: r.epoch}
		}
	}

	return Decision{Verdict: r.def.Verdict(), Epoch: r.epoch}
}
