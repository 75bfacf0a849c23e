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
	"net"
	"strings"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/go-cmp/cmp"
)

func httpTuple(src, dst string) FlowTuple {
	return FlowTuple{
		SrcIP:    net.ParseIP(src),
		DstIP:    net.ParseIP(dst),
		Protocol: 6,
		DstPort:  80,
	}
}

func mustPolicy(t *testing.T, doc Document) *Policy {
	p, err := NewPolicy(doc)
	if err != nil {
		t.Fatalf("failed to build the policy: %v", err)
	}

	return p
}

var samplePolicy = Document{
	Default: "deny",
	Hosts:   map[string]string{"h1": "10.0.0.1", "h2": "10.0.0.2", "h5": "10.0.0.5"},
	Rules: []RuleDocument{
		{ID: "web-h1-h5", Priority: 100, Src: "h1", Dst: "h5", Protocol: "tcp", Port: 80, Action: "allow"},
		{ID: "block-lan", Priority: 50, Src: "10.0.0.0/24", Dst: "h5", Protocol: "tcp", Action: "deny"},
		{ID: "open-h3", Priority: 10, Src: "any", Dst: "10.0.0.3", Action: "allow"},
	},
}

func TestEvaluate(t *testing.T) {
	p := mustPolicy(t, samplePolicy)

	tests := []struct {
		tuple   FlowTuple
		verdict Verdict
		rule    string
	}{
		{httpTuple("10.0.0.1", "10.0.0.5"), VerdictAllow, "web-h1-h5"},
		// Lower priority rule matches.
		{httpTuple("10.0.0.2", "10.0.0.5"), VerdictDeny, "block-lan"},
		{httpTuple("10.0.0.4", "10.0.0.3"), VerdictAllow, "open-h3"},
		// Nothing matches.
		{httpTuple("192.168.0.1", "10.0.0.4"), VerdictDeny, "default"},
	}

	for _, test := range tests {
		d := p.Evaluate(test.tuple)
		if d.Verdict != test.verdict || d.RuleID() != test.rule {
			t.Fatalf("unexpected decision for %v: expected=%v/%v, got=%v", test.tuple, test.verdict, test.rule, spew.Sdump(d))
		}
		// Same input, same output.
		if again := p.Evaluate(test.tuple); again.Verdict != d.Verdict || again.Rule != d.Rule {
			t.Fatalf("non-deterministic decision for %v", test.tuple)
		}
	}
}

func TestFirstMatchWins(t *testing.T) {
	p := mustPolicy(t, Document{
		Rules: []RuleDocument{
			{ID: "low", Priority: 1, Src: "any", Dst: "any", Action: "allow"},
			{ID: "high", Priority: 2, Src: "10.0.0.1", Dst: "any", Action: "deny"},
		},
	})

	if d := p.Evaluate(httpTuple("10.0.0.1", "10.0.0.9")); d.RuleID() != "high" || d.Verdict != VerdictDeny {
		t.Fatalf("unexpected decision: %v", spew.Sdump(d))
	}
	if d := p.Evaluate(httpTuple("10.0.0.2", "10.0.0.9")); d.RuleID() != "low" || d.Verdict != VerdictAllow {
		t.Fatalf("unexpected decision: %v", spew.Sdump(d))
	}

	ids := []string{}
	for _, v := range p.Rules() {
		ids = append(ids, v.ID)
	}
	if diff := cmp.Diff([]string{"high", "low"}, ids); diff != "" {
		t.Fatalf("unexpected rule order (-want +got):\n%v", diff)
	}
}

func TestDefaultAllow(t *testing.T) {
	p := mustPolicy(t, Document{Default: "allow"})
	if d := p.Evaluate(httpTuple("10.0.0.1", "10.0.0.2")); d.Verdict != VerdictAllow || d.Rule != nil {
		t.Fatalf("unexpected decision: %v", spew.Sdump(d))
	}
}

func TestMACPredicate(t *testing.T) {
	p := mustPolicy(t, Document{
		Rules: []RuleDocument{
			{ID: "by-mac", Priority: 1, Src: "00:00:00:00:00:01", Dst: "any", Protocol: "tcp", Port: 80, Action: "allow"},
		},
	})

	tuple := httpTuple("10.0.0.1", "10.0.0.5")
	tuple.SrcMAC = net.HardwareAddr{0, 0, 0, 0, 0, 1}
	if d := p.Evaluate(tuple); d.RuleID() != "by-mac" {
		t.Fatalf("unexpected decision: %v", spew.Sdump(d))
	}
	tuple.DstPort = 8080
	if d := p.Evaluate(tuple); d.Rule != nil {
		t.Fatalf("rule should not match the other port: %v", spew.Sdump(d))
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		doc   Document
		index int
		id    string
		cause string
	}{
		{
			doc:   Document{Rules: []RuleDocument{{ID: "", Src: "any", Dst: "any", Action: "allow"}}},
			index: 0, cause: "empty rule ID",
		},
		{
			doc: Document{Rules: []RuleDocument{
				{ID: "ok", Src: "any", Dst: "any", Action: "allow"},
				{ID: "bad-host", Src: "h9", Dst: "any", Action: "allow"},
			}},
			index: 1, id: "bad-host", cause: "source",
		},
		{
			doc:   Document{Rules: []RuleDocument{{ID: "bad-port", Src: "any", Dst: "any", Protocol: "tcp", Port: 70000, Action: "allow"}}},
			index: 0, id: "bad-port", cause: "port out of range",
		},
		{
			doc:   Document{Rules: []RuleDocument{{ID: "port-only", Src: "any", Dst: "any", Port: 80, Action: "allow"}}},
			index: 0, id: "port-only", cause: "requires tcp or udp",
		},
		{
			doc:   Document{Rules: []RuleDocument{{ID: "bad-action", Src: "any", Dst: "any", Action: "maybe"}}},
			index: 0, id: "bad-action", cause: "unknown action",
		},
		{
			doc: Document{Rules: []RuleDocument{
				{ID: "dup", Src: "any", Dst: "any", Action: "allow"},
				{ID: "dup", Priority: 1, Src: "any", Dst: "any", Action: "allow"},
			}},
			index: 1, id: "dup", cause: "duplicated ID",
		},
		{
			doc: Document{Rules: []RuleDocument{
				{ID: "a", Priority: 5, Src: "10.0.0.0/24", Dst: "any", Protocol: "tcp", Port: 80, Action: "allow"},
				{ID: "b", Priority: 5, Src: "10.0.0.1", Dst: "10.0.0.5", Protocol: "tcp", Action: "deny"},
			}},
			index: 1, id: "b", cause: "ambiguous priority tie",
		},
	}

	for _, test := range tests {
		_, err := NewPolicy(test.doc)
		if err == nil {
			t.Fatalf("expected a validation error: %v", spew.Sdump(test.doc))
		}
		v, ok := err.(*ValidationError)
		if !ok {
			t.Fatalf("unexpected error type: %T", err)
		}
		if v.Index != test.index || v.ID != test.id || !strings.Contains(err.Error(), test.cause) {
			t.Fatalf("unexpected validation error: expected=#%v/%q/%q, got=%v", test.index, test.id, test.cause, err)
		}
	}
}

func TestNoConflictOnDisjointRules(t *testing.T) {
	_, err := NewPolicy(Document{Rules: []RuleDocument{
		{ID: "a", Priority: 5, Src: "10.0.0.1", Dst: "any", Protocol: "tcp", Port: 80, Action: "allow"},
		{ID: "b", Priority: 5, Src: "10.0.0.1", Dst: "any", Protocol: "tcp", Port: 443, Action: "deny"},
		{ID: "c", Priority: 5, Src: "10.0.1.0/24", Dst: "any", Action: "deny"},
		{ID: "d", Priority: 5, Src: "10.0.0.1", Dst: "any", Protocol: "tcp", Port: 80, Action: "allow"},
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSpecificity(t *testing.T) {
	p := mustPolicy(t, samplePolicy)
	expected := map[string]int{"web-h1-h5": 3, "block-lan": 1, "open-h3": 1}
	for _, v := range p.Rules() {
		if v.Specificity() != expected[v.ID] {
			t.Fatalf("unexpected specificity of %v: %v", v.ID, v.Specificity())
		}
	}
}
