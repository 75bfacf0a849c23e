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
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestStoreReload(t *testing.T) {
	store := NewStore(nil)
	tuple := httpTuple("10.0.0.1", "10.0.0.5")
	if d := store.Evaluate(tuple); d.Verdict != VerdictDeny || d.Epoch != 0 {
		t.Fatalf("empty store should deny: %+v", d)
	}

	p, err := store.Reload(samplePolicy)
	if err != nil {
		t.Fatalf("failed to reload: %v", err)
	}
	if p.Epoch() != 1 || store.Current() != p {
		t.Fatalf("unexpected policy after reload: epoch=%v", p.Epoch())
	}
	if d := store.Evaluate(tuple); d.Verdict != VerdictAllow || d.Epoch != 1 {
		t.Fatalf("unexpected decision: %+v", d)
	}

	// Invalid document keeps the previous policy.
	bad := Document{Rules: []RuleDocument{{ID: "x", Src: "nowhere", Dst: "any", Action: "allow"}}}
	if _, err := store.Reload(bad); err == nil {
		t.Fatal("expected a validation error")
	}
	if store.Current() != p {
		t.Fatal("the previous policy should stay in force")
	}
}

func TestStoreConcurrentReaders(t *testing.T) {
	store := NewStore(nil)
	allowAll := Document{Default: "allow"}
	denyAll := Document{Default: "deny"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				p := store.Current()
				// A policy never changes once it is published.
				if p.Evaluate(httpTuple("10.0.0.1", "10.0.0.2")).Verdict != p.Default().Verdict() {
					t.Errorf("inconsistent policy: epoch=%v", p.Epoch())
					return
				}
			}
		}()
	}
	for i := 0; i < 100; i++ {
		doc := allowAll
		if i%2 == 0 {
			doc = denyAll
		}
		if _, err := store.Reload(doc); err != nil {
			t.Fatalf("failed to reload: %v", err)
		}
	}
	wg.Wait()

	if store.Current().Epoch() != 100 {
		t.Fatalf("unexpected epoch: %v", store.Current().Epoch())
	}
}

func TestLoadFile(t *testing.T) {
	content := `
default: deny
hosts: {h1: 10.0.0.1, h5: 10.0.0.5}
rules:
  - {id: web-h1-h5, priority: 100, src: h1, dst: h5, protocol: tcp, port: 80, action: allow}
`
	path := filepath.Join(t.TempDir(), "acl.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	doc, err := LoadFile(path)
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	expected := Document{
		Default: "deny",
		Hosts:   map[string]string{"h1": "10.0.0.1", "h5": "10.0.0.5"},
		Rules: []RuleDocument{
			{ID: "web-h1-h5", Priority: 100, Src: "h1", Dst: "h5", Protocol: "tcp", Port: 80, Action: "allow"},
		},
	}
	if diff := cmp.Diff(expected, doc); diff != "" {
		t.Fatalf("mismatched document (-want +got):\n%v", diff)
	}
}

func TestParseDocumentStrict(t *testing.T) {
	if _, err := ParseDocument([]byte("rules:\n  - {id: a, src: any, dst: any, action: allow, verdict: x}\n")); err == nil {
		t.Fatal("expected an error for the unknown field")
	}
	if _, err := ParseDocument([]byte("rules: [")); err == nil {
		t.Fatal("expected an error for the malformed document")
	}
	doc, err := ParseDocument(nil)
	if err != nil || len(doc.Rules) != 0 {
		t.Fatalf("empty input should be an empty document: %v, %v", doc, err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for the missing file")
	}
}
