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

package api

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/kndrvt/acl-manager/acl"
	"github.com/kndrvt/acl-manager/enforcer"
	"github.com/kndrvt/acl-manager/topology"

	"github.com/google/go-cmp/cmp"
)

type fakeManager struct {
	mutex      sync.Mutex
	policy     *acl.Policy
	reloadErr  error
	reloaded   int
	reconciled int
}

func (r *fakeManager) Policy() *acl.Policy { return r.policy }

func (r *fakeManager) ReloadPolicy() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.reloaded++
	return r.reloadErr
}

func (r *fakeManager) Switches() []topology.Switch {
	return []topology.Switch{
		{
			DPID:        1,
			Version:     4,
			Connected:   true,
			ConnectedAt: time.Unix(1600000000, 0).UTC(),
			Ports:       []topology.Port{{Number: 1, MAC: net.HardwareAddr{2, 0, 0, 0, 0, 1}, Name: "eth1", Up: true}},
		},
		{DPID: 5, Version: 4, DisconnectedAt: time.Unix(1600000100, 0).UTC()},
	}
}

func (r *fakeManager) Links() []topology.Link {
	return []topology.Link{{A: topology.Location{DPID: 1, Port: 10}, B: topology.Location{DPID: 5, Port: 10}}}
}

func (r *fakeManager) Hosts() []topology.Host {
	return []topology.Host{
		{MAC: net.HardwareAddr{0, 0, 0, 0, 0, 1}, IP: net.IPv4(10, 0, 0, 1), DPID: 1, Port: 1},
		{MAC: net.HardwareAddr{0, 0, 0, 0, 0, 5}, DPID: 5, Port: 1, Stale: true},
	}
}

func (r *fakeManager) Records() []enforcer.Record {
	return []enforcer.Record{
		{Key: "a", DPID: 1, State: enforcer.Installed},
		{Key: "b", DPID: 5, State: enforcer.Failed, Attempts: 5},
	}
}

func (r *fakeManager) Reconcile() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.reconciled++
	return 3
}

func (r *fakeManager) setReloadErr(err error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.reloadErr = err
}

func (r *fakeManager) counters() (reloaded, reconciled int) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.reloaded, r.reconciled
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeManager) {
	p, err := acl.NewPolicy(acl.Document{
		Default: "deny",
		Hosts:   map[string]string{"h1": "10.0.0.1", "h5": "10.0.0.5"},
		Rules:   []acl.RuleDocument{{ID: "web", Priority: 100, Src: "h1", Dst: "h5", Protocol: "tcp", Port: 80, Action: "allow"}},
	})
	if err != nil {
		t.Fatalf("failed to build a policy: %v", err)
	}
	m := &fakeManager{policy: p}
	s := &Server{Manager: m}
	handler, err := s.Handler()
	if err != nil {
		t.Fatalf("failed to build the handler: %v", err)
	}

	return httptest.NewServer(handler), m
}

// call sends a request and decodes the data field of the response into data.
func call(t *testing.T, method, url string, data interface{}) (int, Response) {
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatalf("failed to make a request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("failed to send a request: %v", err)
	}
	defer resp.Body.Close()

	v := struct {
		Response
		Data json.RawMessage `json:"data"`
	}{}
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode the response: %v", err)
	}
	if data != nil && len(v.Data) > 0 {
		if err := json.Unmarshal(v.Data, data); err != nil {
			t.Fatalf("failed to decode the data: %v", err)
		}
	}

	return resp.StatusCode, v.Response
}

func TestGetACL(t *testing.T) {
	server, _ := newTestServer(t)
	defer server.Close()

	v := policyView{}
	code, resp := call(t, "GET", server.URL+"/api/v1/acl", &v)
	if code != http.StatusOK || resp.Status != StatusOkay {
		t.Fatalf("unexpected response: code=%v, resp=%+v", code, resp)
	}
	if len(v.Document.Rules) != 1 || v.Document.Rules[0].ID != "web" || v.Document.Hosts["h5"] != "10.0.0.5" {
		t.Fatalf("unexpected policy: %+v", v)
	}
}

func TestReloadACL(t *testing.T) {
	server, m := newTestServer(t)
	defer server.Close()

	code, _ := call(t, "POST", server.URL+"/api/v1/acl/reload", nil)
	if reloaded, _ := m.counters(); code != http.StatusOK || reloaded != 1 {
		t.Fatalf("unexpected result: code=%v, reloaded=%v", code, reloaded)
	}

	m.setReloadErr(&acl.ValidationError{Index: 2, ID: "bad", Err: errors.New("unknown action")})
	code, resp := call(t, "POST", server.URL+"/api/v1/acl/reload", nil)
	if code != http.StatusBadRequest || resp.Status != StatusInvalidParameter || resp.Message != `invalid rule #2 (id="bad"): unknown action` {
		t.Fatalf("unexpected response: code=%v, resp=%+v", code, resp)
	}

	m.setReloadErr(errors.New("connection refused"))
	code, resp = call(t, "POST", server.URL+"/api/v1/acl/reload", nil)
	if code != http.StatusInternalServerError || resp.Status != StatusInternalServerError {
		t.Fatalf("unexpected response: code=%v, resp=%+v", code, resp)
	}
}

func TestListSwitches(t *testing.T) {
	server, _ := newTestServer(t)
	defer server.Close()

	v := struct {
		Switches []switchView `json:"switches"`
		Links    []linkView   `json:"links"`
	}{}
	call(t, "GET", server.URL+"/api/v1/switch", &v)

	if len(v.Switches) != 2 {
		t.Fatalf("unexpected switches: %+v", v.Switches)
	}
	expected := []portView{{Number: 1, MAC: "02:00:00:00:00:01", Name: "eth1", Up: true}}
	if diff := cmp.Diff(expected, v.Switches[0].Ports); diff != "" {
		t.Fatalf("unexpected ports (-want +got):\n%v", diff)
	}
	if v.Switches[0].DPID != "0000000000000001" || v.Switches[0].DisconnectedAt != nil {
		t.Fatalf("unexpected switch: %+v", v.Switches[0])
	}
	if v.Switches[1].Connected || v.Switches[1].DisconnectedAt == nil {
		t.Fatalf("unexpected switch: %+v", v.Switches[1])
	}
	if diff := cmp.Diff([]linkView{{A: "0000000000000001/10", B: "0000000000000005/10"}}, v.Links); diff != "" {
		t.Fatalf("unexpected links (-want +got):\n%v", diff)
	}
}

func TestListHosts(t *testing.T) {
	server, _ := newTestServer(t)
	defer server.Close()

	var v []hostView
	call(t, "GET", server.URL+"/api/v1/host", &v)
	if len(v) != 2 || v[0].IP != "10.0.0.1" || v[1].IP != "" || !v[1].Stale {
		t.Fatalf("unexpected hosts: %+v", v)
	}
}

func TestListFlows(t *testing.T) {
	server, _ := newTestServer(t)
	defer server.Close()

	var v []struct {
		Key   string `json:"key"`
		State string `json:"state"`
	}
	call(t, "GET", server.URL+"/api/v1/flow", &v)
	if len(v) != 2 {
		t.Fatalf("unexpected flows: %+v", v)
	}

	v = nil
	call(t, "GET", server.URL+"/api/v1/flow?state=FAILED", &v)
	if len(v) != 1 || v[0].Key != "b" || v[0].State != "FAILED" {
		t.Fatalf("unexpected flows: %+v", v)
	}
}

func TestReconcile(t *testing.T) {
	server, m := newTestServer(t)
	defer server.Close()

	v := struct {
		Operations int `json:"operations"`
	}{}
	call(t, "POST", server.URL+"/api/v1/reconcile", &v)
	if _, reconciled := m.counters(); v.Operations != 3 || reconciled != 1 {
		t.Fatalf("unexpected result: operations=%v, reconciled=%v", v.Operations, reconciled)
	}
}

func TestHandlerWithoutManager(t *testing.T) {
	if _, err := (&Server{}).Handler(); err == nil {
		t.Fatal("expected an error")
	}
}
