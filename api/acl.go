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
	"fmt"
	"net/http"
	"time"

	"github.com/kndrvt/acl-manager/acl"
	"github.com/kndrvt/acl-manager/enforcer"

	"github.com/ant0ine/go-json-rest/rest"
	"github.com/pkg/errors"
)

type policyView struct {
	Epoch    uint64       `json:"epoch"`
	Document acl.Document `json:"document"`
}

func (r *Server) getACL(w rest.ResponseWriter, req *rest.Request) {
	logger.Debugf("ACL request from %v", req.RemoteAddr)

	p := r.Manager.Policy()
	w.WriteJson(Response{
		Status: StatusOkay,
		Data:   policyView{Epoch: p.Epoch(), Document: p.Document()},
	})
}

func (r *Server) reloadACL(w rest.ResponseWriter, req *rest.Request) {
	logger.Infof("ACL reload request from %v", req.RemoteAddr)

	if err := r.Manager.ReloadPolicy(); err != nil {
		logger.Errorf("failed to reload the policy: %v", err)
		var invalid *acl.ValidationError
		if errors.As(err, &invalid) {
			writeError(w, http.StatusBadRequest, StatusInvalidParameter, err)
			return
		}
		writeError(w, http.StatusInternalServerError, StatusInternalServerError, err)
		return
	}

	p := r.Manager.Policy()
	w.WriteJson(Response{
		Status: StatusOkay,
		Data:   policyView{Epoch: p.Epoch(), Document: p.Document()},
	})
}

func writeError(w rest.ResponseWriter, code int, status Status, err error) {
	w.WriteHeader(code)
	w.WriteJson(Response{Status: status, Message: err.Error()})
}

type portView struct {
	Number uint32 `json:"number"`
	MAC    string `json:"mac"`
	Name   string `json:"name"`
	Up     bool   `json:"up"`
}

type linkView struct {
	A string `json:"a"`
	B string `json:"b"`
}

type switchView struct {
	DPID           string     `json:"dpid"`
	Version        uint8      `json:"version"`
	Connected      bool       `json:"connected"`
	ConnectedAt    time.Time  `json:"connected_at"`
	DisconnectedAt *time.Time `json:"disconnected_at,omitempty"`
	Ports          []portView `json:"ports"`
}

func dpidString(dpid uint64) string {
	return fmt.Sprintf("%016x", dpid)
}

func (r *Server) listSwitches(w rest.ResponseWriter, req *rest.Request) {
	logger.Debugf("switch list request from %v", req.RemoteAddr)

	switches := r.Manager.Switches()
	v := struct {
		Switches []switchView `json:"switches"`
		Links    []linkView   `json:"links"`
	}{
		Switches: make([]switchView, 0, len(switches)),
		Links:    []linkView{},
	}
	for _, s := range switches {
		sw := switchView{
			DPID:        dpidString(s.DPID),
			Version:     s.Version,
			Connected:   s.Connected,
			ConnectedAt: s.ConnectedAt,
			Ports:       make([]portView, 0, len(s.Ports)),
		}
		if !s.Connected && !s.DisconnectedAt.IsZero() {
			t := s.DisconnectedAt
			sw.DisconnectedAt = &t
		}
		for _, p := range s.Ports {
			sw.Ports = append(sw.Ports, portView{Number: p.Number, MAC: p.MAC.String(), Name: p.Name, Up: p.Up})
		}
		v.Switches = append(v.Switches, sw)
	}
	for _, l := range r.Manager.Links() {
		v.Links = append(v.Links, linkView{A: l.A.String(), B: l.B.String()})
	}

	w.WriteJson(Response{Status: StatusOkay, Data: v})
}

type hostView struct {
	MAC      string    `json:"mac"`
	IP       string    `json:"ip,omitempty"`
	DPID     string    `json:"dpid"`
	Port     uint32    `json:"port"`
	LastSeen time.Time `json:"last_seen"`
	Stale    bool      `json:"stale"`
}

func (r *Server) listHosts(w rest.ResponseWriter, req *rest.Request) {
	logger.Debugf("host list request from %v", req.RemoteAddr)

	hosts := r.Manager.Hosts()
	v := make([]hostView, 0, len(hosts))
	for _, h := range hosts {
		host := hostView{
			MAC:      h.MAC.String(),
			DPID:     dpidString(h.DPID),
			Port:     h.Port,
			LastSeen: h.LastSeen,
			Stale:    h.Stale,
		}
		if h.IP != nil {
			host.IP = h.IP.String()
		}
		v = append(v, host)
	}

	w.WriteJson(Response{Status: StatusOkay, Data: v})
}

func (r *Server) listFlows(w rest.ResponseWriter, req *rest.Request) {
	logger.Debugf("flow list request from %v", req.RemoteAddr)

	records := r.Manager.Records()
	// Optional state filter, e.g. ?state=FAILED
	if state := req.URL.Query().Get("state"); state != "" {
		filtered := make([]enforcer.Record, 0, len(records))
		for _, v := range records {
			if v.State.String() == state {
				filtered = append(filtered, v)
			}
		}
		records = filtered
	}
	if records == nil {
		records = []enforcer.Record{}
	}

	w.WriteJson(Response{Status: StatusOkay, Data: records})
}

func (r *Server) reconcile(w rest.ResponseWriter, req *rest.Request) {
	logger.Infof("reconcile request from %v", req.RemoteAddr)

	n := r.Manager.Reconcile()
	w.WriteJson(Response{
		Status: StatusOkay,
		Data: struct {
			Operations int `json:"operations"`
		}{n},
	})
}
