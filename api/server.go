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
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kndrvt/acl-manager/acl"
	"github.com/kndrvt/acl-manager/enforcer"
	"github.com/kndrvt/acl-manager/topology"

	"github.com/ant0ine/go-json-rest/rest"
	"github.com/op/go-logging"
)

var (
	logger = logging.MustGetLogger("api")
)

type Server struct {
	Port uint16
	TLS  struct {
		Cert string // Path for a TLS certification file.
		Key  string // Path for a TLS private key file.
	}
	Manager Manager
}

// Manager is what the REST API reads and controls.
type Manager interface {
	Policy() *acl.Policy
	// ReloadPolicy re-reads the configured policy source. The current policy
	// stays in force if it fails.
	ReloadPolicy() error
	Switches() []topology.Switch
	Links() []topology.Link
	Hosts() []topology.Host
	Records() []enforcer.Record
	// Reconcile runs a reconciliation pass and returns the number of issued operations.
	Reconcile() int
}

func (r *Server) validate() error {
	if r.Manager == nil {
		return errors.New("nil manager")
	}

	return nil
}

// Handler returns the HTTP handler that serves the API.
func (r *Server) Handler() (http.Handler, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}

	api := rest.NewApi()
	// Middleware to set the CORS header.
	api.Use(rest.MiddlewareSimple(func(handler rest.HandlerFunc) rest.HandlerFunc {
		return func(writer rest.ResponseWriter, request *rest.Request) {
			writer.Header().Set("Access-Control-Allow-Origin", "*")
			handler(writer, request)
		}
	}))
	router, err := rest.MakeRouter(
		rest.Get("/api/v1/acl", r.getACL),
		rest.Post("/api/v1/acl/reload", r.reloadACL),
		rest.Get("/api/v1/switch", r.listSwitches),
		rest.Get("/api/v1/host", r.listHosts),
		rest.Get("/api/v1/flow", r.listFlows),
		rest.Post("/api/v1/reconcile", r.reconcile),
	)
	if err != nil {
		return nil, err
	}
	api.SetApp(router)

	return api.MakeHandler(), nil
}

// Serve blocks until ctx is canceled or the listener fails.
func (r *Server) Serve(ctx context.Context) error {
	handler, err := r.Handler()
	if err != nil {
		return err
	}

	// Listen on all interfaces.
	server := &http.Server{Addr: fmt.Sprintf(":%v", r.Port), Handler: handler}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("failed to shutdown the REST server: %v", err)
		}
	}()

	logger.Infof("REST API is listening on %v", server.Addr)
	if r.TLS.Cert != "" && r.TLS.Key != "" {
		err = server.ListenAndServeTLS(r.TLS.Cert, r.TLS.Key)
	} else {
		err = server.ListenAndServe()
	}
	if err == http.ErrServerClosed {
		return nil
	}

	return err
}
