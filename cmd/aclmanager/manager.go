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

package main

import (
	"context"
	"path/filepath"

	"github.com/kndrvt/acl-manager/acl"
	"github.com/kndrvt/acl-manager/enforcer"
	"github.com/kndrvt/acl-manager/topology"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// manager exposes the engine to the REST API.
type manager struct {
	engine *enforcer.Engine
	source acl.Source
}

func (r *manager) Policy() *acl.Policy {
	return r.engine.Store().Current()
}

func (r *manager) ReloadPolicy() error {
	return r.engine.ReloadPolicy(r.source)
}

func (r *manager) Switches() []topology.Switch {
	return r.engine.Topology().Switches()
}

func (r *manager) Links() []topology.Link {
	return r.engine.Topology().Links()
}

func (r *manager) Hosts() []topology.Host {
	return r.engine.Topology().Hosts()
}

func (r *manager) Records() []enforcer.Record {
	return r.engine.Records()
}

func (r *manager) Reconcile() int {
	return r.engine.Reconcile()
}

// watchPolicy calls reload whenever the policy file is written or replaced.
// The directory is watched because editors usually replace the file.
func watchPolicy(ctx context.Context, path string, reload func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create a file watcher")
	}
	defer watcher.Close()

	path = filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return errors.Wrapf(err, "failed to watch %v", path)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(e.Name) != path {
				continue
			}
			if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			logger.Infof("policy file is changed: %v", e)
			reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Errorf("policy file watcher error: %v", err)
		}
	}
}
