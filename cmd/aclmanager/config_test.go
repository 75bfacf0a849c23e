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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kndrvt/acl-manager/enforcer"

	"github.com/google/go-cmp/cmp"
)

const sampleConfig = `
default:
  port: 6653
  log_level: debug
  log_output: stderr
acl:
  source: file
  file: /tmp/policy.yaml
  service_ports: [80, 443]
  icmp_reject: true
engine:
  ack: optimistic
  reconcile_interval: 10s
  retry:
    initial: 100ms
    max: 1s
    attempts: 3
  workers: 0
rest:
  port: 0
`

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "aclmanager.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write the config: %v", err)
	}

	return path
}

func TestReadConfig(t *testing.T) {
	v, err := readConfig(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("failed to read the config: %v", err)
	}

	c := engineConfig(v)
	if c.Ack != enforcer.AckOptimistic || c.ReconcileInterval != 10*time.Second || c.Workers != 0 || !c.ICMPReject {
		t.Fatalf("unexpected engine config: %+v", c)
	}
	expected := enforcer.RetryConfig{Initial: 100 * time.Millisecond, Max: time.Second, Attempts: 3}
	if diff := cmp.Diff(expected, c.Retry); diff != "" {
		t.Fatalf("unexpected retry config (-want +got):\n%v", diff)
	}
	// Defaults
	def := enforcer.DefaultConfig()
	if c.IdleTimeout != def.IdleTimeout || c.MaxFlows != def.MaxFlows || c.GracePeriod != def.GracePeriod {
		t.Fatalf("unexpected default values: %+v", c)
	}

	n := networkConfig(v)
	if diff := cmp.Diff([]uint16{80, 443}, n.ServicePorts); diff != "" {
		t.Fatalf("unexpected service ports (-want +got):\n%v", diff)
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		config string
	}{
		{"port", "default: {port: 70000}"},
		{"log level", "default: {log_level: verbose}"},
		{"log output", "default: {log_output: kafka}"},
		{"source", "acl: {source: ldap}"},
		{"mysql", "acl: {source: mysql}"},
		{"service port", "acl: {service_ports: [0]}"},
		{"ack", "engine: {ack: never}"},
		{"attempts", "engine: {retry: {attempts: 0}}"},
		{"retry max", "engine: {retry: {initial: 1s, max: 10ms}}"},
		{"idle timeout", "engine: {idle_timeout: 70000}"},
		{"tls", "rest: {tls: true}"},
	}

	for _, v := range tests {
		if _, err := readConfig(writeConfig(t, v.config)); err == nil {
			t.Fatalf("%v: expected a validation error", v.name)
		}
	}

	// Every key has a sane default.
	if _, err := readConfig(writeConfig(t, "default: {port: 6653}")); err != nil {
		t.Fatalf("failed to read the minimal config: %v", err)
	}
}

func TestWatchPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("default: deny\n"), 0644); err != nil {
		t.Fatalf("failed to write the policy: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	reloaded := make(chan struct{}, 16)
	done := make(chan error, 1)
	go func() {
		done <- watchPolicy(ctx, path, func() { reloaded <- struct{}{} })
	}()

	// Wait for the watcher to be ready.
	deadline := time.After(5 * time.Second)
	for ready := false; !ready; {
		if err := os.WriteFile(path, []byte("default: allow\n"), 0644); err != nil {
			t.Fatalf("failed to write the policy: %v", err)
		}
		select {
		case <-reloaded:
			ready = true
		case <-time.After(100 * time.Millisecond):
		case <-deadline:
			t.Fatal("timeout waiting for the reload")
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
