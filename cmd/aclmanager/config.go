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
	"strings"

	"github.com/kndrvt/acl-manager/database"
	"github.com/kndrvt/acl-manager/enforcer"
	"github.com/kndrvt/acl-manager/network"

	"github.com/op/go-logging"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	sourceFile  = "file"
	sourceMySQL = "mysql"
)

func setDefaults(v *viper.Viper) {
	def := enforcer.DefaultConfig()
	netDef := network.DefaultConfig()

	v.SetDefault("default.port", 6653)
	v.SetDefault("default.log_level", "info")
	v.SetDefault("default.log_output", "syslog")
	v.SetDefault("acl.source", sourceFile)
	v.SetDefault("acl.file", "/usr/local/etc/aclmanager-policy.yaml")
	v.SetDefault("acl.service_ports", []int{80, 8080})
	v.SetDefault("acl.icmp_reject", false)
	v.SetDefault("engine.ack", def.Ack.String())
	v.SetDefault("engine.reconcile_interval", def.ReconcileInterval)
	v.SetDefault("engine.grace_period", def.GracePeriod)
	v.SetDefault("engine.retry.initial", def.Retry.Initial)
	v.SetDefault("engine.retry.max", def.Retry.Max)
	v.SetDefault("engine.retry.attempts", def.Retry.Attempts)
	v.SetDefault("engine.workers", def.Workers)
	v.SetDefault("engine.max_flows", def.MaxFlows)
	v.SetDefault("engine.idle_timeout", def.IdleTimeout)
	v.SetDefault("engine.dedup_window", def.DedupWindow)
	v.SetDefault("network.warmup", netDef.Warmup)
	v.SetDefault("network.packet_in_rate", netDef.PacketInRate)
	v.SetDefault("network.packet_in_burst", netDef.PacketInBurst)
	v.SetDefault("network.explorer_interval", netDef.ExplorerInterval)
	v.SetDefault("rest.port", 7070)
	v.SetDefault("rest.tls", false)
}

func validateConfig(v *viper.Viper) error {
	if port := v.GetInt("default.port"); port <= 0 || port > 0xFFFF {
		return errors.New("invalid default.port")
	}
	if _, err := logging.LogLevel(strings.ToUpper(v.GetString("default.log_level"))); err != nil {
		return errors.New("invalid default.log_level")
	}
	switch strings.ToLower(v.GetString("default.log_output")) {
	case "syslog", "stderr":
	default:
		return errors.New("invalid default.log_output")
	}

	switch v.GetString("acl.source") {
	case sourceFile:
		if len(v.GetString("acl.file")) == 0 {
			return errors.New("invalid acl.file")
		}
	case sourceMySQL:
		if len(v.GetString("mysql.addr")) == 0 {
			return errors.New("invalid mysql.addr")
		}
		if len(v.GetString("mysql.username")) == 0 || len(v.GetString("mysql.name")) == 0 {
			return errors.New("invalid mysql.username or mysql.name")
		}
	default:
		return errors.New("invalid acl.source")
	}
	if _, err := servicePorts(v); err != nil {
		return err
	}

	if _, err := enforcer.ParseAckMode(v.GetString("engine.ack")); err != nil {
		return errors.Wrap(err, "invalid engine.ack")
	}
	if v.GetInt("engine.retry.attempts") < 1 {
		return errors.New("invalid engine.retry.attempts")
	}
	if v.GetDuration("engine.retry.initial") <= 0 || v.GetDuration("engine.retry.max") < v.GetDuration("engine.retry.initial") {
		return errors.New("invalid engine.retry.initial or engine.retry.max")
	}
	if v.GetDuration("engine.reconcile_interval") <= 0 {
		return errors.New("invalid engine.reconcile_interval")
	}
	if v.GetInt("engine.workers") < 0 {
		return errors.New("invalid engine.workers")
	}
	if v.GetInt("engine.max_flows") <= 0 {
		return errors.New("invalid engine.max_flows")
	}
	if timeout := v.GetInt("engine.idle_timeout"); timeout < 0 || timeout > 0xFFFF {
		return errors.New("invalid engine.idle_timeout")
	}

	if port := v.GetInt("rest.port"); port < 0 || port > 0xFFFF {
		return errors.New("invalid rest.port")
	}
	if v.GetBool("rest.tls") {
		if len(v.GetString("rest.cert_file")) == 0 || len(v.GetString("rest.key_file")) == 0 {
			return errors.New("invalid rest.cert_file or rest.key_file")
		}
	}

	return nil
}

func servicePorts(v *viper.Viper) ([]uint16, error) {
	ports := v.GetIntSlice("acl.service_ports")
	if len(ports) == 0 {
		return nil, errors.New("empty acl.service_ports")
	}

	result := make([]uint16, 0, len(ports))
	for _, p := range ports {
		if p <= 0 || p > 0xFFFF {
			return nil, errors.Errorf("invalid acl.service_ports: %v", p)
		}
		result = append(result, uint16(p))
	}

	return result, nil
}

func engineConfig(v *viper.Viper) enforcer.Config {
	c := enforcer.DefaultConfig()
	// Already validated.
	c.Ack, _ = enforcer.ParseAckMode(v.GetString("engine.ack"))
	c.ReconcileInterval = v.GetDuration("engine.reconcile_interval")
	c.GracePeriod = v.GetDuration("engine.grace_period")
	c.Retry = enforcer.RetryConfig{
		Initial:  v.GetDuration("engine.retry.initial"),
		Max:      v.GetDuration("engine.retry.max"),
		Attempts: v.GetInt("engine.retry.attempts"),
	}
	c.Workers = v.GetInt("engine.workers")
	c.MaxFlows = v.GetInt("engine.max_flows")
	c.IdleTimeout = uint16(v.GetInt("engine.idle_timeout"))
	c.ICMPReject = v.GetBool("acl.icmp_reject")
	c.DedupWindow = v.GetDuration("engine.dedup_window")

	return c
}

func networkConfig(v *viper.Viper) network.Config {
	ports, _ := servicePorts(v)

	return network.Config{
		ServicePorts:     ports,
		Warmup:           v.GetDuration("network.warmup"),
		PacketInRate:     v.GetFloat64("network.packet_in_rate"),
		PacketInBurst:    v.GetInt("network.packet_in_burst"),
		ExplorerInterval: v.GetDuration("network.explorer_interval"),
	}
}

func mysqlConfig(v *viper.Viper) database.Config {
	return database.Config{
		Addr:     v.GetString("mysql.addr"),
		Username: v.GetString("mysql.username"),
		Password: v.GetString("mysql.password"),
		Name:     v.GetString("mysql.name"),
	}
}
