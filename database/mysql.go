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

package database

import (
	"database/sql"
	"fmt"
	"math/rand"
	"net"
	"runtime"
	"strings"
	"time"

	"github.com/kndrvt/acl-manager/acl"

	"github.com/go-sql-driver/mysql"
	"github.com/op/go-logging"
	"github.com/pkg/errors"
)

const (
	maxDeadlockRetry = 5

	deadlockErrCode uint16 = 1213

	clusterDialerNetwork = "cluster"
)

var (
	logger = logging.MustGetLogger("database")

	maxIdleConn = runtime.NumCPU()
	maxOpenConn = maxIdleConn * 2
)

type Config struct {
	// Comma separated host:port list. The first reachable one is used.
	Addr     string
	Username string
	Password string
	Name     string
}

// MySQL loads the access control policy from the acl, acl_default and
// acl_host tables. It implements acl.Source.
type MySQL struct {
	db *sql.DB
}

func NewMySQL(cfg Config) (*MySQL, error) {
	if err := validateClusterAddr(cfg.Addr); err != nil {
		return nil, err
	}
	// Register the custom dialer.
	mysql.RegisterDial(clusterDialerNetwork, clusterDialer)

	param := "readTimeout=1m&writeTimeout=1m&parseTime=true&loc=Local&maxAllowedPacket=0"
	dsn := fmt.Sprintf("%v:%v@%v(%v)/%v?%v", cfg.Username, cfg.Password, clusterDialerNetwork, cfg.Addr, cfg.Name, param)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(maxOpenConn)
	db.SetMaxIdleConns(maxIdleConn)
	// Make sure that all the connections are established to a same node, instead of distributing them into multiple nodes.
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to connect to the database")
	}

	v := &MySQL{db: db}
	if err := v.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	return v, nil
}

func (r *MySQL) Close() error {
	return r.db.Close()
}

func validateClusterAddr(addr string) error {
	if len(addr) == 0 {
		return errors.New("empty cluster address")
	}

	for _, v := range splitClusterAddr(addr) {
		if _, err := net.ResolveTCPAddr("tcp", v); err != nil {
			return fmt.Errorf("invalid cluster address: %v: %v", v, err)
		}
	}

	return nil
}

func splitClusterAddr(addr string) []string {
	return strings.Split(strings.Replace(addr, " ", "", -1), ",")
}

// clusterDialer tries to sequentially connect to each hosts from the address in the
// order of their appearance and then returns the first successfully connected one.
func clusterDialer(addr string) (net.Conn, error) {
	for _, v := range splitClusterAddr(addr) {
		logger.Debugf("dialing to %v", v)
		conn, err := net.DialTimeout("tcp", v, 5*time.Second)
		if err == nil {
			// Connected!
			logger.Debugf("successfully connected to %v", v)
			return conn, nil
		}
		logger.Errorf("failed to dial: %v", err)
	}

	return nil, errors.New("failed to dial: no available cluster node")
}

func isDeadlock(err error) bool {
	e, ok := errors.Cause(err).(*mysql.MySQLError)
	if !ok {
		return false
	}

	return e.Number == deadlockErrCode
}

func (r *MySQL) query(f func(*sql.Tx) error) error {
	deadlockRetry := 0

	for {
		tx, err := r.db.Begin()
		if err != nil {
			return err
		}

		err = f(tx)
		// Success?
		if err == nil {
			// Yes! but Commit also may raise an error.
			err = tx.Commit()
			if err == nil {
				return nil
			}
			// Fallthrough!
		}
		tx.Rollback()

		// Need to retry due to a deadlock?
		if !isDeadlock(err) || deadlockRetry >= maxDeadlockRetry {
			return err
		}
		logger.Infof("query failed due to a deadlock: caller=%v", caller())
		time.Sleep(time.Duration(rand.Int31n(500)) * time.Millisecond)
		deadlockRetry++
	}
}

func caller() string {
	pc, file, line, ok := runtime.Caller(2)
	if !ok {
		return "unknown"
	}

	f := runtime.FuncForPC(pc)
	if f == nil {
		return fmt.Sprintf("%v:%v", file, line)
	}

	return fmt.Sprintf("%v (%v:%v)", f.Name(), file, line)
}

type ruleRow struct {
	id       string
	priority int
	src      string
	dst      string
	protocol sql.NullString
	port     sql.NullInt64
	action   string
}

type hostRow struct {
	name    string
	address string
}

// Load reads the whole policy in a single transaction so that a concurrent
// update is never seen half applied.
func (r *MySQL) Load() (acl.Document, error) {
	var def string
	var hosts []hostRow
	var rules []ruleRow

	f := func(tx *sql.Tx) (err error) {
		def, err = queryDefault(tx)
		if err != nil {
			return err
		}
		hosts, err = queryHosts(tx)
		if err != nil {
			return err
		}
		rules, err = queryRules(tx)

		return err
	}
	if err := r.query(f); err != nil {
		return acl.Document{}, errors.Wrap(err, "failed to load the policy from the database")
	}
	logger.Debugf("loaded %v rules and %v host aliases from the database", len(rules), len(hosts))

	return buildDocument(def, hosts, rules), nil
}

// Rules is an alias of Load.
func (r *MySQL) Rules() (acl.Document, error) {
	return r.Load()
}

func queryDefault(tx *sql.Tx) (string, error) {
	var action string
	qry := "SELECT `action` FROM `acl_default` ORDER BY `id` DESC LIMIT 1"
	if err := tx.QueryRow(qry).Scan(&action); err != nil {
		// Deny all if the default action is not configured.
		if err == sql.ErrNoRows {
			return acl.Deny.String(), nil
		}
		return "", err
	}

	return action, nil
}

func queryHosts(tx *sql.Tx) ([]hostRow, error) {
	rows, err := tx.Query("SELECT `name`, `address` FROM `acl_host`")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var v []hostRow
	for rows.Next() {
		h := hostRow{}
		if err := rows.Scan(&h.name, &h.address); err != nil {
			return nil, err
		}
		v = append(v, h)
	}

	return v, rows.Err()
}

func queryRules(tx *sql.Tx) ([]ruleRow, error) {
	qry := "SELECT `id`, `priority`, `src`, `dst`, `protocol`, `port`, `action` FROM `acl` ORDER BY `priority` DESC, `id` ASC"
	rows, err := tx.Query(qry)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var v []ruleRow
	for rows.Next() {
		r := ruleRow{}
		if err := rows.Scan(&r.id, &r.priority, &r.src, &r.dst, &r.protocol, &r.port, &r.action); err != nil {
			return nil, err
		}
		v = append(v, r)
	}

	return v, rows.Err()
}

// buildDocument converts the rows into a policy document. Validation is left
// to acl.NewPolicy as for a YAML document.
func buildDocument(def string, hosts []hostRow, rules []ruleRow) acl.Document {
	doc := acl.Document{
		Default: strings.ToLower(def),
		Rules:   make([]acl.RuleDocument, 0, len(rules)),
	}
	if len(hosts) > 0 {
		doc.Hosts = make(map[string]string, len(hosts))
		for _, h := range hosts {
			doc.Hosts[h.name] = h.address
		}
	}
	for _, r := range rules {
		v := acl.RuleDocument{
			ID:       r.id,
			Priority: r.priority,
			Src:      r.src,
			Dst:      r.dst,
			Action:   strings.ToLower(r.action),
		}
		if r.protocol.Valid {
			v.Protocol = strings.ToLower(r.protocol.String)
		}
		if r.port.Valid {
			v.Port = int(r.port.Int64)
		}
		doc.Rules = append(doc.Rules, v)
	}

	return doc
}
