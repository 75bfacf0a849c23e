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
	"fmt"
)

func (r *MySQL) createTables() error {
	if err := r.createACLTable(); err != nil {
		return fmt.Errorf("creating acl DB table: %v", err)
	}
	if err := r.createDefaultTable(); err != nil {
		return fmt.Errorf("creating acl_default DB table: %v", err)
	}
	if err := r.createHostTable(); err != nil {
		return fmt.Errorf("creating acl_host DB table: %v", err)
	}

	return nil
}

func (r *MySQL) createACLTable() error {
	qry := "CREATE TABLE IF NOT EXISTS `acl` ("
	qry += " `id` varchar(64) NOT NULL,"
	qry += " `priority` int(11) NOT NULL,"
	qry += " `src` varchar(64) NOT NULL,"
	qry += " `dst` varchar(64) NOT NULL,"
	qry += " `protocol` varchar(8) DEFAULT NULL,"
	qry += " `port` int(10) unsigned DEFAULT NULL,"
	qry += " `action` varchar(8) NOT NULL,"
	qry += " PRIMARY KEY (`id`),"
	qry += " KEY `priority` (`priority`)"
	qry += ") ENGINE=InnoDB DEFAULT CHARSET=utf8"
	_, err := r.db.Exec(qry)

	return err
}

func (r *MySQL) createDefaultTable() error {
	qry := "CREATE TABLE IF NOT EXISTS `acl_default` ("
	qry += " `id` bigint(20) unsigned NOT NULL AUTO_INCREMENT,"
	qry += " `action` varchar(8) NOT NULL,"
	qry += " PRIMARY KEY (`id`)"
	qry += ") ENGINE=InnoDB DEFAULT CHARSET=utf8"
	_, err := r.db.Exec(qry)

	return err
}

func (r *MySQL) createHostTable() error {
	qry := "CREATE TABLE IF NOT EXISTS `acl_host` ("
	qry += " `name` varchar(64) NOT NULL,"
	qry += " `address` varchar(64) NOT NULL,"
	qry += " PRIMARY KEY (`name`)"
	qry += ") ENGINE=InnoDB DEFAULT CHARSET=utf8"
	_, err := r.db.Exec(qry)

	return err
}
