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
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Source loads a policy document from somewhere.
type Source interface {
	Load() (Document, error)
}

// ParseDocument decodes a YAML policy document. Unknown fields are rejected.
func ParseDocument(data []byte) (Document, error) {
	doc := Document{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		// An empty file is an empty policy.
		if err == io.EOF {
			return doc, nil
		}
		return Document{}, errors.Wrap(err, "failed to decode the policy document")
	}

	return doc, nil
}

// FileSource reads a YAML policy document from a file.
type FileSource struct {
	Path string
}

func (r FileSource) Load() (Document, error) {
	data, err := os.ReadFile(r.Path)
	if err != nil {
		return Document{}, errors.Wrapf(err, "failed to read the policy file %v", r.Path)
	}

	return ParseDocument(data)
}

// LoadFile is a shorthand for FileSource{path}.Load().
func LoadFile(path string) (Document, error) {
	return FileSource{Path: path}.Load()
}
