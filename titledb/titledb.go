// Copyright (c) 2025 the xgdtool contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of xgdtool.
//
// xgdtool is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// xgdtool is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with xgdtool.  If not, see <https://www.gnu.org/licenses/>.

// Package titledb is the offline title database: a gob-encoded,
// gzip-compressed map from a title's unique_name (see cert.UniqueName)
// to display metadata, used to rename and fill GoD headers without the
// caller supplying a title name by hand.
package titledb

import (
	"compress/gzip"
	"encoding/gob"
	"io"
	"os"

	"github.com/wiredopposite/xgdtool/xgderr"
)

// Entry is the metadata stored per title.
type Entry struct {
	TitleName  string
	FolderName string
	IconData   []byte
}

// Database maps a 20-character unique_name fingerprint to its Entry.
type Database map[string]Entry

// NewDatabase creates an empty database.
func NewDatabase() Database {
	return make(Database)
}

// Load reads a gzip-compressed gob-encoded Database.
func Load(r io.Reader) (Database, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, xgderr.New(xgderr.BadEncoding, "titledb.Load", "", err)
	}
	defer func() { _ = gz.Close() }()

	db := NewDatabase()
	dec := gob.NewDecoder(gz)
	if err := dec.Decode(&db); err != nil {
		return nil, xgderr.New(xgderr.BadEncoding, "titledb.Load", "", err)
	}
	return db, nil
}

// LoadFile opens path and decodes it with Load.
func LoadFile(path string) (Database, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the CLI's -db flag, not an HTTP handler
	if err != nil {
		return nil, xgderr.New(xgderr.FileOpen, "titledb.LoadFile", path, err)
	}
	defer func() { _ = f.Close() }()
	return Load(f)
}

// Save gzip-compresses and gob-encodes db to w.
func (db Database) Save(w io.Writer) error {
	gz := gzip.NewWriter(w)
	enc := gob.NewEncoder(gz)
	if err := enc.Encode(db); err != nil {
		_ = gz.Close()
		return xgderr.New(xgderr.BadEncoding, "titledb.Database.Save", "", err)
	}
	return gz.Close()
}

// SaveFile creates (or truncates) path and writes db with Save.
func (db Database) SaveFile(path string) error {
	f, err := os.Create(path) //nolint:gosec // path comes from the dbgen CLI's own -out flag
	if err != nil {
		return xgderr.New(xgderr.FileOpen, "titledb.Database.SaveFile", path, err)
	}
	defer func() { _ = f.Close() }()
	if err := db.Save(f); err != nil {
		return err
	}
	return nil
}

// Lookup retrieves an Entry by unique_name.
func (db Database) Lookup(uniqueName string) (Entry, bool) {
	e, ok := db[uniqueName]
	return e, ok
}

// Provider is the pluggable title-metadata lookup xgdtool.Convert
// consults, keyed by the located certificate's unique_name, whenever
// Options.Offline is set and a certificate was found. A Provider backed by a network
// service is a deliberate non-goal here: only OfflineProvider exists in
// this module, wrapping a Database loaded with Load/LoadFile.
type Provider interface {
	Lookup(uniqueName string) (Entry, bool)
}

// OfflineProvider adapts a Database to Provider.
type OfflineProvider struct {
	DB Database
}

func (p OfflineProvider) Lookup(uniqueName string) (Entry, bool) {
	if p.DB == nil {
		return Entry{}, false
	}
	return p.DB.Lookup(uniqueName)
}

var _ Provider = OfflineProvider{}
