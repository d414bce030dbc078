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

package titledb

import (
	"bytes"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	db := NewDatabase()
	db["DEADBEEFDEADBEEF0011"] = Entry{TitleName: "Halo 2", FolderName: "Halo 2", IconData: []byte{1, 2, 3}}
	db["0011223344556677889A"] = Entry{TitleName: "Crazy Taxi 3"}

	var buf bytes.Buffer
	if err := db.Save(&buf); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(&buf)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != len(db) {
		t.Fatalf("Load returned %d entries, want %d", len(got), len(db))
	}
	for k, want := range db {
		e, ok := got.Lookup(k)
		if !ok {
			t.Fatalf("Lookup(%s) missing after round trip", k)
		}
		if e.TitleName != want.TitleName || e.FolderName != want.FolderName || !bytes.Equal(e.IconData, want.IconData) {
			t.Errorf("Lookup(%s) = %+v, want %+v", k, e, want)
		}
	}
}

func TestLoad_BadGzip(t *testing.T) {
	t.Parallel()

	if _, err := Load(bytes.NewReader([]byte("not a gzip stream"))); err == nil {
		t.Fatal("expected an error for a non-gzip reader")
	}
}

func TestOfflineProvider(t *testing.T) {
	t.Parallel()

	db := NewDatabase()
	db["ABC"] = Entry{TitleName: "Test Game"}
	p := OfflineProvider{DB: db}

	e, ok := p.Lookup("ABC")
	if !ok || e.TitleName != "Test Game" {
		t.Errorf("Lookup(ABC) = %+v, %v, want Test Game, true", e, ok)
	}
	if _, ok := p.Lookup("missing"); ok {
		t.Error("Lookup(missing) = true, want false")
	}
}

func TestOfflineProvider_NilDatabase(t *testing.T) {
	t.Parallel()

	var p OfflineProvider
	if _, ok := p.Lookup("anything"); ok {
		t.Error("Lookup on a zero-value OfflineProvider should report not-found, not panic")
	}
}
