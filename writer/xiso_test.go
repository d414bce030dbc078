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

package writer

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/wiredopposite/xgdtool/reader"
	"github.com/wiredopposite/xgdtool/xiso"
)

func TestWriteXISO_RoundTrip(t *testing.T) {
	t.Parallel()

	tree, rootSize, totalSize, src, contents := buildWriterTestTree(t)
	outPath := filepath.Join(t.TempDir(), "game.iso")

	paths, err := WriteXISO(outPath, tree, rootSize, totalSize, testFileTime(), src, WriteXISOOptions{})
	if err != nil {
		t.Fatalf("WriteXISO: %v", err)
	}
	if len(paths) != 1 || paths[0] != outPath {
		t.Fatalf("paths = %v, want [%s]", paths, outPath)
	}

	r, err := reader.OpenXISO(outPath)
	if err != nil {
		t.Fatalf("OpenXISO: %v", err)
	}
	defer func() { _ = r.Close() }()

	entries, err := r.DirectoryEntries()
	if err != nil {
		t.Fatalf("DirectoryEntries: %v", err)
	}
	if len(entries) != len(contents) {
		t.Fatalf("got %d entries, want %d", len(entries), len(contents))
	}
	for _, e := range entries {
		want, ok := contents[e.Name]
		if !ok {
			t.Fatalf("unexpected entry %q", e.Name)
		}
		got, err := r.ReadBytes(uint64(e.StartSector)*xiso.SectorSize, len(want))
		if err != nil {
			t.Fatalf("ReadBytes(%q): %v", e.Name, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("entry %q content mismatch", e.Name)
		}
	}

	gotTime, err := r.FileTime()
	if err != nil {
		t.Fatalf("FileTime: %v", err)
	}
	if !gotTime.Equal(testFileTime()) {
		t.Errorf("FileTime() = %v, want %v", gotTime, testFileTime())
	}
}

func TestWriteXISO_Split(t *testing.T) {
	t.Parallel()

	tree, rootSize, totalSize, src, _ := buildWriterTestTree(t)
	outPath := filepath.Join(t.TempDir(), "game.iso")

	paths, err := WriteXISO(outPath, tree, rootSize, totalSize, testFileTime(), src, WriteXISOOptions{Split: true})
	if err != nil {
		t.Fatalf("WriteXISO: %v", err)
	}
	// totalSize here is far smaller than XISOSplitMargin, so no second
	// part should actually be created even with Split requested.
	if len(paths) != 1 {
		t.Fatalf("paths = %v, want a single unsplit file for a small image", paths)
	}

	r, err := reader.OpenXISO(outPath)
	if err != nil {
		t.Fatalf("OpenXISO: %v", err)
	}
	defer func() { _ = r.Close() }()
}
