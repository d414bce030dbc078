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

func TestWriteCSO_RoundTrip(t *testing.T) {
	t.Parallel()

	tree, rootSize, totalSize, src, contents := buildWriterTestTree(t)
	outPath := filepath.Join(t.TempDir(), "game.cso")

	paths, err := WriteCSO(outPath, tree, rootSize, totalSize, testFileTime(), src, WriteCSOOptions{})
	if err != nil {
		t.Fatalf("WriteCSO: %v", err)
	}
	if len(paths) != 1 || paths[0] != outPath {
		t.Fatalf("paths = %v, want [%s]", paths, outPath)
	}

	r, err := reader.OpenCSO(outPath)
	if err != nil {
		t.Fatalf("OpenCSO: %v", err)
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
}

func TestCompressCSOSector_RawFallback(t *testing.T) {
	t.Parallel()

	// Pseudo-random (LCG) content that LZ4 cannot shrink below a sector,
	// so the raw branch is taken and must hold the original bytes.
	var buf [xiso.SectorSize]byte
	state := uint32(12345)
	for i := range buf {
		state = state*1664525 + 1013904223
		buf[i] = byte(state >> 24)
	}
	res := compressCSOSector(buf)
	if res.err != nil {
		t.Fatalf("compressCSOSector: %v", res.err)
	}
	if !res.compressed {
		if len(res.data) != xiso.SectorSize {
			t.Fatalf("raw fallback data len = %d, want %d", len(res.data), xiso.SectorSize)
		}
		if !bytes.Equal(res.data, buf[:]) {
			t.Fatal("raw fallback data mismatch")
		}
	}
}
