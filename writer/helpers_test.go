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
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/wiredopposite/xgdtool/xiso"
)

// testFileContents returns a deterministic, non-repeating fill pattern
// for a file of the given size, so a decoded sector can be checked
// against the exact bytes the writer produced.
func testFileContents(size int) []byte {
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = byte(i * 7 % 251)
	}
	return buf
}

// testFileTime is a fixed, nanosecond-free instant so round-tripping it
// through xiso.TimeToFileTime/filetimeToTime loses no precision.
func testFileTime() time.Time {
	return time.Date(2014, 11, 18, 9, 30, 0, 0, time.UTC)
}

// buildWriterTestTree lays out a minimal two-file image tree over an
// in-memory filesystem, returning everything WriteXISO/WriteCCI/
// WriteCSO/WriteGoD need plus the file contents keyed by name for
// round-trip assertions.
func buildWriterTestTree(t *testing.T) (tree *xiso.Node, rootSize, totalSize uint64, src Source, contents map[string][]byte) {
	t.Helper()

	contents = map[string][]byte{
		"ALPHA.BIN": testFileContents(10),
		"BETA.BIN":  testFileContents(3000), // spans two sectors
	}

	fs := afero.NewMemMapFs()
	xt := &xiso.Tree{}
	for name, data := range contents {
		path := "/" + name
		if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
			t.Fatalf("WriteFile(%s): %v", name, err)
		}
		if err := xt.Insert(xiso.NewFileNode(name, path, uint64(len(data)))); err != nil {
			t.Fatalf("Insert(%s): %v", name, err)
		}
	}

	rootSize = xiso.ComputeLayout(xt.Root)
	if err := xiso.AssignSectors(xt.Root, rootSize); err != nil {
		t.Fatalf("AssignSectors: %v", err)
	}
	totalSize = xiso.TotalImageSize(xt.Root, rootSize)

	return xt.Root, rootSize, totalSize, FSSource{Fs: fs}, contents
}
