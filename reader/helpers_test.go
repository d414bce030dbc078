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

package reader

import (
	"testing"

	"github.com/wiredopposite/xgdtool/xiso"
)

// testFileContents returns a deterministic, non-repeating fill pattern
// for a file of the given size, so a decoded sector can be checked
// against the exact bytes the encoder produced.
func testFileContents(size int) []byte {
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = byte(i * 7 % 251)
	}
	return buf
}

// buildRawXISOImage lays out a minimal two-file XISO image using the
// same AVL/layout/iterator machinery a real writer would, and returns
// the full byte image (header at 0x10000 included) plus the file
// contents keyed by name for assertions.
func buildRawXISOImage(t *testing.T) ([]byte, map[string][]byte) {
	t.Helper()

	contents := map[string][]byte{
		"ALPHA.BIN": testFileContents(10),
		"BETA.BIN":  testFileContents(3000), // spans two sectors
	}

	tree := &xiso.Tree{}
	for name, data := range contents {
		if err := tree.Insert(xiso.NewFileNode(name, name, uint64(len(data)))); err != nil {
			t.Fatalf("Insert(%s): %v", name, err)
		}
	}

	rootSize := xiso.ComputeLayout(tree.Root)
	if err := xiso.AssignSectors(tree.Root, rootSize); err != nil {
		t.Fatalf("AssignSectors: %v", err)
	}
	totalSize := xiso.TotalImageSize(tree.Root, rootSize)

	image := make([]byte, totalSize)
	copy(image[0x10000:], []byte("MICROSOFT*XBOX*MEDIA"))
	putUint32LE(image[0x10014:], uint32(xiso.RootDirectorySector))
	putUint32LE(image[0x10018:], uint32(rootSize))

	for _, ev := range xiso.Flatten(tree.Root) {
		switch ev.Kind {
		case xiso.EventDirTable:
			copy(image[ev.Offset:], xiso.EncodeEntry(ev.Node))
		case xiso.EventFile:
			copy(image[ev.Offset:], contents[ev.Node.Filename()])
		}
	}

	return image, contents
}

func putUint32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
