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

package xiso_test

import (
	"sort"
	"testing"

	"github.com/wiredopposite/xgdtool/xiso"
)

// buildSampleTree constructs the {A/b, A/c, d.bin (4096 bytes)} tree from
// the first end-to-end scenario.
func buildSampleTree(t *testing.T) *xiso.Node {
	t.Helper()

	var subA xiso.Tree
	if err := subA.Insert(xiso.NewFileNode("b", "A/b", 10)); err != nil {
		t.Fatalf("insert A/b: %v", err)
	}
	if err := subA.Insert(xiso.NewFileNode("c", "A/c", 20)); err != nil {
		t.Fatalf("insert A/c: %v", err)
	}

	var root xiso.Tree
	if err := root.Insert(xiso.NewDirectoryNode("A", "A", subA.Root)); err != nil {
		t.Fatalf("insert A: %v", err)
	}
	if err := root.Insert(xiso.NewFileNode("d.bin", "d.bin", 4096)); err != nil {
		t.Fatalf("insert d.bin: %v", err)
	}
	return root.Root
}

func TestLayout_SampleTree(t *testing.T) {
	t.Parallel()

	root := buildSampleTree(t)
	rootSize := xiso.ComputeLayout(root)
	if err := xiso.AssignSectors(root, rootSize); err != nil {
		t.Fatalf("AssignSectors() error = %v", err)
	}

	var dirA, fileD *xiso.Node
	xiso.PreOrder(root, func(n *xiso.Node) {
		switch n.Filename() {
		case "A":
			dirA = n
		case "d.bin":
			fileD = n
		}
	})
	if dirA == nil || fileD == nil {
		t.Fatalf("expected to find nodes A and d.bin")
	}

	if dirA.StartSector == fileD.StartSector {
		t.Fatalf("A and d.bin were assigned the same sector")
	}
	if dirA.StartSector <= xiso.RootDirectorySector && fileD.StartSector <= xiso.RootDirectorySector {
		t.Fatalf("expected children to be placed after the root directory table")
	}

	var subB, subC *xiso.Node
	xiso.PreOrder(dirA.Subdirectory, func(n *xiso.Node) {
		switch n.Filename() {
		case "b":
			subB = n
		case "c":
			subC = n
		}
	})
	if subB == nil || subC == nil {
		t.Fatalf("expected to find A/b and A/c")
	}
	if subB.DirectoryStart != dirA.StartSector*xiso.SectorSize {
		t.Fatalf("A/b.DirectoryStart = %d, want %d", subB.DirectoryStart, dirA.StartSector*xiso.SectorSize)
	}
}

func TestLayout_EmptyDirectory(t *testing.T) {
	t.Parallel()

	var root xiso.Tree
	if err := root.Insert(xiso.NewDirectoryNode("E", "E", nil)); err != nil {
		t.Fatalf("insert E: %v", err)
	}

	rootSize := xiso.ComputeLayout(root.Root)
	if err := xiso.AssignSectors(root.Root, rootSize); err != nil {
		t.Fatalf("AssignSectors() error = %v", err)
	}

	var dirE *xiso.Node
	xiso.PreOrder(root.Root, func(n *xiso.Node) {
		if n.Filename() == "E" {
			dirE = n
		}
	})
	if dirE == nil {
		t.Fatalf("expected to find directory E")
	}
	if !dirE.Subdirectory.IsEmptyDir() {
		t.Fatalf("expected E's subdirectory to be the empty sentinel")
	}
	if dirE.FileSize != xiso.SectorSize {
		t.Fatalf("E.FileSize = %d, want %d (one sector)", dirE.FileSize, xiso.SectorSize)
	}
}

func TestLayout_DirectoryEntryOffsetsInvariant(t *testing.T) {
	t.Parallel()

	root := buildSampleTree(t)
	rootSize := xiso.ComputeLayout(root)
	if err := xiso.AssignSectors(root, rootSize); err != nil {
		t.Fatalf("AssignSectors() error = %v", err)
	}

	type offsetEntry struct {
		offset uint64
		length uint64
	}
	byTable := make(map[uint64][]offsetEntry)

	var walk func(*xiso.Node)
	walk = func(dirRoot *xiso.Node) {
		if dirRoot == nil || dirRoot.IsEmptyDir() {
			return
		}
		xiso.PreOrder(dirRoot, func(n *xiso.Node) {
			byTable[n.DirectoryStart] = append(byTable[n.DirectoryStart], offsetEntry{n.Offset, n.EntryLength()})
			if n.IsDirectory {
				walk(n.Subdirectory)
			}
		})
	}
	walk(root)

	for tableStart, entries := range byTable {
		sort.Slice(entries, func(i, j int) bool { return entries[i].offset < entries[j].offset })
		if entries[0].offset != 0 {
			t.Fatalf("table at %d: first entry offset = %d, want 0", tableStart, entries[0].offset)
		}
		for i := 1; i < len(entries); i++ {
			prevEnd := entries[i-1].offset + entries[i-1].length
			if entries[i].offset < prevEnd {
				t.Fatalf("table at %d: entry %d overlaps previous entry", tableStart, i)
			}
			if entries[i].offset != prevEnd && entries[i].offset%xiso.SectorSize != 0 {
				t.Fatalf("table at %d: gap before entry %d does not land on a sector boundary", tableStart, i)
			}
		}
	}
}

func TestLayout_NoSectorOverlap(t *testing.T) {
	t.Parallel()

	root := buildSampleTree(t)
	rootSize := xiso.ComputeLayout(root)
	if err := xiso.AssignSectors(root, rootSize); err != nil {
		t.Fatalf("AssignSectors() error = %v", err)
	}

	type span struct{ start, end uint64 }
	var spans []span

	var walk func(*xiso.Node)
	walk = func(dirRoot *xiso.Node) {
		if dirRoot == nil || dirRoot.IsEmptyDir() {
			return
		}
		xiso.PreOrder(dirRoot, func(n *xiso.Node) {
			spans = append(spans, span{n.StartSector, n.StartSector + n.SectorCount()})
			if n.IsDirectory {
				walk(n.Subdirectory)
			}
		})
	}
	walk(root)

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	for i := 1; i < len(spans); i++ {
		if spans[i].start < spans[i-1].end {
			t.Fatalf("sector overlap between spans %v and %v", spans[i-1], spans[i])
		}
	}
}

func TestTotalImageSize_RoundsToFileModulus(t *testing.T) {
	t.Parallel()

	root := buildSampleTree(t)
	rootSize := xiso.ComputeLayout(root)
	if err := xiso.AssignSectors(root, rootSize); err != nil {
		t.Fatalf("AssignSectors() error = %v", err)
	}

	total := xiso.TotalImageSize(root, rootSize)
	if total%xiso.FileModulus != 0 {
		t.Fatalf("TotalImageSize() = %d, not a multiple of FileModulus (%d)", total, xiso.FileModulus)
	}
}
