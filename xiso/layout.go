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

package xiso

import "github.com/wiredopposite/xgdtool/xgderr"

// walkDirectoryChildren pre-order visits the entries of one directory,
// guarding against the EmptySubdir sentinel and a nil tree.
func walkDirectoryChildren(dirRoot *Node, visit func(*Node)) {
	if dirRoot == nil || dirRoot.IsEmptyDir() {
		return
	}
	PreOrder(dirRoot, visit)
}

// packDirectory computes the packed directory-table size for dirRoot's
// entries (AVL pre-order), setting each entry's Offset and padding to
// the next sector boundary whenever an entry would otherwise straddle
// one. It returns the table's final size, unrounded.
func packDirectory(dirRoot *Node) uint64 {
	var current uint64
	walkDirectoryChildren(dirRoot, func(n *Node) {
		entryLen := n.EntryLength()
		if current%SectorSize+entryLen > SectorSize {
			current = alignSector(current)
		}
		n.Offset = current
		current += entryLen
	})
	return current
}

// ComputeLayout runs pass A of the layout engine: it computes the root
// directory-table size and, recursively, every subdirectory's
// directory-table size (stored on the subdirectory's owning Node).
// File nodes keep the size they already carry.
func ComputeLayout(rootTree *Node) uint64 {
	rootSize := packDirectory(rootTree)
	walkDirectoryChildren(rootTree, func(n *Node) {
		if n.IsDirectory {
			computeDirNodeSize(n)
		}
	})
	return rootSize
}

func computeDirNodeSize(node *Node) {
	if node.Subdirectory == nil || node.Subdirectory.IsEmptyDir() {
		node.FileSize = SectorSize
		return
	}
	node.FileSize = packDirectory(node.Subdirectory)
	walkDirectoryChildren(node.Subdirectory, func(n *Node) {
		if n.IsDirectory {
			computeDirNodeSize(n)
		}
	})
}

// AssignSectors runs pass B of the layout engine: a breadth-first sector
// assignment over the directory forest, starting at RootDirectorySector.
// rootSize is the value ComputeLayout returned for the root table.
func AssignSectors(rootTree *Node, rootSize uint64) error {
	root := &Node{
		IsDirectory:  true,
		FileSize:     rootSize,
		StartSector:  RootDirectorySector,
		Subdirectory: rootTree,
	}

	current := RootDirectorySector + max64(root.SectorCount(), 1)

	queue := []*Node{root}
	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]

		walkDirectoryChildren(dir.Subdirectory, func(e *Node) {
			e.DirectoryStart = dir.StartSector * SectorSize
			e.StartSector = current
			if e.IsDirectory {
				if e.Subdirectory == nil || e.Subdirectory.IsEmptyDir() {
					current++
				} else {
					current += max64(e.SectorCount(), 1)
					queue = append(queue, e)
				}
			} else {
				current += e.SectorCount()
			}
		})
	}

	return verifySizes(rootTree, root)
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

func verifySizes(rootTree, root *Node) error {
	var err error
	check := func(n *Node) {
		if err != nil {
			return
		}
		if e := validateFits("xiso.AssignSectors", n.FileSize); e != nil {
			err = xgderr.New(xgderr.AVLOverflow, "xiso.AssignSectors", n.Filename(), e)
			return
		}
		if e := validateFits("xiso.AssignSectors", n.StartSector); e != nil {
			err = xgderr.New(xgderr.AVLOverflow, "xiso.AssignSectors", n.Filename(), e)
		}
	}

	check(root)
	var walk func(*Node)
	walk = func(dirRoot *Node) {
		walkDirectoryChildren(dirRoot, func(n *Node) {
			check(n)
			if n.IsDirectory {
				walk(n.Subdirectory)
			}
		})
	}
	walk(rootTree)
	return err
}

// TotalImageSize implements calculate_iso_size: the larger of (a) the
// highest start_sector*2048+file_size across every node, rounded up to a
// sector boundary, and (b) a naive unpacked directory-table walk that
// sums raw entry sizes per directory_start group without sector padding
// or 4-byte alignment — both rounded up to FileModulus.
func TotalImageSize(rootTree *Node, rootSize uint64) uint64 {
	root := &Node{IsDirectory: true, FileSize: rootSize, StartSector: RootDirectorySector}

	var all []*Node
	all = append(all, root)
	var walk func(*Node)
	walk = func(dirRoot *Node) {
		walkDirectoryChildren(dirRoot, func(n *Node) {
			all = append(all, n)
			if n.IsDirectory {
				walk(n.Subdirectory)
			}
		})
	}
	walk(rootTree)

	var maxEnd uint64
	for _, n := range all {
		if end := n.StartSector*SectorSize + n.FileSize; end > maxEnd {
			maxEnd = end
		}
	}
	maxEnd = alignSector(maxEnd)

	cursors := make(map[uint64]uint64)
	var maxCursor uint64
	for _, n := range all {
		if n == root {
			continue
		}
		nameLen := len(n.Filename())
		if nameLen > 255 {
			nameLen = 255
		}
		cursors[n.DirectoryStart] += uint64(entryHeaderSize + nameLen)
		if cursors[n.DirectoryStart] > maxCursor {
			maxCursor = cursors[n.DirectoryStart]
		}
	}

	total := maxEnd
	if maxCursor > total {
		total = maxCursor
	}
	return roundUp(total, FileModulus)
}

func roundUp(v, m uint64) uint64 {
	if m == 0 {
		return v
	}
	return (v + m - 1) / m * m
}
