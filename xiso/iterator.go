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

import "sort"

// EventKind distinguishes the two kinds of write event the iterator
// produces.
type EventKind int

const (
	// EventFile is a file's data, written at Node.StartSector*2048.
	EventFile EventKind = iota
	// EventDirTable is one node's own directory entry, written into its
	// parent's directory table at Node.DirectoryStart+Node.Offset.
	EventDirTable
)

// Event is one entry in the flattened, offset-sorted write plan a writer
// consumes to serialize an image.
type Event struct {
	Kind   EventKind
	Offset uint64
	Node   *Node
}

// Flatten walks the full directory forest rooted at rootTree and returns
// every node's write events, sorted by absolute offset ascending. Every
// node contributes an EventDirTable event (its own entry, written into
// its parent's table); a file node additionally contributes an EventFile
// event. The root directory itself has no entry (per the
// layout invariant that root never appears as a directory entry) — a
// writer that finds the root has no children must synthesize its empty
// table directly rather than relying on this iterator.
func Flatten(rootTree *Node) []Event {
	var events []Event
	var walk func(*Node)
	walk = func(dirRoot *Node) {
		walkDirectoryChildren(dirRoot, func(n *Node) {
			events = append(events, Event{
				Kind:   EventDirTable,
				Offset: n.DirectoryStart + n.Offset,
				Node:   n,
			})
			if n.IsDirectory {
				walk(n.Subdirectory)
			} else {
				events = append(events, Event{
					Kind:   EventFile,
					Offset: n.StartSector * SectorSize,
					Node:   n,
				})
			}
		})
	}
	walk(rootTree)

	sort.Slice(events, func(i, j int) bool { return events[i].Offset < events[j].Offset })
	return events
}
