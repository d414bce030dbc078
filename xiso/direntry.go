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

import "github.com/wiredopposite/xgdtool/internal/binary"

// EncodeEntry packs n's own directory entry (14-byte header, name, and
// 0xFF pad to a 4-byte boundary) as it is written into its parent's
// directory table. left_offset/right_offset are derived from n's AVL
// children's own Offset within the same table.
func EncodeEntry(n *Node) []byte {
	buf := make([]byte, 0, n.EntryLength())
	buf = binary.AppendUint16LE(buf, childWordOffset(n.Left))
	buf = binary.AppendUint16LE(buf, childWordOffset(n.Right))
	buf = binary.AppendUint32LE(buf, uint32(n.StartSector))
	buf = binary.AppendUint32LE(buf, uint32(n.FileSize))

	attrs := byte(attrFile)
	if n.IsDirectory {
		attrs = attrDirectory
	}
	buf = append(buf, attrs, byte(len(n.filename)))
	buf = append(buf, n.filename...)

	for uint64(len(buf)) < n.EntryLength() {
		buf = append(buf, 0xFF)
	}
	return buf
}

func childWordOffset(child *Node) uint16 {
	if child == nil {
		return noChild
	}
	return uint16(child.Offset / 4)
}
