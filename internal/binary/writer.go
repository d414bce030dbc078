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

package binary

import (
	"encoding/binary"
	"fmt"
	"io"
)

// WriteAt writes buf to w at offset.
func WriteAt(w io.WriterAt, offset int64, buf []byte) error {
	if _, err := w.WriteAt(buf, offset); err != nil {
		return fmt.Errorf("write at offset %d: %w", offset, err)
	}
	return nil
}

// PutUint16LEAt writes a little-endian uint16 to w at offset.
func PutUint16LEAt(w io.WriterAt, offset int64, v uint16) error {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, v)
	return WriteAt(w, offset, buf)
}

// PutUint16BEAt writes a big-endian uint16 to w at offset.
func PutUint16BEAt(w io.WriterAt, offset int64, v uint16) error {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, v)
	return WriteAt(w, offset, buf)
}

// PutUint32LEAt writes a little-endian uint32 to w at offset.
func PutUint32LEAt(w io.WriterAt, offset int64, v uint32) error {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return WriteAt(w, offset, buf)
}

// PutUint32BEAt writes a big-endian uint32 to w at offset.
func PutUint32BEAt(w io.WriterAt, offset int64, v uint32) error {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	return WriteAt(w, offset, buf)
}

// PutUint64LEAt writes a little-endian uint64 to w at offset.
func PutUint64LEAt(w io.WriterAt, offset int64, v uint64) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return WriteAt(w, offset, buf)
}

// FillAt writes n copies of b to w starting at offset.
func FillAt(w io.WriterAt, offset int64, b byte, n int) error {
	if n == 0 {
		return nil
	}
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = b
	}
	return WriteAt(w, offset, buf)
}

// AppendUint16LE appends a little-endian uint16 to buf.
func AppendUint16LE(buf []byte, v uint16) []byte {
	return binary.LittleEndian.AppendUint16(buf, v)
}

// AppendUint32LE appends a little-endian uint32 to buf.
func AppendUint32LE(buf []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(buf, v)
}

// AppendUint32BE appends a big-endian uint32 to buf.
func AppendUint32BE(buf []byte, v uint32) []byte {
	return binary.BigEndian.AppendUint32(buf, v)
}

// PadName returns s as a fixed-width, NUL-padded (or truncated) byte slice.
func PadName(s string, n int) []byte {
	buf := make([]byte, n)
	copy(buf, s)
	return buf
}
