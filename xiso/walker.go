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

import (
	"fmt"
	"path"
	"strings"
)

// SectorSource is the minimal read contract the walker needs: a sector
// reader. Every variant in package reader satisfies this without xiso
// importing it, avoiding a cycle.
type SectorSource interface {
	ReadSector(sector uint32) ([SectorSize]byte, error)
}

const (
	attrDirectory = 0x10
	attrFile      = 0x20
	noChild       = 0xFFFF
)

func isNoChild(offset uint16) bool {
	return offset == noChild || offset&0xFF == 0xFF
}

type rawEntry struct {
	leftWords   uint16
	rightWords  uint16
	startSector uint32
	fileSize    uint32
	attributes  uint8
	name        string
	entryLen    int
}

func decodeRawEntry(buf []byte, off int) (rawEntry, error) {
	if off+entryHeaderSize > len(buf) {
		return rawEntry{}, fmt.Errorf("directory entry at offset %d exceeds table bounds", off)
	}
	left := uint16(buf[off]) | uint16(buf[off+1])<<8
	right := uint16(buf[off+2]) | uint16(buf[off+3])<<8
	start := uint32(buf[off+4]) | uint32(buf[off+5])<<8 | uint32(buf[off+6])<<16 | uint32(buf[off+7])<<24
	size := uint32(buf[off+8]) | uint32(buf[off+9])<<8 | uint32(buf[off+10])<<16 | uint32(buf[off+11])<<24
	attrs := buf[off+12]
	nameLen := int(buf[off+13])

	nameStart := off + entryHeaderSize
	if nameStart+nameLen > len(buf) {
		return rawEntry{}, fmt.Errorf("directory entry name at offset %d exceeds table bounds", nameStart)
	}
	name := string(buf[nameStart : nameStart+nameLen])

	return rawEntry{
		leftWords:   left,
		rightWords:  right,
		startSector: start,
		fileSize:    size,
		attributes:  attrs,
		name:        name,
		entryLen:    int(align4(uint64(entryHeaderSize + nameLen))),
	}, nil
}

// DirEntry is one flattened on-disc directory entry discovered by the
// walker, relative to the image root.
type DirEntry struct {
	Name        string
	ParentPath  string // "" for entries directly under the root
	StartSector uint32
	FileSize    uint32
	IsDirectory bool
}

// Path returns the entry's full path relative to the image root.
func (e DirEntry) Path() string {
	if e.ParentPath == "" {
		return e.Name
	}
	return path.Join(e.ParentPath, e.Name)
}

// readTable reads a directory table's bytes given its start sector and
// declared size, spanning however many sectors that requires.
func readTable(src SectorSource, startSector uint32, size uint32) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	sectors := (size + SectorSize - 1) / SectorSize
	buf := make([]byte, 0, sectors*SectorSize)
	for i := uint32(0); i < sectors; i++ {
		sec, err := src.ReadSector(startSector + i)
		if err != nil {
			return nil, fmt.Errorf("read directory table sector %d: %w", startSector+i, err)
		}
		buf = append(buf, sec[:]...)
	}
	return buf[:size], nil
}

// WalkEntries walks the on-disc directory tree starting at the root
// table, returning every entry discovered in true pre-order traversal
// order (root table first, then each subdirectory depth-first in the
// order its entries are visited) — the order the executable search
// relies on.
func WalkEntries(src SectorSource, rootSector, rootSize uint32) ([]DirEntry, error) {
	var out []DirEntry
	if err := walkTable(src, rootSector, rootSize, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func walkTable(src SectorSource, tableSector, tableSize uint32, parentPath string, out *[]DirEntry) error {
	buf, err := readTable(src, tableSector, tableSize)
	if err != nil {
		return err
	}
	if len(buf) == 0 {
		return nil
	}
	return walkNode(src, buf, 0, parentPath, out)
}

// walkNode visits the embedded binary tree inside one directory table,
// starting at offsetWords (in 32-bit words from the table start).
func walkNode(src SectorSource, buf []byte, offsetWords uint16, parentPath string, out *[]DirEntry) error {
	if isNoChild(offsetWords) {
		return nil
	}

	byteOff := int(offsetWords) * 4
	entry, err := decodeRawEntry(buf, byteOff)
	if err != nil {
		return err
	}

	de := DirEntry{
		Name:        entry.name,
		ParentPath:  parentPath,
		StartSector: entry.startSector,
		FileSize:    entry.fileSize,
		IsDirectory: entry.attributes&attrDirectory != 0,
	}
	*out = append(*out, de)

	if de.IsDirectory && de.FileSize > 0 {
		if err := walkTable(src, de.StartSector, de.FileSize, de.Path(), out); err != nil {
			return err
		}
	}

	if err := walkNode(src, buf, entry.leftWords, parentPath, out); err != nil {
		return err
	}
	return walkNode(src, buf, entry.rightWords, parentPath, out)
}

// FindExecutable returns the first entry named "default.xex" or
// "default.xbe" (case-insensitive) in walk order. Per the reference
// behavior this is the first match found anywhere in pre-order, which
// can miss a same-named file in a shallower directory if a deeper
// directory happens to be visited first by the AVL ordering.
func FindExecutable(entries []DirEntry) (DirEntry, bool) {
	for _, e := range entries {
		if e.IsDirectory {
			continue
		}
		lower := strings.ToLower(e.Name)
		if lower == "default.xex" || lower == "default.xbe" {
			return e, true
		}
	}
	return DirEntry{}, false
}

// DataSectors returns the set of sectors occupied by every directory
// table and file in entries, plus the root table itself.
func DataSectors(rootSector, rootSize uint32, entries []DirEntry) map[uint32]struct{} {
	sectors := make(map[uint32]struct{})
	addRange(sectors, rootSector, rootSize)
	for _, e := range entries {
		addRange(sectors, e.StartSector, e.FileSize)
	}
	return sectors
}

func addRange(set map[uint32]struct{}, start, size uint32) {
	count := uint32(0)
	if size > 0 {
		count = (size + SectorSize - 1) / SectorSize
	}
	for i := uint32(0); i < count; i++ {
		set[start+i] = struct{}{}
	}
}
