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

// Package reader provides a uniform sector-addressed view over every
// supported input container (raw XISO, CCI, CSO, GoD), plus the lazily
// computed directory listing, data-sector set, executable entry, and
// on-disc timestamp every writer and the extractor consume.
package reader

import (
	"fmt"
	"sync"
	"time"

	"github.com/wiredopposite/xgdtool/xgderr"
	"github.com/wiredopposite/xgdtool/xiso"
)

// Kind identifies which on-disc container a Reader was opened against.
type Kind int

const (
	KindXISO Kind = iota
	KindCCI
	KindCSO
	KindGoD
)

func (k Kind) String() string {
	switch k {
	case KindCCI:
		return "cci"
	case KindCSO:
		return "cso"
	case KindGoD:
		return "god"
	default:
		return "xiso"
	}
}

// impl is the small contract each container variant satisfies. Reader
// dispatches to it for the handful of operations that actually differ
// between formats; every other Reader method (the lazy caches) is
// implemented once, on top of ReadSector.
type impl interface {
	ReadSector(sector uint32) ([xiso.SectorSize]byte, error)
	ImageOffset() uint64
	TotalSectors() uint32
	FileTime() (time.Time, error)
	Close() error
}

// Reader is the tagged-variant sector reader shared by every writer and
// the extractor. Construct one with OpenXISO, OpenCCI, OpenCSO, or
// OpenGoD.
type Reader struct {
	kind Kind
	impl impl

	entriesOnce sync.Once
	entries     []xiso.DirEntry
	entriesErr  error

	dataSectorsOnce sync.Once
	dataSectors     map[uint32]struct{}
	dataSectorsErr  error

	execOnce sync.Once
	exec     xiso.DirEntry
	execOK   bool
	execErr  error
}

func newReader(kind Kind, i impl) *Reader {
	return &Reader{kind: kind, impl: i}
}

// Kind reports which container variant backs this reader.
func (r *Reader) Kind() Kind { return r.kind }

// ReadSector reads one 2048-byte sector.
func (r *Reader) ReadSector(sector uint32) ([xiso.SectorSize]byte, error) {
	return r.impl.ReadSector(sector)
}

// ReadBytes reads n bytes at the logical byte offset, spanning as many
// sectors as needed: ceil((offset%2048+n)/2048) sectors, copying out the
// n bytes that start at offset%2048 within that span.
func (r *Reader) ReadBytes(offset uint64, n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	firstSector := uint32(offset / xiso.SectorSize)
	within := int(offset % xiso.SectorSize)
	sectors := (within + n + xiso.SectorSize - 1) / xiso.SectorSize

	buf := make([]byte, 0, sectors*xiso.SectorSize)
	for i := 0; i < sectors; i++ {
		sec, err := r.impl.ReadSector(firstSector + uint32(i))
		if err != nil {
			return nil, fmt.Errorf("read sector %d: %w", firstSector+uint32(i), err)
		}
		buf = append(buf, sec[:]...)
	}
	return buf[within : within+n], nil
}

// ImageOffset returns the absolute byte offset at which the XISO
// filesystem begins inside the underlying physical file(s).
func (r *Reader) ImageOffset() uint64 { return r.impl.ImageOffset() }

// TotalSectors returns the logical sector count of the XISO filesystem.
func (r *Reader) TotalSectors() uint32 { return r.impl.TotalSectors() }

// FileTime returns the on-disc header timestamp.
func (r *Reader) FileTime() (time.Time, error) { return r.impl.FileTime() }

// Close releases the underlying file handle(s).
func (r *Reader) Close() error { return r.impl.Close() }

// sectorSourceAdapter lets xiso.WalkEntries call back into a Reader
// without xiso importing this package.
type sectorSourceAdapter struct{ r *Reader }

func (a sectorSourceAdapter) ReadSector(sector uint32) ([xiso.SectorSize]byte, error) {
	return a.r.ReadSector(sector)
}

func (r *Reader) rootSectorAndSize() (uint32, uint32, error) {
	rootSectorBuf, err := r.ReadBytes(0x10014, 4)
	if err != nil {
		return 0, 0, xgderr.New(xgderr.FileRead, "reader.Reader.rootSectorAndSize", "", err)
	}
	rootSizeBuf, err := r.ReadBytes(0x10018, 4)
	if err != nil {
		return 0, 0, xgderr.New(xgderr.FileRead, "reader.Reader.rootSectorAndSize", "", err)
	}
	rootSector := le32(rootSectorBuf)
	rootSize := le32(rootSizeBuf)
	return rootSector, rootSize, nil
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// readLogicalBytes reads n bytes at a logical byte offset by way of a
// ReadSector function, the same ceil((offset%2048+n)/2048) contract
// Reader.ReadBytes implements. Container variants whose physical layout
// does not match the logical XISO byte-for-byte (CCI, CSO, GoD) use this
// to read header fields like the on-disc FILETIME through sector 0's
// logical reconstruction rather than a raw file offset.
func readLogicalBytes(readSector func(uint32) ([xiso.SectorSize]byte, error), offset uint64, n int) ([]byte, error) {
	firstSector := uint32(offset / xiso.SectorSize)
	within := int(offset % xiso.SectorSize)
	sectors := (within + n + xiso.SectorSize - 1) / xiso.SectorSize

	buf := make([]byte, 0, sectors*xiso.SectorSize)
	for i := 0; i < sectors; i++ {
		sec, err := readSector(firstSector + uint32(i))
		if err != nil {
			return nil, fmt.Errorf("read sector %d: %w", firstSector+uint32(i), err)
		}
		buf = append(buf, sec[:]...)
	}
	return buf[within : within+n], nil
}

// DirectoryEntries returns every entry in the image, dirs sorted before
// files and then by path — a synthesized presentation order distinct
// from the raw AVL pre-order walk ExecutableEntry relies on.
func (r *Reader) DirectoryEntries() ([]xiso.DirEntry, error) {
	r.entriesOnce.Do(func() {
		rootSector, rootSize, err := r.rootSectorAndSize()
		if err != nil {
			r.entriesErr = err
			return
		}
		entries, err := xiso.WalkEntries(sectorSourceAdapter{r}, rootSector, rootSize)
		if err != nil {
			r.entriesErr = xgderr.New(xgderr.InvalidISO, "reader.Reader.DirectoryEntries", "", err)
			return
		}
		sortEntries(entries)
		r.entries = entries
	})
	return r.entries, r.entriesErr
}

func sortEntries(entries []xiso.DirEntry) {
	// Stable sort: directories first, then lexical path. Equal keys keep
	// their original (pre-order) relative order.
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && lessEntry(entries[j], entries[j-1]); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

func lessEntry(a, b xiso.DirEntry) bool {
	if a.IsDirectory != b.IsDirectory {
		return a.IsDirectory
	}
	return a.Path() < b.Path()
}

// DataSectors returns the union of every directory-table and file-data
// sector range, including OGX security sectors when the image size
// matches a known Redump layout (§4.C4).
func (r *Reader) DataSectors() (map[uint32]struct{}, error) {
	r.dataSectorsOnce.Do(func() {
		entries, err := r.DirectoryEntries()
		if err != nil {
			r.dataSectorsErr = err
			return
		}
		rootSector, rootSize, err := r.rootSectorAndSize()
		if err != nil {
			r.dataSectorsErr = err
			return
		}
		sectors := xiso.DataSectors(rootSector, rootSize, entries)
		r.dataSectorsErr = addOGXSecuritySectors(r, sectors)
		r.dataSectors = sectors
	})
	return r.dataSectors, r.dataSectorsErr
}

// ExecutableEntry returns the first "default.xex"/"default.xbe" match in
// AVL pre-order, per the reference walker's short-circuiting behavior.
func (r *Reader) ExecutableEntry() (xiso.DirEntry, bool, error) {
	r.execOnce.Do(func() {
		rootSector, rootSize, err := r.rootSectorAndSize()
		if err != nil {
			r.execErr = err
			return
		}
		entries, err := xiso.WalkEntries(sectorSourceAdapter{r}, rootSector, rootSize)
		if err != nil {
			r.execErr = xgderr.New(xgderr.InvalidISO, "reader.Reader.ExecutableEntry", "", err)
			return
		}
		r.exec, r.execOK = xiso.FindExecutable(entries)
	})
	return r.exec, r.execOK, r.execErr
}
