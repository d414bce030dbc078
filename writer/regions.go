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
	"fmt"
	"time"

	"github.com/wiredopposite/xgdtool/xiso"
)

type regionKind int

const (
	regionHeader regionKind = iota
	regionDirTable
	regionFile
)

// region is one contiguous run of sectors in the finished logical image,
// along with enough information to materialize any sector inside it.
// Every sector of the image belongs to at most one region; sectors that
// belong to none (inter-file gaps, trailing padding) are zero-filled.
type region struct {
	kind       regionKind
	startSec   uint64
	sectorLen  uint64
	headerData []byte // regionHeader
	tableData  []byte // regionDirTable, already padded to a sector multiple
	node       *xiso.Node
}

func (r region) end() uint64 { return r.startSec + r.sectorLen }

// Plan is the fully-resolved sector plan for one image: every region a
// writer needs to walk, plus the total sector count the finished image
// should have.
type Plan struct {
	regions      []region
	totalSectors uint64
}

// BuildPlan computes the full sector-region layout for tree (already run
// through xiso.ComputeLayout/AssignSectors), given rootSize and the
// finished image's total byte size, and embeds the XISO header with the
// given file time.
func BuildPlan(tree *xiso.Node, rootSize, totalImageSize uint64, fileTime time.Time) (*Plan, error) {
	rootSectorCount := sectorCount(rootSize)
	if rootSectorCount == 0 {
		rootSectorCount = 1
	}
	totalSectors := totalImageSize / xiso.SectorSize

	p := &Plan{totalSectors: totalSectors}

	header := xiso.BuildHeader(xiso.RootDirectorySector, rootSize, uint32(totalSectors), fileTime)
	p.regions = append(p.regions, region{
		kind:      regionHeader,
		startSec:  0,
		sectorLen: sectorCount(uint64(len(header))),
		headerData: header,
	})

	rootTable := assembleTable(tree, rootSize)
	p.regions = append(p.regions, region{
		kind:      regionDirTable,
		startSec:  xiso.RootDirectorySector,
		sectorLen: rootSectorCount,
		tableData: rootTable,
	})

	if err := p.addChildren(tree); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Plan) addChildren(dirRoot *xiso.Node) error {
	if dirRoot == nil || dirRoot.IsEmptyDir() {
		return nil
	}
	var walkErr error
	xiso.PreOrder(dirRoot, func(n *xiso.Node) {
		if walkErr != nil {
			return
		}
		if n.IsDirectory {
			if n.Subdirectory == nil || n.Subdirectory.IsEmptyDir() {
				return
			}
			count := sectorCount(n.FileSize)
			if count == 0 {
				count = 1
			}
			p.regions = append(p.regions, region{
				kind:      regionDirTable,
				startSec:  n.StartSector,
				sectorLen: count,
				tableData: assembleTable(n.Subdirectory, n.FileSize),
			})
			if err := p.addChildren(n.Subdirectory); err != nil {
				walkErr = err
			}
			return
		}
		p.regions = append(p.regions, region{
			kind:      regionFile,
			startSec:  n.StartSector,
			sectorLen: sectorCount(n.FileSize),
			node:      n,
		})
	})
	return walkErr
}

// assembleTable packs one directory's full on-disc table (every child's
// EncodeEntry at its own Offset), zero-padded to a sector multiple so
// the caller can slice whole sectors out of it directly. size is the
// directory's packed (unrounded) table size as ComputeLayout computed it.
func assembleTable(dirRoot *xiso.Node, size uint64) []byte {
	buf := make([]byte, alignSector(size))
	if dirRoot == nil || dirRoot.IsEmptyDir() {
		return buf
	}
	xiso.PreOrder(dirRoot, func(n *xiso.Node) {
		entry := xiso.EncodeEntry(n)
		copy(buf[n.Offset:], entry)
	})
	return buf
}

func sectorCount(size uint64) uint64 {
	if size == 0 {
		return 0
	}
	return (size + xiso.SectorSize - 1) / xiso.SectorSize
}

func alignSector(v uint64) uint64 {
	return (v + xiso.SectorSize - 1) &^ (xiso.SectorSize - 1)
}

// sectorAt finds the region (if any) covering the given logical sector
// and fills dst with that sector's bytes. src supplies file content for
// regionFile sectors. A sector belonging to no region is zero-filled.
func (p *Plan) sectorAt(sector uint64, src Source, dst *[xiso.SectorSize]byte) error {
	for _, r := range p.regions {
		if sector < r.startSec || sector >= r.end() {
			continue
		}
		rel := sector - r.startSec
		switch r.kind {
		case regionHeader:
			copy(dst[:], r.headerData[rel*xiso.SectorSize:])
		case regionDirTable:
			copy(dst[:], r.tableData[rel*xiso.SectorSize:(rel+1)*xiso.SectorSize])
		case regionFile:
			off := int64(rel * xiso.SectorSize)
			want := xiso.SectorSize
			if remaining := r.node.FileSize - rel*xiso.SectorSize; remaining < uint64(want) {
				want = int(remaining)
				for i := want; i < xiso.SectorSize; i++ {
					dst[i] = 0xFF
				}
			}
			if err := src.ReadFileAt(r.node, dst[:want], off); err != nil {
				return fmt.Errorf("read %s sector %d: %w", r.node.Filename(), rel, err)
			}
		}
		return nil
	}
	for i := range dst {
		dst[i] = 0
	}
	return nil
}

// WriteSectors walks every sector of the plan in order and invokes emit
// with each sector's finished bytes. progress, if non-nil, is called
// after every sector with the running/total sector counts.
func (p *Plan) WriteSectors(src Source, emit func(sector uint32, data *[xiso.SectorSize]byte) error, progress func(current, total uint64)) error {
	var buf [xiso.SectorSize]byte
	for s := uint64(0); s < p.totalSectors; s++ {
		if err := p.sectorAt(s, src, &buf); err != nil {
			return err
		}
		if err := emit(uint32(s), &buf); err != nil {
			return fmt.Errorf("emit sector %d: %w", s, err)
		}
		if progress != nil {
			progress(s+1, p.totalSectors)
		}
	}
	return nil
}

// TotalSectors is the finished image's sector count.
func (p *Plan) TotalSectors() uint64 { return p.totalSectors }
