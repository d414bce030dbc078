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
	"bytes"
	"fmt"
	"time"

	"github.com/wiredopposite/xgdtool/splitio"
	"github.com/wiredopposite/xgdtool/xgderr"
	"github.com/wiredopposite/xgdtool/xiso"
)

var xisoMagic = []byte("MICROSOFT*XBOX*MEDIA")

// candidateImageOffsets are the only byte offsets at which an XISO
// filesystem has ever been observed to start inside a physical file.
var candidateImageOffsets = []uint64{0, 0x0FD90000, 0x02080000, 0x18300000}

const (
	xisoHeaderOffset  = 0x10000
	xisoRootSectorOff = xisoHeaderOffset + 0x14
	xisoRootSizeOff   = xisoHeaderOffset + 0x18
	xisoFileTimeOff   = xisoHeaderOffset + 0x1C
)

type xisoImpl struct {
	sr           *splitio.Reader
	imageOffset  uint64
	totalSectors uint32
}

// OpenXISO opens a raw XISO, probing the four known image offsets for
// the volume magic. path may be the unsplit file or either member of a
// split pair; a member path is mapped to its base and splitio resolves
// the logical stream.
func OpenXISO(path string) (*Reader, error) {
	if base, _, ok := splitio.IsSplitMember(path); ok {
		path = base
	}
	sr, err := splitio.OpenReader(path)
	if err != nil {
		return nil, xgderr.New(xgderr.FileOpen, "reader.OpenXISO", path, err)
	}

	offset, ok, err := probeImageOffset(sr)
	if err != nil {
		_ = sr.Close()
		return nil, err
	}
	if !ok {
		_ = sr.Close()
		return nil, xgderr.New(xgderr.InvalidISO, "reader.OpenXISO", path,
			fmt.Errorf("XISO magic not found at any known image offset"))
	}

	total := uint32((uint64(sr.Size()) - offset) / xiso.SectorSize)
	return newReader(KindXISO, &xisoImpl{sr: sr, imageOffset: offset, totalSectors: total}), nil
}

func probeImageOffset(sr *splitio.Reader) (uint64, bool, error) {
	buf := make([]byte, len(xisoMagic))
	for _, off := range candidateImageOffsets {
		n, err := sr.ReadAt(buf, int64(off+xisoHeaderOffset))
		if err != nil || n != len(buf) {
			continue
		}
		if bytes.Equal(buf, xisoMagic) {
			return off, true, nil
		}
	}
	return 0, false, nil
}

func (x *xisoImpl) ReadSector(sector uint32) ([xiso.SectorSize]byte, error) {
	var buf [xiso.SectorSize]byte
	off := int64(x.imageOffset) + int64(sector)*xiso.SectorSize
	if _, err := x.sr.ReadAt(buf[:], off); err != nil {
		return buf, fmt.Errorf("read xiso sector %d: %w", sector, err)
	}
	return buf, nil
}

func (x *xisoImpl) ImageOffset() uint64  { return x.imageOffset }
func (x *xisoImpl) TotalSectors() uint32 { return x.totalSectors }

func (x *xisoImpl) FileTime() (time.Time, error) {
	buf := make([]byte, 8)
	if _, err := x.sr.ReadAt(buf, int64(x.imageOffset)+xisoFileTimeOff); err != nil {
		return time.Time{}, fmt.Errorf("read xiso file time: %w", err)
	}
	return filetimeToTime(le64(buf)), nil
}

func (x *xisoImpl) Close() error { return x.sr.Close() }

func le64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// filetimeToTime converts a Windows FILETIME (100ns ticks since
// 1601-01-01) to a time.Time.
func filetimeToTime(ft uint64) time.Time {
	const ticksPerSecond = 10_000_000
	const epochDiffSeconds = 11644473600 // seconds between 1601 and 1970
	secs := int64(ft/ticksPerSecond) - epochDiffSeconds
	nanos := int64(ft%ticksPerSecond) * 100
	return time.Unix(secs, nanos).UTC()
}
