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
	"time"

	"github.com/wiredopposite/xgdtool/internal/binary"
)

// HeaderMagic is the 20-byte volume signature, written at HeaderOffset
// and again at the end of the header's trailing sector.
var HeaderMagic = []byte("MICROSOFT*XBOX*MEDIA")

const (
	// HeaderOffset is where the magic/root_sector/root_size/file_time
	// block begins.
	HeaderOffset = 0x10000

	// HeaderSize is the total size of the header region: HeaderOffset
	// plus the trailing sector holding the fields and the repeated
	// magic. It spans exactly 33 sectors.
	HeaderSize = HeaderOffset + SectorSize

	ecma119DataStart        = 0x8000
	ecma119VolSpaceSizeOff  = ecma119DataStart + 80
	ecma119VolSetSizeOff    = ecma119DataStart + 120
	ecma119VolSetIDOff      = ecma119DataStart + 190
	ecma119VolCreationDate  = ecma119DataStart + 813
	ecma119DateFieldLen     = 17
	ecma119HeaderTotalLen   = SectorSize + 7

	optimizedTagOffset = 31337
)

var optimizedTag = []byte("in!xgdt!go (xgdtool)")

// BuildHeader serializes the fixed region at the start of every XISO
// image: two reserved spans, an ECMA-119 volume descriptor at 0x8000
// good enough to satisfy a generic disc reader, and the magic/root
// pointer/file-time block at HeaderOffset, repeated once more at the
// end of its own sector. rootSector and rootSize describe the root
// directory table; totalSectors is the finished image's sector count.
func BuildHeader(rootSector, rootSize uint64, totalSectors uint32, fileTime time.Time) []byte {
	buf := make([]byte, HeaderSize)

	copy(buf[optimizedTagOffset:], optimizedTag)
	writeEcma119Descriptor(buf[ecma119DataStart:ecma119DataStart+ecma119HeaderTotalLen], totalSectors)

	copy(buf[HeaderOffset:], HeaderMagic)
	_ = binary.PutUint32LEAt(sliceWriter(buf), HeaderOffset+0x14, uint32(rootSector))
	_ = binary.PutUint32LEAt(sliceWriter(buf), HeaderOffset+0x18, uint32(rootSize))
	_ = binary.PutUint64LEAt(sliceWriter(buf), HeaderOffset+0x1C, TimeToFileTime(fileTime))
	copy(buf[HeaderOffset+SectorSize-20:], HeaderMagic)

	return buf
}

func writeEcma119Descriptor(buf []byte, totalSectors uint32) {
	copy(buf[0:7], []byte{0x01, 'C', 'D', '0', '0', '1', 0x01})

	_ = binary.PutUint32LEAt(sliceWriter(buf), 80, totalSectors)
	_ = binary.PutUint32BEAt(sliceWriter(buf), 84, totalSectors)

	copy(buf[120:132], []byte{0x01, 0x00, 0x00, 0x01, 0x01, 0x00, 0x00, 0x01, 0x00, 0x08, 0x08, 0x00})

	for i := ecma119VolCreationDate - ecma119VolSetIDOff; i > 0; i-- {
		buf[ecma119VolSetIDOff-ecma119DataStart+i-1] = 0x20
	}

	dateOff := ecma119VolCreationDate - ecma119DataStart
	for field := 0; field < 4; field++ {
		off := dateOff + field*ecma119DateFieldLen
		for i := 0; i < ecma119DateFieldLen-1; i++ {
			buf[off+i] = '0'
		}
		buf[off+ecma119DateFieldLen-1] = 0x00
	}

	finalByteOff := dateOff + 4*ecma119DateFieldLen
	buf[finalByteOff] = 0x01

	copy(buf[SectorSize:SectorSize+7], []byte{0xFF, 'C', 'D', '0', '0', '1', 0x01})
}

// sliceWriter adapts a byte slice to io.WriterAt for the shared
// binary.PutUint32LEAt/PutUint64LEAt helpers.
type sliceWriter []byte

func (s sliceWriter) WriteAt(p []byte, off int64) (int, error) {
	n := copy(s[off:], p)
	return n, nil
}

// TimeToFileTime converts a time.Time to a Windows FILETIME (100ns ticks
// since 1601-01-01), the inverse of the conversion the reader package
// applies to on-disc timestamps.
func TimeToFileTime(t time.Time) uint64 {
	const ticksPerSecond = 10_000_000
	const epochDiffSeconds = 11644473600
	secs := t.Unix() + epochDiffSeconds
	nanos := uint64(t.Nanosecond()) / 100
	return uint64(secs)*ticksPerSecond + nanos
}
