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
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pierrec/lz4/v4"

	"github.com/wiredopposite/xgdtool/splitio"
	"github.com/wiredopposite/xgdtool/xgderr"
	"github.com/wiredopposite/xgdtool/xiso"
)

var cciMagic = [4]byte{'C', 'C', 'I', 'M'}

const (
	cciHeaderSize     = 32
	cciWantBlockSize  = 2048
	cciWantVersion    = 1
	cciWantAlignShift = 2
	cciCompressedBit  = uint32(0x80000000)
	cciOffsetMask     = uint32(0x7FFFFFFF)
	cciSectorCacheLen = 256
)

type cciImpl struct {
	sr    *splitio.Reader
	index []uint32 // totalSectors+1 entries
	total uint32
	cache *lru.Cache[uint32, [xiso.SectorSize]byte]
}

// OpenCCI opens a CCI container: a 32-byte header, a run of LZ4-block
// compressed (or raw) 2048-byte sectors, and a trailing per-sector index.
func OpenCCI(path string) (*Reader, error) {
	sr, err := splitio.OpenReader(path)
	if err != nil {
		return nil, xgderr.New(xgderr.FileOpen, "reader.OpenCCI", path, err)
	}

	header := make([]byte, cciHeaderSize)
	if _, err := sr.ReadAt(header, 0); err != nil {
		_ = sr.Close()
		return nil, xgderr.New(xgderr.FileRead, "reader.OpenCCI", path, err)
	}
	if [4]byte{header[0], header[1], header[2], header[3]} != cciMagic {
		_ = sr.Close()
		return nil, xgderr.New(xgderr.InvalidISO, "reader.OpenCCI", path, fmt.Errorf("bad CCI magic"))
	}
	headerSize := le32(header[4:8])
	uncompressedSize := le64(header[8:16])
	indexOffset := le64(header[16:24])
	blockSize := le32(header[24:28])
	version := header[28]
	alignShift := header[29]
	if headerSize != cciHeaderSize || blockSize != cciWantBlockSize ||
		version != cciWantVersion || alignShift != cciWantAlignShift {
		_ = sr.Close()
		return nil, xgderr.New(xgderr.InvalidISO, "reader.OpenCCI", path, fmt.Errorf("unsupported CCI header fields"))
	}

	total := uint32(uncompressedSize / xiso.SectorSize)
	indexBuf := make([]byte, (uint64(total)+1)*4)
	if _, err := sr.ReadAt(indexBuf, int64(indexOffset)); err != nil {
		_ = sr.Close()
		return nil, xgderr.New(xgderr.FileRead, "reader.OpenCCI", path, err)
	}
	index := make([]uint32, total+1)
	for i := range index {
		index[i] = le32(indexBuf[i*4 : i*4+4])
	}

	cache, _ := lru.New[uint32, [xiso.SectorSize]byte](cciSectorCacheLen)
	return newReader(KindCCI, &cciImpl{sr: sr, index: index, total: total, cache: cache}), nil
}

func (c *cciImpl) ReadSector(sector uint32) ([xiso.SectorSize]byte, error) {
	var out [xiso.SectorSize]byte
	if cached, ok := c.cache.Get(sector); ok {
		return cached, nil
	}
	if sector+1 >= uint32(len(c.index)) {
		return out, fmt.Errorf("sector %d out of range (%d total)", sector, c.total)
	}

	entry := c.index[sector]
	next := c.index[sector+1]
	off := uint64(entry&cciOffsetMask) << cciWantAlignShift
	nextOff := uint64(next&cciOffsetMask) << cciWantAlignShift
	compressedSize := nextOff - off
	compressed := entry&cciCompressedBit != 0

	if !compressed && compressedSize >= xiso.SectorSize {
		if _, err := c.sr.ReadAt(out[:], int64(off)); err != nil {
			return out, fmt.Errorf("read cci sector %d: %w", sector, err)
		}
		c.cache.Add(sector, out)
		return out, nil
	}

	padBuf := make([]byte, 1)
	if _, err := c.sr.ReadAt(padBuf, int64(off)); err != nil {
		return out, fmt.Errorf("read cci padding for sector %d: %w", sector, err)
	}
	pad := int(padBuf[0])

	payloadLen := int(compressedSize) - 1 - pad
	if payloadLen < 0 {
		return out, fmt.Errorf("cci sector %d has negative payload length", sector)
	}
	payload := make([]byte, payloadLen)
	if _, err := c.sr.ReadAt(payload, int64(off)+1); err != nil {
		return out, fmt.Errorf("read cci payload for sector %d: %w", sector, err)
	}

	n, err := lz4.UncompressBlock(payload, out[:])
	if err != nil {
		return out, fmt.Errorf("lz4 decompress cci sector %d: %w", sector, err)
	}
	if n != xiso.SectorSize {
		return out, fmt.Errorf("cci sector %d decompressed to %d bytes, want %d", sector, n, xiso.SectorSize)
	}

	c.cache.Add(sector, out)
	return out, nil
}

func (c *cciImpl) ImageOffset() uint64  { return 0 }
func (c *cciImpl) TotalSectors() uint32 { return c.total }

func (c *cciImpl) FileTime() (time.Time, error) {
	buf, err := readLogicalBytes(c.ReadSector, xisoFileTimeOff, 8)
	if err != nil {
		return time.Time{}, fmt.Errorf("read cci file time: %w", err)
	}
	return filetimeToTime(le64(buf)), nil
}

func (c *cciImpl) Close() error { return c.sr.Close() }
