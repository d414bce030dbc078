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
	"io"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pierrec/lz4/v4"

	"github.com/wiredopposite/xgdtool/splitio"
	"github.com/wiredopposite/xgdtool/xgderr"
	"github.com/wiredopposite/xgdtool/xiso"
)

var csoMagic = [4]byte{'C', 'I', 'S', 'O'}

const (
	csoHeaderSize     = 24
	csoWantBlockSize  = 2048
	csoWantVersion    = 2
	csoWantAlignShift = 2
	csoCompressedBit  = uint32(0x80000000)
	csoOffsetMask     = uint32(0x7FFFFFFF)
	csoSectorCacheLen = 256
)

type csoImpl struct {
	sr    *splitio.Reader
	index []uint32 // totalSectors+1 entries
	total uint32
	cache *lru.Cache[uint32, [xiso.SectorSize]byte]
}

// OpenCSO opens a CSO container: a 24-byte header followed immediately
// by a per-sector index (one u32 per sector plus a terminator), then a
// run of LZ4-frame compressed (or raw) 2048-byte sectors.
func OpenCSO(path string) (*Reader, error) {
	sr, err := splitio.OpenReader(path)
	if err != nil {
		return nil, xgderr.New(xgderr.FileOpen, "reader.OpenCSO", path, err)
	}

	header := make([]byte, csoHeaderSize)
	if _, err := sr.ReadAt(header, 0); err != nil {
		_ = sr.Close()
		return nil, xgderr.New(xgderr.FileRead, "reader.OpenCSO", path, err)
	}
	if [4]byte{header[0], header[1], header[2], header[3]} != csoMagic {
		_ = sr.Close()
		return nil, xgderr.New(xgderr.InvalidISO, "reader.OpenCSO", path, fmt.Errorf("bad CSO magic"))
	}
	headerSize := le32(header[4:8])
	uncompressedSize := le64(header[8:16])
	blockSize := le32(header[16:20])
	version := header[20]
	alignShift := header[21]
	if headerSize != csoHeaderSize || blockSize != csoWantBlockSize ||
		version != csoWantVersion || alignShift != csoWantAlignShift {
		_ = sr.Close()
		return nil, xgderr.New(xgderr.InvalidISO, "reader.OpenCSO", path, fmt.Errorf("unsupported CSO header fields"))
	}

	total := uint32(uncompressedSize / xiso.SectorSize)
	indexBuf := make([]byte, (uint64(total)+1)*4)
	if _, err := sr.ReadAt(indexBuf, csoHeaderSize); err != nil {
		_ = sr.Close()
		return nil, xgderr.New(xgderr.FileRead, "reader.OpenCSO", path, err)
	}
	index := make([]uint32, total+1)
	for i := range index {
		index[i] = le32(indexBuf[i*4 : i*4+4])
	}

	cache, _ := lru.New[uint32, [xiso.SectorSize]byte](csoSectorCacheLen)
	return newReader(KindCSO, &csoImpl{sr: sr, index: index, total: total, cache: cache}), nil
}

func (c *csoImpl) ReadSector(sector uint32) ([xiso.SectorSize]byte, error) {
	var out [xiso.SectorSize]byte
	if cached, ok := c.cache.Get(sector); ok {
		return cached, nil
	}
	if sector+1 >= uint32(len(c.index)) {
		return out, fmt.Errorf("sector %d out of range (%d total)", sector, c.total)
	}

	entry := c.index[sector]
	next := c.index[sector+1]
	off := uint64(entry&csoOffsetMask) << csoWantAlignShift
	nextOff := uint64(next&csoOffsetMask) << csoWantAlignShift
	storedSize := nextOff - off
	compressed := entry&csoCompressedBit != 0 || storedSize < xiso.SectorSize

	if !compressed {
		if _, err := c.sr.ReadAt(out[:], int64(off)); err != nil {
			return out, fmt.Errorf("read cso sector %d: %w", sector, err)
		}
		c.cache.Add(sector, out)
		return out, nil
	}

	payload := make([]byte, storedSize)
	if _, err := c.sr.ReadAt(payload, int64(off)); err != nil {
		return out, fmt.Errorf("read cso payload for sector %d: %w", sector, err)
	}

	// Each compressed sector is stored as one complete, self-contained
	// LZ4 frame (the CSO writer frames every sector independently so
	// any one can be decoded without its neighbors).
	n, err := decodeLZ4Frame(payload, out[:])
	if err != nil {
		return out, fmt.Errorf("lz4 frame decompress cso sector %d: %w", sector, err)
	}
	if n != xiso.SectorSize {
		return out, fmt.Errorf("cso sector %d decompressed to %d bytes, want %d", sector, n, xiso.SectorSize)
	}

	c.cache.Add(sector, out)
	return out, nil
}

// decodeLZ4Frame runs a single LZ4 frame through the streaming frame
// reader and copies the decompressed bytes into dst, returning the
// byte count written.
func decodeLZ4Frame(framed []byte, dst []byte) (int, error) {
	r := lz4.NewReader(bytes.NewReader(framed))
	n, err := io.ReadFull(r, dst)
	if err != nil && err != io.ErrUnexpectedEOF {
		return n, err
	}
	return n, nil
}

func (c *csoImpl) ImageOffset() uint64  { return 0 }
func (c *csoImpl) TotalSectors() uint32 { return c.total }

func (c *csoImpl) FileTime() (time.Time, error) {
	buf, err := readLogicalBytes(c.ReadSector, xisoFileTimeOff, 8)
	if err != nil {
		return time.Time{}, fmt.Errorf("read cso file time: %w", err)
	}
	return filetimeToTime(le64(buf)), nil
}

func (c *csoImpl) Close() error { return c.sr.Close() }
