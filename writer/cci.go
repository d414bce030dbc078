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
	"time"

	"github.com/pierrec/lz4/v4"

	"github.com/wiredopposite/xgdtool/internal/binary"
	"github.com/wiredopposite/xgdtool/splitio"
	"github.com/wiredopposite/xgdtool/xgderr"
	"github.com/wiredopposite/xgdtool/xgdlog"
	"github.com/wiredopposite/xgdtool/xiso"
)

const (
	cciHeaderSize     = 32
	cciBlockSize      = 2048
	cciVersion        = 1
	cciAlignShift     = 2
	cciCompressedBit  = uint32(0x80000000)
	cciSplitMargin    = 0xFF000000
	cciMinShrinkExtra = 4 + (1 << cciAlignShift)
)

var cciMagic = [4]byte{'C', 'C', 'I', 'M'}

// WriteCCIOptions configures a CCI write.
type WriteCCIOptions struct {
	Split bool
}

// WriteCCI serializes tree as a CCI container: a 32-byte header, a run of
// LZ4-block-compressed (or raw) 2048-byte entries, and a trailing
// per-sector index, matching what reader.OpenCCI parses. The on-disc
// split is a single logical splitio stream (not per-part headers), per
// the §8 invariant the reader side already settled on.
func WriteCCI(outPath string, tree *xiso.Node, rootSize, totalImageSize uint64, fileTime time.Time, src Source, opts WriteCCIOptions) ([]string, error) {
	plan, err := BuildPlan(tree, rootSize, totalImageSize, fileTime)
	if err != nil {
		return nil, xgderr.New(xgderr.Miscellaneous, "writer.WriteCCI", outPath, err)
	}

	cutSize := int64(0)
	if opts.Split {
		cutSize = cciSplitMargin
	}
	out, err := splitio.NewWriter(outPath, cutSize)
	if err != nil {
		return nil, xgderr.New(xgderr.FileOpen, "writer.WriteCCI", outPath, err)
	}

	total := plan.TotalSectors()
	index := make([]uint32, 0, total+1)
	pos := int64(cciHeaderSize)
	compressBuf := make([]byte, cciBlockSize)

	progress := xgdlog.NewProgress("Writing CCI")
	writeErr := plan.WriteSectors(src, func(sector uint32, data *[xiso.SectorSize]byte) error {
		index = append(index, uint32(pos>>cciAlignShift))

		n, cerr := lz4.CompressBlock(data[:], compressBuf, nil)
		if cerr == nil && n > 0 && n < cciBlockSize-cciMinShrinkExtra {
			multiple := 1 << cciAlignShift
			padded := (n + 1 + multiple - 1) / multiple * multiple
			pad := padded - (n + 1)

			if _, err := out.WriteAt([]byte{byte(pad)}, pos); err != nil {
				return err
			}
			if _, err := out.WriteAt(compressBuf[:n], pos+1); err != nil {
				return err
			}
			if pad > 0 {
				if _, err := out.WriteAt(make([]byte, pad), pos+1+int64(n)); err != nil {
					return err
				}
			}
			index[len(index)-1] |= cciCompressedBit
			pos += int64(1 + n + pad)
			return nil
		}

		if _, err := out.WriteAt(data[:], pos); err != nil {
			return err
		}
		pos += cciBlockSize
		return nil
	}, progress.Update)

	if writeErr != nil {
		_ = out.Close(false)
		return nil, xgderr.New(xgderr.FileWrite, "writer.WriteCCI", outPath, writeErr)
	}

	index = append(index, uint32(pos>>cciAlignShift))
	indexOffset := pos
	for i, v := range index {
		if err := binary.PutUint32LEAt(out, indexOffset+int64(i)*4, v); err != nil {
			_ = out.Close(false)
			return nil, xgderr.New(xgderr.FileWrite, "writer.WriteCCI", outPath, err)
		}
	}

	header := make([]byte, cciHeaderSize)
	copy(header[0:4], cciMagic[:])
	putLE32(header[4:], cciHeaderSize)
	putLE64(header[8:], total*xiso.SectorSize)
	putLE64(header[16:], uint64(indexOffset))
	putLE32(header[24:], cciBlockSize)
	header[28] = cciVersion
	header[29] = cciAlignShift
	if _, err := out.WriteAt(header, 0); err != nil {
		_ = out.Close(false)
		return nil, xgderr.New(xgderr.FileWrite, "writer.WriteCCI", outPath, err)
	}

	if err := out.Close(true); err != nil {
		return nil, xgderr.New(xgderr.FileWrite, "writer.WriteCCI", outPath, err)
	}

	paths := []string{outPath}
	if out.NumParts() > 1 {
		paths = make([]string, out.NumParts())
		for i := range paths {
			paths[i] = splitio.PartPath(outPath, i+1)
		}
	}
	return paths, nil
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func putLE64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
