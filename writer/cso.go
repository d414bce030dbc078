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
	"bytes"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/pierrec/lz4/v4"

	"github.com/wiredopposite/xgdtool/internal/binary"
	"github.com/wiredopposite/xgdtool/splitio"
	"github.com/wiredopposite/xgdtool/xgderr"
	"github.com/wiredopposite/xgdtool/xgdlog"
	"github.com/wiredopposite/xgdtool/xiso"
)

const (
	csoHeaderSize    = 24
	csoBlockSize     = 2048
	csoVersion       = 2
	csoAlignShift    = 2
	csoCompressedBit = uint32(0x80000000)
	csoSplitMargin   = 0xFFBF6000
	maxCSOWorkers    = 32
)

var csoMagic = [4]byte{'C', 'I', 'S', 'O'}

// WriteCSOOptions configures a CSO write.
type WriteCSOOptions struct {
	Split bool
}

type csoSectorResult struct {
	data       []byte
	compressed bool
	err        error
}

// WriteCSO serializes tree as a CSO container: a 24-byte header, an
// inline per-sector index, and a run of LZ4-frame-compressed (or raw)
// entries, matching what reader.OpenCSO parses. Sector compression runs
// on a bounded worker pool (min(runtime.NumCPU(), 32) goroutines); the
// final sequential pass assembles the compressed stream in sector order.
func WriteCSO(outPath string, tree *xiso.Node, rootSize, totalImageSize uint64, fileTime time.Time, src Source, opts WriteCSOOptions) ([]string, error) {
	plan, err := BuildPlan(tree, rootSize, totalImageSize, fileTime)
	if err != nil {
		return nil, xgderr.New(xgderr.Miscellaneous, "writer.WriteCSO", outPath, err)
	}

	total := plan.TotalSectors()
	results := make([]csoSectorResult, total)

	workers := runtime.NumCPU()
	if workers > maxCSOWorkers {
		workers = maxCSOWorkers
	}
	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	compressErr := plan.WriteSectors(src, func(sector uint32, data *[xiso.SectorSize]byte) error {
		buf := *data
		sem <- struct{}{}
		wg.Add(1)
		go func(sector uint32, buf [xiso.SectorSize]byte) {
			defer wg.Done()
			defer func() { <-sem }()
			results[sector] = compressCSOSector(buf)
		}(sector, buf)
		return nil
	}, nil)
	wg.Wait()
	if compressErr != nil {
		return nil, xgderr.New(xgderr.Miscellaneous, "writer.WriteCSO", outPath, compressErr)
	}
	for i, r := range results {
		if r.err != nil {
			return nil, xgderr.New(xgderr.Miscellaneous, "writer.WriteCSO", outPath, fmt.Errorf("sector %d: %w", i, r.err))
		}
	}

	cutSize := int64(0)
	if opts.Split {
		cutSize = csoSplitMargin
	}
	out, err := splitio.NewWriter(outPath, cutSize)
	if err != nil {
		return nil, xgderr.New(xgderr.FileOpen, "writer.WriteCSO", outPath, err)
	}

	indexBytes := int64(total+1) * 4
	bodyStart := int64(csoHeaderSize) + indexBytes
	index := make([]uint32, 0, total+1)
	pos := bodyStart

	progress := xgdlog.NewProgress("Writing CSO")
	for s, r := range results {
		index = append(index, uint32(pos>>csoAlignShift))

		if r.compressed {
			multiple := int64(1 << csoAlignShift)
			padded := (int64(len(r.data)) + multiple - 1) / multiple * multiple
			pad := padded - int64(len(r.data))

			if _, err := out.WriteAt(r.data, pos); err != nil {
				_ = out.Close(false)
				return nil, xgderr.New(xgderr.FileWrite, "writer.WriteCSO", outPath, err)
			}
			if pad > 0 {
				if _, err := out.WriteAt(make([]byte, pad), pos+int64(len(r.data))); err != nil {
					_ = out.Close(false)
					return nil, xgderr.New(xgderr.FileWrite, "writer.WriteCSO", outPath, err)
				}
			}
			index[len(index)-1] |= csoCompressedBit
			pos += int64(len(r.data)) + pad
		} else {
			if _, err := out.WriteAt(r.data, pos); err != nil {
				_ = out.Close(false)
				return nil, xgderr.New(xgderr.FileWrite, "writer.WriteCSO", outPath, err)
			}
			pos += csoBlockSize
		}
		progress.Update(uint64(s+1), total)
	}
	index = append(index, uint32(pos>>csoAlignShift))

	for i, v := range index {
		if err := binary.PutUint32LEAt(out, csoHeaderSize+int64(i)*4, v); err != nil {
			_ = out.Close(false)
			return nil, xgderr.New(xgderr.FileWrite, "writer.WriteCSO", outPath, err)
		}
	}

	header := make([]byte, csoHeaderSize)
	copy(header[0:4], csoMagic[:])
	putLE32(header[4:], csoHeaderSize)
	putLE64(header[8:], total*xiso.SectorSize)
	putLE32(header[16:], csoBlockSize)
	header[20] = csoVersion
	header[21] = csoAlignShift
	if _, err := out.WriteAt(header, 0); err != nil {
		_ = out.Close(false)
		return nil, xgderr.New(xgderr.FileWrite, "writer.WriteCSO", outPath, err)
	}

	if err := out.Close(true); err != nil {
		return nil, xgderr.New(xgderr.FileWrite, "writer.WriteCSO", outPath, err)
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

func compressCSOSector(buf [xiso.SectorSize]byte) csoSectorResult {
	var frame bytes.Buffer
	w := lz4.NewWriter(&frame)
	if _, err := w.Write(buf[:]); err != nil {
		return csoSectorResult{err: err}
	}
	if err := w.Close(); err != nil {
		return csoSectorResult{err: err}
	}
	if frame.Len() < csoBlockSize {
		return csoSectorResult{data: frame.Bytes(), compressed: true}
	}
	raw := make([]byte, xiso.SectorSize)
	copy(raw, buf[:])
	return csoSectorResult{data: raw, compressed: false}
}
