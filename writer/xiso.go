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

	"github.com/wiredopposite/xgdtool/splitio"
	"github.com/wiredopposite/xgdtool/xgderr"
	"github.com/wiredopposite/xgdtool/xgdlog"
	"github.com/wiredopposite/xgdtool/xiso"
)

// XISOSplitMargin is the split boundary a full-size XISO is cut at: the
// FATX-era practical limit for a single file on the original Xbox.
const XISOSplitMargin = 0xFF000000

// WriteXISOOptions configures a raw XISO write.
type WriteXISOOptions struct {
	// Split, when true, cuts the output at XISOSplitMargin into a
	// ".1"/".2" pair instead of one file.
	Split bool
}

// WriteXISO serializes tree (already run through xiso.ComputeLayout and
// xiso.AssignSectors) as a raw XISO image at outPath, pulling file
// content from src.
func WriteXISO(outPath string, tree *xiso.Node, rootSize, totalImageSize uint64, fileTime time.Time, src Source, opts WriteXISOOptions) ([]string, error) {
	plan, err := BuildPlan(tree, rootSize, totalImageSize, fileTime)
	if err != nil {
		return nil, xgderr.New(xgderr.Miscellaneous, "writer.WriteXISO", outPath, err)
	}

	cutSize := int64(0)
	if opts.Split {
		cutSize = XISOSplitMargin
	}
	out, err := splitio.NewWriter(outPath, cutSize)
	if err != nil {
		return nil, xgderr.New(xgderr.FileOpen, "writer.WriteXISO", outPath, err)
	}

	progress := xgdlog.NewProgress("Writing XISO")
	writeErr := plan.WriteSectors(src, func(sector uint32, data *[xiso.SectorSize]byte) error {
		_, err := out.WriteAt(data[:], int64(sector)*xiso.SectorSize)
		return err
	}, progress.Update)

	if writeErr != nil {
		_ = out.Close(false)
		return nil, xgderr.New(xgderr.FileWrite, "writer.WriteXISO", outPath, writeErr)
	}
	if err := out.Close(true); err != nil {
		return nil, xgderr.New(xgderr.FileWrite, "writer.WriteXISO", outPath, err)
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
