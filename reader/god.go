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
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/wiredopposite/xgdtool/internal/godmap"
	"github.com/wiredopposite/xgdtool/xgderr"
	"github.com/wiredopposite/xgdtool/xiso"
)

const (
	godMaxSearchDepth = 5
	godDataDirSuffix  = ".data"
	godDataFilePrefix = "Data"
)

type godPart struct {
	f    *os.File
	size int64
}

type godImpl struct {
	parts []godPart
	total uint32
}

// OpenGoD opens a GoD ("Games on Demand") container: root is either the
// directory holding the "<title>.data" folder or the .data folder
// itself, searched up to a fixed depth for the numbered Data#### part
// files that hold the hash-tree-wrapped XISO payload.
func OpenGoD(root string) (*Reader, error) {
	dataDir, err := findDataDir(root, godMaxSearchDepth)
	if err != nil {
		return nil, xgderr.New(xgderr.FileOpen, "reader.OpenGoD", root, err)
	}

	names, err := listDataPartNames(dataDir)
	if err != nil {
		return nil, xgderr.New(xgderr.FileOpen, "reader.OpenGoD", dataDir, err)
	}
	if len(names) == 0 {
		return nil, xgderr.New(xgderr.InvalidISO, "reader.OpenGoD", dataDir, fmt.Errorf("no Data#### part files found"))
	}

	parts := make([]godPart, 0, len(names))
	for _, name := range names {
		f, err := os.Open(filepath.Join(dataDir, name))
		if err != nil {
			for _, p := range parts {
				_ = p.f.Close()
			}
			return nil, xgderr.New(xgderr.FileOpen, "reader.OpenGoD", name, err)
		}
		info, err := f.Stat()
		if err != nil {
			_ = f.Close()
			for _, p := range parts {
				_ = p.f.Close()
			}
			return nil, xgderr.New(xgderr.FileOpen, "reader.OpenGoD", name, err)
		}
		parts = append(parts, godPart{f: f, size: info.Size()})
	}

	g := &godImpl{parts: parts}
	g.total = g.computeTotalSectors()
	return newReader(KindGoD, g), nil
}

// findDataDir walks down from root, up to maxDepth levels, looking for
// a directory whose name ends in ".data".
func findDataDir(root string, maxDepth int) (string, error) {
	if strings.HasSuffix(strings.ToLower(root), godDataDirSuffix) {
		return root, nil
	}

	type frame struct {
		path  string
		depth int
	}
	queue := []frame{{root, 0}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		entries, err := os.ReadDir(cur.path)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			full := filepath.Join(cur.path, e.Name())
			if strings.HasSuffix(strings.ToLower(e.Name()), godDataDirSuffix) {
				return full, nil
			}
			if cur.depth+1 < maxDepth {
				queue = append(queue, frame{full, cur.depth + 1})
			}
		}
	}
	return "", fmt.Errorf("no %q directory found under %s within %d levels", godDataDirSuffix, root, maxDepth)
}

func listDataPartNames(dataDir string) ([]string, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), godDataFilePrefix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// sectorLocation maps a logical (hash-tree-hidden) sector index to the
// part index and byte offset within that part's physical file; see
// godmap.SectorLocation for the layout this follows.
func sectorLocation(s uint32) (part int, offset int64) {
	loc := godmap.SectorLocation(s)
	return loc.Part, loc.Offset
}

func (g *godImpl) computeTotalSectors() uint32 {
	var s uint32
	for {
		part, off := sectorLocation(s)
		if part >= len(g.parts) {
			return s
		}
		if off+xiso.SectorSize > g.parts[part].size {
			return s
		}
		s++
	}
}

func (g *godImpl) ReadSector(sector uint32) ([xiso.SectorSize]byte, error) {
	var out [xiso.SectorSize]byte
	part, off := sectorLocation(sector)
	if part >= len(g.parts) {
		return out, fmt.Errorf("god sector %d maps to part %d, only %d present", sector, part, len(g.parts))
	}
	if _, err := g.parts[part].f.ReadAt(out[:], off); err != nil {
		return out, fmt.Errorf("read god sector %d (part %d, offset %d): %w", sector, part, off, err)
	}
	return out, nil
}

func (g *godImpl) ImageOffset() uint64  { return 0 }
func (g *godImpl) TotalSectors() uint32 { return g.total }

func (g *godImpl) FileTime() (time.Time, error) {
	buf, err := readLogicalBytes(g.ReadSector, xisoFileTimeOff, 8)
	if err != nil {
		return time.Time{}, fmt.Errorf("read god file time: %w", err)
	}
	return filetimeToTime(le64(buf)), nil
}

func (g *godImpl) Close() error {
	var firstErr error
	for _, p := range g.parts {
		if err := p.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
