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

// Package writer serializes a laid-out xiso.Node tree (plus, for
// container formats, compression/hashing on top) into XISO, CCI, CSO, or
// GoD output files. Every variant shares the same sector-region plan
// (BuildPlan) and differs only in how it consumes each sector.
package writer

import (
	"fmt"
	"io"

	"github.com/spf13/afero"

	"github.com/wiredopposite/xgdtool/xiso"
)

// Source supplies a file node's on-disc bytes to a writer, regardless of
// whether the data originates from a host filesystem or an already-open
// container being transcoded.
type Source interface {
	// ReadFileAt reads len(buf) bytes of n's file content starting at
	// byte offset off within that file, padding buf past EOF with 0xFF
	// the way the reference writer pads a short final sector.
	ReadFileAt(n *xiso.Node, buf []byte, off int64) error
}

// FSSource reads file content from a host filesystem by Node.Path, used
// when building a fresh image directly from a directory tree.
type FSSource struct{ Fs afero.Fs }

func (s FSSource) ReadFileAt(n *xiso.Node, buf []byte, off int64) error {
	f, err := s.Fs.Open(n.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", n.Path, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Seek(off, io.SeekStart); err != nil {
		return fmt.Errorf("seek %s: %w", n.Path, err)
	}

	n2, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return fmt.Errorf("read %s: %w", n.Path, err)
	}
	for i := n2; i < len(buf); i++ {
		buf[i] = 0xFF
	}
	return nil
}

// ReadSectorAt is the minimal surface writer needs from an already-open
// container: a reader.Reader satisfies this directly.
type ReadSectorAt interface {
	ReadBytes(offset uint64, n int) ([]byte, error)
}

// ReaderSource reads file content out of an existing container, using
// each node's OldStartSector (the sector it occupied before relayout).
// R.ReadBytes takes a logical xiso-relative offset; the container's own
// image offset is folded in internally by R, not added here.
type ReaderSource struct{ R ReadSectorAt }

func (s ReaderSource) ReadFileAt(n *xiso.Node, buf []byte, off int64) error {
	readOff := n.OldStartSector*xiso.SectorSize + uint64(off)
	data, err := s.R.ReadBytes(readOff, len(buf))
	if err != nil {
		return fmt.Errorf("read %s at %d: %w", n.Filename(), readOff, err)
	}
	copy(buf, data)
	for i := len(data); i < len(buf); i++ {
		buf[i] = 0xFF
	}
	return nil
}

// DirSource builds a tree and Source pair directly from a host directory,
// the on-disk equivalent of building from a prior reader.
func DirSource(root string) (*xiso.Node, Source, error) {
	fsys := afero.NewOsFs()
	tree, err := xiso.BuildTreeFromFilesystem(fsys, root)
	if err != nil {
		return nil, nil, err
	}
	return tree, FSSource{Fs: fsys}, nil
}
