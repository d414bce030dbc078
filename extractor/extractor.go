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

// Package extractor writes an open container's directory entries out to
// a host filesystem, the inverse of building a fresh image from one.
package extractor

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/wiredopposite/xgdtool/reader"
	"github.com/wiredopposite/xgdtool/xgderr"
	"github.com/wiredopposite/xgdtool/xiso"
)

// copyChunkSize bounds a single file's read/write calls to one sector's
// worth of data at a time, matching the reference extractor's buffer size.
const copyChunkSize = xiso.SectorSize

var reservedDeviceNames = map[string]struct{}{
	"con": {}, "prn": {}, "aux": {}, "nul": {},
	"com1": {}, "com2": {}, "com3": {}, "com4": {}, "com5": {},
	"com6": {}, "com7": {}, "com8": {}, "com9": {},
	"lpt1": {}, "lpt2": {}, "lpt3": {}, "lpt4": {}, "lpt5": {},
	"lpt6": {}, "lpt7": {}, "lpt8": {}, "lpt9": {},
}

// SafeName reports whether name is safe to create as a single path
// component on a host filesystem: not equal (case-insensitively) to a
// reserved DOS device name, and free of "..", "./" and ".\" traversal
// tokens.
func SafeName(name string) bool {
	if name == "" {
		return false
	}
	if _, reserved := reservedDeviceNames[strings.ToLower(name)]; reserved {
		return false
	}
	if strings.Contains(name, "..") || strings.Contains(name, "./") || strings.Contains(name, `.\`) {
		return false
	}
	return true
}

func validatePath(p string) error {
	for _, part := range strings.Split(p, "/") {
		if !SafeName(part) {
			return xgderr.New(xgderr.Miscellaneous, "extractor.validatePath", p,
				fmt.Errorf("unsafe path component %q", part))
		}
	}
	return nil
}

// Options configures Extract.
type Options struct {
	// Progress, if set, is called as extraction proceeds with
	// (bytesWritten, totalBytes), the throttled-update signature
	// xgdlog.Progress.Update satisfies.
	Progress func(current, total uint64)
}

// Extract walks r's directory entries (directories before files, per
// reader.Reader.DirectoryEntries) and recreates them under outDir on
// fsys: a directory entry becomes a created directory; a file entry is
// read from r at its start sector and written byte-for-byte. Every path
// component is checked with SafeName before anything is created.
func Extract(fsys afero.Fs, outDir string, r *reader.Reader, opts Options) error {
	entries, err := r.DirectoryEntries()
	if err != nil {
		return err
	}

	if err := fsys.MkdirAll(outDir, 0o755); err != nil {
		return xgderr.New(xgderr.DirectoryCreate, "extractor.Extract", outDir, err)
	}

	var total uint64
	for _, e := range entries {
		if !e.IsDirectory {
			total += uint64(e.FileSize)
		}
	}

	var processed uint64
	for _, e := range entries {
		entryPath := e.Path()
		if err := validatePath(entryPath); err != nil {
			return err
		}
		outPath := filepath.Join(outDir, entryPath)

		if e.IsDirectory {
			if err := fsys.MkdirAll(outPath, 0o755); err != nil {
				return xgderr.New(xgderr.DirectoryCreate, "extractor.Extract", outPath, err)
			}
			continue
		}

		if err := extractFile(fsys, outPath, r, e, &processed, total, opts.Progress); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(fsys afero.Fs, outPath string, r *reader.Reader, e xiso.DirEntry, processed *uint64, total uint64, progress func(uint64, uint64)) error {
	if dir := filepath.Dir(outPath); dir != "." {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return xgderr.New(xgderr.DirectoryCreate, "extractor.extractFile", dir, err)
		}
	}

	out, err := fsys.Create(outPath)
	if err != nil {
		return xgderr.New(xgderr.FileOpen, "extractor.extractFile", outPath, err)
	}
	defer func() { _ = out.Close() }()

	readPos := uint64(e.StartSector) * xiso.SectorSize
	remaining := uint64(e.FileSize)
	for remaining > 0 {
		chunk := remaining
		if chunk > copyChunkSize {
			chunk = copyChunkSize
		}

		buf, err := r.ReadBytes(readPos, int(chunk))
		if err != nil {
			return xgderr.New(xgderr.FileRead, "extractor.extractFile", e.Path(), err)
		}
		if _, err := out.Write(buf); err != nil {
			return xgderr.New(xgderr.FileWrite, "extractor.extractFile", outPath, err)
		}

		readPos += chunk
		remaining -= chunk
		*processed += chunk
		if progress != nil {
			progress(*processed, total)
		}
	}
	return nil
}
