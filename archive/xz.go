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

//nolint:dupl // Archive implementations are intentionally similar but use different types
package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"
)

// XZArchive provides access to files in an xz-compressed tar archive.
// The decompressed stream is always read as tar; a bare .xz file that
// does not wrap a tar archive is not exposed as a member.
type XZArchive struct {
	path string
}

// OpenXZ opens an xz archive for reading. The archive is re-opened and
// re-decompressed for every List/Open call since xz streams are forward-only.
func OpenXZ(path string) (*XZArchive, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat xz archive: %w", err)
	}
	return &XZArchive{path: path}, nil
}

func (xa *XZArchive) newTarReader() (*os.File, *tar.Reader, error) {
	f, err := os.Open(xa.path) //nolint:gosec // User-provided path is expected
	if err != nil {
		return nil, nil, fmt.Errorf("open xz archive: %w", err)
	}

	xr, err := xz.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("create xz reader: %w", err)
	}

	return f, tar.NewReader(xr), nil
}

// List returns all files in the xz-wrapped tar archive.
func (xa *XZArchive) List() ([]FileInfo, error) {
	f, tr, err := xa.newTarReader()
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var files []FileInfo //nolint:prealloc // tar member count unknown until full scan
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read tar header: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		files = append(files, FileInfo{Name: hdr.Name, Size: hdr.Size})
	}
	return files, nil
}

// Open opens a file within the xz-wrapped tar archive.
func (xa *XZArchive) Open(internalPath string) (io.ReadCloser, int64, error) {
	internalPath = filepath.ToSlash(internalPath)

	f, tr, err := xa.newTarReader()
	if err != nil {
		return nil, 0, err
	}

	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			_ = f.Close()
			return nil, 0, fmt.Errorf("read tar header: %w", err)
		}
		if strings.EqualFold(hdr.Name, internalPath) {
			return &xzFileReader{file: f, tar: tr}, hdr.Size, nil
		}
	}

	_ = f.Close()
	return nil, 0, FileNotFoundError{Archive: xa.path, InternalPath: internalPath}
}

// OpenReaderAt opens a file and returns an io.ReaderAt interface.
// The file contents are buffered in memory.
//
//nolint:revive // 4 return values is necessary for this interface pattern
func (xa *XZArchive) OpenReaderAt(internalPath string) (io.ReaderAt, int64, io.Closer, error) {
	return bufferFile(xa, internalPath)
}

// Close is a no-op: each List/Open opens and closes its own file handle.
func (xa *XZArchive) Close() error {
	return nil
}

// xzFileReader wraps a tar.Reader positioned at a member, holding the
// underlying decompressed file handle open until Close.
type xzFileReader struct {
	file *os.File
	tar  *tar.Reader
}

func (r *xzFileReader) Read(p []byte) (int, error) {
	return r.tar.Read(p) //nolint:wrapcheck // Read error passthrough is intentional
}

func (r *xzFileReader) Close() error {
	return r.file.Close() //nolint:wrapcheck // Close error passthrough is intentional
}
