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

// Package cert locates a title's default executable (XBE or XEX),
// extracts its certificate, and derives the stable identifiers
// (unique_name, GoD metadata) the rest of the pipeline titles its
// output with.
package cert

import (
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/afero"

	"github.com/wiredopposite/xgdtool/reader"
	"github.com/wiredopposite/xgdtool/xgderr"
	"github.com/wiredopposite/xgdtool/xiso"
	"github.com/wiredopposite/xgdtool/writer"
)

// Platform identifies which console a located executable targets.
type Platform int

const (
	PlatformUnknown Platform = iota
	PlatformOGX
	PlatformX360
)

func (p Platform) String() string {
	switch p {
	case PlatformOGX:
		return "ogx"
	case PlatformX360:
		return "x360"
	default:
		return "unknown"
	}
}

const (
	xbeHeaderSize     = 0x178
	xbeCertSize       = 0x1D0
	xbeOffBaseAddr    = 0x104
	xbeOffCertAddr    = 0x118
	xbeCertOffTitleID = 0x008
	xbeCertOffRegion  = 0x0A0
	xbeCertOffVersion = 0x0AC

	xexHeaderSize        = 0x18
	xexOffHeaderCount    = 0x14
	xexDirEntrySize      = 8
	xexExecutionInfoKey  = 0x00040006
	xexExecutionInfoSize = 24
	xexInfoOffMediaID    = 0
	xexInfoOffTitleID    = 12
	xexInfoOffExecType   = 17
	xexInfoOffDiscNumber = 18
	xexInfoOffDiscCount  = 19
)

// Cert is the normalized certificate pulled from a title's default
// executable: enough to identify the title and, for Xbox 360 output,
// populate a GoD Live header.
type Cert struct {
	Platform Platform

	TitleID        uint32
	MediaID        uint32
	ExecutableType byte
	DiscNumber     byte
	DiscCount      byte

	// RegionCode and CertVersion are populated for an XBE cert only;
	// a XEX's ExecutionInfo carries neither.
	RegionCode  uint32
	CertVersion uint32
}

// UniqueName produces xgdtool's stable title identifier: SHA-1 of
// title_id, media_id, disc_number and disc_count (all little-endian in
// the hash input), truncated to its first 10 bytes and hex-encoded
// uppercase.
func (c Cert) UniqueName() string {
	var buf [10]byte
	binary.LittleEndian.PutUint32(buf[0:4], c.TitleID)
	binary.LittleEndian.PutUint32(buf[4:8], c.MediaID)
	buf[8] = c.DiscNumber
	buf[9] = c.DiscCount

	sum := sha1.Sum(buf[:])
	return strings.ToUpper(fmt.Sprintf("%x", sum[:10]))
}

// GoDMetadata adapts c into a writer.GoDMetadata ready for
// writer.WriteGoD, filling every field writer cannot derive from the
// image itself (title name, icon) from the caller.
func (c Cert) GoDMetadata(titleName string, titleIcon []byte) writer.GoDMetadata {
	platform := writer.GoDPlatformOriginalXbox
	if c.Platform == PlatformX360 {
		platform = writer.GoDPlatformXbox360
	}
	return writer.GoDMetadata{
		UniqueName:     c.UniqueName(),
		MediaID:        c.MediaID,
		TitleID:        c.TitleID,
		Platform:       platform,
		ExecutableType: c.ExecutableType,
		DiscNumber:     c.DiscNumber,
		DiscCount:      c.DiscCount,
		TitleName:      titleName,
		TitleIcon:      titleIcon,
	}
}

var parenQualifier = regexp.MustCompile(`\([^)]*\)`)
var repeatedSpace = regexp.MustCompile(`\s{2,}`)

// CleanTitleName strips parenthesised qualifiers (region tags, revision
// markers) and collapses runs of whitespace, the normalization applied
// before a title is used to derive an output file or folder name.
func CleanTitleName(name string) string {
	cleaned := parenQualifier.ReplaceAllString(name, "")
	cleaned = repeatedSpace.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}

// byteSource is the minimal read contract cert needs to pull executable
// bytes out of either an open container or a host file; *reader.Reader
// and fileByteSource both satisfy it.
type byteSource interface {
	ReadBytes(offset uint64, n int) ([]byte, error)
}

// Locate finds r's default executable (ExecutableEntry) and reads its
// certificate.
func Locate(r *reader.Reader) (Cert, error) {
	entry, ok, err := r.ExecutableEntry()
	if err != nil {
		return Cert{}, err
	}
	if !ok {
		return Cert{}, xgderr.New(xgderr.MissingFile, "cert.Locate", "", fmt.Errorf("no default.xbe or default.xex found"))
	}

	offset := uint64(entry.StartSector) * xiso.SectorSize
	if strings.HasSuffix(strings.ToLower(entry.Name), ".xex") {
		return fromXEX(r, offset)
	}
	return fromXBE(r, offset)
}

// LocateInDir finds dir's default.xbe/default.xex directly on a host
// filesystem and reads its certificate, for titling a tree that has
// already been extracted (as opposed to reading out of a container).
func LocateInDir(fsys afero.Fs, dir string) (Cert, error) {
	entries, err := afero.ReadDir(fsys, dir)
	if err != nil {
		return Cert{}, xgderr.New(xgderr.FileOpen, "cert.LocateInDir", dir, err)
	}

	var name string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		lower := strings.ToLower(e.Name())
		if lower == "default.xex" || lower == "default.xbe" {
			name = e.Name()
			break
		}
	}
	if name == "" {
		return Cert{}, xgderr.New(xgderr.MissingFile, "cert.LocateInDir", dir, fmt.Errorf("no default.xbe or default.xex found"))
	}

	path := filepath.Join(dir, name)
	f, err := fsys.Open(path)
	if err != nil {
		return Cert{}, xgderr.New(xgderr.FileOpen, "cert.LocateInDir", path, err)
	}
	defer func() { _ = f.Close() }()

	src := fileByteSource{f}
	if strings.HasSuffix(strings.ToLower(name), ".xex") {
		return fromXEX(src, 0)
	}
	return fromXBE(src, 0)
}

// fileByteSource adapts an io.ReaderAt (an afero.File opened directly on
// the host filesystem) to byteSource.
type fileByteSource struct{ r io.ReaderAt }

func (s fileByteSource) ReadBytes(offset uint64, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := s.r.ReadAt(buf, int64(offset)); err != nil {
		return nil, err
	}
	return buf, nil
}

// fromXBE validates the XBEH magic, locates the certificate via
// cert_address - base_address, and extracts title_id, region_code and
// cert_version. An XBE carries no media_id or disc fields on the
// executable itself, so disc_number/disc_count default to 1/1 (a
// single-disc original Xbox title) the same way the reference tool
// synthesizes a placeholder XEX cert for OGX output.
func fromXBE(src byteSource, offset uint64) (Cert, error) {
	header, err := src.ReadBytes(offset, xbeHeaderSize)
	if err != nil {
		return Cert{}, xgderr.New(xgderr.FileRead, "cert.fromXBE", "", err)
	}
	if string(header[0:4]) != "XBEH" {
		return Cert{}, xgderr.New(xgderr.InvalidXBE, "cert.fromXBE", "", fmt.Errorf("bad magic %q", header[0:4]))
	}

	baseAddr := binary.LittleEndian.Uint32(header[xbeOffBaseAddr:])
	certAddr := binary.LittleEndian.Uint32(header[xbeOffCertAddr:])
	certOffset := uint64(certAddr - baseAddr)

	certBuf, err := src.ReadBytes(offset+certOffset, xbeCertSize)
	if err != nil {
		return Cert{}, xgderr.New(xgderr.FileRead, "cert.fromXBE", "", err)
	}

	return Cert{
		Platform:       PlatformOGX,
		TitleID:        binary.LittleEndian.Uint32(certBuf[xbeCertOffTitleID:]),
		MediaID:        0,
		ExecutableType: 0,
		DiscNumber:     1,
		DiscCount:      1,
		RegionCode:     binary.LittleEndian.Uint32(certBuf[xbeCertOffRegion:]),
		CertVersion:    binary.LittleEndian.Uint32(certBuf[xbeCertOffVersion:]),
	}, nil
}

// fromXEX validates the XEX2 magic, scans the optional-header directory
// for the ExecutionInfo key (0x00040006), and decodes its 24 bytes.
// Every field is big-endian on disc.
func fromXEX(src byteSource, offset uint64) (Cert, error) {
	header, err := src.ReadBytes(offset, xexHeaderSize)
	if err != nil {
		return Cert{}, xgderr.New(xgderr.FileRead, "cert.fromXEX", "", err)
	}
	if string(header[0:4]) != "XEX2" {
		return Cert{}, xgderr.New(xgderr.InvalidXEX, "cert.fromXEX", "", fmt.Errorf("bad magic %q", header[0:4]))
	}
	headerCount := binary.BigEndian.Uint32(header[xexOffHeaderCount:])

	for i := uint32(0); i < headerCount; i++ {
		entryOff := offset + xexHeaderSize + uint64(i)*xexDirEntrySize
		entry, err := src.ReadBytes(entryOff, xexDirEntrySize)
		if err != nil {
			return Cert{}, xgderr.New(xgderr.FileRead, "cert.fromXEX", "", err)
		}
		key := binary.BigEndian.Uint32(entry[0:4])
		if key != xexExecutionInfoKey {
			continue
		}
		value := binary.BigEndian.Uint32(entry[4:8])

		info, err := src.ReadBytes(offset+uint64(value), xexExecutionInfoSize)
		if err != nil {
			return Cert{}, xgderr.New(xgderr.FileRead, "cert.fromXEX", "", err)
		}
		return Cert{
			Platform:       PlatformX360,
			MediaID:        binary.BigEndian.Uint32(info[xexInfoOffMediaID:]),
			TitleID:        binary.BigEndian.Uint32(info[xexInfoOffTitleID:]),
			ExecutableType: info[xexInfoOffExecType],
			DiscNumber:     info[xexInfoOffDiscNumber],
			DiscCount:      info[xexInfoOffDiscCount],
		}, nil
	}

	return Cert{}, xgderr.New(xgderr.InvalidXEX, "cert.fromXEX", "", fmt.Errorf("execution info directory entry not found"))
}
