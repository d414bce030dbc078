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
	"crypto/sha1"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/text/encoding/unicode"

	"github.com/wiredopposite/xgdtool/internal/godmap"
	"github.com/wiredopposite/xgdtool/xgderr"
	"github.com/wiredopposite/xgdtool/xgdlog"
	"github.com/wiredopposite/xgdtool/xiso"
)

const (
	// GoDPlatformOriginalXbox and GoDPlatformXbox360 select the content
	// type word stamped into the Live header.
	GoDPlatformOriginalXbox byte = 0
	GoDPlatformXbox360      byte = 1

	godContentTypeOriginalXbox uint32 = 0x5000
	godContentTypeGamesOnDemand uint32 = 0x7000

	godShtPerMht = godmap.SubHashtablesPerPart

	godLiveHeaderSize          = 0x5800
	godOffContentType          = 0x344
	godOffHeaderHash           = 0x32C
	godOffMediaID              = 0x354
	godOffTitleID              = 0x360
	godOffFinalMhtHash         = 0x37D
	godOffPartCount            = 0x3A0
	godOffPartsWrittenSize     = 0x3A4
	godOffTitleNameA           = 0x412
	godOffTitleNameB           = 0x1692
	godOffTitleIconSizeA       = 0x1712
	godOffTitleIconSizeB       = 0x1716
	godOffTitleIconA           = 0x171A
	godOffTitleIconB           = 0x571A
	godTitleNameMaxBytes       = 80
)

// GoDMetadata carries the title metadata write_live_header stamps into the
// Live header file: the pieces a GoD container needs beyond the XISO
// payload itself. Package cert derives most of these from a title's
// executable certificate (see Cert.GoDMetadata); TitleName and TitleIcon
// still come from the caller since neither is on the executable.
type GoDMetadata struct {
	UniqueName     string // directory/file name, e.g. a title's unique identifying string
	MediaID        uint32
	TitleID        uint32
	Platform       byte
	ExecutableType byte
	DiscNumber     byte
	DiscCount      byte
	TitleName      string
	TitleIcon      []byte
}

func (m GoDMetadata) contentType() uint32 {
	if m.Platform == GoDPlatformXbox360 {
		return godContentTypeGamesOnDemand
	}
	return godContentTypeOriginalXbox
}

// WriteGoD serializes tree as a GoD ("Games on Demand") container: a
// directory of block-interleaved, SHA-1-hash-tree-wrapped data part files,
// plus a Live header file carrying the title metadata. outRootDir is the
// directory the platform-named subdirectory (and, inside it, the
// "<UniqueName>.data" part directory and the Live header file) are
// created under.
func WriteGoD(outRootDir string, tree *xiso.Node, rootSize, totalImageSize uint64, fileTime time.Time, src Source, meta GoDMetadata) ([]string, error) {
	plan, err := BuildPlan(tree, rootSize, totalImageSize, fileTime)
	if err != nil {
		return nil, xgderr.New(xgderr.Miscellaneous, "writer.WriteGoD", outRootDir, err)
	}

	platformDir := fmt.Sprintf("%08X", meta.contentType())
	dataDir := filepath.Join(outRootDir, platformDir, meta.UniqueName+".data")
	liveHeaderPath := filepath.Join(outRootDir, platformDir, meta.UniqueName)

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, xgderr.New(xgderr.DirectoryCreate, "writer.WriteGoD", dataDir, err)
	}

	totalSectors := plan.TotalSectors()
	totalDataBlocks := godmap.BlockCount(totalSectors * xiso.SectorSize)
	partCount := godmap.PartCount(totalDataBlocks)
	if partCount == 0 {
		partCount = 1
	}

	partPaths := make([]string, partCount)
	partFiles := make([]*os.File, partCount)
	for i := range partPaths {
		partPaths[i] = filepath.Join(dataDir, fmt.Sprintf("Data%04d", i))
		f, err := os.Create(partPaths[i])
		if err != nil {
			closeAll(partFiles)
			return nil, xgderr.New(xgderr.FileOpen, "writer.WriteGoD", partPaths[i], err)
		}
		partFiles[i] = f
	}
	defer closeAll(partFiles)

	progress := xgdlog.NewProgress("Writing GoD data")
	writeErr := plan.WriteSectors(src, func(sector uint32, data *[xiso.SectorSize]byte) error {
		loc := godmap.SectorLocation(sector)
		if loc.Part >= len(partFiles) {
			return fmt.Errorf("sector %d maps to part %d, only %d allocated", sector, loc.Part, len(partFiles))
		}
		_, err := partFiles[loc.Part].WriteAt(data[:], loc.Offset)
		return err
	}, progress.Update)
	if writeErr != nil {
		return nil, xgderr.New(xgderr.FileWrite, "writer.WriteGoD", outRootDir, writeErr)
	}
	for i, f := range partFiles {
		if err := f.Close(); err != nil {
			return nil, xgderr.New(xgderr.FileWrite, "writer.WriteGoD", partPaths[i], err)
		}
	}
	partFiles = nil

	if err := writeGoDHashtables(partPaths); err != nil {
		return nil, xgderr.New(xgderr.FileWrite, "writer.WriteGoD", dataDir, err)
	}
	finalMhtHash, err := finalizeGoDHashtables(partPaths)
	if err != nil {
		return nil, xgderr.New(xgderr.FileWrite, "writer.WriteGoD", dataDir, err)
	}
	if err := writeGoDLiveHeader(liveHeaderPath, partPaths, meta, finalMhtHash); err != nil {
		return nil, xgderr.New(xgderr.FileWrite, "writer.WriteGoD", liveHeaderPath, err)
	}

	return append([]string{liveHeaderPath}, partPaths...), nil
}

func closeAll(files []*os.File) {
	for _, f := range files {
		if f != nil {
			_ = f.Close()
		}
	}
}

// writeGoDHashtables computes, for every part file, the per-sub-hashtable
// SHA-1 digests of its 204-block data groups and the part's own master
// hashtable (the SHA-1 of each, now zero-padded, sub-hashtable block),
// writing both back into the gaps BuildPlan's sector layout already left
// for them.
func writeGoDHashtables(partPaths []string) error {
	for _, path := range partPaths {
		if err := writeOnePartHashtable(path); err != nil {
			return fmt.Errorf("hashtable for %s: %w", path, err)
		}
	}
	return nil
}

func writeOnePartHashtable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	blocksLeft := int64(godmap.BlockCount(uint64(info.Size())))
	if blocksLeft == 0 {
		return nil
	}

	subHashtables := (blocksLeft - 1) / (godmap.BlocksPerHashtable + 1)
	if (blocksLeft-1)%(godmap.BlocksPerHashtable+1) != 0 {
		subHashtables++
	}
	blocksLeft--

	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	masterHashtable := make([]byte, 0, subHashtables*godmap.ShaDigestLength)
	pos := int64(godmap.BlockSize)

	for i := int64(0); i < subHashtables; i++ {
		pos += godmap.BlockSize
		blocksLeft--

		var subHashtable []byte
		blocksInSht := int64(0)
		for blocksInSht < godmap.BlocksPerHashtable && blocksLeft > 0 {
			block := make([]byte, godmap.BlockSize)
			if _, err := f.ReadAt(block, pos); err != nil && err != io.EOF {
				return err
			}
			digest := sha1.Sum(block)
			subHashtable = append(subHashtable, digest[:]...)
			blocksInSht++
			blocksLeft--
			pos += godmap.BlockSize
		}

		subTableOffset := i*(godmap.BlocksPerHashtable+1)*godmap.BlockSize + godmap.BlockSize
		if _, err := f.WriteAt(subHashtable, subTableOffset); err != nil {
			return err
		}

		shtBlock := make([]byte, godmap.BlockSize)
		copy(shtBlock, subHashtable)
		shtDigest := sha1.Sum(shtBlock)
		masterHashtable = append(masterHashtable, shtDigest[:]...)

		if blocksLeft == 0 {
			break
		}
	}

	_, err = f.WriteAt(masterHashtable, 0)
	return err
}

// finalizeGoDHashtables hashes each part's master hashtable block and
// writes that hash into the slot reserved for it at the end of the
// previous part's master hashtable, chaining every part together. It
// returns the hash of the first part's (now fully chained) master
// hashtable block, the value the Live header records as final_mht_hash.
func finalizeGoDHashtables(partPaths []string) ([]byte, error) {
	if len(partPaths) == 1 {
		block, err := readBlock(partPaths[0], 0)
		if err != nil {
			return nil, err
		}
		digest := sha1.Sum(block)
		return digest[:], nil
	}

	var finalHash []byte
	for i := len(partPaths) - 1; i > 0; i-- {
		curBlock, err := readBlock(partPaths[i], 0)
		if err != nil {
			return nil, err
		}
		curDigest := sha1.Sum(curBlock)

		prev, err := os.OpenFile(partPaths[i-1], os.O_RDWR, 0o644)
		if err != nil {
			return nil, err
		}
		_, werr := prev.WriteAt(curDigest[:], int64(godmap.ShaDigestLength)*godShtPerMht)
		if werr != nil {
			_ = prev.Close()
			return nil, werr
		}

		if i == 1 {
			lastBlock := make([]byte, godmap.BlockSize)
			if _, err := prev.ReadAt(lastBlock, 0); err != nil && err != io.EOF {
				_ = prev.Close()
				return nil, err
			}
			digest := sha1.Sum(lastBlock)
			finalHash = digest[:]
		}
		if err := prev.Close(); err != nil {
			return nil, err
		}
	}
	return finalHash, nil
}

func readBlock(path string, offset int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	block := make([]byte, godmap.BlockSize)
	if _, err := f.ReadAt(block, offset); err != nil && err != io.EOF {
		return nil, err
	}
	return block, nil
}

// writeGoDLiveHeader builds and writes the Live header file: a mostly-zero
// template (the real asset's opaque non-metadata bytes aren't reproduced
// here, see DESIGN.md) patched with the title metadata, final_mht_hash,
// part accounting, and a closing SHA-1 over the tail of the file.
func writeGoDLiveHeader(path string, partPaths []string, meta GoDMetadata, finalMhtHash []byte) error {
	size := godLiveHeaderSize
	if need := godOffTitleIconB + len(meta.TitleIcon); need > size {
		size = need
	}
	buf := make([]byte, size)
	copy(buf[0:4], []byte("LIVE"))

	putBE32(buf[godOffMediaID:], meta.MediaID)

	putBE32(buf[godOffTitleID:], meta.TitleID)
	buf[godOffTitleID+4] = meta.Platform
	buf[godOffTitleID+5] = meta.ExecutableType
	buf[godOffTitleID+6] = meta.DiscNumber
	buf[godOffTitleID+7] = meta.DiscCount

	var partsTotalSize uint64
	for _, p := range partPaths {
		info, err := os.Stat(p)
		if err != nil {
			return err
		}
		partsTotalSize += uint64(info.Size())
	}
	partsWrittenSize := uint32(partsTotalSize / 0x100)

	putBE32(buf[godOffContentType:], meta.contentType())
	if len(finalMhtHash) == godmap.ShaDigestLength {
		copy(buf[godOffFinalMhtHash:], finalMhtHash)
	}
	putLE32(buf[godOffPartCount:], uint32(len(partPaths)))
	putBE32(buf[godOffPartsWrittenSize:], partsWrittenSize)

	nameUTF16, err := encodeUTF16BE(meta.TitleName)
	if err != nil {
		return err
	}
	if len(nameUTF16) > godTitleNameMaxBytes {
		nameUTF16 = nameUTF16[:godTitleNameMaxBytes]
	}
	copy(buf[godOffTitleNameA:], nameUTF16)
	copy(buf[godOffTitleNameB:], nameUTF16)

	iconSize := uint32(len(meta.TitleIcon))
	if iconSize == 0 {
		iconSize = 20
	}
	putBE32(buf[godOffTitleIconSizeA:], iconSize)
	putBE32(buf[godOffTitleIconSizeB:], iconSize)
	if len(meta.TitleIcon) > 0 {
		copy(buf[godOffTitleIconA:], meta.TitleIcon)
		copy(buf[godOffTitleIconB:], meta.TitleIcon)
	}

	headerHash := sha1.Sum(buf[godOffContentType:])
	copy(buf[godOffHeaderHash:], headerHash[:])

	return os.WriteFile(path, buf, 0o644)
}

// encodeUTF16BE matches the Xbox 360 dashboard's big-endian UTF-16 title
// name encoding.
func encodeUTF16BE(s string) ([]byte, error) {
	enc := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewEncoder()
	return enc.Bytes([]byte(s))
}

func putBE32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}
