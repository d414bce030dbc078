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

package cert

import (
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/spf13/afero"
)

type memSource []byte

func (m memSource) ReadBytes(offset uint64, n int) ([]byte, error) {
	if offset+uint64(n) > uint64(len(m)) {
		return nil, fmt.Errorf("out of range: offset %d len %d size %d", offset, n, len(m))
	}
	return m[offset : offset+uint64(n)], nil
}

func buildXBE(titleID, region, version uint32) []byte {
	const baseAddr = 0x10000
	const certOffset = xbeHeaderSize
	buf := make([]byte, certOffset+xbeCertSize)

	copy(buf[0:4], "XBEH")
	binary.LittleEndian.PutUint32(buf[xbeOffBaseAddr:], baseAddr)
	binary.LittleEndian.PutUint32(buf[xbeOffCertAddr:], baseAddr+certOffset)

	cert := buf[certOffset:]
	binary.LittleEndian.PutUint32(cert[xbeCertOffTitleID:], titleID)
	binary.LittleEndian.PutUint32(cert[xbeCertOffRegion:], region)
	binary.LittleEndian.PutUint32(cert[xbeCertOffVersion:], version)
	return buf
}

func buildXEX(mediaID, titleID uint32, execType, discNum, discCount byte) []byte {
	const infoOffset = xexHeaderSize + xexDirEntrySize
	buf := make([]byte, infoOffset+xexExecutionInfoSize)

	copy(buf[0:4], "XEX2")
	binary.BigEndian.PutUint32(buf[xexOffHeaderCount:], 1)
	binary.BigEndian.PutUint32(buf[xexHeaderSize:], xexExecutionInfoKey)
	binary.BigEndian.PutUint32(buf[xexHeaderSize+4:], infoOffset)

	info := buf[infoOffset:]
	binary.BigEndian.PutUint32(info[xexInfoOffMediaID:], mediaID)
	binary.BigEndian.PutUint32(info[xexInfoOffTitleID:], titleID)
	info[xexInfoOffExecType] = execType
	info[xexInfoOffDiscNumber] = discNum
	info[xexInfoOffDiscCount] = discCount
	return buf
}

func TestFromXBE(t *testing.T) {
	t.Parallel()

	c, err := fromXBE(memSource(buildXBE(0x4D5A0001, 0x00000001, 0x00000002)), 0)
	if err != nil {
		t.Fatalf("fromXBE: %v", err)
	}
	if c.Platform != PlatformOGX {
		t.Errorf("Platform = %v, want OGX", c.Platform)
	}
	if c.TitleID != 0x4D5A0001 {
		t.Errorf("TitleID = %#x, want 0x4D5A0001", c.TitleID)
	}
	if c.RegionCode != 1 || c.CertVersion != 2 {
		t.Errorf("RegionCode/CertVersion = %d/%d, want 1/2", c.RegionCode, c.CertVersion)
	}
	if c.DiscNumber != 1 || c.DiscCount != 1 {
		t.Errorf("DiscNumber/DiscCount = %d/%d, want 1/1", c.DiscNumber, c.DiscCount)
	}
}

func TestFromXBE_BadMagic(t *testing.T) {
	t.Parallel()

	buf := buildXBE(1, 1, 1)
	buf[0] = 'X'
	buf[1] = 'X'
	if _, err := fromXBE(memSource(buf), 0); err == nil {
		t.Fatal("expected an error for bad XBEH magic")
	}
}

func TestFromXEX(t *testing.T) {
	t.Parallel()

	c, err := fromXEX(memSource(buildXEX(0x11223344, 0x5A4D0001, 1, 2, 3)), 0)
	if err != nil {
		t.Fatalf("fromXEX: %v", err)
	}
	if c.Platform != PlatformX360 {
		t.Errorf("Platform = %v, want X360", c.Platform)
	}
	if c.MediaID != 0x11223344 {
		t.Errorf("MediaID = %#x, want 0x11223344", c.MediaID)
	}
	if c.TitleID != 0x5A4D0001 {
		t.Errorf("TitleID = %#x, want 0x5A4D0001", c.TitleID)
	}
	if c.ExecutableType != 1 || c.DiscNumber != 2 || c.DiscCount != 3 {
		t.Errorf("ExecutableType/DiscNumber/DiscCount = %d/%d/%d, want 1/2/3",
			c.ExecutableType, c.DiscNumber, c.DiscCount)
	}
}

func TestFromXEX_MissingExecutionInfo(t *testing.T) {
	t.Parallel()

	buf := buildXEX(1, 1, 1, 1, 1)
	binary.BigEndian.PutUint32(buf[xexHeaderSize:], 0xDEADBEEF) // different key
	if _, err := fromXEX(memSource(buf), 0); err == nil {
		t.Fatal("expected an error when ExecutionInfo key is absent")
	}
}

func TestCert_UniqueName(t *testing.T) {
	t.Parallel()

	a := Cert{TitleID: 0x4D5A0001, MediaID: 0x11223344, DiscNumber: 1, DiscCount: 1}
	b := Cert{TitleID: 0x4D5A0001, MediaID: 0x11223344, DiscNumber: 1, DiscCount: 1}
	c := Cert{TitleID: 0x4D5A0002, MediaID: 0x11223344, DiscNumber: 1, DiscCount: 1}

	if a.UniqueName() != b.UniqueName() {
		t.Error("identical certs produced different unique names")
	}
	if a.UniqueName() == c.UniqueName() {
		t.Error("different title IDs produced the same unique name")
	}
	if len(a.UniqueName()) != 20 {
		t.Errorf("UniqueName() length = %d, want 20", len(a.UniqueName()))
	}
	for _, r := range a.UniqueName() {
		if r >= 'a' && r <= 'z' {
			t.Fatalf("UniqueName() = %q contains a lowercase character", a.UniqueName())
		}
	}
}

func TestCert_GoDMetadata(t *testing.T) {
	t.Parallel()

	c := Cert{
		Platform:       PlatformX360,
		TitleID:        0x5A4D0001,
		MediaID:        0x11223344,
		ExecutableType: 1,
		DiscNumber:     1,
		DiscCount:      2,
	}
	meta := c.GoDMetadata("Test Game", nil)
	if meta.UniqueName != c.UniqueName() {
		t.Errorf("UniqueName = %q, want %q", meta.UniqueName, c.UniqueName())
	}
	if meta.TitleID != c.TitleID || meta.MediaID != c.MediaID {
		t.Error("GoDMetadata did not carry over TitleID/MediaID")
	}
	if meta.DiscCount != 2 {
		t.Errorf("DiscCount = %d, want 2", meta.DiscCount)
	}
	if meta.TitleName != "Test Game" {
		t.Errorf("TitleName = %q, want %q", meta.TitleName, "Test Game")
	}
}

func TestLocateInDir(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	if err := fsys.MkdirAll("/game", 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	xbe := buildXBE(0x4D5A0001, 1, 2)
	if err := afero.WriteFile(fsys, "/game/default.xbe", xbe, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c, err := LocateInDir(fsys, "/game")
	if err != nil {
		t.Fatalf("LocateInDir: %v", err)
	}
	if c.TitleID != 0x4D5A0001 {
		t.Errorf("TitleID = %#x, want 0x4D5A0001", c.TitleID)
	}
	if c.Platform != PlatformOGX {
		t.Errorf("Platform = %v, want OGX", c.Platform)
	}
}

func TestLocateInDir_NoExecutable(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	if err := fsys.MkdirAll("/game", 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := afero.WriteFile(fsys, "/game/readme.txt", []byte("hi"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := LocateInDir(fsys, "/game"); err == nil {
		t.Fatal("expected an error when no default executable is present")
	}
}

func TestCleanTitleName(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want string }{
		{"Halo 2 (USA)", "Halo 2"},
		{"Crazy Taxi  3 (Europe) (En,Fr,De)", "Crazy Taxi 3"},
		{"Plain Title", "Plain Title"},
	}
	for _, tt := range tests {
		if got := CleanTitleName(tt.in); got != tt.want {
			t.Errorf("CleanTitleName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
