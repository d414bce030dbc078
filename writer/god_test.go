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
	"os"
	"path/filepath"
	"testing"

	"github.com/wiredopposite/xgdtool/reader"
	"github.com/wiredopposite/xgdtool/xiso"
)

func TestWriteGoD_RoundTrip(t *testing.T) {
	t.Parallel()

	tree, rootSize, totalSize, src, contents := buildWriterTestTree(t)
	outRoot := t.TempDir()

	meta := GoDMetadata{
		UniqueName:     "GAME12345678",
		MediaID:        0x11223344,
		TitleID:        0x4D5A0001,
		Platform:       GoDPlatformXbox360,
		ExecutableType: 1,
		DiscNumber:     1,
		DiscCount:      1,
		TitleName:      "Test Game",
		TitleIcon:      nil,
	}

	paths, err := WriteGoD(outRoot, tree, rootSize, totalSize, testFileTime(), src, meta)
	if err != nil {
		t.Fatalf("WriteGoD: %v", err)
	}
	if len(paths) < 2 {
		t.Fatalf("paths = %v, want a live header plus at least one data part", paths)
	}

	liveHeaderPath := paths[0]
	if _, err := os.Stat(liveHeaderPath); err != nil {
		t.Fatalf("stat live header: %v", err)
	}
	header, err := os.ReadFile(liveHeaderPath)
	if err != nil {
		t.Fatalf("ReadFile(live header): %v", err)
	}
	if !bytes.Equal(header[0:4], []byte("LIVE")) {
		t.Errorf("live header magic = %q, want LIVE", header[0:4])
	}

	r, err := reader.OpenGoD(outRoot)
	if err != nil {
		t.Fatalf("OpenGoD: %v", err)
	}
	defer func() { _ = r.Close() }()

	entries, err := r.DirectoryEntries()
	if err != nil {
		t.Fatalf("DirectoryEntries: %v", err)
	}
	if len(entries) != len(contents) {
		t.Fatalf("got %d entries, want %d", len(entries), len(contents))
	}
	for _, e := range entries {
		want, ok := contents[e.Name]
		if !ok {
			t.Fatalf("unexpected entry %q", e.Name)
		}
		got, err := r.ReadBytes(uint64(e.StartSector)*xiso.SectorSize, len(want))
		if err != nil {
			t.Fatalf("ReadBytes(%q): %v", e.Name, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("entry %q content mismatch", e.Name)
		}
	}

	gotTime, err := r.FileTime()
	if err != nil {
		t.Fatalf("FileTime: %v", err)
	}
	if !gotTime.Equal(testFileTime()) {
		t.Errorf("FileTime() = %v, want %v", gotTime, testFileTime())
	}
}

func TestWriteGoD_LiveHeaderPaths(t *testing.T) {
	t.Parallel()

	tree, rootSize, totalSize, src, _ := buildWriterTestTree(t)
	outRoot := t.TempDir()

	meta := GoDMetadata{UniqueName: "GAME", Platform: GoDPlatformOriginalXbox}
	paths, err := WriteGoD(outRoot, tree, rootSize, totalSize, testFileTime(), src, meta)
	if err != nil {
		t.Fatalf("WriteGoD: %v", err)
	}

	wantPlatformDir := filepath.Join(outRoot, "00005000")
	if filepath.Dir(paths[0]) != wantPlatformDir {
		t.Errorf("live header dir = %s, want %s", filepath.Dir(paths[0]), wantPlatformDir)
	}
	if filepath.Base(paths[0]) != "GAME" {
		t.Errorf("live header name = %s, want GAME", filepath.Base(paths[0]))
	}
}
