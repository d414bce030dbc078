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

package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIsExtractedDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if isExtractedDir(dir) {
		t.Error("empty directory should not look extracted")
	}
	if err := os.WriteFile(filepath.Join(dir, "default.xbe"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if !isExtractedDir(dir) {
		t.Error("directory with default.xbe should look extracted")
	}
}

func TestIsGoDRoot(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if isGoDRoot(dir) {
		t.Error("empty directory should not look like a GoD root")
	}

	dataDir := filepath.Join(dir, "4D5A0001.data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, "Data0000"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if !isGoDRoot(dir) {
		t.Error("directory with a *.data/Data0000 part should look like a GoD root")
	}
}

func TestExpandInputs_BatchDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{"a.iso", "b.cci", "c.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("WriteFile(%s): %v", name, err)
		}
	}

	jobs, err := expandInputs(dir)
	if err != nil {
		t.Fatalf("expandInputs: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expandInputs() = %v, want 2 convertible jobs (a.iso, b.cci)", jobs)
	}
}

func TestExpandInputs_SingleFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "game.iso")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	jobs, err := expandInputs(path)
	if err != nil {
		t.Fatalf("expandInputs: %v", err)
	}
	if len(jobs) != 1 || jobs[0] != path {
		t.Fatalf("expandInputs(%s) = %v, want [%s]", path, jobs, path)
	}
}

func TestExpandInputs_ExtractedDirNotBatched(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "default.xbe"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	jobs, err := expandInputs(dir)
	if err != nil {
		t.Fatalf("expandInputs: %v", err)
	}
	if len(jobs) != 1 || jobs[0] != dir {
		t.Fatalf("expandInputs(%s) = %v, want the directory itself as a single job", dir, jobs)
	}
}
