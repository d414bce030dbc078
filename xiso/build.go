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

package xiso

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"

	"github.com/wiredopposite/xgdtool/xgderr"
)

// BuildTreeFromEntries constructs a fresh per-directory AVL forest from a
// flat list of on-disc entries (as produced by WalkEntries), re-inserting
// every entry by name rather than preserving whatever shape the source
// image happened to have. Directory sizes are left at zero; callers run
// the layout engine (ComputeLayout) to compute them.
func BuildTreeFromEntries(entries []DirEntry) (*Node, error) {
	byParent := make(map[string][]DirEntry)
	for _, e := range entries {
		byParent[e.ParentPath] = append(byParent[e.ParentPath], e)
	}
	return buildChildren("", byParent)
}

func buildChildren(parentPath string, byParent map[string][]DirEntry) (*Node, error) {
	var tree Tree
	for _, e := range byParent[parentPath] {
		var node *Node
		if e.IsDirectory {
			sub, err := buildChildren(e.Path(), byParent)
			if err != nil {
				return nil, err
			}
			node = NewDirectoryNode(e.Name, e.Path(), sub)
		} else {
			node = NewFileNode(e.Name, e.Path(), uint64(e.FileSize))
		}
		node.OldStartSector = uint64(e.StartSector)

		if err := tree.Insert(node); err != nil {
			return nil, err
		}
	}
	if tree.Root == nil {
		return EmptySubdir(), nil
	}
	return tree.Root, nil
}

// BuildTreeFromFilesystem walks a host directory tree under fsys and
// builds a per-directory AVL forest from it. Paths recorded on nodes are
// absolute (as seen by fsys), and files at or above 2^32 bytes are
// rejected since the on-disc file_size field cannot hold them.
func BuildTreeFromFilesystem(fsys afero.Fs, root string) (*Node, error) {
	return buildFilesystemDir(fsys, root)
}

func buildFilesystemDir(fsys afero.Fs, dir string) (*Node, error) {
	infos, err := afero.ReadDir(fsys, dir)
	if err != nil {
		return nil, xgderr.New(xgderr.FileRead, "xiso.BuildTreeFromFilesystem", dir, err)
	}
	if len(infos) == 0 {
		return EmptySubdir(), nil
	}

	// Sort for deterministic traversal; the resulting AVL shape depends
	// on insertion order, so a fixed order keeps the layout reproducible.
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })

	var tree Tree
	for _, info := range infos {
		childPath := filepath.Join(dir, info.Name())
		var node *Node
		if info.IsDir() {
			sub, err := buildFilesystemDir(fsys, childPath)
			if err != nil {
				return nil, err
			}
			node = NewDirectoryNode(info.Name(), childPath, sub)
		} else {
			size := uint64(info.Size())
			if size > 0xFFFFFFFF {
				return nil, xgderr.New(xgderr.InvalidISO, "xiso.BuildTreeFromFilesystem",
					childPath, fmt.Errorf("file size %d exceeds the 2^32-1 byte XISO limit", size))
			}
			node = NewFileNode(info.Name(), childPath, size)
		}
		if err := tree.Insert(node); err != nil {
			return nil, err
		}
	}
	return tree.Root, nil
}

