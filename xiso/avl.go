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
	"github.com/wiredopposite/xgdtool/xgderr"
)

// Tree is one directory's AVL tree of entries, keyed by CompareNames.
type Tree struct {
	Root *Node
}

// Insert adds n to the tree, rebalancing as needed. A name collision with
// an existing entry is reported as xgderr.AVLDuplicate.
func (t *Tree) Insert(n *Node) error {
	root, _, err := insert(t.Root, n)
	if err != nil {
		return err
	}
	t.Root = root
	return nil
}

func insert(root, n *Node) (*Node, bool, error) {
	if root == nil {
		return n, true, nil
	}

	cmp := CompareNames(n.filename, root.filename)
	switch {
	case cmp == 0:
		return root, false, xgderr.New(xgderr.AVLDuplicate, "xiso.Tree.Insert", n.filename, nil)

	case cmp < 0:
		child, grew, err := insert(root.Left, n)
		if err != nil {
			return root, false, err
		}
		root.Left = child
		if !grew {
			return root, false, nil
		}
		switch root.Skew {
		case SkewRight:
			root.Skew = SkewNone
			return root, false, nil
		case SkewNone:
			root.Skew = SkewLeft
			return root, true, nil
		default: // SkewLeft
			return rebalanceLeft(root), false, nil
		}

	default: // cmp > 0
		child, grew, err := insert(root.Right, n)
		if err != nil {
			return root, false, err
		}
		root.Right = child
		if !grew {
			return root, false, nil
		}
		switch root.Skew {
		case SkewLeft:
			root.Skew = SkewNone
			return root, false, nil
		case SkewNone:
			root.Skew = SkewRight
			return root, true, nil
		default: // SkewRight
			return rebalanceRight(root), false, nil
		}
	}
}

// rebalanceLeft restores balance at root, whose left subtree grew one
// level taller while root.Skew was already SkewLeft.
func rebalanceLeft(root *Node) *Node {
	left := root.Left
	if left.Skew == SkewLeft {
		root.Left = left.Right
		left.Right = root
		root.Skew = SkewNone
		left.Skew = SkewNone
		return left
	}

	// Double rotation: left is skewed right.
	sub := left.Right
	left.Right = sub.Left
	sub.Left = left
	root.Left = sub.Right
	sub.Right = root

	switch sub.Skew {
	case SkewLeft:
		root.Skew = SkewRight
		left.Skew = SkewNone
	case SkewRight:
		root.Skew = SkewNone
		left.Skew = SkewLeft
	default:
		root.Skew = SkewNone
		left.Skew = SkewNone
	}
	sub.Skew = SkewNone
	return sub
}

// rebalanceRight is the mirror image of rebalanceLeft.
func rebalanceRight(root *Node) *Node {
	right := root.Right
	if right.Skew == SkewRight {
		root.Right = right.Left
		right.Left = root
		root.Skew = SkewNone
		right.Skew = SkewNone
		return right
	}

	sub := right.Left
	right.Left = sub.Right
	sub.Right = right
	root.Right = sub.Left
	sub.Left = root

	switch sub.Skew {
	case SkewRight:
		root.Skew = SkewLeft
		right.Skew = SkewNone
	case SkewLeft:
		root.Skew = SkewNone
		right.Skew = SkewRight
	default:
		root.Skew = SkewNone
		right.Skew = SkewNone
	}
	sub.Skew = SkewNone
	return sub
}

// Height returns the tree height rooted at n (0 for nil), used by tests
// to verify the AVL balance invariant against the Skew bookkeeping.
func Height(n *Node) int {
	if n == nil {
		return 0
	}
	lh, rh := Height(n.Left), Height(n.Right)
	if lh > rh {
		return lh + 1
	}
	return rh + 1
}

// PreOrder calls visit for every node in the tree rooted at n, in AVL
// pre-order: the node itself, then its left subtree, then its right.
func PreOrder(n *Node, visit func(*Node)) {
	if n == nil {
		return
	}
	visit(n)
	PreOrder(n.Left, visit)
	PreOrder(n.Right, visit)
}
