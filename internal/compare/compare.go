// Copyright (C) 2025-2026  Nexedi SA and Contributors.
//                          Kirill Smelkov <kirr@nexedi.com>
//
// This program is free software: you can Use, Study, Modify and Redistribute
// it under the terms of the GNU General Public License version 3, or (at your
// option) any later version, as published by the Free Software Foundation.
//
// This program is distributed WITHOUT ANY WARRANTY; without even the implied
// warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
//
// See COPYING file for full licensing terms.

// Package compare classifies the changes between two snapshots.
//
// Two trees are diffed level by level: entries present only in the new tree
// are Added, present only in the old tree are Removed, present in both with
// different ids are Modified. A Modified entry that is a directory on disk
// is recursed into via the object store, and the nested changes are emitted
// BEFORE the enclosing Modified record, so leaf changes always precede their
// containers. Within a level names are processed in canonical sorted order.
//
// A Change is a plain value - it carries ids and the filesystem path the
// stager needs, and holds no references into the trees it came from.
package compare

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"lab.nexedi.com/kirr/go123/xerr"

	"github.com/logix11/OpenBRS/internal/hash256"
	"github.com/logix11/OpenBRS/internal/object"
	"github.com/logix11/OpenBRS/internal/repo"
)

// ChangeKind classifies one Change.
type ChangeKind int

const (
	Added ChangeKind = iota
	Modified
	Removed
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	}
	return fmt.Sprintf("ChangeKind(%d)", int(k))
}

// Change is one classified difference between two snapshots.
//
// NOTE zero Hash256 means "no id on this side": OldId is null for Added,
// NewId is null for Removed.
type Change struct {
	Kind  ChangeKind
	Name  string // basename of the changed entry
	Path  string // filesystem path of the entry, for the stager
	OldId hash256.Hash256
	NewId hash256.Hash256
}

func (c Change) String() string {
	return fmt.Sprintf("%s %s", c.Kind, c.Path)
}

// Trees diffs old and new, which both describe the directory dir.
//
// Referenced subtrees are fetched from the object store of l as needed; a
// missing one surfaces as *repo.NotFoundError.
func Trees(l *repo.Layout, old, new *object.Tree, dir string) (_ []Change, err error) {
	defer xerr.Contextf(&err, "diff %s", dir)

	// subtree unchanged as a whole
	if old.Id == new.Id {
		return nil, nil
	}

	changes := []Change{}
	for _, c := range levelDiff(old, new, dir) {
		// recurse into a modified directory; its changes go first so
		// that leaf changes appear before container changes
		if c.Kind == Modified && isDir(c.Path) {
			sub, err := subTrees(l, c)
			if err != nil {
				return nil, err
			}
			changes = append(changes, sub...)
		}
		changes = append(changes, c)
	}
	return changes, nil
}

// subTrees fetches both sides of modified-directory change c and diffs them.
func subTrees(l *repo.Layout, c Change) ([]Change, error) {
	// the old side may be a file blob (file replaced by a directory of
	// the same name) - then there is no subtree to recurse into and the
	// Modified record stands alone
	if !l.HasTree(c.OldId) {
		return nil, nil
	}

	oldTree, err := l.LoadTree(c.OldId)
	if err != nil {
		return nil, err
	}
	newTree, err := l.LoadTree(c.NewId)
	if err != nil {
		return nil, err
	}
	return Trees(l, oldTree, newTree, c.Path)
}

// levelDiff classifies the immediate entries of old vs new.
//
// dir is the filesystem path both trees describe; entry paths derive from it.
func levelDiff(old, new *object.Tree, dir string) []Change {
	oldm := entryMap(old)
	newm := entryMap(new)

	// names are unique per tree -> the union, sorted, gives the canonical
	// processing order with no ties
	names := hash256.StrSet{}
	for name := range oldm {
		names.Add(name)
	}
	for name := range newm {
		names.Add(name)
	}
	namev := names.Elements()
	sort.Strings(namev)

	changes := []Change{}
	for _, name := range namev {
		oldId, inOld := oldm[name]
		newId, inNew := newm[name]
		path := filepath.Join(dir, name)

		switch {
		case !inOld:
			changes = append(changes, Change{Added, name, path, hash256.Hash256{}, newId})
		case !inNew:
			changes = append(changes, Change{Removed, name, path, oldId, hash256.Hash256{}})
		case oldId != newId:
			changes = append(changes, Change{Modified, name, path, oldId, newId})
		}
	}
	return changes
}

func entryMap(t *object.Tree) map[string]hash256.Hash256 {
	m := make(map[string]hash256.Hash256, len(t.Entries))
	for _, e := range t.Entries {
		m[e.Name] = e.Id
	}
	return m
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
