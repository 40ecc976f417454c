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

// Package snapshot walks a backup target and produces its Tree objects.
//
// The walk hashes regular file bytes into blob ids and directory listings
// into tree ids; every tree node is persisted to the store eagerly, so a
// later diff can resolve any subtree by id without re-walking the
// filesystem. Symbolic links, special files, permissions and timestamps are
// not part of the content model and do not influence ids. The `.openbrs`
// workspace is skipped at any depth.
//
// Blob content is not written by the walk - archival is the stager's job.
package snapshot

import (
	"os"
	"path/filepath"

	"lab.nexedi.com/kirr/go123/xerr"

	"github.com/logix11/OpenBRS/internal/hash256"
	"github.com/logix11/OpenBRS/internal/object"
	"github.com/logix11/OpenBRS/internal/repo"
)

// Build snapshots l.Target and returns its root Tree.
//
// The root tree - and every inner tree for a directory target - is persisted
// under trees/<id>.json before return.
func Build(l *repo.Layout) (_ *object.Tree, err error) {
	defer xerr.Contextf(&err, "snapshot %s", l.Target)

	if l.TargetIsDir {
		return buildDir(l, l.Target)
	}
	return buildFile(l, l.Target)
}

// buildDir snapshots the directory dir, recursing into subdirectories.
func buildDir(l *repo.Layout, dir string) (*object.Tree, error) {
	// the listing is fully drained here; no directory handle stays open
	// while we recurse or hash below
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	refs := []object.EntryRef{}
	for _, e := range entries {
		if e.Name() == repo.WorkDir {
			continue
		}

		p := filepath.Join(dir, e.Name())

		switch {
		case e.IsDir():
			subtree, err := buildDir(l, p)
			if err != nil {
				return nil, err
			}
			refs = append(refs, object.EntryRef{Name: e.Name(), Id: subtree.Id})

		case e.Type().IsRegular():
			blobId, err := hashFile(p)
			if err != nil {
				return nil, err
			}
			refs = append(refs, object.EntryRef{Name: e.Name(), Id: blobId})

		default:
			// symlink or special file - not part of the content model
		}
	}

	t := object.NewTree(filepath.Base(dir), refs)
	err = l.SaveTree(t)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// buildFile snapshots a single-file target.
//
// The result is the degenerate tree: one entry named by the file's basename
// and carrying the blob id; the tree id follows the regular "{name}:{id}"
// rule, so it differs from the blob id.
func buildFile(l *repo.Layout, path string) (*object.Tree, error) {
	blobId, err := hashFile(path)
	if err != nil {
		return nil, err
	}

	t := object.NewFileTree(filepath.Base(path), blobId)
	err = l.SaveTree(t)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// hashFile streams the bytes of the file at path into a blob id.
func hashFile(path string) (_ hash256.Hash256, err error) {
	f, err := os.Open(path)
	if err != nil {
		return hash256.Hash256{}, err
	}

	id, err := hash256.HashReader(f)
	err2 := f.Close()
	if err == nil {
		err = err2
	}
	if err != nil {
		return hash256.Hash256{}, err
	}
	return id, nil
}
