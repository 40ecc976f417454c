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

// OpenBRS | Object store: load/save Tree and Commit, HEAD cell
package repo

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"lab.nexedi.com/kirr/go123/mem"
	"lab.nexedi.com/kirr/go123/xerr"

	"github.com/logix11/OpenBRS/internal/hash256"
	"github.com/logix11/OpenBRS/internal/object"
)

// NotFoundError is returned when a referenced object is missing from the store.
type NotFoundError struct {
	Kind string // "tree" | "commit"
	Id   hash256.Hash256
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s: not found in object store", e.Kind, e.Id)
}

// CorruptError is returned when a stored object's id does not match the hash
// of its content.
type CorruptError struct {
	Kind string
	Path string
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("%s %s: id does not match content", e.Kind, e.Path)
}

// SaveTree persists t under trees/<id>.json.
//
// Entries go to disk in canonical sort order - NewTree keeps them that way
// in memory, so marshalling is plain.
func (l *Layout) SaveTree(t *object.Tree) (err error) {
	defer xerr.Contextf(&err, "save tree %s", t.Id)

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	return writefile(l.treePath(t.Id), data)
}

// LoadTree fetches tree id from the store.
func (l *Layout) LoadTree(id hash256.Hash256) (_ *object.Tree, err error) {
	defer xerr.Contextf(&err, "load tree %s", id)

	path := l.treePath(id)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{"tree", id}
		}
		return nil, err
	}

	t := &object.Tree{}
	err = json.Unmarshal(data, t)
	if err != nil {
		return nil, err
	}

	if t.Id != id || !t.VerifyId() {
		return nil, &CorruptError{"tree", path}
	}
	return t, nil
}

// HasTree reports whether tree id is present in the store.
func (l *Layout) HasTree(id hash256.Hash256) bool {
	_, err := os.Stat(l.treePath(id))
	return err == nil
}

// SaveCommit persists c under commits/<id>.json.
func (l *Layout) SaveCommit(c *object.Commit) (err error) {
	defer xerr.Contextf(&err, "save commit %s", c.Id)

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return writefile(l.commitPath(c.Id), data)
}

// LoadCommit fetches commit id from the store.
func (l *Layout) LoadCommit(id hash256.Hash256) (_ *object.Commit, err error) {
	defer xerr.Contextf(&err, "load commit %s", id)

	path := l.commitPath(id)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{"commit", id}
		}
		return nil, err
	}

	c := &object.Commit{}
	err = json.Unmarshal(data, c)
	if err != nil {
		return nil, err
	}

	if c.Id != id || !c.VerifyId() {
		return nil, &CorruptError{"commit", path}
	}
	return c, nil
}

// HasHead reports whether the repository has a tip commit, i.e. whether any
// backup was made at all.
func (l *Layout) HasHead() bool {
	_, err := os.Stat(l.headPath())
	return err == nil
}

// Head returns the id of the tip commit.
func (l *Layout) Head() (_ hash256.Hash256, err error) {
	defer xerr.Context(&err, "HEAD")

	data, err := os.ReadFile(l.headPath())
	if err != nil {
		return hash256.Hash256{}, err
	}

	head, err := hash256.Parse(strings.TrimSpace(mem.String(data)))
	if err != nil {
		return hash256.Hash256{}, err
	}
	return head, nil
}

// SetHead atomically replaces HEAD with id.
//
// This is the final step of a backup: objects are all on disk already, so
// after the rename the repository tip names a complete snapshot.
func (l *Layout) SetHead(id hash256.Hash256) (err error) {
	defer xerr.Context(&err, "HEAD")

	return writefile(l.headPath(), mem.Bytes(id.String()))
}

// writefile writes data to path atomically against crash: write to temporary
// path, fsync, then rename over the final path.
func writefile(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return err
	}

	_, err = f.Write(data)
	if err == nil {
		err = f.Sync()
	}
	err2 := f.Close()
	if err == nil {
		err = err2
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}

	return os.Rename(tmp, path)
}
