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

// Package repo implements the on-disk layout of an OpenBRS repository and
// safe access to its object store.
//
// The repository lives under `<anchor>/.openbrs/` where anchor is the backup
// target itself for directories and the target's parent for files:
//
//	.openbrs/
//	    HEAD                       hex id of the tip commit
//	    objects/
//	        blobs/                 tar+xz artifacts (possibly encrypted)
//	        trees/<id>.json        serialized Tree
//	        commits/<id>.json      serialized Commit
//
// All object files are written once via write-tmp+fsync+rename and never
// mutated; HEAD is the only mutable cell and is replaced the same way. Loads
// verify that the stored id matches the hash of the stored content, so a
// corrupted store is detected at read time, not propagated.
package repo

import (
	"fmt"
	"os"
	"path/filepath"

	"lab.nexedi.com/kirr/go123/xerr"
)

// WorkDir is the name of the repository directory. It is excluded from every
// filesystem walk - snapshotting, archiving and diffing all skip it at any
// depth.
const WorkDir = ".openbrs"

// Layout maps a backup target to the paths of its repository.
type Layout struct {
	Target      string // the target as given (repository-relative)
	TargetIsDir bool

	Main    string // <anchor>/.openbrs
	Objects string
	Blobs   string
	Trees   string
	Commits string

	Archive string // blobs/<basename>.tar.xz - whole-target artifact
	EncArch string // Archive + ".enc"
}

// NewLayout derives the repository layout for target.
//
// target must exist; whether it is a file or a directory decides the anchor.
func NewLayout(target string) (_ *Layout, err error) {
	defer xerr.Contextf(&err, "layout %s", target)

	fi, err := os.Stat(target)
	if err != nil {
		return nil, err
	}

	var main string
	if fi.IsDir() {
		main = filepath.Join(target, WorkDir)
	} else {
		main = filepath.Join(filepath.Dir(target), WorkDir)
	}

	objects := filepath.Join(main, "objects")
	blobs := filepath.Join(objects, "blobs")
	archive := filepath.Join(blobs, filepath.Base(target)+".tar.xz")

	return &Layout{
		Target:      target,
		TargetIsDir: fi.IsDir(),
		Main:        main,
		Objects:     objects,
		Blobs:       blobs,
		Trees:       filepath.Join(objects, "trees"),
		Commits:     filepath.Join(objects, "commits"),
		Archive:     archive,
		EncArch:     archive + ".enc",
	}, nil
}

// CreateDirs materializes the repository skeleton. It is idempotent.
func (l *Layout) CreateDirs() (err error) {
	defer xerr.Contextf(&err, "create %s", l.Main)

	for _, dir := range []string{l.Main, l.Objects, l.Blobs, l.Trees, l.Commits} {
		err = os.MkdirAll(dir, 0777)
		if err != nil {
			return err
		}
	}
	return nil
}

// BlobPath returns the path of the blob artifact staged for basename.
func (l *Layout) BlobPath(basename string) string {
	return filepath.Join(l.Blobs, basename+".tar.xz")
}

// MetaPath returns the path of the crypto metadata sidecar for basename.
func (l *Layout) MetaPath(basename string) string {
	return filepath.Join(l.Blobs, basename+".meta")
}

func (l *Layout) headPath() string {
	return filepath.Join(l.Main, "HEAD")
}

func (l *Layout) treePath(id fmt.Stringer) string {
	return filepath.Join(l.Trees, id.String()+".json")
}

func (l *Layout) commitPath(id fmt.Stringer) string {
	return filepath.Join(l.Commits, id.String()+".json")
}
