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

// OpenBRS | Backup driver: full and differential backups, HEAD advance
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/logix11/OpenBRS/internal/archive"
	"github.com/logix11/OpenBRS/internal/compare"
	"github.com/logix11/OpenBRS/internal/object"
	"github.com/logix11/OpenBRS/internal/repo"
	"github.com/logix11/OpenBRS/internal/snapshot"
	"github.com/logix11/OpenBRS/internal/stage"
)

// PathRejectedError is returned for a backup target we refuse to work on.
type PathRejectedError struct {
	Path   string
	Reason string
}

func (e *PathRejectedError) Error() string {
	return fmt.Sprintf("%s: path rejected: %s", e.Path, e.Reason)
}

// BackupOptions adjusts how one backup invocation runs.
type BackupOptions struct {
	Encrypt  bool
	Password []byte // used only when Encrypt is set
}

// backup backups target into its .openbrs repository.
//
// The first backup of a target is full; every following one is differential
// against the snapshot HEAD names. HEAD is never advanced on error.
func backup(target string, opt BackupOptions) {
	if filepath.IsAbs(target) {
		raise(&PathRejectedError{target, "absolute; only repository-relative targets are supported"})
	}
	_, err := os.Stat(target)
	if err != nil {
		raise(&PathRejectedError{target, "does not exist"})
	}

	l, err := repo.NewLayout(target)
	raiseif(err)
	raiseif(l.CreateDirs())

	if !l.HasHead() {
		backup_full(l, opt)
	} else {
		backup_diff(l, opt)
	}
}

// backup_full archives the whole target and roots the commit chain.
func backup_full(l *repo.Layout, opt BackupOptions) {
	infof("# full backup %s", l.Target)

	tree, err := snapshot.Build(l)
	raiseif(err)

	// the whole target goes into one blob artifact
	raiseif(archive.PackTo(l.Target, l.Archive))
	if opt.Encrypt {
		raiseif(stage.Seal(l, l.Archive, filepath.Base(l.Target), opt.Password))
	}

	commit := object.NewCommit(tree.Id, nil, "First commit")
	raiseif(l.SaveCommit(commit))
	raiseif(l.SetHead(commit.Id))
	infof("# HEAD -> %s", commit.Id)
}

// backup_diff snapshots target anew, diffs against HEAD's snapshot, stages
// only what changed and appends a commit.
//
// With no changes at all nothing is staged and HEAD stays put.
func backup_diff(l *repo.Layout, opt BackupOptions) {
	infof("# differential backup %s", l.Target)

	newTree, err := snapshot.Build(l)
	raiseif(err)

	head, err := l.Head()
	raiseif(err)
	latest, err := l.LoadCommit(head)
	raiseif(err)
	oldTree, err := l.LoadTree(latest.TreeId)
	raiseif(err)

	// for a file target old/new trees describe the file's directory
	dir := l.Target
	if !l.TargetIsDir {
		dir = filepath.Dir(l.Target)
	}
	changes, err := compare.Trees(l, oldTree, newTree, dir)
	raiseif(err)

	if len(changes) == 0 {
		infof("# no changes")
		return
	}
	for _, c := range changes {
		debugf("# %s", c)
	}

	var password []byte
	if opt.Encrypt {
		password = opt.Password
	}
	raiseif(stage.Apply(l, changes, password))

	commit := object.NewCommit(newTree.Id, &head, "Differential backup")
	raiseif(l.SaveCommit(commit))
	raiseif(l.SetHead(commit.Id))
	infof("# HEAD -> %s", commit.Id)
}
