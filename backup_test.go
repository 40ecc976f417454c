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

package main

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"lab.nexedi.com/kirr/go123/exc"

	"github.com/logix11/OpenBRS/internal/hash256"
	"github.com/logix11/OpenBRS/internal/object"
	"github.com/logix11/OpenBRS/internal/repo"
)

func xgetcwd(t *testing.T) string {
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	return cwd
}

func xchdir(t *testing.T, dir string) {
	err := os.Chdir(dir)
	if err != nil {
		t.Fatal(err)
	}
}

func xwritefile(t *testing.T, path, data string) {
	err := os.MkdirAll(filepath.Dir(path), 0777)
	if err != nil {
		t.Fatal(err)
	}
	err = os.WriteFile(path, []byte(data), 0666)
	if err != nil {
		t.Fatal(err)
	}
}

func xlayout(t *testing.T, target string) *repo.Layout {
	l, err := repo.NewLayout(target)
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func xhead(t *testing.T, l *repo.Layout) hash256.Hash256 {
	head, err := l.Head()
	if err != nil {
		t.Fatal(err)
	}
	return head
}

func xcommit(t *testing.T, l *repo.Layout, id hash256.Hash256) *object.Commit {
	commit, err := l.LoadCommit(id)
	if err != nil {
		t.Fatal(err)
	}
	return commit
}

// names of files under dir, sorted
func xls(t *testing.T, dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	namev := []string{}
	for _, e := range entries {
		namev = append(namev, e.Name())
	}
	sort.Strings(namev)
	return namev
}

// run test body in a fresh scratch directory; raised errors fail the test
func withScratchDir(t *testing.T, f func()) {
	cwd := xgetcwd(t)
	defer xchdir(t, cwd)
	xchdir(t, t.TempDir())

	// if something raises - don't let testing panic - report it as proper error
	defer errcatch(func(e *Error) {
		t.Fatal(e)
	})

	f()
}

// verify end-to-end single-file full backup, encrypted as the CLI does by
// default for file targets
func TestBackupFileFull(t *testing.T) {
	withScratchDir(t, func() {
		xwritefile(t, "test/TOAD.png", "hello")
		backup("test/TOAD.png", BackupOptions{Encrypt: true, Password: []byte("test_passwd")})

		l := xlayout(t, "test/TOAD.png")
		if l.Main != filepath.Join("test", repo.WorkDir) {
			t.Fatalf("layout anchor: %q", l.Main)
		}

		// HEAD exists and is a proper hex id
		data, err := os.ReadFile(filepath.Join(l.Main, "HEAD"))
		if err != nil {
			t.Fatal(err)
		}
		if len(data) != 64 {
			t.Fatalf("HEAD: %q (expected 64-char hex id)", data)
		}
		head := xhead(t, l)

		// the commit roots the chain
		commit := xcommit(t, l, head)
		if commit.Parent != nil {
			t.Fatalf("first commit parent: %v", commit.Parent)
		}
		if commit.Message != "First commit" {
			t.Fatalf("first commit message: %q", commit.Message)
		}

		// tree_id = H("TOAD.png:" + hex(H("hello")))
		d := hash256.NewDigest()
		d.WriteString("TOAD.png:" + hash256.HashBytes([]byte("hello")).String())
		if commit.TreeId != d.Sum() {
			t.Fatalf("tree_id: %s (expected %s)", commit.TreeId, d.Sum())
		}

		// one encrypted blob + sidecar; no plaintext archive left behind
		blobs := xls(t, l.Blobs)
		want := []string{"TOAD.png.meta", "TOAD.png.tar.xz.enc"}
		if strings.Join(blobs, " ") != strings.Join(want, " ") {
			t.Fatalf("blobs: %v", blobs)
		}
	})
}

// verify directory full backup + no-op re-backup (HEAD stays put)
func TestBackupDirNoop(t *testing.T) {
	withScratchDir(t, func() {
		xwritefile(t, "work/a.txt", "A")
		xwritefile(t, "work/b.txt", "B")
		backup("work", BackupOptions{})

		l := xlayout(t, "work")
		head1 := xhead(t, l)
		commit1 := xcommit(t, l, head1)
		if commit1.Parent != nil {
			t.Fatalf("first commit parent: %v", commit1.Parent)
		}
		blobs1 := xls(t, l.Blobs)
		if strings.Join(blobs1, " ") != "work.tar.xz" {
			t.Fatalf("blobs after full backup: %v", blobs1)
		}

		// nothing changed -> no new blobs, no new commit, HEAD unchanged
		backup("work", BackupOptions{})
		if head2 := xhead(t, l); head2 != head1 {
			t.Fatalf("no-op backup moved HEAD: %s -> %s", head1, head2)
		}
		if blobs2 := xls(t, l.Blobs); len(blobs2) != len(blobs1) {
			t.Fatalf("no-op backup wrote blobs: %v", blobs2)
		}
	})
}

// verify differential backup after modifying one file
func TestBackupDirDiffModify(t *testing.T) {
	withScratchDir(t, func() {
		xwritefile(t, "work/a.txt", "A")
		xwritefile(t, "work/b.txt", "B")
		backup("work", BackupOptions{})

		l := xlayout(t, "work")
		head1 := xhead(t, l)
		commit1 := xcommit(t, l, head1)

		xwritefile(t, "work/a.txt", "A2")
		backup("work", BackupOptions{})

		// HEAD advanced to a commit chaining onto the previous one
		head2 := xhead(t, l)
		if head2 == head1 {
			t.Fatal("differential backup did not advance HEAD")
		}
		commit2 := xcommit(t, l, head2)
		if commit2.Parent == nil || *commit2.Parent != head1 {
			t.Fatalf("commit chain broken: parent %v", commit2.Parent)
		}
		if commit2.TreeId == commit1.TreeId {
			t.Fatal("tree did not change")
		}

		// exactly the modified file was staged; b.txt was not re-archived
		blobs := xls(t, l.Blobs)
		want := []string{"a.txt.tar.xz", "work.tar.xz"}
		if strings.Join(blobs, " ") != strings.Join(want, " ") {
			t.Fatalf("blobs: %v", blobs)
		}
	})
}

// verify differential backup after adding a nested directory
func TestBackupDirDiffAddNested(t *testing.T) {
	withScratchDir(t, func() {
		xwritefile(t, "work/a.txt", "A")
		xwritefile(t, "work/b.txt", "B")
		backup("work", BackupOptions{})

		xwritefile(t, "work/sub/c.txt", "C")
		backup("work", BackupOptions{})

		// one new blob for sub/; a.txt, b.txt untouched
		l := xlayout(t, "work")
		blobs := xls(t, l.Blobs)
		want := []string{"sub.tar.xz", "work.tar.xz"}
		if strings.Join(blobs, " ") != strings.Join(want, " ") {
			t.Fatalf("blobs: %v", blobs)
		}
	})
}

// verify differential backup after removing a file
func TestBackupDirDiffRemove(t *testing.T) {
	withScratchDir(t, func() {
		xwritefile(t, "work/a.txt", "A")
		xwritefile(t, "work/b.txt", "B")
		backup("work", BackupOptions{})

		l := xlayout(t, "work")
		head1 := xhead(t, l)
		commit1 := xcommit(t, l, head1)

		err := os.Remove("work/b.txt")
		if err != nil {
			t.Fatal(err)
		}
		backup("work", BackupOptions{})

		// removal produces no blob, but the snapshot and HEAD move
		head2 := xhead(t, l)
		if head2 == head1 {
			t.Fatal("differential backup did not advance HEAD")
		}
		commit2 := xcommit(t, l, head2)
		if commit2.TreeId == commit1.TreeId {
			t.Fatal("tree did not change after removal")
		}
		blobs := xls(t, l.Blobs)
		if strings.Join(blobs, " ") != "work.tar.xz" {
			t.Fatalf("blobs: %v", blobs)
		}
	})
}

// absolute and nonexistent targets are rejected before anything is written
func TestBackupPathRejected(t *testing.T) {
	withScratchDir(t, func() {
		for _, target := range []string{"/etc", "does/not/exist"} {
			err := exc.Runx(func() {
				backup(target, BackupOptions{})
			})
			if err == nil {
				t.Fatalf("%s: backup did not fail", target)
			}
			if !strings.Contains(err.Error(), "path rejected") {
				t.Fatalf("%s: unexpected error: %s", target, err)
			}
		}
	})
}
