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

package stage

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/logix11/OpenBRS/internal/archive"
	"github.com/logix11/OpenBRS/internal/compare"
	"github.com/logix11/OpenBRS/internal/crypt"
	"github.com/logix11/OpenBRS/internal/hash256"
	"github.com/logix11/OpenBRS/internal/repo"
)

func xwritefile(t *testing.T, path, data string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0777))
	require.NoError(t, os.WriteFile(path, []byte(data), 0666))
}

// chdir into a fresh directory holding work/{a.txt=A, sub/c.txt=C} with its
// repository initialized; staging resolves paths against the cwd
func mkworkdir(t *testing.T) *repo.Layout {
	t.Helper()

	cwd, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { os.Chdir(cwd) })
	require.NoError(t, os.Chdir(t.TempDir()))

	xwritefile(t, "work/a.txt", "A")
	xwritefile(t, "work/sub/c.txt", "C")

	l, err := repo.NewLayout("work")
	require.NoError(t, err)
	require.NoError(t, l.CreateDirs())
	return l
}

func TestApplyPlain(t *testing.T) {
	l := mkworkdir(t)

	changes := []compare.Change{
		{Kind: compare.Modified, Name: "a.txt", Path: "work/a.txt",
			OldId: hash256.HashBytes([]byte("old")), NewId: hash256.HashBytes([]byte("A"))},
		{Kind: compare.Removed, Name: "b.txt", Path: "work/b.txt",
			OldId: hash256.HashBytes([]byte("B"))},
	}
	require.NoError(t, Apply(l, changes, nil))

	// modified -> one blob; removed -> none
	data, err := os.ReadFile(l.BlobPath("a.txt"))
	require.NoError(t, err)
	_, err = os.Stat(l.BlobPath("b.txt"))
	require.True(t, os.IsNotExist(err))

	// the blob is a valid archive of the staged path
	dest := t.TempDir()
	require.NoError(t, archive.Unpack(bytes.NewReader(data), dest))
	content, err := os.ReadFile(filepath.Join(dest, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "A", string(content))
}

func TestApplyDir(t *testing.T) {
	l := mkworkdir(t)

	changes := []compare.Change{
		{Kind: compare.Added, Name: "sub", Path: "work/sub",
			NewId: hash256.HashBytes([]byte("sub"))},
	}
	require.NoError(t, Apply(l, changes, nil))

	data, err := os.ReadFile(l.BlobPath("sub"))
	require.NoError(t, err)

	dest := t.TempDir()
	require.NoError(t, archive.Unpack(bytes.NewReader(data), dest))
	content, err := os.ReadFile(filepath.Join(dest, "sub", "c.txt"))
	require.NoError(t, err)
	require.Equal(t, "C", string(content))
}

// an absolute change path is converted to repository-relative form
func TestApplyAbsolutePath(t *testing.T) {
	l := mkworkdir(t)

	cwd, err := os.Getwd()
	require.NoError(t, err)

	changes := []compare.Change{
		{Kind: compare.Added, Name: "a.txt", Path: filepath.Join(cwd, "work", "a.txt"),
			NewId: hash256.HashBytes([]byte("A"))},
	}
	require.NoError(t, Apply(l, changes, nil))

	_, err = os.Stat(l.BlobPath("a.txt"))
	require.NoError(t, err)
}

func TestApplySealed(t *testing.T) {
	l := mkworkdir(t)
	password := []byte("test_passwd")

	changes := []compare.Change{
		{Kind: compare.Modified, Name: "a.txt", Path: "work/a.txt",
			OldId: hash256.HashBytes([]byte("old")), NewId: hash256.HashBytes([]byte("A"))},
	}
	require.NoError(t, Apply(l, changes, password))

	// only ciphertext + sidecar stay; the plaintext archive is removed
	_, err := os.Stat(l.BlobPath("a.txt"))
	require.True(t, os.IsNotExist(err))
	ciphertext, err := os.ReadFile(l.BlobPath("a.txt") + ".enc")
	require.NoError(t, err)

	meta, err := crypt.ReadMetadata(l.MetaPath("a.txt"))
	require.NoError(t, err)

	// and the password unseals back to the archive
	plaintext, err := crypt.Open(ciphertext, password, meta)
	require.NoError(t, err)

	dest := t.TempDir()
	require.NoError(t, archive.Unpack(bytes.NewReader(plaintext), dest))
	content, err := os.ReadFile(filepath.Join(dest, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "A", string(content))
}
