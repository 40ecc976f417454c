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

// Package stage turns a change list into on-disk blob artifacts.
//
// Every Added or Modified path is archived+compressed into
// blobs/<basename>.tar.xz. With encryption configured the archive is then
// sealed under the password-derived key and rewritten as
// blobs/<basename>.tar.xz.enc, the plaintext archive is removed and the
// crypto metadata sidecar is written next to it. A Removed change produces
// no artifact - the removal is represented solely by the absence of the
// entry in the new tree.
//
// Paths received from the differ can be absolute; they are converted to
// repository-relative form (against the current working directory, which
// the caller keeps stable for the whole backup) before archiving.
package stage

import (
	"fmt"
	"os"
	"strings"

	"lab.nexedi.com/kirr/go123/xerr"

	"github.com/logix11/OpenBRS/internal/archive"
	"github.com/logix11/OpenBRS/internal/compare"
	"github.com/logix11/OpenBRS/internal/crypt"
	"github.com/logix11/OpenBRS/internal/repo"
)

// Apply stages every change of changes into the blob store of l.
//
// password != nil configures encryption: every staged archive is sealed and
// only ciphertext + metadata sidecar stay on disk.
func Apply(l *repo.Layout, changes []compare.Change, password []byte) (err error) {
	defer xerr.Contextf(&err, "stage %s", l.Target)

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	for _, c := range changes {
		if c.Name == repo.WorkDir {
			continue
		}

		switch c.Kind {
		case compare.Added, compare.Modified:
			src, err := relpath(cwd, c.Path)
			if err != nil {
				return err
			}
			err = stage1(l, src, c.Name, password)
			if err != nil {
				return err
			}

		case compare.Removed:
			// no blob - absence of the entry in the new tree is
			// the whole record
		}
	}
	return nil
}

// stage1 archives src into blobs/<name>.tar.xz, sealing it when password is
// configured.
func stage1(l *repo.Layout, src, name string, password []byte) (err error) {
	defer xerr.Contextf(&err, "stage %s", src)

	blob := l.BlobPath(name)
	err = archive.PackTo(src, blob)
	if err != nil {
		return err
	}

	if password == nil {
		return nil
	}
	return Seal(l, blob, name, password)
}

// Seal encrypts the archive at blob in place: <blob>.enc + metadata sidecar
// replace the plaintext file.
func Seal(l *repo.Layout, blob, name string, password []byte) (err error) {
	defer xerr.Contextf(&err, "seal %s", blob)

	plaintext, err := os.ReadFile(blob)
	if err != nil {
		return err
	}

	ciphertext, meta, err := crypt.Seal(plaintext, password)
	if err != nil {
		return err
	}

	err = os.WriteFile(blob+".enc", ciphertext, 0666)
	if err != nil {
		return err
	}
	err = meta.Write(l.MetaPath(name))
	if err != nil {
		return err
	}
	return os.Remove(blob)
}

// relpath converts path to repository-relative form against cwd.
//
// relpath("/a", "/a/b/c") -> "b/c"; a relative path is passed through.
func relpath(cwd, path string) (string, error) {
	if !strings.HasPrefix(path, "/") {
		return path, nil
	}
	if !strings.HasPrefix(path, cwd) {
		return "", fmt.Errorf("relpath: %q is outside of %q", path, cwd)
	}
	rest := path[len(cwd):]
	if rest != "" && !strings.HasPrefix(rest, "/") && !strings.HasSuffix(cwd, "/") {
		// cwd is only a string prefix of a sibling, e.g. "/a" of "/ab"
		return "", fmt.Errorf("relpath: %q is outside of %q", path, cwd)
	}
	path = rest
	for strings.HasPrefix(path, "/") {
		path = path[1:]
	}
	return path, nil
}
