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

// Package archive produces tar+xz artifacts of files and directories.
//
// The tar stream is piped through a streaming xz compressor, so the archive
// is never held in memory whole. A file archives as a single entry named by
// its basename; a directory archives as an entry for the directory itself
// followed by every child recursively, names relative to the directory's
// basename. The `.openbrs` workspace directory is excluded at any depth.
package archive

import (
	"archive/tar"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/ulikunitz/xz"

	"lab.nexedi.com/kirr/go123/xerr"

	"github.com/logix11/OpenBRS/internal/repo"
)

// xz dictionary of the fixed "high" compression level.
const xzDictCap = 1 << 26

// Pack archives source as tar piped through xz into w.
//
// On success the whole stream is finalized and flushed into w. On failure
// partial output is possible - the caller owns removing the destination.
func Pack(source string, w io.Writer) (err error) {
	defer xerr.Contextf(&err, "pack %s", source)

	xzw, err := xz.WriterConfig{DictCap: xzDictCap}.NewWriter(w)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(xzw)

	fi, err := os.Stat(source)
	if err != nil {
		return err
	}

	if fi.IsDir() {
		err = packDir(tw, source, filepath.Base(source))
	} else {
		err = packFile(tw, source, filepath.Base(source), fi)
	}
	if err != nil {
		return err
	}

	// finalize tar, then the compressor; an error here is a write failure
	err = tw.Close()
	if err != nil {
		return err
	}
	return xzw.Close()
}

// PackTo archives source into a file at dst.
//
// On any failure dst is unlinked, so a half-written artifact never survives.
func PackTo(source, dst string) (err error) {
	defer xerr.Contextf(&err, "pack %s -> %s", source, dst)

	f, err := os.Create(dst)
	if err != nil {
		return err
	}

	err = Pack(source, f)
	if err == nil {
		err = f.Sync()
	}
	err2 := f.Close()
	if err == nil {
		err = err2
	}
	if err != nil {
		os.Remove(dst)
		return err
	}
	return nil
}

// packDir emits the entry for dir itself, then recursively for every child.
func packDir(tw *tar.Writer, dir, prefix string) error {
	fi, err := os.Stat(dir)
	if err != nil {
		return err
	}

	hdr, err := tar.FileInfoHeader(fi, "")
	if err != nil {
		return err
	}
	hdr.Name = prefix + "/"
	err = tw.WriteHeader(hdr)
	if err != nil {
		return err
	}

	// listing is fully read here, so no directory handle is kept open
	// across the recursion below
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	for _, e := range entries {
		if e.Name() == repo.WorkDir {
			continue
		}

		p := filepath.Join(dir, e.Name())
		name := path.Join(prefix, e.Name())

		switch {
		case e.IsDir():
			err = packDir(tw, p, name)
		case e.Type().IsRegular():
			fi, err = os.Stat(p)
			if err != nil {
				return err
			}
			err = packFile(tw, p, name, fi)
		default:
			// symlinks and special files are not part of the content model
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// packFile emits one regular-file entry with content streamed from path.
func packFile(tw *tar.Writer, path, name string, fi os.FileInfo) error {
	hdr, err := tar.FileInfoHeader(fi, "")
	if err != nil {
		return err
	}
	hdr.Name = name
	err = tw.WriteHeader(hdr)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	err2 := f.Close()
	if err == nil {
		err = err2
	}
	return err
}

// Unpack extracts a tar+xz stream from r under dest.
//
// It recreates the directories and regular files that Pack emits, with their
// content; modes and times recorded in the tar headers are not applied.
func Unpack(r io.Reader, dest string) (err error) {
	defer xerr.Contextf(&err, "unpack -> %s", dest)

	xzr, err := xz.NewReader(r)
	if err != nil {
		return err
	}
	tr := tar.NewReader(xzr)

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		p := filepath.Join(dest, filepath.FromSlash(hdr.Name))

		switch hdr.Typeflag {
		case tar.TypeDir:
			err = os.MkdirAll(p, 0777)
			if err != nil {
				return err
			}

		case tar.TypeReg:
			err = os.MkdirAll(filepath.Dir(p), 0777)
			if err != nil {
				return err
			}
			f, err := os.Create(p)
			if err != nil {
				return err
			}
			_, err = io.Copy(f, tr)
			err2 := f.Close()
			if err == nil {
				err = err2
			}
			if err != nil {
				return err
			}
		}
	}
}
