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

/*
OpenBRS - Git-like backup engine for local file trees

This program backups a file or a directory into an immutable snapshot and
records that snapshot as a chain of commits supporting full and differential
backups with deduplication.

A snapshot is a content-addressed object graph: file bytes hash into blob
ids, directory listings hash into tree ids, and a commit ties the root tree
to its predecessor. Identical content collapses to one id, so an unchanged
subtree costs nothing in a later backup - only its root id is compared. The
object graph lives under `.openbrs/` next to the backup target, trees and
commits as JSON files keyed by their id, with a single HEAD file naming the
tip commit.

The first backup of a target snapshots it whole and archives it into one
tar+xz blob. Every following backup snapshots again, diffs the new tree
against the tree HEAD points to, and archives only the subtrees and files
the diff classified as added or modified. Removals cost nothing - they are
represented by the absence of the entry in the new tree. Each backup that
changed anything appends a commit and advances HEAD, so the whole history
stays reachable from a single id.

When encryption is enabled the staged archives are sealed with AES-128-GCM
under a key derived from a password via a memory-hard KDF; the salts, the
nonce and a password verifier are recorded in a metadata sidecar next to
each encrypted blob. By default single-file backups are encrypted and
directory backups are not; -encrypt and -plain override this.

Backup targets are repository-relative; absolute paths are rejected. The
working directory must stay stable for the duration of a backup.
*/
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/logix11/OpenBRS/internal/hash256"
	"github.com/logix11/OpenBRS/internal/repo"
)

// verbose output
// 0 - silent
// 1 - info
// 2 - progress of long-running operations
// 3 - debug
var verbose = 1

func infof(format string, a ...interface{}) {
	if verbose > 0 {
		fmt.Printf(format, a...)
		fmt.Println()
	}
}

func debugf(format string, a ...interface{}) {
	if verbose > 2 {
		fmt.Printf(format, a...)
		fmt.Println()
	}
}

// -------- openbrs backup --------

func cmd_backup_usage() {
	fmt.Fprint(os.Stderr,
		`openbrs backup [options] <target>

Backup target - a file or a directory - into the .openbrs repository next to
it. The first backup is full; every following one is differential against
HEAD. target must be a relative path.

  options:

    -encrypt    encrypt staged archives (default for file targets)
    -plain      do not encrypt (default for directory targets)
`)
}

func cmd_backup(argv []string) {
	flags := flag.FlagSet{Usage: cmd_backup_usage}
	flags.Init("", flag.ExitOnError)
	encrypt := flags.Bool("encrypt", false, "encrypt staged archives")
	plain := flags.Bool("plain", false, "do not encrypt staged archives")
	flags.Parse(argv)

	argv = flags.Args()
	if len(argv) != 1 {
		cmd_backup_usage()
		os.Exit(1)
	}
	target := argv[0]

	if *encrypt && *plain {
		raisef("backup: -encrypt and -plain are mutually exclusive")
	}

	opt := BackupOptions{}
	switch {
	case *encrypt:
		opt.Encrypt = true
	case *plain:
		opt.Encrypt = false
	default:
		// default mirrors target kind: single files encrypted,
		// directories not
		fi, err := os.Stat(target)
		opt.Encrypt = err == nil && !fi.IsDir()
	}

	if opt.Encrypt {
		opt.Password = xaskpass("Password")
	}

	backup(target, opt)
}

// -------- openbrs log --------

func cmd_log_usage() {
	fmt.Fprint(os.Stderr,
		`openbrs log <target>

List commits of target's .openbrs repository, tip first.
`)
}

func cmd_log(argv []string) {
	flags := flag.FlagSet{Usage: cmd_log_usage}
	flags.Init("", flag.ExitOnError)
	flags.Parse(argv)

	argv = flags.Args()
	if len(argv) != 1 {
		cmd_log_usage()
		os.Exit(1)
	}

	l, err := repo.NewLayout(argv[0])
	raiseif(err)
	if !l.HasHead() {
		raisef("%s: no backups yet", argv[0])
	}

	head, err := l.Head()
	raiseif(err)

	seen := hash256.Hash256Set{}
	for id := &head; id != nil; {
		if seen.Contains(*id) {
			raisef("commit %s: cycle in commit chain", *id)
		}
		seen.Add(*id)

		commit, err := l.LoadCommit(*id)
		raiseif(err)
		fmt.Printf("%s %s\n", commit.Id, commit.Message)
		id = commit.Parent
	}
}

// -------- main driver --------

var commands = map[string]func([]string){
	"backup": cmd_backup,
	"log":    cmd_log,
}

func usage() {
	fmt.Fprintf(os.Stderr,
		`openbrs [options] <command>

    backup      backup a file or directory
    log         list commits of a backup repository

  common options:

    -h --help       this help text.
    -v              increase verbosity.
    -q              decrease verbosity.
`)
}

func main() {
	flag.Usage = usage
	quiet := 0
	flag.Var((*countFlag)(&verbose), "v", "verbosity level")
	flag.Var((*countFlag)(&quiet), "q", "decrease verbosity")
	flag.Parse()
	verbose -= quiet
	argv := flag.Args()

	if len(argv) == 0 {
		usage()
		os.Exit(1)
	}

	cmd := commands[argv[0]]
	if cmd == nil {
		fmt.Fprintf(os.Stderr, "E: unknown command %q", argv[0])
		os.Exit(1)
	}

	// catch Error and report info from it
	here := myfuncname()
	defer errcatch(func(e *Error) {
		e = erraddcallingcontext(here, e)
		fmt.Fprintln(os.Stderr, e)

		// also show traceback if debug
		if verbose > 2 {
			fmt.Fprint(os.Stderr, "\n")
			debug.PrintStack()
		}

		os.Exit(1)
	})

	cmd(argv[1:])
}
