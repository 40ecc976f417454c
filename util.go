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

// OpenBRS | Miscellaneous utilities
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"golang.org/x/term"

	"lab.nexedi.com/kirr/go123/exc"
	"lab.nexedi.com/kirr/go123/my"
)

// exception-style error flow - thin aliases over go123/exc, so that the
// driver reads as raise/raiseif and tests can catch with errcatch.
type Error = exc.Error

func raise(arg interface{})             { exc.Raise(arg) }
func raisef(f string, a ...interface{}) { exc.Raisef(f, a...) }
func raiseif(err error)                 { exc.Raiseif(err) }
func errcatch(f func(e *Error))         { exc.Catch(f) }

func erraddcallingcontext(topfunc string, e *Error) *Error {
	return exc.Addcallingcontext(topfunc, e)
}

func myfuncname() string {
	return my.FuncName()
}

// read a password from the terminal, without echo
func xaskpass(prompt string) []byte {
	fmt.Fprintf(os.Stderr, "%s: ", prompt)
	passwd, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	raiseif(err)
	return passwd
}

// flag that is both bool and int - for handling -v -v -v ...
// (see cmd.dist.count in go.git for the original of this trick)
type countFlag int

func (c *countFlag) String() string {
	return fmt.Sprint(int(*c))
}

func (c *countFlag) Set(s string) error {
	switch s {
	case "true":
		*c++
	case "false":
		*c = 0
	default:
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("invalid count %q", s)
		}
		*c = countFlag(n)
	}
	return nil
}

// flag.boolFlag
func (c *countFlag) IsBoolFlag() bool {
	return true
}

// flag.Value
var _ flag.Value = (*countFlag)(nil)
