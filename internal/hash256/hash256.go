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

// Package hash256 provides Hash256 type to work with SHA3-256 oids.
//
// Every object id in an OpenBRS repository is a SHA3-256 digest in lowercase
// hex. Callers are responsible for canonical framing of the hashed input.
package hash256

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/sha3"

	"lab.nexedi.com/kirr/go123/mem"
)

const RAWSIZE = 32

// Hash256 is SHA3-256 value in raw form.
//
// NOTE zero value of Hash256{} is NULL hash.
type Hash256 struct {
	hash [RAWSIZE]byte
}

// fmt.Stringer
var _ fmt.Stringer = Hash256{}

func (h Hash256) String() string {
	return hex.EncodeToString(h.hash[:])
}

func Parse(hstr string) (Hash256, error) {
	h := Hash256{}
	if hex.DecodedLen(len(hstr)) != RAWSIZE {
		return Hash256{}, fmt.Errorf("hash256 parse: %q invalid", hstr)
	}
	_, err := hex.Decode(h.hash[:], mem.Bytes(hstr))
	if err != nil {
		return Hash256{}, fmt.Errorf("hash256 parse: %q invalid: %s", hstr, err)
	}

	return h, nil
}

// fmt.Scanner
var _ fmt.Scanner = (*Hash256)(nil)

func (h *Hash256) Scan(s fmt.ScanState, ch rune) error {
	switch ch {
	case 's', 'v':
	default:
		return fmt.Errorf("Hash256.Scan: invalid verb %q", ch)
	}

	tok, err := s.Token(true, nil)
	if err != nil {
		return err
	}

	*h, err = Parse(mem.String(tok))
	return err
}

// encoding.TextMarshaler, for JSON object files
var _ interface {
	MarshalText() ([]byte, error)
	UnmarshalText([]byte) error
} = (*Hash256)(nil)

func (h Hash256) MarshalText() ([]byte, error) {
	return mem.Bytes(h.String()), nil
}

func (h *Hash256) UnmarshalText(text []byte) error {
	hh, err := Parse(mem.String(text))
	if err != nil {
		return err
	}
	*h = hh
	return nil
}

// check whether h is null
func (h *Hash256) IsNull() bool {
	return *h == Hash256{}
}

// for sorting by Hash256
type ByHash256 []Hash256

func (p ByHash256) Len() int           { return len(p) }
func (p ByHash256) Swap(i, j int)      { p[i], p[j] = p[j], p[i] }
func (p ByHash256) Less(i, j int) bool { return bytes.Compare(p[i].hash[:], p[j].hash[:]) < 0 }

// Digest is streaming SHA3-256 digest that sums up to Hash256.
type Digest struct {
	h hash.Hash
}

func NewDigest() *Digest {
	return &Digest{h: sha3.New256()}
}

// io.Writer; never fails
var _ io.Writer = (*Digest)(nil)

func (d *Digest) Write(p []byte) (int, error) {
	return d.h.Write(p)
}

func (d *Digest) WriteString(s string) {
	d.h.Write(mem.Bytes(s))
}

func (d *Digest) Sum() Hash256 {
	h := Hash256{}
	d.h.Sum(h.hash[:0])
	return h
}

// HashBytes computes Hash256 of data in one go.
func HashBytes(data []byte) Hash256 {
	return Hash256{hash: sha3.Sum256(data)}
}

// HashReader streams r through the digest until EOF.
func HashReader(r io.Reader) (Hash256, error) {
	d := NewDigest()
	_, err := io.Copy(d, r)
	if err != nil {
		return Hash256{}, err
	}
	return d.Sum(), nil
}
