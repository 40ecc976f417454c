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

// Package crypt implements the password-derived key schedule and the
// authenticated encryption of blob artifacts.
//
// Key schedule (memory-hard, 128-bit fresh random salts throughout):
//
//	MK   = scrypt(password, salt1, N=32768, r=32, p=1, len=16)
//	dgst = scrypt(MK,       salt2, N=4096,  r=32, p=1, len=16)
//	DPK  = scrypt(MK,       salt3, N=32768, r=32, p=1, len=16)
//
// MK is the master key and is never persisted. dgst is the verifier stored
// in the metadata sidecar: on unlock the supplied password is reduced to MK
// and must reproduce dgst before any AEAD work is attempted, so a wrong
// password is reported as such instead of as a tag mismatch. DPK keys
// AES-128-GCM over the complete compressed archive; the 96-bit nonce is
// fresh per encryption and recorded in the sidecar together with the salts.
package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"os"

	"github.com/BurntSushi/toml"
	"golang.org/x/crypto/scrypt"

	"lab.nexedi.com/kirr/go123/xerr"
)

const (
	SaltSize  = 16 // 128-bit salts
	KeySize   = 16 // AES-128
	NonceSize = 12 // 96-bit GCM nonce
)

// scrypt cost parameters
const (
	costN     = 32768 // MK, DPK
	costNDgst = 4096  // verifier
	costR     = 32
	costP     = 1
)

// AuthError is the failure of an authentication check - wrong password or
// ciphertext that does not verify. It is surfaced, never masked.
type AuthError struct {
	What string
}

func (e *AuthError) Error() string {
	return "authentication failure: " + e.What
}

// Metadata is the sidecar persisted next to every encrypted blob.
//
// It carries everything needed to unlock the blob again except the password:
// the three KDF salts, the AEAD nonce and the MK verifier.
type Metadata struct {
	Salt1 [SaltSize]byte `toml:"salt1"`
	Salt2 [SaltSize]byte `toml:"salt2"`
	Salt3 [SaltSize]byte `toml:"salt3"`
	Nonce string         `toml:"nonce"` // base64(12 bytes)
	Dgst  string         `toml:"dgst"`  // base64(16 bytes)
}

// newsalt fills a fresh 128-bit salt from the cryptographic RNG.
func newsalt() (salt [SaltSize]byte, err error) {
	_, err = rand.Read(salt[:])
	return salt, err
}

// Keyder derives the data-protection key from password.
//
// Every salt is freshly randomized right before its derivation and recorded
// in the returned metadata.
func Keyder(password []byte) (dpk []byte, meta *Metadata, err error) {
	defer xerr.Context(&err, "keyder")

	meta = &Metadata{}

	meta.Salt1, err = newsalt()
	if err != nil {
		return nil, nil, err
	}
	mk, err := scrypt.Key(password, meta.Salt1[:], costN, costR, costP, KeySize)
	if err != nil {
		return nil, nil, err
	}

	meta.Salt2, err = newsalt()
	if err != nil {
		return nil, nil, err
	}
	dgst, err := scrypt.Key(mk, meta.Salt2[:], costNDgst, costR, costP, KeySize)
	if err != nil {
		return nil, nil, err
	}
	meta.Dgst = base64.StdEncoding.EncodeToString(dgst)

	meta.Salt3, err = newsalt()
	if err != nil {
		return nil, nil, err
	}
	dpk, err = scrypt.Key(mk, meta.Salt3[:], costN, costR, costP, KeySize)
	if err != nil {
		return nil, nil, err
	}

	return dpk, meta, nil
}

// Seal encrypts plaintext under a key derived from password.
//
// The ciphertext includes the GCM tag; associated data is empty. The
// returned metadata has the nonce recorded and is ready to persist.
func Seal(plaintext, password []byte) (ciphertext []byte, meta *Metadata, err error) {
	defer xerr.Context(&err, "seal")

	dpk, meta, err := Keyder(password)
	if err != nil {
		return nil, nil, err
	}

	aead, err := newAEAD(dpk)
	if err != nil {
		return nil, nil, err
	}

	nonce := make([]byte, NonceSize)
	_, err = rand.Read(nonce)
	if err != nil {
		return nil, nil, err
	}
	meta.Nonce = base64.StdEncoding.EncodeToString(nonce)

	return aead.Seal(nil, nonce, plaintext, nil), meta, nil
}

// Open decrypts ciphertext produced by Seal.
//
// The password is first checked against the stored verifier; only then is
// the AEAD attempted. Both failures come back as *AuthError.
func Open(ciphertext, password []byte, meta *Metadata) (plaintext []byte, err error) {
	defer xerr.Context(&err, "open")

	mk, err := scrypt.Key(password, meta.Salt1[:], costN, costR, costP, KeySize)
	if err != nil {
		return nil, err
	}
	dgst, err := scrypt.Key(mk, meta.Salt2[:], costNDgst, costR, costP, KeySize)
	if err != nil {
		return nil, err
	}
	stored, err := base64.StdEncoding.DecodeString(meta.Dgst)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare(dgst, stored) != 1 {
		return nil, &AuthError{"password verifier mismatch"}
	}

	dpk, err := scrypt.Key(mk, meta.Salt3[:], costN, costR, costP, KeySize)
	if err != nil {
		return nil, err
	}
	aead, err := newAEAD(dpk)
	if err != nil {
		return nil, err
	}

	nonce, err := base64.StdEncoding.DecodeString(meta.Nonce)
	if err != nil {
		return nil, err
	}

	plaintext, err = aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, &AuthError{"archive does not authenticate"}
	}
	return plaintext, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Write persists m as the TOML sidecar at path.
func (m *Metadata) Write(path string) (err error) {
	defer xerr.Contextf(&err, "metadata %s", path)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	err = toml.NewEncoder(f).Encode(m)
	err2 := f.Close()
	if err == nil {
		err = err2
	}
	return err
}

// ReadMetadata loads the TOML sidecar at path.
func ReadMetadata(path string) (_ *Metadata, err error) {
	defer xerr.Contextf(&err, "metadata %s", path)

	m := &Metadata{}
	_, err = toml.DecodeFile(path, m)
	if err != nil {
		return nil, err
	}
	return m, nil
}
