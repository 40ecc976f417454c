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

// Package object implements the OpenBRS object model: Blob, Tree and Commit.
//
// Objects are immutable values keyed by content hash. A Blob id is the hash
// of file bytes; a Tree id is the hash of its name-sorted "{name}:{id}"
// entry strings; a Commit id is the hash of tree_id ‖ parent ‖ message with
// parent bytes omitted when there is no parent. Identical content collapses
// to one id, which is what makes snapshots deduplicate.
package object

import (
	"sort"

	"github.com/logix11/OpenBRS/internal/hash256"
)

// EntryRef is one entry of a Tree: name of a child and id of the object it
// refers to - a Blob for files, another Tree for directories.
//
// name is the basename only; names are unique per tree.
type EntryRef struct {
	Name string          `json:"name"`
	Id   hash256.Hash256 `json:"id"`
}

// Tree is content-addressed directory listing.
//
// entries are kept canonically sorted by name, byte-wise ascending.
type Tree struct {
	Id      hash256.Hash256 `json:"id"`
	Name    string          `json:"name"`
	Entries []EntryRef      `json:"entries"`
}

// Commit is an immutable record of one snapshot.
type Commit struct {
	Id      hash256.Hash256  `json:"id"`
	TreeId  hash256.Hash256  `json:"tree_id"`
	Parent  *hash256.Hash256 `json:"parent"` // nil for the initial backup
	Message string           `json:"message"`
}

// for sorting entries canonically
type ByEntryName []EntryRef

func (ev ByEntryName) Len() int           { return len(ev) }
func (ev ByEntryName) Swap(i, j int)      { ev[i], ev[j] = ev[j], ev[i] }
func (ev ByEntryName) Less(i, j int) bool { return ev[i].Name < ev[j].Name }

// BlobId computes the id of a blob with content data.
func BlobId(data []byte) hash256.Hash256 {
	return hash256.HashBytes(data)
}

// TreeId computes the id of a tree over entries.
//
// entries are hashed in canonical order as "{name}:{id}"; entries itself is
// left untouched. The empty tree hashes the empty input and so also has a
// well-defined id.
func TreeId(entries []EntryRef) hash256.Hash256 {
	ev := make([]EntryRef, len(entries))
	copy(ev, entries)
	sort.Sort(ByEntryName(ev))

	d := hash256.NewDigest()
	for _, e := range ev {
		d.WriteString(e.Name)
		d.WriteString(":")
		d.WriteString(e.Id.String())
	}
	return d.Sum()
}

// CommitId computes the id of a commit.
//
// With no parent the parent bytes are omitted from the hashed input, not
// replaced by a sentinel.
func CommitId(treeId hash256.Hash256, parent *hash256.Hash256, message string) hash256.Hash256 {
	d := hash256.NewDigest()
	d.WriteString(treeId.String())
	if parent != nil {
		d.WriteString(parent.String())
	}
	d.WriteString(message)
	return d.Sum()
}

// NewTree creates a Tree named name with entries, sorted canonically and with
// id computed.
func NewTree(name string, entries []EntryRef) *Tree {
	sort.Sort(ByEntryName(entries))
	return &Tree{Id: TreeId(entries), Name: name, Entries: entries}
}

// NewFileTree creates the single-entry tree of a file target.
//
// The sole entry carries the file's basename and blob id; the tree id
// follows the same "{name}:{id}" rule as every other tree.
func NewFileTree(name string, blobId hash256.Hash256) *Tree {
	return NewTree(name, []EntryRef{{Name: name, Id: blobId}})
}

// ComputeId recomputes t's id from its entries.
func (t *Tree) ComputeId() hash256.Hash256 {
	return TreeId(t.Entries)
}

// VerifyId reports whether t.Id is consistent with t's content.
func (t *Tree) VerifyId() bool {
	return t.Id == t.ComputeId()
}

// NewCommit creates a Commit referencing treeId with id computed.
func NewCommit(treeId hash256.Hash256, parent *hash256.Hash256, message string) *Commit {
	return &Commit{
		Id:      CommitId(treeId, parent, message),
		TreeId:  treeId,
		Parent:  parent,
		Message: message,
	}
}

// ComputeId recomputes c's id from its fields.
func (c *Commit) ComputeId() hash256.Hash256 {
	return CommitId(c.TreeId, c.Parent, c.Message)
}

// VerifyId reports whether c.Id is consistent with c's content.
func (c *Commit) VerifyId() bool {
	return c.Id == c.ComputeId()
}
