// Package mpt decodes the wire representation of Merkle-Patricia trie
// nodes and account records into a tagged-variant shape a scheduler can
// dispatch on, without pulling in a full trie implementation.
package mpt

import "github.com/ethereum/go-ethereum/common"

// ChildKind classifies how a branch or extension node references its
// continuation: absent, by content-address, or embedded inline because the
// child's own RLP encoding is shorter than a hash.
type ChildKind uint8

const (
	ChildEmpty ChildKind = iota
	ChildHashRef
	ChildInline
)

// Child is one slot of a branch node, or the single continuation of an
// extension node. Inline children carry no further data here: the spec
// treats them as already embedded and never chases them.
type Child struct {
	Kind ChildKind
	Hash common.Hash
}

// Node is the decoded shape of one trie node's raw bytes. Exactly one of
// EmptyNode, HashRefNode, LeafNode, ExtensionNode, or BranchNode.
type Node interface {
	isNode()
}

// EmptyNode is the decode of a zero-length response (the canonical
// representation of "nothing here").
type EmptyNode struct{}

// HashRefNode is a bare 32-byte string found where a full node was
// expected. It carries no children; callers never request a HashRefNode
// directly except defensively.
type HashRefNode common.Hash

// LeafNode terminates a key path. Value is the raw leaf payload: an
// RLP-encoded account for a state-trie leaf, or an arbitrary value for a
// storage-trie leaf.
type LeafNode struct {
	Key   []byte // hex nibbles, no terminator nibble
	Value []byte
}

// ExtensionNode shares a key prefix with a single child.
type ExtensionNode struct {
	SharedKey []byte // hex nibbles
	Next      Child
}

// BranchNode fans out over 16 nibble values plus an optional value stored
// at the branch itself (used when one key is a strict prefix of another).
type BranchNode struct {
	Children [16]Child
	Value    []byte
}

func (EmptyNode) isNode()     {}
func (HashRefNode) isNode()   {}
func (LeafNode) isNode()      {}
func (ExtensionNode) isNode() {}
func (BranchNode) isNode()    {}
