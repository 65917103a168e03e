package mpt

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
)

// The encode helpers below are not part of the scheduler's runtime path —
// they exist so tests and the cmd/mantis-sync demo can build well-formed
// node fixtures without depending on a full trie implementation.

// EncodeLeaf RLP-encodes a leaf node with the given nibble key and value.
func EncodeLeaf(key []byte, value []byte) ([]byte, error) {
	return rlp.EncodeToBytes([][]byte{hexToCompact(key, true), value})
}

// EncodeExtension RLP-encodes an extension node pointing at child by hash.
func EncodeExtension(key []byte, child common.Hash) ([]byte, error) {
	return rlp.EncodeToBytes([][]byte{hexToCompact(key, false), child.Bytes()})
}

// BranchChildren describes the 16 nibble slots of a branch node for
// EncodeBranch; a zero Hash means "no child in this slot".
type BranchChildren [16]common.Hash

// EncodeBranch RLP-encodes a branch node. value may be nil.
func EncodeBranch(children BranchChildren, value []byte) ([]byte, error) {
	items := make([]interface{}, 17)
	for i, h := range children {
		if h == (common.Hash{}) {
			items[i] = []byte{}
		} else {
			items[i] = h.Bytes()
		}
	}
	if value == nil {
		items[16] = []byte{}
	} else {
		items[16] = value
	}
	return rlp.EncodeToBytes(items)
}

// EncodeAccount RLP-encodes an account record in the canonical field order
// DecodeAccount expects.
func EncodeAccount(acc Account) ([]byte, error) {
	balance := acc.Balance.ToBig()
	return rlp.EncodeToBytes(&accountWire{
		Nonce:    acc.Nonce,
		Balance:  balance,
		Root:     acc.StorageRoot,
		CodeHash: acc.CodeHash.Bytes(),
	})
}
