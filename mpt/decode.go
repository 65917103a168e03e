package mpt

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

// ErrMalformedNode is wrapped by every structural decode failure of a trie
// node's raw bytes.
var ErrMalformedNode = errors.New("mpt: malformed node")

// ErrMalformedAccount is wrapped by every structural decode failure of an
// account leaf's value.
var ErrMalformedAccount = errors.New("mpt: malformed account")

// Account is the classic Ethereum state-trie leaf payload.
type Account struct {
	Nonce       uint64
	Balance     *uint256.Int
	StorageRoot common.Hash
	CodeHash    common.Hash
}

// DecodeNode decodes the raw bytes of one trie node response into its
// tagged-variant shape. An empty byte slice decodes to EmptyNode, matching
// the canonical representation of an absent node.
func DecodeNode(raw []byte) (Node, error) {
	if len(raw) == 0 {
		return EmptyNode{}, nil
	}
	kind, content, rest, err := rlp.Split(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedNode, err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: trailing bytes after node", ErrMalformedNode)
	}
	switch kind {
	case rlp.String:
		switch len(content) {
		case 0:
			return EmptyNode{}, nil
		case 32:
			return HashRefNode(common.BytesToHash(content)), nil
		default:
			return nil, fmt.Errorf("%w: unexpected top-level string of length %d", ErrMalformedNode, len(content))
		}
	case rlp.List:
		count, err := rlp.CountValues(content)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedNode, err)
		}
		switch count {
		case 2:
			return decodeShort(content)
		case 17:
			return decodeFull(content)
		default:
			return nil, fmt.Errorf("%w: list node with %d elements", ErrMalformedNode, count)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported rlp kind", ErrMalformedNode)
	}
}

// decodeShort decodes a 2-element [key, value] list into either a LeafNode
// (terminator flag set) or an ExtensionNode.
func decodeShort(elems []byte) (Node, error) {
	kbuf, rest, err := rlp.SplitString(elems)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid key: %v", ErrMalformedNode, err)
	}
	key, terminator := compactToHex(kbuf)
	if terminator {
		val, tail, err := rlp.SplitString(rest)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid leaf value: %v", ErrMalformedNode, err)
		}
		if len(tail) != 0 {
			return nil, fmt.Errorf("%w: trailing bytes in leaf node", ErrMalformedNode)
		}
		return LeafNode{Key: key, Value: val}, nil
	}
	child, tail, err := splitChild(rest)
	if err != nil {
		return nil, err
	}
	if len(tail) != 0 {
		return nil, fmt.Errorf("%w: trailing bytes in extension node", ErrMalformedNode)
	}
	return ExtensionNode{SharedKey: key, Next: child}, nil
}

// decodeFull decodes a 17-element [child0..child15, value] list into a
// BranchNode.
func decodeFull(elems []byte) (Node, error) {
	var n BranchNode
	rest := elems
	for i := 0; i < 16; i++ {
		var (
			child Child
			err   error
		)
		child, rest, err = splitChild(rest)
		if err != nil {
			return nil, err
		}
		n.Children[i] = child
	}
	val, tail, err := rlp.SplitString(rest)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid branch value: %v", ErrMalformedNode, err)
	}
	if len(tail) != 0 {
		return nil, fmt.Errorf("%w: trailing bytes in branch node", ErrMalformedNode)
	}
	if len(val) > 0 {
		n.Value = val
	}
	return n, nil
}

// splitChild peels one RLP item off buf and classifies it as an empty,
// hash-referenced, or inline-embedded child, returning the remainder.
func splitChild(buf []byte) (Child, []byte, error) {
	kind, content, rest, err := rlp.Split(buf)
	if err != nil {
		return Child{}, nil, fmt.Errorf("%w: %v", ErrMalformedNode, err)
	}
	switch kind {
	case rlp.String:
		switch len(content) {
		case 0:
			return Child{Kind: ChildEmpty}, rest, nil
		case 32:
			return Child{Kind: ChildHashRef, Hash: common.BytesToHash(content)}, rest, nil
		default:
			return Child{}, nil, fmt.Errorf("%w: invalid child reference length %d", ErrMalformedNode, len(content))
		}
	case rlp.List:
		// Embedded node, already inline; the spec never chases these.
		return Child{Kind: ChildInline}, rest, nil
	default:
		return Child{}, nil, fmt.Errorf("%w: unsupported child rlp kind", ErrMalformedNode)
	}
}

// accountWire is the RLP wire shape of an account leaf: nonce, balance,
// storage root, code hash, in that field order.
type accountWire struct {
	Nonce    uint64
	Balance  *big.Int
	Root     common.Hash
	CodeHash []byte
}

// DecodeAccount RLP-decodes a state-trie leaf value into an Account.
func DecodeAccount(raw []byte) (Account, error) {
	var wire accountWire
	if err := rlp.DecodeBytes(raw, &wire); err != nil {
		return Account{}, fmt.Errorf("%w: %v", ErrMalformedAccount, err)
	}
	if wire.Balance == nil || wire.Balance.Sign() < 0 {
		return Account{}, fmt.Errorf("%w: missing or negative balance", ErrMalformedAccount)
	}
	balance, overflow := uint256.FromBig(wire.Balance)
	if overflow {
		return Account{}, fmt.Errorf("%w: balance overflows uint256", ErrMalformedAccount)
	}
	if len(wire.CodeHash) != common.HashLength {
		return Account{}, fmt.Errorf("%w: code hash length %d", ErrMalformedAccount, len(wire.CodeHash))
	}
	return Account{
		Nonce:       wire.Nonce,
		Balance:     balance,
		StorageRoot: wire.Root,
		CodeHash:    common.BytesToHash(wire.CodeHash),
	}, nil
}
