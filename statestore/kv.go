package statestore

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethdb"
)

// Key prefixes, in the style of core/rawdb's schema constants: one byte
// distinguishing trie nodes from code blobs within a single flat
// keyspace, so a single ethdb.KeyValueStore can back both.
const (
	nodePrefix = byte('n')
	codePrefix = byte('c')
)

// KVAdapter implements Adapter over any go-ethereum ethdb.KeyValueStore
// (memorydb for tests, LevelDB/Pebble in production).
type KVAdapter struct {
	db ethdb.KeyValueStore
}

// NewKVAdapter wraps db as a statestore.Adapter.
func NewKVAdapter(db ethdb.KeyValueStore) *KVAdapter {
	return &KVAdapter{db: db}
}

func nodeKey(hash common.Hash) []byte {
	key := make([]byte, 1+common.HashLength)
	key[0] = nodePrefix
	copy(key[1:], hash[:])
	return key
}

func codeKey(hash common.Hash) []byte {
	key := make([]byte, 1+common.HashLength)
	key[0] = codePrefix
	copy(key[1:], hash[:])
	return key
}

// encodeNodeValue prefixes a trie node's bytes with the block number it
// was synced at, so a pruning/TTL pass can later find the tag without a
// side index.
func encodeNodeValue(blockNumber uint64, data []byte) []byte {
	buf := make([]byte, 8+len(data))
	binary.BigEndian.PutUint64(buf, blockNumber)
	copy(buf[8:], data)
	return buf
}

func decodeNodeValue(raw []byte) []byte {
	if len(raw) < 8 {
		return raw
	}
	return raw[8:]
}

func (a *KVAdapter) HasMptNode(hash common.Hash) (bool, error) {
	return a.db.Has(nodeKey(hash))
}

func (a *KVAdapter) HasCode(hash common.Hash) (bool, error) {
	return a.db.Has(codeKey(hash))
}

func (a *KVAdapter) GetMptNode(hash common.Hash) ([]byte, bool, error) {
	ok, err := a.db.Has(nodeKey(hash))
	if err != nil || !ok {
		return nil, false, err
	}
	raw, err := a.db.Get(nodeKey(hash))
	if err != nil {
		return nil, false, err
	}
	return decodeNodeValue(raw), true, nil
}

func (a *KVAdapter) GetCode(hash common.Hash) ([]byte, bool, error) {
	ok, err := a.db.Has(codeKey(hash))
	if err != nil || !ok {
		return nil, false, err
	}
	data, err := a.db.Get(codeKey(hash))
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (a *KVAdapter) PutMptNode(hash common.Hash, data []byte, blockNumber uint64) error {
	return a.db.Put(nodeKey(hash), encodeNodeValue(blockNumber, data))
}

func (a *KVAdapter) PutCode(hash common.Hash, data []byte) error {
	return a.db.Put(codeKey(hash), data)
}
