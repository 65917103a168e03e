package statestore

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKVAdapterNodeRoundTrip(t *testing.T) {
	db := memorydb.New()
	a := NewKVAdapter(db)

	hash := common.HexToHash("0x01")
	has, err := a.HasMptNode(hash)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, a.PutMptNode(hash, []byte("node-bytes"), 42))

	has, err = a.HasMptNode(hash)
	require.NoError(t, err)
	assert.True(t, has)

	data, ok, err := a.GetMptNode(hash)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("node-bytes"), data)
}

func TestKVAdapterCodeRoundTrip(t *testing.T) {
	db := memorydb.New()
	a := NewKVAdapter(db)

	hash := common.HexToHash("0x02")
	has, err := a.HasCode(hash)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, a.PutCode(hash, []byte{}))

	has, err = a.HasCode(hash)
	require.NoError(t, err)
	assert.True(t, has)

	data, ok, err := a.GetCode(hash)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte{}, data)
}

func TestKVAdapterNodeAndCodeDoNotCollide(t *testing.T) {
	db := memorydb.New()
	a := NewKVAdapter(db)

	hash := common.HexToHash("0x03")
	require.NoError(t, a.PutMptNode(hash, []byte("node"), 1))

	has, err := a.HasCode(hash)
	require.NoError(t, err)
	assert.False(t, has, "code and node keyspaces must not collide on the same hash")
}
