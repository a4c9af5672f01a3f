package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextPow2(t *testing.T) {
	cases := map[uint64]uint64{0: 1, 1: 1, 2: 2, 3: 4, 5: 8, 64: 64, 65: 128}
	for in, want := range cases {
		assert.Equal(t, want, NextPow2(in), "NextPow2(%d)", in)
	}
	assert.Equal(t, uint64(1<<63), NextPow2(1<<63+1))
}

func TestShardCount(t *testing.T) {
	assert.Equal(t, 1, ShardCount(1))
	assert.Equal(t, 8, ShardCount(5))
	assert.Equal(t, 256, ShardCount(10_000))

	auto := ShardCount(0)
	assert.GreaterOrEqual(t, auto, 2)
	assert.Zero(t, auto&(auto-1), "auto shard count must be a power of two")
}

func TestShardIndex_StaysInRange(t *testing.T) {
	for _, s := range []string{"", "a", "/api/posts", "prefetch:https://x/y"} {
		idx := ShardIndex(Fnv64a(s), 16)
		assert.GreaterOrEqual(t, idx, 0)
		assert.Less(t, idx, 16)
	}
	assert.Equal(t, 0, ShardIndex(12345, 1))
}

func TestFnv64aHex_FixedWidth(t *testing.T) {
	// FNV-1a of the empty string is the offset basis.
	assert.Equal(t, "cbf29ce484222325", Fnv64aHex(""))
	assert.Equal(t, uint64(0xaf63dc4c8601ec8c), Fnv64a("a"))
	assert.Len(t, Fnv64aHex("/api/posts?page=2"), 16)
	assert.Equal(t, Fnv64aHex("x"), Fnv64aHex("x"))
	assert.NotEqual(t, Fnv64aHex("x"), Fnv64aHex("y"))
}
