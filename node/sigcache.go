package node

import (
	"encoding/binary"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"quantumcoin.dev/node/crypto"
)

// SigCache remembers signatures that already verified so that a
// transaction checked by the mempool is not verified again when its block
// is assembled and applied. Only successful verifications are cached.
type SigCache struct {
	inner  crypto.Verifier
	cache  *lru.Cache[[32]byte, struct{}]
	hits   atomic.Uint64
	misses atomic.Uint64
}

func NewSigCache(size int, inner crypto.Verifier) (*SigCache, error) {
	if inner == nil {
		inner = crypto.StdCryptoProvider{}
	}
	c, err := lru.New[[32]byte, struct{}](size)
	if err != nil {
		return nil, err
	}
	return &SigCache{inner: inner, cache: c}, nil
}

func sigCacheKey(pubkey, msg, sig []byte) [32]byte {
	buf := make([]byte, 0, 12+len(pubkey)+len(msg)+len(sig))
	for _, part := range [][]byte{pubkey, msg, sig} {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(part))) // #nosec G115 -- inputs are size-checked by the validator.
		buf = append(buf, part...)
	}
	return crypto.Hash(buf)
}

func (c *SigCache) VerifyDilithium2(pubkey, msg, sig []byte) bool {
	key := sigCacheKey(pubkey, msg, sig)
	if c.cache.Contains(key) {
		c.hits.Add(1)
		return true
	}
	c.misses.Add(1)
	if !c.inner.VerifyDilithium2(pubkey, msg, sig) {
		return false
	}
	c.cache.Add(key, struct{}{})
	return true
}

// Stats returns cache hits and misses since creation.
func (c *SigCache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *SigCache) Len() int { return c.cache.Len() }
