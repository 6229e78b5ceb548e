package compile

import (
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMemoSize is the number of rendered fragments a Memo keeps.
const DefaultMemoSize = 512

// Memo caches rendered diagram, music and code fragments for one build. Pages that
// repeat a block (or embed the same snippet) render it once. Failed renders are not
// cached. Memo is safe for concurrent use.
type Memo struct {
	cache  *lru.Cache[string, string]
	hits   atomic.Int64
	misses atomic.Int64
}

// NewMemo returns a Memo holding up to size fragments. A non-positive size uses
// DefaultMemoSize.
func NewMemo(size int) *Memo {
	if size <= 0 {
		size = DefaultMemoSize
	}
	c, err := lru.New[string, string](size)
	if err != nil {
		return nil
	}
	return &Memo{cache: c}
}

// Do returns the cached fragment for (kind, parts...) or calls render and stores its
// result. A nil Memo always calls render.
func (m *Memo) Do(kind string, render func() (string, error), parts ...string) (string, error) {
	if m == nil {
		return render()
	}
	h := sha256.New()
	h.Write([]byte(kind))
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	key := kind + ":" + hex.EncodeToString(h.Sum(nil))
	if v, ok := m.cache.Get(key); ok {
		m.hits.Add(1)
		return v, nil
	}
	m.misses.Add(1)
	v, err := render()
	if err != nil {
		return "", err
	}
	m.cache.Add(key, v)
	return v, nil
}

// Stats returns the hit and miss counts.
func (m *Memo) Stats() (hits, misses int64) {
	if m == nil {
		return 0, 0
	}
	return m.hits.Load(), m.misses.Load()
}
