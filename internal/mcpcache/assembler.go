package mcpcache

import (
	"context"
	"hash/fnv"
	"strconv"
	"time"

	"github.com/aiworkforme/outreach-engine/internal/collab"
	"github.com/aiworkforme/outreach-engine/internal/model"
)

// CachingAssembler wraps a ContextAssembler with the tool result cache.
// Retrieval context for the same lead and query repeats across bursts of
// inbound messages; within the TTL the upstream assembler is called once.
type CachingAssembler struct {
	inner collab.ContextAssembler
	cache *Cache
}

// NewCachingAssembler wraps inner with a TTL cache.
func NewCachingAssembler(inner collab.ContextAssembler, ttl time.Duration) *CachingAssembler {
	return &CachingAssembler{
		inner: inner,
		cache: NewCache(ttl),
	}
}

// BuildContext serves from cache or delegates to the wrapped assembler.
func (a *CachingAssembler) BuildContext(ctx context.Context, lead *model.Lead, ws *model.Workspace, query string) (string, error) {
	key := contextKey(lead.ID, query)
	return a.cache.GetOrFetch(ctx, key, func(ctx context.Context) (string, error) {
		return a.inner.BuildContext(ctx, lead, ws, query)
	})
}

// contextKey hashes the query so arbitrary message text stays out of map keys.
func contextKey(leadID, query string) string {
	h := fnv.New64a()
	h.Write([]byte(query))
	return leadID + ":" + strconv.FormatUint(h.Sum64(), 16)
}
