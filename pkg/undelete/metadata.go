package undelete

import (
	"context"
	"time"

	"github.com/trashgate/trashgate/pkg/cache"
)

// CachedMetadata fronts a MetadataSource with a TTL cache so the sysmeta reads
// on every intercepted delete do not each cost a backend round trip. A
// container lookup warms the account entry as a side effect. Correctness never
// depends on the cache; a stale read only delays a policy change by at most
// the TTL.
type CachedMetadata struct {
	src        MetadataSource
	accounts   *cache.Cache[map[string]string]
	containers *cache.Cache[map[string]string]
}

var _ MetadataSource = (*CachedMetadata)(nil)

func NewCachedMetadata(src MetadataSource, ttl time.Duration) *CachedMetadata {
	return &CachedMetadata{
		src:        src,
		accounts:   cache.New[map[string]string](cache.WithTTL[map[string]string](ttl)),
		containers: cache.New[map[string]string](cache.WithTTL[map[string]string](ttl)),
	}
}

func (m *CachedMetadata) AccountMetadata(ctx context.Context, token, account string) (map[string]string, error) {
	return m.accounts.GetOrLoad(ctx, account, func(ctx context.Context, _ string) (map[string]string, error) {
		return m.src.AccountMetadata(ctx, token, account)
	})
}

func (m *CachedMetadata) ContainerMetadata(ctx context.Context, token, account, container string) (map[string]string, error) {
	meta, err := m.containers.GetOrLoad(ctx, account+"/"+container, func(ctx context.Context, _ string) (map[string]string, error) {
		return m.src.ContainerMetadata(ctx, token, account, container)
	})
	if err != nil {
		return nil, err
	}

	// Warm the account entry; the policy read that follows is basically free.
	m.AccountMetadata(ctx, token, account)

	return meta, nil
}

// Invalidate drops cached entries for a scope after an administrator writes
// policy through the gateway, so the change is visible immediately.
func (m *CachedMetadata) Invalidate(account, container string) {
	if container == "" {
		m.accounts.Delete(account)
		return
	}
	m.containers.Delete(account + "/" + container)
}
