package registry

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-leads/core"
)

const accountCacheKeyPrefix = "go-leads::integration_account::v1"

type cachedAccount struct {
	Account core.IntegrationAccount
	Found   bool
}

// CachedLookup fronts account reads with a cache so every webhook delivery
// does not round-trip to the store. Writes go through the underlying store;
// Invalidate must be called after any account mutation.
type CachedLookup struct {
	base  Lookup
	cache repositorycache.CacheService
}

func NewCachedLookup(base Lookup, cacheService repositorycache.CacheService) (*CachedLookup, error) {
	if base == nil {
		return nil, fmt.Errorf("registry: base account lookup is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("registry: cache service is required")
	}
	return &CachedLookup{base: base, cache: cacheService}, nil
}

// AccountCacheKey returns the deterministic cache key contract for account
// reads: go-leads::integration_account::v1::<tenant>::<provider>::<external>
// with each segment URL-path escaped.
func AccountCacheKey(tenantID, providerID, externalID string) (string, error) {
	segments := []string{
		strings.TrimSpace(tenantID),
		strings.TrimSpace(strings.ToLower(providerID)),
		strings.TrimSpace(externalID),
	}
	for i, segment := range segments {
		if segment == "" {
			return "", fmt.Errorf("registry: cache key segment %d is empty", i)
		}
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(append([]string{accountCacheKeyPrefix}, segments...), "::"), nil
}

func (l *CachedLookup) GetByExternalID(
	ctx context.Context,
	tenantID string,
	providerID string,
	externalID string,
) (core.IntegrationAccount, bool, error) {
	if l == nil || l.base == nil || l.cache == nil {
		return core.IntegrationAccount{}, false, fmt.Errorf("registry: cached account lookup is not configured")
	}
	cacheKey, err := AccountCacheKey(tenantID, providerID, externalID)
	if err != nil {
		return core.IntegrationAccount{}, false, err
	}

	entry, err := repositorycache.GetOrFetch(ctx, l.cache, cacheKey, func(ctx context.Context) (cachedAccount, error) {
		account, found, fetchErr := l.base.GetByExternalID(ctx, tenantID, providerID, externalID)
		if fetchErr != nil {
			return cachedAccount{}, fetchErr
		}
		return cachedAccount{Account: account, Found: found}, nil
	})
	if err != nil {
		return core.IntegrationAccount{}, false, err
	}
	return entry.Account, entry.Found, nil
}

func (l *CachedLookup) Invalidate(ctx context.Context, tenantID, providerID, externalID string) error {
	if l == nil || l.cache == nil {
		return fmt.Errorf("registry: cached account lookup is not configured")
	}
	cacheKey, err := AccountCacheKey(tenantID, providerID, externalID)
	if err != nil {
		return err
	}
	return l.cache.Delete(ctx, cacheKey)
}

var _ Lookup = (*CachedLookup)(nil)
