package authz

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildHierarchy(t *testing.T) {
	h := BuildHierarchy([]Role{
		{Name: "super_admin", Priority: Rank(1), Active: true},
		{Name: "MANAGER", Priority: Rank(3), Active: true},
		{Name: "RETIRED", Priority: Rank(2), Active: false},
		{Name: "GUEST", Active: true},
		{Name: "manager", Priority: Rank(4), Active: true},
		{Name: "  ", Priority: Rank(9), Active: true},
	})

	assert.Equal(t, Hierarchy{"SUPER_ADMIN": 1, "MANAGER": 3, "GUEST": LowestPriority}, h)
	assert.Equal(t, LowestPriority, h.Priority("RETIRED"))
	assert.Equal(t, []string{"SUPER_ADMIN", "MANAGER", "GUEST"}, h.Names())
}

func TestBuildHierarchyKeepsExplicitZeroPriority(t *testing.T) {
	h := BuildHierarchy([]Role{
		{Name: "ROOT", Priority: Rank(0), Active: true},
		{Name: "GUEST", Active: true},
	})

	assert.Equal(t, 0, h.Priority("ROOT"))
	assert.Equal(t, LowestPriority, h.Priority("GUEST"))
	assert.True(t, h.Sufficient("ROOT", "GUEST"))
}

func TestResolveUsesCatalog(t *testing.T) {
	catalog := &fakeCatalog{roles: standardRoles()}
	resolver := NewHierarchyResolver(catalog, nil, quietLogger(), HierarchyConfig{})

	h := resolver.Resolve(context.Background())
	assert.Equal(t, 1, h.Priority("SUPER_ADMIN"))
	assert.Equal(t, 7, h.Priority("USER"))

	// No cache: every call re-reads the catalog.
	resolver.Resolve(context.Background())
	assert.EqualValues(t, 2, catalog.calls.Load())
}

func TestResolveFallbackOnCatalogError(t *testing.T) {
	catalog := &fakeCatalog{err: errors.New("connection refused")}
	resolver := NewHierarchyResolver(catalog, nil, quietLogger(), HierarchyConfig{})

	var h Hierarchy
	require.NotPanics(t, func() { h = resolver.Resolve(context.Background()) })
	assert.Equal(t, Hierarchy{"SUPER_ADMIN": 1}, h)
}

func TestResolveFallbackOnCatalogPanic(t *testing.T) {
	catalog := RoleCatalogFunc(func(ctx context.Context) ([]Role, error) {
		panic("driver exploded")
	})
	resolver := NewHierarchyResolver(catalog, nil, quietLogger(), HierarchyConfig{TopRole: "owner"})

	h := resolver.Resolve(context.Background())
	assert.Equal(t, Hierarchy{"OWNER": 1}, h)
}

func TestResolveFallbackWithoutCatalog(t *testing.T) {
	resolver := NewHierarchyResolver(nil, nil, quietLogger(), HierarchyConfig{})
	assert.Equal(t, Hierarchy{"SUPER_ADMIN": 1}, resolver.Resolve(context.Background()))
}

func TestResolveAppliesCatalogTimeout(t *testing.T) {
	catalog := RoleCatalogFunc(func(ctx context.Context) ([]Role, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	resolver := NewHierarchyResolver(catalog, nil, quietLogger(), HierarchyConfig{Timeout: 10 * time.Millisecond})

	assert.Equal(t, Hierarchy{"SUPER_ADMIN": 1}, resolver.Resolve(context.Background()))
}

func TestResolveCachesWithinTTL(t *testing.T) {
	catalog := &fakeCatalog{roles: standardRoles()}
	cache := &memoryCache{}
	resolver := NewHierarchyResolver(catalog, cache, quietLogger(), HierarchyConfig{CacheTTL: time.Minute})

	first := resolver.Resolve(context.Background())
	second := resolver.Resolve(context.Background())

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, catalog.calls.Load())
	assert.Equal(t, 1, cache.sets)
	assert.Equal(t, time.Minute, cache.ttl)

	// Callers get a copy; mutating it must not poison the cache.
	second["USER"] = 1
	assert.Equal(t, 7, resolver.Resolve(context.Background()).Priority("USER"))
}

func TestResolveDoesNotCacheFallback(t *testing.T) {
	catalog := &fakeCatalog{err: errors.New("down")}
	cache := &memoryCache{}
	resolver := NewHierarchyResolver(catalog, cache, quietLogger(), HierarchyConfig{CacheTTL: time.Minute})

	resolver.Resolve(context.Background())
	assert.Equal(t, 0, cache.sets)
}

func TestResolveIgnoresCanceledRequest(t *testing.T) {
	catalog := RoleCatalogFunc(func(ctx context.Context) ([]Role, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return standardRoles(), nil
	})
	for name, cfg := range map[string]HierarchyConfig{
		"without timeout": {},
		"with timeout":    {Timeout: 2 * time.Second},
	} {
		t.Run(name, func(t *testing.T) {
			resolver := NewHierarchyResolver(catalog, nil, quietLogger(), cfg)

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			assert.Equal(t, 3, resolver.Resolve(ctx).Priority("MANAGER"))
		})
	}
}
