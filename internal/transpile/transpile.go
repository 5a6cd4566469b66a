// Package transpile implements the Transpiler Registry & Cache (spec.md
// §4.3): fingerprinting source text, consulting a pluggable cache, and
// invoking a registered transpiler on a miss.
package transpile

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/brc-tools/svcrun/internal/svcerr"
)

// Transpiler synchronously compiles source code. Implementations are
// external collaborators per spec.md §6; this package only defines the
// interface and the registry/cache plumbing around it.
type Transpiler interface {
	Compile(source string) (string, error)
}

// Cache maps a fingerprint to previously compiled source. The default
// implementation (MemoryCache) is process-lifetime; RedisCache substitutes
// an external store, per spec.md §3's "the interface permits substitution".
type Cache interface {
	Get(ctx context.Context, fingerprint string) (compiled string, ok bool, err error)
	Put(ctx context.Context, fingerprint, compiled string) error
}

// Fingerprint returns the hex MD5 digest of source, used as the cache key.
// MD5 collisions are acceptable here (spec.md §4.3): this is deduplication,
// not a security boundary.
func Fingerprint(source string) string {
	sum := md5.Sum([]byte(source))
	return hex.EncodeToString(sum[:])
}

// Registry maps a transpiler name (as referenced by internal/language
// Entry.Transpiler) to its Transpiler implementation, and mediates cache
// lookups around each one.
type Registry struct {
	cache       Cache
	transpilers map[string]Transpiler
	flight      singleflight.Group
}

// NewRegistry builds a registry backed by cache. A nil cache defaults to a
// fresh MemoryCache.
func NewRegistry(cache Cache) *Registry {
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Registry{cache: cache, transpilers: make(map[string]Transpiler)}
}

// Register adds (or replaces) the Transpiler for name (e.g. "babel",
// "coffee-script").
func (r *Registry) Register(name string, t Transpiler) {
	r.transpilers[name] = t
}

// Compile resolves compiled source for (transpilerName, source): a cache
// hit skips invoking the transpiler entirely (spec.md §3's invariant "if a
// transpile cache hit occurs, the transpiler is not invoked"); concurrent
// calls for the same fingerprint collapse into a single transpilation via
// singleflight, satisfying spec.md §5's optional single-flight guidance.
func (r *Registry) Compile(ctx context.Context, transpilerName, source string) (string, error) {
	t, ok := r.transpilers[transpilerName]
	if !ok {
		return "", fmt.Errorf("transpile: no transpiler registered for %q", transpilerName)
	}

	fp := Fingerprint(source)

	if cached, hit, err := r.cache.Get(ctx, fp); err != nil {
		return "", fmt.Errorf("transpile: cache get: %w", err)
	} else if hit {
		return cached, nil
	}

	result, err, _ := r.flight.Do(fp, func() (interface{}, error) {
		// Re-check the cache: another invocation may have populated it
		// while we were queued behind the singleflight call for this key.
		if cached, hit, err := r.cache.Get(ctx, fp); err == nil && hit {
			return cached, nil
		}

		compiled, err := t.Compile(source)
		if err != nil {
			return nil, &svcerr.TranspileError{Language: transpilerName, Err: err}
		}
		if err := r.cache.Put(ctx, fp, compiled); err != nil {
			return nil, fmt.Errorf("transpile: cache put: %w", err)
		}
		return compiled, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Has reports whether a transpiler is registered under name.
func (r *Registry) Has(name string) bool {
	_, ok := r.transpilers[name]
	return ok
}
