package resolvermodule

import (
	"context"
	stderrors "errors"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/tunegrab/tunegrab/internal/errors"
	"github.com/tunegrab/tunegrab/internal/events"
	"github.com/tunegrab/tunegrab/internal/logger"
	"github.com/tunegrab/tunegrab/internal/types"
)

// searchCost is the advisory quota estimate for one primary search call,
// matching the provider's published cost for a search request.
const searchCost = 100

// Resolver walks the resolution state machine for one track identity:
// Searching with the pool's current key, rotating on quota exhaustion or
// key failure, falling back to extraction when the pool runs dry.
type Resolver struct {
	pool     *CredentialPool
	primary  PrimarySearcher
	fallback FallbackExtractor
	cache    *lru.Cache[string, types.SourceReference]
}

// NewResolver wires a resolver over its collaborators.
func NewResolver(pool *CredentialPool, primary PrimarySearcher, fallback FallbackExtractor, cache *lru.Cache[string, types.SourceReference]) *Resolver {
	return &Resolver{
		pool:     pool,
		primary:  primary,
		fallback: fallback,
		cache:    cache,
	}
}

// Resolve finds a playable source for the identity. Quota rejections
// cool the key and rotate; any other primary failure also rotates so one
// bad key never stalls the resolution. When the whole pool is cooling the
// fallback engine gets exactly one shot; after that the resolution is
// exhausted.
func (r *Resolver) Resolve(ctx context.Context, identity types.TrackIdentity) (*types.SourceReference, error) {
	cacheKey := identity.ExternalMatchID
	if cacheKey == "" {
		cacheKey = identity.Query()
	}
	if r.cache != nil {
		if ref, ok := r.cache.Get(cacheKey); ok {
			logger.Debug("resolution cache hit", []logger.Field{logger.String("cache_key", cacheKey)})
			return &ref, nil
		}
	}

	ref, err := r.searchPrimary(ctx, identity)
	if err == nil && ref != nil {
		r.cacheAdd(cacheKey, *ref)
		publish(events.EventSourceResolved, identity, map[string]interface{}{
			"provider_track_id": ref.ProviderTrackID,
			"method":            string(ref.ResolutionMethod),
		})
		return ref, nil
	}
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}

	publish(events.EventFallbackEngaged, identity, nil)

	ref, fbErr := r.fallback.Extract(ctx, identity.Query())
	if fbErr != nil || ref == nil {
		return nil, errors.NewNoSourceFound(identity.Title, identity.Artist)
	}

	r.cacheAdd(cacheKey, *ref)
	publish(events.EventSourceResolved, identity, map[string]interface{}{
		"provider_track_id": ref.ProviderTrackID,
		"method":            string(ref.ResolutionMethod),
	})
	return ref, nil
}

func (r *Resolver) cacheAdd(key string, ref types.SourceReference) {
	if r.cache != nil {
		r.cache.Add(key, ref)
	}
}

// searchPrimary runs the rotation loop over the credential pool. Each key
// is tried at most once per resolution, so exhaustion terminates instead
// of looping; the caller then decides on fallback.
func (r *Resolver) searchPrimary(ctx context.Context, identity types.TrackIdentity) (*types.SourceReference, error) {
	tried := make(map[string]bool)
	cred, ok := r.pool.Current()

	for ok && !tried[cred.KeyID] {
		tried[cred.KeyID] = true
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		ref, err := r.primary.Search(ctx, cred, identity)
		r.pool.RecordUsage(cred.KeyID, searchCost)

		switch {
		case err == nil:
			return ref, nil

		case stderrors.Is(err, ErrNoResults):
			// A different key would return the same empty result set.
			return nil, err

		case stderrors.Is(err, ErrQuotaExceeded):
			r.pool.MarkExhausted(cred.KeyID)
			publish(events.EventKeyRotated, identity, map[string]interface{}{
				"key_id": cred.KeyID,
				"reason": "quota_exceeded",
			})

		default:
			// Single-key failure. Rotate rather than abort so one bad key
			// does not stall the whole resolution.
			logger.Warn("primary search failed on key", []logger.Field{
				logger.String("key_id", cred.KeyID),
				logger.Err(err),
			})
			publish(events.EventKeyRotated, identity, map[string]interface{}{
				"key_id": cred.KeyID,
				"reason": "request_failed",
			})
		}

		cred, ok = r.pool.Advance(cred.KeyID)
	}

	return nil, nil
}

func publish(eventType events.EventType, identity types.TrackIdentity, data map[string]interface{}) {
	bus := events.GetGlobalEventBus()
	if bus == nil {
		return
	}
	bus.PublishAsync(events.Event{
		Type:   eventType,
		Source: ModuleID,
		Title:  identity.Query(),
		Data:   data,
	})
}
