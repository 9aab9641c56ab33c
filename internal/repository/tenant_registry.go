// Package repository implements the persistence-backed services
// (TenantRegistry, SessionStore, QuotaGuard, DocumentStore, ChatMemory)
// against Postgres via GORM: an interface-returning constructor wrapping a
// *gorm.DB, sentinel not-found errors, and gorm.ErrRecordNotFound
// translation.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/redis/go-redis/v9"
	"github.com/veridesk/platform/internal/logger"
	"github.com/veridesk/platform/internal/types"
	"github.com/veridesk/platform/internal/types/interfaces"
	"gorm.io/gorm"
)

// ErrTenantNotFound is returned when a channel key resolves to no tenant.
var ErrTenantNotFound = errors.New("tenant not found")

// configCacheEntry is one cached, version-stamped TenantConfig. The version
// token distinguishes a cache hit from a row that has since been saved
// with a new configuration.
type configCacheEntry struct {
	config    *types.TenantConfig
	version   int64
	fetchedAt time.Time
}

// tenantRegistry implements interfaces.TenantRegistry with a soft-TTL
// in-process config cache layered over the tenants/tenant_channel_keys/
// tenant_configs/global_configs tables, backed by an optional Redis
// lookaside cache so a fetch on one replica is visible to every other
// replica's in-process cache miss instead of each one hitting Postgres
// independently.
type tenantRegistry struct {
	db    *gorm.DB
	redis *redis.Client
	ttl   time.Duration

	mu    sync.RWMutex
	cache map[uint64]configCacheEntry
}

var _ interfaces.TenantRegistry = (*tenantRegistry)(nil)

// tenantConfigCachePrefix namespaces this registry's keys in the shared
// Redis instance asynq's broker also runs against.
const tenantConfigCachePrefix = "veridesk:tenant_config:"

// tenantConfigCacheValue is the JSON envelope stored in Redis, pairing the
// config with its version token the same way configCacheEntry does
// in-process.
type tenantConfigCacheValue struct {
	Config  *types.TenantConfig `json:"config"`
	Version int64               `json:"version"`
}

// NewTenantRegistry builds a TenantRegistry with config entries cached for
// ttl before being re-fetched from the database. redisClient may be nil,
// in which case caching is purely in-process.
func NewTenantRegistry(db *gorm.DB, redisClient *redis.Client, ttl time.Duration) interfaces.TenantRegistry {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &tenantRegistry{db: db, redis: redisClient, ttl: ttl, cache: make(map[uint64]configCacheEntry)}
}

// Resolve maps a channel-native identifier to a tenant id. An unknown
// (channel, channelKey) pair is not an error: callers treat it as "unknown
// tenant, ignore".
func (r *tenantRegistry) Resolve(ctx context.Context, channel, channelKey string) (uint64, bool, error) {
	var row types.TenantChannelKey
	err := r.db.WithContext(ctx).
		Where("channel = ? AND channel_key = ?", channel, channelKey).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return row.TenantID, true, nil
}

// LoadConfig returns the tenant's merged configuration bundle and its
// version token, serving a cached copy while it is within ttl.
func (r *tenantRegistry) LoadConfig(ctx context.Context, tenantID uint64) (*types.TenantConfig, int64, error) {
	r.mu.RLock()
	entry, ok := r.cache[tenantID]
	r.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < r.ttl {
		return entry.config, entry.version, nil
	}

	if cfg, version, ok := r.fetchFromRedis(ctx, tenantID); ok {
		r.mu.Lock()
		r.cache[tenantID] = configCacheEntry{config: cfg, version: version, fetchedAt: time.Now()}
		r.mu.Unlock()
		return cfg, version, nil
	}

	cfg, version, err := r.fetch(ctx, tenantID)
	if err != nil {
		return nil, 0, err
	}

	r.mu.Lock()
	r.cache[tenantID] = configCacheEntry{config: cfg, version: version, fetchedAt: time.Now()}
	r.mu.Unlock()
	r.storeInRedis(ctx, tenantID, cfg, version)
	return cfg, version, nil
}

// fetchFromRedis returns the shared cache entry for tenantID, if present
// and decodable; a miss or a disabled redis client is reported as ok=false
// so the caller falls back to Postgres, never as an error.
func (r *tenantRegistry) fetchFromRedis(ctx context.Context, tenantID uint64) (*types.TenantConfig, int64, bool) {
	if r.redis == nil {
		return nil, 0, false
	}
	raw, err := r.redis.Get(ctx, r.redisKey(tenantID)).Bytes()
	if err != nil {
		return nil, 0, false
	}
	var cached tenantConfigCacheValue
	if err := json.Unmarshal(raw, &cached); err != nil || cached.Config == nil {
		return nil, 0, false
	}
	return cached.Config, cached.Version, true
}

// storeInRedis writes cfg through to the shared cache; failures are logged
// and otherwise ignored, since Postgres remains the source of truth.
func (r *tenantRegistry) storeInRedis(ctx context.Context, tenantID uint64, cfg *types.TenantConfig, version int64) {
	if r.redis == nil {
		return
	}
	raw, err := json.Marshal(tenantConfigCacheValue{Config: cfg, Version: version})
	if err != nil {
		return
	}
	if err := r.redis.Set(ctx, r.redisKey(tenantID), raw, 2*r.ttl).Err(); err != nil {
		logger.Warnf(ctx, "[TenantRegistry] failed to cache config for tenant %d in redis: %v", tenantID, err)
	}
}

func (r *tenantRegistry) redisKey(tenantID uint64) string {
	return fmt.Sprintf("%s%d", tenantConfigCachePrefix, tenantID)
}

// fetch merges the tenant's own config row over the single global_configs
// override row.
func (r *tenantRegistry) fetch(ctx context.Context, tenantID uint64) (*types.TenantConfig, int64, error) {
	merged := map[string]interface{}{}

	var global types.GlobalConfig
	if err := r.db.WithContext(ctx).First(&global).Error; err == nil {
		_ = json.Unmarshal(global.Config, &merged)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, 0, err
	}

	var record types.TenantConfigRecord
	err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&record).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		// no tenant-specific override; fall through with only the global
		// layer (version 0 — nothing to invalidate against).
	case err != nil:
		return nil, 0, err
	default:
		var tenantLayer map[string]interface{}
		if err := json.Unmarshal(record.Config, &tenantLayer); err == nil {
			for k, v := range tenantLayer {
				merged[k] = v
			}
		}
	}

	var cfg types.TenantConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		TagName:          "json",
	})
	if err != nil {
		return nil, 0, err
	}
	if err := decoder.Decode(merged); err != nil {
		return nil, 0, err
	}

	return &cfg, record.Version, nil
}

// InvalidateConfig drops the cached entry for tenantID, both in-process
// and in the shared Redis cache, so the next LoadConfig call on any
// replica re-fetches and re-versions it from Postgres.
func (r *tenantRegistry) InvalidateConfig(tenantID uint64) {
	r.mu.Lock()
	delete(r.cache, tenantID)
	r.mu.Unlock()

	if r.redis == nil {
		return
	}
	if err := r.redis.Del(context.Background(), r.redisKey(tenantID)).Err(); err != nil {
		logger.Warnf(context.Background(), "[TenantRegistry] failed to invalidate redis cache for tenant %d: %v", tenantID, err)
	}
}
