package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Layr-Labs/landsale-go/pkg/persistence"
	"github.com/Layr-Labs/landsale-go/pkg/types"
)

// Key prefixes for namespacing in Redis
const (
	keyPrefixSold        = "landsale:sold:"
	keyRails             = "landsale:rails"
	keySchemaVersion     = "landsale:metadata:schema_version"
	currentSchemaVersion = "v1"

	// Key set for listing operations (Redis doesn't support prefix iteration natively)
	keySetSold = "landsale:sold:index"

	operationTimeout = 5 * time.Second
)

// RedisPersistence shares sold markers between sale processes through Redis.
// Markers are created with SETNX so exactly one process wins each parcel.
type RedisPersistence struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string // Custom prefix for all keys
	mu        sync.RWMutex
	closed    bool
}

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string
	// Password is the optional Redis password
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is an optional custom prefix for all keys, used to run several
	// sale instances against one Redis. "sale2:" yields keys like "sale2:landsale:sold:...".
	KeyPrefix string
}

// NewRedisPersistence creates a new Redis-backed persistence layer.
func NewRedisPersistence(cfg *RedisConfig, logger *zap.Logger) (*RedisPersistence, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}

	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	rp := &RedisPersistence{
		client:    client,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
	}

	if err := rp.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Sugar().Infow("Redis persistence initialized", "address", cfg.Address, "db", cfg.DB, "key_prefix", cfg.KeyPrefix)

	return rp, nil
}

// prefixKey adds the custom key prefix (if configured) to a key
func (r *RedisPersistence) prefixKey(key string) string {
	if r.keyPrefix == "" {
		return key
	}
	return r.keyPrefix + key
}

func (r *RedisPersistence) soldKey(id types.ParcelID) string {
	return r.prefixKey(keyPrefixSold + id.Key())
}

// initSchema initializes or validates the schema version
func (r *RedisPersistence) initSchema(ctx context.Context) error {
	schemaKey := r.prefixKey(keySchemaVersion)

	// SETNX so two processes starting together agree on the version
	if err := r.client.SetNX(ctx, schemaKey, currentSchemaVersion, 0).Err(); err != nil {
		return fmt.Errorf("failed to write schema version: %w", err)
	}

	existingVersion, err := r.client.Get(ctx, schemaKey).Result()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if existingVersion != currentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
	}

	return nil
}

// MarkSold stores the marker with SETNX and records the key in the index set.
func (r *RedisPersistence) MarkSold(marker *persistence.SoldMarker) (bool, error) {
	if marker == nil {
		return false, fmt.Errorf("cannot save nil SoldMarker")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return false, fmt.Errorf("persistence layer is closed")
	}

	data, err := persistence.MarshalSoldMarker(marker)
	if err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	key := r.soldKey(marker.ParcelID)
	created, err := r.client.SetNX(ctx, key, data, 0).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark parcel %s sold: %w", marker.ParcelID, err)
	}
	if !created {
		return false, nil
	}

	if err := r.client.SAdd(ctx, r.prefixKey(keySetSold), marker.ParcelID.Key()).Err(); err != nil {
		// The marker itself is authoritative; a missing index entry only hides it from listings
		r.logger.Sugar().Warnw("Failed to index sold marker", "parcel", marker.ParcelID.Key(), "error", err)
	}

	return true, nil
}

// UnmarkSold removes a sold marker and its index entry
func (r *RedisPersistence) UnmarkSold(id types.ParcelID) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.soldKey(id))
	pipe.SRem(ctx, r.prefixKey(keySetSold), id.Key())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to unmark parcel %s: %w", id, err)
	}

	return nil
}

// IsSold reports whether a marker exists
func (r *RedisPersistence) IsSold(id types.ParcelID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return false, fmt.Errorf("persistence layer is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	n, err := r.client.Exists(ctx, r.soldKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check parcel %s: %w", id, err)
	}
	return n == 1, nil
}

// LoadSoldMarker retrieves a marker by parcel identity
func (r *RedisPersistence) LoadSoldMarker(id types.ParcelID) (*persistence.SoldMarker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	data, err := r.client.Get(ctx, r.soldKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load sold marker: %w", err)
	}

	return persistence.UnmarshalSoldMarker(data)
}

// ListSoldMarkers returns all indexed markers sorted by sale time
func (r *RedisPersistence) ListSoldMarkers() ([]*persistence.SoldMarker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	indexKey := r.prefixKey(keySetSold)
	parcelKeys, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sold parcels: %w", err)
	}

	markers := make([]*persistence.SoldMarker, 0, len(parcelKeys))
	if len(parcelKeys) == 0 {
		return markers, nil
	}

	keys := make([]string, len(parcelKeys))
	for i, pk := range parcelKeys {
		keys[i] = r.prefixKey(keyPrefixSold + pk)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sold markers: %w", err)
	}

	for i, val := range values {
		if val == nil {
			// Key was in index but doesn't exist - clean up index
			r.client.SRem(ctx, indexKey, parcelKeys[i])
			continue
		}

		data, ok := val.(string)
		if !ok {
			r.logger.Sugar().Warnw("Unexpected value type for SoldMarker", "key", keys[i])
			continue
		}

		marker, err := persistence.UnmarshalSoldMarker([]byte(data))
		if err != nil {
			r.logger.Sugar().Warnw("Failed to unmarshal SoldMarker, skipping", "key", keys[i], "error", err)
			continue
		}

		markers = append(markers, marker)
	}

	persistence.SortSoldMarkers(markers)
	return markers, nil
}

// SetRailEnabled stores a rail flag as a field of the rails hash
func (r *RedisPersistence) SetRailEnabled(rail types.PaymentRail, enabled bool) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	if err := r.client.HSet(ctx, r.prefixKey(keyRails), string(rail), persistence.EncodeRailFlag(enabled)).Err(); err != nil {
		return fmt.Errorf("failed to save rail %s: %w", rail, err)
	}

	return nil
}

// LoadRailStates returns every stored rail flag
func (r *RedisPersistence) LoadRailStates() (map[types.PaymentRail]bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	fields, err := r.client.HGetAll(ctx, r.prefixKey(keyRails)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load rail states: %w", err)
	}

	states := make(map[types.PaymentRail]bool, len(fields))
	for rail, raw := range fields {
		enabled, err := persistence.DecodeRailFlag([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("rail %s: %w", rail, err)
		}
		states[types.PaymentRail(rail)] = enabled
	}

	return states, nil
}

// Close closes the Redis client
func (r *RedisPersistence) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil // Already closed, idempotent
	}
	r.closed = true
	r.mu.Unlock()

	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}

	r.logger.Sugar().Info("Redis persistence closed")
	return nil
}

// HealthCheck verifies the persistence layer is operational
func (r *RedisPersistence) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	_, err := r.client.Get(ctx, r.prefixKey(keySchemaVersion)).Result()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("schema version not found - database may not be properly initialized")
	}
	if err != nil {
		return fmt.Errorf("failed to verify schema version: %w", err)
	}

	return nil
}
