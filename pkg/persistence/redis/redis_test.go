package redis

import (
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/landsale-go/pkg/logger"
	"github.com/Layr-Labs/landsale-go/pkg/persistence"
	"github.com/Layr-Labs/landsale-go/pkg/persistence/persistencetest"
	"github.com/Layr-Labs/landsale-go/pkg/testutil"
)

// getTestRedisAddress returns the Redis address for testing.
// Tests are skipped unless REDIS_TEST_ADDRESS is set.
func getTestRedisAddress(t *testing.T) string {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDRESS")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDRESS not set")
	}
	return addr
}

// newTestRedis connects with a unique key prefix so tests never see each other's keys
func newTestRedis(t *testing.T, prefix string) *RedisPersistence {
	t.Helper()

	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	cfg := &RedisConfig{
		Address:   getTestRedisAddress(t),
		DB:        15, // Use DB 15 for tests to avoid conflicts
		KeyPrefix: prefix,
	}

	rp, err := NewRedisPersistence(cfg, testLogger)
	require.NoError(t, err, "Redis not available at %s", cfg.Address)
	return rp
}

func TestRedisPersistence(t *testing.T) {
	getTestRedisAddress(t)

	persistencetest.Run(t, func(t *testing.T) persistence.ISalePersistence {
		return newTestRedis(t, "test-"+uuid.NewString()+":")
	})
}

func TestRedisPersistence_KeyPrefixIsolation(t *testing.T) {
	first := newTestRedis(t, "test-"+uuid.NewString()+":")
	defer func() { _ = first.Close() }()
	second := newTestRedis(t, "test-"+uuid.NewString()+":")
	defer func() { _ = second.Close() }()

	id := testutil.TestParcelID(11)
	created, err := first.MarkSold(&persistence.SoldMarker{ParcelID: id, SoldAt: 1})
	require.NoError(t, err)
	require.True(t, created)

	sold, err := second.IsSold(id)
	require.NoError(t, err)
	assert.False(t, sold)
}

func TestRedisPersistence_SharedPrefixSeesMarker(t *testing.T) {
	prefix := "test-" + uuid.NewString() + ":"
	first := newTestRedis(t, prefix)
	defer func() { _ = first.Close() }()
	second := newTestRedis(t, prefix)
	defer func() { _ = second.Close() }()

	id := testutil.TestParcelID(12)
	created, err := first.MarkSold(&persistence.SoldMarker{ParcelID: id, SoldAt: 1})
	require.NoError(t, err)
	require.True(t, created)

	created, err = second.MarkSold(&persistence.SoldMarker{ParcelID: id, SoldAt: 2})
	require.NoError(t, err)
	assert.False(t, created)
}

func TestNewRedisPersistence_InvalidConfig(t *testing.T) {
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	_, err := NewRedisPersistence(nil, testLogger)
	require.Error(t, err)

	_, err = NewRedisPersistence(&RedisConfig{}, testLogger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address cannot be empty")
}
