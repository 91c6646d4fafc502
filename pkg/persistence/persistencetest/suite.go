// Package persistencetest holds the behaviour every ISalePersistence backend must share.
package persistencetest

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/landsale-go/pkg/persistence"
	"github.com/Layr-Labs/landsale-go/pkg/testutil"
	"github.com/Layr-Labs/landsale-go/pkg/types"
)

// Factory returns a fresh, empty backend. The suite closes it.
type Factory func(t *testing.T) persistence.ISalePersistence

func newMarker(id types.ParcelID, soldAt int64) *persistence.SoldMarker {
	return &persistence.SoldMarker{
		ParcelID:   id,
		PurchaseID: "purchase-" + id.Key(),
		Buyer:      testutil.BuyerAddress,
		Recipient:  testutil.RecipientAddress,
		SoldAt:     soldAt,
	}
}

// Run executes the shared backend tests
func Run(t *testing.T, newStore Factory) {
	t.Run("MarkAndLoad", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		id := testutil.TestParcelID(1)
		marker := newMarker(id, 100)

		created, err := store.MarkSold(marker)
		require.NoError(t, err)
		assert.True(t, created)

		sold, err := store.IsSold(id)
		require.NoError(t, err)
		assert.True(t, sold)

		loaded, err := store.LoadSoldMarker(id)
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, marker, loaded)
	})

	t.Run("MarkTwice", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		id := testutil.TestParcelID(2)
		created, err := store.MarkSold(newMarker(id, 100))
		require.NoError(t, err)
		require.True(t, created)

		second := newMarker(id, 200)
		second.Buyer = common.HexToAddress("0x00000000000000000000000000000000000000ff")
		created, err = store.MarkSold(second)
		require.NoError(t, err)
		assert.False(t, created)

		loaded, err := store.LoadSoldMarker(id)
		require.NoError(t, err)
		assert.Equal(t, int64(100), loaded.SoldAt, "first marker must be kept")
	})

	t.Run("NotFound", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		id := testutil.TestParcelID(3)
		sold, err := store.IsSold(id)
		require.NoError(t, err)
		assert.False(t, sold)

		loaded, err := store.LoadSoldMarker(id)
		require.NoError(t, err)
		assert.Nil(t, loaded)
	})

	t.Run("MarkNil", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		_, err := store.MarkSold(nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nil SoldMarker")
	})

	t.Run("Unmark", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		id := testutil.TestParcelID(4)
		_, err := store.MarkSold(newMarker(id, 100))
		require.NoError(t, err)

		require.NoError(t, store.UnmarkSold(id))
		sold, err := store.IsSold(id)
		require.NoError(t, err)
		assert.False(t, sold)

		// Idempotent
		require.NoError(t, store.UnmarkSold(id))

		created, err := store.MarkSold(newMarker(id, 300))
		require.NoError(t, err)
		assert.True(t, created, "parcel can be marked again after compensation")
	})

	t.Run("List", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		empty, err := store.ListSoldMarkers()
		require.NoError(t, err)
		assert.Empty(t, empty)

		for i, soldAt := range []int64{30, 10, 20} {
			_, err := store.MarkSold(newMarker(testutil.TestParcelID(uint16(10+i)), soldAt))
			require.NoError(t, err)
		}

		markers, err := store.ListSoldMarkers()
		require.NoError(t, err)
		require.Len(t, markers, 3)
		assert.Equal(t, int64(10), markers[0].SoldAt)
		assert.Equal(t, int64(20), markers[1].SoldAt)
		assert.Equal(t, int64(30), markers[2].SoldAt)
	})

	t.Run("Rails", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		states, err := store.LoadRailStates()
		require.NoError(t, err)
		assert.Empty(t, states)

		require.NoError(t, store.SetRailEnabled(types.RailETH, true))
		require.NoError(t, store.SetRailEnabled(types.RailDAI, false))
		require.NoError(t, store.SetRailEnabled(types.RailETH, false))

		states, err = store.LoadRailStates()
		require.NoError(t, err)
		assert.Equal(t, map[types.PaymentRail]bool{types.RailETH: false, types.RailDAI: false}, states)
	})

	t.Run("ConcurrentMarkSold", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		id := testutil.TestParcelID(42)
		const numGoroutines = 16
		var (
			wg      sync.WaitGroup
			winners atomic.Int32
		)
		for i := 0; i < numGoroutines; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				created, err := store.MarkSold(newMarker(id, int64(n)))
				assert.NoError(t, err)
				if created {
					winners.Add(1)
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int32(1), winners.Load())
	})

	t.Run("Closed", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.HealthCheck())
		require.NoError(t, store.Close())
		require.NoError(t, store.Close(), "close must be idempotent")

		_, err := store.MarkSold(newMarker(testutil.TestParcelID(5), 1))
		require.Error(t, err)
		_, err = store.IsSold(testutil.TestParcelID(5))
		require.Error(t, err)
		_, err = store.ListSoldMarkers()
		require.Error(t, err)
		require.Error(t, store.SetRailEnabled(types.RailETH, true))
		require.Error(t, store.HealthCheck())
	})
}
