package badger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"

	"github.com/Layr-Labs/landsale-go/pkg/persistence"
	"github.com/Layr-Labs/landsale-go/pkg/types"
)

// Key prefixes for namespacing
const (
	keyPrefixSold        = "sold:"
	keyPrefixRail        = "rail:"
	keySchemaVersion     = "metadata:schema_version"
	currentSchemaVersion = "v1"
)

// BadgerPersistence is a durable sale store backed by Badger.
// Sold markers are written in a read-then-set transaction so a parcel is marked at most once.
type BadgerPersistence struct {
	db       *badgerdb.DB
	logger   *zap.Logger
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

// NewBadgerPersistence opens (or creates) a Badger database at dataPath.
// SyncWrites is enabled so an acknowledged sale survives a crash.
// A background goroutine is started for garbage collection.
func NewBadgerPersistence(dataPath string, logger *zap.Logger) (*BadgerPersistence, error) {
	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	opts := badgerdb.DefaultOptions(absPath)
	opts.Logger = newStoreLogger(logger)
	opts.SyncWrites = true
	opts.CompactL0OnClose = true
	opts.NumVersionsToKeep = 1

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", absPath, err)
	}

	bp := &BadgerPersistence{
		db:     db,
		logger: logger,
	}

	if err := bp.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	bp.gcCancel = cancel
	bp.gcWg.Add(1)
	go bp.runGC(ctx)

	logger.Sugar().Infow("Badger persistence initialized", "path", absPath)

	return bp, nil
}

// initSchema initializes or validates the schema version
func (b *BadgerPersistence) initSchema() error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keySchemaVersion))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return txn.Set([]byte(keySchemaVersion), []byte(currentSchemaVersion))
		}
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}

		var existingVersion string
		err = item.Value(func(val []byte) error {
			existingVersion = string(val)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to read schema version value: %w", err)
		}

		if existingVersion != currentSchemaVersion {
			return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
		}

		return nil
	})
}

// runGC runs periodic value log garbage collection in the background
func (b *BadgerPersistence) runGC(ctx context.Context) {
	defer b.gcWg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := b.db.RunValueLogGC(0.5)
			if err != nil && !errors.Is(err, badgerdb.ErrNoRewrite) {
				b.logger.Sugar().Warnw("Badger GC error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func soldKey(id types.ParcelID) []byte {
	return []byte(keyPrefixSold + id.Key())
}

// MarkSold stores the marker unless one already exists for the parcel.
func (b *BadgerPersistence) MarkSold(marker *persistence.SoldMarker) (bool, error) {
	if marker == nil {
		return false, fmt.Errorf("cannot save nil SoldMarker")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return false, fmt.Errorf("persistence layer is closed")
	}

	data, err := persistence.MarshalSoldMarker(marker)
	if err != nil {
		return false, err
	}

	key := soldKey(marker.ParcelID)
	created := false
	err = b.db.Update(func(txn *badgerdb.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badgerdb.ErrKeyNotFound) {
			return fmt.Errorf("failed to read sold marker: %w", err)
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}
		created = true
		return nil
	})
	if errors.Is(err, badgerdb.ErrConflict) {
		// A concurrent transaction touched the same key; whoever committed owns the marker
		return false, b.requireMarker(key)
	}
	if err != nil {
		return false, fmt.Errorf("failed to mark parcel %s sold: %w", marker.ParcelID, err)
	}

	return created, nil
}

// requireMarker confirms a marker exists after losing a write conflict
func (b *BadgerPersistence) requireMarker(key []byte) error {
	return b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get(key)
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return fmt.Errorf("sold marker write conflicted but no marker exists for %s", string(key))
		}
		return err
	})
}

// UnmarkSold removes a sold marker
func (b *BadgerPersistence) UnmarkSold(id types.ParcelID) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	err := b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(soldKey(id))
	})
	if err != nil {
		return fmt.Errorf("failed to unmark parcel %s: %w", id, err)
	}

	return nil
}

// IsSold reports whether a marker exists
func (b *BadgerPersistence) IsSold(id types.ParcelID) (bool, error) {
	marker, err := b.LoadSoldMarker(id)
	if err != nil {
		return false, err
	}
	return marker != nil, nil
}

// LoadSoldMarker retrieves a marker by parcel identity
func (b *BadgerPersistence) LoadSoldMarker(id types.ParcelID) (*persistence.SoldMarker, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	var data []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(soldKey(id))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load sold marker: %w", err)
	}

	return persistence.UnmarshalSoldMarker(data)
}

// ListSoldMarkers returns all markers sorted by sale time
func (b *BadgerPersistence) ListSoldMarkers() ([]*persistence.SoldMarker, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	markers := make([]*persistence.SoldMarker, 0)

	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefixSold)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()

			data, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("failed to read value: %w", err)
			}

			marker, err := persistence.UnmarshalSoldMarker(data)
			if err != nil {
				b.logger.Sugar().Warnw("Failed to unmarshal SoldMarker, skipping",
					"key", string(item.Key()), "error", err)
				continue
			}

			markers = append(markers, marker)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list sold markers: %w", err)
	}

	persistence.SortSoldMarkers(markers)
	return markers, nil
}

// SetRailEnabled stores a rail flag
func (b *BadgerPersistence) SetRailEnabled(rail types.PaymentRail, enabled bool) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	err := b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(keyPrefixRail+string(rail)), persistence.EncodeRailFlag(enabled))
	})
	if err != nil {
		return fmt.Errorf("failed to save rail %s: %w", rail, err)
	}

	return nil
}

// LoadRailStates returns every stored rail flag
func (b *BadgerPersistence) LoadRailStates() (map[types.PaymentRail]bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	states := make(map[types.PaymentRail]bool)

	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefixRail)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()

			data, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("failed to read value: %w", err)
			}

			enabled, err := persistence.DecodeRailFlag(data)
			if err != nil {
				return err
			}

			rail := strings.TrimPrefix(string(item.Key()), keyPrefixRail)
			states[types.PaymentRail(rail)] = enabled
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load rail states: %w", err)
	}

	return states, nil
}

// Close stops GC and closes the database
func (b *BadgerPersistence) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil // Already closed, idempotent
	}
	b.closed = true
	b.mu.Unlock()

	if b.gcCancel != nil {
		b.gcCancel()
	}
	b.gcWg.Wait()

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}

	b.logger.Sugar().Info("Badger persistence closed")
	return nil
}

// HealthCheck verifies the persistence layer is operational
func (b *BadgerPersistence) HealthCheck() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	return b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(keySchemaVersion))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return fmt.Errorf("schema version not found - database may be corrupted")
		}
		return err
	})
}
