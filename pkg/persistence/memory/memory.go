package memory

import (
	"fmt"
	"sync"

	"github.com/Layr-Labs/landsale-go/pkg/persistence"
	"github.com/Layr-Labs/landsale-go/pkg/types"
)

// MemoryPersistence is an in-memory implementation of ISalePersistence.
// This implementation is intended for TESTING ONLY.
//
// All data is stored in memory and will be lost when the process exits.
// Thread-safe using sync.RWMutex for concurrent access.
// Copies markers to prevent external mutation.
type MemoryPersistence struct {
	mu sync.RWMutex

	// Sold markers: parcel key -> marker
	sold map[string]*persistence.SoldMarker

	// Payment rail flags
	rails map[types.PaymentRail]bool

	// Closed flag
	closed bool
}

// NewMemoryPersistence creates a new in-memory persistence layer.
// Prints a loud warning since this should only be used for testing.
func NewMemoryPersistence() *MemoryPersistence {
	fmt.Println("⚠️  WARNING: Using in-memory persistence - ALL SOLD MARKERS WILL BE LOST ON RESTART")
	fmt.Println("⚠️  This should ONLY be used for testing. Set LANDSALE_PERSISTENCE_TYPE=badger for production")

	return &MemoryPersistence{
		sold:  make(map[string]*persistence.SoldMarker),
		rails: make(map[types.PaymentRail]bool),
	}
}

// MarkSold stores the marker unless one already exists for the parcel.
func (m *MemoryPersistence) MarkSold(marker *persistence.SoldMarker) (bool, error) {
	if marker == nil {
		return false, fmt.Errorf("cannot save nil SoldMarker")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, fmt.Errorf("persistence layer is closed")
	}

	key := marker.ParcelID.Key()
	if _, exists := m.sold[key]; exists {
		return false, nil
	}

	copied := *marker
	m.sold[key] = &copied
	return true, nil
}

// UnmarkSold removes a sold marker.
func (m *MemoryPersistence) UnmarkSold(id types.ParcelID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	delete(m.sold, id.Key())
	return nil
}

// IsSold reports whether a marker exists.
func (m *MemoryPersistence) IsSold(id types.ParcelID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return false, fmt.Errorf("persistence layer is closed")
	}

	_, exists := m.sold[id.Key()]
	return exists, nil
}

// LoadSoldMarker retrieves a marker by parcel identity.
func (m *MemoryPersistence) LoadSoldMarker(id types.ParcelID) (*persistence.SoldMarker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	marker, exists := m.sold[id.Key()]
	if !exists {
		return nil, nil // Not found is not an error
	}

	copied := *marker
	return &copied, nil
}

// ListSoldMarkers returns all markers sorted by sale time.
func (m *MemoryPersistence) ListSoldMarkers() ([]*persistence.SoldMarker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	result := make([]*persistence.SoldMarker, 0, len(m.sold))
	for _, marker := range m.sold {
		copied := *marker
		result = append(result, &copied)
	}
	persistence.SortSoldMarkers(result)

	return result, nil
}

// SetRailEnabled stores a rail flag.
func (m *MemoryPersistence) SetRailEnabled(rail types.PaymentRail, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	m.rails[rail] = enabled
	return nil
}

// LoadRailStates returns a copy of the stored rail flags.
func (m *MemoryPersistence) LoadRailStates() (map[types.PaymentRail]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	result := make(map[types.PaymentRail]bool, len(m.rails))
	for rail, enabled := range m.rails {
		result[rail] = enabled
	}
	return result, nil
}

// Close marks the persistence layer as closed.
func (m *MemoryPersistence) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// HealthCheck always succeeds for memory persistence unless closed.
func (m *MemoryPersistence) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	return nil
}
