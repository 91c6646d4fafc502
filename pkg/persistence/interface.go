package persistence

import "github.com/Layr-Labs/landsale-go/pkg/types"

// ISalePersistence persists the mutable state of one sale instance.
// All implementations must be thread-safe as purchase attempts are concurrent.
//
// The interface supports:
// - Sold markers (atomic mark, compensating unmark, lookup, list)
// - Payment rail flags (set, load)
// - Lifecycle management (close, health check)
type ISalePersistence interface {
	// Sold Markers

	// MarkSold records marker.ParcelID as sold if it is not already.
	// Returns true when this call created the marker and false when a marker already existed.
	// The check and the write are atomic with respect to other MarkSold calls for the same parcel.
	MarkSold(marker *SoldMarker) (bool, error)

	// UnmarkSold removes a sold marker. Used only to compensate a purchase whose
	// payment or transfer failed after authorization.
	// Idempotent - returns nil if no marker exists.
	UnmarkSold(id types.ParcelID) error

	// IsSold reports whether a marker exists for id.
	IsSold(id types.ParcelID) (bool, error)

	// LoadSoldMarker returns the marker for id.
	// Returns nil if the parcel is not sold, error only on storage failure.
	LoadSoldMarker(id types.ParcelID) (*SoldMarker, error)

	// ListSoldMarkers returns all markers sorted by SoldAt, then parcel key.
	// Returns empty slice if nothing is sold, error only on storage failure.
	ListSoldMarkers() ([]*SoldMarker, error)

	// Payment Rails

	// SetRailEnabled stores the enabled flag for a payment rail.
	SetRailEnabled(rail types.PaymentRail, enabled bool) error

	// LoadRailStates returns every stored rail flag.
	// Rails never set are absent from the map.
	LoadRailStates() (map[types.PaymentRail]bool, error)

	// Lifecycle Management

	// Close cleanly shuts down the persistence layer.
	// Idempotent - safe to call multiple times.
	// After Close(), all other operations should return errors.
	Close() error

	// HealthCheck verifies the persistence layer is operational.
	HealthCheck() error
}
