package persistence

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Layr-Labs/landsale-go/pkg/types"
)

// SoldMarker records that a parcel identity has been sold.
// A parcel identity may carry at most one marker.
type SoldMarker struct {
	ParcelID types.ParcelID `json:"parcelId"`

	// PurchaseID links the marker to the emitted authorization result
	PurchaseID string `json:"purchaseId"`

	Buyer     common.Address `json:"buyer"`
	Recipient common.Address `json:"recipient"`

	// SoldAt is the unix timestamp of the authorization
	SoldAt int64 `json:"soldAt"`
}

// SortSoldMarkers orders markers by SoldAt, breaking ties by parcel key
func SortSoldMarkers(markers []*SoldMarker) {
	sort.Slice(markers, func(i, j int) bool {
		if markers[i].SoldAt != markers[j].SoldAt {
			return markers[i].SoldAt < markers[j].SoldAt
		}
		return markers[i].ParcelID.Key() < markers[j].ParcelID.Key()
	})
}
