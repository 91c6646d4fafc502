package testutil

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Layr-Labs/landsale-go/pkg/types"
)

// Addresses used across sale tests
var (
	AdminAddress     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	BuyerAddress     = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	ReservedAddress  = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	RecipientAddress = common.HexToAddress("0x00000000000000000000000000000000000000b3")
)

// TestLands returns the six-parcel catalogue used throughout the sale tests.
// The first parcel is reserved to reservedTo.
func TestLands(reservedTo common.Address) []*types.ParcelRecord {
	return []*types.ParcelRecord{
		{X: 400, Y: 106, Size: 1, Price: "4047", Reserved: types.ReservedTo(reservedTo), Salt: common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111111")},
		{X: 120, Y: 144, Size: 12, Price: "2773", Salt: common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111112")},
		{X: 288, Y: 144, Size: 12, Price: "1358", Salt: common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111113")},
		{X: 36, Y: 114, Size: 6, Price: "3169", Salt: common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111114")},
		{X: 308, Y: 282, Size: 1, Price: "8465", Salt: common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111115")},
		{X: 308, Y: 281, Size: 1, Price: "8465", Salt: common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111116")},
	}
}

// TestLandsJSON is TestLands(ReservedAddress) in catalogue file form
const TestLandsJSON = `[
  {"x": 400, "y": 106, "size": 1, "price": "4047", "reserved": "0x00000000000000000000000000000000000000b2", "salt": "0x1111111111111111111111111111111111111111111111111111111111111111"},
  {"x": 120, "y": 144, "size": 12, "price": "2773", "salt": "0x1111111111111111111111111111111111111111111111111111111111111112"},
  {"x": 288, "y": 144, "size": 12, "price": "1358", "salt": "0x1111111111111111111111111111111111111111111111111111111111111113"},
  {"x": 36, "y": 114, "size": 6, "price": "3169", "salt": "0x1111111111111111111111111111111111111111111111111111111111111114"},
  {"x": 308, "y": 282, "size": 1, "price": "8465", "salt": "0x1111111111111111111111111111111111111111111111111111111111111115"},
  {"x": 308, "y": 281, "size": 1, "price": "8465", "salt": "0x1111111111111111111111111111111111111111111111111111111111111116"}
]`

// TestParcelID returns a distinct parcel identity derived from n
func TestParcelID(n uint16) types.ParcelID {
	return types.ParcelID{X: n, Y: n, Size: 1, Salt: common.BigToHash(big.NewInt(int64(n) + 1))}
}
