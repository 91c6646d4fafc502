package types

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// GridSize is the width (and height) of the land map in unit cells.
const GridSize = 408

// Permitted parcel sizes. A parcel of size N covers an N x N block of cells.
var AllowedSizes = []uint8{1, 3, 6, 12, 24}

// IsAllowedSize reports whether size is one of AllowedSizes
func IsAllowedSize(size uint8) bool {
	for _, s := range AllowedSizes {
		if s == size {
			return true
		}
	}
	return false
}

// LeafDigest is the keccak256 hash of one parcel's canonical encoding
type LeafDigest = common.Hash

// Reservation is either Unreserved or ReservedTo(address).
// The zero value is Unreserved.
type Reservation struct {
	address  common.Address
	reserved bool
}

// Unreserved returns a reservation that allows any buyer
func Unreserved() Reservation {
	return Reservation{}
}

// ReservedTo returns a reservation restricted to addr.
// The zero address encodes identically to no reservation, so it yields Unreserved.
func ReservedTo(addr common.Address) Reservation {
	if addr == (common.Address{}) {
		return Unreserved()
	}
	return Reservation{address: addr, reserved: true}
}

// IsReserved reports whether the parcel is restricted to a single address
func (r Reservation) IsReserved() bool {
	return r.reserved
}

// Address returns the reserved address and true, or the zero address and false
func (r Reservation) Address() (common.Address, bool) {
	return r.address, r.reserved
}

// EncodedAddress is the 20-byte value committed into the leaf
func (r Reservation) EncodedAddress() common.Address {
	return r.address
}

func (r Reservation) String() string {
	if !r.reserved {
		return "unreserved"
	}
	return "reserved:" + r.address.Hex()
}

// MarshalJSON encodes an unreserved parcel as null and a reserved one as its address
func (r Reservation) MarshalJSON() ([]byte, error) {
	if !r.reserved {
		return []byte("null"), nil
	}
	return json.Marshal(r.address)
}

// UnmarshalJSON accepts null, an empty string, or a hex address
func (r *Reservation) UnmarshalJSON(data []byte) error {
	if string(data) == "null" || string(data) == `""` {
		*r = Unreserved()
		return nil
	}
	var addr common.Address
	if err := json.Unmarshal(data, &addr); err != nil {
		return fmt.Errorf("invalid reserved address: %w", err)
	}
	*r = ReservedTo(addr)
	return nil
}

// ParcelRecord is one entry of the sale catalogue
type ParcelRecord struct {
	X        uint16      `json:"x"`
	Y        uint16      `json:"y"`
	Size     uint8       `json:"size"`
	Price    string      `json:"price"` // decimal, must fit in uint256
	Reserved Reservation `json:"reserved"`
	Salt     common.Hash `json:"salt"`
}

// ID returns the identity used for the sold marker
func (p ParcelRecord) ID() ParcelID {
	return ParcelID{X: p.X, Y: p.Y, Size: p.Size, Salt: p.Salt}
}

// TopCornerID is the land token id of the parcel's anchor cell
func (p ParcelRecord) TopCornerID() uint64 {
	return uint64(p.X) + uint64(p.Y)*GridSize
}

// ParcelID identifies a parcel for sold-marker purposes
type ParcelID struct {
	X    uint16      `json:"x"`
	Y    uint16      `json:"y"`
	Size uint8       `json:"size"`
	Salt common.Hash `json:"salt"`
}

// Key is the canonical string form used as a storage key
func (id ParcelID) Key() string {
	return fmt.Sprintf("%d:%d:%d:%s", id.X, id.Y, id.Size, id.Salt.Hex())
}

// ParseParcelID is the inverse of Key
func ParseParcelID(key string) (ParcelID, error) {
	var (
		id   ParcelID
		salt string
	)
	if _, err := fmt.Sscanf(key, "%d:%d:%d:%s", &id.X, &id.Y, &id.Size, &salt); err != nil {
		return ParcelID{}, fmt.Errorf("invalid parcel key %q: %w", key, err)
	}
	if len(salt) != 66 {
		return ParcelID{}, fmt.Errorf("invalid parcel key %q: bad salt", key)
	}
	id.Salt = common.HexToHash(salt)
	return id, nil
}

func (id ParcelID) String() string {
	return id.Key()
}
