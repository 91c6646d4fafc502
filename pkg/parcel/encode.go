package parcel

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/Layr-Labs/landsale-go/pkg/types"
)

// EncodedLeafLength is the size of a packed leaf:
// x, y, size, price as 32-byte words, 20 bytes of reserved address, 32 bytes of salt.
const EncodedLeafLength = 32*4 + 20 + 32

// ErrEncoding matches every *EncodingError via errors.Is
var ErrEncoding = errors.New("parcel encoding error")

// EncodingError reports a record field outside its declared range
type EncodingError struct {
	Field  string
	Reason string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("invalid parcel %s: %s", e.Field, e.Reason)
}

func (e *EncodingError) Is(target error) bool {
	return target == ErrEncoding
}

// ParsePrice parses a decimal price string into a uint256.
func ParsePrice(price string) (*uint256.Int, error) {
	if price == "" {
		return nil, &EncodingError{Field: "price", Reason: "empty"}
	}
	if strings.HasPrefix(price, "+") || strings.HasPrefix(price, "-") {
		return nil, &EncodingError{Field: "price", Reason: fmt.Sprintf("%q must be an unsigned decimal", price)}
	}
	v, err := uint256.FromDecimal(price)
	if err != nil {
		return nil, &EncodingError{Field: "price", Reason: fmt.Sprintf("%q: %v", price, err)}
	}
	return v, nil
}

// PackLeaf returns the canonical byte layout of a record, equivalent to
// abi.encodePacked(uint256 x, uint256 y, uint256 size, uint256 price, address reserved, bytes32 salt).
func PackLeaf(rec *types.ParcelRecord) ([]byte, error) {
	if rec == nil {
		return nil, &EncodingError{Field: "record", Reason: "nil"}
	}
	if !types.IsAllowedSize(rec.Size) {
		return nil, &EncodingError{Field: "size", Reason: fmt.Sprintf("%d not in %v", rec.Size, types.AllowedSizes)}
	}
	price, err := ParsePrice(rec.Price)
	if err != nil {
		return nil, err
	}

	data := make([]byte, 0, EncodedLeafLength)
	for _, word := range []*uint256.Int{
		uint256.NewInt(uint64(rec.X)),
		uint256.NewInt(uint64(rec.Y)),
		uint256.NewInt(uint64(rec.Size)),
		price,
	} {
		b := word.Bytes32()
		data = append(data, b[:]...)
	}
	reserved := rec.Reserved.EncodedAddress()
	data = append(data, reserved.Bytes()...)
	data = append(data, rec.Salt.Bytes()...)

	return data, nil
}

// EncodeLeaf hashes the packed record with keccak256.
// Catalogue construction and purchase verification must both go through here.
func EncodeLeaf(rec *types.ParcelRecord) (types.LeafDigest, error) {
	data, err := PackLeaf(rec)
	if err != nil {
		return types.LeafDigest{}, err
	}
	return crypto.Keccak256Hash(data), nil
}
