package parcel

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/bits-and-blooms/bitset"
	"github.com/pkg/errors"

	"github.com/Layr-Labs/landsale-go/pkg/merkle"
	"github.com/Layr-Labs/landsale-go/pkg/types"
)

// LoadCatalogue reads a JSON array of parcel records from path, preserving file order.
func LoadCatalogue(path string) ([]*types.ParcelRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read catalogue %s", path)
	}
	records, err := ParseCatalogue(data)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse catalogue %s", path)
	}
	return records, nil
}

// ParseCatalogue decodes a JSON array of parcel records.
func ParseCatalogue(data []byte) ([]*types.ParcelRecord, error) {
	var records []*types.ParcelRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("invalid catalogue JSON: %w", err)
	}
	for i, r := range records {
		if r == nil {
			return nil, fmt.Errorf("catalogue entry %d is null", i)
		}
	}
	return records, nil
}

// ValidateCatalogue checks that every record encodes, is quad-aligned, lies on the map,
// and that no two parcels share a cell or an identity.
func ValidateCatalogue(records []*types.ParcelRecord) error {
	if len(records) == 0 {
		return merkle.ErrEmptyCatalogue
	}

	cells := bitset.New(types.GridSize * types.GridSize)
	seen := make(map[types.ParcelID]int, len(records))

	for i, r := range records {
		if _, err := PackLeaf(r); err != nil {
			return fmt.Errorf("catalogue entry %d: %w", i, err)
		}

		size := uint(r.Size)
		x, y := uint(r.X), uint(r.Y)
		if x%size != 0 || y%size != 0 {
			return fmt.Errorf("catalogue entry %d: (%d,%d) is not aligned to size %d", i, x, y, size)
		}
		if x+size > types.GridSize || y+size > types.GridSize {
			return fmt.Errorf("catalogue entry %d: (%d,%d) size %d is outside the %dx%d map", i, x, y, size, types.GridSize, types.GridSize)
		}

		if prev, ok := seen[r.ID()]; ok {
			return fmt.Errorf("catalogue entry %d duplicates entry %d", i, prev)
		}
		seen[r.ID()] = i

		for cy := y; cy < y+size; cy++ {
			for cx := x; cx < x+size; cx++ {
				cell := cx + cy*types.GridSize
				if cells.Test(cell) {
					return fmt.Errorf("catalogue entry %d: cell (%d,%d) overlaps another parcel", i, cx, cy)
				}
				cells.Set(cell)
			}
		}
	}
	return nil
}

// HashCatalogue encodes every record into its leaf digest, in catalogue order.
func HashCatalogue(records []*types.ParcelRecord) ([]types.LeafDigest, error) {
	leaves := make([]types.LeafDigest, len(records))
	for i, r := range records {
		leaf, err := EncodeLeaf(r)
		if err != nil {
			return nil, fmt.Errorf("catalogue entry %d: %w", i, err)
		}
		leaves[i] = leaf
	}
	return leaves, nil
}

// BuildCatalogueTree validates the catalogue and commits it into a merkle tree.
func BuildCatalogueTree(records []*types.ParcelRecord) (*merkle.MerkleTree, error) {
	if err := ValidateCatalogue(records); err != nil {
		return nil, err
	}
	leaves, err := HashCatalogue(records)
	if err != nil {
		return nil, err
	}
	return merkle.BuildMerkleTree(leaves)
}
