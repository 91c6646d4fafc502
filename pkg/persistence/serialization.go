package persistence

import (
	"encoding/json"
	"fmt"
)

// MarshalSoldMarker serializes a SoldMarker to JSON bytes.
func MarshalSoldMarker(m *SoldMarker) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("cannot marshal nil SoldMarker")
	}

	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal SoldMarker to JSON: %w", err)
	}

	return data, nil
}

// UnmarshalSoldMarker deserializes a SoldMarker from JSON bytes.
func UnmarshalSoldMarker(data []byte) (*SoldMarker, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var m SoldMarker
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to SoldMarker: %w", err)
	}

	return &m, nil
}

// EncodeRailFlag is the stored form of a rail flag
func EncodeRailFlag(enabled bool) []byte {
	if enabled {
		return []byte{1}
	}
	return []byte{0}
}

// DecodeRailFlag is the inverse of EncodeRailFlag
func DecodeRailFlag(data []byte) (bool, error) {
	if len(data) != 1 || data[0] > 1 {
		return false, fmt.Errorf("invalid rail flag encoding %x", data)
	}
	return data[0] == 1, nil
}
