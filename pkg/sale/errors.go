package sale

import (
	"errors"
	"fmt"

	"github.com/Layr-Labs/landsale-go/pkg/types"
)

// Rejection reasons. A rejected purchase returns a *Rejection wrapping one of these,
// so callers branch with errors.Is(err, sale.ErrAlreadySold) and friends.
var (
	ErrRailDisabled     = errors.New("payment rail not enabled")
	ErrNotStarted       = errors.New("sale has not started")
	ErrExpired          = errors.New("sale is over")
	ErrInvalidProof     = errors.New("invalid land provided")
	ErrAlreadySold      = errors.New("land already sold")
	ErrReservedForOther = errors.New("land reserved for another address")
	ErrNotReserved      = errors.New("land is not reserved")
)

// Input and capability errors. These are not rejections.
var (
	ErrNotAdmin       = errors.New("only admin can enable/disable payment rails")
	ErrUnknownRail    = errors.New("unknown payment rail")
	ErrNoCollaborator = errors.New("purchase collaborators not configured")
)

// Rejection is the expected, user-facing outcome of a purchase attempt that fails a check
type Rejection struct {
	Reason error
	Parcel types.ParcelID
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("purchase of %s rejected: %v", r.Parcel, r.Reason)
}

func (r *Rejection) Unwrap() error {
	return r.Reason
}

// ReasonCode is a stable short name for the rejection reason
func (r *Rejection) ReasonCode() string {
	switch r.Reason {
	case ErrRailDisabled:
		return "RailDisabled"
	case ErrNotStarted:
		return "NotStarted"
	case ErrExpired:
		return "Expired"
	case ErrInvalidProof:
		return "InvalidProof"
	case ErrAlreadySold:
		return "AlreadySold"
	case ErrReservedForOther:
		return "ReservedForOther"
	case ErrNotReserved:
		return "NotReserved"
	default:
		return "Unknown"
	}
}

// ReasonFromCode is the inverse of ReasonCode. It returns nil for an unknown code.
func ReasonFromCode(code string) error {
	for _, reason := range []error{
		ErrRailDisabled, ErrNotStarted, ErrExpired, ErrInvalidProof,
		ErrAlreadySold, ErrReservedForOther, ErrNotReserved,
	} {
		if (&Rejection{Reason: reason}).ReasonCode() == code {
			return reason
		}
	}
	return nil
}

// AsRejection extracts a *Rejection from err
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

func reject(reason error, id types.ParcelID) error {
	return &Rejection{Reason: reason, Parcel: id}
}
