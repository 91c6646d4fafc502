package sale

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/Layr-Labs/landsale-go/pkg/types"
)

// ParcelMinter mints a quad of land into the recipient's custody
type ParcelMinter interface {
	MintQuad(ctx context.Context, to common.Address, size uint8, x, y uint16) error
}

// PaymentCollector collects price (in catalogue units) from buyer over rail,
// converting it to the rail's currency as needed.
type PaymentCollector interface {
	Collect(ctx context.Context, rail types.PaymentRail, buyer common.Address, price *uint256.Int) error
}

// AdminChecker decides whether caller holds the admin capability
type AdminChecker interface {
	IsAdmin(caller common.Address) bool
}

// ResultSink receives every authorization result the sale emits
type ResultSink interface {
	OnAuthorized(result *types.AuthorizationResult)
}

// Collaborators are the external components the sale calls.
// All fields are optional for AuthorizePurchase; Purchase requires Minter and Payments.
type Collaborators struct {
	Minter   ParcelMinter
	Payments PaymentCollector
	Admin    AdminChecker
	Results  ResultSink
}

// SingleAdmin grants the admin capability to exactly one address
type SingleAdmin common.Address

func (a SingleAdmin) IsAdmin(caller common.Address) bool {
	return caller != (common.Address{}) && caller == common.Address(a)
}
