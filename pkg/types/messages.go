package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Position tells which side of the running hash a proof sibling sits on
type Position uint8

const (
	// Left means hash(sibling || node)
	Left Position = iota
	// Right means hash(node || sibling)
	Right
)

func (p Position) String() string {
	switch p {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return fmt.Sprintf("position(%d)", uint8(p))
	}
}

func (p Position) MarshalText() ([]byte, error) {
	switch p {
	case Left, Right:
		return []byte(p.String()), nil
	default:
		return nil, fmt.Errorf("invalid proof position %d", uint8(p))
	}
}

func (p *Position) UnmarshalText(text []byte) error {
	switch string(text) {
	case "left":
		*p = Left
	case "right":
		*p = Right
	default:
		return fmt.Errorf("invalid proof position %q", string(text))
	}
	return nil
}

// ProofNode is one level of an inclusion proof
type ProofNode struct {
	Hash     common.Hash `json:"hash"`
	Position Position    `json:"position"`
}

// PaymentRail names a currency the sale can collect
type PaymentRail string

const (
	RailETH  PaymentRail = "eth"
	RailSAND PaymentRail = "sand"
	RailDAI  PaymentRail = "dai"
)

// AllRails lists every rail the sale knows about
var AllRails = []PaymentRail{RailETH, RailSAND, RailDAI}

// IsKnown reports whether r is one of AllRails
func (r PaymentRail) IsKnown() bool {
	for _, k := range AllRails {
		if k == r {
			return true
		}
	}
	return false
}

// PurchaseRequest is the purchase call shape accepted by the sale.
// ReservedArg is the zero address when the buyer claims no reservation.
type PurchaseRequest struct {
	Buyer       common.Address `json:"buyer"`
	Recipient   common.Address `json:"recipient"`
	ReservedArg common.Address `json:"reservedArg"`
	Parcel      ParcelRecord   `json:"parcel"`
	Proof       []ProofNode    `json:"proof"`
}

// NewPurchaseRequestFromCall builds a request from the flat on-chain argument list,
// where the reserved argument is also the reservation committed into the leaf.
func NewPurchaseRequestFromCall(
	buyer, recipient, reserved common.Address,
	x, y uint16, size uint8, price string, salt common.Hash,
	proof []ProofNode,
) *PurchaseRequest {
	return &PurchaseRequest{
		Buyer:       buyer,
		Recipient:   recipient,
		ReservedArg: reserved,
		Parcel: ParcelRecord{
			X:        x,
			Y:        y,
			Size:     size,
			Price:    price,
			Reserved: ReservedTo(reserved),
			Salt:     salt,
		},
		Proof: proof,
	}
}

// AuthorizationResult is emitted once per successful purchase
type AuthorizationResult struct {
	PurchaseID   string         `json:"purchaseId"`
	Buyer        common.Address `json:"buyer"`
	Recipient    common.Address `json:"recipient"`
	Parcel       ParcelRecord   `json:"parcel"`
	TopCornerID  uint64         `json:"topCornerId"`
	Rail         PaymentRail    `json:"rail"`
	AuthorizedAt int64          `json:"authorizedAt"`
}

// PurchaseMessage is the body of POST /purchase
type PurchaseMessage struct {
	PurchaseRequest
	Rail PaymentRail `json:"rail"`
}

// RejectionResponse is returned when a purchase fails one of the sale checks
type RejectionResponse struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// ProofResponse is returned by POST /proof
type ProofResponse struct {
	Root      common.Hash `json:"root"`
	Leaf      common.Hash `json:"leaf"`
	LeafIndex int         `json:"leafIndex"`
	Proof     []ProofNode `json:"proof"`
}

// RootResponse is returned by GET /root
type RootResponse struct {
	Root      common.Hash `json:"root"`
	LeafCount int         `json:"leafCount"`
}

// ExpiryResponse is returned by GET /expiry
type ExpiryResponse struct {
	SaleStart int64  `json:"saleStart"`
	SaleEnd   int64  `json:"saleEnd"`
	State     string `json:"state"`
}

// RailToggleRequest is the body of POST /admin/rails
type RailToggleRequest struct {
	Caller  common.Address `json:"caller"`
	Rail    PaymentRail    `json:"rail"`
	Enabled bool           `json:"enabled"`
}

// SoldResponse is returned by GET /sold
type SoldResponse struct {
	Parcel ParcelID `json:"parcel"`
	Sold   bool     `json:"sold"`
}
