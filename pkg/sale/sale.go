package sale

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Layr-Labs/landsale-go/pkg/merkle"
	"github.com/Layr-Labs/landsale-go/pkg/parcel"
	"github.com/Layr-Labs/landsale-go/pkg/persistence"
	"github.com/Layr-Labs/landsale-go/pkg/types"
)

// parcelLockStripes bounds the number of mutexes; parcels hash onto stripes
const parcelLockStripes = 256

// State is the phase of the sale at a given time
type State int

const (
	Pending State = iota
	Open
	Closed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config fixes the immutable parameters of one sale instance
type Config struct {
	// Root is the committed catalogue root
	Root types.LeafDigest

	// SaleStart and SaleEnd are unix seconds; purchases are accepted in [SaleStart, SaleEnd)
	SaleStart int64
	SaleEnd   int64

	// Admin holds the rail toggle capability unless Collaborators.Admin overrides it
	Admin common.Address

	// EnabledRails are enabled on first start; persisted toggles take precedence afterwards
	EnabledRails []types.PaymentRail
}

// Validate checks that the configuration can back a sale
func (c *Config) Validate() error {
	if c.Root == (types.LeafDigest{}) {
		return fmt.Errorf("sale root cannot be zero")
	}
	if c.SaleStart > c.SaleEnd {
		return fmt.Errorf("sale start %d is after sale end %d", c.SaleStart, c.SaleEnd)
	}
	for _, r := range c.EnabledRails {
		if !r.IsKnown() {
			return fmt.Errorf("%w: %s", ErrUnknownRail, r)
		}
	}
	return nil
}

// Sale owns the mutable state of a land sale: sold markers and rail flags.
// The root and sale window never change after construction.
type Sale struct {
	root      types.LeafDigest
	saleStart int64
	saleEnd   int64

	store  persistence.ISalePersistence
	collab Collaborators
	logger *zap.Logger

	railsMu sync.RWMutex
	rails   map[types.PaymentRail]bool

	// purchases for the same parcel identity serialize on the same stripe
	locks [parcelLockStripes]sync.Mutex

	newPurchaseID func() string
}

// NewSale builds a sale from cfg, restoring rail flags from store.
func NewSale(cfg *Config, store persistence.ISalePersistence, collab *Collaborators, logger *zap.Logger) (*Sale, error) {
	if cfg == nil {
		return nil, fmt.Errorf("sale config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sale config: %w", err)
	}
	if store == nil {
		return nil, fmt.Errorf("sale persistence cannot be nil")
	}

	s := &Sale{
		root:          cfg.Root,
		saleStart:     cfg.SaleStart,
		saleEnd:       cfg.SaleEnd,
		store:         store,
		logger:        logger,
		rails:         make(map[types.PaymentRail]bool, len(types.AllRails)),
		newPurchaseID: uuid.NewString,
	}
	if collab != nil {
		s.collab = *collab
	}
	if s.collab.Admin == nil {
		s.collab.Admin = SingleAdmin(cfg.Admin)
	}

	for _, r := range types.AllRails {
		s.rails[r] = false
	}
	for _, r := range cfg.EnabledRails {
		s.rails[r] = true
	}

	persisted, err := store.LoadRailStates()
	if err != nil {
		return nil, fmt.Errorf("failed to load rail states: %w", err)
	}
	for r, enabled := range persisted {
		if !r.IsKnown() {
			logger.Sugar().Warnw("Ignoring persisted flag for unknown rail", "rail", r)
			continue
		}
		s.rails[r] = enabled
	}

	logger.Sugar().Infow("Sale initialized",
		"root", s.root.Hex(),
		"sale_start", s.saleStart,
		"sale_end", s.saleEnd,
		"rails", s.rails,
	)

	return s, nil
}

// Root returns the committed catalogue root
func (s *Sale) Root() types.LeafDigest {
	return s.root
}

// SaleStart returns the first second purchases are accepted
func (s *Sale) SaleStart() int64 {
	return s.saleStart
}

// ExpiryTime returns the first second purchases are rejected
func (s *Sale) ExpiryTime() int64 {
	return s.saleEnd
}

// State reports the sale phase at now
func (s *Sale) State(now int64) State {
	switch {
	case now >= s.saleEnd:
		return Closed
	case now < s.saleStart:
		return Pending
	default:
		return Open
	}
}

// IsRailEnabled reports whether rail currently accepts payments
func (s *Sale) IsRailEnabled(rail types.PaymentRail) bool {
	s.railsMu.RLock()
	defer s.railsMu.RUnlock()
	return s.rails[rail]
}

// RailStates returns a copy of every rail flag
func (s *Sale) RailStates() map[types.PaymentRail]bool {
	s.railsMu.RLock()
	defer s.railsMu.RUnlock()

	out := make(map[types.PaymentRail]bool, len(s.rails))
	for r, enabled := range s.rails {
		out[r] = enabled
	}
	return out
}

// SetRailEnabled toggles a payment rail. Only the admin may call it.
func (s *Sale) SetRailEnabled(caller common.Address, rail types.PaymentRail, enabled bool) error {
	if !s.collab.Admin.IsAdmin(caller) {
		return ErrNotAdmin
	}
	if !rail.IsKnown() {
		return fmt.Errorf("%w: %s", ErrUnknownRail, rail)
	}

	s.railsMu.Lock()
	defer s.railsMu.Unlock()

	if err := s.store.SetRailEnabled(rail, enabled); err != nil {
		return fmt.Errorf("failed to persist rail %s: %w", rail, err)
	}
	s.rails[rail] = enabled

	s.logger.Sugar().Infow("Payment rail updated", "rail", rail, "enabled", enabled, "caller", caller.Hex())
	return nil
}

// IsSold reports whether the parcel identity has been sold
func (s *Sale) IsSold(id types.ParcelID) (bool, error) {
	return s.store.IsSold(id)
}

// HealthCheck reports whether the sold-marker store is reachable
func (s *Sale) HealthCheck() error {
	return s.store.HealthCheck()
}

// SoldMarkers lists every sold parcel
func (s *Sale) SoldMarkers() ([]*persistence.SoldMarker, error) {
	return s.store.ListSoldMarkers()
}

func (s *Sale) lockFor(id types.ParcelID) *sync.Mutex {
	return &s.locks[xxhash.Sum64String(id.Key())%parcelLockStripes]
}

// AuthorizePurchase runs the purchase checks in order and, on success, marks the parcel sold
// and emits the result. Rejections are returned as *Rejection errors; other errors are
// input or storage failures.
func (s *Sale) AuthorizePurchase(req *types.PurchaseRequest, rail types.PaymentRail, now int64) (*types.AuthorizationResult, error) {
	if req == nil {
		return nil, fmt.Errorf("purchase request cannot be nil")
	}

	lock := s.lockFor(req.Parcel.ID())
	lock.Lock()
	defer lock.Unlock()

	result, err := s.authorizeLocked(req, rail, now)
	if err != nil {
		return nil, err
	}
	s.emit(result)
	return result, nil
}

// Purchase authorizes the request and then collects payment and mints the parcel while
// still holding the parcel's lock. If either collaborator fails the sold marker is removed.
func (s *Sale) Purchase(ctx context.Context, req *types.PurchaseRequest, rail types.PaymentRail, now int64) (*types.AuthorizationResult, error) {
	if req == nil {
		return nil, fmt.Errorf("purchase request cannot be nil")
	}
	if s.collab.Minter == nil || s.collab.Payments == nil {
		return nil, ErrNoCollaborator
	}

	id := req.Parcel.ID()
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	result, err := s.authorizeLocked(req, rail, now)
	if err != nil {
		return nil, err
	}

	price, err := parcel.ParsePrice(req.Parcel.Price)
	if err != nil {
		return nil, s.compensate(id, err)
	}

	if err := s.collab.Payments.Collect(ctx, rail, req.Buyer, price); err != nil {
		return nil, s.compensate(id, fmt.Errorf("payment failed: %w", err))
	}

	if err := s.collab.Minter.MintQuad(ctx, req.Recipient, req.Parcel.Size, req.Parcel.X, req.Parcel.Y); err != nil {
		s.logger.Sugar().Errorw("Mint failed after payment was collected",
			"purchase_id", result.PurchaseID,
			"parcel", id.Key(),
			"buyer", req.Buyer.Hex(),
			"error", err,
		)
		return nil, s.compensate(id, fmt.Errorf("mint failed: %w", err))
	}

	s.emit(result)
	return result, nil
}

// authorizeLocked must be called with the parcel's lock held
func (s *Sale) authorizeLocked(req *types.PurchaseRequest, rail types.PaymentRail, now int64) (*types.AuthorizationResult, error) {
	rec := &req.Parcel
	id := rec.ID()

	if !rail.IsKnown() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRail, rail)
	}

	// 1. rail
	if !s.IsRailEnabled(rail) {
		return nil, reject(ErrRailDisabled, id)
	}

	// 2. window
	switch s.State(now) {
	case Pending:
		return nil, reject(ErrNotStarted, id)
	case Closed:
		return nil, reject(ErrExpired, id)
	}

	// 3. catalogue membership
	leaf, err := parcel.EncodeLeaf(rec)
	if err != nil {
		return nil, err
	}
	if !merkle.VerifyProof(leaf, req.Proof, s.root) {
		return nil, reject(ErrInvalidProof, id)
	}

	// 4. sold marker
	sold, err := s.store.IsSold(id)
	if err != nil {
		return nil, fmt.Errorf("failed to read sold marker: %w", err)
	}
	if sold {
		return nil, reject(ErrAlreadySold, id)
	}

	// 5. reservation
	if reservedTo, reserved := rec.Reserved.Address(); reserved {
		if req.ReservedArg != reservedTo || req.Buyer != reservedTo {
			return nil, reject(ErrReservedForOther, id)
		}
	} else if req.ReservedArg != (common.Address{}) {
		return nil, reject(ErrNotReserved, id)
	}

	// 6. mark
	result := &types.AuthorizationResult{
		PurchaseID:   s.newPurchaseID(),
		Buyer:        req.Buyer,
		Recipient:    req.Recipient,
		Parcel:       *rec,
		TopCornerID:  rec.TopCornerID(),
		Rail:         rail,
		AuthorizedAt: now,
	}
	created, err := s.store.MarkSold(&persistence.SoldMarker{
		ParcelID:   id,
		PurchaseID: result.PurchaseID,
		Buyer:      req.Buyer,
		Recipient:  req.Recipient,
		SoldAt:     now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to mark parcel sold: %w", err)
	}
	if !created {
		// another process sharing the store won the race
		return nil, reject(ErrAlreadySold, id)
	}

	s.logger.Sugar().Infow("Land purchase authorized",
		"purchase_id", result.PurchaseID,
		"parcel", id.Key(),
		"top_corner_id", result.TopCornerID,
		"buyer", req.Buyer.Hex(),
		"recipient", req.Recipient.Hex(),
		"rail", rail,
	)

	return result, nil
}

// compensate removes the sold marker after a failed collaborator call
func (s *Sale) compensate(id types.ParcelID, cause error) error {
	if err := s.store.UnmarkSold(id); err != nil {
		s.logger.Sugar().Errorw("Failed to unmark parcel after failed purchase",
			"parcel", id.Key(), "cause", cause, "error", err)
		return errors.Join(cause, fmt.Errorf("failed to unmark parcel %s: %w", id, err))
	}
	s.logger.Sugar().Warnw("Purchase rolled back", "parcel", id.Key(), "cause", cause)
	return cause
}

func (s *Sale) emit(result *types.AuthorizationResult) {
	if s.collab.Results != nil {
		s.collab.Results.OnAuthorized(result)
	}
}
