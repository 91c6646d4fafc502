package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/Layr-Labs/landsale-go/pkg/merkle"
	"github.com/Layr-Labs/landsale-go/pkg/parcel"
	"github.com/Layr-Labs/landsale-go/pkg/sale"
	"github.com/Layr-Labs/landsale-go/pkg/types"
)

// maxBodyBytes bounds request bodies; a full-depth proof is well under this
const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse request: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

// handlePurchase handles the /purchase endpoint
func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.limiter != nil && !s.limiter.Allow() {
		http.Error(w, "Too many purchase requests", http.StatusTooManyRequests)
		return
	}

	var msg types.PurchaseMessage
	if !decodeBody(w, r, &msg) {
		return
	}
	if msg.Rail == "" {
		http.Error(w, "rail is required", http.StatusBadRequest)
		return
	}

	result, err := s.sale.AuthorizePurchase(&msg.PurchaseRequest, msg.Rail, s.now())
	if err != nil {
		if rej, ok := sale.AsRejection(err); ok {
			s.logger.Sugar().Debugw("Purchase rejected", "parcel", rej.Parcel.Key(), "reason", rej.ReasonCode(), "buyer", msg.Buyer.Hex())
			writeJSON(w, http.StatusConflict, types.RejectionResponse{
				Reason:  rej.ReasonCode(),
				Message: rej.Reason.Error(),
			})
			return
		}
		if errors.Is(err, parcel.ErrEncoding) || errors.Is(err, sale.ErrUnknownRail) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.logger.Sugar().Errorw("Purchase failed", "parcel", msg.Parcel.ID().Key(), "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleProof handles the /proof endpoint
func (s *Server) handleProof(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var rec types.ParcelRecord
	if !decodeBody(w, r, &rec) {
		return
	}

	leaf, err := parcel.EncodeLeaf(&rec)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	proof, err := s.tree.GenerateProof(leaf)
	if err != nil {
		if errors.Is(err, merkle.ErrLeafNotFound) {
			http.Error(w, "Land not on sale", http.StatusNotFound)
			return
		}
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, types.ProofResponse{
		Root:      s.tree.Root,
		Leaf:      proof.Leaf,
		LeafIndex: proof.LeafIndex,
		Proof:     proof.Path,
	})
}

// handleRoot handles the /root endpoint
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, types.RootResponse{
		Root:      s.sale.Root(),
		LeafCount: len(s.tree.Leaves),
	})
}

// handleExpiry handles the /expiry endpoint
func (s *Server) handleExpiry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, types.ExpiryResponse{
		SaleStart: s.sale.SaleStart(),
		SaleEnd:   s.sale.ExpiryTime(),
		State:     s.sale.State(s.now()).String(),
	})
}

// handleSold handles the /sold endpoint
func (s *Server) handleSold(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id, err := parcelIDFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sold, err := s.sale.IsSold(id)
	if err != nil {
		s.logger.Sugar().Errorw("Failed to read sold marker", "parcel", id.Key(), "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, types.SoldResponse{Parcel: id, Sold: sold})
}

func parcelIDFromQuery(r *http.Request) (types.ParcelID, error) {
	q := r.URL.Query()

	x, err := strconv.ParseUint(q.Get("x"), 10, 16)
	if err != nil {
		return types.ParcelID{}, fmt.Errorf("invalid x: %w", err)
	}
	y, err := strconv.ParseUint(q.Get("y"), 10, 16)
	if err != nil {
		return types.ParcelID{}, fmt.Errorf("invalid y: %w", err)
	}
	size, err := strconv.ParseUint(q.Get("size"), 10, 8)
	if err != nil {
		return types.ParcelID{}, fmt.Errorf("invalid size: %w", err)
	}
	salt, err := hexutil.Decode(q.Get("salt"))
	if err != nil || len(salt) != 32 {
		return types.ParcelID{}, fmt.Errorf("invalid salt: must be 32 bytes of 0x-prefixed hex")
	}

	id := types.ParcelID{X: uint16(x), Y: uint16(y), Size: uint8(size)}
	copy(id.Salt[:], salt)
	return id, nil
}

// handleRails handles the /rails endpoint
func (s *Server) handleRails(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.sale.RailStates())
}

// handleAdminRails handles the /admin/rails endpoint
func (s *Server) handleAdminRails(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req types.RailToggleRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := s.sale.SetRailEnabled(req.Caller, req.Rail, req.Enabled); err != nil {
		switch {
		case errors.Is(err, sale.ErrNotAdmin):
			http.Error(w, err.Error(), http.StatusForbidden)
		case errors.Is(err, sale.ErrUnknownRail):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			s.logger.Sugar().Errorw("Failed to update rail", "rail", req.Rail, "error", err)
			http.Error(w, "Internal error", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, s.sale.RailStates())
}

// handleHealth handles the /health endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.sale.HealthCheck(); err != nil {
		http.Error(w, fmt.Sprintf("unhealthy: %v", err), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}
