package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Layr-Labs/landsale-go/pkg/merkle"
	"github.com/Layr-Labs/landsale-go/pkg/sale"
)

/*
Server exposes the land sale over HTTP.

Purchase Flow:
  POST /purchase:
    - Request: PurchaseMessage { buyer, recipient, reservedArg, parcel, proof, rail }
    - Runs the sale checks: rail, window, proof, sold marker, reservation
    - 200 with the AuthorizationResult, 409 with { reason, message } on rejection
    - 429 when the purchase rate limit is exhausted

Catalogue Queries:
  POST /proof:  parcel record -> { root, leaf, leafIndex, proof }, 404 if not on sale
  GET  /root:   committed root and leaf count
  GET  /expiry: sale window and current state
  GET  /sold?x=&y=&size=&salt=: sold marker lookup

Administration:
  GET  /rails:       rail flags
  POST /admin/rails: { caller, rail, enabled }, 403 unless caller is admin
  GET  /health:      persistence health
*/

// Config holds the HTTP server settings
type Config struct {
	Port int

	// PurchaseRateLimit is requests per second across all callers; 0 disables limiting
	PurchaseRateLimit float64
	PurchaseRateBurst int
}

// Server handles HTTP requests for the sale
type Server struct {
	sale       *sale.Sale
	tree       *merkle.MerkleTree
	logger     *zap.Logger
	limiter    *rate.Limiter
	httpServer *http.Server

	// now returns the current unix time in seconds
	now func() int64
}

// NewServer creates a new server instance
func NewServer(s *sale.Sale, tree *merkle.MerkleTree, cfg *Config, logger *zap.Logger) *Server {
	srv := &Server{
		sale:   s,
		tree:   tree,
		logger: logger,
		now:    func() int64 { return time.Now().Unix() },
	}
	if cfg.PurchaseRateLimit > 0 {
		srv.limiter = rate.NewLimiter(rate.Limit(cfg.PurchaseRateLimit), cfg.PurchaseRateBurst)
	}

	mux := http.NewServeMux()

	// Purchase endpoint
	mux.HandleFunc("/purchase", srv.handlePurchase)

	// Catalogue endpoints
	mux.HandleFunc("/proof", srv.handleProof)
	mux.HandleFunc("/root", srv.handleRoot)
	mux.HandleFunc("/expiry", srv.handleExpiry)
	mux.HandleFunc("/sold", srv.handleSold)

	// Rail endpoints
	mux.HandleFunc("/rails", srv.handleRails)
	mux.HandleFunc("/admin/rails", srv.handleAdminRails)

	mux.HandleFunc("/health", srv.handleHealth)

	srv.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return srv
}

// Start starts the HTTP server
func (s *Server) Start() error {
	go func() {
		s.logger.Sugar().Infow("Starting HTTP server", "port", s.httpServer.Addr, "root", s.tree.Root.Hex())
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Sugar().Errorw("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Stop drains in-flight requests and stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// GetHandler returns the HTTP handler (for testing)
func (s *Server) GetHandler() http.Handler {
	return s.httpServer.Handler
}
