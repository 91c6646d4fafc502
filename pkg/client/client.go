package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Layr-Labs/landsale-go/pkg/sale"
	"github.com/Layr-Labs/landsale-go/pkg/types"
)

// ClientConfig holds the configuration for the sale client
type ClientConfig struct {
	BaseURL    string
	Logger     *zap.Logger
	HTTPClient *http.Client // optional
}

// Client talks to a landsale server
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// StatusError is returned for non-2xx responses that are not rejections
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Body)
}

// NewClient creates a new sale client
func NewClient(config *ClientConfig) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.ParseRequestURI(config.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: httpClient,
		logger:     config.Logger,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to contact sale server: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusOK && out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return resp.StatusCode, respBody, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, respBody, nil
}

func statusError(code int, body []byte) error {
	return &StatusError{StatusCode: code, Body: strings.TrimSpace(string(body))}
}

// GetRoot fetches the committed root and leaf count
func (c *Client) GetRoot(ctx context.Context) (*types.RootResponse, error) {
	var out types.RootResponse
	code, body, err := c.do(ctx, http.MethodGet, "/root", nil, &out)
	if err != nil {
		return nil, err
	}
	if code != http.StatusOK {
		return nil, statusError(code, body)
	}
	return &out, nil
}

// GetExpiry fetches the sale window
func (c *Client) GetExpiry(ctx context.Context) (*types.ExpiryResponse, error) {
	var out types.ExpiryResponse
	code, body, err := c.do(ctx, http.MethodGet, "/expiry", nil, &out)
	if err != nil {
		return nil, err
	}
	if code != http.StatusOK {
		return nil, statusError(code, body)
	}
	return &out, nil
}

// GetProof asks the server for the inclusion proof of rec
func (c *Client) GetProof(ctx context.Context, rec *types.ParcelRecord) (*types.ProofResponse, error) {
	var out types.ProofResponse
	code, body, err := c.do(ctx, http.MethodPost, "/proof", rec, &out)
	if err != nil {
		return nil, err
	}
	if code != http.StatusOK {
		return nil, statusError(code, body)
	}
	return &out, nil
}

// Purchase submits a purchase. A rejected purchase returns a *sale.Rejection,
// so errors.Is(err, sale.ErrAlreadySold) works across the wire.
func (c *Client) Purchase(ctx context.Context, req *types.PurchaseRequest, rail types.PaymentRail) (*types.AuthorizationResult, error) {
	if req == nil {
		return nil, fmt.Errorf("purchase request is required")
	}

	c.logger.Sugar().Debugw("Submitting purchase",
		"parcel", req.Parcel.ID().Key(),
		"buyer", req.Buyer.Hex(),
		"rail", rail,
	)

	var out types.AuthorizationResult
	code, body, err := c.do(ctx, http.MethodPost, "/purchase", &types.PurchaseMessage{PurchaseRequest: *req, Rail: rail}, &out)
	if err != nil {
		return nil, err
	}

	switch code {
	case http.StatusOK:
		c.logger.Sugar().Infow("Purchase authorized", "purchase_id", out.PurchaseID, "parcel", req.Parcel.ID().Key())
		return &out, nil
	case http.StatusConflict:
		var rej types.RejectionResponse
		if err := json.Unmarshal(body, &rej); err != nil {
			return nil, fmt.Errorf("failed to decode rejection: %w", err)
		}
		reason := sale.ReasonFromCode(rej.Reason)
		if reason == nil {
			return nil, fmt.Errorf("unknown rejection reason %q: %s", rej.Reason, rej.Message)
		}
		return nil, &sale.Rejection{Reason: reason, Parcel: req.Parcel.ID()}
	default:
		return nil, statusError(code, body)
	}
}

// IsSold checks the sold marker for id
func (c *Client) IsSold(ctx context.Context, id types.ParcelID) (bool, error) {
	q := url.Values{}
	q.Set("x", strconv.FormatUint(uint64(id.X), 10))
	q.Set("y", strconv.FormatUint(uint64(id.Y), 10))
	q.Set("size", strconv.FormatUint(uint64(id.Size), 10))
	q.Set("salt", id.Salt.Hex())

	var out types.SoldResponse
	code, body, err := c.do(ctx, http.MethodGet, "/sold?"+q.Encode(), nil, &out)
	if err != nil {
		return false, err
	}
	if code != http.StatusOK {
		return false, statusError(code, body)
	}
	return out.Sold, nil
}

// GetRails fetches every rail flag
func (c *Client) GetRails(ctx context.Context) (map[types.PaymentRail]bool, error) {
	var out map[types.PaymentRail]bool
	code, body, err := c.do(ctx, http.MethodGet, "/rails", nil, &out)
	if err != nil {
		return nil, err
	}
	if code != http.StatusOK {
		return nil, statusError(code, body)
	}
	return out, nil
}

// SetRailEnabled toggles a rail as caller. A 403 maps to sale.ErrNotAdmin.
func (c *Client) SetRailEnabled(ctx context.Context, req *types.RailToggleRequest) (map[types.PaymentRail]bool, error) {
	var out map[types.PaymentRail]bool
	code, body, err := c.do(ctx, http.MethodPost, "/admin/rails", req, &out)
	if err != nil {
		return nil, err
	}
	switch code {
	case http.StatusOK:
		return out, nil
	case http.StatusForbidden:
		return nil, sale.ErrNotAdmin
	default:
		return nil, statusError(code, body)
	}
}
