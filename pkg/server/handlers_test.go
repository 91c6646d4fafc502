package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/landsale-go/pkg/logger"
	"github.com/Layr-Labs/landsale-go/pkg/merkle"
	"github.com/Layr-Labs/landsale-go/pkg/parcel"
	"github.com/Layr-Labs/landsale-go/pkg/persistence/memory"
	"github.com/Layr-Labs/landsale-go/pkg/sale"
	"github.com/Layr-Labs/landsale-go/pkg/testutil"
	"github.com/Layr-Labs/landsale-go/pkg/types"
)

const (
	testSaleStart int64 = 1_700_000_000
	testSaleEnd   int64 = testSaleStart + 3600
)

type testServer struct {
	*Server
	lands []*types.ParcelRecord
}

func newTestServer(t *testing.T, cfg *Config) *testServer {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	require.NoError(t, err)

	lands := testutil.TestLands(testutil.ReservedAddress)
	tree, err := parcel.BuildCatalogueTree(lands)
	require.NoError(t, err)

	s, err := sale.NewSale(&sale.Config{
		Root:         tree.Root,
		SaleStart:    testSaleStart,
		SaleEnd:      testSaleEnd,
		Admin:        testutil.AdminAddress,
		EnabledRails: []types.PaymentRail{types.RailETH},
	}, memory.NewMemoryPersistence(), nil, l)
	require.NoError(t, err)

	if cfg == nil {
		cfg = &Config{Port: 8080}
	}
	srv := NewServer(s, tree, cfg, l)
	srv.now = func() int64 { return testSaleStart + 10 }
	return &testServer{Server: srv, lands: lands}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	ts.GetHandler().ServeHTTP(w, req)
	return w
}

func (ts *testServer) purchaseMessage(t *testing.T, i int) *types.PurchaseMessage {
	w := ts.do(t, http.MethodPost, "/proof", ts.lands[i])
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var proof types.ProofResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &proof))

	return &types.PurchaseMessage{
		PurchaseRequest: types.PurchaseRequest{
			Buyer:     testutil.BuyerAddress,
			Recipient: testutil.RecipientAddress,
			Parcel:    *ts.lands[i],
			Proof:     proof.Proof,
		},
		Rail: types.RailETH,
	}
}

func TestHandlePurchase(t *testing.T) {
	ts := newTestServer(t, nil)
	msg := ts.purchaseMessage(t, 4)

	w := ts.do(t, http.MethodPost, "/purchase", msg)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result types.AuthorizationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.NotEmpty(t, result.PurchaseID)
	assert.Equal(t, testutil.RecipientAddress, result.Recipient)
	assert.Equal(t, *ts.lands[4], result.Parcel)

	w = ts.do(t, http.MethodPost, "/purchase", msg)
	require.Equal(t, http.StatusConflict, w.Code)

	var rej types.RejectionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rej))
	assert.Equal(t, "AlreadySold", rej.Reason)
}

func TestHandlePurchaseRejections(t *testing.T) {
	ts := newTestServer(t, nil)

	t.Run("rail disabled", func(t *testing.T) {
		msg := ts.purchaseMessage(t, 1)
		msg.Rail = types.RailDAI
		w := ts.do(t, http.MethodPost, "/purchase", msg)
		require.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, w.Body.String(), "RailDisabled")
	})

	t.Run("reserved for other", func(t *testing.T) {
		msg := ts.purchaseMessage(t, 0)
		w := ts.do(t, http.MethodPost, "/purchase", msg)
		require.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, w.Body.String(), "ReservedForOther")
	})

	t.Run("invalid proof", func(t *testing.T) {
		msg := ts.purchaseMessage(t, 1)
		msg.Proof = ts.purchaseMessage(t, 2).Proof
		w := ts.do(t, http.MethodPost, "/purchase", msg)
		require.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, w.Body.String(), "InvalidProof")
	})

	t.Run("expired", func(t *testing.T) {
		msg := ts.purchaseMessage(t, 1)
		ts.now = func() int64 { return testSaleEnd }
		defer func() { ts.now = func() int64 { return testSaleStart + 10 } }()

		w := ts.do(t, http.MethodPost, "/purchase", msg)
		require.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, w.Body.String(), "Expired")
	})
}

func TestHandlePurchaseBadRequests(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodGet, "/purchase", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = ts.do(t, http.MethodPost, "/purchase", "invalid json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	msg := ts.purchaseMessage(t, 1)
	msg.Rail = ""
	w = ts.do(t, http.MethodPost, "/purchase", msg)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	msg.Rail = "btc"
	w = ts.do(t, http.MethodPost, "/purchase", msg)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	msg.Rail = types.RailETH
	msg.Parcel.Size = 2
	w = ts.do(t, http.MethodPost, "/purchase", msg)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlePurchaseRateLimit(t *testing.T) {
	ts := newTestServer(t, &Config{Port: 8080, PurchaseRateLimit: 0.001, PurchaseRateBurst: 1})

	w := ts.do(t, http.MethodPost, "/purchase", ts.purchaseMessage(t, 1))
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodPost, "/purchase", ts.purchaseMessage(t, 2))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestHandleProof(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodPost, "/proof", ts.lands[3])
	require.Equal(t, http.StatusOK, w.Code)

	var resp types.ProofResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.LeafIndex)
	assert.Equal(t, ts.tree.Root, resp.Root)
	assert.True(t, merkle.VerifyProof(resp.Leaf, resp.Proof, resp.Root))

	notOnSale := *ts.lands[3]
	notOnSale.Price = "1"
	w = ts.do(t, http.MethodPost, "/proof", notOnSale)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodPost, "/proof", `{"x":1,"y":1,"size":7,"price":"1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleQueries(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodGet, "/root", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var root types.RootResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &root))
	assert.Equal(t, ts.tree.Root, root.Root)
	assert.Equal(t, 6, root.LeafCount)

	w = ts.do(t, http.MethodGet, "/expiry", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var expiry types.ExpiryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &expiry))
	assert.Equal(t, types.ExpiryResponse{SaleStart: testSaleStart, SaleEnd: testSaleEnd, State: "open"}, expiry)

	w = ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodPost, "/root", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHandleSold(t *testing.T) {
	ts := newTestServer(t, nil)
	land := ts.lands[4]
	path := fmt.Sprintf("/sold?x=%d&y=%d&size=%d&salt=%s", land.X, land.Y, land.Size, land.Salt.Hex())

	var resp types.SoldResponse
	w := ts.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Sold)
	assert.Equal(t, land.ID(), resp.Parcel)

	w = ts.do(t, http.MethodPost, "/purchase", ts.purchaseMessage(t, 4))
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Sold)

	for _, bad := range []string{
		"/sold",
		"/sold?x=1&y=1&size=1&salt=0x12",
		"/sold?x=-1&y=1&size=1&salt=" + land.Salt.Hex(),
		"/sold?x=1&y=1&size=300&salt=" + land.Salt.Hex(),
	} {
		w = ts.do(t, http.MethodGet, bad, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, bad)
	}
}

func TestHandleAdminRails(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodPost, "/admin/rails", types.RailToggleRequest{
		Caller: testutil.BuyerAddress, Rail: types.RailDAI, Enabled: true,
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(t, http.MethodPost, "/admin/rails", types.RailToggleRequest{
		Caller: testutil.AdminAddress, Rail: "btc", Enabled: true,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/admin/rails", types.RailToggleRequest{
		Caller: testutil.AdminAddress, Rail: types.RailDAI, Enabled: true,
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/rails", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rails map[types.PaymentRail]bool
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rails))
	assert.Equal(t, map[types.PaymentRail]bool{
		types.RailETH:  true,
		types.RailSAND: false,
		types.RailDAI:  true,
	}, rails)
}
