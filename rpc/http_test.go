package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"wordsale/config"
	"wordsale/core/events"
	"wordsale/crypto"
	"wordsale/native/wordsale"
	"wordsale/state"
	"wordsale/storage"
)

const (
	testBuyer  = "0x0000000000000000000000000000000000000001"
	testSeller = "0x0000000000000000000000000000000000000002"
)

type rpcFixture struct {
	server *Server
	st     *state.Manager
	now    int64
}

func newFixture(t *testing.T) *rpcFixture {
	t.Helper()
	st := state.NewManager(storage.NewMemDB())
	engine := wordsale.NewEngine()
	engine.SetState(st)
	feed := events.NewMemoryEmitter(64)
	engine.SetEmitter(feed)
	fix := &rpcFixture{st: st, now: 1_000_000}
	engine.SetNowFunc(func() int64 { return fix.now })
	fix.server = NewServer(engine, st, feed, config.Default(), nil)
	for _, hexAddr := range []string{testBuyer, testSeller} {
		addr, err := crypto.ParseAddress(hexAddr)
		require.NoError(t, err)
		require.NoError(t, st.Credit(addr, big.NewInt(10_000)))
	}
	return fix
}

func (f *rpcFixture) call(t *testing.T, method string, params interface{}) (*RPCResponse, int) {
	t.Helper()
	return f.callWithHeader(t, method, params, "")
}

func (f *rpcFixture) callWithHeader(t *testing.T, method string, params interface{}, auth string) (*RPCResponse, int) {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	body, err := json.Marshal(RPCRequest{
		JSONRPC: jsonRPCVersion,
		Method:  method,
		Params:  []json.RawMessage{raw},
		ID:      1,
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	var resp RPCResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return &resp, rec.Code
}

func decodeResult(t *testing.T, resp *RPCResponse, out interface{}) {
	t.Helper()
	require.Nil(t, resp.Error, "unexpected rpc error: %+v", resp.Error)
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func createSale(t *testing.T, fix *rpcFixture) saleJSON {
	t.Helper()
	resp, status := fix.call(t, "wordsale_create", createParams{
		Buyer:      testBuyer,
		Seller:     testSeller,
		Collateral: "1000",
		Nonce:      7,
	})
	require.Equal(t, http.StatusOK, status)
	var sale saleJSON
	decodeResult(t, resp, &sale)
	return sale
}

func TestCreateAppliesConfigDefaults(t *testing.T) {
	fix := newFixture(t)
	sale := createSale(t, fix)
	require.Equal(t, "buyer_commit", sale.State)
	require.Equal(t, "1000", sale.Collateral)
	require.Equal(t, int64(1440), sale.TimeoutSeconds)
	require.Equal(t, uint32(3), sale.NumberOfHashes)
	require.Equal(t, uint32(256), sale.FilterSize)
	require.Len(t, sale.ID, 64)
}

func TestFullSaleOverRPC(t *testing.T) {
	fix := newFixture(t)
	sale := createSale(t, fix)

	filter := wordsale.BuildFilter([]string{"hey", "hello"}, 3, 256)

	steps := []struct {
		method string
		params interface{}
	}{
		{"wordsale_commitCollateral", paymentParams{ID: sale.ID, Caller: testBuyer, Value: "1000"}},
		{"wordsale_commitCollateral", paymentParams{ID: sale.ID, Caller: testSeller, Value: "1000"}},
		{"wordsale_sendBloomFilter", sendFilterParams{ID: sale.ID, Caller: testBuyer, Filter: filter.String()}},
		{"wordsale_sendBloomFilter", sendFilterParams{ID: sale.ID, Caller: testSeller, Filter: filter.String()}},
		{"wordsale_startSale", startSaleParams{ID: sale.ID, Caller: testBuyer, Penalty: "2000", FactorPercent: 30, Value: "1000"}},
		{"wordsale_deposit", paymentParams{ID: sale.ID, Caller: testSeller, Value: "2000"}},
		{"wordsale_acceptSale", callerParams{ID: sale.ID, Caller: testBuyer}},
	}
	for _, step := range steps {
		resp, status := fix.call(t, step.method, step.params)
		require.Equal(t, http.StatusOK, status, "method %s: %+v", step.method, resp.Error)
		require.Nil(t, resp.Error, "method %s", step.method)
	}

	resp, _ := fix.call(t, "wordsale_get", saleIDParams{ID: sale.ID})
	var final saleJSON
	decodeResult(t, resp, &final)
	require.Equal(t, "sale_accepted", final.State)

	resp, _ = fix.call(t, "wordsale_withdrawable", withdrawableParams{ID: sale.ID, Address: testSeller})
	var claim map[string]string
	decodeResult(t, resp, &claim)
	require.Equal(t, "4000", claim["value"])

	resp, status := fix.call(t, "wordsale_withdraw", callerParams{ID: sale.ID, Caller: testSeller})
	require.Equal(t, http.StatusOK, status)
	decodeResult(t, resp, &claim)
	require.Equal(t, "4000", claim["value"])

	resp, _ = fix.call(t, "wordsale_balance", addressParams{Address: testSeller})
	var bal map[string]string
	decodeResult(t, resp, &bal)
	require.Equal(t, "11000", bal["balance"])
}

func TestEngineRejectionMapsToModuleCode(t *testing.T) {
	fix := newFixture(t)
	sale := createSale(t, fix)

	resp, status := fix.call(t, "wordsale_deposit", paymentParams{ID: sale.ID, Caller: testSeller, Value: "2000"})
	require.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeWrongPhase, resp.Error.Code)

	resp, status = fix.call(t, "wordsale_commitCollateral", paymentParams{ID: sale.ID, Caller: testSeller, Value: "1000"})
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, codeCallerForbidden, resp.Error.Code)

	resp, status = fix.call(t, "wordsale_commitCollateral", paymentParams{ID: sale.ID, Caller: testBuyer, Value: "999"})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeBadPayment, resp.Error.Code)
}

func TestUnknownSaleIsNotFound(t *testing.T) {
	fix := newFixture(t)
	id := fmt.Sprintf("%064x", 42)
	resp, status := fix.call(t, "wordsale_get", saleIDParams{ID: id})
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, codeSaleNotFound, resp.Error.Code)
}

func TestInvalidParams(t *testing.T) {
	fix := newFixture(t)
	resp, status := fix.call(t, "wordsale_get", saleIDParams{ID: "xyz"})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	resp, status = fix.call(t, "wordsale_create", createParams{Buyer: testBuyer, Seller: testSeller, Collateral: "-5"})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestMethodNotFound(t *testing.T) {
	fix := newFixture(t)
	resp, status := fix.call(t, "wordsale_unknown", struct{}{})
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestBearerTokenGate(t *testing.T) {
	t.Setenv(rpcTokenEnv, "secret-token")
	fix := newFixture(t)

	resp, status := fix.call(t, "wordsale_create", createParams{
		Buyer: testBuyer, Seller: testSeller, Collateral: "1000", Nonce: 1,
	})
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	resp, status = fix.callWithHeader(t, "wordsale_create", createParams{
		Buyer: testBuyer, Seller: testSeller, Collateral: "1000", Nonce: 1,
	}, "Bearer secret-token")
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)

	// reads stay open
	resp, _ = fix.callWithHeader(t, "wordsale_balance", addressParams{Address: testBuyer}, "")
	require.Nil(t, resp.Error)
}

func TestRateLimitThrottles(t *testing.T) {
	st := state.NewManager(storage.NewMemDB())
	engine := wordsale.NewEngine()
	engine.SetState(st)
	cfg := config.Default()
	cfg.RPCRequestsPerMinute = 60
	cfg.RPCBurst = 2
	server := NewServer(engine, st, events.NewMemoryEmitter(8), cfg, nil)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		body, err := json.Marshal(RPCRequest{
			JSONRPC: jsonRPCVersion,
			Method:  "wordsale_balance",
			Params:  []json.RawMessage{json.RawMessage(fmt.Sprintf(`{"address":%q}`, testBuyer))},
			ID:      i,
		})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	require.Equal(t, http.StatusOK, codes[0])
	require.Equal(t, http.StatusOK, codes[1])
	require.Equal(t, http.StatusTooManyRequests, codes[2])
}

func TestFundAndEvents(t *testing.T) {
	fix := newFixture(t)
	resp, status := fix.call(t, "wordsale_fund", fundParams{Address: testBuyer, Amount: "500"})
	require.Equal(t, http.StatusOK, status)
	var bal map[string]string
	decodeResult(t, resp, &bal)
	require.Equal(t, "10500", bal["balance"])

	sale := createSale(t, fix)
	resp, _ = fix.call(t, "wordsale_commitCollateral", paymentParams{ID: sale.ID, Caller: testBuyer, Value: "1000"})
	require.Nil(t, resp.Error)

	resp, _ = fix.call(t, "wordsale_events", struct{}{})
	var evts []struct {
		Type       string            `json:"type"`
		Attributes map[string]string `json:"attributes"`
	}
	decodeResult(t, resp, &evts)
	require.NotEmpty(t, evts)
	last := evts[len(evts)-1]
	require.Equal(t, "wordsale.commit", last.Type)
}
