package rpc

import (
	"encoding/hex"
	"math/big"
	"net/http"

	"wordsale/core/types"
	"wordsale/crypto"
	"wordsale/native/wordsale"
)

type createParams struct {
	Buyer          string `json:"buyer"`
	Seller         string `json:"seller"`
	Collateral     string `json:"collateral"`
	TimeoutSeconds int64  `json:"timeoutSeconds,omitempty"`
	NumberOfHashes uint32 `json:"numberOfHashes,omitempty"`
	FilterSize     uint32 `json:"filterSize,omitempty"`
	Nonce          uint64 `json:"nonce"`
}

type saleIDParams struct {
	ID string `json:"id"`
}

type callerParams struct {
	ID     string `json:"id"`
	Caller string `json:"caller"`
}

type paymentParams struct {
	ID     string `json:"id"`
	Caller string `json:"caller"`
	Value  string `json:"value"`
}

type sendFilterParams struct {
	ID     string `json:"id"`
	Caller string `json:"caller"`
	Filter string `json:"filter"`
}

type startSaleParams struct {
	ID            string `json:"id"`
	Caller        string `json:"caller"`
	Penalty       string `json:"penalty"`
	FactorPercent uint32 `json:"factorPercent"`
	Value         string `json:"value"`
}

type sendWordsParams struct {
	ID     string   `json:"id"`
	Caller string   `json:"caller"`
	Words  []string `json:"words"`
}

type withdrawableParams struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

type addressParams struct {
	Address string `json:"address"`
}

type fundParams struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

type saleJSON struct {
	ID             string `json:"id"`
	Buyer          string `json:"buyer"`
	Seller         string `json:"seller"`
	State          string `json:"state"`
	Collateral     string `json:"collateral"`
	TimeoutSeconds int64  `json:"timeoutSeconds"`
	NumberOfHashes uint32 `json:"numberOfHashes"`
	FilterSize     uint32 `json:"filterSize"`
	PhaseDeadline  int64  `json:"phaseDeadline"`
	FilterBuyer    string `json:"filterBuyer,omitempty"`
	FilterSeller   string `json:"filterSeller,omitempty"`
	Penalty        string `json:"penalty,omitempty"`
	FactorPercent  uint32 `json:"factorPercent,omitempty"`
	Forfeited      string `json:"forfeited,omitempty"`
	CreatedAt      int64  `json:"createdAt"`
}

func saleToJSON(s *wordsale.Sale) saleJSON {
	out := saleJSON{
		ID:             hex.EncodeToString(s.ID[:]),
		Buyer:          s.Buyer.String(),
		Seller:         s.Seller.String(),
		State:          s.State.String(),
		Collateral:     s.Collateral.String(),
		TimeoutSeconds: s.TimeoutSeconds,
		NumberOfHashes: s.NumberOfHashes,
		FilterSize:     s.FilterSize,
		PhaseDeadline:  s.PhaseDeadline,
		FactorPercent:  s.FactorPercent,
		CreatedAt:      s.CreatedAt,
	}
	if s.FilterBuyer != nil {
		out.FilterBuyer = s.FilterBuyer.String()
	}
	if s.FilterSeller != nil {
		out.FilterSeller = s.FilterSeller.String()
	}
	if s.Penalty != nil {
		out.Penalty = s.Penalty.String()
	}
	if s.Forfeited != nil {
		out.Forfeited = s.Forfeited.String()
	}
	return out
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return "error"
	}
	var params createParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeParamError(w, req, err.Error())
	}
	buyer, err := parseAddressParam("buyer", params.Buyer)
	if err != nil {
		return s.writeParamError(w, req, err.Error())
	}
	seller, err := parseAddressParam("seller", params.Seller)
	if err != nil {
		return s.writeParamError(w, req, err.Error())
	}
	collateral, err := parsePositiveBigInt(params.Collateral)
	if err != nil {
		return s.writeParamError(w, req, err.Error())
	}
	timeout := params.TimeoutSeconds
	if timeout == 0 {
		timeout = s.cfg.DefaultTimeoutSeconds
	}
	hashes := params.NumberOfHashes
	if hashes == 0 {
		hashes = s.cfg.DefaultNumberOfHashes
	}
	filterSize := params.FilterSize
	if filterSize == 0 {
		filterSize = s.cfg.DefaultFilterSize
	}
	sale, err := s.engine.Create(buyer, seller, collateral, timeout, hashes, filterSize, params.Nonce)
	if err != nil {
		return s.writeEngineError(w, req, err)
	}
	writeResult(w, req.ID, saleToJSON(sale))
	return "ok"
}

func (s *Server) handleCommitCollateral(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return "error"
	}
	var params paymentParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeParamError(w, req, err.Error())
	}
	id, caller, value, perr := s.parsePayment(&params)
	if perr != nil {
		return s.writeParamError(w, req, perr.Error())
	}
	if err := s.engine.CommitCollateral(id, caller, value); err != nil {
		return s.writeEngineError(w, req, err)
	}
	writeResult(w, req.ID, s.saleView(id))
	return "ok"
}

func (s *Server) handleSendBloomFilter(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return "error"
	}
	var params sendFilterParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeParamError(w, req, err.Error())
	}
	id, err := parseSaleID(params.ID)
	if err != nil {
		return s.writeParamError(w, req, err.Error())
	}
	caller, err := parseAddressParam("caller", params.Caller)
	if err != nil {
		return s.writeParamError(w, req, err.Error())
	}
	filter, err := parseFilterValue(params.Filter)
	if err != nil {
		return s.writeParamError(w, req, err.Error())
	}
	if err := s.engine.SendBloomFilter(id, caller, filter); err != nil {
		return s.writeEngineError(w, req, err)
	}
	writeResult(w, req.ID, s.saleView(id))
	return "ok"
}

func (s *Server) handleStartSale(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return "error"
	}
	var params startSaleParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeParamError(w, req, err.Error())
	}
	id, err := parseSaleID(params.ID)
	if err != nil {
		return s.writeParamError(w, req, err.Error())
	}
	caller, err := parseAddressParam("caller", params.Caller)
	if err != nil {
		return s.writeParamError(w, req, err.Error())
	}
	penalty, err := parsePositiveBigInt(params.Penalty)
	if err != nil {
		return s.writeParamError(w, req, err.Error())
	}
	value, err := parsePositiveBigInt(params.Value)
	if err != nil {
		return s.writeParamError(w, req, err.Error())
	}
	if err := s.engine.StartSale(id, caller, penalty, params.FactorPercent, value); err != nil {
		return s.writeEngineError(w, req, err)
	}
	writeResult(w, req.ID, s.saleView(id))
	return "ok"
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return "error"
	}
	var params paymentParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeParamError(w, req, err.Error())
	}
	id, caller, value, perr := s.parsePayment(&params)
	if perr != nil {
		return s.writeParamError(w, req, perr.Error())
	}
	if err := s.engine.Deposit(id, caller, value); err != nil {
		return s.writeEngineError(w, req, err)
	}
	writeResult(w, req.ID, s.saleView(id))
	return "ok"
}

func (s *Server) handleAcceptSale(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	return s.handleConfirm(w, r, req, s.engine.AcceptSale)
}

func (s *Server) handleRefuseSale(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	return s.handleConfirm(w, r, req, s.engine.RefuseSale)
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request, req *RPCRequest, op func([32]byte, crypto.Address) error) string {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return "error"
	}
	var params callerParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeParamError(w, req, err.Error())
	}
	id, err := parseSaleID(params.ID)
	if err != nil {
		return s.writeParamError(w, req, err.Error())
	}
	caller, err := parseAddressParam("caller", params.Caller)
	if err != nil {
		return s.writeParamError(w, req, err.Error())
	}
	if err := op(id, caller); err != nil {
		return s.writeEngineError(w, req, err)
	}
	writeResult(w, req.ID, s.saleView(id))
	return "ok"
}

func (s *Server) handleSendWords(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return "error"
	}
	var params sendWordsParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeParamError(w, req, err.Error())
	}
	id, err := parseSaleID(params.ID)
	if err != nil {
		return s.writeParamError(w, req, err.Error())
	}
	caller, err := parseAddressParam("caller", params.Caller)
	if err != nil {
		return s.writeParamError(w, req, err.Error())
	}
	if len(params.Words) == 0 {
		return s.writeParamError(w, req, "words must not be empty")
	}
	if err := s.engine.SendWords(id, caller, params.Words); err != nil {
		return s.writeEngineError(w, req, err)
	}
	writeResult(w, req.ID, s.saleView(id))
	return "ok"
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return "error"
	}
	var params callerParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeParamError(w, req, err.Error())
	}
	id, err := parseSaleID(params.ID)
	if err != nil {
		return s.writeParamError(w, req, err.Error())
	}
	caller, err := parseAddressParam("caller", params.Caller)
	if err != nil {
		return s.writeParamError(w, req, err.Error())
	}
	amount, err := s.engine.Withdraw(id, caller)
	if err != nil {
		return s.writeEngineError(w, req, err)
	}
	writeResult(w, req.ID, map[string]string{"value": amount.String()})
	return "ok"
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	var params saleIDParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeParamError(w, req, err.Error())
	}
	id, err := parseSaleID(params.ID)
	if err != nil {
		return s.writeParamError(w, req, err.Error())
	}
	sale, err := s.engine.Get(id)
	if err != nil {
		return s.writeEngineError(w, req, err)
	}
	writeResult(w, req.ID, saleToJSON(sale))
	return "ok"
}

func (s *Server) handleWithdrawable(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	var params withdrawableParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeParamError(w, req, err.Error())
	}
	id, err := parseSaleID(params.ID)
	if err != nil {
		return s.writeParamError(w, req, err.Error())
	}
	addr, err := parseAddressParam("address", params.Address)
	if err != nil {
		return s.writeParamError(w, req, err.Error())
	}
	amount, err := s.engine.Withdrawable(id, addr)
	if err != nil {
		return s.writeEngineError(w, req, err)
	}
	writeResult(w, req.ID, map[string]string{"value": amount.String()})
	return "ok"
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	var params addressParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeParamError(w, req, err.Error())
	}
	addr, err := parseAddressParam("address", params.Address)
	if err != nil {
		return s.writeParamError(w, req, err.Error())
	}
	acc, err := s.state.GetAccount(addr)
	if err != nil {
		return s.writeEngineError(w, req, err)
	}
	writeResult(w, req.ID, map[string]string{"balance": acc.Balance.String()})
	return "ok"
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	snapshot := s.feed.Events()
	out := make([]*types.Event, 0, len(snapshot))
	for _, evt := range snapshot {
		carrier, ok := evt.(interface{ Event() *types.Event })
		if !ok {
			continue
		}
		out = append(out, carrier.Event())
	}
	writeResult(w, req.ID, out)
	return "ok"
}

// handleFund credits an account so payments can be exercised against a dev
// daemon. A production deployment would take funding from the hosting ledger.
func (s *Server) handleFund(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return "error"
	}
	var params fundParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeParamError(w, req, err.Error())
	}
	addr, err := parseAddressParam("address", params.Address)
	if err != nil {
		return s.writeParamError(w, req, err.Error())
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		return s.writeParamError(w, req, err.Error())
	}
	if err := s.state.Credit(addr, amount); err != nil {
		return s.writeEngineError(w, req, err)
	}
	acc, err := s.state.GetAccount(addr)
	if err != nil {
		return s.writeEngineError(w, req, err)
	}
	writeResult(w, req.ID, map[string]string{"balance": acc.Balance.String()})
	return "ok"
}

func (s *Server) parsePayment(params *paymentParams) ([32]byte, crypto.Address, *big.Int, error) {
	id, err := parseSaleID(params.ID)
	if err != nil {
		return id, crypto.Address{}, nil, err
	}
	caller, err := parseAddressParam("caller", params.Caller)
	if err != nil {
		return id, caller, nil, err
	}
	value, err := parsePositiveBigInt(params.Value)
	if err != nil {
		return id, caller, nil, err
	}
	return id, caller, value, nil
}

// saleView fetches the current sale for inclusion in a success response. It
// tolerates a racing lookup failure by returning a zero view.
func (s *Server) saleView(id [32]byte) saleJSON {
	sale, err := s.engine.Get(id)
	if err != nil {
		return saleJSON{ID: hex.EncodeToString(id[:])}
	}
	return saleToJSON(sale)
}
