package rpc

import (
	"errors"
	"net/http"

	"gridchain/native/token"
)

const (
	codeTokenInvalidParams     = -32041
	codeTokenForbidden         = -32042
	codeTokenInsufficientFunds = -32043
	codeTokenInternal          = -32044
)

var tokenCodes = moduleCodes{
	invalidParams:     codeTokenInvalidParams,
	notFound:          codeTokenInternal,
	forbidden:         codeTokenForbidden,
	conflict:          codeTokenInternal,
	insufficientFunds: codeTokenInsufficientFunds,
	internal:          codeTokenInternal,
	classifyFn:        classifyTokenError,
}

func classifyTokenError(err error) (string, int) {
	switch {
	case errors.Is(err, token.ErrInsufficientFunds):
		return "insufficient_funds", slotInsufficientFunds
	case errors.Is(err, token.ErrUnauthorizedMint):
		return "forbidden", slotForbidden
	case errors.Is(err, token.ErrInvalidAmount):
		return "invalid_params", slotInvalidParams
	default:
		return "internal", slotInternal
	}
}

type transferParams struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func (s *Server) handleTokenTransfer(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params transferParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTokenInvalidParams, "invalid_params", err.Error())
		return
	}
	from, err := parseAddress(params.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTokenInvalidParams, "invalid_params", err.Error())
		return
	}
	to, err := parseAddress(params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTokenInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTokenInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.TokenTransfer(from, to, amount); err != nil {
		s.writeModuleError(w, req.ID, err, tokenCodes)
		return
	}
	writeResult(w, req.ID, map[string]string{"status": "ok"})
}

type mintParams struct {
	Caller string `json:"caller"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func (s *Server) handleTokenMint(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params mintParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTokenInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTokenInvalidParams, "invalid_params", err.Error())
		return
	}
	to, err := parseAddress(params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTokenInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTokenInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.TokenMint(caller, to, amount); err != nil {
		s.writeModuleError(w, req.ID, err, tokenCodes)
		return
	}
	writeResult(w, req.ID, map[string]string{"status": "ok"})
}

func (s *Server) handleTokenBalanceOf(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params addressParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTokenInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTokenInvalidParams, "invalid_params", err.Error())
		return
	}
	balance, err := s.node.TokenBalanceOf(addr)
	if err != nil {
		s.writeModuleError(w, req.ID, err, tokenCodes)
		return
	}
	writeResult(w, req.ID, map[string]string{
		"address": formatAddress(addr),
		"symbol":  token.Symbol,
		"balance": balance.String(),
	})
}

func (s *Server) handleTokenTotalSupply(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	supply, err := s.node.TokenTotalSupply()
	if err != nil {
		s.writeModuleError(w, req.ID, err, tokenCodes)
		return
	}
	writeResult(w, req.ID, map[string]string{
		"symbol": token.Symbol,
		"supply": supply.String(),
	})
}
