package rpc

import (
	"net/http"

	"nestegg/native/strategy"
)

type strategySetParams struct {
	Address          string `json:"address"`
	PercentageBps    uint32 `json:"percentageBps"`
	AutoIncrementBps uint32 `json:"autoIncrementBps"`
	MaxPercentageBps uint32 `json:"maxPercentageBps"`
	RoundUp          bool   `json:"roundUp"`
	TokenType        string `json:"tokenType"`
	SpecificToken    string `json:"specificToken,omitempty"`
	EnableDCA        bool   `json:"enableDCA"`
	DCATargetToken   string `json:"dcaTargetToken,omitempty"`
}

type strategyResult struct {
	Address          string `json:"address"`
	PercentageBps    uint32 `json:"percentageBps"`
	AutoIncrementBps uint32 `json:"autoIncrementBps"`
	MaxPercentageBps uint32 `json:"maxPercentageBps"`
	RoundUp          bool   `json:"roundUp"`
	TokenType        string `json:"tokenType"`
	SpecificToken    string `json:"specificToken,omitempty"`
	EnableDCA        bool   `json:"enableDCA"`
	DCATargetToken   string `json:"dcaTargetToken,omitempty"`
	Active           bool   `json:"active"`
}

func (s *Server) handleStrategySet(w http.ResponseWriter, req *RPCRequest) {
	var params strategySetParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid strategy payload", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return
	}
	tokenType, ok := strategy.ParseTokenType(params.TokenType)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "tokenType must be INPUT, OUTPUT, or SPECIFIC", params.TokenType)
		return
	}
	cfg := &strategy.UserStrategyConfig{
		PercentageBps:    params.PercentageBps,
		AutoIncrementBps: params.AutoIncrementBps,
		MaxPercentageBps: params.MaxPercentageBps,
		RoundUp:          params.RoundUp,
		TokenType:        tokenType,
		SpecificToken:    params.SpecificToken,
		EnableDCA:        params.EnableDCA,
		DCATargetToken:   params.DCATargetToken,
	}
	if err := s.strategies.SetStrategy(addr, cfg); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleStrategyGet(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Address string `json:"address"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return
	}
	cfg, ok, err := s.strategies.Config(addr)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	if !ok {
		writeResult(w, req.ID, nil)
		return
	}
	writeResult(w, req.ID, strategyResult{
		Address:          addr.String(),
		PercentageBps:    cfg.PercentageBps,
		AutoIncrementBps: cfg.AutoIncrementBps,
		MaxPercentageBps: cfg.MaxPercentageBps,
		RoundUp:          cfg.RoundUp,
		TokenType:        cfg.TokenType.String(),
		SpecificToken:    cfg.SpecificToken,
		EnableDCA:        cfg.EnableDCA,
		DCATargetToken:   cfg.DCATargetToken,
		Active:           cfg.Active(),
	})
}

func (s *Server) handleStrategyClear(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Address string `json:"address"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return
	}
	if err := s.strategies.ClearStrategy(addr); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleSavingsBalance(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Address string `json:"address"`
		Token   string `json:"token"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return
	}
	balance, err := s.vault.BalanceOf(addr, params.Token)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{
		"address": addr.String(),
		"token":   params.Token,
		"balance": bigString(balance),
	})
}

func (s *Server) handleSavingsWithdraw(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Address string `json:"address"`
		Token   string `json:"token"`
		Amount  string `json:"amount"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.vault.Withdraw(addr, addr, params.Token, amount); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{
		"address":  addr.String(),
		"token":    params.Token,
		"withdraw": amount.String(),
	})
}
