package rpc

import (
	"net/http"

	"nestegg/native/hook"
)

type tradeParams struct {
	Trader    string `json:"trader"`
	TokenIn   string `json:"tokenIn"`
	TokenOut  string `json:"tokenOut"`
	AmountIn  string `json:"amountIn"`
	AmountOut string `json:"amountOut,omitempty"`
}

// handleHookPreTrade runs the first callback phase for the exchange process.
// The returned withheldInput must be deducted from the trade before
// execution; the produced context is held server-side until the matching
// hook_postTrade call.
func (s *Server) handleHookPreTrade(w http.ResponseWriter, req *RPCRequest) {
	var params tradeParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", err.Error())
		return
	}
	trader, err := parseAddress(params.Trader)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid trader address", err.Error())
		return
	}
	amountIn, err := parseAmount(params.AmountIn)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	pairKey := hook.PairKey(params.TokenIn, params.TokenOut)
	ctx, adjustment, err := s.interceptor.PreTrade(trader, pairKey, hook.TradeParams{
		TokenIn:  params.TokenIn,
		TokenOut: params.TokenOut,
		AmountIn: amountIn,
	})
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}

	s.tradesMu.Lock()
	s.trades[trader.String()] = ctx
	s.tradesMu.Unlock()

	writeResult(w, req.ID, map[string]string{
		"withheldInput": bigString(adjustment.WithheldInput),
	})
}

// handleHookPostTrade runs the second callback phase with the realized trade
// result, settling the withheld savings. The stored context is released
// whether or not settlement succeeds.
func (s *Server) handleHookPostTrade(w http.ResponseWriter, req *RPCRequest) {
	var params tradeParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", err.Error())
		return
	}
	trader, err := parseAddress(params.Trader)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid trader address", err.Error())
		return
	}
	amountIn, err := parseAmount(params.AmountIn)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amountOut, err := parseAmount(params.AmountOut)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}

	s.tradesMu.Lock()
	ctx, ok := s.trades[trader.String()]
	delete(s.trades, trader.String())
	s.tradesMu.Unlock()
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "no pending trade for trader", trader.String())
		return
	}

	err = s.interceptor.PostTrade(ctx, trader, hook.TradeParams{
		TokenIn:  params.TokenIn,
		TokenOut: params.TokenOut,
		AmountIn: amountIn,
	}, hook.TradeResult{
		AmountIn:  amountIn,
		AmountOut: amountOut,
	})
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}
