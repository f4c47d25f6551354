package rpc

import (
	"net/http"
	"strings"

	"nestegg/native/daily"
)

type dailyConfigResult struct {
	Token         string `json:"token"`
	Enabled       bool   `json:"enabled"`
	DailyAmount   string `json:"dailyAmount"`
	GoalAmount    string `json:"goalAmount"`
	CurrentAmount string `json:"currentAmount"`
	PenaltyBps    uint32 `json:"penaltyBps"`
	StartTime     int64  `json:"startTime"`
	LastExecution int64  `json:"lastExecution"`
	EndTime       int64  `json:"endTime"`
	Route         string `json:"route"`
	GoalReached   bool   `json:"goalReached"`
}

func routeLabel(route daily.YieldRoute) string {
	if route == daily.YieldRouteExternal {
		return "external"
	}
	return "none"
}

func parseRoute(value string) (daily.YieldRoute, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "none":
		return daily.YieldRouteNone, true
	case "external":
		return daily.YieldRouteExternal, true
	default:
		return daily.YieldRouteNone, false
	}
}

func (s *Server) handleDailyConfigure(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Address     string `json:"address"`
		Token       string `json:"token"`
		DailyAmount string `json:"dailyAmount"`
		GoalAmount  string `json:"goalAmount"`
		PenaltyBps  uint32 `json:"penaltyBps"`
		EndTime     int64  `json:"endTime"`
		Route       string `json:"route,omitempty"`
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
	dailyAmount, err := parseAmount(params.DailyAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	goalAmount, err := parseAmount(params.GoalAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	route, ok := parseRoute(params.Route)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "route must be none or external", params.Route)
		return
	}
	if err := s.daily.Configure(addr, params.Token, dailyAmount, goalAmount, params.PenaltyBps, params.EndTime, route); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleDailyExecute(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Address string `json:"address"`
		Token   string `json:"token,omitempty"`
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
	if strings.TrimSpace(params.Token) != "" {
		saved, err := s.daily.ExecuteForToken(addr, params.Token)
		if err != nil {
			writeEngineError(w, req.ID, err)
			return
		}
		writeResult(w, req.ID, map[string]string{"saved": bigString(saved)})
		return
	}
	saved, err := s.daily.Execute(addr)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"saved": bigString(saved)})
}

func (s *Server) handleDailyWithdraw(w http.ResponseWriter, req *RPCRequest) {
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
	net, err := s.daily.Withdraw(addr, params.Token, amount)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"net": bigString(net)})
}

func (s *Server) handleDailyDisable(w http.ResponseWriter, req *RPCRequest) {
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
	if err := s.daily.Disable(addr, params.Token); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleDailyGet(w http.ResponseWriter, req *RPCRequest) {
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
	cfg, ok, err := s.daily.ConfigFor(addr, params.Token)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	if !ok {
		writeResult(w, req.ID, nil)
		return
	}
	writeResult(w, req.ID, dailyConfigResult{
		Token:         cfg.Token,
		Enabled:       cfg.Enabled,
		DailyAmount:   bigString(cfg.DailyAmount),
		GoalAmount:    bigString(cfg.GoalAmount),
		CurrentAmount: bigString(cfg.CurrentAmount),
		PenaltyBps:    cfg.PenaltyBps,
		StartTime:     cfg.StartTime,
		LastExecution: cfg.LastExecution,
		EndTime:       cfg.EndTime,
		Route:         routeLabel(cfg.Route),
		GoalReached:   cfg.GoalReached(),
	})
}
