package rpc

import (
	"net/http"

	"nestegg/native/dca"
)

type dcaQueueEntryResult struct {
	Index             int    `json:"index"`
	FromToken         string `json:"fromToken"`
	ToToken           string `json:"toToken"`
	Amount            string `json:"amount"`
	ExecutionTick     int64  `json:"executionTick"`
	Deadline          int64  `json:"deadline"`
	Executed          bool   `json:"executed"`
	CustomSlippageBps uint32 `json:"customSlippageBps"`
}

func (s *Server) handleDCAEnable(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Address        string `json:"address"`
		TargetToken    string `json:"targetToken"`
		MinAmount      string `json:"minAmount,omitempty"`
		MaxSlippageBps uint32 `json:"maxSlippageBps"`
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
	minAmount := bigOrNil(params.MinAmount)
	if err := s.dcaEngine.Enable(addr, params.TargetToken, minAmount, params.MaxSlippageBps); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleDCADisable(w http.ResponseWriter, req *RPCRequest) {
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
	if err := s.dcaEngine.Disable(addr); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleDCASetTickStrategy(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Address            string `json:"address"`
		TickDelta          int64  `json:"tickDelta"`
		TickExpirySecs     int64  `json:"tickExpirySecs"`
		OnlyImprovePrice   bool   `json:"onlyImprovePrice"`
		MinTickImprovement int64  `json:"minTickImprovement"`
		DynamicSizing      bool   `json:"dynamicSizing"`
		CustomSlippageBps  uint32 `json:"customSlippageBps"`
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
	policy := &dca.TickStrategy{
		TickDelta:          params.TickDelta,
		TickExpirySecs:     params.TickExpirySecs,
		OnlyImprovePrice:   params.OnlyImprovePrice,
		MinTickImprovement: params.MinTickImprovement,
		DynamicSizing:      params.DynamicSizing,
		CustomSlippageBps:  params.CustomSlippageBps,
	}
	if err := s.dcaEngine.SetTickStrategy(addr, policy); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleDCAQueue(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Address   string `json:"address"`
		FromToken string `json:"fromToken"`
		ToToken   string `json:"toToken"`
		Amount    string `json:"amount"`
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
	index, err := s.dcaEngine.Queue(addr, params.FromToken, params.ToToken, amount)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]int{"index": index})
}

func (s *Server) handleDCAExecute(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Address string `json:"address"`
		Index   int    `json:"index"`
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
	proceeds, err := s.dcaEngine.ExecuteQueued(addr, params.Index)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"proceeds": bigString(proceeds)})
}

func (s *Server) handleDCAShouldExecute(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Address     string `json:"address"`
		Index       int    `json:"index"`
		CurrentTick int64  `json:"currentTick"`
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
	fire, err := s.dcaEngine.ShouldExecuteAtTick(addr, params.Index, params.CurrentTick)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"shouldExecute": fire})
}

func (s *Server) handleDCAList(w http.ResponseWriter, req *RPCRequest) {
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
	length, err := s.dcaEngine.QueueLen(addr)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	entries := make([]dcaQueueEntryResult, 0, length)
	for index := 0; index < length; index++ {
		entry, err := s.dcaEngine.QueueEntryAt(addr, index)
		if err != nil {
			writeEngineError(w, req.ID, err)
			return
		}
		entries = append(entries, dcaQueueEntryResult{
			Index:             index,
			FromToken:         entry.FromToken,
			ToToken:           entry.ToToken,
			Amount:            bigString(entry.Amount),
			ExecutionTick:     entry.ExecutionTick,
			Deadline:          entry.Deadline,
			Executed:          entry.Executed,
			CustomSlippageBps: entry.CustomSlippageBps,
		})
	}
	writeResult(w, req.ID, entries)
}
