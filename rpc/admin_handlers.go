package rpc

import (
	"net/http"
	"strings"

	nativecommon "nestegg/native/common"
)

func validModule(module string) bool {
	switch module {
	case nativecommon.ModuleStrategy, nativecommon.ModuleSavings, nativecommon.ModuleDCA, nativecommon.ModuleDaily:
		return true
	}
	return false
}

func (s *Server) handleAdminSetTreasury(w http.ResponseWriter, req *RPCRequest) {
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
	if err := s.manager.SetTreasuryAddress(addr); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleAdminSetFee(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		FeeBps uint32 `json:"feeBps"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", err.Error())
		return
	}
	if err := s.manager.SetTreasuryFeeBps(params.FeeBps); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleAdminRegisterModule(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Address    string `json:"address"`
		Authorized *bool  `json:"authorized,omitempty"`
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
	authorized := true
	if params.Authorized != nil {
		authorized = *params.Authorized
	}
	if err := s.manager.SetModuleAuthorized(addr, authorized); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleAdminSetPaused(w http.ResponseWriter, req *RPCRequest, paused bool) {
	var params struct {
		Module string `json:"module"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", err.Error())
		return
	}
	module := strings.ToLower(strings.TrimSpace(params.Module))
	if !validModule(module) {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "unknown module", params.Module)
		return
	}
	if err := s.manager.SetPaused(module, paused); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true, "paused": paused})
}
