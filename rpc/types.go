package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"nestegg/crypto"
	nativecommon "nestegg/native/common"
	"nestegg/native/daily"
	"nestegg/native/dca"
	"nestegg/native/hook"
	"nestegg/native/ledger"
	"nestegg/native/strategy"
)

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("parameter object required")
	}
	return json.Unmarshal(req.Params[0], out)
}

func parseAddress(value string) (crypto.Address, error) {
	return crypto.DecodeAddress(strings.TrimSpace(value))
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	return amount, nil
}

// bigOrNil parses an optional decimal amount, treating blanks and malformed
// values as absent.
func bigOrNil(value string) *big.Int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil
	}
	return amount
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// writeEngineError maps engine sentinel errors onto JSON-RPC error codes.
// Validation and precondition failures surface as invalid params; anything
// else is a server error.
func writeEngineError(w http.ResponseWriter, id interface{}, err error) {
	clientErrs := []error{
		strategy.ErrInvalidPercentage,
		strategy.ErrMaxPercentageTooLow,
		strategy.ErrInvalidSpecificToken,
		strategy.ErrInvalidDCATarget,
		ledger.ErrInsufficientBalance,
		ledger.ErrUnauthorized,
		ledger.ErrInvalidAmount,
		ledger.ErrFeeAboveCeiling,
		dca.ErrNotEnabled,
		dca.ErrEntryNotFound,
		dca.ErrAlreadyExecuted,
		dca.ErrNotTriggered,
		dca.ErrBelowMinimum,
		dca.ErrInvalidAmount,
		dca.ErrInvalidSlippage,
		dca.ErrInvalidTickStrategy,
		dca.ErrInsufficientSavings,
		daily.ErrInvalidToken,
		daily.ErrInvalidAmount,
		daily.ErrInvalidPenalty,
		daily.ErrInvalidEndTime,
		daily.ErrNotConfigured,
		hook.ErrContextConsumed,
		hook.ErrContextMismatch,
		hook.ErrInvalidTrade,
		nativecommon.ErrModulePaused,
		nativecommon.ErrReentrancy,
	}
	for _, candidate := range clientErrs {
		if errors.Is(err, candidate) {
			writeError(w, http.StatusBadRequest, id, codeInvalidParams, err.Error(), nil)
			return
		}
	}
	writeError(w, http.StatusInternalServerError, id, codeServerError, err.Error(), nil)
}
