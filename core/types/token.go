package types

import (
	"fmt"
	"strings"
)

const maxTokenSymbolLen = 16

// NormalizeToken canonicalises a token symbol for consistent state keying.
// Symbols are upper-cased, trimmed, and restricted to ASCII letters and
// digits so the same asset never produces two balance records.
func NormalizeToken(symbol string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if normalized == "" {
		return "", fmt.Errorf("token symbol must not be empty")
	}
	if len(normalized) > maxTokenSymbolLen {
		return "", fmt.Errorf("token symbol %q exceeds %d characters", normalized, maxTokenSymbolLen)
	}
	for _, r := range normalized {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", fmt.Errorf("token symbol %q contains invalid character %q", normalized, r)
		}
	}
	return normalized, nil
}
