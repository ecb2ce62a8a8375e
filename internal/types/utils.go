package types

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NormalizeAddress validates a 20-byte hex address and returns it lower-cased
// with the 0x prefix. Canonical messages and ledger keys always use this form.
func NormalizeAddress(addr string) (string, error) {
	if !common.IsHexAddress(addr) {
		return "", NewValidationError("address", "not a 20-byte hex address")
	}
	return strings.ToLower(common.HexToAddress(addr).Hex()), nil
}

// ParseAmount parses a base-10 amount in the smallest unit. Rejects zero,
// negative and non-numeric input.
func ParseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, NewValidationError("amount", "not a base-10 integer")
	}
	if v.Sign() <= 0 {
		return nil, NewValidationError("amount", "must be positive")
	}
	return v, nil
}

// AmountString is the canonical wire and storage form of an amount. Amount
// equality across request, proof and batch record is string equality of this
// form.
func AmountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
