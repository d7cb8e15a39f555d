package utils

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NormalizeAddress returns the EIP-55 checksum form of a hex account address.
// Values that are not 20-byte hex addresses are returned trimmed but otherwise
// untouched, since some wallets report opaque account identifiers.
func NormalizeAddress(account string) string {
	account = strings.TrimSpace(account)
	if !common.IsHexAddress(account) {
		return account
	}
	return common.HexToAddress(account).Hex()
}

// SameAddress compares two accounts case-insensitively.
func SameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
