package domain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NormalizeWallet validates an EVM address and returns it lower-cased, the
// form every store and cache key uses.
func NormalizeWallet(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("%w: %q", ErrInvalidWallet, addr)
	}
	return strings.ToLower(common.HexToAddress(addr).Hex()), nil
}
