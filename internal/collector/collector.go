// Package collector reconstructs protocol positions for a wallet from
// protocol subgraphs. Each protocol is one Collector.
package collector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/walletrecon/internal/domain"
)

// Collector fetches every position a wallet holds or held on one protocol.
// Implementations must be safe for concurrent use.
type Collector interface {
	Protocol() domain.Protocol
	Fetch(ctx context.Context, wallet string) ([]domain.ProtocolPosition, error)
}

// protocolLabels are the display prefixes of position names.
var protocolLabels = map[domain.Protocol]string{
	domain.ProtocolGMXV2:     "GMX",
	domain.ProtocolUniswapV3: "Uniswap V3",
}

// PositionName renders "<label> <asset> [<Direction>] (MM/DD/YY)" with the
// date taken in UTC so the name never depends on the host timezone.
func PositionName(protocol domain.Protocol, asset string, dir domain.Direction, openedAt time.Time) string {
	label, ok := protocolLabels[protocol]
	if !ok {
		label = string(protocol)
	}
	parts := []string{label, asset}
	if dir != "" {
		parts = append(parts, strings.ToUpper(string(dir[:1]))+string(dir[1:]))
	}
	return fmt.Sprintf("%s (%s)", strings.Join(parts, " "), openedAt.UTC().Format("01/02/06"))
}
