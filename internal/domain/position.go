package domain

import "time"

// Protocol tags the source protocol of a position.
type Protocol string

const (
	ProtocolGMXV2     Protocol = "gmx_v2"
	ProtocolUniswapV3 Protocol = "uniswap_v3"
)

// Direction is the side of a perpetual position.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// PositionStatus tracks whether a position is open or closed.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// AssetPair is the two sides of an LP position.
type AssetPair struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

func (p AssetPair) String() string { return p.Base + "/" + p.Quote }

// PositionMetrics is a bag of optional numbers; nil means the collector
// could not derive the value.
type PositionMetrics struct {
	SizeUSD          *float64 `json:"size_usd,omitempty"`
	CollateralUSD    *float64 `json:"collateral_usd,omitempty"`
	RealizedPnLUSD   *float64 `json:"realized_pnl_usd,omitempty"`
	UnrealizedPnLUSD *float64 `json:"unrealized_pnl_usd,omitempty"`
	FeesUSD          *float64 `json:"fees_usd,omitempty"`
	Liquidity        string   `json:"liquidity,omitempty"`
}

// ProtocolPosition is one logical position reconstructed from protocol
// events. TxIDs holds every on-chain transaction hash that touched it.
type ProtocolPosition struct {
	ID        string          `json:"id"`
	Protocol  Protocol        `json:"protocol"`
	Chain     string          `json:"chain"`
	Name      string          `json:"name"`
	Asset     string          `json:"asset"`
	Pair      *AssetPair      `json:"asset_pair,omitempty"`
	Direction Direction       `json:"direction,omitempty"`
	Status    PositionStatus  `json:"status"`
	OpenedAt  time.Time       `json:"opened_at"`
	ClosedAt  *time.Time      `json:"closed_at,omitempty"`
	TxIDs     []string        `json:"tx_ids"`
	Metrics   PositionMetrics `json:"metrics"`
}

// RegistrySnapshot is the cacheable form of a registry. The tx index is
// derived and is rebuilt on load rather than stored.
type RegistrySnapshot struct {
	Wallet    string             `json:"wallet"`
	Positions []ProtocolPosition `json:"positions"`
	BuiltAt   time.Time          `json:"built_at"`
}

// Float returns a pointer to v, for filling PositionMetrics.
func Float(v float64) *float64 { return &v }
