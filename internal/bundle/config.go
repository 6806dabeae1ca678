// Package bundle recombines raw wallet transactions into user-level actions.
package bundle

// Thresholds of the bundling passes.
const (
	// OrderPairWindowSec is the maximum distance between a protocol batch
	// and its keeper execution.
	OrderPairWindowSec int64 = 120
	// ApprovalWindowSec is how far after an approval its action may occur.
	ApprovalWindowSec int64 = 300
	// GasRefundMaxAmount is the exclusive upper bound of a refund receive.
	GasRefundMaxAmount = 0.0003
	// CloseSettlementAmount is the settlement-token amount above which an
	// executed order is treated as closing a position.
	CloseSettlementAmount = 100.0
	// OverheadThresholdUSD is the |net value| below which a bundle is
	// classified as overhead.
	OverheadThresholdUSD = 1.0
)

// Config parameterises the Engine. Zero values are not meaningful; start
// from DefaultConfig.
type Config struct {
	OrderProtocol         string   `toml:"order_protocol"`
	OrderLabel            string   `toml:"order_label"`
	BatchCalls            []string `toml:"batch_calls"`
	ExecutePrefix         string   `toml:"execute_prefix"`
	SettlementSymbols     []string `toml:"settlement_symbols"`
	CloseSettlementAmount float64  `toml:"close_settlement_amount"`
	OrderPairWindowSec    int64    `toml:"order_pair_window_sec"`

	ApprovalCategory   string   `toml:"approval_category"`
	ApprovalWindowSec  int64    `toml:"approval_window_sec"`
	AggregatorKeywords []string `toml:"aggregator_keywords"`

	GasSymbols         []string `toml:"gas_symbols"`
	GasRefundMaxAmount float64  `toml:"gas_refund_max_amount"`

	OverheadThresholdUSD float64 `toml:"overhead_threshold_usd"`
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		OrderProtocol:         "gmx",
		OrderLabel:            "GMX",
		BatchCalls:            []string{"batch"},
		ExecutePrefix:         "execute",
		SettlementSymbols:     []string{"USDC"},
		CloseSettlementAmount: CloseSettlementAmount,
		OrderPairWindowSec:    OrderPairWindowSec,

		ApprovalCategory:  "approve",
		ApprovalWindowSec: ApprovalWindowSec,
		AggregatorKeywords: []string{
			"uniswap", "1inch", "paraswap", "odos", "kyber", "cowswap",
			"sushi", "curve", "balancer", "pancake", "aerodrome", "velodrome",
			"camelot", "lifi", "openocean", "matcha",
		},

		GasSymbols:         []string{"ETH", "WETH"},
		GasRefundMaxAmount: GasRefundMaxAmount,

		OverheadThresholdUSD: OverheadThresholdUSD,
	}
}
