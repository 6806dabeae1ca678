package domain

// ChainNames maps history-API chain ids to display names.
var ChainNames = map[string]string{
	"eth":    "Ethereum",
	"arb":    "Arbitrum",
	"op":     "Optimism",
	"base":   "Base",
	"matic":  "Polygon",
	"bsc":    "BNB Chain",
	"avax":   "Avalanche",
	"ftm":    "Fantom",
	"uni":    "Unichain",
	"scrl":   "Scroll",
	"xdai":   "Gnosis Chain",
	"blast":  "Blast",
	"monad":  "Monad",
	"linea":  "Linea",
	"zksync": "zkSync Era",
	"mnt":    "Mantle",
}

// ChainName returns the display name of chain, or the id itself.
func ChainName(chain string) string {
	if name, ok := ChainNames[chain]; ok {
		return name
	}
	return chain
}
