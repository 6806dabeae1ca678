package bundle

import "github.com/alanyoungcy/walletrecon/internal/domain"

// Stats summarises a bundle list.
type Stats struct {
	Total        int                       `json:"total"`
	ByKind       map[domain.BundleKind]int `json:"by_kind"`
	Transactions int                       `json:"transactions"`
	NetValueUSD  float64                   `json:"net_value_usd"`
}

// Summarize counts bundles per kind and the transactions they hold. Every
// kind is present in ByKind, so an empty list yields all zeros.
func Summarize(bundles []domain.TransactionBundle) Stats {
	s := Stats{ByKind: make(map[domain.BundleKind]int, len(domain.BundleKinds))}
	for _, k := range domain.BundleKinds {
		s.ByKind[k] = 0
	}
	for _, b := range bundles {
		s.Total++
		s.ByKind[b.Kind]++
		s.Transactions += 1 + len(b.Related)
		s.NetValueUSD += b.NetValueUSD
	}
	return s
}
