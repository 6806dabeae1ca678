package bundle

import (
	"strings"
	"unicode"

	"github.com/alanyoungcy/walletrecon/internal/domain"
)

// protocolLabels overrides the generated label for well known protocol ids.
var protocolLabels = map[string]string{
	"gmx":        "GMX",
	"gmx2":       "GMX",
	"gmx_v2":     "GMX",
	"uniswap":    "Uniswap",
	"uniswap2":   "Uniswap V2",
	"uniswap3":   "Uniswap V3",
	"uniswap_v3": "Uniswap V3",
	"aave":       "Aave",
	"aave2":      "Aave V2",
	"aave3":      "Aave V3",
	"1inch":      "1inch",
	"1inch2":     "1inch",
}

// ProtocolLabel turns a protocol tag such as "arb_uniswap3" into a display
// label ("Uniswap V3"). The chain prefix is dropped.
func ProtocolLabel(projectID string) string {
	id := strings.ToLower(strings.TrimSpace(projectID))
	if id == "" {
		return ""
	}
	if prefix, rest, ok := strings.Cut(id, "_"); ok && rest != "" {
		if _, isChain := domain.ChainNames[prefix]; isChain {
			id = rest
		}
	}
	if label, ok := protocolLabels[id]; ok {
		return label
	}
	return Humanize(id)
}

// ActionName builds the display name of a single transaction from its
// protocol and call, falling back to a generic label.
func ActionName(tx domain.Transaction) string {
	label := ProtocolLabel(tx.ProjectID)
	action := Humanize(tx.CallName())
	if action == "" {
		action = Humanize(tx.CategoryID)
	}
	switch {
	case label != "" && action != "":
		return label + " " + action
	case label != "":
		return label
	case action != "":
		return action
	default:
		return "Transaction"
	}
}

// Humanize splits camelCase and snake_case identifiers into capitalised
// words: "executeOrder" becomes "Execute Order".
func Humanize(s string) string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}
	runes := []rune(strings.TrimSpace(s))
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || unicode.IsSpace(r):
			flush()
			continue
		case unicode.IsUpper(r) && i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])):
			flush()
		}
		cur = append(cur, r)
	}
	flush()

	for i, w := range words {
		rs := []rune(w)
		rs[0] = unicode.ToUpper(rs[0])
		words[i] = string(rs)
	}
	return strings.Join(words, " ")
}
