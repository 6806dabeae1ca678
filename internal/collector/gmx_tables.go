package collector

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed gmx_tables.yaml
var gmxTablesYAML []byte

// OrderEffect is what an executed order does to position size.
type OrderEffect string

const (
	EffectSwap     OrderEffect = "swap"
	EffectIncrease OrderEffect = "increase"
	EffectDecrease OrderEffect = "decrease"
)

// GMXMarket describes one perpetual market.
type GMXMarket struct {
	Name       string `yaml:"name"`
	IndexToken string `yaml:"index_token"`
}

// GMXTables holds the protocol lookup tables the collector needs.
type GMXTables struct {
	OrderTypes map[int]OrderEffect  `yaml:"order_types"`
	Markets    map[string]GMXMarket `yaml:"markets"`
}

// ParseGMXTables decodes tables from YAML. Market addresses are
// lower-cased.
func ParseGMXTables(data []byte) (GMXTables, error) {
	var t GMXTables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return GMXTables{}, fmt.Errorf("collector: parse gmx tables: %w", err)
	}
	markets := make(map[string]GMXMarket, len(t.Markets))
	for addr, m := range t.Markets {
		markets[strings.ToLower(addr)] = m
	}
	t.Markets = markets
	for code, eff := range t.OrderTypes {
		switch eff {
		case EffectSwap, EffectIncrease, EffectDecrease:
		default:
			return GMXTables{}, fmt.Errorf("collector: order type %d: unknown effect %q", code, eff)
		}
	}
	return t, nil
}

// DefaultGMXTables returns the embedded Arbitrum tables.
func DefaultGMXTables() GMXTables {
	t, err := ParseGMXTables(gmxTablesYAML)
	if err != nil {
		panic(err)
	}
	return t
}

// Effect returns the effect of an order type; unknown codes are treated as
// swaps so they never move a position.
func (t GMXTables) Effect(orderType int) OrderEffect {
	if eff, ok := t.OrderTypes[orderType]; ok {
		return eff
	}
	return EffectSwap
}

// Market returns market metadata, synthesising a placeholder for addresses
// missing from the table.
func (t GMXTables) Market(addr string) GMXMarket {
	addr = strings.ToLower(addr)
	if m, ok := t.Markets[addr]; ok {
		return m
	}
	short := addr
	if len(short) > 10 {
		short = short[:10]
	}
	return GMXMarket{Name: "Market " + short, IndexToken: "?"}
}
