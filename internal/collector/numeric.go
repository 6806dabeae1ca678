package collector

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

// Querier runs a GraphQL query; *subgraph.Client satisfies it.
type Querier interface {
	Query(ctx context.Context, query string, variables map[string]any, out any) error
}

const (
	// gmxUSDDecimals is the fixed-point precision of every GMX USD value.
	gmxUSDDecimals = 30
	// pageSize is the largest `first` the indexers accept.
	pageSize = 1000
)

// bigNum accepts subgraph BigInt/BigDecimal values, which arrive either as
// JSON strings or as bare numbers.
type bigNum string

func (b *bigNum) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" {
		s = ""
	}
	*b = bigNum(s)
	return nil
}

// Decimal parses the value; malformed or empty values are zero.
func (b bigNum) Decimal() decimal.Decimal {
	if b == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(string(b))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (b bigNum) Int64() int64 { return b.Decimal().IntPart() }

// USD converts a 30-decimal GMX value to dollars.
func (b bigNum) USD() decimal.Decimal { return b.Decimal().Shift(-gmxUSDDecimals) }

func floatPtr(d decimal.Decimal) *float64 {
	f := d.InexactFloat64()
	return &f
}
