package node

import (
	"github.com/shopspring/decimal"
)

// FormatAmount renders a base-unit amount with the network's decimals,
// e.g. 150000000 with 8 decimals is "1.50000000".
func FormatAmount(sats int64, decimals uint8) string {
	return decimal.New(sats, -int32(decimals)).StringFixed(int32(decimals))
}
