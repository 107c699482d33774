package events

import (
	"math/big"
	"strconv"

	"usdacore/crypto"
)

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatAddress(addr [20]byte) string {
	return crypto.FormatRaw(addr)
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}
