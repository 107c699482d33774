package borrowing_test

import (
	"math/big"

	"usdacore/native/cds"
)

func cdsDeposit(amount int64) cds.DepositRequest {
	return cds.DepositRequest{
		Depositor:         depositor,
		USDT:              big.NewInt(amount),
		OptIn:             true,
		LiquidationAmount: big.NewInt(amount / 2),
		Now:               t0,
	}
}
