package rate

import "math/big"

type pegBand struct {
	floor uint64
	rate  *big.Int
	apr   uint64
}

// pegBands are ordered from the highest floor down. A price selects the first
// band whose floor it reaches.
var pegBands = []pegBand{
	{floor: 11000, rate: mustBigInt("1000000000158153903837946257"), apr: 5},
	{floor: 10450, rate: mustBigInt("1000000000782997609082909351"), apr: 25},
	{floor: 10150, rate: mustBigInt("1000000001243680656318820312"), apr: 40},
	{floor: 10000, rate: mustBigInt("1000000001547125957863212448"), apr: 50},
	{floor: 9850, rate: mustBigInt("1000000002293273137447730714"), apr: 75},
	{floor: 9750, rate: mustBigInt("1000000003022265980097387650"), apr: 100},
	{floor: 9500, rate: mustBigInt("1000000004431822129783699001"), apr: 150},
	{floor: 0, rate: mustBigInt("1000000007075835619725814915"), apr: 250},
}

// RateFromPegPrice maps the USDa market price in basis points (10000 = par)
// to a per-second rate and its APR in tenths of a percent.
func RateFromPegPrice(priceBps uint64) (*big.Int, uint64, error) {
	if priceBps == 0 {
		return nil, 0, ErrInvalidPrice
	}
	for _, band := range pegBands {
		if priceBps >= band.floor {
			return new(big.Int).Set(band.rate), band.apr, nil
		}
	}
	last := pegBands[len(pegBands)-1]
	return new(big.Int).Set(last.rate), last.apr, nil
}
