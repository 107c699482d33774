package types

import (
	"fmt"
	"math/big"
)

// CollateralAssets lists the ETH-denominated assets accepted as collateral.
func CollateralAssets() []Asset {
	return []Asset{AssetNative, AssetWeETH, AssetRsETH}
}

// IsCollateral reports whether asset is one of CollateralAssets.
func (a Asset) IsCollateral() bool {
	return a == AssetNative || a == AssetWeETH || a == AssetRsETH
}

// CollateralAmounts splits a collateral figure by kind. Balances of one kind
// never cover another.
type CollateralAmounts struct {
	Native *big.Int `json:"native"`
	WeETH  *big.Int `json:"weeth"`
	RsETH  *big.Int `json:"rseth"`
}

func (c *CollateralAmounts) EnsureDefaults() {
	for _, slot := range []**big.Int{&c.Native, &c.WeETH, &c.RsETH} {
		if *slot == nil {
			*slot = big.NewInt(0)
		}
	}
}

// Clone returns a deep copy with nil amounts replaced by zero.
func (c CollateralAmounts) Clone() CollateralAmounts {
	out := CollateralAmounts{}
	if c.Native != nil {
		out.Native = new(big.Int).Set(c.Native)
	}
	if c.WeETH != nil {
		out.WeETH = new(big.Int).Set(c.WeETH)
	}
	if c.RsETH != nil {
		out.RsETH = new(big.Int).Set(c.RsETH)
	}
	out.EnsureDefaults()
	return out
}

func (c *CollateralAmounts) slot(asset Asset) (**big.Int, error) {
	switch asset {
	case AssetNative:
		return &c.Native, nil
	case AssetWeETH:
		return &c.WeETH, nil
	case AssetRsETH:
		return &c.RsETH, nil
	default:
		return nil, fmt.Errorf("collateral: %s is not a collateral asset", asset)
	}
}

// Of returns a copy of the amount held for asset.
func (c *CollateralAmounts) Of(asset Asset) *big.Int {
	if c == nil {
		return big.NewInt(0)
	}
	slot, err := c.slot(asset)
	if err != nil || *slot == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(*slot)
}

func (c *CollateralAmounts) Add(asset Asset, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("collateral: negative amount")
	}
	c.EnsureDefaults()
	slot, err := c.slot(asset)
	if err != nil {
		return err
	}
	*slot = new(big.Int).Add(*slot, amount)
	return nil
}

func (c *CollateralAmounts) Sub(asset Asset, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("collateral: negative amount")
	}
	c.EnsureDefaults()
	slot, err := c.slot(asset)
	if err != nil {
		return err
	}
	if (*slot).Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s", ErrInsufficientBalance, asset)
	}
	*slot = new(big.Int).Sub(*slot, amount)
	return nil
}

// Total sums every kind.
func (c *CollateralAmounts) Total() *big.Int {
	out := big.NewInt(0)
	for _, asset := range CollateralAssets() {
		out.Add(out, c.Of(asset))
	}
	return out
}

// Split divides amount across the kinds in proportion to c. Rounding dust is
// assigned in CollateralAssets order without exceeding any kind, so every
// part stays within c when amount is at most c.Total().
func (c *CollateralAmounts) Split(amount *big.Int) CollateralAmounts {
	out := CollateralAmounts{}
	out.EnsureDefaults()
	total := c.Total()
	if amount == nil || amount.Sign() <= 0 || total.Sign() == 0 {
		return out
	}
	if amount.Cmp(total) > 0 {
		amount = total
	}
	assigned := big.NewInt(0)
	for _, asset := range CollateralAssets() {
		part := new(big.Int).Mul(amount, c.Of(asset))
		part.Quo(part, total)
		_ = out.Add(asset, part)
		assigned.Add(assigned, part)
	}
	rem := new(big.Int).Sub(amount, assigned)
	for _, asset := range CollateralAssets() {
		if rem.Sign() == 0 {
			break
		}
		room := new(big.Int).Sub(c.Of(asset), out.Of(asset))
		if room.Sign() <= 0 {
			continue
		}
		if room.Cmp(rem) > 0 {
			room.Set(rem)
		}
		_ = out.Add(asset, room)
		rem.Sub(rem, room)
	}
	return out
}
