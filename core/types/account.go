package types

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// ErrInsufficientBalance is returned by Debit when the account cannot cover
// the requested amount.
var ErrInsufficientBalance = errors.New("account: insufficient balance")

// Asset identifies one of the balances tracked per account.
type Asset uint8

const (
	AssetNative Asset = iota + 1
	AssetWeETH
	AssetRsETH
	AssetUSDT
	AssetUSDa
)

func (a Asset) String() string {
	switch a {
	case AssetNative:
		return "ETH"
	case AssetWeETH:
		return "WEETH"
	case AssetRsETH:
		return "RSETH"
	case AssetUSDT:
		return "USDT"
	case AssetUSDa:
		return "USDA"
	default:
		return fmt.Sprintf("asset(%d)", uint8(a))
	}
}

// Decimals reports the base-unit precision of the asset.
func (a Asset) Decimals() int32 {
	switch a {
	case AssetUSDT, AssetUSDa:
		return 6
	default:
		return 18
	}
}

// ParseAsset resolves a symbol such as "usdt" to its Asset.
func ParseAsset(symbol string) (Asset, error) {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	for _, asset := range []Asset{AssetNative, AssetWeETH, AssetRsETH, AssetUSDT, AssetUSDa} {
		if asset.String() == normalized {
			return asset, nil
		}
	}
	return 0, fmt.Errorf("unknown asset %q", symbol)
}

// Account holds the token balances the protocol moves. Token contracts are
// external; only their accounting effects are mirrored here.
type Account struct {
	Native *big.Int `json:"native"`
	WeETH  *big.Int `json:"weeth"`
	RsETH  *big.Int `json:"rseth"`
	USDT   *big.Int `json:"usdt"`
	USDa   *big.Int `json:"usda"`
}

// NewAccount returns an account with every balance set to zero.
func NewAccount() *Account {
	acc := &Account{}
	acc.EnsureDefaults()
	return acc
}

// EnsureDefaults replaces nil balances with zero.
func (a *Account) EnsureDefaults() {
	for _, slot := range []**big.Int{&a.Native, &a.WeETH, &a.RsETH, &a.USDT, &a.USDa} {
		if *slot == nil {
			*slot = big.NewInt(0)
		}
	}
}

func (a *Account) slot(asset Asset) (**big.Int, error) {
	switch asset {
	case AssetNative:
		return &a.Native, nil
	case AssetWeETH:
		return &a.WeETH, nil
	case AssetRsETH:
		return &a.RsETH, nil
	case AssetUSDT:
		return &a.USDT, nil
	case AssetUSDa:
		return &a.USDa, nil
	default:
		return nil, fmt.Errorf("account: unknown asset %d", asset)
	}
}

// Balance returns a copy of the balance for asset.
func (a *Account) Balance(asset Asset) *big.Int {
	if a == nil {
		return big.NewInt(0)
	}
	slot, err := a.slot(asset)
	if err != nil || *slot == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(*slot)
}

func (a *Account) Credit(asset Asset, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("account: negative credit")
	}
	a.EnsureDefaults()
	slot, err := a.slot(asset)
	if err != nil {
		return err
	}
	*slot = new(big.Int).Add(*slot, amount)
	return nil
}

func (a *Account) Debit(asset Asset, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("account: negative debit")
	}
	a.EnsureDefaults()
	slot, err := a.slot(asset)
	if err != nil {
		return err
	}
	if (*slot).Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s", ErrInsufficientBalance, asset)
	}
	*slot = new(big.Int).Sub(*slot, amount)
	return nil
}
