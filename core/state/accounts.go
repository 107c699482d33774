package state

import (
	"math/big"

	"usdacore/core/types"
)

// GetAccount returns the account at addr, zero-valued when absent.
func (m *Manager) GetAccount(addr [20]byte) (*types.Account, error) {
	acc := new(types.Account)
	ok, err := m.KVGet(accountKey(addr), acc)
	if err != nil {
		return nil, err
	}
	if !ok {
		return types.NewAccount(), nil
	}
	acc.EnsureDefaults()
	return acc, nil
}

func (m *Manager) PutAccount(addr [20]byte, acc *types.Account) error {
	if acc == nil {
		acc = types.NewAccount()
	}
	acc.EnsureDefaults()
	return m.KVPut(accountKey(addr), acc)
}

// Credit adds amount of asset to addr. It is used for genesis allocations
// and operator faucets; protocol flows move balances through the treasury.
func (m *Manager) Credit(addr [20]byte, asset types.Asset, amount *big.Int) error {
	acc, err := m.GetAccount(addr)
	if err != nil {
		return err
	}
	if err := acc.Credit(asset, amount); err != nil {
		return err
	}
	return m.PutAccount(addr, acc)
}
