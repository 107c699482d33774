package genesis

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"usdacore/core/state"
	"usdacore/core/types"
	"usdacore/native/multisig"
	"usdacore/native/params"
	"usdacore/native/rate"
	"usdacore/native/treasury"
)

// appliedKey marks a database that already holds genesis state.
const appliedKey = "genesis/applied"

var ErrAlreadyApplied = errors.New("genesis: state already initialised")

// Applied reports whether genesis has been written to the manager's store.
func Applied(manager *state.Manager) (bool, error) {
	_, ok, err := manager.ParamStoreGet(appliedKey)
	return ok, err
}

// Apply writes the spec into manager's buffer. The caller commits.
func Apply(spec *GenesisSpec, manager *state.Manager) error {
	if spec == nil {
		return fmt.Errorf("genesis spec must not be nil")
	}
	if manager == nil {
		return fmt.Errorf("state manager must not be nil")
	}
	done, err := Applied(manager)
	if err != nil {
		return err
	}
	if done {
		return ErrAlreadyApplied
	}
	if spec.genesisTimestamp.IsZero() {
		if err := spec.Validate(); err != nil {
			return err
		}
	}

	p, err := spec.Protocol()
	if err != nil {
		return err
	}
	if err := params.NewStore(manager).SetProtocol(p); err != nil {
		return fmt.Errorf("genesis params: %w", err)
	}
	if err := multisig.NewEngine(manager).Configure(spec.owners, spec.Multisig.Threshold); err != nil {
		return fmt.Errorf("genesis multisig: %w", err)
	}

	idx := rate.NewIndex(spec.ratePerSecond, rateAPR(spec))
	idx.LastUpdate = uint64(spec.genesisTimestamp.Unix())
	if err := manager.PutRateIndex(idx); err != nil {
		return fmt.Errorf("genesis rate: %w", err)
	}

	supply := big.NewInt(0)
	for _, a := range spec.alloc {
		if err := manager.Credit(a.addr, a.asset, a.amount); err != nil {
			return fmt.Errorf("genesis alloc: %w", err)
		}
		if a.asset == types.AssetUSDa {
			supply.Add(supply, a.amount)
		}
	}
	if supply.Sign() > 0 {
		totals, err := manager.TreasuryTotals()
		if err != nil {
			return err
		}
		if totals == nil {
			totals = &treasury.Totals{}
		}
		totals = totals.Clone()
		totals.USDaSupply.Add(totals.USDaSupply, supply)
		if err := manager.PutTreasuryTotals(totals); err != nil {
			return err
		}
	}
	return manager.ParamStoreSet(appliedKey, []byte(strconv.FormatInt(spec.genesisTimestamp.Unix(), 10)))
}

func rateAPR(spec *GenesisSpec) uint64 {
	if spec.Rate == nil {
		return rate.DefaultAPR
	}
	return spec.Rate.APR
}
