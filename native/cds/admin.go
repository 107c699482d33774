package cds

import (
	"fmt"
	"math/big"
	"strconv"

	"usdacore/core/events"
	"usdacore/native/multisig"
	"usdacore/native/params"
)

func (e *Engine) adminUpdate(caller [20]byte, fn, value string, mutate func(*params.Protocol) error) error {
	if err := e.ready(); err != nil {
		return err
	}
	if _, err := e.params.AdminUpdate(caller, e.gate, fn, mutate); err != nil {
		return err
	}
	e.emit(events.ParamsUpdated{Function: fn, Value: value})
	return nil
}

// SetWithdrawTimeLimit sets the holding period in seconds.
func (e *Engine) SetWithdrawTimeLimit(caller [20]byte, seconds uint64) error {
	return e.adminUpdate(caller, multisig.FnSetWithdrawTimeLimit, strconv.FormatUint(seconds, 10), func(p *params.Protocol) error {
		if seconds == 0 {
			return fmt.Errorf("%w: withdraw time limit", params.ErrZeroValue)
		}
		p.WithdrawTimeLimit = seconds
		return nil
	})
}

func (e *Engine) SetUSDTLimit(caller [20]byte, limit *big.Int) error {
	value := "0"
	if limit != nil {
		value = limit.String()
	}
	return e.adminUpdate(caller, multisig.FnSetUSDTLimit, value, func(p *params.Protocol) error {
		if limit == nil || limit.Sign() <= 0 {
			return fmt.Errorf("%w: USDT limit", params.ErrZeroValue)
		}
		p.USDTLimit = new(big.Int).Set(limit)
		return nil
	})
}

func (e *Engine) SetUSDaMinBps(caller [20]byte, bps uint64) error {
	return e.adminUpdate(caller, multisig.FnSetUSDaMinBps, strconv.FormatUint(bps, 10), func(p *params.Protocol) error {
		if bps == 0 {
			return fmt.Errorf("%w: USDa share", params.ErrZeroValue)
		}
		p.USDaMinBps = bps
		return nil
	})
}

func (e *Engine) SetCoverageRatio(caller [20]byte, bps uint64) error {
	return e.adminUpdate(caller, multisig.FnSetCoverageRatio, strconv.FormatUint(bps, 10), func(p *params.Protocol) error {
		if bps == 0 {
			return fmt.Errorf("%w: coverage ratio", params.ErrZeroValue)
		}
		p.CoverageRatioBps = bps
		return nil
	})
}
