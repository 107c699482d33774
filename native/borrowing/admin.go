package borrowing

import (
	"fmt"
	"math/big"
	"strconv"

	"usdacore/core/events"
	"usdacore/crypto"
	"usdacore/native/multisig"
	"usdacore/native/params"
	"usdacore/native/rate"
)

// Re-exported so callers can match setter failures against one package.
var (
	ErrNotAdmin        = params.ErrNotAdmin
	ErrApprovalsNotMet = params.ErrApprovalsNotMet
	ErrZeroAddress     = params.ErrZeroAddress
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

func (e *Engine) SetLTV(caller [20]byte, ltv uint64) error {
	return e.adminUpdate(caller, multisig.FnSetLTV, strconv.FormatUint(ltv, 10), func(p *params.Protocol) error {
		if ltv == 0 {
			return fmt.Errorf("%w: LTV", params.ErrZeroValue)
		}
		p.LTV = ltv
		return nil
	})
}

func (e *Engine) SetBondRatio(caller [20]byte, ratio uint64) error {
	return e.adminUpdate(caller, multisig.FnSetBondRatio, strconv.FormatUint(ratio, 10), func(p *params.Protocol) error {
		if ratio == 0 {
			return fmt.Errorf("%w: bond ratio", params.ErrZeroValue)
		}
		p.BondRatio = ratio
		return nil
	})
}

func (e *Engine) SetAbondBacking(caller [20]byte, bps uint64) error {
	return e.adminUpdate(caller, multisig.FnSetAbondBacking, strconv.FormatUint(bps, 10), func(p *params.Protocol) error {
		if bps == 0 {
			return fmt.Errorf("%w: abond backing", params.ErrZeroValue)
		}
		p.AbondBackingBps = bps
		return nil
	})
}

func (e *Engine) SetAdmin(caller, admin [20]byte) error {
	return e.adminUpdate(caller, multisig.FnSetAdmin, crypto.FormatRaw(admin), func(p *params.Protocol) error {
		if admin == ([20]byte{}) {
			return ErrZeroAddress
		}
		p.Admin = admin
		return nil
	})
}

func (e *Engine) SetOptionsAddress(caller, options [20]byte) error {
	return e.adminUpdate(caller, multisig.FnSetOptions, crypto.FormatRaw(options), func(p *params.Protocol) error {
		if options == ([20]byte{}) {
			return ErrZeroAddress
		}
		p.Options = options
		return nil
	})
}

// SetAPR switches the per-second rate after accruing the index under the old
// one. apr is informational and uses tenths of a percent.
func (e *Engine) SetAPR(caller [20]byte, apr uint64, ratePerSecond *big.Int, now int64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if _, err := e.params.RequireAdmin(caller); err != nil {
		return err
	}
	if apr == 0 || ratePerSecond == nil || ratePerSecond.Sign() == 0 {
		return rate.ErrZeroRate
	}
	if e.gate == nil {
		return ErrApprovalsNotMet
	}
	ok, err := e.gate.IsApproved(multisig.FnSetAPR)
	if err != nil {
		return err
	}
	if !ok {
		return ErrApprovalsNotMet
	}
	if err := e.applyRate(ratePerSecond, apr, unixSeconds(now), "admin"); err != nil {
		return err
	}
	return e.gate.Consume(multisig.FnSetAPR)
}

// SetRateFromPegPrice derives the rate from the USDa peg price in basis
// points. It needs the admin but no owner approvals.
func (e *Engine) SetRateFromPegPrice(caller [20]byte, priceBps uint64, now int64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if _, err := e.params.RequireAdmin(caller); err != nil {
		return err
	}
	ratePerSecond, apr, err := rate.RateFromPegPrice(priceBps)
	if err != nil {
		return err
	}
	return e.applyRate(ratePerSecond, apr, unixSeconds(now), "peg")
}

func (e *Engine) applyRate(ratePerSecond *big.Int, apr, now uint64, source string) error {
	idx, err := e.state.RateIndex()
	if err != nil {
		return err
	}
	if idx == nil {
		idx = rate.NewIndex(nil, 0)
	}
	if err := idx.SetRate(ratePerSecond, apr, now); err != nil {
		return err
	}
	if err := e.state.PutRateIndex(idx); err != nil {
		return err
	}
	e.emit(events.RateUpdated{
		RatePerSecond:   idx.RatePerSecond,
		APR:             idx.APR,
		CumulativeIndex: idx.Cumulative,
		Source:          source,
	})
	return nil
}
