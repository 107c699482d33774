package cds_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"usdacore/core"
	"usdacore/core/state"
	"usdacore/core/types"
	"usdacore/native/borrowing"
	"usdacore/native/cds"
	"usdacore/native/multisig"
	"usdacore/native/params"
	"usdacore/storage"
)

const t0 int64 = 1_700_000_000

var (
	admin     = [20]byte{0xad}
	owner1    = [20]byte{0x01}
	owner2    = [20]byte{0x02}
	depositor = [20]byte{0xc0}
	borrower  = [20]byte{0xb0}
	custody   = [20]byte{0xfe}
)

func newDB(t *testing.T, usdtLimit int64) *storage.MemDB {
	t.Helper()
	db := storage.NewMemDB()
	m := state.NewManager(db)
	p := params.Default()
	p.Admin = admin
	p.USDTLimit = big.NewInt(usdtLimit)
	require.NoError(t, params.NewStore(m).SetProtocol(p))
	require.NoError(t, multisig.NewEngine(m).Configure([][20]byte{owner1, owner2}, 2))
	require.NoError(t, m.Credit(depositor, types.AssetUSDT, big.NewInt(5_000_000_000)))
	require.NoError(t, m.Credit(depositor, types.AssetUSDa, big.NewInt(1_000_000_000)))
	require.NoError(t, m.Credit(borrower, types.AssetNative, big.NewInt(1_000_000_000_000_000_000)))
	require.NoError(t, m.Commit())
	return db
}

func run(t *testing.T, db *storage.MemDB, fn func(e *core.Engines) error) error {
	t.Helper()
	m := state.NewManager(db)
	engines, err := core.NewEngines(m, core.EngineConfig{Custody: custody})
	require.NoError(t, err)
	if err := fn(engines); err != nil {
		m.Discard()
		return err
	}
	require.NoError(t, m.Commit())
	return nil
}

func deposit(t *testing.T, db *storage.MemDB, usdt, usda int64, now int64) (uint64, error) {
	t.Helper()
	var index uint64
	err := run(t, db, func(e *core.Engines) error {
		var err error
		index, _, err = e.CDS.Deposit(cds.DepositRequest{
			Depositor:         depositor,
			USDT:              big.NewInt(usdt),
			USDa:              big.NewInt(usda),
			OptIn:             true,
			LiquidationAmount: big.NewInt((usdt + usda) / 2),
			Now:               now,
		})
		return err
	})
	return index, err
}

func balance(t *testing.T, db *storage.MemDB, addr [20]byte, asset types.Asset) *big.Int {
	t.Helper()
	acc, err := state.NewManager(db).GetAccount(addr)
	require.NoError(t, err)
	return acc.Balance(asset)
}

func TestDepositUSDTLimitRules(t *testing.T) {
	db := newDB(t, 1_000_000_000)

	_, err := deposit(t, db, 100, 100, t0)
	require.ErrorIs(t, err, cds.ErrUSDTOnly)
	_, err = deposit(t, db, 1_500_000_000, 0, t0)
	require.ErrorIs(t, err, cds.ErrSurplusUSDT)
	_, err = deposit(t, db, 0, 0, t0)
	require.ErrorIs(t, err, cds.ErrZeroDeposit)

	index, err := deposit(t, db, 1_000_000_000, 0, t0)
	require.NoError(t, err)
	require.EqualValues(t, 1, index)

	_, err = deposit(t, db, 500_000_000, 0, t0)
	require.ErrorIs(t, err, cds.ErrUSDaShareNotMet)
	index, err = deposit(t, db, 200_000_000, 800_000_000, t0)
	require.NoError(t, err)
	require.EqualValues(t, 2, index)

	require.NoError(t, run(t, db, func(e *core.Engines) error {
		pool, err := e.CDS.Pool()
		require.NoError(t, err)
		require.Equal(t, int64(1_200_000_000), pool.USDTDeposited.Int64())
		require.Equal(t, int64(1_000_000_000), pool.TotalAvailableLiquidation.Int64())
		require.EqualValues(t, 1, pool.Depositors)

		totals, err := e.Ledger.Totals()
		require.NoError(t, err)
		require.Equal(t, int64(2_000_000_000), totals.TotalCdsDeposited.Int64())
		require.Equal(t, int64(2_000_000_000), totals.CDSUSDaReserve.Int64())
		require.Equal(t, int64(1_200_000_000), totals.USDTReserve.Int64())
		return nil
	}))
}

func TestDepositRejectsOversizedLiquidationAmount(t *testing.T) {
	db := newDB(t, 20_000_000_000)
	err := run(t, db, func(e *core.Engines) error {
		_, _, err := e.CDS.Deposit(cds.DepositRequest{
			Depositor:         depositor,
			USDT:              big.NewInt(100),
			OptIn:             true,
			LiquidationAmount: big.NewInt(101),
			Now:               t0,
		})
		return err
	})
	require.ErrorIs(t, err, cds.ErrLiquidationAmountTooHigh)

	_, err = deposit(t, db, 6_000_000_000, 0, t0)
	require.ErrorIs(t, err, cds.ErrInsufficientUSDT)
}

func TestWithdrawAfterHoldingPeriod(t *testing.T) {
	db := newDB(t, 20_000_000_000)
	require.NoError(t, run(t, db, func(e *core.Engines) error {
		return e.State.Credit(depositor, types.AssetUSDT, big.NewInt(5_000_000_000))
	}))
	index, err := deposit(t, db, 10_000_000_000, 0, t0)
	require.NoError(t, err)

	withdraw := func(now int64) (*cds.WithdrawResult, error) {
		var res *cds.WithdrawResult
		err := run(t, db, func(e *core.Engines) error {
			var err error
			res, err = e.CDS.Withdraw(cds.WithdrawRequest{Depositor: depositor, Index: index, Price: 100_000, Now: now})
			return err
		})
		return res, err
	}

	_, err = withdraw(t0 + 86_399)
	require.ErrorIs(t, err, cds.ErrWithdrawTooEarly)

	res, err := withdraw(t0 + 86_400)
	require.NoError(t, err)
	require.Equal(t, int64(10_000_000_000), res.USDa.Int64())
	require.Zero(t, res.DebtShare.Sign())
	require.Zero(t, res.TotalCollateral().Sign())
	require.Equal(t, int64(11_000_000_000), balance(t, db, depositor, types.AssetUSDa).Int64())
	require.Zero(t, balance(t, db, depositor, types.AssetUSDT).Sign())

	_, err = withdraw(t0 + 86_400)
	require.ErrorIs(t, err, cds.ErrAlreadyWithdrawn)

	require.NoError(t, run(t, db, func(e *core.Engines) error {
		pool, err := e.CDS.Pool()
		require.NoError(t, err)
		require.Zero(t, pool.TotalAvailableLiquidation.Sign())
		totals, err := e.Ledger.Totals()
		require.NoError(t, err)
		require.Zero(t, totals.TotalCdsDeposited.Sign())
		require.Zero(t, totals.CDSUSDaReserve.Sign())
		return nil
	}))
}

func TestWithdrawKeepsBorrowCoverage(t *testing.T) {
	db := newDB(t, 20_000_000_000)
	index, err := deposit(t, db, 1_000_000_000, 0, t0)
	require.NoError(t, err)
	require.NoError(t, run(t, db, func(e *core.Engines) error {
		_, _, err := e.Borrowing.DepositCollateral(borrowing.DepositRequest{
			Borrower:       borrower,
			PriceHint:      100_000,
			StrikePrice:    105_000,
			Volatility:     50,
			CollateralKind: borrowing.KindETH,
			Amount:         big.NewInt(1_000_000_000_000_000_000),
			Now:            t0,
		})
		return err
	}))

	err = run(t, db, func(e *core.Engines) error {
		_, err := e.CDS.Withdraw(cds.WithdrawRequest{Depositor: depositor, Index: index, Price: 100_000, Now: t0 + 86_400})
		return err
	})
	require.ErrorIs(t, err, cds.ErrNotEnoughFund)
}

func TestRedeemUSDT(t *testing.T) {
	db := newDB(t, 20_000_000_000)
	_, err := deposit(t, db, 1_000_000_000, 0, t0)
	require.NoError(t, err)

	redeem := func(req cds.RedeemRequest) (*big.Int, error) {
		var out *big.Int
		err := run(t, db, func(e *core.Engines) error {
			var err error
			out, err = e.CDS.RedeemUSDT(req)
			return err
		})
		return out, err
	}

	_, err = redeem(cds.RedeemRequest{Account: depositor, USDa: big.NewInt(100_000_000), USDaPrice: 100, USDTPrice: 100, MinUSDTOut: big.NewInt(100_000_001)})
	require.ErrorIs(t, err, cds.ErrSlippage)
	_, err = redeem(cds.RedeemRequest{Account: depositor, USDa: big.NewInt(1_000_000_000), USDaPrice: 200, USDTPrice: 100})
	require.ErrorIs(t, err, cds.ErrInsufficientReserve)
	_, err = redeem(cds.RedeemRequest{Account: depositor, USDa: big.NewInt(2_000_000_000), USDaPrice: 100, USDTPrice: 100})
	require.ErrorIs(t, err, cds.ErrInsufficientBalance)

	out, err := redeem(cds.RedeemRequest{Account: depositor, USDa: big.NewInt(100_000_000), USDaPrice: 100, USDTPrice: 100})
	require.NoError(t, err)
	require.Equal(t, int64(100_000_000), out.Int64())
	require.Equal(t, int64(4_100_000_000), balance(t, db, depositor, types.AssetUSDT).Int64())
	require.Equal(t, int64(900_000_000), balance(t, db, depositor, types.AssetUSDa).Int64())
}

func TestAdminSetters(t *testing.T) {
	db := newDB(t, 20_000_000_000)
	err := run(t, db, func(e *core.Engines) error { return e.CDS.SetWithdrawTimeLimit(depositor, 60) })
	require.ErrorIs(t, err, cds.ErrNotAdmin)
	err = run(t, db, func(e *core.Engines) error { return e.CDS.SetWithdrawTimeLimit(admin, 60) })
	require.ErrorIs(t, err, cds.ErrApprovalsNotMet)

	require.NoError(t, run(t, db, func(e *core.Engines) error {
		for _, owner := range [][20]byte{owner1, owner2} {
			if _, err := e.Multisig.ApproveFunction(owner, multisig.FnSetWithdrawTimeLimit); err != nil {
				return err
			}
		}
		return e.CDS.SetWithdrawTimeLimit(admin, 60)
	}))
	err = run(t, db, func(e *core.Engines) error { return e.CDS.SetWithdrawTimeLimit(admin, 120) })
	require.ErrorIs(t, err, cds.ErrApprovalsNotMet)

	index, err := deposit(t, db, 1_000_000_000, 0, t0)
	require.NoError(t, err)
	require.NoError(t, run(t, db, func(e *core.Engines) error {
		_, err := e.CDS.Withdraw(cds.WithdrawRequest{Depositor: depositor, Index: index, Price: 100_000, Now: t0 + 60})
		return err
	}))
}
