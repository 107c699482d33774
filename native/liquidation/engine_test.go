package liquidation_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"usdacore/core"
	"usdacore/core/state"
	"usdacore/core/types"
	"usdacore/native/borrowing"
	"usdacore/native/cds"
	"usdacore/native/liquidation"
	"usdacore/native/params"
	"usdacore/storage"
)

const (
	t0       int64 = 1_700_000_000
	oneDay   int64 = 86_400
	openedAt       = 100_000
)

var (
	admin    = [20]byte{0xad}
	borrower = [20]byte{0xb0}
	alice    = [20]byte{0xa1}
	bob      = [20]byte{0xb1}
	custody  = [20]byte{0xfe}

	oneEth = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

type harness struct {
	t  *testing.T
	db *storage.MemDB
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := storage.NewMemDB()
	m := state.NewManager(db)
	p := params.Default()
	p.Admin = admin
	require.NoError(t, params.NewStore(m).SetProtocol(p))
	require.NoError(t, m.Credit(borrower, types.AssetNative, new(big.Int).Mul(oneEth, big.NewInt(5))))
	for _, who := range [][20]byte{alice, bob} {
		require.NoError(t, m.Credit(who, types.AssetUSDT, big.NewInt(5_000_000_000)))
	}
	require.NoError(t, m.Commit())
	return &harness{t: t, db: db}
}

func (h *harness) run(fn func(e *core.Engines) error) error {
	h.t.Helper()
	m := state.NewManager(h.db)
	engines, err := core.NewEngines(m, core.EngineConfig{Custody: custody})
	require.NoError(h.t, err)
	if err := fn(engines); err != nil {
		m.Discard()
		return err
	}
	require.NoError(h.t, m.Commit())
	return nil
}

func (h *harness) depositCDS(who [20]byte, amount, liquidationAmount int64, now int64) uint64 {
	h.t.Helper()
	var index uint64
	require.NoError(h.t, h.run(func(e *core.Engines) error {
		var err error
		index, _, err = e.CDS.Deposit(cds.DepositRequest{
			Depositor:         who,
			USDT:              big.NewInt(amount),
			OptIn:             liquidationAmount > 0,
			LiquidationAmount: big.NewInt(liquidationAmount),
			Now:               now,
		})
		return err
	}))
	return index
}

func (h *harness) borrow(now int64) uint64 {
	h.t.Helper()
	var index uint64
	require.NoError(h.t, h.run(func(e *core.Engines) error {
		var err error
		index, _, err = e.Borrowing.DepositCollateral(borrowing.DepositRequest{
			Borrower:       borrower,
			PriceHint:      openedAt,
			StrikePrice:    openedAt + 5_000,
			Volatility:     50,
			CollateralKind: borrowing.KindETH,
			Amount:         oneEth,
			Now:            now,
		})
		return err
	}))
	return index
}

func (h *harness) liquidate(caller [20]byte, index uint64, price uint64, now int64) (*liquidation.Result, error) {
	h.t.Helper()
	var res *liquidation.Result
	err := h.run(func(e *core.Engines) error {
		var err error
		res, err = e.Liquidation.Liquidate(liquidation.Request{
			Caller:   caller,
			Borrower: borrower,
			Index:    index,
			Price:    price,
			Now:      now,
		})
		return err
	})
	return res, err
}

func (h *harness) withdrawCDS(who [20]byte, index uint64, now int64) *cds.WithdrawResult {
	h.t.Helper()
	var res *cds.WithdrawResult
	require.NoError(h.t, h.run(func(e *core.Engines) error {
		var err error
		res, err = e.CDS.Withdraw(cds.WithdrawRequest{Depositor: who, Index: index, Price: openedAt, Now: now})
		return err
	}))
	return res
}

func TestLiquidateGuards(t *testing.T) {
	h := newHarness(t)
	h.depositCDS(alice, 1_000_000_000, 1_000_000_000, t0)
	index := h.borrow(t0)

	_, err := h.liquidate(alice, index, 80_000, t0)
	require.ErrorIs(t, err, liquidation.ErrNotAdmin)
	_, err = h.liquidate(admin, index, 80_010, t0)
	require.ErrorIs(t, err, liquidation.ErrRatioAboveThreshold)
	_, err = h.liquidate(admin, index, 0, t0)
	require.ErrorIs(t, err, liquidation.ErrInvalidPrice)
	_, err = h.liquidate(admin, index+1, 80_000, t0)
	require.ErrorIs(t, err, liquidation.ErrPositionNotFound)

	err = h.run(func(e *core.Engines) error {
		_, err := e.Liquidation.Liquidate(liquidation.Request{Caller: admin, Borrower: admin, Index: index, Price: 80_000, Now: t0})
		return err
	})
	require.ErrorIs(t, err, liquidation.ErrSelfLiquidation)
	err = h.run(func(e *core.Engines) error {
		_, err := e.Liquidation.Liquidate(liquidation.Request{Caller: admin, Index: index, Price: 80_000, Now: t0})
		return err
	})
	require.ErrorIs(t, err, liquidation.ErrZeroAddress)
}

func TestLiquidateNeedsAvailableLiquidation(t *testing.T) {
	h := newHarness(t)
	h.depositCDS(alice, 1_000_000_000, 500_000_000, t0)
	index := h.borrow(t0)

	_, err := h.liquidate(admin, index, 80_000, t0)
	require.ErrorIs(t, err, liquidation.ErrInsufficientLiquidationFund)
}

func TestLiquidateMovesPositionIntoPool(t *testing.T) {
	h := newHarness(t)
	h.depositCDS(alice, 1_000_000_000, 1_000_000_000, t0)
	index := h.borrow(t0)

	res, err := h.liquidate(admin, index, 80_000, t0)
	require.NoError(t, err)
	require.EqualValues(t, 0, res.Entry)
	require.EqualValues(t, 8000, res.HealthBps)
	require.Equal(t, int64(800_000_000), res.Debt.Int64())
	require.Zero(t, res.Interest.Sign())
	require.Equal(t, 0, res.Collateral.Cmp(oneEth))
	// 1 ETH at $800 exactly covers the debt.
	require.True(t, res.IsGain)
	require.Zero(t, res.Gain.Sign())

	_, err = h.liquidate(admin, index, 70_000, t0)
	require.ErrorIs(t, err, liquidation.ErrAlreadyLiquidated)

	require.NoError(t, h.run(func(e *core.Engines) error {
		pos, err := e.Borrowing.Position(borrower, index)
		require.NoError(t, err)
		require.Equal(t, borrowing.StatusLiquidated, pos.Status())

		_, err = e.Borrowing.Withdraw(borrowing.WithdrawRequest{Borrower: borrower, Index: index, Price: openedAt, Now: t0})
		require.ErrorIs(t, err, borrowing.ErrAlreadyLiquidated)

		pool, err := e.CDS.Pool()
		require.NoError(t, err)
		require.Equal(t, int64(200_000_000), pool.TotalAvailableLiquidation.Int64())

		totals, err := e.Ledger.Totals()
		require.NoError(t, err)
		require.Equal(t, int64(200_000_000), totals.TotalCdsDeposited.Int64())
		require.Equal(t, int64(200_000_000), totals.CDSUSDaReserve.Int64())
		require.Equal(t, 0, totals.LiquidationPending.Cmp(oneEth))
		require.Zero(t, totals.TotalVolumeOfBorrowersNative.Sign())
		require.NoError(t, e.Ledger.CheckConservation())
		return nil
	}))
}

func TestCDSWithdrawSharesLiquidation(t *testing.T) {
	h := newHarness(t)
	aliceIdx := h.depositCDS(alice, 1_000_000_000, 1_000_000_000, t0)
	index := h.borrow(t0)
	_, err := h.liquidate(admin, index, 80_000, t0)
	require.NoError(t, err)

	// A deposit after the liquidation starts from the next ledger entry.
	bobIdx := h.depositCDS(bob, 1_000_000_000, 1_000_000_000, t0)
	bobRes := h.withdrawCDS(bob, bobIdx, t0+oneDay)
	require.EqualValues(t, 0, bobRes.EntriesSeen)
	require.Zero(t, bobRes.DebtShare.Sign())
	require.Equal(t, int64(1_000_000_000), bobRes.USDa.Int64())

	aliceRes := h.withdrawCDS(alice, aliceIdx, t0+oneDay)
	require.EqualValues(t, 1, aliceRes.EntriesSeen)
	require.Equal(t, int64(800_000_000), aliceRes.DebtShare.Int64())
	require.Equal(t, int64(200_000_000), aliceRes.USDa.Int64())
	require.Equal(t, 0, aliceRes.Collateral[types.AssetNative].Cmp(oneEth))

	require.NoError(t, h.run(func(e *core.Engines) error {
		acc, err := e.State.GetAccount(alice)
		require.NoError(t, err)
		require.Equal(t, 0, acc.Native.Cmp(oneEth))
		require.Equal(t, int64(200_000_000), acc.USDa.Int64())

		totals, err := e.Ledger.Totals()
		require.NoError(t, err)
		require.Zero(t, totals.LiquidationPending.Sign())
		require.Zero(t, totals.TotalCdsDeposited.Sign())
		require.NoError(t, e.Ledger.CheckConservation())

		pool, err := e.CDS.Pool()
		require.NoError(t, err)
		require.Zero(t, pool.TotalAvailableLiquidation.Sign())
		return nil
	}))
}

func TestLiquidationSplitAcrossDepositors(t *testing.T) {
	h := newHarness(t)
	aliceIdx := h.depositCDS(alice, 1_000_000_000, 1_000_000_000, t0)
	bobIdx := h.depositCDS(bob, 1_000_000_000, 1_000_000_000, t0)
	index := h.borrow(t0)
	_, err := h.liquidate(admin, index, 80_000, t0)
	require.NoError(t, err)

	half := new(big.Int).Quo(oneEth, big.NewInt(2))
	for who, idx := range map[[20]byte]uint64{alice: aliceIdx, bob: bobIdx} {
		res := h.withdrawCDS(who, idx, t0+oneDay)
		require.Equal(t, int64(400_000_000), res.DebtShare.Int64())
		require.Equal(t, int64(600_000_000), res.USDa.Int64())
		require.Equal(t, 0, res.Collateral[types.AssetNative].Cmp(half))
	}
}
