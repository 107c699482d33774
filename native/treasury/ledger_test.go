package treasury

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"usdacore/core/types"
)

type mockLedgerState struct {
	totals   *Totals
	records  map[[20]byte]*BorrowingRecord
	accounts map[[20]byte]*types.Account
}

func newMockLedgerState() *mockLedgerState {
	return &mockLedgerState{
		records:  make(map[[20]byte]*BorrowingRecord),
		accounts: make(map[[20]byte]*types.Account),
	}
}

func (m *mockLedgerState) TreasuryTotals() (*Totals, error) { return m.totals.Clone(), nil }

func (m *mockLedgerState) PutTreasuryTotals(t *Totals) error {
	m.totals = t.Clone()
	return nil
}

func (m *mockLedgerState) BorrowingRecord(addr [20]byte) (*BorrowingRecord, error) {
	rec, ok := m.records[addr]
	if !ok {
		return nil, nil
	}
	clone := *rec
	clone.DepositedAmount = new(big.Int).Set(rec.DepositedAmount)
	return &clone, nil
}

func (m *mockLedgerState) PutBorrowingRecord(addr [20]byte, rec *BorrowingRecord) error {
	clone := *rec
	clone.DepositedAmount = new(big.Int).Set(rec.DepositedAmount)
	m.records[addr] = &clone
	return nil
}

func (m *mockLedgerState) GetAccount(addr [20]byte) (*types.Account, error) {
	acc, ok := m.accounts[addr]
	if !ok {
		return nil, nil
	}
	clone := *acc
	return &clone, nil
}

func (m *mockLedgerState) PutAccount(addr [20]byte, acc *types.Account) error {
	clone := *acc
	m.accounts[addr] = &clone
	return nil
}

func makeAddress(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}

var custody = makeAddress(0xEE)

func TestLedgerRejectsUnregisteredCaller(t *testing.T) {
	state := newMockLedgerState()
	ledger := NewLedger(state, custody, CallerBorrowing)

	_, err := ledger.OpenBorrow(CallerCDS, makeAddress(1), big.NewInt(1), big.NewInt(1))
	if !errors.Is(err, ErrUnauthorizedCaller) {
		t.Fatalf("expected ErrUnauthorizedCaller, got %v", err)
	}
	if err := ledger.AddInterest(CallerNone, big.NewInt(1), nil); !errors.Is(err, ErrUnauthorizedCaller) {
		t.Fatalf("expected ErrUnauthorizedCaller for none, got %v", err)
	}
	if state.totals != nil {
		t.Fatalf("rejected calls must not write state")
	}
}

func TestOpenBorrowTracksRecordAndTotals(t *testing.T) {
	state := newMockLedgerState()
	ledger := NewLedger(state, custody, CallerBorrowing)
	borrower := makeAddress(1)

	for i := uint64(1); i <= 2; i++ {
		idx, err := ledger.OpenBorrow(CallerBorrowing, borrower, big.NewInt(1e18), big.NewInt(1e9))
		if err != nil {
			t.Fatalf("open borrow: %v", err)
		}
		if idx != i {
			t.Fatalf("expected index %d, got %d", i, idx)
		}
	}
	rec, err := ledger.Record(borrower)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !rec.HasDeposited || !rec.HasBorrowed || rec.DepositedAmount.Cmp(big.NewInt(2e18)) != 0 {
		t.Fatalf("unexpected record %+v", rec)
	}
	totals, _ := ledger.Totals()
	if totals.NoOfBorrowers != 1 {
		t.Fatalf("expected one borrower, got %d", totals.NoOfBorrowers)
	}
	if err := ledger.CheckConservation(); err != nil {
		t.Fatalf("conservation: %v", err)
	}
}

func TestConservationAcrossCloseAndBacking(t *testing.T) {
	state := newMockLedgerState()
	ledger := NewLedger(state, custody, CallerBorrowing, CallerLiquidation, CallerCDS)
	borrower := makeAddress(1)
	collateral := big.NewInt(1e18)

	if _, err := ledger.OpenBorrow(CallerBorrowing, borrower, collateral, big.NewInt(1e9)); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := ledger.CloseBorrow(CallerBorrowing, borrower, collateral, big.NewInt(1e9)); err != nil {
		t.Fatalf("close: %v", err)
	}
	half := big.NewInt(5e17)
	if err := ledger.ReleaseCollateral(CallerBorrowing, half); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := ledger.AddAbondBacking(CallerBorrowing, types.AssetNative, half); err != nil {
		t.Fatalf("backing: %v", err)
	}
	if err := ledger.CheckConservation(); err != nil {
		t.Fatalf("conservation after close: %v", err)
	}
	if err := ledger.TakeAbondBacking(CallerBorrowing, types.AssetNative, big.NewInt(1)); err != nil {
		t.Fatalf("take backing: %v", err)
	}
	if err := ledger.CheckConservation(); err != nil {
		t.Fatalf("conservation after redemption: %v", err)
	}
	if err := ledger.AddAbondBacking(CallerBorrowing, types.AssetNative, big.NewInt(1)); err != nil {
		t.Fatalf("backing: %v", err)
	}
	if err := ledger.CheckConservation(); !errors.Is(err, ErrConservation) {
		t.Fatalf("expected conservation error, got %v", err)
	}
}

func TestWithdrawInterest(t *testing.T) {
	state := newMockLedgerState()
	ledger := NewLedger(state, custody, CallerBorrowing)
	admin := makeAddress(9)
	ledger.SetAdmin(admin)
	to := makeAddress(7)

	if err := ledger.MintUSDa(CallerBorrowing, custody, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.AddInterest(CallerBorrowing, big.NewInt(100), nil); err != nil {
		t.Fatalf("interest: %v", err)
	}
	if err := ledger.WithdrawInterest(makeAddress(8), to, big.NewInt(1)); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin, got %v", err)
	}
	if err := ledger.WithdrawInterest(admin, [20]byte{}, big.NewInt(1)); !errors.Is(err, ErrInvalidWithdrawal) {
		t.Fatalf("expected ErrInvalidWithdrawal, got %v", err)
	}
	if err := ledger.WithdrawInterest(admin, to, big.NewInt(101)); !errors.Is(err, ErrInsufficientInterest) {
		t.Fatalf("expected ErrInsufficientInterest, got %v", err)
	}
	if err := ledger.WithdrawInterest(admin, to, big.NewInt(60)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got := state.accounts[to].Balance(types.AssetUSDa); got.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("recipient balance %s", got)
	}
	if err := ledger.WithdrawInterest(admin, to, big.NewInt(41)); !errors.Is(err, ErrInsufficientInterest) {
		t.Fatalf("expected remaining interest to be 40, got %v", err)
	}
}

func TestRouteSurplusKeepsFundsOnAdapterFailure(t *testing.T) {
	state := newMockLedgerState()
	ledger := NewLedger(state, custody, CallerBorrowing)
	adapter := NewMemoryAdapter(100)
	ledger.SetYieldAdapter(adapter)
	state.accounts[custody] = &types.Account{Native: big.NewInt(1000)}
	if err := ledger.AddAbondBacking(CallerBorrowing, types.AssetNative, big.NewInt(400)); err != nil {
		t.Fatalf("backing: %v", err)
	}

	adapter.FailWith(errors.New("market offline"))
	routed, err := ledger.RouteSurplus(context.Background(), CallerBorrowing, types.AssetNative, big.NewInt(400))
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if routed.Sign() != 0 || state.accounts[custody].Native.Int64() != 1000 {
		t.Fatalf("failed route must keep funds local")
	}
	totals, _ := ledger.Totals()
	if totals.YieldRouteFailures != 1 {
		t.Fatalf("expected failure to be counted")
	}

	adapter.FailWith(nil)
	routed, err = ledger.RouteSurplus(context.Background(), CallerBorrowing, types.AssetNative, big.NewInt(400))
	if err != nil || routed.Int64() != 400 {
		t.Fatalf("route: %v %s", err, routed)
	}
	if state.accounts[custody].Native.Int64() != 600 {
		t.Fatalf("custody not debited")
	}
	yield, err := ledger.AccruedYield(context.Background(), types.AssetNative)
	if err != nil || yield.Int64() != 4 {
		t.Fatalf("unexpected yield %v %s", err, yield)
	}
	if err := ledger.Recall(context.Background(), CallerBorrowing, types.AssetNative, big.NewInt(400)); err != nil {
		t.Fatalf("recall: %v", err)
	}
	if state.accounts[custody].Native.Int64() != 1000 {
		t.Fatalf("recall did not restore custody")
	}
}

func TestAbondBackingIsTrackedPerKind(t *testing.T) {
	state := newMockLedgerState()
	ledger := NewLedger(state, custody, CallerBorrowing)
	adapter := NewMemoryAdapter(0)
	ledger.SetYieldAdapter(adapter)
	// Custody also holds active ETH collateral that no bond holder owns.
	state.accounts[custody] = &types.Account{Native: big.NewInt(1000), WeETH: big.NewInt(300)}
	borrower := makeAddress(2)
	if _, err := ledger.OpenBorrow(CallerBorrowing, borrower, big.NewInt(300), big.NewInt(1e6)); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := ledger.CloseBorrow(CallerBorrowing, borrower, big.NewInt(300), big.NewInt(1e6)); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := ledger.AddAbondBacking(CallerBorrowing, types.AssetWeETH, big.NewInt(300)); err != nil {
		t.Fatalf("backing: %v", err)
	}
	if err := ledger.AddAbondBacking(CallerBorrowing, types.AssetUSDT, big.NewInt(1)); err == nil {
		t.Fatalf("usdt must not count as backing")
	}
	if err := ledger.TakeAbondBacking(CallerBorrowing, types.AssetNative, big.NewInt(1)); err == nil {
		t.Fatalf("weeth backing must not be paid as eth")
	}

	routed, err := ledger.RouteSurplus(context.Background(), CallerBorrowing, types.AssetNative, big.NewInt(1000))
	if err != nil {
		t.Fatalf("route eth: %v", err)
	}
	if routed.Sign() != 0 || state.accounts[custody].Native.Int64() != 1000 {
		t.Fatalf("active eth collateral was routed: %s", routed)
	}
	routed, err = ledger.RouteSurplus(context.Background(), CallerBorrowing, types.AssetWeETH, big.NewInt(1000))
	if err != nil || routed.Int64() != 300 {
		t.Fatalf("route weeth: %v %s", err, routed)
	}

	totals, _ := ledger.Totals()
	if got := totals.YieldRoutedByAsset.Of(types.AssetWeETH); got.Int64() != 300 {
		t.Fatalf("weeth routed %s", got)
	}
	if totals.YieldRoutedByAsset.Of(types.AssetNative).Sign() != 0 || totals.YieldRouted.Int64() != 300 {
		t.Fatalf("routed totals %s", totals.YieldRouted)
	}
	if err := ledger.Recall(context.Background(), CallerBorrowing, types.AssetNative, big.NewInt(1)); err == nil {
		t.Fatalf("nothing of eth was routed")
	}
	if err := ledger.CheckConservation(); err != nil {
		t.Fatalf("conservation: %v", err)
	}
}
