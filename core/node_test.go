package core_test

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"usdacore/core"
	"usdacore/core/events"
	"usdacore/core/genesis"
	"usdacore/core/types"
	"usdacore/crypto"
	"usdacore/native/borrowing"
	"usdacore/native/cds"
	"usdacore/native/crosschain"
	"usdacore/native/treasury"
	"usdacore/storage"
)

const (
	t0       int64  = 1_700_000_000
	ethPrice uint64 = 100_000
)

var (
	borrower  = [20]byte{0xb0}
	depositor = [20]byte{0xc0}
	custody   = [20]byte{0xfe}

	oneEth = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

func bech(raw [20]byte) string {
	return crypto.NewAddress(crypto.USDAPrefix, raw[:]).String()
}

func testSpec(chainID uint64) *genesis.GenesisSpec {
	return &genesis.GenesisSpec{
		GenesisTime: time.Unix(t0, 0).UTC().Format(time.RFC3339),
		ChainID:     chainID,
		Admin:       bech([20]byte{0xad}),
		Multisig: genesis.MultisigSpec{
			Owners:    []string{bech([20]byte{0x01}), bech([20]byte{0x02})},
			Threshold: 2,
		},
		Alloc: map[string]map[string]string{
			bech(borrower):  {"ETH": "10000000000000000000", "USDa": "100000000"},
			bech(depositor): {"USDT": "10000000000", "ETH": "1000"},
		},
	}
}

type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingSink) Publish(_ context.Context, evts []events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evts...)
	return nil
}

func (r *recordingSink) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.EventType())
	}
	return out
}

func newNode(t *testing.T, cfg core.EngineConfig) (*core.Node, *storage.MemDB, *recordingSink) {
	t.Helper()
	db := storage.NewMemDB()
	if cfg.Custody == ([20]byte{}) {
		cfg.Custody = custody
	}
	node, err := core.NewNode(db, cfg)
	require.NoError(t, err)
	node.SetClock(func() time.Time { return time.Unix(t0, 0) })
	applied, err := node.InitGenesis(testSpec(cfg.ChainID))
	require.NoError(t, err)
	require.True(t, applied)
	sink := &recordingSink{}
	node.AddSink(sink)
	return node, db, sink
}

func cdsDeposit(amount int64) cds.DepositRequest {
	return cds.DepositRequest{
		Depositor:         depositor,
		USDT:              big.NewInt(amount),
		OptIn:             true,
		LiquidationAmount: big.NewInt(amount / 2),
	}
}

func borrowDeposit() borrowing.DepositRequest {
	return borrowing.DepositRequest{
		Borrower:       borrower,
		PriceHint:      ethPrice,
		StrikePercent:  5,
		StrikePrice:    ethPrice + ethPrice/20,
		Volatility:     50,
		CollateralKind: borrowing.KindETH,
		Amount:         oneEth,
	}
}

func snapshotDB(db *storage.MemDB) map[string][]byte {
	out := make(map[string][]byte)
	for _, k := range db.Keys() {
		v, _ := db.Get(k)
		out[string(k)] = v
	}
	return out
}

func TestNodeRequiresGenesis(t *testing.T) {
	node, err := core.NewNode(storage.NewMemDB(), core.EngineConfig{Custody: custody})
	require.NoError(t, err)
	_, err = node.Totals()
	require.ErrorIs(t, err, core.ErrGenesisMissing)
	_, _, err = node.DepositCDS(context.Background(), cdsDeposit(1_000), nil)
	require.ErrorIs(t, err, core.ErrGenesisMissing)
}

func TestGenesisAppliedOnce(t *testing.T) {
	node, _, _ := newNode(t, core.EngineConfig{ChainID: 1})
	spec := testSpec(1)
	spec.Alloc[bech(borrower)]["ETH"] = "1"
	applied, err := node.InitGenesis(spec)
	require.NoError(t, err)
	require.False(t, applied)

	require.NoError(t, node.View(func(e *core.Engines) error {
		acc, err := e.State.GetAccount(borrower)
		require.NoError(t, err)
		require.Equal(t, 0, acc.Native.Cmp(new(big.Int).Mul(oneEth, big.NewInt(10))))
		return nil
	}))
}

func TestBorrowLifecycleConservesCollateral(t *testing.T) {
	node, _, sink := newNode(t, core.EngineConfig{ChainID: 1})
	ctx := context.Background()

	_, _, err := node.DepositCDS(ctx, cdsDeposit(1_000_000_000), nil)
	require.NoError(t, err)
	index, pos, err := node.DepositCollateral(ctx, borrowDeposit(), nil)
	require.NoError(t, err)
	require.EqualValues(t, 1, index)
	require.Equal(t, int64(800_000_000), pos.Principal.Int64())

	totals, err := node.Totals()
	require.NoError(t, err)
	require.Zero(t, totals.ConservationGap().Sign())
	require.Equal(t, int64(1_900_000_000), totals.USDaSupply.Int64())

	res, err := node.Withdraw(ctx, borrowing.WithdrawRequest{Borrower: borrower, Index: index, Price: ethPrice}, nil)
	require.NoError(t, err)
	require.True(t, res.Position.Closed())

	totals, err = node.Totals()
	require.NoError(t, err)
	require.Zero(t, totals.ConservationGap().Sign())
	require.Zero(t, totals.TotalVolumeOfBorrowersNative.Sign())

	recorded := sink.types()
	require.Contains(t, recorded, events.TypeCDSDeposited)
	require.Contains(t, recorded, events.TypeBorrowDeposited)
	require.Contains(t, recorded, events.TypeBorrowWithdrawn)
}

func TestRejectedOperationLeavesStateUntouched(t *testing.T) {
	node, db, sink := newNode(t, core.EngineConfig{ChainID: 1})
	before := snapshotDB(db)

	_, _, err := node.DepositCollateral(context.Background(), borrowDeposit(), nil)
	require.ErrorIs(t, err, borrowing.ErrNotEnoughFundInCDS)
	require.Equal(t, before, snapshotDB(db))
	require.Empty(t, sink.types())

	_, _, err = node.DepositCDS(context.Background(), cdsDeposit(1_000), &core.Dispatch{Fee: big.NewInt(1)})
	require.ErrorIs(t, err, core.ErrNoOutbox)
	require.Equal(t, before, snapshotDB(db))
}

func TestUpdateRejectsConservationBreach(t *testing.T) {
	node, db, _ := newNode(t, core.EngineConfig{ChainID: 1})
	before := snapshotDB(db)
	err := node.Update(context.Background(), "corrupt", func(e *core.Engines) error {
		totals, err := e.Ledger.Totals()
		if err != nil {
			return err
		}
		totals.CollateralDeposited.Add(totals.CollateralDeposited, big.NewInt(1))
		return e.State.PutTreasuryTotals(totals)
	})
	require.ErrorIs(t, err, treasury.ErrConservation)
	require.Equal(t, before, snapshotDB(db))
}

func TestDispatchSyncsPeerLiquidity(t *testing.T) {
	keyA, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	keyB, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	toB := crosschain.NewLoopbackMessenger(crosschain.FlatFee{Native: big.NewInt(10)})
	a, _, _ := newNode(t, core.EngineConfig{
		ChainID:    1,
		PeerChain:  2,
		PeerSigner: keyB.PubKey().Address().Raw(),
		Signer:     keyA,
		Messenger:  toB,
	})
	b, _, bSink := newNode(t, core.EngineConfig{
		ChainID:    2,
		PeerChain:  1,
		PeerSigner: keyA.PubKey().Address().Raw(),
		Signer:     keyB,
	})
	toB.Connect(func(ctx context.Context, msg crosschain.Message) error {
		_, err := b.Receive(ctx, msg)
		return err
	})
	ctx := context.Background()

	_, _, err = a.DepositCDS(ctx, cdsDeposit(1_000_000_000), &core.Dispatch{Fee: big.NewInt(5), PayInNative: true})
	require.ErrorIs(t, err, crosschain.ErrInsufficientFee)

	_, _, err = a.DepositCDS(ctx, cdsDeposit(1_000_000_000), &core.Dispatch{Fee: big.NewInt(10), PayInNative: true})
	require.NoError(t, err)

	sent, err := a.FlushOutbox(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, sent)
	sent, err = a.FlushOutbox(ctx)
	require.NoError(t, err)
	require.Zero(t, sent)

	require.NoError(t, b.View(func(e *core.Engines) error {
		liquidity, err := e.Handler.PeerCDSLiquidity()
		require.NoError(t, err)
		require.Equal(t, int64(1_000_000_000), liquidity.Int64())
		return nil
	}))
	require.Contains(t, bSink.types(), events.TypeMessageApplied)

	require.NoError(t, a.View(func(e *core.Engines) error {
		acc, err := e.State.GetAccount(depositor)
		require.NoError(t, err)
		require.Equal(t, int64(990), acc.Native.Int64())
		return nil
	}))

	// Redelivery is a no-op on the peer.
	applied, err := b.Receive(ctx, toB.Sent()[0])
	require.NoError(t, err)
	require.False(t, applied)
}

func TestRedeemYieldsRecallsRoutedBacking(t *testing.T) {
	adapter := treasury.NewMemoryAdapter(0)
	node, _, _ := newNode(t, core.EngineConfig{ChainID: 1, Adapter: adapter})
	ctx := context.Background()

	_, _, err := node.DepositCDS(ctx, cdsDeposit(1_000_000_000), nil)
	require.NoError(t, err)
	index, _, err := node.DepositCollateral(ctx, borrowDeposit(), nil)
	require.NoError(t, err)
	_, err = node.Withdraw(ctx, borrowing.WithdrawRequest{Borrower: borrower, Index: index, Price: ethPrice, FractionBps: 5000}, nil)
	require.NoError(t, err)

	totals, err := node.Totals()
	require.NoError(t, err)
	require.Equal(t, 0, totals.YieldRouted.Cmp(totals.AbondBacking))
	require.Equal(t, 0, totals.YieldRoutedByAsset.Of(types.AssetNative).Cmp(totals.YieldRouted))
	require.Positive(t, totals.YieldRouted.Sign())

	backing := new(big.Int).Set(totals.AbondBacking)

	var shares *big.Int
	require.NoError(t, node.View(func(e *core.Engines) error {
		bond, err := e.Bonds.Get(borrower)
		require.NoError(t, err)
		shares = new(big.Int).Set(bond.ShareBalance)
		return nil
	}))
	res, err := node.RedeemYields(ctx, borrower, shares)
	require.NoError(t, err)
	require.Positive(t, res.Collateral.Sign())
	require.LessOrEqual(t, res.Collateral.Cmp(backing), 0)

	totals, err = node.Totals()
	require.NoError(t, err)
	remaining := new(big.Int).Sub(backing, res.Collateral)
	require.Equal(t, 0, totals.AbondBacking.Cmp(remaining))
	require.Equal(t, 0, totals.YieldRouted.Cmp(remaining))
	require.Zero(t, totals.ConservationGap().Sign())

	// Active collateral stays in custody after the bond payout.
	require.NoError(t, node.View(func(e *core.Engines) error {
		acc, err := e.State.GetAccount(custody)
		require.NoError(t, err)
		require.Equal(t, 0, acc.Native.Cmp(totals.TotalVolumeOfBorrowersNative))
		return nil
	}))
}

