package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"usdacore/core/types"
	"usdacore/native/borrowing"
	"usdacore/native/cds"
	"usdacore/native/crosschain"
	"usdacore/native/multisig"
	"usdacore/storage"
)

func TestBufferedWritesCommitAtomically(t *testing.T) {
	db := storage.NewMemDB()
	m := NewManager(db)
	addr := [20]byte{0x01}

	require.NoError(t, m.Credit(addr, types.AssetNative, big.NewInt(5)))
	acc, err := m.GetAccount(addr)
	require.NoError(t, err)
	require.Equal(t, int64(5), acc.Native.Int64(), "reads must see pending writes")
	require.Zero(t, db.Len(), "nothing reaches the database before commit")

	require.NoError(t, m.Commit())
	require.NotZero(t, db.Len())
	require.Zero(t, m.Dirty())

	fresh := NewManager(db)
	acc, err = fresh.GetAccount(addr)
	require.NoError(t, err)
	require.Equal(t, int64(5), acc.Native.Int64())
}

func TestDiscardDropsBuffer(t *testing.T) {
	db := storage.NewMemDB()
	m := NewManager(db)
	require.NoError(t, m.ParamStoreSet("k", []byte("v")))
	m.Discard()
	require.NoError(t, m.Commit())
	require.Zero(t, db.Len())

	_, ok, err := NewManager(db).ParamStoreGet("k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDeleteShadowsCommittedValue(t *testing.T) {
	db := storage.NewMemDB()
	m := NewManager(db)
	require.NoError(t, m.PutMultisigPaused("cds.deposit", true))
	require.NoError(t, m.Commit())

	m = NewManager(db)
	paused, err := m.MultisigPaused("cds.deposit")
	require.NoError(t, err)
	require.True(t, paused)
	require.NoError(t, m.PutMultisigPaused("cds.deposit", false))
	paused, err = m.MultisigPaused("cds.deposit")
	require.NoError(t, err)
	require.False(t, paused)
	require.NoError(t, m.Commit())
	require.Zero(t, db.Len())
}

func TestTypedRoundTrips(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	owner := [20]byte{0x0a}

	pos := &borrowing.Position{
		Kind:           borrowing.KindWeETH,
		Deposited:      big.NewInt(1e18),
		Collateral:     big.NewInt(1e18),
		USDValueAtOpen: big.NewInt(1_000_000_000),
		Principal:      big.NewInt(800_000_000),
		IndexAtOpen:    big.NewInt(1),
		PriceAtOpen:    100_000,
		RemainingBps:   10_000,
	}
	require.NoError(t, m.PutBorrowPosition(owner, 1, pos))
	got, err := m.BorrowPosition(owner, 1)
	require.NoError(t, err)
	require.Equal(t, borrowing.KindWeETH, got.Kind)
	require.Equal(t, 0, got.Principal.Cmp(pos.Principal))
	missing, err := m.BorrowPosition(owner, 2)
	require.NoError(t, err)
	require.Nil(t, missing)

	idx, err := m.AppendLiquidationEntry(&cds.LiquidationEntry{DebtCovered: big.NewInt(7), Asset: types.AssetNative})
	require.NoError(t, err)
	require.Zero(t, idx)
	idx, err = m.AppendLiquidationEntry(&cds.LiquidationEntry{DebtCovered: big.NewInt(9), Asset: types.AssetRsETH})
	require.NoError(t, err)
	require.EqualValues(t, 1, idx)
	count, err := m.LiquidationEntryCount()
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
	entry, err := m.LiquidationEntry(1)
	require.NoError(t, err)
	require.Equal(t, types.AssetRsETH, entry.Asset)
	require.Equal(t, int64(9), entry.DebtCovered.Int64())

	cfg := &multisig.Config{Owners: [][20]byte{{0x01}, {0x02}}, Threshold: 2}
	require.NoError(t, m.PutMultisigConfig(cfg))
	loaded, err := m.MultisigConfig()
	require.NoError(t, err)
	require.Equal(t, cfg.Owners, loaded.Owners)

	snap := &crosschain.Snapshot{CDSLiquidity: big.NewInt(42), Timestamp: 7}
	require.NoError(t, m.PutPeerSnapshot(2, snap))
	peer, err := m.PeerSnapshot(2)
	require.NoError(t, err)
	require.Equal(t, int64(42), peer.CDSLiquidity.Int64())
	require.EqualValues(t, 7, peer.Timestamp)
}
