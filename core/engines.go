package core

import (
	"usdacore/core/events"
	"usdacore/core/state"
	"usdacore/crypto"
	"usdacore/native/abond"
	"usdacore/native/borrowing"
	"usdacore/native/cds"
	"usdacore/native/crosschain"
	"usdacore/native/liquidation"
	"usdacore/native/multisig"
	"usdacore/native/oracle"
	"usdacore/native/params"
	"usdacore/native/treasury"
)

// EngineConfig carries the host-level wiring shared by every call.
type EngineConfig struct {
	Custody    [20]byte
	Oracle     oracle.Source
	ChainID    uint64
	PeerChain  uint64
	PeerSigner [20]byte
	Signer     *crypto.PrivateKey
	Messenger  crosschain.Messenger
	Adapter    treasury.YieldAdapter
}

// Engines is the full protocol wired against one state manager. Events
// emitted by any engine land in Events and are published after commit.
type Engines struct {
	State       *state.Manager
	Params      *params.Store
	Ledger      *treasury.Ledger
	Bonds       *abond.Engine
	Borrowing   *borrowing.Engine
	CDS         *cds.Engine
	Liquidation *liquidation.Engine
	Multisig    *multisig.Engine
	Outbox      *crosschain.Outbox
	Handler     *crosschain.Handler
	Events      *events.Buffer
}

// NewEngines wires the engines against manager.
func NewEngines(manager *state.Manager, cfg EngineConfig) (*Engines, error) {
	buf := &events.Buffer{}
	store := params.NewStore(manager)
	p, err := store.Protocol()
	if err != nil {
		return nil, err
	}

	ledger := treasury.NewLedger(manager, cfg.Custody, treasury.CallerBorrowing, treasury.CallerCDS, treasury.CallerLiquidation)
	ledger.SetAdmin(p.Admin)
	if cfg.Adapter != nil {
		ledger.SetYieldAdapter(cfg.Adapter)
	}

	gate := multisig.NewEngine(manager)
	gate.SetEmitter(buf)

	bonds := abond.NewEngine(manager)
	bonds.SetPauses(gate)

	handler := crosschain.NewHandler(manager, cfg.ChainID, cfg.PeerChain, cfg.PeerSigner)
	handler.SetPauses(gate)
	handler.SetEmitter(buf)

	borrow := borrowing.NewEngine(manager, ledger, bonds, store)
	borrow.SetPauses(gate)
	borrow.SetGate(gate)
	borrow.SetEmitter(buf)
	borrow.SetPeerLiquidity(handler)
	if cfg.Oracle != nil {
		borrow.SetOracle(cfg.Oracle)
	}

	pool := cds.NewEngine(manager, ledger, store)
	pool.SetPauses(gate)
	pool.SetGate(gate)
	pool.SetEmitter(buf)

	liq := liquidation.NewEngine(manager, ledger, store, borrow, pool)
	liq.SetPauses(gate)
	liq.SetEmitter(buf)

	var outbox *crosschain.Outbox
	if cfg.Messenger != nil {
		outbox = crosschain.NewOutbox(manager, ledger, treasury.CallerBorrowing, cfg.Messenger, cfg.Signer, cfg.ChainID)
		outbox.SetEmitter(buf)
	}

	return &Engines{
		State:       manager,
		Params:      store,
		Ledger:      ledger,
		Bonds:       bonds,
		Borrowing:   borrow,
		CDS:         pool,
		Liquidation: liq,
		Multisig:    gate,
		Outbox:      outbox,
		Handler:     handler,
		Events:      buf,
	}, nil
}

// Snapshot captures the local figures shared with the peer chain.
func (e *Engines) Snapshot(now int64) (crosschain.Snapshot, error) {
	totals, err := e.Ledger.Totals()
	if err != nil {
		return crosschain.Snapshot{}, err
	}
	pool, err := e.CDS.Pool()
	if err != nil {
		return crosschain.Snapshot{}, err
	}
	ts := uint64(0)
	if now > 0 {
		ts = uint64(now)
	}
	return crosschain.Snapshot{
		CDSLiquidity:         totals.TotalCdsDeposited,
		AvailableLiquidation: pool.TotalAvailableLiquidation,
		BorrowerVolume:       totals.TotalVolumeOfBorrowersNative,
		USDaSupply:           totals.USDaSupply,
		Timestamp:            ts,
	}, nil
}
