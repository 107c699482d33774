package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"usdacore/core/events"
	"usdacore/core/genesis"
	"usdacore/core/state"
	"usdacore/core/types"
	"usdacore/crypto"
	"usdacore/native/borrowing"
	"usdacore/native/cds"
	"usdacore/native/crosschain"
	"usdacore/native/liquidation"
	"usdacore/native/rate"
	"usdacore/native/treasury"
	"usdacore/observability"
	"usdacore/observability/metrics"
	telemetry "usdacore/observability/otel"
	"usdacore/storage"
)

var (
	ErrGenesisMissing = errors.New("core: genesis not applied")
	ErrNoOutbox       = errors.New("core: cross-chain messenger not configured")
)

// EventSink receives committed events. Sinks run outside the state lock and
// their failures never roll back state.
type EventSink interface {
	Publish(ctx context.Context, evts []events.Event) error
}

// Dispatch asks a mutating call to also queue a liquidity snapshot for the
// peer chain, paid for by the caller.
type Dispatch struct {
	Fee         *big.Int
	Options     []byte
	PayInNative bool
}

// Node serialises every protocol call against the database. Each call runs
// on a fresh buffered state manager and either commits in one batch or
// leaves the database untouched.
type Node struct {
	db      storage.Database
	cfg     EngineConfig
	stateMu sync.Mutex
	clock   func() time.Time
	logger  *slog.Logger
	tracer  trace.Tracer

	sinksMu sync.RWMutex
	sinks   []EventSink
}

func NewNode(db storage.Database, cfg EngineConfig) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("core: database required")
	}
	return &Node{
		db:     db,
		cfg:    cfg,
		clock:  time.Now,
		logger: slog.Default(),
		tracer: telemetry.Tracer(),
	}, nil
}

func (n *Node) SetClock(clock func() time.Time) {
	if clock != nil {
		n.clock = clock
	}
}

func (n *Node) SetLogger(logger *slog.Logger) {
	if logger != nil {
		n.logger = logger
	}
}

// AddSink registers a subscriber for committed events.
func (n *Node) AddSink(sink EventSink) {
	if sink == nil {
		return
	}
	n.sinksMu.Lock()
	n.sinks = append(n.sinks, sink)
	n.sinksMu.Unlock()
}

func (n *Node) ChainID() uint64 { return n.cfg.ChainID }

func (n *Node) PeerChain() uint64 { return n.cfg.PeerChain }

func (n *Node) now() int64 { return n.clock().Unix() }

// Now is the node clock in unix seconds.
func (n *Node) Now() int64 { return n.now() }

// InitGenesis writes spec on an empty database. A database that already
// holds genesis is left as is and reports false.
func (n *Node) InitGenesis(spec *genesis.GenesisSpec) (bool, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	manager := state.NewManager(n.db)
	done, err := genesis.Applied(manager)
	if err != nil {
		return false, err
	}
	if done {
		return false, nil
	}
	if err := genesis.Apply(spec, manager); err != nil {
		manager.Discard()
		return false, err
	}
	if err := manager.Commit(); err != nil {
		return false, err
	}
	n.logger.Info("genesis applied", slog.Uint64("chain", spec.ChainID), slog.Int("owners", len(spec.Multisig.Owners)))
	return true, nil
}

// View runs fn against committed state. Writes made by fn are dropped.
func (n *Node) View(fn func(e *Engines) error) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	manager := state.NewManager(n.db)
	defer manager.Discard()
	done, err := genesis.Applied(manager)
	if err != nil {
		return err
	}
	if !done {
		return ErrGenesisMissing
	}
	eng, err := NewEngines(manager, n.cfg)
	if err != nil {
		return err
	}
	return fn(eng)
}

// Update runs fn as one atomic operation named op. The ledger must still
// conserve collateral after fn; otherwise nothing is written.
func (n *Node) Update(ctx context.Context, op string, fn func(e *Engines) error) error {
	ctx, span := n.tracer.Start(ctx, "usda."+op)
	defer span.End()
	start := time.Now()

	published, err := n.update(op, fn)
	observability.Operations().Observe(op, err, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		n.logger.Warn("operation rejected", slog.String("op", op), slog.Any("error", err))
		return err
	}
	span.SetAttributes(attribute.Int("usda.events", len(published)))
	n.logger.Debug("operation committed", slog.String("op", op), slog.Int("events", len(published)))
	n.publish(ctx, published)
	return nil
}

func (n *Node) update(op string, fn func(e *Engines) error) ([]events.Event, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	manager := state.NewManager(n.db)
	done, err := genesis.Applied(manager)
	if err != nil {
		return nil, err
	}
	if !done {
		return nil, ErrGenesisMissing
	}
	eng, err := NewEngines(manager, n.cfg)
	if err != nil {
		return nil, err
	}
	if err := fn(eng); err != nil {
		manager.Discard()
		return nil, err
	}
	if err := eng.Ledger.CheckConservation(); err != nil {
		manager.Discard()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := manager.Commit(); err != nil {
		return nil, err
	}
	n.refreshGauges(eng)
	return eng.Events.Drain(), nil
}

func (n *Node) publish(ctx context.Context, evts []events.Event) {
	if len(evts) == 0 {
		return
	}
	for _, evt := range evts {
		observability.Events().RecordPublished(evt.EventType())
	}
	n.sinksMu.RLock()
	sinks := append([]EventSink(nil), n.sinks...)
	n.sinksMu.RUnlock()
	for _, sink := range sinks {
		if err := sink.Publish(ctx, evts); err != nil {
			name := fmt.Sprintf("%T", sink)
			observability.Events().RecordSinkFailure(name)
			n.logger.Error("event sink failed", slog.String("sink", name), slog.Any("error", err))
		}
	}
}

func (n *Node) refreshGauges(eng *Engines) {
	totals, err := eng.Ledger.Totals()
	if err != nil {
		return
	}
	pool, err := eng.CDS.Pool()
	if err != nil {
		return
	}
	idx, err := eng.State.RateIndex()
	if err != nil || idx == nil {
		idx = rate.NewIndex(nil, 0)
	}
	supply, err := eng.Bonds.Supply()
	if err != nil {
		supply = big.NewInt(0)
	}
	metrics.Protocol().Update(metrics.Snapshot{
		CumulativeIndex:      idx.Cumulative,
		APR:                  idx.APR,
		USDaSupply:           totals.USDaSupply,
		AbondSupply:          supply,
		CDSDeposited:         totals.TotalCdsDeposited,
		AvailableLiquidation: pool.TotalAvailableLiquidation,
		ActiveCollateral:     totals.TotalVolumeOfBorrowersNative,
		AbondBacking:         totals.AbondBacking,
		LiquidationPending:   totals.LiquidationPending,
		ConservationGap:      totals.ConservationGap(),
		Borrowers:            totals.NoOfBorrowers,
	})
}

// dispatched wraps op so the fee is checked before op mutates anything and
// the post-op snapshot is queued for the peer once op succeeds.
func (n *Node) dispatched(payer [20]byte, d *Dispatch, op func(e *Engines) error) func(e *Engines) error {
	if d == nil {
		return op
	}
	return func(e *Engines) error {
		if e.Outbox == nil {
			return ErrNoOutbox
		}
		if _, err := e.Outbox.CheckFee(n.cfg.PeerChain, d.Fee, d.Options, d.PayInNative); err != nil {
			return err
		}
		if err := op(e); err != nil {
			return err
		}
		snap, err := e.Snapshot(n.now())
		if err != nil {
			return err
		}
		msg, err := e.Outbox.Prepare(crosschain.DispatchRequest{
			Payer:       payer,
			DstChain:    n.cfg.PeerChain,
			Fee:         d.Fee,
			Options:     d.Options,
			PayInNative: d.PayInNative,
			Snapshot:    snap,
		})
		if err != nil {
			return err
		}
		fee, _ := new(big.Float).SetInt(msg.Fee).Float64()
		observability.CrossChain().AddFee(fee)
		return nil
	}
}

// DepositCollateral opens a borrowing position. A zero Now is filled from
// the node clock.
func (n *Node) DepositCollateral(ctx context.Context, req borrowing.DepositRequest, d *Dispatch) (uint64, *borrowing.Position, error) {
	if req.Now == 0 {
		req.Now = n.now()
	}
	var (
		index uint64
		pos   *borrowing.Position
	)
	err := n.Update(ctx, "borrow.deposit", n.dispatched(req.Borrower, d, func(e *Engines) error {
		var err error
		index, pos, err = e.Borrowing.DepositCollateral(req)
		return err
	}))
	if err != nil {
		return 0, nil, err
	}
	n.routeSurplus(ctx)
	return index, pos, nil
}

func (n *Node) Withdraw(ctx context.Context, req borrowing.WithdrawRequest, d *Dispatch) (*borrowing.WithdrawResult, error) {
	if req.Now == 0 {
		req.Now = n.now()
	}
	var res *borrowing.WithdrawResult
	err := n.Update(ctx, "borrow.withdraw", n.dispatched(req.Borrower, d, func(e *Engines) error {
		var err error
		res, err = e.Borrowing.Withdraw(req)
		return err
	}))
	if err != nil {
		return nil, err
	}
	n.routeSurplus(ctx)
	return res, nil
}

func (n *Node) Liquidate(ctx context.Context, req liquidation.Request, d *Dispatch) (*liquidation.Result, error) {
	if req.Now == 0 {
		req.Now = n.now()
	}
	var res *liquidation.Result
	err := n.Update(ctx, "borrow.liquidate", n.dispatched(req.Caller, d, func(e *Engines) error {
		var err error
		res, err = e.Liquidation.Liquidate(req)
		return err
	}))
	return res, err
}

func (n *Node) DepositCDS(ctx context.Context, req cds.DepositRequest, d *Dispatch) (uint64, *cds.Position, error) {
	if req.Now == 0 {
		req.Now = n.now()
	}
	var (
		index uint64
		pos   *cds.Position
	)
	err := n.Update(ctx, "cds.deposit", n.dispatched(req.Depositor, d, func(e *Engines) error {
		var err error
		index, pos, err = e.CDS.Deposit(req)
		return err
	}))
	return index, pos, err
}

func (n *Node) WithdrawCDS(ctx context.Context, req cds.WithdrawRequest, d *Dispatch) (*cds.WithdrawResult, error) {
	if req.Now == 0 {
		req.Now = n.now()
	}
	var res *cds.WithdrawResult
	err := n.Update(ctx, "cds.withdraw", n.dispatched(req.Depositor, d, func(e *Engines) error {
		var err error
		res, err = e.CDS.Withdraw(req)
		return err
	}))
	return res, err
}

func (n *Node) RedeemUSDT(ctx context.Context, req cds.RedeemRequest) (*big.Int, error) {
	var out *big.Int
	err := n.Update(ctx, "cds.redeem_usdt", func(e *Engines) error {
		var err error
		out, err = e.CDS.RedeemUSDT(req)
		return err
	})
	return out, err
}

// RedeemYields burns ABOND shares. Backing that was routed to the yield
// adapter is recalled first when custody cannot cover the payout.
func (n *Node) RedeemYields(ctx context.Context, user [20]byte, shares *big.Int) (*borrowing.RedeemResult, error) {
	if err := n.recallFor(ctx, user, shares); err != nil {
		n.logger.Warn("abond recall failed", slog.String("borrower", crypto.FormatRaw(user)), slog.Any("error", err))
	}
	var res *borrowing.RedeemResult
	err := n.Update(ctx, "abond.redeem", func(e *Engines) error {
		var err error
		res, err = e.Borrowing.RedeemYields(user, shares)
		return err
	})
	return res, err
}

// recallFor pulls back, kind by kind, whatever part of the redemption the
// unrouted backing in custody cannot cover.
func (n *Node) recallFor(ctx context.Context, user [20]byte, shares *big.Int) error {
	if n.cfg.Adapter == nil || shares == nil || shares.Sign() <= 0 {
		return nil
	}
	return n.Update(ctx, "treasury.recall", func(e *Engines) error {
		quote, err := e.Bonds.Quote(user, shares)
		if err != nil {
			return err
		}
		totals, err := e.Ledger.Totals()
		if err != nil {
			return err
		}
		for _, asset := range types.CollateralAssets() {
			shortfall := new(big.Int).Sub(quote.ByAsset.Of(asset), totals.UnroutedBacking(asset))
			if routed := totals.YieldRoutedByAsset.Of(asset); shortfall.Cmp(routed) > 0 {
				shortfall = routed
			}
			if shortfall.Sign() <= 0 {
				continue
			}
			if err := e.Ledger.Recall(ctx, treasury.CallerBorrowing, asset, shortfall); err != nil {
				return err
			}
			totals, err = e.Ledger.Totals()
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// routeSurplus moves each collateral kind's unrouted ABOND backing into the
// yield adapter. Adapter failures leave the funds in custody.
func (n *Node) routeSurplus(ctx context.Context) {
	if n.cfg.Adapter == nil {
		return
	}
	err := n.Update(ctx, "treasury.route", func(e *Engines) error {
		totals, err := e.Ledger.Totals()
		if err != nil {
			return err
		}
		for _, asset := range types.CollateralAssets() {
			surplus := totals.UnroutedBacking(asset)
			if surplus.Sign() <= 0 {
				continue
			}
			routed, err := e.Ledger.RouteSurplus(ctx, treasury.CallerBorrowing, asset, surplus)
			if err != nil {
				return err
			}
			if routed.Sign() == 0 {
				n.logger.Warn("yield routing skipped", slog.String("asset", asset.String()), slog.String("surplus", surplus.String()))
				continue
			}
			e.Events.Emit(events.SurplusRouted{Asset: asset.String(), Amount: routed})
		}
		return nil
	})
	if err != nil {
		n.logger.Error("yield routing failed", slog.Any("error", err))
	}
}

// Receive applies a snapshot from the peer chain. Stale and duplicate
// messages succeed without changing state.
func (n *Node) Receive(ctx context.Context, msg crosschain.Message) (bool, error) {
	var applied bool
	err := n.Update(ctx, "crosschain.receive", func(e *Engines) error {
		var err error
		applied, err = e.Handler.Apply(msg)
		return err
	})
	if err != nil {
		return false, err
	}
	observability.CrossChain().RecordReceived(msg.SrcChain, applied)
	return applied, nil
}

// FlushOutbox delivers pending snapshots to the peer in sequence order and
// stops at the first failure so ordering is preserved. It returns how many
// messages were delivered.
func (n *Node) FlushOutbox(ctx context.Context) (int, error) {
	if n.cfg.Messenger == nil {
		return 0, ErrNoOutbox
	}
	var pending []crosschain.Message
	if err := n.View(func(e *Engines) error {
		var err error
		pending, err = e.Outbox.Pending(n.cfg.PeerChain)
		return err
	}); err != nil {
		return 0, err
	}
	sent := 0
	for _, msg := range pending {
		if err := n.cfg.Messenger.Send(ctx, msg); err != nil {
			observability.CrossChain().RecordFailure(msg.DstChain)
			return sent, fmt.Errorf("core: deliver sequence %d: %w", msg.Sequence, err)
		}
		observability.CrossChain().RecordSent(msg.DstChain)
		seq := msg.Sequence
		if err := n.Update(ctx, "crosschain.delivered", func(e *Engines) error {
			return e.Outbox.MarkDelivered(msg.DstChain, seq)
		}); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

// RunOutbox flushes the outbox every interval until ctx is cancelled.
func (n *Node) RunOutbox(ctx context.Context, interval time.Duration) {
	if n.cfg.Messenger == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if sent, err := n.FlushOutbox(ctx); err != nil {
				n.logger.Warn("outbox flush failed", slog.Int("sent", sent), slog.Any("error", err))
			}
		}
	}
}

// Totals returns the committed treasury ledger.
func (n *Node) Totals() (*treasury.Totals, error) {
	var out *treasury.Totals
	err := n.View(func(e *Engines) error {
		var err error
		out, err = e.Ledger.Totals()
		return err
	})
	return out, err
}

// RateIndex returns the committed index accrued to the node clock without
// persisting the accrual.
func (n *Node) RateIndex() (*rate.Index, error) {
	var out *rate.Index
	now := n.now()
	err := n.View(func(e *Engines) error {
		var err error
		out, err = rate.Sync(e.State, uint64(now))
		return err
	})
	return out, err
}
