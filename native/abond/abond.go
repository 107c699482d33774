package abond

import (
	"errors"
	"fmt"
	"math/big"

	"usdacore/core/types"
	nativecommon "usdacore/native/common"
)

var (
	ErrZeroShares         = errors.New("abond: amount should not be zero")
	ErrInsufficientShares = errors.New("abond: insufficient balance")

	errNilState = errors.New("abond: state not configured")
	wad         = big.NewInt(1_000_000_000_000_000_000)
)

// State is one holder's bond position.
type State struct {
	// GenesisIndex is the cumulative rate index at the holder's first borrow
	// deposit. It is written once and never replaced.
	GenesisIndex *big.Int
	// EthBackedPerShare is the weighted collateral backing per share (1e18).
	EthBackedPerShare *big.Int
	ShareBalance      *big.Int
	// TotalBacking is the collateral still backing ShareBalance.
	TotalBacking *big.Int
	// Backing splits TotalBacking by the collateral kind retained.
	Backing types.CollateralAmounts `rlp:"optional"`
}

func (s *State) ensureDefaults() {
	for _, slot := range []**big.Int{&s.GenesisIndex, &s.EthBackedPerShare, &s.ShareBalance, &s.TotalBacking} {
		if *slot == nil {
			*slot = big.NewInt(0)
		}
	}
	s.Backing.EnsureDefaults()
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := &State{}
	if s.GenesisIndex != nil {
		out.GenesisIndex = new(big.Int).Set(s.GenesisIndex)
	}
	if s.EthBackedPerShare != nil {
		out.EthBackedPerShare = new(big.Int).Set(s.EthBackedPerShare)
	}
	if s.ShareBalance != nil {
		out.ShareBalance = new(big.Int).Set(s.ShareBalance)
	}
	if s.TotalBacking != nil {
		out.TotalBacking = new(big.Int).Set(s.TotalBacking)
	}
	out.Backing = s.Backing.Clone()
	out.ensureDefaults()
	return out
}

type engineState interface {
	AbondState(addr [20]byte) (*State, error)
	PutAbondState(addr [20]byte, s *State) error
	AbondSupply() (*big.Int, error)
	PutAbondSupply(*big.Int) error
}

// Engine maintains bond balances. Payment of the redeemed value is the
// caller's job; the engine only settles share accounting.
type Engine struct {
	state  engineState
	pauses nativecommon.PauseView
}

func NewEngine(state engineState) *Engine {
	return &Engine{state: state}
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SharesFor converts retained collateral into bond shares:
// backing * price * ltv / (10000 * bondRatio), price carrying two decimals
// and ltv expressed in percent.
func SharesFor(backing *big.Int, price, ltv, bondRatio uint64) *big.Int {
	if backing == nil || bondRatio == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(backing, new(big.Int).SetUint64(price))
	out.Mul(out, new(big.Int).SetUint64(ltv))
	out.Quo(out, new(big.Int).SetUint64(10_000*bondRatio))
	return out
}

// Get returns the holder's state, zero-valued when unknown.
func (e *Engine) Get(user [20]byte) (*State, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	s, err := e.state.AbondState(user)
	if err != nil {
		return nil, err
	}
	if s == nil {
		s = &State{}
	}
	s.ensureDefaults()
	return s, nil
}

// Supply returns the outstanding share supply.
func (e *Engine) Supply() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	supply, err := e.state.AbondSupply()
	if err != nil {
		return nil, err
	}
	if supply == nil {
		supply = big.NewInt(0)
	}
	return supply, nil
}

// CaptureGenesis records index as the holder's genesis snapshot unless one
// already exists. It reports whether the snapshot was written.
func (e *Engine) CaptureGenesis(user [20]byte, index *big.Int) (bool, error) {
	s, err := e.Get(user)
	if err != nil {
		return false, err
	}
	if s.GenesisIndex.Sign() != 0 || index == nil || index.Sign() == 0 {
		return false, nil
	}
	s.GenesisIndex = new(big.Int).Set(index)
	return true, e.state.PutAbondState(user, s)
}

// Mint adds shares backed by backing collateral of asset and re-weights the
// holder's backing per share.
func (e *Engine) Mint(user [20]byte, asset types.Asset, backing, shares *big.Int) (*State, error) {
	if !asset.IsCollateral() {
		return nil, fmt.Errorf("abond: %s cannot back shares", asset)
	}
	s, err := e.Get(user)
	if err != nil {
		return nil, err
	}
	if shares == nil || shares.Sign() <= 0 {
		return s, nil
	}
	if backing == nil {
		backing = big.NewInt(0)
	}
	weighted := new(big.Int).Mul(s.EthBackedPerShare, s.ShareBalance)
	weighted.Add(weighted, new(big.Int).Mul(backing, wad))
	s.ShareBalance.Add(s.ShareBalance, shares)
	s.EthBackedPerShare = weighted.Quo(weighted, s.ShareBalance)
	s.TotalBacking.Add(s.TotalBacking, backing)
	if err := s.Backing.Add(asset, backing); err != nil {
		return nil, err
	}
	if err := e.state.PutAbondState(user, s); err != nil {
		return nil, err
	}
	supply, err := e.Supply()
	if err != nil {
		return nil, err
	}
	if err := e.state.PutAbondSupply(new(big.Int).Add(supply, shares)); err != nil {
		return nil, err
	}
	return s, nil
}

// Redemption is the value released by burning shares.
type Redemption struct {
	Shares *big.Int
	// Collateral is shares * EthBackedPerShare / 1e18.
	Collateral *big.Int
	// ByAsset splits Collateral across the kinds backing the holder's shares.
	ByAsset types.CollateralAmounts
	// USDa is the holder's pro-rata slice of the bond USDa pool.
	USDa *big.Int
}

// Redeem burns shares and computes the collateral and USDa owed against the
// supplied pool balance.
func (e *Engine) Redeem(user [20]byte, shares, usdaPool *big.Int) (*Redemption, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, nativecommon.ActionRedeemYields); err != nil {
		return nil, err
	}
	if shares == nil || shares.Sign() <= 0 {
		return nil, ErrZeroShares
	}
	s, err := e.Get(user)
	if err != nil {
		return nil, err
	}
	if s.ShareBalance.Cmp(shares) < 0 {
		return nil, ErrInsufficientShares
	}
	supply, err := e.Supply()
	if err != nil {
		return nil, err
	}
	out := s.redemption(shares)
	if usdaPool != nil && usdaPool.Sign() > 0 && supply.Sign() > 0 {
		out.USDa = new(big.Int).Quo(new(big.Int).Mul(usdaPool, shares), supply)
	}
	s.ShareBalance.Sub(s.ShareBalance, shares)
	s.TotalBacking.Sub(s.TotalBacking, out.Collateral)
	for _, asset := range types.CollateralAssets() {
		if err := s.Backing.Sub(asset, out.ByAsset.Of(asset)); err != nil {
			return nil, err
		}
	}
	if err := e.state.PutAbondState(user, s); err != nil {
		return nil, err
	}
	remaining := new(big.Int).Sub(supply, shares)
	if remaining.Sign() < 0 {
		remaining = big.NewInt(0)
	}
	if err := e.state.PutAbondSupply(remaining); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *State) redemption(shares *big.Int) *Redemption {
	collateral := new(big.Int).Quo(new(big.Int).Mul(shares, s.EthBackedPerShare), wad)
	if collateral.Cmp(s.TotalBacking) > 0 {
		collateral = new(big.Int).Set(s.TotalBacking)
	}
	byAsset := s.Backing.Split(collateral)
	return &Redemption{
		Shares:     new(big.Int).Set(shares),
		Collateral: byAsset.Total(),
		ByAsset:    byAsset,
		USDa:       big.NewInt(0),
	}
}

// Quote previews the collateral a redemption of shares would release without
// burning anything.
func (e *Engine) Quote(user [20]byte, shares *big.Int) (*Redemption, error) {
	if shares == nil || shares.Sign() <= 0 {
		return nil, ErrZeroShares
	}
	s, err := e.Get(user)
	if err != nil {
		return nil, err
	}
	if s.ShareBalance.Cmp(shares) < 0 {
		return nil, ErrInsufficientShares
	}
	return s.redemption(shares), nil
}
