package events

import (
	"math/big"
	"strconv"

	"usdacore/core/types"
)

const (
	// TypeBorrowDeposited is emitted when a borrower opens a position.
	TypeBorrowDeposited = "borrow.deposited"
	// TypeBorrowWithdrawn is emitted on full and partial withdrawals.
	TypeBorrowWithdrawn = "borrow.withdrawn"
	// TypeBorrowLiquidated is emitted when a position is force closed.
	TypeBorrowLiquidated = "borrow.liquidated"
	// TypeYieldsRedeemed is emitted when ABOND shares are burned for yield.
	TypeYieldsRedeemed = "abond.redeemed"
)

type BorrowDeposited struct {
	Borrower        [20]byte
	Index           uint64
	Asset           string
	Amount          *big.Int
	USDValue        *big.Int
	Principal       *big.Int
	Price           uint64
	CumulativeIndex *big.Int
}

func (BorrowDeposited) EventType() string { return TypeBorrowDeposited }

func (e BorrowDeposited) Event() *types.Event {
	return &types.Event{
		Type: TypeBorrowDeposited,
		Attributes: map[string]string{
			"borrower":        formatAddress(e.Borrower),
			"index":           formatUint(e.Index),
			"asset":           e.Asset,
			"amount":          formatAmount(e.Amount),
			"usdValue":        formatAmount(e.USDValue),
			"principal":       formatAmount(e.Principal),
			"price":           formatUint(e.Price),
			"cumulativeIndex": formatAmount(e.CumulativeIndex),
		},
	}
}

type BorrowWithdrawn struct {
	Borrower     [20]byte
	Index        uint64
	Returned     *big.Int
	Backing      *big.Int
	DebtRepaid   *big.Int
	Interest     *big.Int
	Shares       *big.Int
	HealthBps    uint64
	RemainingBps uint64
}

func (BorrowWithdrawn) EventType() string { return TypeBorrowWithdrawn }

func (e BorrowWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeBorrowWithdrawn,
		Attributes: map[string]string{
			"borrower":     formatAddress(e.Borrower),
			"index":        formatUint(e.Index),
			"returned":     formatAmount(e.Returned),
			"backing":      formatAmount(e.Backing),
			"debtRepaid":   formatAmount(e.DebtRepaid),
			"interest":     formatAmount(e.Interest),
			"shares":       formatAmount(e.Shares),
			"healthBps":    formatUint(e.HealthBps),
			"remainingBps": formatUint(e.RemainingBps),
		},
	}
}

type BorrowLiquidated struct {
	Borrower   [20]byte
	Index      uint64
	Liquidator [20]byte
	Collateral *big.Int
	Debt       *big.Int
	Gain       *big.Int
	IsGain     bool
	Entry      uint64
	HealthBps  uint64
}

func (BorrowLiquidated) EventType() string { return TypeBorrowLiquidated }

func (e BorrowLiquidated) Event() *types.Event {
	return &types.Event{
		Type: TypeBorrowLiquidated,
		Attributes: map[string]string{
			"borrower":   formatAddress(e.Borrower),
			"index":      formatUint(e.Index),
			"liquidator": formatAddress(e.Liquidator),
			"collateral": formatAmount(e.Collateral),
			"debt":       formatAmount(e.Debt),
			"gain":       formatAmount(e.Gain),
			"isGain":     strconv.FormatBool(e.IsGain),
			"entry":      formatUint(e.Entry),
			"healthBps":  formatUint(e.HealthBps),
		},
	}
}

type YieldsRedeemed struct {
	Account    [20]byte
	Shares     *big.Int
	Collateral *big.Int
	USDa       *big.Int
}

func (YieldsRedeemed) EventType() string { return TypeYieldsRedeemed }

func (e YieldsRedeemed) Event() *types.Event {
	return &types.Event{
		Type: TypeYieldsRedeemed,
		Attributes: map[string]string{
			"account":    formatAddress(e.Account),
			"shares":     formatAmount(e.Shares),
			"collateral": formatAmount(e.Collateral),
			"usda":       formatAmount(e.USDa),
		},
	}
}
