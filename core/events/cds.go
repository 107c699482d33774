package events

import (
	"math/big"
	"strconv"

	"usdacore/core/types"
)

const (
	TypeCDSDeposited  = "cds.deposited"
	TypeCDSWithdrawn  = "cds.withdrawn"
	TypeUSDTRedeemed  = "cds.usdtRedeemed"
	TypeInterestPaid  = "treasury.interestWithdrawn"
	TypeSurplusRouted = "treasury.surplusRouted"
)

type CDSDeposited struct {
	Depositor         [20]byte
	Index             uint64
	USDT              *big.Int
	USDa              *big.Int
	OptIn             bool
	LiquidationAmount *big.Int
	Snapshot          uint64
}

func (CDSDeposited) EventType() string { return TypeCDSDeposited }

func (e CDSDeposited) Event() *types.Event {
	return &types.Event{
		Type: TypeCDSDeposited,
		Attributes: map[string]string{
			"depositor":         formatAddress(e.Depositor),
			"index":             formatUint(e.Index),
			"usdt":              formatAmount(e.USDT),
			"usda":              formatAmount(e.USDa),
			"optIn":             strconv.FormatBool(e.OptIn),
			"liquidationAmount": formatAmount(e.LiquidationAmount),
			"snapshot":          formatUint(e.Snapshot),
		},
	}
}

type CDSWithdrawn struct {
	Depositor   [20]byte
	Index       uint64
	USDa        *big.Int
	DebtShare   *big.Int
	Collateral  *big.Int
	EntriesSeen uint64
}

func (CDSWithdrawn) EventType() string { return TypeCDSWithdrawn }

func (e CDSWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeCDSWithdrawn,
		Attributes: map[string]string{
			"depositor":   formatAddress(e.Depositor),
			"index":       formatUint(e.Index),
			"usda":        formatAmount(e.USDa),
			"debtShare":   formatAmount(e.DebtShare),
			"collateral":  formatAmount(e.Collateral),
			"entriesSeen": formatUint(e.EntriesSeen),
		},
	}
}

type USDTRedeemed struct {
	Account [20]byte
	USDa    *big.Int
	USDT    *big.Int
}

func (USDTRedeemed) EventType() string { return TypeUSDTRedeemed }

func (e USDTRedeemed) Event() *types.Event {
	return &types.Event{
		Type: TypeUSDTRedeemed,
		Attributes: map[string]string{
			"account": formatAddress(e.Account),
			"usda":    formatAmount(e.USDa),
			"usdt":    formatAmount(e.USDT),
		},
	}
}

type InterestWithdrawn struct {
	To     [20]byte
	Amount *big.Int
}

func (InterestWithdrawn) EventType() string { return TypeInterestPaid }

func (e InterestWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeInterestPaid,
		Attributes: map[string]string{
			"to":     formatAddress(e.To),
			"amount": formatAmount(e.Amount),
		},
	}
}

type SurplusRouted struct {
	Asset  string
	Amount *big.Int
}

func (SurplusRouted) EventType() string { return TypeSurplusRouted }

func (e SurplusRouted) Event() *types.Event {
	return &types.Event{
		Type: TypeSurplusRouted,
		Attributes: map[string]string{
			"asset":  e.Asset,
			"amount": formatAmount(e.Amount),
		},
	}
}
