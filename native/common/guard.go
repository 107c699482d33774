package common

import "errors"

// ErrModulePaused is returned when an action has been paused by the owners.
var ErrModulePaused = errors.New("action paused")

// Pausable action identifiers. Each engine guards its entry points with the
// matching name.
const (
	ActionBorrowDeposit   = "borrowing.deposit"
	ActionBorrowWithdraw  = "borrowing.withdraw"
	ActionLiquidate       = "borrowing.liquidate"
	ActionCDSDeposit      = "cds.deposit"
	ActionCDSWithdraw     = "cds.withdraw"
	ActionRedeemUSDT      = "cds.redeem_usdt"
	ActionRedeemYields    = "abond.redeem"
	ActionCrossChainApply = "crosschain.apply"
)

// Actions lists every pausable action in a stable order.
func Actions() []string {
	return []string{
		ActionBorrowDeposit,
		ActionBorrowWithdraw,
		ActionLiquidate,
		ActionCDSDeposit,
		ActionCDSWithdraw,
		ActionRedeemUSDT,
		ActionRedeemYields,
		ActionCrossChainApply,
	}
}

// IsAction reports whether name is a known pausable action.
func IsAction(name string) bool {
	for _, action := range Actions() {
		if action == name {
			return true
		}
	}
	return false
}

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
