package multisig

// Setter function identifiers gated by owner approvals.
const (
	FnSetLTV               = "setLTV"
	FnSetBondRatio         = "setBondRatio"
	FnSetAPR               = "setAPR"
	FnSetAdmin             = "setAdmin"
	FnSetOptions           = "setOptions"
	FnSetAbondBacking      = "setAbondBacking"
	FnSetWithdrawTimeLimit = "setWithdrawTimeLimit"
	FnSetUSDTLimit         = "setUSDTLimit"
	FnSetUSDaMinBps        = "setUSDaMinBps"
	FnSetCoverageRatio     = "setCoverageRatio"
)

// Functions lists every gated setter in a stable order.
func Functions() []string {
	return []string{
		FnSetLTV,
		FnSetBondRatio,
		FnSetAPR,
		FnSetAdmin,
		FnSetOptions,
		FnSetAbondBacking,
		FnSetWithdrawTimeLimit,
		FnSetUSDTLimit,
		FnSetUSDaMinBps,
		FnSetCoverageRatio,
	}
}

func IsFunction(name string) bool {
	for _, fn := range Functions() {
		if fn == name {
			return true
		}
	}
	return false
}

// Config is the owner set. Owners are addressed by their position in the
// slice when approvals are recorded, so the set is limited to 64 entries.
type Config struct {
	Owners    [][20]byte
	Threshold uint64
}

// MaxOwners bounds the approval bitmap.
const MaxOwners = 64

// Approval kinds share one bitmap namespace in state.
const (
	kindFunction = "fn"
	kindPause    = "pause"
	kindUnpause  = "unpause"
)

func approvalKey(kind, name string) string {
	return kind + ":" + name
}
