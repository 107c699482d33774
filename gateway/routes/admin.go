package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"usdacore/core"
	"usdacore/core/types"
	"usdacore/crypto"
	"usdacore/gateway/middleware"
)

type uintSetter func(e *core.Engines, caller [20]byte, value uint64) error

type addressSetter func(e *core.Engines, caller, value [20]byte) error

var uintSetters = map[string]uintSetter{
	"ltv": func(e *core.Engines, caller [20]byte, v uint64) error {
		return e.Borrowing.SetLTV(caller, v)
	},
	"bond-ratio": func(e *core.Engines, caller [20]byte, v uint64) error {
		return e.Borrowing.SetBondRatio(caller, v)
	},
	"abond-backing": func(e *core.Engines, caller [20]byte, v uint64) error {
		return e.Borrowing.SetAbondBacking(caller, v)
	},
	"withdraw-time-limit": func(e *core.Engines, caller [20]byte, v uint64) error {
		return e.CDS.SetWithdrawTimeLimit(caller, v)
	},
	"usda-min-bps": func(e *core.Engines, caller [20]byte, v uint64) error {
		return e.CDS.SetUSDaMinBps(caller, v)
	},
	"coverage-ratio": func(e *core.Engines, caller [20]byte, v uint64) error {
		return e.CDS.SetCoverageRatio(caller, v)
	},
}

var addressSetters = map[string]addressSetter{
	"admin": func(e *core.Engines, caller, v [20]byte) error {
		return e.Borrowing.SetAdmin(caller, v)
	},
	"options": func(e *core.Engines, caller, v [20]byte) error {
		return e.Borrowing.SetOptionsAddress(caller, v)
	},
}

type adminValueRequest struct {
	Value uint64 `json:"value"`
}

type adminAddressRequest struct {
	Address string `json:"address"`
}

type adminAPRRequest struct {
	APR           uint64 `json:"apr"`
	RatePerSecond string `json:"ratePerSecond"`
}

type adminPegRequest struct {
	PriceBps uint64 `json:"priceBps"`
}

type adminAmountRequest struct {
	Amount string `json:"amount"`
	To     string `json:"to,omitempty"`
}

func (a *api) mountAdmin(r chi.Router) {
	for name, set := range uintSetters {
		r.Post("/admin/"+name, a.adminUint(name, set))
	}
	for name, set := range addressSetters {
		r.Post("/admin/"+name, a.adminAddress(name, set))
	}
	r.Post("/admin/apr", a.adminAPR)
	r.Post("/admin/peg-rate", a.adminPegRate)
	r.Post("/admin/usdt-limit", a.adminUSDTLimit)
	r.Post("/admin/withdraw-interest", a.adminWithdrawInterest)
}

func (a *api) applied(w http.ResponseWriter, r *http.Request, op string, fn func(e *core.Engines) error) {
	if err := a.node.Update(r.Context(), op, fn); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *api) adminUint(name string, set uintSetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := a.caller(w, r)
		if !ok {
			return
		}
		var body adminValueRequest
		if err := decodeRequest(r, &body); err != nil {
			writeBadRequest(w, err)
			return
		}
		a.applied(w, r, "admin."+name, func(e *core.Engines) error {
			return set(e, caller, body.Value)
		})
	}
}

func (a *api) adminAddress(name string, set addressSetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := a.caller(w, r)
		if !ok {
			return
		}
		var body adminAddressRequest
		if err := decodeRequest(r, &body); err != nil {
			writeBadRequest(w, err)
			return
		}
		addr, err := parseAddress("address", body.Address)
		if err != nil {
			writeBadRequest(w, err)
			return
		}
		a.applied(w, r, "admin."+name, func(e *core.Engines) error {
			return set(e, caller, addr)
		})
	}
}

func (a *api) adminAPR(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.caller(w, r)
	if !ok {
		return
	}
	var body adminAPRRequest
	if err := decodeRequest(r, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	perSecond, err := parseAmount("ratePerSecond", body.RatePerSecond)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	now := a.node.Now()
	a.applied(w, r, "admin.apr", func(e *core.Engines) error {
		return e.Borrowing.SetAPR(caller, body.APR, perSecond, now)
	})
}

func (a *api) adminPegRate(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.caller(w, r)
	if !ok {
		return
	}
	var body adminPegRequest
	if err := decodeRequest(r, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	now := a.node.Now()
	a.applied(w, r, "admin.peg_rate", func(e *core.Engines) error {
		return e.Borrowing.SetRateFromPegPrice(caller, body.PriceBps, now)
	})
}

func (a *api) adminUSDTLimit(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.caller(w, r)
	if !ok {
		return
	}
	var body adminAmountRequest
	if err := decodeRequest(r, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	limit, err := parseAmount("amount", body.Amount)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	a.applied(w, r, "admin.usdt_limit", func(e *core.Engines) error {
		return e.CDS.SetUSDTLimit(caller, limit)
	})
}

func (a *api) adminWithdrawInterest(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.caller(w, r)
	if !ok {
		return
	}
	var body adminAmountRequest
	if err := decodeRequest(r, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, err := parseAmount("amount", body.Amount)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	to := caller
	if strings.TrimSpace(body.To) != "" {
		if to, err = parseAddress("to", body.To); err != nil {
			writeBadRequest(w, err)
			return
		}
	}
	a.applied(w, r, "treasury.withdraw_interest", func(e *core.Engines) error {
		return e.Ledger.WithdrawInterest(caller, to, amount)
	})
}

type approveRequest struct {
	Function string `json:"function"`
}

type pauseRequest struct {
	Action string `json:"action"`
	// Unpause selects the unpause approval on /multisig/approve-pause.
	Unpause bool `json:"unpause,omitempty"`
}

func (a *api) multisigApprove(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.caller(w, r)
	if !ok {
		return
	}
	var body approveRequest
	if err := decodeRequest(r, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	var approvals uint64
	err := a.node.Update(r.Context(), "multisig.approve", func(e *core.Engines) error {
		var err error
		approvals, err = e.Multisig.ApproveFunction(caller, body.Function)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"function": body.Function, "approvals": approvals})
}

func (a *api) multisigApprovePause(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.caller(w, r)
	if !ok {
		return
	}
	var body pauseRequest
	if err := decodeRequest(r, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	var approvals uint64
	err := a.node.Update(r.Context(), "multisig.approve_pause", func(e *core.Engines) error {
		var err error
		if body.Unpause {
			approvals, err = e.Multisig.ApproveUnpause(caller, body.Action)
		} else {
			approvals, err = e.Multisig.ApprovePause(caller, body.Action)
		}
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"action": body.Action, "approvals": approvals})
}

func (a *api) multisigPause(w http.ResponseWriter, r *http.Request) {
	a.togglePause(w, r, true)
}

func (a *api) multisigUnpause(w http.ResponseWriter, r *http.Request) {
	a.togglePause(w, r, false)
}

func (a *api) togglePause(w http.ResponseWriter, r *http.Request, pause bool) {
	caller, ok := a.caller(w, r)
	if !ok {
		return
	}
	var body pauseRequest
	if err := decodeRequest(r, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	op := "multisig.unpause"
	if pause {
		op = "multisig.pause"
	}
	a.applied(w, r, op, func(e *core.Engines) error {
		if pause {
			return e.Multisig.Pause(caller, body.Action)
		}
		return e.Multisig.Unpause(caller, body.Action)
	})
}

type priceEntry struct {
	Asset string `json:"asset"`
	Price uint64 `json:"price"`
}

type pricesRequest struct {
	Prices []priceEntry `json:"prices"`
}

// postPrices feeds the manual oracle source. Prices carry two decimals.
func (a *api) postPrices(w http.ResponseWriter, r *http.Request) {
	if a.prices == nil {
		writeJSONError(w, http.StatusServiceUnavailable, errNoPriceFeed)
		return
	}
	var body pricesRequest
	if err := decodeRequest(r, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	now := time.Unix(a.node.Now(), 0)
	accepted := make(map[string]string, len(body.Prices))
	for _, entry := range body.Prices {
		asset, err := types.ParseAsset(entry.Asset)
		if err != nil {
			writeBadRequest(w, err)
			return
		}
		if err := a.prices.Set(asset, entry.Price, now); err != nil {
			writeError(w, err)
			return
		}
		accepted[asset.String()] = displayPrice(entry.Price)
	}
	caller, _ := middleware.CallerFromContext(r.Context())
	a.logger.Info("oracle prices posted", "reporter", crypto.FormatRaw(caller), "count", len(accepted))
	writeJSON(w, http.StatusOK, map[string]interface{}{"prices": accepted})
}
