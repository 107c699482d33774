package routes

import (
	"net/http"

	"usdacore/core/types"
	"usdacore/native/borrowing"
	"usdacore/native/cds"
	"usdacore/native/liquidation"
	"usdacore/native/oracle"
)

// price returns supplied when set and falls back to the oracle.
func (a *api) price(asset types.Asset, supplied uint64) (uint64, error) {
	if supplied > 0 {
		return supplied, nil
	}
	if a.oracle == nil {
		return 0, oracle.ErrNoFreshQuote
	}
	quote, err := a.oracle.Price(asset)
	if err != nil {
		return 0, err
	}
	return quote.Price, nil
}

type borrowDepositRequest struct {
	Collateral    string           `json:"collateral"`
	Amount        string           `json:"amount"`
	PriceHint     uint64           `json:"priceHint"`
	StrikePercent uint64           `json:"strikePercent"`
	StrikePrice   uint64           `json:"strikePrice"`
	Volatility    uint64           `json:"volatility"`
	Dispatch      *dispatchPayload `json:"dispatch,omitempty"`
}

func (a *api) borrowDeposit(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.caller(w, r)
	if !ok {
		return
	}
	var body borrowDepositRequest
	if err := decodeRequest(r, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	kind, err := borrowing.ParseCollateralKind(body.Collateral)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, err := parseAmount("amount", body.Amount)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	dispatch, err := body.Dispatch.toDispatch()
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	hint, err := a.price(types.AssetNative, body.PriceHint)
	if err != nil {
		writeError(w, err)
		return
	}
	index, pos, err := a.node.DepositCollateral(r.Context(), borrowing.DepositRequest{
		Borrower:       caller,
		PriceHint:      hint,
		StrikePercent:  body.StrikePercent,
		StrikePrice:    body.StrikePrice,
		Volatility:     body.Volatility,
		CollateralKind: kind,
		Amount:         amount,
	}, dispatch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, borrowPositionView(index, pos, hint))
}

type borrowWithdrawRequest struct {
	Index       uint64           `json:"index"`
	Price       uint64           `json:"price"`
	FractionBps uint64           `json:"fractionBps"`
	Dispatch    *dispatchPayload `json:"dispatch,omitempty"`
}

func (a *api) borrowWithdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.caller(w, r)
	if !ok {
		return
	}
	var body borrowWithdrawRequest
	if err := decodeRequest(r, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	dispatch, err := body.Dispatch.toDispatch()
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	// Every collateral kind is valued at the ETH price.
	price, err := a.price(types.AssetNative, body.Price)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := a.node.Withdraw(r.Context(), borrowing.WithdrawRequest{
		Borrower:    caller,
		Index:       body.Index,
		Price:       price,
		FractionBps: body.FractionBps,
	}, dispatch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"returned":    amountString(res.Returned),
		"backing":     amountString(res.Backing),
		"debtRepaid":  amountString(res.DebtRepaid),
		"interest":    amountString(res.Interest),
		"abondShares": amountString(res.Shares),
		"healthBps":   res.HealthBps,
		"position":    borrowPositionView(body.Index, res.Position, price),
	})
}

type liquidateRequest struct {
	Borrower string           `json:"borrower"`
	Index    uint64           `json:"index"`
	Price    uint64           `json:"price"`
	Dispatch *dispatchPayload `json:"dispatch,omitempty"`
}

func (a *api) borrowLiquidate(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.caller(w, r)
	if !ok {
		return
	}
	var body liquidateRequest
	if err := decodeRequest(r, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	borrower, err := parseAddress("borrower", body.Borrower)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	dispatch, err := body.Dispatch.toDispatch()
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	price, err := a.price(types.AssetNative, body.Price)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := a.node.Liquidate(r.Context(), liquidation.Request{
		Caller:   caller,
		Borrower: borrower,
		Index:    body.Index,
		Price:    price,
	}, dispatch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entry":      res.Entry,
		"collateral": amountString(res.Collateral),
		"debt":       amountString(res.Debt),
		"interest":   amountString(res.Interest),
		"gain":       amountString(res.Gain),
		"isGain":     res.IsGain,
		"healthBps":  res.HealthBps,
	})
}

type abondRedeemRequest struct {
	Shares string `json:"shares"`
}

func (a *api) abondRedeem(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.caller(w, r)
	if !ok {
		return
	}
	var body abondRedeemRequest
	if err := decodeRequest(r, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	shares, err := parseAmount("shares", body.Shares)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	res, err := a.node.RedeemYields(r.Context(), caller, shares)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"shares":            amountString(res.Shares),
		"collateral":        amountString(res.Collateral),
		"collateralByAsset": byAssetView(res.ByAsset),
		"usda":              amountString(res.USDa),
	})
}

type cdsDepositRequest struct {
	USDT              string           `json:"usdt"`
	USDa              string           `json:"usda"`
	OptIn             bool             `json:"optIn"`
	LiquidationAmount string           `json:"liquidationAmount"`
	Dispatch          *dispatchPayload `json:"dispatch,omitempty"`
}

func (a *api) cdsDeposit(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.caller(w, r)
	if !ok {
		return
	}
	var body cdsDepositRequest
	if err := decodeRequest(r, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	usdt, err := parseAmount("usdt", body.USDT)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	usda, err := parseAmount("usda", body.USDa)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	liq, err := parseAmount("liquidationAmount", body.LiquidationAmount)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	dispatch, err := body.Dispatch.toDispatch()
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	index, pos, err := a.node.DepositCDS(r.Context(), cds.DepositRequest{
		Depositor:         caller,
		USDT:              usdt,
		USDa:              usda,
		OptIn:             body.OptIn,
		LiquidationAmount: liq,
	}, dispatch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cdsPositionView(index, pos, nil))
}

type cdsWithdrawRequest struct {
	Index    uint64           `json:"index"`
	Price    uint64           `json:"price"`
	Dispatch *dispatchPayload `json:"dispatch,omitempty"`
}

func (a *api) cdsWithdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.caller(w, r)
	if !ok {
		return
	}
	var body cdsWithdrawRequest
	if err := decodeRequest(r, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	dispatch, err := body.Dispatch.toDispatch()
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	price, err := a.price(types.AssetNative, body.Price)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := a.node.WithdrawCDS(r.Context(), cds.WithdrawRequest{
		Depositor: caller,
		Index:     body.Index,
		Price:     price,
	}, dispatch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, withdrawView(res))
}

type redeemUSDTRequest struct {
	USDa       string `json:"usda"`
	USDaPrice  uint64 `json:"usdaPrice"`
	USDTPrice  uint64 `json:"usdtPrice"`
	MinUSDTOut string `json:"minUsdtOut"`
}

func (a *api) cdsRedeemUSDT(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.caller(w, r)
	if !ok {
		return
	}
	var body redeemUSDTRequest
	if err := decodeRequest(r, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	usda, err := parseAmount("usda", body.USDa)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	minOut, err := parseAmount("minUsdtOut", body.MinUSDTOut)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	usdaPrice, err := a.price(types.AssetUSDa, body.USDaPrice)
	if err != nil {
		writeError(w, err)
		return
	}
	usdtPrice, err := a.price(types.AssetUSDT, body.USDTPrice)
	if err != nil {
		writeError(w, err)
		return
	}
	out, err := a.node.RedeemUSDT(r.Context(), cds.RedeemRequest{
		Account:    caller,
		USDa:       usda,
		USDaPrice:  usdaPrice,
		USDTPrice:  usdtPrice,
		MinUSDTOut: minOut,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"usdt":        amountString(out),
		"usdtDisplay": display(out, types.AssetUSDT.Decimals()),
	})
}
