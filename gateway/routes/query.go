package routes

import (
	"math/big"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"usdacore/core"
	"usdacore/core/types"
	"usdacore/crypto"
	"usdacore/native/borrowing"
	"usdacore/native/cds"
	"usdacore/native/rate"
	"usdacore/storage/eventlog"
)

type borrowPosition struct {
	Index            uint64 `json:"index"`
	Status           string `json:"status"`
	Kind             string `json:"kind"`
	Deposited        string `json:"deposited"`
	Locked           string `json:"locked"`
	LockedDisplay    string `json:"lockedDisplay"`
	USDValueAtOpen   string `json:"usdValueAtOpen"`
	Principal        string `json:"principal"`
	PrincipalDisplay string `json:"principalDisplay"`
	Debt             string `json:"debt,omitempty"`
	PriceAtOpen      string `json:"priceAtOpen"`
	StrikePrice      uint64 `json:"strikePrice"`
	StrikePercent    uint64 `json:"strikePercent"`
	OpenedAt         uint64 `json:"openedAt"`
	WithdrawnAt      uint64 `json:"withdrawnAt,omitempty"`
	RemainingBps     uint64 `json:"remainingBps"`
	HealthBps        uint64 `json:"healthBps,omitempty"`
}

func borrowPositionView(index uint64, pos *borrowing.Position, price uint64) borrowPosition {
	if pos == nil {
		return borrowPosition{Index: index}
	}
	view := borrowPosition{
		Index:            index,
		Status:           pos.Status(),
		Kind:             pos.Kind.String(),
		Deposited:        amountString(pos.Deposited),
		Locked:           amountString(pos.Collateral),
		LockedDisplay:    display(pos.Collateral, pos.Kind.Asset().Decimals()),
		USDValueAtOpen:   amountString(pos.USDValueAtOpen),
		Principal:        amountString(pos.Principal),
		PrincipalDisplay: display(pos.Principal, types.AssetUSDa.Decimals()),
		PriceAtOpen:      displayPrice(pos.PriceAtOpen),
		StrikePrice:      pos.StrikePrice,
		StrikePercent:    pos.StrikePercent,
		OpenedAt:         pos.OpenedAt,
		WithdrawnAt:      pos.WithdrawnAt,
		RemainingBps:     pos.RemainingBps,
	}
	if price > 0 && !pos.Closed() {
		view.HealthBps = pos.HealthBps(price)
	}
	return view
}

type cdsPosition struct {
	Index             uint64            `json:"index"`
	USDT              string            `json:"usdt"`
	USDa              string            `json:"usda"`
	Total             string            `json:"total"`
	TotalDisplay      string            `json:"totalDisplay"`
	OptIn             bool              `json:"optIn"`
	LiquidationAmount string            `json:"liquidationAmount"`
	SnapshotIndex     uint64            `json:"snapshotIndex"`
	DepositedAt       uint64            `json:"depositedAt"`
	Withdrawn         bool              `json:"withdrawn"`
	WithdrawnAt       uint64            `json:"withdrawnAt,omitempty"`
	WithdrawnUSDa     string            `json:"withdrawnUsda,omitempty"`
	DebtAbsorbed      string            `json:"debtAbsorbed"`
	Preview           *withdrawResponse `json:"preview,omitempty"`
}

func cdsPositionView(index uint64, pos *cds.Position, preview *cds.WithdrawResult) cdsPosition {
	if pos == nil {
		return cdsPosition{Index: index}
	}
	view := cdsPosition{
		Index:             index,
		USDT:              amountString(pos.USDT),
		USDa:              amountString(pos.USDa),
		Total:             amountString(pos.Total),
		TotalDisplay:      display(pos.Total, types.AssetUSDa.Decimals()),
		OptIn:             pos.OptIn,
		LiquidationAmount: amountString(pos.LiquidationAmount),
		SnapshotIndex:     pos.SnapshotIndex,
		DepositedAt:       pos.DepositedAt,
		Withdrawn:         pos.Withdrawn,
		WithdrawnAt:       pos.WithdrawnAt,
		DebtAbsorbed:      amountString(pos.DebtAbsorbed),
	}
	if pos.Withdrawn {
		view.WithdrawnUSDa = amountString(pos.WithdrawnUSDa)
	}
	if preview != nil {
		w := withdrawView(preview)
		view.Preview = &w
	}
	return view
}

type withdrawResponse struct {
	USDa        string            `json:"usda"`
	USDaDisplay string            `json:"usdaDisplay"`
	DebtShare   string            `json:"debtShare"`
	Collateral  map[string]string `json:"collateral"`
	EntriesSeen uint64            `json:"entriesSeen"`
}

func withdrawView(res *cds.WithdrawResult) withdrawResponse {
	out := withdrawResponse{Collateral: make(map[string]string)}
	if res == nil {
		return out
	}
	out.USDa = amountString(res.USDa)
	out.USDaDisplay = display(res.USDa, types.AssetUSDa.Decimals())
	out.DebtShare = amountString(res.DebtShare)
	out.EntriesSeen = res.EntriesSeen
	for asset, amount := range res.Collateral {
		out.Collateral[asset.String()] = amountString(amount)
	}
	return out
}

func (a *api) getRate(w http.ResponseWriter, r *http.Request) {
	idx, err := a.node.RateIndex()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ratePerSecond":   amountString(idx.RatePerSecond),
		"cumulativeIndex": amountString(idx.Cumulative),
		"cumulative":      rayDisplay(idx.Cumulative),
		"aprTenths":       idx.APR,
		"lastUpdate":      idx.LastUpdate,
	})
}

func (a *api) getParams(w http.ResponseWriter, r *http.Request) {
	var out map[string]interface{}
	err := a.node.View(func(e *core.Engines) error {
		p, err := e.Params.Protocol()
		if err != nil {
			return err
		}
		out = map[string]interface{}{
			"ltv":                     p.LTV,
			"bondRatio":               p.BondRatio,
			"minHealthBps":            p.MinHealthBps,
			"liquidationThresholdBps": p.LiquidationThresholdBps,
			"abondBackingBps":         p.AbondBackingBps,
			"abondInterestShareBps":   p.AbondInterestShareBps,
			"coverageRatioBps":        p.CoverageRatioBps,
			"priceToleranceBps":       p.PriceToleranceBps,
			"withdrawTimeLimit":       p.WithdrawTimeLimit,
			"usdtLimit":               amountString(p.USDTLimit),
			"usdaMinBps":              p.USDaMinBps,
			"admin":                   crypto.FormatRaw(p.Admin),
			"options":                 crypto.FormatRaw(p.Options),
		}
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) getTreasury(w http.ResponseWriter, r *http.Request) {
	var out map[string]interface{}
	err := a.node.View(func(e *core.Engines) error {
		totals, err := e.Ledger.Totals()
		if err != nil {
			return err
		}
		pool, err := e.CDS.Pool()
		if err != nil {
			return err
		}
		peer, err := e.Handler.PeerCDSLiquidity()
		if err != nil {
			return err
		}
		usd := types.AssetUSDa.Decimals()
		out = map[string]interface{}{
			"totalVolumeOfBorrowersUsd":    display(totals.TotalVolumeOfBorrowersUSD, usd),
			"totalVolumeOfBorrowersNative": amountString(totals.TotalVolumeOfBorrowersNative),
			"totalCdsDeposited":            display(totals.TotalCdsDeposited, usd),
			"totalInterestCollected":       display(totals.TotalInterestCollected, usd),
			"totalInterestFromLiquidation": display(totals.TotalInterestFromLiquidation, usd),
			"interestWithdrawn":            display(totals.InterestWithdrawn, usd),
			"availableInterest":            display(totals.AvailableInterest(), usd),
			"abondUsdaPool":                display(totals.AbondUSDaPool, usd),
			"collateralDeposited":          amountString(totals.CollateralDeposited),
			"collateralReleased":           amountString(totals.CollateralReleased),
			"abondBacking":                 amountString(totals.AbondBacking),
			"abondBackingByAsset":          byAssetView(totals.AbondBackingByAsset),
			"liquidationPending":           amountString(totals.LiquidationPending),
			"yieldRouted":                  amountString(totals.YieldRouted),
			"yieldRoutedByAsset":           byAssetView(totals.YieldRoutedByAsset),
			"conservationGap":              amountString(totals.ConservationGap()),
			"usdtReserve":                  display(totals.USDTReserve, usd),
			"cdsUsdaReserve":               display(totals.CDSUSDaReserve, usd),
			"usdaSupply":                   display(totals.USDaSupply, usd),
			"messagingFeesPaid":            amountString(totals.MessagingFeesPaid),
			"noOfBorrowers":                totals.NoOfBorrowers,
			"yieldRouteFailures":           totals.YieldRouteFailures,
			"cdsUsdtDeposited":             display(pool.USDTDeposited, usd),
			"cdsAvailableLiquidation":      display(pool.TotalAvailableLiquidation, usd),
			"cdsDepositors":                pool.Depositors,
			"peerCdsLiquidity":             display(peer, usd),
		}
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func positionParams(w http.ResponseWriter, r *http.Request) ([20]byte, uint64, bool) {
	addr, err := parseAddress("addr", chi.URLParam(r, "addr"))
	if err != nil {
		writeBadRequest(w, err)
		return [20]byte{}, 0, false
	}
	index, err := parseIndex(chi.URLParam(r, "index"))
	if err != nil {
		writeBadRequest(w, err)
		return [20]byte{}, 0, false
	}
	return addr, index, true
}

func (a *api) getBorrowPosition(w http.ResponseWriter, r *http.Request) {
	addr, index, ok := positionParams(w, r)
	if !ok {
		return
	}
	var price uint64
	if a.oracle != nil {
		if quote, err := a.oracle.Price(types.AssetNative); err == nil {
			price = quote.Price
		}
	}
	var view borrowPosition
	err := a.node.View(func(e *core.Engines) error {
		pos, err := e.Borrowing.Position(addr, index)
		if err != nil {
			return err
		}
		view = borrowPositionView(index, pos, price)
		if !pos.Closed() {
			idx, err := e.State.RateIndex()
			if err != nil {
				return err
			}
			view.Debt = amountString(debtAt(idx, pos))
		}
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func debtAt(idx *rate.Index, pos *borrowing.Position) *big.Int {
	return idx.Debt(pos.Principal, pos.IndexAtOpen)
}

func (a *api) getCDSPosition(w http.ResponseWriter, r *http.Request) {
	addr, index, ok := positionParams(w, r)
	if !ok {
		return
	}
	var view cdsPosition
	err := a.node.View(func(e *core.Engines) error {
		pos, err := e.CDS.Position(addr, index)
		if err != nil {
			return err
		}
		var preview *cds.WithdrawResult
		if !pos.Withdrawn {
			preview, _ = e.CDS.Preview(addr, index)
		}
		view = cdsPositionView(index, pos, preview)
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *api) getBond(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("addr", chi.URLParam(r, "addr"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var out map[string]interface{}
	err = a.node.View(func(e *core.Engines) error {
		bond, err := e.Bonds.Get(addr)
		if err != nil {
			return err
		}
		supply, err := e.Bonds.Supply()
		if err != nil {
			return err
		}
		out = map[string]interface{}{
			"address":           crypto.FormatRaw(addr),
			"shares":            amountString(bond.ShareBalance),
			"sharesDisplay":     display(bond.ShareBalance, 18),
			"ethBackedPerShare": amountString(bond.EthBackedPerShare),
			"totalBacking":      amountString(bond.TotalBacking),
			"backingByAsset":    byAssetView(bond.Backing),
			"genesisIndex":      amountString(bond.GenesisIndex),
			"supply":            amountString(supply),
		}
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) listEvents(w http.ResponseWriter, r *http.Request) {
	if a.journal == nil {
		writeJSONError(w, http.StatusServiceUnavailable, errNoJournal)
		return
	}
	query := eventlog.Query{Type: r.URL.Query().Get("type")}
	if raw := r.URL.Query().Get("after"); raw != "" {
		after, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeBadRequest(w, err)
			return
		}
		query.AfterSeq = after
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeBadRequest(w, err)
			return
		}
		query.Limit = limit
	}
	entries, err := a.journal.List(r.Context(), query)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": entries})
}
