package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"usdacore/core"
	"usdacore/core/types"
	"usdacore/crypto"
	"usdacore/native/abond"
	"usdacore/native/borrowing"
	"usdacore/native/cds"
	nativecommon "usdacore/native/common"
	"usdacore/native/crosschain"
	"usdacore/native/liquidation"
	"usdacore/native/multisig"
	"usdacore/native/oracle"
	"usdacore/native/params"
	"usdacore/native/treasury"
)

const requestLimit = 1 << 20 // 1 MiB

var (
	errMissingCaller = errors.New("request carries no caller address")
	errNoJournal     = errors.New("event journal not configured")
	errNoStream      = errors.New("event stream not configured")
	errNoPriceFeed   = errors.New("manual price feed not configured")
)

func decodeRequest(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return errors.New("missing request body")
	}
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, requestLimit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	message := strings.TrimSpace(err.Error())
	if message == "" {
		message = http.StatusText(status)
	}
	writeJSON(w, status, map[string]string{"error": message})
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSONError(w, http.StatusBadRequest, err)
}

// writeError maps protocol errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	writeJSONError(w, statusFor(err), err)
}

func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, borrowing.ErrPositionNotFound), errors.Is(err, cds.ErrPositionNotFound):
		return http.StatusNotFound
	case errors.Is(err, borrowing.ErrAlreadyWithdrawn), errors.Is(err, borrowing.ErrAlreadyLiquidated),
		errors.Is(err, cds.ErrAlreadyWithdrawn), errors.Is(err, multisig.ErrAlreadyApproved),
		errors.Is(err, multisig.ErrAlreadyConfigured):
		return http.StatusConflict
	case errors.Is(err, params.ErrNotAdmin), errors.Is(err, params.ErrApprovalsNotMet),
		errors.Is(err, treasury.ErrNotAdmin), errors.Is(err, treasury.ErrUnauthorizedCaller),
		errors.Is(err, multisig.ErrNotOwner), errors.Is(err, multisig.ErrApprovalsNotMet),
		errors.Is(err, liquidation.ErrSelfLiquidation), errors.Is(err, crosschain.ErrBadSignature),
		errors.Is(err, crosschain.ErrUnknownPeer), errors.Is(err, crosschain.ErrWrongChain):
		return http.StatusForbidden
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusLocked
	case errors.Is(err, crosschain.ErrInsufficientFee):
		return http.StatusPaymentRequired
	case errors.Is(err, core.ErrGenesisMissing), errors.Is(err, core.ErrNoOutbox),
		errors.Is(err, crosschain.ErrNoMessenger), errors.Is(err, oracle.ErrNoFreshQuote):
		return http.StatusServiceUnavailable
	case errors.Is(err, treasury.ErrConservation):
		return http.StatusInternalServerError
	case isValidation(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

var validationErrors = []error{
	borrowing.ErrZeroAmount, borrowing.ErrUnsupportedCollateral, borrowing.ErrPriceOutOfBounds,
	borrowing.ErrInvalidOptionBounds, borrowing.ErrInsufficientCollateral, borrowing.ErrNotEnoughFundInCDS,
	borrowing.ErrHealthTooLow, borrowing.ErrInsufficientRepayment, borrowing.ErrInvalidPrice,
	borrowing.ErrBackingUnavailable,
	cds.ErrZeroDeposit, cds.ErrLiquidationAmountTooHigh, cds.ErrUSDTOnly, cds.ErrSurplusUSDT,
	cds.ErrUSDaShareNotMet, cds.ErrInsufficientUSDT, cds.ErrInsufficientUSDa, cds.ErrWithdrawTooEarly,
	cds.ErrNotEnoughFund, cds.ErrZeroAmount, cds.ErrInvalidPrice, cds.ErrInsufficientBalance,
	cds.ErrSlippage, cds.ErrInsufficientReserve, cds.ErrInsufficientLiquidity,
	liquidation.ErrZeroAddress, liquidation.ErrRatioAboveThreshold,
	liquidation.ErrInsufficientLiquidationFund, liquidation.ErrInvalidPrice,
	treasury.ErrInvalidWithdrawal, treasury.ErrInsufficientInterest,
	abond.ErrZeroShares, abond.ErrInsufficientShares,
	multisig.ErrUnknownFunction, multisig.ErrUnknownAction, multisig.ErrInvalidConfig, multisig.ErrNotConfigured,
	params.ErrZeroValue, params.ErrZeroAddress,
	oracle.ErrInvalidQuote,
}

func isValidation(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func parseAddress(field, value string) ([20]byte, error) {
	raw, err := crypto.ParseRaw(strings.TrimSpace(value))
	if err != nil {
		return [20]byte{}, fmt.Errorf("%s: %w", field, err)
	}
	return raw, nil
}

// parseAmount reads a base-unit integer. Empty strings decode as zero.
func parseAmount(field, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("%s: invalid amount %q", field, value)
	}
	return amount, nil
}

func parseIndex(value string) (uint64, error) {
	index, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid index %q", value)
	}
	return index, nil
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// display renders a base-unit amount with its decimal point placed.
func display(v *big.Int, decimals int32) string {
	if v == nil {
		v = big.NewInt(0)
	}
	return decimal.NewFromBigInt(v, -decimals).StringFixed(decimals)
}

// displayPrice renders a two-decimal oracle price.
func displayPrice(price uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(price), -2).StringFixed(2)
}

// rayDisplay renders a ray-scaled value as a plain decimal.
func rayDisplay(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -27).String()
}

// dispatchPayload is the optional cross-chain leg of a mutating request.
type dispatchPayload struct {
	Fee         string `json:"fee"`
	Options     []byte `json:"options,omitempty"`
	PayInNative bool   `json:"payInNative"`
}

func (d *dispatchPayload) toDispatch() (*core.Dispatch, error) {
	if d == nil {
		return nil, nil
	}
	fee, err := parseAmount("dispatch.fee", d.Fee)
	if err != nil {
		return nil, err
	}
	return &core.Dispatch{Fee: fee, Options: d.Options, PayInNative: d.PayInNative}, nil
}

// byAssetView keys a per-kind collateral split by asset symbol.
func byAssetView(amounts types.CollateralAmounts) map[string]string {
	out := make(map[string]string, len(types.CollateralAssets()))
	for _, asset := range types.CollateralAssets() {
		out[asset.String()] = amountString(amounts.Of(asset))
	}
	return out
}
